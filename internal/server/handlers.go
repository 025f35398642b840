package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/config"
	"github.com/dgnsrekt/heatseeker/internal/dashboard"
	"github.com/dgnsrekt/heatseeker/internal/data"
	"github.com/dgnsrekt/heatseeker/internal/exposure"
	"github.com/dgnsrekt/heatseeker/internal/source"
)

const (
	contentTypeJSON     = "application/json"
	contentTypeProtobuf = "application/x-protobuf"

	customTicker = "CUSTOM"
)

// Computer builds exposure reports.
type Computer interface {
	Compute(ctx context.Context, req dashboard.Request) (*dashboard.Report, error)
	ComputeRows(ticker string, rows []exposure.ChainRow, spot float64, timeAware bool) (*dashboard.Report, error)
}

type Server struct {
	service Computer
	reload  *ReloadManager
	tickers []string
	config  *config.ServerConfig
	logger  *zap.Logger
}

// NewServer creates a Server. reload is nil unless chain files are served.
func NewServer(service Computer, reload *ReloadManager, tickers []string, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		service: service,
		reload:  reload,
		tickers: tickers,
		config:  cfg,
		logger:  logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type healthResponse struct {
	Status     string `json:"status"`
	SourceMode string `json:"source_mode"`
	DataDate   string `json:"data_date,omitempty"`
}

type tickersResponse struct {
	Tickers []string `json:"tickers"`
	Count   int      `json:"count"`
}

// exposureRequest is the POST /v1/exposure body.
type exposureRequest struct {
	Ticker    string             `json:"ticker"`
	Spot      float64            `json:"spot"`
	TimeAware bool               `json:"time_aware"`
	Rows      []data.ChainRecord `json:"rows"`
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", SourceMode: s.config.SourceMode}
	if s.reload != nil {
		resp.DataDate = s.reload.Date()
	}
	s.respond(w, r, http.StatusOK, resp)
}

func (s *Server) GetTickers(w http.ResponseWriter, r *http.Request) {
	tickers := s.tickers
	if s.reload != nil {
		tickers = s.reload.Tickers()
	}
	if tickers == nil {
		tickers = []string{}
	}
	s.respond(w, r, http.StatusOK, tickersResponse{Tickers: tickers, Count: len(tickers)})
}

func (s *Server) GetExposure(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := dashboard.Request{
		Request: source.Request{
			Ticker: chi.URLParam(r, "ticker"),
			APIKey: s.config.APIKey,
			Strict: s.config.Strict,
		},
	}

	if key := q.Get("key"); key != "" {
		req.APIKey = key
	}

	modeParam := q.Get("mode")
	if modeParam == "" {
		modeParam = s.config.SourceMode
	}
	mode, err := source.ParseMode(modeParam)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Mode = mode

	if v := q.Get("spot"); v != "" {
		spot, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, r, source.ErrInvalidSpot)
			return
		}
		req.Spot = &spot
	}
	if v := q.Get("strict"); v != "" {
		req.Strict, _ = strconv.ParseBool(v)
	}
	if v := q.Get("time_aware"); v != "" {
		req.TimeAware, _ = strconv.ParseBool(v)
	}

	s.logger.Debug("exposure request",
		zap.String("ticker", req.Ticker),
		zap.String("mode", string(req.Mode)),
		zap.Bool("manualSpot", req.Spot != nil),
		zap.Bool("timeAware", req.TimeAware),
	)

	report, err := s.service.Compute(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, report)
}

func (s *Server) ComputeExposure(w http.ResponseWriter, r *http.Request) {
	var body exposureRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, errors.Join(exposure.ErrInvalidInput, err))
		return
	}

	rows := make([]exposure.ChainRow, len(body.Rows))
	for i, rec := range body.Rows {
		rows[i] = rec.Row()
	}

	ticker := body.Ticker
	if ticker == "" {
		ticker = customTicker
	}

	report, err := s.service.ComputeRows(ticker, rows, body.Spot, body.TimeAware)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, report)
}

func (s *Server) ReloadChains(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		s.respond(w, r, http.StatusBadRequest, errorResponse{Error: "reload requires SOURCE_MODE=file"})
		return
	}

	result, err := s.reload.Reload(r.URL.Query().Get("date"))
	if err != nil {
		s.logger.Warn("chain reload failed", zap.Error(err))
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrInvalidDate):
			status = http.StatusBadRequest
		case errors.Is(err, ErrDateNotFound):
			status = http.StatusNotFound
		case errors.Is(err, ErrReloadInProgress):
			status = http.StatusConflict
		}
		s.respond(w, r, status, errorResponse{Error: err.Error()})
		return
	}
	s.respond(w, r, http.StatusOK, result)
}

// writeError maps a computation error onto an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error()}
	var status int

	switch {
	case errors.Is(err, exposure.ErrInvalidInput),
		errors.Is(err, source.ErrInvalidSpot),
		errors.Is(err, source.ErrUnknownMode):
		status = http.StatusBadRequest
		resp.Kind = "invalid_input"
	case errors.Is(err, data.ErrNotFound):
		status = http.StatusNotFound
		resp.Kind = string(api.FailureNotFound)
	default:
		kind := api.Classify(err)
		if kind == api.FailureUnknown {
			status = http.StatusInternalServerError
		} else {
			status = http.StatusBadGateway
		}
		resp.Kind = string(kind)
	}

	s.logger.Warn("request failed",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	s.respond(w, r, status, resp)
}

// respond writes v as JSON, or as a protobuf Struct when the client asks for it.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if strings.Contains(r.Header.Get("Accept"), contentTypeProtobuf) {
		payload, err := marshalProtobuf(v)
		if err == nil {
			w.Header().Set("Content-Type", contentTypeProtobuf)
			w.WriteHeader(status)
			w.Write(payload)
			return
		}
		s.logger.Warn("protobuf encoding failed, sending json", zap.Error(err))
	}

	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", zap.String("path", r.URL.Path), zap.Error(err))
		status = http.StatusInternalServerError
		payload, _ = json.Marshal(errorResponse{Error: "failed to encode response", Kind: string(api.FailureUnknown)})
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	w.Write(append(payload, '\n'))
}

// marshalProtobuf encodes v as a google.protobuf.Struct via its JSON form.
func marshalProtobuf(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}
