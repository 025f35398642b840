// Package source resolves the spot price and options chain for a ticker from
// live market data, recorded chain files or the synthetic generator, and
// reports every fallback it takes.
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/data"
	"github.com/dgnsrekt/heatseeker/internal/demo"
	"github.com/dgnsrekt/heatseeker/internal/exposure"
	"github.com/dgnsrekt/heatseeker/internal/metrics"
)

var (
	ErrInvalidSpot = errors.New("spot must be a positive number")
	ErrUnknownMode = errors.New("unknown source mode")
)

// Mode selects where chains come from.
type Mode string

const (
	ModeLive Mode = "live"
	ModeFile Mode = "file"
	ModeDemo Mode = "demo"
)

// Origin records where a value actually came from.
type Origin string

const (
	OriginManual  Origin = "manual"
	OriginLive    Origin = "live"
	OriginFile    Origin = "file"
	OriginDemo    Origin = "demo"
	OriginDefault Origin = "default"
)

const (
	StageSpot  = "spot"
	StageChain = "chain"
)

// ParseMode parses a mode name case-insensitively; empty means live.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLive, ModeFile, ModeDemo:
		return m, nil
	case "":
		return ModeLive, nil
	default:
		return "", fmt.Errorf("%w: %q (must be 'live', 'file' or 'demo')", ErrUnknownMode, s)
	}
}

// Issue is one failure the resolver recovered from.
type Issue struct {
	Stage string          `json:"stage"`
	Kind  api.FailureKind `json:"kind"`
	Error string          `json:"error"`
}

type Request struct {
	Ticker string
	// APIKey is passed through to the market data client on every call.
	APIKey string
	// Spot overrides any spot lookup when set.
	Spot *float64
	Mode Mode
	// Strict turns any recovered failure into an error.
	Strict bool
	// Valuation dates demo expirations; zero means now.
	Valuation time.Time
}

type Snapshot struct {
	Ticker      string
	Spot        float64
	SpotOrigin  Origin
	Rows        []exposure.ChainRow
	ChainOrigin Origin
	Issues      []Issue
}

// Config holds the resolver's fallbacks.
type Config struct {
	DefaultSpot float64
	// Demo is the template for synthetic chains; Spot and Valuation are
	// filled in per request.
	Demo demo.Config
}

type Resolver struct {
	client api.Client
	files  data.ChainLoader
	config Config
	logger *zap.Logger
}

// NewResolver creates a Resolver. files may be nil when no chain files are loaded.
func NewResolver(client api.Client, files data.ChainLoader, cfg Config, logger *zap.Logger) *Resolver {
	return &Resolver{
		client: client,
		files:  files,
		config: cfg,
		logger: logger,
	}
}

// Resolve returns the spot and chain for req.Ticker.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Snapshot, error) {
	if req.Mode == "" {
		req.Mode = ModeLive
	}
	if req.Mode != ModeLive && req.Mode != ModeFile && req.Mode != ModeDemo {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}

	snap := &Snapshot{Ticker: strings.ToUpper(req.Ticker)}

	if err := r.resolveSpot(ctx, req, snap); err != nil {
		return nil, err
	}
	if err := r.resolveChain(ctx, req, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

func (r *Resolver) resolveSpot(ctx context.Context, req Request, snap *Snapshot) error {
	if req.Spot != nil {
		if !validSpot(*req.Spot) {
			return fmt.Errorf("%w: got %v", ErrInvalidSpot, *req.Spot)
		}
		snap.Spot = *req.Spot
		snap.SpotOrigin = OriginManual
		return nil
	}

	if req.Mode == ModeLive {
		spot, err := r.client.Spot(ctx, req.APIKey, snap.Ticker)
		if err == nil {
			snap.Spot = spot
			snap.SpotOrigin = OriginLive
			return nil
		}
		if req.Strict {
			return fmt.Errorf("spot for %s: %w", snap.Ticker, err)
		}
		r.recordIssue(snap, StageSpot, api.Classify(err), err)
	}

	if !validSpot(r.config.DefaultSpot) {
		return fmt.Errorf("%w: no spot available for %s", ErrInvalidSpot, snap.Ticker)
	}
	snap.Spot = r.config.DefaultSpot
	snap.SpotOrigin = OriginDefault
	return nil
}

func (r *Resolver) resolveChain(ctx context.Context, req Request, snap *Snapshot) error {
	switch req.Mode {
	case ModeLive:
		rows, err := r.client.Chain(ctx, req.APIKey, snap.Ticker)
		if err == nil {
			snap.Rows = rows
			snap.ChainOrigin = OriginLive
			return nil
		}
		if req.Strict {
			return fmt.Errorf("chain for %s: %w", snap.Ticker, err)
		}
		r.recordIssue(snap, StageChain, api.Classify(err), err)

	case ModeFile:
		rows, err := r.fileChain(snap.Ticker)
		if err == nil {
			snap.Rows = rows
			snap.ChainOrigin = OriginFile
			return nil
		}
		if req.Strict {
			return fmt.Errorf("chain for %s: %w", snap.Ticker, err)
		}
		r.recordIssue(snap, StageChain, api.FailureNotFound, err)
	}

	cfg := r.config.Demo
	cfg.Spot = snap.Spot
	cfg.Valuation = req.Valuation
	snap.Rows = demo.Generate(cfg)
	snap.ChainOrigin = OriginDemo
	return nil
}

func (r *Resolver) fileChain(ticker string) ([]exposure.ChainRow, error) {
	if r.files == nil {
		return nil, fmt.Errorf("no chain files loaded: %w", data.ErrNotFound)
	}
	return r.files.Chain(ticker)
}

func (r *Resolver) recordIssue(snap *Snapshot, stage string, kind api.FailureKind, err error) {
	snap.Issues = append(snap.Issues, Issue{Stage: stage, Kind: kind, Error: err.Error()})
	metrics.SourceFallbacksTotal.WithLabelValues(stage, string(kind)).Inc()
	r.logger.Warn("market data fallback",
		zap.String("ticker", snap.Ticker),
		zap.String("stage", stage),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
}

func validSpot(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
