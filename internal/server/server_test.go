package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/config"
	"github.com/dgnsrekt/heatseeker/internal/dashboard"
	"github.com/dgnsrekt/heatseeker/internal/data"
	"github.com/dgnsrekt/heatseeker/internal/demo"
	"github.com/dgnsrekt/heatseeker/internal/exposure"
	"github.com/dgnsrekt/heatseeker/internal/source"
)

// stubClient behaves like the live client with no usable key.
type stubClient struct{}

func (stubClient) Spot(ctx context.Context, apiKey, ticker string) (float64, error) {
	return 0, api.ErrNoAPIKey
}

func (stubClient) Chain(ctx context.Context, apiKey, ticker string) ([]exposure.ChainRow, error) {
	return nil, api.ErrNoAPIKey
}

func oi(v int64) *int64 { return &v }

func newTestRouter(t *testing.T, cfg *config.ServerConfig, files *ReloadManager) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	var loader data.ChainLoader
	if files != nil {
		loader = files
	}
	resolver := source.NewResolver(stubClient{}, loader, source.Config{
		DefaultSpot: config.DefaultSpot,
		Demo:        demo.DefaultConfig(0),
	}, logger)
	service := dashboard.NewService(resolver, exposure.DefaultOptions(), logger)

	srv := NewServer(service, files, config.DefaultTickers(), cfg, logger)
	router, err := NewRouter(srv, cfg.CORSOrigins, logger)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func demoConfig() *config.ServerConfig {
	return &config.ServerConfig{Port: "8080", SourceMode: "demo"}
}

func doRequest(h http.Handler, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) dashboard.Report {
	t.Helper()
	var report dashboard.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v (body %s)", err, rec.Body.String())
	}
	return report
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	rec := doRequest(router, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Status != "ok" || resp.SourceMode != "demo" {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestTickers(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	rec := doRequest(router, http.MethodGet, "/v1/tickers", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp tickersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Count != len(config.DefaultTickers()) || resp.Tickers[0] != "SPY" {
		t.Errorf("unexpected tickers: %+v", resp)
	}
}

func TestGetExposure_Demo(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	rec := doRequest(router, http.MethodGet, "/v1/exposure/spy?spot=683", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	report := decodeReport(t, rec)
	if report.Ticker != "SPY" {
		t.Errorf("expected ticker SPY, got %s", report.Ticker)
	}
	if report.ChainOrigin != source.OriginDemo || report.SpotOrigin != source.OriginManual {
		t.Errorf("unexpected origins: spot=%s chain=%s", report.SpotOrigin, report.ChainOrigin)
	}
	if len(report.Bars) != 141 {
		t.Errorf("expected 141 bars, got %d", len(report.Bars))
	}
	if report.Spot != 683 {
		t.Errorf("expected spot 683, got %v", report.Spot)
	}
}

func TestGetExposure_InvalidSpot(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	for _, target := range []string{
		"/v1/exposure/SPY?spot=-1",
		"/v1/exposure/SPY?spot=0",
		"/v1/exposure/SPY?spot=abc",
		"/v1/exposure/SPY?mode=stream",
	} {
		rec := doRequest(router, http.MethodGet, target, nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", target, rec.Code, rec.Body.String())
		}
	}
}

func TestGetExposure_LiveFallback(t *testing.T) {
	cfg := &config.ServerConfig{SourceMode: "live"}
	router := newTestRouter(t, cfg, nil)

	rec := doRequest(router, http.MethodGet, "/v1/exposure/QQQ", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	report := decodeReport(t, rec)
	if report.SpotOrigin != source.OriginDefault || report.ChainOrigin != source.OriginDemo {
		t.Errorf("unexpected origins: spot=%s chain=%s", report.SpotOrigin, report.ChainOrigin)
	}
	if len(report.Issues) != 2 {
		t.Fatalf("expected spot and chain issues, got %+v", report.Issues)
	}
	for _, issue := range report.Issues {
		if issue.Kind != api.FailureNoKey {
			t.Errorf("expected no_key issue, got %+v", issue)
		}
	}
}

func TestGetExposure_StrictLiveFailure(t *testing.T) {
	cfg := &config.ServerConfig{SourceMode: "live"}
	router := newTestRouter(t, cfg, nil)

	rec := doRequest(router, http.MethodGet, "/v1/exposure/QQQ?strict=true&key=abcdefgh", nil, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Kind != string(api.FailureNoKey) {
		t.Errorf("expected kind no_key, got %q", resp.Kind)
	}
}

func TestComputeExposure(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	body := `{"ticker":"spy","spot":683,"rows":[
		{"strike":680,"open_interest":5000},
		{"strike":683,"open_interest":30000},
		{"strike":686,"open_interest":5000}
	]}`
	rec := doRequest(router, http.MethodPost, "/v1/exposure", strings.NewReader(body),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	report := decodeReport(t, rec)
	if report.Headline.King != 686 || report.Headline.Vanna != 683 {
		t.Errorf("expected king 686 vanna 683, got %+v", report.Headline)
	}
	if report.Headline.TotalOpenInterest != 40000 {
		t.Errorf("expected total OI 40000, got %d", report.Headline.TotalOpenInterest)
	}
	if report.ChainOrigin != source.OriginManual {
		t.Errorf("expected manual chain, got %s", report.ChainOrigin)
	}
}

func TestComputeExposure_MissingOpenInterest(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	body := `{"spot":683,"rows":[{"strike":680},{"strike":683,"open_interest":null}]}`
	rec := doRequest(router, http.MethodPost, "/v1/exposure", strings.NewReader(body),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	report := decodeReport(t, rec)
	if report.Ticker != customTicker {
		t.Errorf("expected default ticker, got %s", report.Ticker)
	}
	if report.Substitutions["open_interest"] != 2 {
		t.Errorf("expected 2 OI substitutions, got %v", report.Substitutions)
	}
}

func TestComputeExposure_InvalidInput(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty rows", `{"spot":683,"rows":[]}`},
		{"zero spot", `{"spot":0,"rows":[{"strike":680,"open_interest":1}]}`},
		{"negative strike", `{"spot":683,"rows":[{"strike":-5,"open_interest":1}]}`},
		{"negative oi", `{"spot":683,"rows":[{"strike":680,"open_interest":-1}]}`},
		{"missing rows", `{"spot":683}`},
		{"exposure overflows", `{"spot":1e200,"rows":[{"strike":680,"open_interest":0},{"strike":683,"open_interest":10}]}`},
		{"ticker too long", `{"ticker":"NOTATICKER","spot":683,"rows":[{"strike":680,"open_interest":1}]}`},
		{"ticker with symbols", `{"ticker":"$(rm)","spot":683,"rows":[{"strike":680,"open_interest":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, "/v1/exposure", strings.NewReader(tt.body),
				map[string]string{"Content-Type": "application/json"})
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRespond_EncodeFailure(t *testing.T) {
	srv := &Server{logger: zap.NewNop()}

	for _, accept := range []string{"", contentTypeProtobuf} {
		req := httptest.NewRequest(http.MethodGet, "/v1/exposure/SPY", nil)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		rec := httptest.NewRecorder()

		srv.respond(rec, req, http.StatusOK, map[string]float64{"net_exposure": math.Inf(-1)})

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("accept %q: expected 500, got %d", accept, rec.Code)
		}
		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("accept %q: error body is not JSON: %v (%q)", accept, err, rec.Body.String())
		}
		if resp.Error == "" {
			t.Errorf("accept %q: expected an error message", accept)
		}
	}
}

func TestGetExposure_Protobuf(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	rec := doRequest(router, http.MethodGet, "/v1/exposure/SPY?spot=683", nil,
		map[string]string{"Accept": contentTypeProtobuf})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != contentTypeProtobuf {
		t.Fatalf("expected protobuf content type, got %q", ct)
	}

	var st structpb.Struct
	if err := proto.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal protobuf: %v", err)
	}
	if got := st.Fields["ticker"].GetStringValue(); got != "SPY" {
		t.Errorf("expected ticker SPY, got %q", got)
	}
	if bars := st.Fields["bars"].GetListValue().GetValues(); len(bars) != 141 {
		t.Errorf("expected 141 bars, got %d", len(bars))
	}
}

func TestGetExposure_ZstdEncoding(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	rec := doRequest(router, http.MethodGet, "/v1/exposure/SPY?spot=683", nil,
		map[string]string{"Accept-Encoding": "zstd"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if enc := rec.Header().Get("Content-Encoding"); enc != "zstd" {
		t.Fatalf("expected zstd encoding, got %q", enc)
	}

	dec, err := zstd.NewReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var report dashboard.Report
	if err := json.NewDecoder(dec).Decode(&report); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if report.Ticker != "SPY" {
		t.Errorf("expected SPY, got %s", report.Ticker)
	}
}

func TestMetricsAndDocs(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	doRequest(router, http.MethodGet, "/v1/exposure/IWM?spot=200", nil, nil)

	rec := doRequest(router, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `heatseeker_computations_total{source="demo",ticker="IWM"}`) {
		t.Errorf("metrics missing computation counter")
	}

	rec = doRequest(router, http.MethodGet, "/openapi.yaml", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/v1/exposure/{ticker}") {
		t.Errorf("openapi document not served: %d", rec.Code)
	}

	rec = doRequest(router, http.MethodGet, "/docs", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Errorf("docs not served: %d", rec.Code)
	}
}

func TestMaskQueryKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"key=abcdefgh", "key=abcd%2A%2A%2A%2A"},
		{"key=abc&spot=1", "key=%2A%2A%2A%2A&spot=1"},
		{"spot=683", "spot=683"},
	}
	for _, tt := range tests {
		if got := maskQueryKey(tt.in); got != tt.want {
			t.Errorf("maskQueryKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeChainFile(t *testing.T, dir, date, ticker string, rows []exposure.ChainRow) {
	t.Helper()
	path := data.ChainPath(dir, date, ticker, false)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := data.WriteChain(f, rows, false); err != nil {
		t.Fatal(err)
	}
}

func newFileRouter(t *testing.T) (http.Handler, *ReloadManager) {
	t.Helper()
	dir := t.TempDir()
	writeChainFile(t, dir, "2025-11-20", "SPY", []exposure.ChainRow{
		{Strike: 680, OpenInterest: oi(5000)},
		{Strike: 683, OpenInterest: oi(30000)},
		{Strike: 686, OpenInterest: oi(5000)},
	})
	writeChainFile(t, dir, "2025-11-21", "SPY", []exposure.ChainRow{{Strike: 690, OpenInterest: oi(100)}})
	writeChainFile(t, dir, "2025-11-21", "QQQ", []exposure.ChainRow{{Strike: 600, OpenInterest: oi(100)}})

	logger := zap.NewNop()
	initial, err := data.NewMemoryLoader(dir, "2025-11-20", logger)
	if err != nil {
		t.Fatalf("NewMemoryLoader: %v", err)
	}
	rm := NewReloadManager(initial, dir, MemoryLoaderFunc(logger), logger)

	cfg := &config.ServerConfig{SourceMode: "file", DataDir: dir, DataDate: "2025-11-20"}
	return newTestRouter(t, cfg, rm), rm
}

func TestFileModeAndReload(t *testing.T) {
	router, rm := newFileRouter(t)

	rec := doRequest(router, http.MethodGet, "/v1/exposure/SPY?spot=683", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	report := decodeReport(t, rec)
	if report.ChainOrigin != source.OriginFile || report.Headline.King != 686 {
		t.Errorf("expected file chain with king 686, got %s %+v", report.ChainOrigin, report.Headline)
	}

	rec = doRequest(router, http.MethodPost, "/v1/reload?date=2025-11-21", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result ReloadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if result.PreviousDate != "2025-11-20" || result.NewDate != "2025-11-21" || result.TickersLoaded != 2 {
		t.Errorf("unexpected reload result: %+v", result)
	}
	if rm.Date() != "2025-11-21" {
		t.Errorf("expected date 2025-11-21, got %s", rm.Date())
	}

	rec = doRequest(router, http.MethodGet, "/v1/tickers", nil, nil)
	var tickers tickersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tickers); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if tickers.Count != 2 {
		t.Errorf("expected 2 tickers after reload, got %+v", tickers)
	}

	rec = doRequest(router, http.MethodGet, "/v1/exposure/SPY?spot=683", nil, nil)
	report = decodeReport(t, rec)
	if report.Headline.King != 690 {
		t.Errorf("expected reloaded chain with king 690, got %+v", report.Headline)
	}
}

func TestReloadErrors(t *testing.T) {
	router, rm := newFileRouter(t)

	rec := doRequest(router, http.MethodPost, "/v1/reload?date=2030-01-01", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing date: expected 404, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodPost, "/v1/reload?date=yesterday", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: expected 400, got %d", rec.Code)
	}

	if rm.Date() != "2025-11-20" {
		t.Errorf("failed reloads must keep current date, got %s", rm.Date())
	}

	// Missing ticker in file mode without strict falls back to demo
	rec = doRequest(router, http.MethodGet, "/v1/exposure/TSLA?spot=400", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if report := decodeReport(t, rec); report.ChainOrigin != source.OriginDemo {
		t.Errorf("expected demo fallback, got %s", report.ChainOrigin)
	}

	rec = doRequest(router, http.MethodGet, "/v1/exposure/TSLA?spot=400&strict=true", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("strict missing file: expected 404, got %d", rec.Code)
	}
}

func TestReloadRequiresFileMode(t *testing.T) {
	router := newTestRouter(t, demoConfig(), nil)

	rec := doRequest(router, http.MethodPost, "/v1/reload?date=2025-11-21", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
