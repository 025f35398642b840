package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/dashboard"
	"github.com/dgnsrekt/heatseeker/internal/download"
	"github.com/dgnsrekt/heatseeker/internal/scan"
)

type captured struct {
	path    string
	headers http.Header
	body    string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.path = r.URL.Path
		got.headers = r.Header.Clone()
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func testConfig(server string) *Config {
	return &Config{
		Enabled:  true,
		Server:   server,
		Topic:    "heatseeker-test",
		Priority: "default",
		Tags:     "chart_with_upwards_trend",
		Token:    "tk_secret",
	}
}

func scanResult() *scan.BatchResult {
	gk := 660.0
	return &scan.BatchResult{
		RunID:    "run-1",
		Total:    2,
		Success:  1,
		Fallback: 0,
		Failed:   1,
		Reports: []*dashboard.Report{{
			Ticker: "SPY",
			Spot:   683,
			Headline: dashboard.Headline{
				King: 686, Vanna: 683, Gatekeeper: &gk, SpotMinusKing: -3,
			},
		}},
		Errors: []string{"QQQ: market data unavailable"},
	}
}

func TestSendScan(t *testing.T) {
	srv, got := newNtfyServer(t, http.StatusOK)
	client := NewClient(testConfig(srv.URL), zap.NewNop())

	if err := client.SendScan(context.Background(), scanResult(), 1500*time.Millisecond); err != nil {
		t.Fatalf("SendScan: %v", err)
	}

	if got.path != "/heatseeker-test" {
		t.Errorf("unexpected path %q", got.path)
	}
	if got.headers.Get("Title") != "Heatseeker Scan: 2 tickers" {
		t.Errorf("unexpected title %q", got.headers.Get("Title"))
	}
	if got.headers.Get("Authorization") != "Bearer tk_secret" {
		t.Errorf("missing bearer token")
	}
	if got.headers.Get("Priority") != "default" {
		t.Errorf("expected default priority, got %q", got.headers.Get("Priority"))
	}
	for _, want := range []string{
		"SPY spot $683.00: king $686.0 (-3.00), vanna $683.0, gatekeeper $660.0",
		"Tickers: 2 (ok 1, fallback 0, failed 1)",
		"- QQQ: market data unavailable",
	} {
		if !strings.Contains(got.body, want) {
			t.Errorf("body missing %q:\n%s", want, got.body)
		}
	}
}

func TestSendScan_AllFailedIsHighPriority(t *testing.T) {
	srv, got := newNtfyServer(t, http.StatusOK)
	client := NewClient(testConfig(srv.URL), zap.NewNop())

	result := &scan.BatchResult{Total: 2, Failed: 2, Errors: []string{"a", "b"}}
	if err := client.SendScan(context.Background(), result, time.Second); err != nil {
		t.Fatalf("SendScan: %v", err)
	}
	if got.headers.Get("Priority") != "high" {
		t.Errorf("expected high priority, got %q", got.headers.Get("Priority"))
	}
	if !strings.HasSuffix(got.headers.Get("Tags"), ",x") {
		t.Errorf("expected failure tag, got %q", got.headers.Get("Tags"))
	}
}

func TestSendDownload(t *testing.T) {
	srv, got := newNtfyServer(t, http.StatusOK)
	client := NewClient(testConfig(srv.URL), zap.NewNop())

	result := &download.BatchResult{Total: 3, Success: 2, Rows: 500, NotFound: 1}
	if err := client.SendSuccess(context.Background(), result, "2025-11-14", time.Minute); err != nil {
		t.Fatalf("SendSuccess: %v", err)
	}
	if got.headers.Get("Title") != "Download Complete: 2025-11-14" {
		t.Errorf("unexpected title %q", got.headers.Get("Title"))
	}
	if !strings.Contains(got.body, "Success: 2 (500 rows)") {
		t.Errorf("unexpected body:\n%s", got.body)
	}

	failed := &download.BatchResult{Total: 5, Failed: 5, Errors: []string{"1", "2", "3", "4", "5"}}
	if err := client.SendFailure(context.Background(), failed, "2025-11-14", time.Minute, errors.New("boom")); err != nil {
		t.Fatalf("SendFailure: %v", err)
	}
	if got.headers.Get("Priority") != "high" {
		t.Errorf("expected high priority, got %q", got.headers.Get("Priority"))
	}
	if !strings.Contains(got.body, "Error: boom") || !strings.Contains(got.body, "... and 2 more errors") {
		t.Errorf("unexpected body:\n%s", got.body)
	}
}

func TestSendErrorStatus(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	client := NewClient(testConfig(srv.URL), zap.NewNop())

	if err := client.SendScan(context.Background(), scanResult(), time.Second); err == nil {
		t.Fatal("expected error for 403")
	}
}

func TestDisabledSendsNothing(t *testing.T) {
	srv, got := newNtfyServer(t, http.StatusOK)
	cfg := testConfig(srv.URL)
	cfg.Enabled = false

	if _, ok := New(cfg, zap.NewNop()).(*NoopNotifier); !ok {
		t.Error("expected NoopNotifier when disabled")
	}

	client := NewClient(cfg, zap.NewNop())
	if err := client.SendScan(context.Background(), scanResult(), time.Second); err != nil {
		t.Fatalf("SendScan: %v", err)
	}
	if got.path != "" {
		t.Error("disabled client should not send")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"valid", Config{Enabled: true, Topic: "t", Priority: "high"}, false},
		{"missing topic", Config{Enabled: true, Priority: "high"}, true},
		{"bad priority", Config{Enabled: true, Topic: "t", Priority: "loud"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
