package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/exposure"
	"github.com/dgnsrekt/heatseeker/internal/source"
)

type mockResolver struct {
	snap *source.Snapshot
	err  error
	got  source.Request
}

func (m *mockResolver) Resolve(ctx context.Context, req source.Request) (*source.Snapshot, error) {
	m.got = req
	return m.snap, m.err
}

func oi(v int64) *int64 { return &v }

func exampleSnapshot() *source.Snapshot {
	return &source.Snapshot{
		Ticker:     "SPY",
		Spot:       683,
		SpotOrigin: source.OriginLive,
		Rows: []exposure.ChainRow{
			{Strike: 680, OpenInterest: oi(5000)},
			{Strike: 683, OpenInterest: oi(30000)},
			{Strike: 686},
		},
		ChainOrigin: source.OriginLive,
		Issues:      []source.Issue{{Stage: source.StageSpot, Kind: api.FailureNetwork, Error: "timeout"}},
	}
}

func newTestService(r Resolver) *Service {
	logger, _ := zap.NewDevelopment()
	s := NewService(r, exposure.DefaultOptions(), logger)
	s.now = func() time.Time { return time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC) }
	return s
}

func TestCompute(t *testing.T) {
	resolver := &mockResolver{snap: exampleSnapshot()}
	report, err := newTestService(resolver).Compute(context.Background(), Request{Request: source.Request{Ticker: "SPY"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Headline.Vanna != 683 {
		t.Errorf("expected vanna 683, got %v", report.Headline.Vanna)
	}
	if report.Headline.SpotMinusKing != 683-report.Headline.King {
		t.Errorf("unexpected spot-king delta %v", report.Headline.SpotMinusKing)
	}
	if report.Headline.TotalOpenInterest != 36000 {
		t.Errorf("expected total OI 36000, got %d", report.Headline.TotalOpenInterest)
	}
	if report.Substitutions["open_interest"] != 1 {
		t.Errorf("expected 1 open interest substitution, got %v", report.Substitutions)
	}
	if len(report.Issues) != 1 {
		t.Errorf("expected resolver issues to be carried, got %+v", report.Issues)
	}
	if len(report.Bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(report.Bars))
	}
	bar := report.Bars[1]
	if bar.Millions != bar.NetExposure/1e6 || bar.Positive {
		t.Errorf("unexpected bar: %+v", bar)
	}
	if !resolver.got.Valuation.IsZero() {
		t.Error("valuation should only be set in time-aware mode")
	}
}

func TestCompute_TimeAwareSetsValuation(t *testing.T) {
	resolver := &mockResolver{snap: exampleSnapshot()}
	report, err := newTestService(resolver).Compute(context.Background(), Request{
		Request:   source.Request{Ticker: "SPY", Mode: source.ModeDemo},
		TimeAware: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.TimeAware {
		t.Error("expected time-aware report")
	}
	if resolver.got.Valuation.IsZero() {
		t.Error("expected valuation to be passed to the resolver")
	}
	// rows without expirations fall back to the fixed tenor
	if report.Substitutions["expiration"] != 3 {
		t.Errorf("expected 3 expiration substitutions, got %v", report.Substitutions)
	}
}

func TestCompute_ResolverError(t *testing.T) {
	resolver := &mockResolver{err: api.ErrAuthFailed}
	_, err := newTestService(resolver).Compute(context.Background(), Request{Request: source.Request{Ticker: "SPY"}})
	if !errors.Is(err, api.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestComputeRows_InvalidInput(t *testing.T) {
	s := newTestService(&mockResolver{})

	if _, err := s.ComputeRows("SPY", nil, 683, false); !errors.Is(err, exposure.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty rows, got %v", err)
	}
	if _, err := s.ComputeRows("SPY", exampleSnapshot().Rows, -1, false); !errors.Is(err, exposure.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative spot, got %v", err)
	}
}

func TestReportSummary(t *testing.T) {
	s := newTestService(&mockResolver{})
	report, err := s.ComputeRows("spy", exampleSnapshot().Rows, 683, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary := report.Summary()
	if !strings.HasPrefix(summary, "SPY spot $683.00") {
		t.Errorf("unexpected summary: %s", summary)
	}
	if !strings.Contains(summary, "vanna $683.0") {
		t.Errorf("summary should name the vanna strike: %s", summary)
	}

	report.ChainOrigin = source.OriginDemo
	report.Headline.Gatekeeper = nil
	summary = report.Summary()
	if !strings.Contains(summary, "no gatekeeper") || !strings.Contains(summary, "[demo data]") {
		t.Errorf("expected demo and gatekeeper markers: %s", summary)
	}
}
