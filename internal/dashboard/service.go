package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/exposure"
	"github.com/dgnsrekt/heatseeker/internal/metrics"
	"github.com/dgnsrekt/heatseeker/internal/source"
)

// Resolver interface for testability
type Resolver interface {
	Resolve(ctx context.Context, req source.Request) (*source.Snapshot, error)
}

type Request struct {
	source.Request
	// TimeAware derives tenors from row expirations instead of the fixed tenor.
	TimeAware bool
}

type Service struct {
	resolver Resolver
	options  exposure.Options
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(resolver Resolver, opts exposure.Options, logger *zap.Logger) *Service {
	return &Service{
		resolver: resolver,
		options:  opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Compute resolves market data for req.Ticker and builds its exposure report.
func (s *Service) Compute(ctx context.Context, req Request) (*Report, error) {
	now := s.now()
	if req.TimeAware && req.Valuation.IsZero() {
		req.Valuation = now
	}

	snap, err := s.resolver.Resolve(ctx, req.Request)
	if err != nil {
		metrics.ComputationErrorsTotal.WithLabelValues(strings.ToUpper(req.Ticker), "source").Inc()
		return nil, err
	}

	report, err := s.build(snap, req.TimeAware, now)
	if err != nil {
		metrics.ComputationErrorsTotal.WithLabelValues(snap.Ticker, "input").Inc()
		return nil, err
	}
	return report, nil
}

// ComputeRows builds a report from caller-supplied rows, bypassing market data.
func (s *Service) ComputeRows(ticker string, rows []exposure.ChainRow, spot float64, timeAware bool) (*Report, error) {
	snap := &source.Snapshot{
		Ticker:      strings.ToUpper(ticker),
		Spot:        spot,
		SpotOrigin:  source.OriginManual,
		Rows:        rows,
		ChainOrigin: source.OriginManual,
	}

	report, err := s.build(snap, timeAware, s.now())
	if err != nil {
		metrics.ComputationErrorsTotal.WithLabelValues(snap.Ticker, "input").Inc()
		return nil, err
	}
	return report, nil
}

func (s *Service) build(snap *source.Snapshot, timeAware bool, now time.Time) (*Report, error) {
	opts := s.options
	opts.Valuation = time.Time{}
	if timeAware {
		opts.Valuation = now
	}

	res, err := exposure.Aggregate(snap.Rows, snap.Spot, opts)
	if err != nil {
		return nil, fmt.Errorf("aggregating %s: %w", snap.Ticker, err)
	}

	counts := res.SubstitutionCount()
	for field, n := range counts {
		metrics.SubstitutionsTotal.WithLabelValues(string(field)).Add(float64(n))
		s.logger.Warn("substituted missing chain fields",
			zap.String("ticker", snap.Ticker),
			zap.String("field", string(field)),
			zap.Int("rows", n),
		)
	}
	metrics.ComputationsTotal.WithLabelValues(snap.Ticker, string(snap.ChainOrigin)).Inc()

	report := newReport(snap, res, timeAware, now)

	s.logger.Info("exposure computed",
		zap.String("ticker", report.Ticker),
		zap.Float64("spot", report.Spot),
		zap.String("spotOrigin", string(report.SpotOrigin)),
		zap.String("chainOrigin", string(report.ChainOrigin)),
		zap.Int("strikes", len(report.Bars)),
		zap.Float64("king", report.Headline.King),
		zap.Float64("vanna", report.Headline.Vanna),
		zap.Int("issues", len(report.Issues)),
	)

	return report, nil
}
