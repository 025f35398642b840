// Package scan computes exposure reports for many tickers with a fixed pool
// of workers.
package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/dashboard"
)

// Computer interface for testability
type Computer interface {
	Compute(ctx context.Context, req dashboard.Request) (*dashboard.Report, error)
}

type Manager struct {
	service Computer
	workers int
	logger  *zap.Logger
}

type TaskResult struct {
	Ticker string
	Report *dashboard.Report
	Error  error
}

// BatchResult summarizes a scan. Reports keep the order tickers were given in.
type BatchResult struct {
	RunID string
	Total int
	// Success counts reports built entirely from the requested source.
	Success int
	// Fallback counts reports that needed a default spot or synthetic chain.
	Fallback int
	Failed   int
	Reports  []*dashboard.Report
	Errors   []string
}

func NewManager(service Computer, workers int, logger *zap.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		service: service,
		workers: workers,
		logger:  logger,
	}
}

// Execute computes a report for every ticker, applying template to each
// request. Individual failures are counted, not returned.
func (m *Manager) Execute(ctx context.Context, tickers []string, template dashboard.Request) (*BatchResult, error) {
	result := &BatchResult{RunID: uuid.NewString(), Total: len(tickers)}

	if len(tickers) == 0 {
		return result, nil
	}

	m.logger.Info("scan started",
		zap.String("runID", result.RunID),
		zap.Strings("tickers", tickers),
		zap.Int("workers", m.workers),
	)

	jobs := make(chan string, len(tickers))
	results := make(chan TaskResult, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx, template, jobs, results)
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range tickers {
			select {
			case <-ctx.Done():
				return
			case jobs <- t:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	byTicker := make(map[string]*dashboard.Report, len(tickers))
	for r := range results {
		switch {
		case r.Error != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Ticker, r.Error))
		case len(r.Report.Issues) > 0:
			result.Fallback++
			byTicker[r.Ticker] = r.Report
		default:
			result.Success++
			byTicker[r.Ticker] = r.Report
		}
	}

	for _, t := range tickers {
		if report, ok := byTicker[t]; ok {
			result.Reports = append(result.Reports, report)
		}
	}

	m.logger.Info("scan finished",
		zap.String("runID", result.RunID),
		zap.Int("success", result.Success),
		zap.Int("fallback", result.Fallback),
		zap.Int("failed", result.Failed),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (m *Manager) worker(ctx context.Context, template dashboard.Request, jobs <-chan string, results chan<- TaskResult) {
	for ticker := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req := template
		req.Ticker = ticker
		report, err := m.service.Compute(ctx, req)
		if err != nil {
			m.logger.Warn("scan ticker failed", zap.String("ticker", ticker), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case results <- TaskResult{Ticker: ticker, Report: report, Error: err}:
		}
	}
}

// Summary renders one headline line per report.
func (r *BatchResult) Summary() string {
	var sb strings.Builder
	for _, report := range r.Reports {
		sb.WriteString(report.Summary())
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
