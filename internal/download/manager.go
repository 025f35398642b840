package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/data"
	"github.com/dgnsrekt/heatseeker/internal/staging"
)

type Manager struct {
	client   api.Client
	staging  *staging.Area
	apiKey   string
	compress bool
	workers  int
	logger   *zap.Logger
}

type BatchResult struct {
	RunID    string
	Total    int
	Success  int
	Skipped  int
	NotFound int
	Failed   int
	Rows     int
	Errors   []string
}

func NewManager(client api.Client, staging *staging.Area, apiKey string, compress bool, workers int, logger *zap.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		client:   client,
		staging:  staging,
		apiKey:   apiKey,
		compress: compress,
		workers:  workers,
		logger:   logger,
	}
}

func (m *Manager) Execute(ctx context.Context, tasks []Task) (*BatchResult, error) {
	result := &BatchResult{RunID: uuid.NewString(), Total: len(tasks)}

	if len(tasks) == 0 {
		return result, nil
	}

	m.logger.Info("download batch started",
		zap.String("runID", result.RunID),
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", m.workers),
	)

	jobs := make(chan Task, len(tasks))
	results := make(chan TaskResult, len(tasks))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx, jobs, results)
		}()
	}

	// Send jobs
	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case <-ctx.Done():
				return
			case jobs <- task:
			}
		}
	}()

	// Wait for workers and close results
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	for r := range results {
		switch {
		case r.Skipped:
			result.Skipped++
		case r.NotFound:
			result.NotFound++
		case r.Success:
			result.Success++
			result.Rows += r.Rows
		default:
			result.Failed++
			if r.Error != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Task, r.Error))
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (m *Manager) worker(ctx context.Context, jobs <-chan Task, results chan<- TaskResult) {
	for task := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := m.processTask(ctx, task)

		select {
		case <-ctx.Done():
			return
		case results <- result:
		}
	}
}

func (m *Manager) processTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{Task: task}

	// Either encoding already on disk counts as done (resume)
	for _, compressed := range []bool{false, true} {
		if _, err := os.Stat(task.OutputPath(m.staging.Base(), compressed)); err == nil {
			m.logger.Debug("skipping existing chain", zap.String("task", task.String()))
			result.Skipped = true
			result.Success = true
			return result
		}
	}

	m.logger.Info("downloading chain", zap.String("task", task.String()))

	rows, err := m.client.Chain(ctx, m.apiKey, task.Ticker)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			m.logger.Debug("not found", zap.String("task", task.String()))
			result.NotFound = true
			return result
		}
		result.Error = err
		return result
	}

	stagingPath := task.OutputPath(m.staging.Root(), m.compress)
	size, err := m.staging.WriteChain(stagingPath, func(w io.Writer) error {
		return data.WriteChain(w, rows, m.compress)
	})
	if err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	result.Rows = len(rows)
	result.BytesSize = size
	m.logger.Info("downloaded chain",
		zap.String("task", task.String()),
		zap.Int("rows", len(rows)),
		zap.Int64("bytes", size),
	)

	return result
}
