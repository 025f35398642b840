package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/data"
	"github.com/dgnsrekt/heatseeker/internal/exposure"
)

var (
	ErrReloadInProgress = errors.New("reload already in progress")
	ErrInvalidDate      = errors.New("invalid date format (expected YYYY-MM-DD)")
	ErrDateNotFound     = errors.New("date not found")
)

// LoaderFunc opens the chain files recorded for date.
type LoaderFunc func(dataDir, date string) (data.ChainLoader, error)

// ReloadManager serves chain files for one date and swaps them for another
// date's on demand. It satisfies data.ChainLoader so the source resolver can
// hold it directly.
type ReloadManager struct {
	dataDir string
	load    LoaderFunc
	logger  *zap.Logger

	reloadMu sync.Mutex // prevents concurrent reloads

	mu       sync.RWMutex
	current  data.ChainLoader
	loadedAt time.Time
}

var _ data.ChainLoader = (*ReloadManager)(nil)

// NewReloadManager wraps an already opened loader.
func NewReloadManager(initial data.ChainLoader, dataDir string, load LoaderFunc, logger *zap.Logger) *ReloadManager {
	return &ReloadManager{
		dataDir:  dataDir,
		load:     load,
		logger:   logger,
		current:  initial,
		loadedAt: time.Now(),
	}
}

// MemoryLoaderFunc opens chain files fully into memory.
func MemoryLoaderFunc(logger *zap.Logger) LoaderFunc {
	return func(dataDir, date string) (data.ChainLoader, error) {
		return data.NewMemoryLoader(dataDir, date, logger)
	}
}

func (rm *ReloadManager) Chain(ticker string) ([]exposure.ChainRow, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.current.Chain(ticker)
}

func (rm *ReloadManager) Tickers() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.current.Tickers()
}

func (rm *ReloadManager) Date() string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.current.Date()
}

func (rm *ReloadManager) LoadedAt() time.Time {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.loadedAt
}

func (rm *ReloadManager) Close() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.current.Close()
}

// ReloadResult contains the result of a successful reload operation.
type ReloadResult struct {
	PreviousDate  string    `json:"previous_date"`
	NewDate       string    `json:"new_date"`
	LoadedAt      time.Time `json:"loaded_at"`
	TickersLoaded int       `json:"tickers_loaded"`
}

// Reload loads the chain files for newDate and swaps them in.
// On error the current files stay in place.
func (rm *ReloadManager) Reload(newDate string) (*ReloadResult, error) {
	if !rm.reloadMu.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer rm.reloadMu.Unlock()

	previousDate := rm.Date()

	rm.logger.Info("starting chain reload",
		zap.String("previousDate", previousDate),
		zap.String("newDate", newDate),
	)

	if !isValidDateFormat(newDate) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDate, newDate)
	}

	info, err := os.Stat(filepath.Join(rm.dataDir, newDate))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrDateNotFound, newDate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check date directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDateNotFound, newDate)
	}

	newLoader, err := rm.load(rm.dataDir, newDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load chains for %s: %w", newDate, err)
	}

	tickers := newLoader.Tickers()
	if len(tickers) == 0 {
		if closeErr := newLoader.Close(); closeErr != nil {
			rm.logger.Warn("failed to close new loader after empty load", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("%w: no chain files for %s", ErrDateNotFound, newDate)
	}

	rm.mu.Lock()
	old := rm.current
	rm.current = newLoader
	rm.loadedAt = time.Now()
	loadedAt := rm.loadedAt
	rm.mu.Unlock()

	if err := old.Close(); err != nil {
		rm.logger.Warn("failed to close old loader", zap.Error(err))
	}

	rm.logger.Info("chain reload complete",
		zap.String("previousDate", previousDate),
		zap.String("newDate", newDate),
		zap.Int("tickersLoaded", len(tickers)),
	)

	return &ReloadResult{
		PreviousDate:  previousDate,
		NewDate:       newDate,
		LoadedAt:      loadedAt,
		TickersLoaded: len(tickers),
	}, nil
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func isValidDateFormat(date string) bool {
	return datePattern.MatchString(date)
}
