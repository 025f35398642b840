package data

import (
	"errors"

	"github.com/dgnsrekt/heatseeker/internal/exposure"
)

var (
	ErrNotFound = errors.New("data not found")
)

const (
	chainFile           = "chain.jsonl"
	compressedChainFile = "chain.jsonl.zst"
)

// ChainLoader provides options chains stored on disk for a single date
type ChainLoader interface {
	// Chain returns the chain rows recorded for ticker
	Chain(ticker string) ([]exposure.ChainRow, error)

	// Tickers returns all loaded tickers, sorted
	Tickers() []string

	// Date returns the date directory the loader was built from
	Date() string

	// Close releases any resources
	Close() error
}
