package data

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/exposure"
)

type MemoryLoader struct {
	date   string
	data   map[string][]exposure.ChainRow // key: ticker
	logger *zap.Logger
}

// Compile-time interface verification
var _ ChainLoader = (*MemoryLoader)(nil)

func NewMemoryLoader(dataDir, date string, logger *zap.Logger) (*MemoryLoader, error) {
	loader := &MemoryLoader{
		date:   date,
		data:   make(map[string][]exposure.ChainRow),
		logger: logger,
	}

	dateDir := filepath.Join(dataDir, date)

	// Walk the date directory
	err := filepath.Walk(dateDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if name != chainFile && name != compressedChainFile {
			return nil
		}

		// Format: data/{date}/{ticker}/chain.jsonl[.zst]
		rel, _ := filepath.Rel(dateDir, path)
		dir := filepath.Dir(rel)
		if dir == "." || strings.ContainsRune(dir, filepath.Separator) {
			return nil
		}
		ticker := strings.ToUpper(dir)

		if _, ok := loader.data[ticker]; ok {
			logger.Warn("duplicate chain file ignored", zap.String("ticker", ticker), zap.String("path", path))
			return nil
		}

		rows, err := ReadChainFile(path)
		if err != nil {
			logger.Warn("failed to load file", zap.String("path", path), zap.Error(err))
			return nil
		}

		loader.data[ticker] = rows
		logger.Info("loaded chain",
			zap.String("ticker", ticker),
			zap.Int("rows", len(rows)),
		)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walking data directory: %w", err)
	}

	if len(loader.data) == 0 {
		return nil, fmt.Errorf("no chain files found in %s", dateDir)
	}

	return loader, nil
}

// ReadChainFile reads a JSONL chain file, decompressing .zst files.
func ReadChainFile(path string) ([]exposure.ChainRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	return readJSONL(r)
}

func readJSONL(r io.Reader) ([]exposure.ChainRow, error) {
	var rows []exposure.ChainRow
	scanner := bufio.NewScanner(r)

	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec ChainRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		rows = append(rows, rec.Row())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return rows, nil
}

func (m *MemoryLoader) Chain(ticker string) ([]exposure.ChainRow, error) {
	rows, ok := m.data[strings.ToUpper(ticker)]
	if !ok {
		return nil, ErrNotFound
	}
	// callers get their own slice
	return append([]exposure.ChainRow(nil), rows...), nil
}

func (m *MemoryLoader) Tickers() []string {
	tickers := make([]string, 0, len(m.data))
	for k := range m.data {
		tickers = append(tickers, k)
	}
	sort.Strings(tickers)
	return tickers
}

func (m *MemoryLoader) Date() string {
	return m.date
}

func (m *MemoryLoader) Close() error {
	m.data = nil
	return nil
}
