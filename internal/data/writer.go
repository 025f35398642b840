package data

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/heatseeker/internal/exposure"
)

// ChainPath returns the file path for a ticker's chain under baseDir/date.
func ChainPath(baseDir, date, ticker string, compress bool) string {
	name := chainFile
	if compress {
		name = compressedChainFile
	}
	return filepath.Join(baseDir, date, ticker, name)
}

// WriteChain writes rows as JSONL to w, zstd-compressed when compress is set.
func WriteChain(w io.Writer, rows []exposure.ChainRow, compress bool) error {
	var enc *zstd.Encoder
	if compress {
		var err error
		enc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		w = enc
	}

	jsonEnc := json.NewEncoder(w)
	for i, row := range rows {
		if err := jsonEnc.Encode(RecordFromRow(row)); err != nil {
			if enc != nil {
				_ = enc.Close()
			}
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flushing zstd: %w", err)
		}
	}
	return nil
}
