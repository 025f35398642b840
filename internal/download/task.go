package download

import (
	"fmt"

	"github.com/dgnsrekt/heatseeker/internal/data"
)

// Task fetches one ticker's live chain for a date.
type Task struct {
	Ticker string
	Date   string
}

func (t Task) OutputPath(baseDir string, compress bool) string {
	return data.ChainPath(baseDir, t.Date, t.Ticker, compress)
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s", t.Date, t.Ticker)
}

type TaskResult struct {
	Task      Task
	Success   bool
	Skipped   bool
	NotFound  bool
	Rows      int
	BytesSize int64
	Error     error
}
