package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/heatseeker/internal/download"
	"github.com/dgnsrekt/heatseeker/internal/scan"
)

const maxListedErrors = 3

// FormatScanMessage lists the headline strikes of every scanned ticker.
func FormatScanMessage(result *scan.BatchResult, duration time.Duration) string {
	var sb strings.Builder

	if summary := result.Summary(); summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("Tickers: %d (ok %d, fallback %d, failed %d)\n",
		result.Total, result.Success, result.Fallback, result.Failed))
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Millisecond)))

	writeErrors(&sb, result.Errors)
	return sb.String()
}

// FormatSuccessMessage creates a download success notification body.
func FormatSuccessMessage(result *download.BatchResult, duration time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Total: %d chains\n", result.Total))
	sb.WriteString(fmt.Sprintf("Success: %d (%d rows)\n", result.Success, result.Rows))
	sb.WriteString(fmt.Sprintf("Skipped: %d\n", result.Skipped))
	sb.WriteString(fmt.Sprintf("Not Found: %d\n", result.NotFound))
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	return sb.String()
}

// FormatFailureMessage creates a download failure notification body.
func FormatFailureMessage(result *download.BatchResult, duration time.Duration, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Total: %d chains\n", result.Total))
	sb.WriteString(fmt.Sprintf("Success: %d\n", result.Success))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", result.Failed))
	sb.WriteString(fmt.Sprintf("Skipped: %d\n", result.Skipped))
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	writeErrors(&sb, result.Errors)
	return sb.String()
}

// writeErrors appends the first few error messages.
func writeErrors(sb *strings.Builder, errs []string) {
	if len(errs) == 0 {
		return
	}
	sb.WriteString("\n\nErrors:\n")
	limit := min(len(errs), maxListedErrors)
	for i := 0; i < limit; i++ {
		sb.WriteString(fmt.Sprintf("- %s\n", errs[i]))
	}
	if len(errs) > maxListedErrors {
		sb.WriteString(fmt.Sprintf("... and %d more errors", len(errs)-maxListedErrors))
	}
}
