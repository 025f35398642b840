package config

import (
	"fmt"
	"strings"
)

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	InvalidTickers []string
	Problems       []string
}

func (e *ValidationErrors) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.InvalidTickers) > 0 || len(e.Problems) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if len(e.InvalidTickers) > 0 {
		sb.WriteString("\nInvalid tickers:\n")
		for _, t := range e.InvalidTickers {
			sb.WriteString(fmt.Sprintf("  - %q\n", t))
		}
		sb.WriteString("\nTickers are 1-6 upper-case letters (dots allowed), e.g. SPY, BRK.B\n")
	}

	if len(e.Problems) > 0 {
		sb.WriteString("\nInvalid settings:\n")
		for _, p := range e.Problems {
			sb.WriteString(fmt.Sprintf("  - %s\n", p))
		}
	}

	return sb.String()
}

// ValidateTickers checks a ticker list given on the command line
func ValidateTickers(tickers []string) error {
	errs := &ValidationErrors{}
	for _, t := range tickers {
		if !IsValidTicker(t) {
			errs.InvalidTickers = append(errs.InvalidTickers, t)
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}
