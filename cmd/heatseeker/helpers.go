package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/scmhub/calendar"
	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/config"
	"github.com/dgnsrekt/heatseeker/internal/dashboard"
	"github.com/dgnsrekt/heatseeker/internal/data"
	"github.com/dgnsrekt/heatseeker/internal/source"
)

const dateLayout = "2006-01-02"

// sourceFlags are shared by commands that compute reports.
type sourceFlags struct {
	apiKey    string
	mode      string
	strict    bool
	timeAware bool
	dataDate  string
}

// newService wires the client, resolver and dashboard service from cfg.
// Chain files are only opened in file mode.
func newService(flags sourceFlags) (*dashboard.Service, source.Mode, func(), error) {
	modeName := flags.mode
	if modeName == "" {
		modeName = cfg.Dashboard.Mode
	}
	mode, err := source.ParseMode(modeName)
	if err != nil {
		return nil, "", nil, err
	}

	cleanup := func() {}
	var files data.ChainLoader
	if mode == source.ModeFile {
		date := flags.dataDate
		if date == "" || date == "latest" {
			date, err = config.DetectLatestDate(cfg.Output.Directory)
			if err != nil {
				return nil, "", nil, err
			}
		}
		loader, err := data.NewMemoryLoader(cfg.Output.Directory, date, logger)
		if err != nil {
			return nil, "", nil, fmt.Errorf("loading chains for %s: %w", date, err)
		}
		logger.Info("chain files loaded", zap.String("date", date), zap.Strings("tickers", loader.Tickers()))
		files = loader
		cleanup = func() { _ = loader.Close() }
	}

	client := api.NewClient(cfg.ClientOptions(), logger)
	resolver := source.NewResolver(client, files, cfg.ResolverConfig(), logger)
	service := dashboard.NewService(resolver, cfg.ExposureOptions(), logger)
	return service, mode, cleanup, nil
}

func (f sourceFlags) request(mode source.Mode) dashboard.Request {
	key := f.apiKey
	if key == "" {
		key = cfg.API.APIKey
	}
	return dashboard.Request{
		Request: source.Request{
			APIKey: key,
			Mode:   mode,
			Strict: f.strict || cfg.Dashboard.Strict,
		},
		TimeAware: f.timeAware || cfg.Exposure.TimeAware,
	}
}

// parseDate returns the snapshot date argument, or today when none is given.
func parseDate(args []string, now time.Time) (string, error) {
	if len(args) == 0 {
		return now.Format(dateLayout), nil
	}
	if _, err := time.Parse(dateLayout, args[0]); err != nil {
		return "", fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
	}
	return args[0], nil
}

// filterMarketDays filters out non-trading days (weekends and NYSE holidays)
// and logs warnings for skipped dates
func filterMarketDays(dates []string, logger *zap.Logger) []string {
	nyse := calendar.XNYS()

	// NYSE operates in Eastern time
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		logger.Warn("failed to load America/New_York timezone, using UTC", zap.Error(err))
		loc = time.UTC
	}

	var marketDays []string
	for _, dateStr := range dates {
		// Parse as noon to ensure correct date matching
		t, err := time.ParseInLocation(dateLayout+" 15:04:05", dateStr+" 12:00:00", loc)
		if err != nil {
			logger.Warn("skipping unparsable date", zap.String("date", dateStr))
			continue
		}
		if nyse.IsBusinessDay(t) {
			marketDays = append(marketDays, dateStr)
		} else {
			logger.Warn("skipping non-market day", zap.String("date", dateStr))
		}
	}
	return marketDays
}

// normalizeTickers upper-cases and validates tickers from the command line.
func normalizeTickers(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	if err := config.ValidateTickers(out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes the headline, any recovered failures and the strike table.
func printReport(w io.Writer, r *dashboard.Report) {
	fmt.Fprintln(w, r.Summary())
	fmt.Fprintf(w, "spot source: %s, chain source: %s, total OI: %d\n",
		r.SpotOrigin, r.ChainOrigin, r.Headline.TotalOpenInterest)
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "warning: %s lookup failed (%s): %s\n", issue.Stage, issue.Kind, issue.Error)
	}
	for field, n := range r.Substitutions {
		fmt.Fprintf(w, "warning: %d rows missing %s, fallback applied\n", n, field)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%10s  %14s\n", "STRIKE", "GEX ($M)")
	for _, b := range r.Bars {
		marker := ""
		switch b.Strike {
		case r.Headline.King:
			marker = "  king"
		case r.Headline.Vanna:
			marker = "  vanna"
		}
		if r.Headline.Gatekeeper != nil && b.Strike == *r.Headline.Gatekeeper {
			marker += "  gatekeeper"
		}
		fmt.Fprintf(w, "%10.2f  %14.3f%s\n", b.Strike, b.Millions, marker)
	}
}
