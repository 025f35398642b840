package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/download"
	"github.com/dgnsrekt/heatseeker/internal/notify"
	"github.com/dgnsrekt/heatseeker/internal/staging"
)

func downloadCmd() *cobra.Command {
	var (
		dryRun   bool
		tickers  []string
		apiKey   string
		compress bool
	)

	cmd := &cobra.Command{
		Use:   "download [YYYY-MM-DD]",
		Short: "Record live options chains as chain files",
		Long: `Fetch the current options chain snapshot for each ticker and store it under
{output}/{date}/{TICKER}/chain.jsonl[.zst] for later use with --mode file.

The snapshot API only serves current data, so the date only names the output
folder. It defaults to today and non-market days are refused.

Examples:
  heatseeker download
  heatseeker download --tickers SPY,QQQ --compress 2025-11-14
  heatseeker download --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			date, err := parseDate(args, time.Now())
			if err != nil {
				return err
			}
			if len(filterMarketDays([]string{date}, logger)) == 0 {
				return fmt.Errorf("%s is not a market day", date)
			}

			effective := cfg.Dashboard.Tickers
			if len(tickers) > 0 {
				if effective, err = normalizeTickers(tickers); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("compress") {
				compress = cfg.Output.Compress
			}
			if apiKey == "" {
				apiKey = cfg.API.APIKey
			}

			tasks := make([]download.Task, 0, len(effective))
			for _, t := range effective {
				tasks = append(tasks, download.Task{Ticker: t, Date: date})
			}

			logger.Info("generated tasks", zap.Int("count", len(tasks)))

			if dryRun {
				for _, t := range tasks {
					fmt.Printf("Would download: %s -> %s\n", t, t.OutputPath(cfg.Output.Directory, compress))
				}
				return nil
			}

			client := api.NewClient(cfg.ClientOptions(), logger)
			stage := staging.New(cfg.Output.Directory)
			if err := stage.Prepare(date); err != nil {
				return fmt.Errorf("preparing staging: %w", err)
			}

			dlMgr := download.NewManager(client, stage, apiKey, compress, cfg.Scan.Workers, logger)
			notifier := notify.New(&cfg.Notify, logger)

			start := time.Now()
			result, err := dlMgr.Execute(ctx, tasks)
			duration := time.Since(start)
			if err != nil {
				_ = notifier.SendFailure(ctx, result, date, duration, err)
				return err
			}

			if result.Success > 0 {
				moved, err := stage.Commit(date)
				if err != nil {
					logger.Warn("failed to commit staged chains", zap.String("date", date), zap.Error(err))
				} else {
					logger.Debug("committed staged chains", zap.String("date", date), zap.Int("chains", moved))
				}
			}
			if err := stage.Discard(date); err != nil {
				logger.Warn("failed to cleanup staging", zap.String("date", date), zap.Error(err))
			}

			logger.Info("download complete",
				zap.String("runID", result.RunID),
				zap.Int("total", result.Total),
				zap.Int("success", result.Success),
				zap.Int("rows", result.Rows),
				zap.Int("skipped", result.Skipped),
				zap.Int("not_found", result.NotFound),
				zap.Int("failed", result.Failed),
			)

			if result.Failed > 0 {
				for _, e := range result.Errors {
					logger.Error("download error", zap.String("error", e))
				}
				err := fmt.Errorf("%d downloads failed", result.Failed)
				if nerr := notifier.SendFailure(ctx, result, date, duration, err); nerr != nil {
					logger.Warn("download notification failed", zap.Error(nerr))
				}
				return err
			}

			if err := notifier.SendSuccess(ctx, result, date, duration); err != nil {
				logger.Warn("download notification failed", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be downloaded")
	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "override tickers from config")
	cmd.Flags().StringVar(&apiKey, "key", "", "market data API key (overrides config)")
	cmd.Flags().BoolVar(&compress, "compress", false, "write zstd-compressed chain files (default from config)")

	return cmd
}
