package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/heatseeker/internal/notify"
	"github.com/dgnsrekt/heatseeker/internal/scan"
)

func scanCmd() *cobra.Command {
	var (
		flags   sourceFlags
		tickers []string
		workers int
		jsonOut bool
		noNotif bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Compute exposure headlines for many tickers",
		Long: `Compute exposure reports for every configured ticker (or --tickers) with a
pool of workers, print one headline per ticker and optionally send them to ntfy.

Examples:
  heatseeker scan
  heatseeker scan --tickers SPY,QQQ,IWM --workers 2 --mode demo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			effective := cfg.Dashboard.Tickers
			if len(tickers) > 0 {
				var err error
				if effective, err = normalizeTickers(tickers); err != nil {
					return err
				}
			}

			if !cmd.Flags().Changed("workers") {
				workers = cfg.Scan.Workers
			}

			service, mode, cleanup, err := newService(flags)
			if err != nil {
				return err
			}
			defer cleanup()

			start := time.Now()
			mgr := scan.NewManager(service, workers, logger)
			result, err := mgr.Execute(ctx, effective, flags.request(mode))
			if err != nil {
				return err
			}
			duration := time.Since(start)

			if jsonOut {
				if err := writeJSON(os.Stdout, result.Reports); err != nil {
					return err
				}
			} else if summary := result.Summary(); summary != "" {
				fmt.Println(summary)
			}

			logger.Info("scan complete",
				zap.String("runID", result.RunID),
				zap.Int("total", result.Total),
				zap.Int("success", result.Success),
				zap.Int("fallback", result.Fallback),
				zap.Int("failed", result.Failed),
				zap.Duration("duration", duration),
			)

			if !noNotif {
				notifier := notify.New(&cfg.Notify, logger)
				if err := notifier.SendScan(ctx, result, duration); err != nil {
					logger.Warn("scan notification failed", zap.Error(err))
				}
			}

			if result.Failed > 0 {
				for _, e := range result.Errors {
					logger.Error("scan error", zap.String("error", e))
				}
				return fmt.Errorf("%d of %d tickers failed", result.Failed, result.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "override tickers from config")
	cmd.Flags().IntVar(&workers, "workers", 3, "concurrent computations (default from config)")
	cmd.Flags().StringVar(&flags.apiKey, "key", "", "market data API key (overrides config)")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "chain source: live, file or demo (default from config)")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "fail tickers instead of falling back")
	cmd.Flags().BoolVar(&flags.timeAware, "time-aware", false, "derive tenors from contract expirations")
	cmd.Flags().StringVar(&flags.dataDate, "date", "latest", "chain file date for --mode file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print reports as JSON")
	cmd.Flags().BoolVar(&noNotif, "no-notify", false, "skip the ntfy notification")

	return cmd
}
