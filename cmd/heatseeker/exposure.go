package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func exposureCmd() *cobra.Command {
	var (
		flags   sourceFlags
		spot    float64
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "exposure TICKER",
		Short: "Compute net gamma exposure by strike for one ticker",
		Long: `Compute net dealer gamma exposure by strike and report the king, vanna
and gatekeeper strikes.

Without an API key (or when the market data API fails) the spot falls back to
the configured default and the chain to synthetic demo data, unless --strict.

Examples:
  # Live data, key from HEATSEEKER_API_KEY
  heatseeker exposure SPY

  # Manual spot with a synthetic chain
  heatseeker exposure SPY --mode demo --spot 683.39

  # Chain files from the latest downloaded date, tenors from expirations
  heatseeker exposure QQQ --mode file --time-aware --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tickers, err := normalizeTickers(args)
			if err != nil {
				return err
			}

			service, mode, cleanup, err := newService(flags)
			if err != nil {
				return err
			}
			defer cleanup()

			req := flags.request(mode)
			req.Ticker = tickers[0]
			if cmd.Flags().Changed("spot") {
				req.Spot = &spot
			}

			report, err := service.Compute(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("computing %s: %w", req.Ticker, err)
			}

			if jsonOut {
				return writeJSON(os.Stdout, report)
			}
			printReport(os.Stdout, report)
			return nil
		},
	}

	cmd.Flags().Float64Var(&spot, "spot", 0, "manual spot price (skips the spot lookup)")
	cmd.Flags().StringVar(&flags.apiKey, "key", "", "market data API key (overrides config)")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "chain source: live, file or demo (default from config)")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "fail instead of falling back to defaults or demo data")
	cmd.Flags().BoolVar(&flags.timeAware, "time-aware", false, "derive tenors from contract expirations")
	cmd.Flags().StringVar(&flags.dataDate, "date", "latest", "chain file date for --mode file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")

	return cmd
}
