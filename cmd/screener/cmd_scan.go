package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"StockScreener/internal/notifier"
	"StockScreener/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	scanBoards    string
	scanStart     string
	scanEnd       string
	scanNoPersist bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the full screening pipeline once",
	Long: `Resolve the universe, fetch daily bars in paced batches, screen for a
close above stacked SMA5 > SMA10 > SMA20, persist symbols and bars, and
print the recommendation listing followed by the failure summary.

Symbol failures do not change the exit status. Ctrl+C stops the run; the
chunk being written commits and the rest is reported as abandoned.

Example usage:
  screener scan
  screener scan --boards sz_chinext --no-persist
  screener scan --start 2024-03-01 --end 2024-04-30`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanBoards, "boards", "", "Comma-separated board IDs or numbers (default screen.boards)")
	scanCmd.Flags().StringVar(&scanStart, "start", "", "Start date YYYY-MM-DD (default end - fetch.lookback_days)")
	scanCmd.Flags().StringVar(&scanEnd, "end", "", "End date YYYY-MM-DD (default today)")
	scanCmd.Flags().BoolVar(&scanNoPersist, "no-persist", false, "Screen only, do not write to storage")
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	boards, err := selectBoards(scanBoards, a.cfg.Screen.Boards)
	if err != nil {
		return err
	}
	req := a.request(boards, !scanNoPersist)(time.Now())
	if req.Range, err = resolveRange(req.Range, scanStart, scanEnd); err != nil {
		return err
	}

	rep, err := a.pipeline.Run(ctx, req)
	return writeScanResult(cmd.OutOrStdout(), rep, err)
}

// writeScanResult prints the report. A failed run still prints its
// failure summary before the error is returned.
func writeScanResult(w io.Writer, rep *pipeline.Report, err error) error {
	if err != nil {
		if rep != nil {
			fmt.Fprint(w, notifier.FormatFailureSummary(rep))
		}
		return err
	}
	fmt.Fprint(w, notifier.FormatReport(rep))
	return nil
}
