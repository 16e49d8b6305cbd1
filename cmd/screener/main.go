package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

// rootCmd is the base command for the screener CLI.
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "A-share moving-average screener",
	Long: `screener resolves the A-share universe for the selected boards, fetches
daily bars in rate-limited batches, flags symbols whose close sits above a
stacked SMA5 > SMA10 > SMA20, and upserts symbols and bars into SQL storage.

Example usage:
  screener init-db
  screener universe --boards sh_main,sz_main
  screener scan --boards 1,2 --start 2024-03-01 --end 2024-04-30
  screener serve`,
	SilenceUsage: true,
}

func init() {
	defaultConfig := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override log format: console or json")

	rootCmd.AddCommand(initDBCmd, universeCmd, scanCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
