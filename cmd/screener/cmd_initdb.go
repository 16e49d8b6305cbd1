package main

import (
	"context"
	"fmt"

	"StockScreener/internal/recorder"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database and tables if they do not exist",
	Long: `Create the configured database (postgres and mysql) and the stock_basic and
stock_daily tables with their unique keys and indexes. Safe to run repeatedly.`,
	RunE: runInitDB,
}

func runInitDB(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rec, err := openRecorder(cfg, nil)
	if err != nil {
		return err
	}
	defer rec.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.QueryTimeout*4)
	defer cancel()
	if err := rec.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap storage: %w", err)
	}
	if sr, ok := rec.(*recorder.SQLRecorder); ok {
		symbols, bars, err := sr.CountRows(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("dialect", string(sr.Dialect())).Int("stock_basic", symbols).Int("stock_daily", bars).Msg("storage ready")
	}
	return nil
}
