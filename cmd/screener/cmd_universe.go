package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"StockScreener/internal/model"

	"github.com/spf13/cobra"
)

var universeBoards string

var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Resolve the symbol universe and upsert stock_basic",
	Long: `Resolve the listed symbols of the selected boards and upsert them into
stock_basic. Boards accept IDs or menu numbers:
  1 sh_main  2 sh_star  3 sz_main  4 sz_chinext  5 bj

Example usage:
  screener universe                     # every board
  screener universe --boards 1,3        # Shanghai and Shenzhen main boards`,
	RunE: runUniverse,
}

func init() {
	universeCmd.Flags().StringVar(&universeBoards, "boards", "", "Comma-separated board IDs or numbers (default screen.boards)")
}

func runUniverse(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	boards, err := selectBoards(universeBoards, a.cfg.Screen.Boards)
	if err != nil {
		return err
	}
	rep, err := a.pipeline.SyncUniverse(ctx, boards)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "股票 %d | 入库 %d\n", rep.UniverseSize, rep.SymbolsPersisted)
	for _, w := range rep.Warnings {
		fmt.Fprintf(out, "板块失败 %s\n", w.String())
	}
	if rep.PersistErr != nil {
		fmt.Fprintf(out, "入库失败: %v\n", rep.PersistErr)
	}
	return nil
}

func selectBoards(flag, def string) ([]model.Board, error) {
	if flag == "" {
		flag = def
	}
	boards, err := model.ParseBoards(flag)
	if err != nil {
		return nil, fmt.Errorf("boards: %w", err)
	}
	return boards, nil
}
