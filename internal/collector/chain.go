package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"StockScreener/internal/model"

	"github.com/rs/zerolog"
)

// Chain tries providers in order and returns the first success.
// Providers answering ErrUnsupported are skipped silently.
type Chain struct {
	Providers []Provider
}

// NewChain builds a failover chain.
func NewChain(providers ...Provider) *Chain {
	return &Chain{Providers: providers}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.Providers))
	for i, p := range c.Providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

func (c *Chain) ListBoard(ctx context.Context, board model.Board) ([]ListingRow, error) {
	var errs []error
	for _, p := range c.Providers {
		rows, err := p.ListBoard(ctx, board)
		if err == nil {
			return rows, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		zerolog.Ctx(ctx).Warn().Str("provider", p.Name()).Str("board", board.ID).Err(err).Msg("listing failed, trying next provider")
		errs = append(errs, err)
	}
	return nil, c.exhausted("list "+board.ID, errs)
}

func (c *Chain) DailyBars(ctx context.Context, sym model.Symbol, r model.DateRange, adjust model.AdjustMode) ([]model.DailyBar, error) {
	var errs []error
	for _, p := range c.Providers {
		bars, err := p.DailyBars(ctx, sym, r, adjust)
		if err == nil {
			return bars, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		zerolog.Ctx(ctx).Debug().Str("provider", p.Name()).Str("symbol", sym.FullCode()).Err(err).Msg("bars failed, trying next provider")
		errs = append(errs, err)
	}
	return nil, c.exhausted(sym.FullCode(), errs)
}

func (c *Chain) exhausted(what string, errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%s: no provider supports it: %w", what, ErrUnsupported)
	}
	return fmt.Errorf("%s: all providers failed: %w", what, errors.Join(errs...))
}
