package collector

import (
	"context"
	"time"

	"StockScreener/internal/metrics"
	"StockScreener/internal/model"
)

// instrumented records call counts and latency for a provider.
type instrumented struct {
	Provider
	m *metrics.Metrics
}

// Instrument wraps p so every call is observed by m. A nil m returns p.
func Instrument(p Provider, m *metrics.Metrics) Provider {
	if m == nil {
		return p
	}
	return &instrumented{Provider: p, m: m}
}

func (i *instrumented) ListBoard(ctx context.Context, board model.Board) ([]ListingRow, error) {
	start := time.Now()
	rows, err := i.Provider.ListBoard(ctx, board)
	i.m.ObserveProviderCall(i.Name(), "list", err, time.Since(start))
	return rows, err
}

func (i *instrumented) DailyBars(ctx context.Context, sym model.Symbol, r model.DateRange, adjust model.AdjustMode) ([]model.DailyBar, error) {
	start := time.Now()
	bars, err := i.Provider.DailyBars(ctx, sym, r, adjust)
	i.m.ObserveProviderCall(i.Name(), "bars", err, time.Since(start))
	return bars, err
}
