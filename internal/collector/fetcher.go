package collector

import (
	"context"
	"errors"
	"time"

	"StockScreener/internal/model"
)

// ErrUnsupported is returned by providers that lack a capability.
var ErrUnsupported = errors.New("operation not supported by provider")

// ListingRow is one raw row of a board listing.
type ListingRow struct {
	Code        string
	Name        string
	ListingDate time.Time
}

// Provider is the market-data capability used by the resolver and the
// batch fetcher. Implementations handle their own request construction,
// parsing and retries; errors returned after retries are exhausted wrap
// model.ErrProviderUnavailable.
type Provider interface {
	Name() string
	ListBoard(ctx context.Context, board model.Board) ([]ListingRow, error)
	// DailyBars returns bars for [r.Start, r.End]. Ordering and
	// previous close are not guaranteed; see PrepareSeries.
	DailyBars(ctx context.Context, sym model.Symbol, r model.DateRange, adjust model.AdjustMode) ([]model.DailyBar, error)
}
