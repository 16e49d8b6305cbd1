// Package universe resolves the tradable symbol set for a selection of boards.
package universe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"StockScreener/internal/collector"
	"StockScreener/internal/model"

	"github.com/rs/zerolog"
)

// Warning records a board whose listing could not be fetched.
type Warning struct {
	Board string
	Err   error
}

func (w Warning) String() string { return w.Board + ": " + w.Err.Error() }

// Universe is an immutable snapshot of resolved symbols.
type Universe struct {
	Symbols  []model.Symbol
	Warnings []Warning
	// Duplicates counts rows dropped because an earlier board already listed them.
	Duplicates int
}

// Resolver builds a Universe from provider listings.
type Resolver struct {
	Provider collector.Provider
}

// NewResolver creates a Resolver.
func NewResolver(p collector.Provider) *Resolver {
	return &Resolver{Provider: p}
}

// Resolve lists every board in order and returns the de-duplicated union.
// A failed board is skipped and recorded as a warning; the call fails with
// model.ErrProviderUnavailable only when no board could be listed.
func (r *Resolver) Resolve(ctx context.Context, boards []model.Board) (*Universe, error) {
	log := zerolog.Ctx(ctx)
	u := &Universe{}
	seen := make(map[model.SymbolKey]bool)
	listed := 0

	for _, b := range boards {
		if err := ctx.Err(); err != nil {
			return u, fmt.Errorf("resolve: %w: %w", model.ErrCancellationRequested, err)
		}
		rows, err := r.Provider.ListBoard(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return u, fmt.Errorf("resolve: %w: %w", model.ErrCancellationRequested, ctx.Err())
			}
			log.Warn().Str("board", b.ID).Err(err).Msg("board listing failed, skipping")
			u.Warnings = append(u.Warnings, Warning{Board: b.ID, Err: err})
			continue
		}
		listed++
		added := 0
		for _, row := range rows {
			code := strings.TrimSpace(row.Code)
			if code == "" {
				continue
			}
			sym := model.Symbol{
				Code:        code,
				Name:        strings.TrimSpace(row.Name),
				Exchange:    b.Exchange,
				Segment:     b.Classify(code),
				Board:       b.ID,
				ListingDate: row.ListingDate,
			}
			if seen[sym.Key()] {
				u.Duplicates++
				continue
			}
			seen[sym.Key()] = true
			if sym.Segment == model.SegmentOther {
				log.Debug().Str("board", b.ID).Str("code", code).Msg("code outside board prefixes")
			}
			u.Symbols = append(u.Symbols, sym)
			added++
		}
		log.Info().Str("board", b.ID).Int("rows", len(rows)).Int("added", added).Msg("board resolved")
	}

	if listed == 0 && len(boards) > 0 {
		errs := make([]error, len(u.Warnings))
		for i, w := range u.Warnings {
			errs[i] = w.Err
		}
		return u, fmt.Errorf("resolve: every board failed: %w: %w", model.ErrProviderUnavailable, errors.Join(errs...))
	}
	return u, nil
}

// ByBoard counts symbols per board ID.
func (u *Universe) ByBoard() map[string]int {
	out := make(map[string]int)
	for _, s := range u.Symbols {
		out[s.Board]++
	}
	return out
}
