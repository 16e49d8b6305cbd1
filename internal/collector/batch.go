package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"StockScreener/internal/metrics"
	"StockScreener/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// FetchRequest describes what to fetch for every symbol.
type FetchRequest struct {
	Range  model.DateRange
	Adjust model.AdjustMode
}

// BatchStat describes one processed batch.
type BatchStat struct {
	Index     int
	Size      int
	Start     time.Time
	Finish    time.Time
	Succeeded int
	Failed    int
}

// FetchResult accumulates everything a fetch produced, including partial
// results of a cancelled run.
type FetchResult struct {
	// Series holds chronologically ordered bars keyed by full code.
	Series map[string][]model.DailyBar
	// Order lists the keys of Series in resolution order.
	Order     []string
	Failed    []model.FailedSymbol
	Batches   []BatchStat
	Cancelled bool
}

// Bars flattens Series in resolution order.
func (r *FetchResult) Bars() []model.DailyBar {
	var n int
	for _, s := range r.Series {
		n += len(s)
	}
	out := make([]model.DailyBar, 0, n)
	for _, code := range r.Order {
		out = append(out, r.Series[code]...)
	}
	return out
}

// FailureCounts tallies failed symbols per reason.
func (r *FetchResult) FailureCounts() map[model.FailureReason]int {
	out := make(map[model.FailureReason]int)
	for _, f := range r.Failed {
		out[f.Reason]++
	}
	return out
}

// BatchFetcher fetches bars in fixed-size batches. Batches run strictly in
// sequence: batch i+1 starts once every call of batch i has returned and
// Cooldown has elapsed since batch i started.
type BatchFetcher struct {
	Provider    Provider
	BatchSize   int
	Cooldown    time.Duration
	Workers     int
	CallTimeout time.Duration
	MinHistory  int
	Pacer       Pacer
	Metrics     *metrics.Metrics
}

// NewBatchFetcher creates a fetcher with wall-clock pacing.
func NewBatchFetcher(p Provider, batchSize int, cooldown time.Duration, workers int) *BatchFetcher {
	return &BatchFetcher{
		Provider:   p,
		BatchSize:  batchSize,
		Cooldown:   cooldown,
		Workers:    workers,
		MinHistory: model.MinHistory,
		Pacer:      WallPacer{},
	}
}

// Partition splits symbols into consecutive batches of size n; the last may be smaller.
func Partition(symbols []model.Symbol, n int) [][]model.Symbol {
	if n <= 0 {
		n = len(symbols)
	}
	var out [][]model.Symbol
	for i := 0; i < len(symbols); i += n {
		end := i + n
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[i:end])
	}
	return out
}

type outcome struct {
	bars   []model.DailyBar
	reason model.FailureReason
	err    error
}

// Fetch fetches every symbol and never aborts on a symbol-level error.
// When ctx is cancelled the accumulated result is returned together with
// an error wrapping model.ErrCancellationRequested; unprocessed symbols
// are recorded with reason Cancelled.
func (f *BatchFetcher) Fetch(ctx context.Context, symbols []model.Symbol, req FetchRequest) (*FetchResult, error) {
	log := zerolog.Ctx(ctx)
	pacer := f.Pacer
	if pacer == nil {
		pacer = WallPacer{}
	}
	res := &FetchResult{Series: make(map[string][]model.DailyBar, len(symbols))}
	batches := Partition(symbols, f.BatchSize)

	var prevStart time.Time
	for i, batch := range batches {
		if i > 0 && f.Cooldown > 0 {
			if err := pacer.Wait(ctx, prevStart, f.Cooldown); err != nil {
				return f.abandon(ctx, res, batches[i:])
			}
		}
		if ctx.Err() != nil {
			return f.abandon(ctx, res, batches[i:])
		}

		start := pacer.Now()
		outcomes := f.runBatch(ctx, batch, req)
		stat := BatchStat{Index: i, Size: len(batch), Start: start, Finish: pacer.Now()}

		for j, o := range outcomes {
			sym := batch[j]
			if o.reason != "" {
				res.Failed = append(res.Failed, model.FailedSymbol{Symbol: sym, Reason: o.reason, Err: o.err})
				f.Metrics.ObserveSymbol(string(o.reason))
				stat.Failed++
				log.Debug().Str("symbol", sym.FullCode()).Str("reason", string(o.reason)).Err(o.err).Msg("symbol failed")
				continue
			}
			code := sym.FullCode()
			res.Series[code] = o.bars
			res.Order = append(res.Order, code)
			f.Metrics.ObserveSymbol("ok")
			stat.Succeeded++
		}
		res.Batches = append(res.Batches, stat)
		f.Metrics.ObserveBatch(stat.Finish.Sub(stat.Start))
		log.Info().Int("batch", i+1).Int("of", len(batches)).Int("ok", stat.Succeeded).Int("failed", stat.Failed).Msg("batch done")

		if ctx.Err() != nil {
			return f.abandon(ctx, res, batches[i+1:])
		}
		prevStart = start
	}
	return res, nil
}

// runBatch fetches one batch with at most Workers calls in flight. Each
// worker writes only its own slot.
func (f *BatchFetcher) runBatch(ctx context.Context, batch []model.Symbol, req FetchRequest) []outcome {
	outcomes := make([]outcome, len(batch))
	var g errgroup.Group
	workers := f.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for j, sym := range batch {
		if ctx.Err() != nil {
			outcomes[j] = outcome{reason: model.ReasonCancelled, err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			outcomes[j] = f.fetchOne(ctx, sym, req)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (f *BatchFetcher) fetchOne(ctx context.Context, sym model.Symbol, req FetchRequest) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{reason: model.ReasonCancelled, err: err}
	}
	callCtx := ctx
	if f.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.CallTimeout)
		defer cancel()
	}
	bars, err := f.Provider.DailyBars(callCtx, sym, req.Range, req.Adjust)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{reason: model.ReasonCancelled, err: ctx.Err()}
		}
		return outcome{reason: model.ReasonProviderError, err: err}
	}

	series := PrepareSeries(bars)
	minHistory := f.MinHistory
	if minHistory < model.MinHistory {
		minHistory = model.MinHistory
	}
	if len(series) < minHistory {
		return outcome{
			reason: model.ReasonInsufficientHistory,
			err:    fmt.Errorf("%d of %d bars: %w", len(series), minHistory, model.ErrInsufficientHistory),
		}
	}
	return outcome{bars: series}
}

func (f *BatchFetcher) abandon(ctx context.Context, res *FetchResult, rest [][]model.Symbol) (*FetchResult, error) {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	n := 0
	for _, b := range rest {
		for _, sym := range b {
			res.Failed = append(res.Failed, model.FailedSymbol{Symbol: sym, Reason: model.ReasonCancelled, Err: cause})
			f.Metrics.ObserveSymbol(string(model.ReasonCancelled))
			n++
		}
	}
	res.Cancelled = true
	zerolog.Ctx(ctx).Warn().Int("abandoned", n).Err(cause).Msg("fetch cancelled")
	return res, fmt.Errorf("fetch: %w: %w", model.ErrCancellationRequested, cause)
}

// PrepareSeries returns a copy of bars sorted by trade date, with duplicate
// dates collapsed (last one wins) and PrevClose derived from the preceding
// bar. The first bar's PrevClose is unset.
func PrepareSeries(bars []model.DailyBar) []model.DailyBar {
	if len(bars) == 0 {
		return nil
	}
	cp := make([]model.DailyBar, len(bars))
	copy(cp, bars)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].TradeDate.Before(cp[j].TradeDate) })

	out := cp[:0]
	for _, b := range cp {
		if n := len(out); n > 0 && out[n-1].DateKey() == b.DateKey() {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	for i := range out {
		if i == 0 {
			out[i].PrevClose = decimal.NullDecimal{}
			continue
		}
		out[i].PrevClose = decimal.NewNullDecimal(out[i-1].Close)
	}
	return out
}

// IsCancelled reports whether err came from a cancelled fetch.
func IsCancelled(err error) bool { return errors.Is(err, model.ErrCancellationRequested) }
