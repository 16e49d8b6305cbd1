// Package pipeline sequences resolve, fetch, screen and persist for one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockScreener/internal/collector"
	"StockScreener/internal/logx"
	"StockScreener/internal/metrics"
	"StockScreener/internal/model"
	"StockScreener/internal/recorder"
	"StockScreener/internal/strategy"
	"StockScreener/internal/universe"

	"github.com/rs/zerolog"
)

// Request selects what one run covers.
type Request struct {
	Boards  []model.Board
	Range   model.DateRange
	Adjust  model.AdjustMode
	Persist bool
}

// Report is everything a run produced. Each run builds its own; nothing
// is shared between runs.
type Report struct {
	RunID            string
	Boards           []string
	Range            model.DateRange
	StartedAt        time.Time
	FinishedAt       time.Time
	UniverseSize     int
	Warnings         []universe.Warning
	FetchedSymbols   int
	BarsFetched      int
	Failures         []model.FailedSymbol
	SymbolsPersisted int
	BarsPersisted    int
	BarsAbandoned    int
	PersistErr       error
	Cancelled        bool
	Recommendations  model.RecommendationSet
}

// FailureCounts tallies failures per reason.
func (r *Report) FailureCounts() map[model.FailureReason]int {
	out := make(map[model.FailureReason]int)
	for _, f := range r.Failures {
		out[f.Reason]++
	}
	return out
}

// Status summarises the run: ok, partial or cancelled.
func (r *Report) Status() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case len(r.Failures) > 0 || len(r.Warnings) > 0 || r.PersistErr != nil:
		return "partial"
	}
	return "ok"
}

// Pipeline wires the resolver, batch fetcher and recorder.
type Pipeline struct {
	Resolver *universe.Resolver
	Fetcher  *collector.BatchFetcher
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// New creates a pipeline; a nil recorder disables persistence.
func New(res *universe.Resolver, f *collector.BatchFetcher, rec recorder.Recorder, m *metrics.Metrics) *Pipeline {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Pipeline{Resolver: res, Fetcher: f, Recorder: rec, Metrics: m, Now: time.Now}
}

func (p *Pipeline) begin(ctx context.Context, kind string, req Request) (context.Context, *Report) {
	ctx, id := logx.WithRun(ctx, kind)
	rep := &Report{
		RunID:           id,
		Range:           req.Range,
		StartedAt:       p.Now(),
		Recommendations: model.RecommendationSet{},
	}
	for _, b := range req.Boards {
		rep.Boards = append(rep.Boards, b.ID)
	}
	return ctx, rep
}

// Run resolves the universe, fetches bars, screens them and, when
// req.Persist is set, upserts symbols and bars. Symbol, board and
// persistence failures are recorded in the report; the returned error is
// non-nil only when no universe could be resolved at all. Cancellation
// yields a partial report with Cancelled set.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	ctx, rep := p.begin(ctx, "scan", req)
	log := zerolog.Ctx(ctx)
	defer p.finish(ctx, rep)

	u, err := p.Resolver.Resolve(ctx, req.Boards)
	if u != nil {
		rep.UniverseSize = len(u.Symbols)
		rep.Warnings = u.Warnings
	}
	if err != nil {
		if errors.Is(err, model.ErrCancellationRequested) {
			rep.Cancelled = true
			return rep, nil
		}
		return rep, err
	}
	log.Info().Int("symbols", rep.UniverseSize).Int("warnings", len(rep.Warnings)).Msg("universe resolved")

	if req.Persist {
		p.persistSymbols(ctx, rep, u.Symbols)
	}

	res, err := p.Fetcher.Fetch(ctx, u.Symbols, collector.FetchRequest{Range: req.Range, Adjust: req.Adjust})
	if err != nil && !errors.Is(err, model.ErrCancellationRequested) {
		return rep, fmt.Errorf("fetch: %w", err)
	}
	rep.Cancelled = res.Cancelled
	rep.Failures = res.Failed
	rep.FetchedSymbols = len(res.Series)
	bars := res.Bars()
	rep.BarsFetched = len(bars)

	rep.Recommendations = strategy.Screen(res.Series)
	log.Info().Int("recommended", len(rep.Recommendations)).Int("screened", len(res.Series)).Msg("screen done")

	if req.Persist && len(bars) > 0 {
		wr, err := p.Recorder.UpsertBars(ctx, bars)
		rep.BarsPersisted = wr.Rows
		rep.BarsAbandoned = wr.Abandoned
		if err != nil {
			rep.PersistErr = errors.Join(rep.PersistErr, err)
			log.Error().Err(err).Int("committed", wr.Rows).Msg("bar persistence incomplete")
		}
	}
	return rep, nil
}

// SyncUniverse resolves the boards and upserts stock_basic only.
func (p *Pipeline) SyncUniverse(ctx context.Context, boards []model.Board) (*Report, error) {
	ctx, rep := p.begin(ctx, "universe", Request{Boards: boards, Persist: true})
	defer p.finish(ctx, rep)

	u, err := p.Resolver.Resolve(ctx, boards)
	if u != nil {
		rep.UniverseSize = len(u.Symbols)
		rep.Warnings = u.Warnings
	}
	if err != nil {
		if errors.Is(err, model.ErrCancellationRequested) {
			rep.Cancelled = true
			return rep, nil
		}
		return rep, err
	}
	p.persistSymbols(ctx, rep, u.Symbols)
	return rep, nil
}

func (p *Pipeline) persistSymbols(ctx context.Context, rep *Report, symbols []model.Symbol) {
	wr, err := p.Recorder.UpsertSymbols(ctx, symbols)
	rep.SymbolsPersisted = wr.Rows
	if err != nil {
		rep.PersistErr = errors.Join(rep.PersistErr, err)
		zerolog.Ctx(ctx).Error().Err(err).Msg("symbol persistence incomplete")
	}
}

func (p *Pipeline) finish(ctx context.Context, rep *Report) {
	rep.FinishedAt = p.Now()
	p.Metrics.ObserveRun(rep.Status(), len(rep.Recommendations), rep.FinishedAt)
	zerolog.Ctx(ctx).Info().
		Str("status", rep.Status()).
		Int("universe", rep.UniverseSize).
		Int("failures", len(rep.Failures)).
		Int("bars_persisted", rep.BarsPersisted).
		Dur("took", rep.FinishedAt.Sub(rep.StartedAt)).
		Msg("run finished")
}
