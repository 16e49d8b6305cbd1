package recorder

import (
	"context"
	"fmt"
	"strings"

	"StockScreener/internal/model"
)

// Recorder is the persistence gateway for symbols and daily bars.
// Both upserts are idempotent: rewriting an existing key refreshes the
// non-key columns in place.
type Recorder interface {
	// Bootstrap creates the database and tables if absent.
	Bootstrap(ctx context.Context) error
	UpsertSymbols(ctx context.Context, symbols []model.Symbol) (WriteReport, error)
	UpsertBars(ctx context.Context, bars []model.DailyBar) (WriteReport, error)
	Ping(ctx context.Context) error
	Close() error
}

// WriteReport summarises a chunked write.
type WriteReport struct {
	Table     string
	Rows      int // rows committed
	Chunks    int
	Committed int
	Failed    []*ChunkError
	// Abandoned counts rows never attempted because the caller cancelled.
	Abandoned int
}

// ChunkError identifies a chunk that failed to commit. Earlier chunks stay
// committed; re-running the same write repairs the gap.
type ChunkError struct {
	Table     string
	Index     int
	Rows      int
	FirstCode string
	LastCode  string
	FromDate  string
	ToDate    string
	Err       error
}

func (e *ChunkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s chunk %d (%d rows, codes %s..%s", e.Table, e.Index, e.Rows, e.FirstCode, e.LastCode)
	if e.FromDate != "" {
		fmt.Fprintf(&b, ", dates %s..%s", e.FromDate, e.ToDate)
	}
	fmt.Fprintf(&b, "): %v", e.Err)
	return b.String()
}

func (e *ChunkError) Unwrap() error { return e.Err }

// PersistError aggregates failed chunks of one write. It matches
// model.ErrPersistenceFailure with errors.Is.
type PersistError struct {
	Table  string
	Chunks []*ChunkError
}

func (e *PersistError) Error() string {
	msgs := make([]string, len(e.Chunks))
	for i, c := range e.Chunks {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("%s: %d chunk(s) failed: %s", e.Table, len(e.Chunks), strings.Join(msgs, "; "))
}

func (e *PersistError) Is(target error) bool { return target == model.ErrPersistenceFailure }

func (e *PersistError) Unwrap() []error {
	out := make([]error, len(e.Chunks))
	for i, c := range e.Chunks {
		out[i] = c
	}
	return out
}
