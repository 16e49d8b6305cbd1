package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"StockScreener/internal/metrics"
	"StockScreener/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	tableSymbols = "stock_basic"
	tableBars    = "stock_daily"

	defaultChunkSize    = 500
	defaultQueryTimeout = 30 * time.Second
)

var (
	symbolColumns = []string{"stock_code", "stock_name", "exchange", "market", "market_type", "listing_date"}
	symbolKeys    = []string{"stock_code", "market"}
	barColumns    = []string{
		"stock_code", "trade_date", "open_price", "high_price", "low_price", "close_price",
		"previous_close_price", "volume", "amount", "turnover_rate", "market",
	}
	barKeys = []string{"stock_code", "trade_date", "market"}
)

// Options configures the SQL recorder.
type Options struct {
	Driver       string
	SQLitePath   string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	ChunkSize    int
	MaxOpenConns int
	MaxIdleConns int
	QueryTimeout time.Duration
}

// SQLRecorder persists symbols and bars through sqlx. Writes are
// serialised; each chunk commits in its own transaction.
type SQLRecorder struct {
	db      *sqlx.DB
	dialect Dialect
	opts    Options
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// Open prepares a connection pool. It does not touch the server; call
// Bootstrap once to create the database and tables.
func Open(opts Options) (*SQLRecorder, error) {
	d, err := ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	if d == DialectSQLite && opts.SQLitePath != ":memory:" && opts.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sqlx.Open(d.driverName(), d.dsn(opts, opts.Name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}
	return newSQLRecorder(db, d, opts), nil
}

func newSQLRecorder(db *sqlx.DB, d Dialect, opts Options) *SQLRecorder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if d == DialectSQLite {
		// one writer; also keeps an in-memory database alive across calls
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return &SQLRecorder{db: db, dialect: d, opts: opts}
}

// WithMetrics attaches row and chunk-failure counters.
func (r *SQLRecorder) WithMetrics(m *metrics.Metrics) *SQLRecorder {
	r.metrics = m
	return r
}

// Dialect returns the configured SQL dialect.
func (r *SQLRecorder) Dialect() Dialect { return r.dialect }

// Bootstrap creates the database if absent, then the tables and indexes.
func (r *SQLRecorder) Bootstrap(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.createDatabase(ctx); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	if r.dialect == DialectSQLite {
		if _, err := r.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("set WAL mode: %w", err)
		}
	}
	for _, s := range r.dialect.schema() {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", snippet(s), err)
		}
	}
	log.Info().Str("dialect", string(r.dialect)).Msg("schema ready")
	return nil
}

func (r *SQLRecorder) createDatabase(ctx context.Context) error {
	stmt := r.dialect.createDatabase(r.opts.Name)
	if stmt == "" || r.opts.Name == "" {
		return nil
	}
	admin, err := sqlx.Open(r.dialect.driverName(), r.dialect.dsn(r.opts, ""))
	if err != nil {
		return err
	}
	defer admin.Close()

	if r.dialect == DialectPostgres {
		var exists bool
		if err := admin.GetContext(ctx, &exists,
			"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", r.opts.Name); err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	_, err = admin.ExecContext(ctx, stmt)
	return err
}

// UpsertSymbols writes universe rows keyed on (stock_code, market).
func (r *SQLRecorder) UpsertSymbols(ctx context.Context, symbols []model.Symbol) (WriteReport, error) {
	rows := dedupeSymbols(symbols)
	return r.writeChunks(ctx, tableSymbols, symbolColumns, symbolKeys, len(rows), func(i int) []any {
		s := rows[i]
		var listing any
		if !s.ListingDate.IsZero() {
			listing = s.ListingDate.Format(model.DateLayout)
		}
		return []any{s.Code, s.Name, s.Exchange.Lower(), s.Market(), string(s.Segment), listing}
	}, func(from, to int) (string, string, string, string) {
		return rows[from].FullCode(), rows[to].FullCode(), "", ""
	})
}

// UpsertBars writes bars keyed on (stock_code, trade_date, market) in
// chunks of Options.ChunkSize. A failed chunk is recorded and the next
// chunk is attempted; the error then wraps model.ErrPersistenceFailure.
// Cancelling ctx lets the in-flight chunk finish and abandons the rest.
func (r *SQLRecorder) UpsertBars(ctx context.Context, bars []model.DailyBar) (WriteReport, error) {
	rows := dedupeBars(bars)
	return r.writeChunks(ctx, tableBars, barColumns, barKeys, len(rows), func(i int) []any {
		b := rows[i]
		return []any{
			b.Code, b.DateKey(), b.Open, b.High, b.Low, b.Close,
			b.PrevClose, b.Volume, b.Amount, b.TurnoverRate, b.Market(),
		}
	}, func(from, to int) (string, string, string, string) {
		minD, maxD := rows[from].DateKey(), rows[from].DateKey()
		for _, b := range rows[from : to+1] {
			if k := b.DateKey(); k < minD {
				minD = k
			} else if k > maxD {
				maxD = k
			}
		}
		return rows[from].FullCode(), rows[to].FullCode(), minD, maxD
	})
}

type describeFunc func(from, to int) (firstCode, lastCode, fromDate, toDate string)

func (r *SQLRecorder) writeChunks(ctx context.Context, table string, cols, keys []string, n int,
	argsOf func(i int) []any, describe describeFunc) (WriteReport, error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	logger := zerolog.Ctx(ctx)
	report := WriteReport{Table: table}
	size := r.opts.ChunkSize

	for from := 0; from < n; from += size {
		to := from + size
		if to > n {
			to = n
		}
		if ctx.Err() != nil {
			report.Abandoned = n - from
			break
		}
		report.Chunks++

		args := make([]any, 0, (to-from)*len(cols))
		for i := from; i < to; i++ {
			args = append(args, argsOf(i)...)
		}
		query := r.db.Rebind(r.dialect.upsert(table, cols, keys, to-from))

		if err := r.execChunk(ctx, query, args); err != nil {
			first, last, fromDate, toDate := describe(from, to-1)
			ce := &ChunkError{
				Table: table, Index: report.Chunks - 1, Rows: to - from,
				FirstCode: first, LastCode: last, FromDate: fromDate, ToDate: toDate, Err: err,
			}
			report.Failed = append(report.Failed, ce)
			r.metrics.IncChunkFailure()
			logger.Error().Err(ce).Msg("chunk write failed")
			continue
		}
		report.Committed++
		report.Rows += to - from
	}
	r.metrics.AddRows(table, report.Rows)

	var errs []error
	if len(report.Failed) > 0 {
		errs = append(errs, &PersistError{Table: table, Chunks: report.Failed})
	}
	if report.Abandoned > 0 {
		logger.Warn().Str("table", table).Int("rows", report.Abandoned).Msg("write abandoned on cancel")
		errs = append(errs, fmt.Errorf("%s: %d rows abandoned: %w", table, report.Abandoned, model.ErrCancellationRequested))
	}
	return report, errors.Join(errs...)
}

// execChunk commits one chunk. It runs detached from caller cancellation so
// a chunk is never left half-written; QueryTimeout bounds it instead.
func (r *SQLRecorder) execChunk(ctx context.Context, query string, args []any) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.QueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *SQLRecorder) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CountRows returns the number of rows in stock_basic and stock_daily.
func (r *SQLRecorder) CountRows(ctx context.Context) (symbols, bars int, err error) {
	if err = r.db.GetContext(ctx, &symbols, "SELECT COUNT(*) FROM "+tableSymbols); err != nil {
		return 0, 0, err
	}
	if err = r.db.GetContext(ctx, &bars, "SELECT COUNT(*) FROM "+tableBars); err != nil {
		return 0, 0, err
	}
	return symbols, bars, nil
}

func (r *SQLRecorder) Close() error {
	log.Info().Str("dialect", string(r.dialect)).Msg("closing recorder")
	return r.db.Close()
}

// dedupeBars keeps the last bar per key so one statement never touches a
// row twice.
func dedupeBars(bars []model.DailyBar) []model.DailyBar {
	type key struct{ code, date, market string }
	idx := make(map[key]int, len(bars))
	out := make([]model.DailyBar, 0, len(bars))
	for _, b := range bars {
		k := key{b.Code, b.DateKey(), b.Market()}
		if i, ok := idx[k]; ok {
			out[i] = b
			continue
		}
		idx[k] = len(out)
		out = append(out, b)
	}
	return out
}

func dedupeSymbols(symbols []model.Symbol) []model.Symbol {
	type key struct{ code, market string }
	idx := make(map[key]int, len(symbols))
	out := make([]model.Symbol, 0, len(symbols))
	for _, s := range symbols {
		k := key{s.Code, s.Market()}
		if i, ok := idx[k]; ok {
			out[i] = s
			continue
		}
		idx[k] = len(out)
		out = append(out, s)
	}
	return out
}

func snippet(s string) string {
	if len(s) > 40 {
		return s[:40]
	}
	return s
}
