package recorder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"StockScreener/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T, chunk int) *SQLRecorder {
	t.Helper()
	r, err := Open(Options{Driver: "sqlite", SQLitePath: ":memory:", ChunkSize: chunk})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	require.NoError(t, r.Bootstrap(context.Background()))
	return r
}

func bar(code string, day int, close string) model.DailyBar {
	c := decimal.RequireFromString(close)
	return model.DailyBar{
		Code:      code,
		Exchange:  model.ExchangeSH,
		TradeDate: time.Date(2024, 4, day, 0, 0, 0, 0, time.UTC),
		Open:      c, High: c, Low: c, Close: c,
		Volume: 1000,
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	r := openMemory(t, 0)
	require.NoError(t, r.Bootstrap(context.Background()))
	s, b, err := r.CountRows(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s)
	assert.Zero(t, b)
}

func TestUpsertBars_SameKeyTwice(t *testing.T) {
	r := openMemory(t, 0)
	ctx := context.Background()

	_, err := r.UpsertBars(ctx, []model.DailyBar{bar("600000", 1, "10.00")})
	require.NoError(t, err)
	rep, err := r.UpsertBars(ctx, []model.DailyBar{bar("600000", 1, "10.50")})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rows)

	_, n, err := r.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var close decimal.Decimal
	require.NoError(t, r.db.Get(&close, "SELECT close_price FROM stock_daily WHERE stock_code = ? AND trade_date = ? AND market = ?", "600000", "2024-04-01", "SSE"))
	assert.True(t, close.Equal(decimal.RequireFromString("10.5")), "latest values win, got %s", close)
}

func TestUpsertBars_DuplicateInOneCall(t *testing.T) {
	r := openMemory(t, 0)
	rep, err := r.UpsertBars(context.Background(), []model.DailyBar{bar("600000", 1, "1"), bar("600000", 1, "2")})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rows)
}

func TestUpsertBars_SameCodeOtherMarket(t *testing.T) {
	r := openMemory(t, 0)
	other := bar("600000", 1, "1")
	other.Exchange = model.ExchangeSZ
	_, err := r.UpsertBars(context.Background(), []model.DailyBar{bar("600000", 1, "1"), other})
	require.NoError(t, err)
	_, n, err := r.CountRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsertBars_Chunks(t *testing.T) {
	r := openMemory(t, 2)
	var bars []model.DailyBar
	for d := 1; d <= 5; d++ {
		b := bar("600000", d, fmt.Sprintf("%d.00", 10+d))
		if d > 1 {
			b.PrevClose = decimal.NewNullDecimal(decimal.NewFromInt(int64(9 + d)))
		}
		bars = append(bars, b)
	}
	rep, err := r.UpsertBars(context.Background(), bars)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Chunks)
	assert.Equal(t, 3, rep.Committed)
	assert.Equal(t, 5, rep.Rows)

	var nulls int
	require.NoError(t, r.db.Get(&nulls, "SELECT COUNT(*) FROM stock_daily WHERE previous_close_price IS NULL"))
	assert.Equal(t, 1, nulls)
}

func TestUpsertBars_CancelledAbandons(t *testing.T) {
	r := openMemory(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := r.UpsertBars(ctx, []model.DailyBar{bar("600000", 1, "1"), bar("600000", 2, "1"), bar("600000", 3, "1")})
	assert.ErrorIs(t, err, model.ErrCancellationRequested)
	assert.Equal(t, 3, rep.Abandoned)
	assert.Zero(t, rep.Rows)
}

func TestUpsertSymbols_Idempotent(t *testing.T) {
	r := openMemory(t, 0)
	ctx := context.Background()
	syms := []model.Symbol{
		{Code: "600519", Name: "贵州茅台", Exchange: model.ExchangeSH, Segment: model.SegmentMain, ListingDate: time.Date(2001, 8, 27, 0, 0, 0, 0, time.UTC)},
		{Code: "920118", Name: "太湖远大", Exchange: model.ExchangeBJ, Segment: model.SegmentBSE},
	}
	_, err := r.UpsertSymbols(ctx, syms)
	require.NoError(t, err)
	syms[0].Name = "Kweichow Moutai"
	rep, err := r.UpsertSymbols(ctx, syms)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Rows)

	n, _, err := r.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var row struct {
		Name       string  `db:"stock_name"`
		Exchange   string  `db:"exchange"`
		Market     string  `db:"market"`
		MarketType string  `db:"market_type"`
		Listing    *string `db:"listing_date"`
	}
	require.NoError(t, r.db.Get(&row, "SELECT stock_name, exchange, market, market_type, listing_date FROM stock_basic WHERE stock_code = '600519'"))
	assert.Equal(t, "Kweichow Moutai", row.Name)
	assert.Equal(t, "sh", row.Exchange)
	assert.Equal(t, "SSE", row.Market)
	assert.Equal(t, "MAIN", row.MarketType)
	require.NotNil(t, row.Listing)
	assert.Equal(t, "2001-08-27", *row.Listing)

	require.NoError(t, r.db.Get(&row, "SELECT stock_name, exchange, market, market_type, listing_date FROM stock_basic WHERE stock_code = '920118'"))
	assert.Nil(t, row.Listing)
}

func TestUpsertBars_ChunkFailureContinues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := newSQLRecorder(sqlx.NewDb(db, "postgres"), DialectPostgres, Options{ChunkSize: 2})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stock_daily .* ON CONFLICT \(stock_code, trade_date, market\) DO UPDATE SET`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stock_daily`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stock_daily`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	bars := []model.DailyBar{
		bar("600000", 1, "1"), bar("600000", 2, "1"),
		bar("600001", 3, "1"), bar("600002", 1, "1"),
		bar("600003", 5, "1"),
	}
	rep, err := r.UpsertBars(context.Background(), bars)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersistenceFailure)
	assert.NotErrorIs(t, err, model.ErrCancellationRequested)

	var pe *PersistError
	require.ErrorAs(t, err, &pe)
	require.Len(t, pe.Chunks, 1)
	ce := pe.Chunks[0]
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, "600001.SH", ce.FirstCode)
	assert.Equal(t, "600002.SH", ce.LastCode)
	assert.Equal(t, "2024-04-01", ce.FromDate)
	assert.Equal(t, "2024-04-03", ce.ToDate)
	assert.ErrorContains(t, err, "deadlock detected")

	assert.Equal(t, 3, rep.Rows)
	assert.Equal(t, 2, rep.Committed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	got := DialectMySQL.upsert("stock_basic", []string{"stock_code", "stock_name", "market"}, []string{"stock_code", "market"}, 2)
	assert.Equal(t, "INSERT INTO stock_basic (stock_code, stock_name, market) VALUES (?,?,?),(?,?,?) ON DUPLICATE KEY UPDATE stock_name = VALUES(stock_name), update_time = CURRENT_TIMESTAMP", got)

	got = sqlx.Rebind(sqlx.DOLLAR, DialectPostgres.upsert("stock_basic", []string{"stock_code", "stock_name", "market"}, []string{"stock_code", "market"}, 1))
	assert.Equal(t, "INSERT INTO stock_basic (stock_code, stock_name, market) VALUES ($1,$2,$3) ON CONFLICT (stock_code, market) DO UPDATE SET stock_name = excluded.stock_name, update_time = CURRENT_TIMESTAMP", got)
}

func TestDialect(t *testing.T) {
	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)
	_, err = ParseDialect("oracle")
	assert.Error(t, err)

	o := Options{Host: "db", Port: "3306", User: "u", Password: "p", Name: "stock"}
	assert.Contains(t, DialectMySQL.dsn(o, "stock"), "tcp(db:3306)/stock")
	assert.Contains(t, DialectPostgres.dsn(o, ""), "dbname=postgres")
	assert.Contains(t, DialectMySQL.createDatabase("stock"), "utf8mb4_unicode_ci")
	assert.Empty(t, DialectSQLite.createDatabase("stock"))
}

func TestPersistErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("run: %w", &PersistError{Table: "stock_daily", Chunks: []*ChunkError{{Table: "stock_daily", Err: errors.New("x")}}})
	assert.ErrorIs(t, err, model.ErrPersistenceFailure)
}
