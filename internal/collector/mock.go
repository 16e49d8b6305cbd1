package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"StockScreener/internal/model"

	"github.com/shopspring/decimal"
)

// MockProvider returns controllable fixed data for development and testing.
// Symbols without explicit Bars get a generated series of Days bars.
type MockProvider struct {
	Listings map[string][]ListingRow     // by board ID
	Bars     map[string][]model.DailyBar // by full code
	ListErrs map[string]error            // by board ID
	BarErrs  map[string]error            // by full code
	Price    float64
	Days     int
	Delay    time.Duration
	// OnCall, if set, runs at the start of every DailyBars call.
	OnCall func(sym model.Symbol)

	mu    sync.Mutex
	calls map[string]int
	total atomic.Int64
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) ListBoard(ctx context.Context, board model.Board) ([]ListingRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.ListErrs[board.ID]; ok {
		return nil, err
	}
	if m.Listings != nil {
		return m.Listings[board.ID], nil
	}
	return generateMockListing(board, 3), nil
}

func (m *MockProvider) DailyBars(ctx context.Context, sym model.Symbol, r model.DateRange, _ model.AdjustMode) ([]model.DailyBar, error) {
	m.total.Add(1)
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[sym.FullCode()]++
	m.mu.Unlock()

	if m.OnCall != nil {
		m.OnCall(sym)
	}
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.BarErrs[sym.FullCode()]; ok {
		return nil, err
	}
	if bars, ok := m.Bars[sym.FullCode()]; ok {
		out := make([]model.DailyBar, len(bars))
		copy(out, bars)
		return out, nil
	}
	days := m.Days
	if days == 0 {
		days = 30
	}
	price := m.Price
	if price == 0 {
		price = 10
	}
	return generateMockBars(sym, price, days, r.End), nil
}

// Calls returns how many times bars were requested for a full code.
func (m *MockProvider) Calls(fullCode string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[fullCode]
}

// TotalCalls returns the number of DailyBars calls.
func (m *MockProvider) TotalCalls() int { return int(m.total.Load()) }

func generateMockListing(board model.Board, n int) []ListingRow {
	rows := make([]ListingRow, n)
	prefix := board.Prefixes[0]
	for i := range rows {
		code := fmt.Sprintf("%s%0*d", prefix, 6-len(prefix), i+1)
		rows[i] = ListingRow{Code: code, Name: fmt.Sprintf("%s-%d", board.ID, i+1)}
	}
	return rows
}

func generateMockBars(sym model.Symbol, basePrice float64, count int, end time.Time) []model.DailyBar {
	if end.IsZero() {
		end = time.Now()
	}
	bars := make([]model.DailyBar, count)
	for i := 0; i < count; i++ {
		p := decimal.NewFromFloat(basePrice * (1 + float64(i-count/2)*0.001)).Round(2)
		bars[i] = model.DailyBar{
			Code:      sym.Code,
			Exchange:  sym.Exchange,
			TradeDate: end.AddDate(0, 0, -(count - 1 - i)),
			Open:      p.Mul(decimal.RequireFromString("0.999")).Round(2),
			High:      p.Mul(decimal.RequireFromString("1.005")).Round(2),
			Low:       p.Mul(decimal.RequireFromString("0.995")).Round(2),
			Close:     p,
			Volume:    1000000,
		}
	}
	return bars
}
