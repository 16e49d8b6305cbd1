package calculator

import (
	"testing"
	"time"

	"StockScreener/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decs(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func TestCalculateSMA(t *testing.T) {
	tests := []struct {
		name   string
		prices []decimal.Decimal
		period int
		want   string
	}{
		{"exact", decs("1", "2", "3"), 3, "2"},
		{"uses most recent", decs("100", "1", "2", "3"), 3, "2"},
		{"rounds down", decs("1", "1", "1.01"), 3, "1"},
		{"rounds half away from zero", decs("10.00", "10.01", "10.00", "10.01"), 4, "10.01"},
		{"two places", decs("10", "10", "11"), 3, "10.33"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateSMA(tt.prices, tt.period)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestCalculateSMA_Errors(t *testing.T) {
	_, err := CalculateSMA(decs("1"), 0)
	assert.Error(t, err)
	_, err = CalculateSMA(decs("1", "2"), 3)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func series(closes ...float64) []model.DailyBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.DailyBar, len(closes))
	for i, c := range closes {
		bars[i] = model.DailyBar{Code: "600000", Exchange: model.ExchangeSH, TradeDate: start.AddDate(0, 0, i), Close: decimal.NewFromFloat(c)}
	}
	return bars
}

func TestSnapshot(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	snap, err := Snapshot("600000.SH", series(closes...))
	require.NoError(t, err)

	// last 20 closes are 6..25
	assert.Equal(t, 20, snap.Samples)
	assert.True(t, snap.Close.Equal(decimal.NewFromInt(25)))
	assert.True(t, snap.SMA5.Equal(decimal.NewFromInt(23)))
	assert.True(t, snap.SMA10.Equal(decimal.RequireFromString("20.5")))
	assert.True(t, snap.SMA20.Equal(decimal.RequireFromString("15.5")))
	assert.True(t, snap.Stacked())
}

func TestSnapshot_InsufficientHistory(t *testing.T) {
	_, err := Snapshot("600000.SH", series(make([]float64, 19)...))
	assert.ErrorIs(t, err, model.ErrInsufficientHistory)
}
