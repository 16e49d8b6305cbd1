package calculator

import (
	"errors"
	"fmt"

	"StockScreener/internal/model"

	"github.com/shopspring/decimal"
)

// ErrNotEnoughData is returned when a series is shorter than the requested window.
var ErrNotEnoughData = errors.New("not enough data for SMA calculation")

// Precision of every average and of the compared close.
const Precision = 2

// CalculateSMA computes the simple moving average of the last period prices,
// rounded to two decimal places after division.
func CalculateSMA(prices []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, errors.New("period must be positive")
	}
	if len(prices) < period {
		return decimal.Zero, ErrNotEnoughData
	}
	sum := decimal.Zero
	for i := len(prices) - period; i < len(prices); i++ {
		sum = sum.Add(prices[i])
	}
	return sum.DivRound(decimal.NewFromInt(int64(period)), Precision), nil
}

// Snapshot computes close, SMA-5, SMA-10 and SMA-20 over the most recent
// MinHistory bars of a chronologically ordered series.
func Snapshot(fullCode string, bars []model.DailyBar) (model.MovingAverageSnapshot, error) {
	if len(bars) < model.MinHistory {
		return model.MovingAverageSnapshot{}, fmt.Errorf("%s: %d bars: %w", fullCode, len(bars), model.ErrInsufficientHistory)
	}
	closes := extractCloses(bars[len(bars)-model.MinHistory:])

	snap := model.MovingAverageSnapshot{
		FullCode: fullCode,
		Close:    closes[len(closes)-1].Round(Precision),
		Samples:  len(closes),
	}
	var err error
	if snap.SMA5, err = CalculateSMA(closes, model.ShortWindow); err != nil {
		return snap, err
	}
	if snap.SMA10, err = CalculateSMA(closes, model.MediumWindow); err != nil {
		return snap, err
	}
	if snap.SMA20, err = CalculateSMA(closes, model.LongWindow); err != nil {
		return snap, err
	}
	return snap, nil
}

func extractCloses(bars []model.DailyBar) []decimal.Decimal {
	closes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
