package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdjustMode selects the price adjustment applied by providers.
type AdjustMode string

const (
	AdjustForward  AdjustMode = "qfq"
	AdjustBackward AdjustMode = "hfq"
	AdjustNone     AdjustMode = "none"
)

// Valid reports whether m is a known adjust mode.
func (m AdjustMode) Valid() bool {
	switch m {
	case AdjustForward, AdjustBackward, AdjustNone:
		return true
	}
	return false
}

// DailyBar is one trading day's OHLCV record for one symbol.
type DailyBar struct {
	Code      string
	Exchange  Exchange
	TradeDate time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	// PrevClose is derived from the preceding bar of the same series;
	// invalid for the earliest bar.
	PrevClose    decimal.NullDecimal
	Volume       int64
	Amount       decimal.NullDecimal
	TurnoverRate decimal.NullDecimal
}

// FullCode returns the qualified code of the bar's symbol.
func (b DailyBar) FullCode() string { return FullCode(b.Code, b.Exchange) }

// Market returns the market tag of the bar.
func (b DailyBar) Market() string { return b.Exchange.Market() }

// DateKey formats the trade date the way it is stored.
func (b DailyBar) DateKey() string { return b.TradeDate.Format(DateLayout) }

// DateLayout is the calendar date format used across storage and providers.
const DateLayout = "2006-01-02"

// DateRange is an inclusive calendar range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the range [now-days, now] truncated to dates.
func LastDays(now time.Time, days int) DateRange {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return DateRange{Start: end.AddDate(0, 0, -days), End: end}
}
