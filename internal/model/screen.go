package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Screening windows. The minimum history equals the longest window.
const (
	ShortWindow  = 5
	MediumWindow = 10
	LongWindow   = 20
	MinHistory   = LongWindow
)

// MovingAverageSnapshot holds the screener's working values for one symbol.
type MovingAverageSnapshot struct {
	FullCode string
	Close    decimal.Decimal
	SMA5     decimal.Decimal
	SMA10    decimal.Decimal
	SMA20    decimal.Decimal
	Samples  int
}

// Stacked reports close > SMA5 > SMA10 > SMA20.
func (s MovingAverageSnapshot) Stacked() bool {
	return s.Close.GreaterThan(s.SMA5) &&
		s.SMA5.GreaterThan(s.SMA10) &&
		s.SMA10.GreaterThan(s.SMA20)
}

// Recommendation is the (close, SMA5, SMA10, SMA20) tuple of a flagged symbol.
type Recommendation struct {
	Close decimal.Decimal `json:"close"`
	SMA5  decimal.Decimal `json:"sma5"`
	SMA10 decimal.Decimal `json:"sma10"`
	SMA20 decimal.Decimal `json:"sma20"`
}

// RecommendationSet maps a full qualified code to its recommendation.
type RecommendationSet map[string]Recommendation

// Codes returns the set's keys in ascending order.
func (r RecommendationSet) Codes() []string {
	codes := make([]string, 0, len(r))
	for c := range r {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
