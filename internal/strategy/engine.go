package strategy

import (
	"sort"

	"StockScreener/internal/calculator"
	"StockScreener/internal/model"
)

// Evaluate applies the stacked moving-average rule to a snapshot.
func Evaluate(snap model.MovingAverageSnapshot) (model.Recommendation, bool) {
	if !snap.Stacked() {
		return model.Recommendation{}, false
	}
	return model.Recommendation{
		Close: snap.Close,
		SMA5:  snap.SMA5,
		SMA10: snap.SMA10,
		SMA20: snap.SMA20,
	}, true
}

// Screen builds a fresh RecommendationSet from bars keyed by full code.
// Series shorter than model.MinHistory are skipped. The input is not modified.
func Screen(barsByCode map[string][]model.DailyBar) model.RecommendationSet {
	out := make(model.RecommendationSet)
	for code, bars := range barsByCode {
		if len(bars) < model.MinHistory {
			continue
		}
		snap, err := calculator.Snapshot(code, chronological(bars))
		if err != nil {
			continue
		}
		if rec, ok := Evaluate(snap); ok {
			out[code] = rec
		}
	}
	return out
}

// GroupByCode splits a flat bar sequence into per-symbol series.
func GroupByCode(bars []model.DailyBar) map[string][]model.DailyBar {
	out := make(map[string][]model.DailyBar)
	for _, b := range bars {
		code := b.FullCode()
		out[code] = append(out[code], b)
	}
	return out
}

func chronological(bars []model.DailyBar) []model.DailyBar {
	if sort.SliceIsSorted(bars, func(i, j int) bool { return bars[i].TradeDate.Before(bars[j].TradeDate) }) {
		return bars
	}
	cp := make([]model.DailyBar, len(bars))
	copy(cp, bars)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].TradeDate.Before(cp[j].TradeDate) })
	return cp
}
