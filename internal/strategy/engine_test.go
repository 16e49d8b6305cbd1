package strategy

import (
	"math/rand"
	"testing"
	"time"

	"StockScreener/internal/model"

	"github.com/shopspring/decimal"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func barsOf(code string, closes ...string) []model.DailyBar {
	bars := make([]model.DailyBar, len(closes))
	for i, c := range closes {
		bars[i] = model.DailyBar{
			Code:      code,
			Exchange:  model.ExchangeSH,
			TradeDate: day0.AddDate(0, 0, i),
			Close:     decimal.RequireFromString(c),
		}
	}
	return bars
}

func repeat(v string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func join(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// rising returns 20 closes from 10.00 to 12.00.
func rising() []string {
	out := make([]string, 20)
	for i := range out {
		out[i] = decimal.NewFromInt(10).Add(decimal.NewFromInt(int64(2 * i)).DivRound(decimal.NewFromInt(19), 2)).StringFixed(2)
	}
	return out
}

func TestScreen_Scenario(t *testing.T) {
	input := map[string][]model.DailyBar{
		"600001.SH": barsOf("600001", rising()...),
		"600002.SH": barsOf("600002", repeat("10.00", 20)...),
		"600003.SH": barsOf("600003", rising()[:15]...),
	}
	got := Screen(input)

	if len(got) != 1 {
		t.Fatalf("expected 1 recommendation, got %d: %v", len(got), got)
	}
	a, ok := got["600001.SH"]
	if !ok {
		t.Fatal("expected rising series to be recommended")
	}
	if !(a.SMA20.LessThan(a.SMA10) && a.SMA10.LessThan(a.SMA5) && a.SMA5.LessThan(a.Close)) {
		t.Errorf("expected SMA20 < SMA10 < SMA5 < close, got %+v", a)
	}
	if !a.Close.Equal(decimal.RequireFromString("12.00")) {
		t.Errorf("close = %s, want 12.00", a.Close)
	}
}

func TestScreen_EachInequality(t *testing.T) {
	tests := []struct {
		name   string
		closes []string
		want   bool
	}{
		{"stacked", rising(), true},
		// SMA5 = 17.4 > close 17
		{"close below sma5", append(rising19(), "17"), false},
		// close = SMA5 = 12
		{"close equals sma5", join(repeat("10", 15), repeat("12", 5)), false},
		// SMA5 = SMA10 = 11
		{"sma5 equals sma10", join(repeat("10", 10), repeat("11", 5), []string{"9", "10", "11", "12", "13"}), false},
		// SMA10 = SMA20 = 10
		{"sma10 equals sma20", join(repeat("10", 10), repeat("8", 5), []string{"10", "11", "12", "13", "14"}), false},
		// unrounded 10.004 > 10.001, rounded 10.00 = 10.00
		{"rounding before comparison", join(repeat("9.00", 10), []string{"10", "10", "10", "10", "9.99"}, []string{"10", "10", "10", "10", "10.02"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.closes) != 20 {
				t.Fatalf("fixture has %d closes", len(tt.closes))
			}
			got := Screen(map[string][]model.DailyBar{"600000.SH": barsOf("600000", tt.closes...)})
			if _, ok := got["600000.SH"]; ok != tt.want {
				t.Errorf("recommended = %v, want %v (%v)", ok, tt.want, got)
			}
		})
	}
}

func rising19() []string {
	out := make([]string, 19)
	for i := range out {
		out[i] = decimal.NewFromInt(int64(i + 1)).String()
	}
	return out
}

func TestScreen_UsesMostRecentTwenty(t *testing.T) {
	// a higher flat history followed by a rising tail
	closes := join(repeat("50", 30), rising())
	got := Screen(map[string][]model.DailyBar{"600000.SH": barsOf("600000", closes...)})
	if _, ok := got["600000.SH"]; !ok {
		t.Error("expected only the most recent 20 bars to be considered")
	}
}

func TestScreen_OrderIndependent(t *testing.T) {
	bars := barsOf("600001", rising()...)
	shuffled := make([]model.DailyBar, len(bars))
	copy(shuffled, bars)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	before := shuffled[0].TradeDate

	got := Screen(map[string][]model.DailyBar{"600001.SH": shuffled})
	if _, ok := got["600001.SH"]; !ok {
		t.Error("expected shuffled rising series to be recommended")
	}
	if !shuffled[0].TradeDate.Equal(before) {
		t.Error("Screen must not reorder its input")
	}
}

func TestScreen_Deterministic(t *testing.T) {
	input := map[string][]model.DailyBar{
		"600001.SH": barsOf("600001", rising()...),
		"600002.SH": barsOf("600002", repeat("10.00", 20)...),
	}
	first := Screen(input)
	second := Screen(input)
	if len(first) != len(second) {
		t.Fatalf("result size changed: %d vs %d", len(first), len(second))
	}
	for code, r := range first {
		if s, ok := second[code]; !ok || !s.Close.Equal(r.Close) || !s.SMA20.Equal(r.SMA20) {
			t.Errorf("%s differs between runs", code)
		}
	}
}

func TestGroupByCode(t *testing.T) {
	flat := append(barsOf("600001", "1", "2"), barsOf("600002", "3")...)
	g := GroupByCode(flat)
	if len(g["600001.SH"]) != 2 || len(g["600002.SH"]) != 1 {
		t.Errorf("unexpected grouping: %v", g)
	}
}
