package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"StockScreener/internal/metrics"
	"StockScreener/internal/model"
	"StockScreener/internal/pipeline"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type staticSource struct{ rep *pipeline.Report }

func (s staticSource) Latest() *pipeline.Report { return s.rep }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func report() *pipeline.Report {
	return &pipeline.Report{
		RunID:      "abc",
		FinishedAt: time.Date(2024, 4, 30, 16, 0, 0, 0, time.UTC),
		Range:      model.DateRange{Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)},
		Recommendations: model.RecommendationSet{
			"600519.SH": {
				Close: decimal.RequireFromString("12.4"),
				SMA5:  decimal.RequireFromString("12.2"),
				SMA10: decimal.RequireFromString("11.95"),
				SMA20: decimal.RequireFromString("11.45"),
			},
			"000001.SZ": {Close: decimal.NewFromInt(10), SMA5: decimal.NewFromInt(9), SMA10: decimal.NewFromInt(8), SMA20: decimal.NewFromInt(7)},
		},
		Failures: []model.FailedSymbol{{Symbol: model.Symbol{Code: "600003", Exchange: model.ExchangeSH}, Reason: model.ReasonInsufficientHistory}},
	}
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h := NewServer(":0", staticSource{report()}, pinger{}, nil, zerolog.Nop()).Handler()
	rec := do(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "database").String())
	assert.Equal(t, "partial", gjson.Get(rec.Body.String(), "last_status").String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	h = NewServer(":0", staticSource{}, pinger{errors.New("db down")}, nil, zerolog.Nop()).Handler()
	rec = do(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", gjson.Get(rec.Body.String(), "status").String())
}

func TestRecommendations(t *testing.T) {
	h := NewServer(":0", staticSource{report()}, nil, nil, zerolog.Nop()).Handler()
	rec := do(t, h, "/recommendations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, "abc", gjson.Get(body, "run_id").String())
	assert.EqualValues(t, 2, gjson.Get(body, "count").Int())
	assert.Equal(t, "2024-03-01", gjson.Get(body, "start").String())
	assert.EqualValues(t, 1, gjson.Get(body, "failures.InsufficientHistory").Int())
	assert.Equal(t, "000001.SZ", gjson.Get(body, "items.0.code").String())
	assert.Equal(t, "12.40", gjson.Get(body, "items.1.close").String())
	assert.Equal(t, "11.95", gjson.Get(body, "items.1.sma10").String())
}

func TestRecommendation_ByCode(t *testing.T) {
	h := NewServer(":0", staticSource{report()}, nil, nil, zerolog.Nop()).Handler()
	rec := do(t, h, "/recommendations/600519.sh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12.20", gjson.Get(rec.Body.String(), "sma5").String())

	assert.Equal(t, http.StatusNotFound, do(t, h, "/recommendations/600003.SH").Code)
}

func TestRecommendations_NoRun(t *testing.T) {
	h := NewServer(":0", staticSource{}, nil, nil, zerolog.Nop()).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, "/recommendations").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "/nope").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveRun("ok", 3, time.Now())
	h := NewServer(":0", staticSource{}, nil, m, zerolog.Nop()).Handler()
	rec := do(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "screener_recommendations 3")
}
