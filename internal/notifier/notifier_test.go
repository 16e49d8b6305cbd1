package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"StockScreener/internal/model"
	"StockScreener/internal/pipeline"
	"StockScreener/internal/universe"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func rec(close, s5, s10, s20 string) model.Recommendation {
	return model.Recommendation{
		Close: decimal.RequireFromString(close),
		SMA5:  decimal.RequireFromString(s5),
		SMA10: decimal.RequireFromString(s10),
		SMA20: decimal.RequireFromString(s20),
	}
}

func sampleReport() *pipeline.Report {
	return &pipeline.Report{
		RunID:        "run-1",
		Boards:       []string{"sh_main", "sz_main"},
		Range:        model.DateRange{Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)},
		UniverseSize: 4,
		Recommendations: model.RecommendationSet{
			"600519.SH": rec("12.4", "12.2", "11.95", "11.45"),
			"000001.SZ": rec("10", "9.5", "9", "8.5"),
		},
		Failures: []model.FailedSymbol{
			{Symbol: model.Symbol{Code: "600003", Exchange: model.ExchangeSH}, Reason: model.ReasonInsufficientHistory},
			{Symbol: model.Symbol{Code: "000002", Exchange: model.ExchangeSZ}, Reason: model.ReasonProviderError, Err: errors.New("boom")},
		},
		Warnings: []universe.Warning{{Board: "bj", Err: errors.New("down")}},
	}
}

func TestFormatListing_SortedByCode(t *testing.T) {
	out := FormatListing(sampleReport().Recommendations)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, listingHeader, lines[0])
	assert.Equal(t, "000001.SZ\t[10.00, 9.50, 9.00, 8.50]", lines[1])
	assert.Equal(t, "600519.SH\t[12.40, 12.20, 11.95, 11.45]", lines[2])
}

func TestFormatReport_HasBothSections(t *testing.T) {
	out := FormatReport(sampleReport())
	assert.Contains(t, out, "2024-03-01 ~ 2024-04-30")
	assert.Contains(t, out, "状态 partial")
	assert.Contains(t, out, listingHeader)
	assert.Contains(t, out, "失败汇总: 2")
	assert.Contains(t, out, "InsufficientHistory: 1 (600003.SH)")
	assert.Contains(t, out, "ProviderError: 1 (000002.SZ)")
	assert.Contains(t, out, "板块失败 bj: down")
	assert.Less(t, strings.Index(out, listingHeader), strings.Index(out, "失败汇总"))

	empty := FormatReport(&pipeline.Report{Recommendations: model.RecommendationSet{}})
	assert.Contains(t, empty, listingHeader)
	assert.Contains(t, empty, "失败汇总: 0")
}

func TestFormatFailureSummary_BoundsSamples(t *testing.T) {
	rep := &pipeline.Report{}
	for i := 0; i < 15; i++ {
		rep.Failures = append(rep.Failures, model.FailedSymbol{
			Symbol: model.Symbol{Code: fmt.Sprintf("6000%02d", i), Exchange: model.ExchangeSH},
			Reason: model.ReasonCancelled,
		})
	}
	rep.Cancelled = true
	out := FormatFailureSummary(rep)
	assert.Contains(t, out, "Cancelled: 15")
	assert.Contains(t, out, "600009.SH, ...)")
	assert.NotContains(t, out, "600010.SH")
	assert.Contains(t, out, "运行已取消")
}

func TestFormatTelegramReport_TruncatesAndEscapes(t *testing.T) {
	out := FormatTelegramReport(sampleReport(), 1)
	assert.Contains(t, out, "<pre>")
	assert.Contains(t, out, "000001.SZ\t[10.00, 9.50, 9.00, 8.50]")
	assert.NotContains(t, out, "600519.SH\t")
	assert.Contains(t, out, "... 1 more")
	assert.Contains(t, out, "~")
}

func newTestNotifier(url string) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "")
	n.APIBase = url
	n.Backoff = time.Millisecond
	return n
}

func TestSend(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestNotifier(srv.URL).Send(context.Background(), "<b>hi</b>"))
	assert.Equal(t, "42", gjson.Get(got, "chat_id").String())
	assert.Equal(t, "<b>hi</b>", gjson.Get(got, "text").String())
	assert.Equal(t, "HTML", gjson.Get(got, "parse_mode").String())
}

func TestSendWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestNotifier(srv.URL).SendWithRetry(context.Background(), "x", 3))
	assert.EqualValues(t, 3, calls.Load())
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).SendWithRetry(context.Background(), "x", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 retries exhausted")
	assert.EqualValues(t, 3, calls.Load())
}

func TestParseUpdates(t *testing.T) {
	body := []byte(`{"ok":true,"result":[
		{"update_id":7,"message":{"chat":{"id":42},"text":" /latest "}},
		{"update_id":8,"edited_message":{"text":"ignored"}},
		{"update_id":9,"message":{"chat":{"id":-100},"text":"/scan"}}
	]}`)
	cmds, next, err := ParseUpdates(body, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10, next)
	require.Len(t, cmds, 2)
	assert.Equal(t, Command{UpdateID: 7, ChatID: "42", Text: "/latest"}, cmds[0])
	assert.Equal(t, "-100", cmds[1].ChatID)

	_, next, err = ParseUpdates([]byte(`{"ok":false,"description":"Unauthorized"}`), 5)
	assert.ErrorContains(t, err, "Unauthorized")
	assert.EqualValues(t, 5, next)

	_, _, err = ParseUpdates([]byte(`not json`), 0)
	assert.Error(t, err)
}

func TestStartPolling_RepliesToConfiguredChat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var polls atomic.Int32
	replies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if polls.Add(1) == 1 {
				assert.Equal(t, "0", r.URL.Query().Get("offset"))
				w.Write([]byte(`{"ok":true,"result":[
					{"update_id":1,"message":{"chat":{"id":99},"text":"/scan"}},
					{"update_id":2,"message":{"chat":{"id":42},"text":"/latest"}}]}`))
				return
			}
			assert.Equal(t, "3", r.URL.Query().Get("offset"))
			cancel()
			w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			b, _ := io.ReadAll(r.Body)
			replies <- gjson.GetBytes(b, "text").String()
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	var handled []string
	newTestNotifier(srv.URL).StartPolling(ctx, func(_ context.Context, cmd string) string {
		handled = append(handled, cmd)
		return "reply to " + cmd
	})

	assert.Equal(t, []string{"/latest"}, handled)
	require.Len(t, replies, 1)
	assert.Equal(t, "reply to /latest", <-replies)
}
