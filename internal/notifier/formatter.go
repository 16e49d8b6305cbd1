package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"StockScreener/internal/model"
	"StockScreener/internal/pipeline"
)

const (
	listingHeader = "股票代码\t参考价格 [close, sma5, sma10, sma20]"
	sampleCodes   = 10
)

var reasonOrder = []model.FailureReason{
	model.ReasonInsufficientHistory,
	model.ReasonProviderError,
	model.ReasonCancelled,
}

// FormatRecommendation renders one listing line.
func FormatRecommendation(code string, r model.Recommendation) string {
	return fmt.Sprintf("%s\t[%s, %s, %s, %s]", code,
		r.Close.StringFixed(2), r.SMA5.StringFixed(2), r.SMA10.StringFixed(2), r.SMA20.StringFixed(2))
}

// FormatListing renders the recommendation set sorted by code.
func FormatListing(set model.RecommendationSet) string {
	var b strings.Builder
	b.WriteString(listingHeader + "\n")
	for _, code := range set.Codes() {
		b.WriteString(FormatRecommendation(code, set[code]) + "\n")
	}
	return b.String()
}

// FormatFailureSummary renders failures per reason with a bounded list of
// sample codes, board warnings and the persistence outcome.
func FormatFailureSummary(rep *pipeline.Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("失败汇总: %d\n", len(rep.Failures)))

	byReason := make(map[model.FailureReason][]string)
	for _, f := range rep.Failures {
		byReason[f.Reason] = append(byReason[f.Reason], f.Symbol.FullCode())
	}
	for _, reason := range orderedReasons(byReason) {
		codes := byReason[reason]
		b.WriteString(fmt.Sprintf("  %s: %d", reason, len(codes)))
		if len(codes) > sampleCodes {
			b.WriteString(fmt.Sprintf(" (%s, ...)", strings.Join(codes[:sampleCodes], ", ")))
		} else {
			b.WriteString(fmt.Sprintf(" (%s)", strings.Join(codes, ", ")))
		}
		b.WriteString("\n")
	}
	for _, w := range rep.Warnings {
		b.WriteString(fmt.Sprintf("  板块失败 %s\n", w.String()))
	}
	if rep.PersistErr != nil {
		b.WriteString(fmt.Sprintf("  入库失败: %v\n", rep.PersistErr))
	}
	if rep.BarsAbandoned > 0 {
		b.WriteString(fmt.Sprintf("  未写入K线: %d\n", rep.BarsAbandoned))
	}
	if rep.Cancelled {
		b.WriteString("  运行已取消, 结果不完整\n")
	}
	return b.String()
}

func orderedReasons(m map[model.FailureReason][]string) []model.FailureReason {
	out := make([]model.FailureReason, 0, len(m))
	for _, r := range reasonOrder {
		if _, ok := m[r]; ok {
			out = append(out, r)
		}
	}
	var extra []model.FailureReason
	for r := range m {
		known := false
		for _, k := range reasonOrder {
			known = known || r == k
		}
		if !known {
			extra = append(extra, r)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

func formatHeader(rep *pipeline.Report) string {
	return fmt.Sprintf("选股结果 | %s ~ %s | 板块 %s | 股票 %d | 入选 %d | 状态 %s",
		rep.Range.Start.Format(model.DateLayout), rep.Range.End.Format(model.DateLayout),
		strings.Join(rep.Boards, ","), rep.UniverseSize, len(rep.Recommendations), rep.Status())
}

// FormatReport renders a run for the console: header, listing, then the
// failure summary. The two sections are always both present.
func FormatReport(rep *pipeline.Report) string {
	var b strings.Builder
	b.WriteString(formatHeader(rep) + "\n")
	b.WriteString(fmt.Sprintf("K线入库 %d | 股票入库 %d | run %s\n\n", rep.BarsPersisted, rep.SymbolsPersisted, rep.RunID))
	b.WriteString(FormatListing(rep.Recommendations))
	b.WriteString("\n")
	b.WriteString(FormatFailureSummary(rep))
	return b.String()
}

// FormatTelegramReport renders a run as an HTML Telegram message, keeping
// at most maxLines listing lines.
func FormatTelegramReport(rep *pipeline.Report, maxLines int) string {
	var b strings.Builder
	b.WriteString("📊 <b>" + html.EscapeString(formatHeader(rep)) + "</b>\n\n")

	codes := rep.Recommendations.Codes()
	b.WriteString("<pre>")
	b.WriteString(html.EscapeString(listingHeader) + "\n")
	for i, code := range codes {
		if maxLines > 0 && i == maxLines {
			b.WriteString(fmt.Sprintf("... %d more\n", len(codes)-maxLines))
			break
		}
		b.WriteString(html.EscapeString(FormatRecommendation(code, rep.Recommendations[code])) + "\n")
	}
	b.WriteString("</pre>\n")
	b.WriteString(html.EscapeString(FormatFailureSummary(rep)))
	return b.String()
}
