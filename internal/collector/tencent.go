package collector

import (
	"context"
	"fmt"
	"strings"

	"StockScreener/internal/model"

	"github.com/tidwall/gjson"
)

const (
	TencentKLineURL = "https://web.ifzq.gtimg.cn/appstock/app/fqkline/get"
	tencentReferer  = "https://gu.qq.com/"
	tencentMaxBars  = 640
)

// TencentProvider implements the daily-bar half of Provider using the
// Tencent quote API. It has no listing endpoint.
type TencentProvider struct {
	KLineURL string
	http     *httpGetter
}

// NewTencentProvider creates a Tencent provider.
func NewTencentProvider(opts HTTPOptions) *TencentProvider {
	return &TencentProvider{
		KLineURL: TencentKLineURL,
		http:     newHTTPGetter("tencent", tencentReferer, opts),
	}
}

func (p *TencentProvider) Name() string { return "tencent" }

func (p *TencentProvider) ListBoard(_ context.Context, board model.Board) ([]ListingRow, error) {
	return nil, fmt.Errorf("tencent: list %s: %w", board.ID, ErrUnsupported)
}

func (p *TencentProvider) DailyBars(ctx context.Context, sym model.Symbol, r model.DateRange, adjust model.AdjustMode) ([]model.DailyBar, error) {
	ticker := sym.Exchange.Lower() + sym.Code
	fq := tencentAdjust(adjust)
	u := fmt.Sprintf("%s?param=%s,day,%s,%s,%d,%s",
		p.KLineURL, ticker, r.Start.Format(model.DateLayout), r.End.Format(model.DateLayout), tencentMaxBars, fq)
	body, err := p.http.get(ctx, u)
	if err != nil {
		return nil, err
	}
	bars, err := parseTencentKLines(body, ticker, fq, sym)
	if err != nil {
		return nil, fmt.Errorf("tencent: %s: %w", sym.FullCode(), err)
	}
	return bars, nil
}

func tencentAdjust(m model.AdjustMode) string {
	switch m {
	case model.AdjustForward:
		return "qfq"
	case model.AdjustBackward:
		return "hfq"
	}
	return ""
}

func parseTencentKLines(body []byte, ticker, fq string, sym model.Symbol) ([]model.DailyBar, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed kline response")
	}
	if code := gjson.GetBytes(body, "code").Int(); code != 0 {
		return nil, fmt.Errorf("api code %d: %s", code, gjson.GetBytes(body, "msg").String())
	}
	node := gjson.GetBytes(body, "data."+ticker)
	if !node.Exists() {
		return nil, fmt.Errorf("no data for %s", ticker)
	}
	// unadjusted series, and adjusted series the API could not adjust, come back as "day"
	rows := node.Get(fq + "day")
	if !rows.Exists() {
		rows = node.Get("day")
	}
	if !rows.IsArray() {
		return nil, fmt.Errorf("missing %sday series", fq)
	}
	arr := rows.Array()
	out := make([]model.DailyBar, 0, len(arr))
	for _, row := range arr {
		cols := row.Array()
		parts := make([]string, 0, 6)
		for i := 0; i < len(cols) && i < 6; i++ {
			if cols[i].IsObject() {
				break
			}
			parts = append(parts, strings.TrimSpace(cols[i].String()))
		}
		bar, err := parseKLineFields(parts, sym)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", row.Raw, err)
		}
		out = append(out, bar)
	}
	return out, nil
}
