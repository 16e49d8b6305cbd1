package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"StockScreener/internal/model"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	EastmoneyListURL  = "https://82.push2.eastmoney.com/api/qt/clist/get"
	EastmoneyKLineURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"

	eastmoneyReferer  = "https://quote.eastmoney.com/"
	eastmoneyPageSize = 500
	// f12 code, f14 name, f26 listing date (yyyymmdd)
	eastmoneyListFields = "f12,f14,f26"
	// date, open, close, high, low, volume, amount, turnover rate
	eastmoneyKLineFields = "f51,f52,f53,f54,f55,f56,f57,f61"
)

// eastmoneyBoardFilters maps board IDs to clist "fs" filters.
var eastmoneyBoardFilters = map[string]string{
	"sh_main":    "m:1+t:2",
	"sh_star":    "m:1+t:23",
	"sz_main":    "m:0+t:6",
	"sz_chinext": "m:0+t:80",
	"bj":         "m:0+t:81+s:2048",
}

// EastmoneyProvider implements Provider using the Eastmoney quote API.
type EastmoneyProvider struct {
	ListURL  string
	KLineURL string
	PageSize int
	http     *httpGetter
}

// NewEastmoneyProvider creates an Eastmoney provider.
func NewEastmoneyProvider(opts HTTPOptions) *EastmoneyProvider {
	return &EastmoneyProvider{
		ListURL:  EastmoneyListURL,
		KLineURL: EastmoneyKLineURL,
		PageSize: eastmoneyPageSize,
		http:     newHTTPGetter("eastmoney", eastmoneyReferer, opts),
	}
}

func (p *EastmoneyProvider) Name() string { return "eastmoney" }

// ListBoard pages through the board listing until the reported total is reached.
func (p *EastmoneyProvider) ListBoard(ctx context.Context, board model.Board) ([]ListingRow, error) {
	fs, ok := eastmoneyBoardFilters[board.ID]
	if !ok {
		return nil, fmt.Errorf("eastmoney: board %s: %w", board.ID, ErrUnsupported)
	}
	var rows []ListingRow
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s?pn=%d&pz=%d&po=0&np=1&fltt=2&invt=2&fid=f12&fs=%s&fields=%s",
			p.ListURL, page, p.PageSize, fs, eastmoneyListFields)
		body, err := p.http.get(ctx, u)
		if err != nil {
			return nil, err
		}
		total, count, err := parseEastmoneyListing(body, &rows)
		if err != nil {
			return nil, fmt.Errorf("eastmoney: board %s page %d: %w", board.ID, page, err)
		}
		if count == 0 || len(rows) >= total || count < p.PageSize {
			break
		}
	}
	return rows, nil
}

func parseEastmoneyListing(body []byte, rows *[]ListingRow) (total, count int, err error) {
	if !gjson.ValidBytes(body) {
		return 0, 0, fmt.Errorf("malformed listing response")
	}
	data := gjson.GetBytes(body, "data")
	if data.Type == gjson.Null {
		// an empty board answers with data:null
		return 0, 0, nil
	}
	total = int(data.Get("total").Int())
	diff := data.Get("diff")
	if !diff.IsArray() && !diff.IsObject() {
		return total, 0, fmt.Errorf("missing data.diff")
	}
	diff.ForEach(func(_, v gjson.Result) bool {
		count++
		code := strings.TrimSpace(v.Get("f12").String())
		if code == "" {
			return true
		}
		*rows = append(*rows, ListingRow{
			Code:        code,
			Name:        strings.TrimSpace(v.Get("f14").String()),
			ListingDate: parseCompactDate(v.Get("f26").String()),
		})
		return true
	})
	return total, count, nil
}

// DailyBars fetches daily klines for one symbol.
func (p *EastmoneyProvider) DailyBars(ctx context.Context, sym model.Symbol, r model.DateRange, adjust model.AdjustMode) ([]model.DailyBar, error) {
	u := fmt.Sprintf("%s?secid=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=%s&klt=101&fqt=%d&beg=%s&end=%s",
		p.KLineURL, EastmoneySecID(sym), eastmoneyKLineFields, eastmoneyFqt(adjust),
		r.Start.Format("20060102"), r.End.Format("20060102"))
	body, err := p.http.get(ctx, u)
	if err != nil {
		return nil, err
	}
	bars, err := parseEastmoneyKLines(body, sym)
	if err != nil {
		return nil, fmt.Errorf("eastmoney: %s: %w", sym.FullCode(), err)
	}
	return bars, nil
}

// EastmoneySecID returns the market-qualified id: 1.xxx for Shanghai,
// 0.xxx for Shenzhen and Beijing.
func EastmoneySecID(sym model.Symbol) string {
	if sym.Exchange == model.ExchangeSH {
		return "1." + sym.Code
	}
	return "0." + sym.Code
}

func eastmoneyFqt(m model.AdjustMode) int {
	switch m {
	case model.AdjustForward:
		return 1
	case model.AdjustBackward:
		return 2
	}
	return 0
}

func parseEastmoneyKLines(body []byte, sym model.Symbol) ([]model.DailyBar, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed kline response")
	}
	data := gjson.GetBytes(body, "data")
	if data.Type == gjson.Null {
		return nil, fmt.Errorf("no kline data")
	}
	klines := data.Get("klines")
	if !klines.IsArray() {
		return nil, fmt.Errorf("missing data.klines")
	}
	arr := klines.Array()
	out := make([]model.DailyBar, 0, len(arr))
	for _, v := range arr {
		s := strings.TrimSpace(v.String())
		if s == "" {
			continue
		}
		bar, err := parseKLineFields(strings.Split(s, ","), sym)
		if err != nil {
			return nil, fmt.Errorf("kline %q: %w", s, err)
		}
		out = append(out, bar)
	}
	return out, nil
}

// parseKLineFields reads date, open, close, high, low, volume and the
// optional amount and turnover rate.
func parseKLineFields(parts []string, sym model.Symbol) (model.DailyBar, error) {
	if len(parts) < 6 {
		return model.DailyBar{}, fmt.Errorf("expected at least 6 fields, got %d", len(parts))
	}
	date, err := time.Parse(model.DateLayout, strings.TrimSpace(parts[0]))
	if err != nil {
		return model.DailyBar{}, fmt.Errorf("date: %w", err)
	}
	bar := model.DailyBar{Code: sym.Code, Exchange: sym.Exchange, TradeDate: date}
	for i, dst := range []*decimal.Decimal{&bar.Open, &bar.Close, &bar.High, &bar.Low} {
		d, err := decimal.NewFromString(strings.TrimSpace(parts[i+1]))
		if err != nil {
			return model.DailyBar{}, fmt.Errorf("price field %d: %w", i+1, err)
		}
		if d.IsNegative() {
			return model.DailyBar{}, fmt.Errorf("price field %d negative", i+1)
		}
		*dst = d
	}
	vol, err := parseVolume(parts[5])
	if err != nil {
		return model.DailyBar{}, fmt.Errorf("volume: %w", err)
	}
	bar.Volume = vol
	if len(parts) > 6 {
		bar.Amount = optionalDecimal(parts[6])
	}
	if len(parts) > 7 {
		bar.TurnoverRate = optionalDecimal(parts[7])
	}
	return bar, nil
}

// parseVolume accepts integer or float notation ("32155.00").
func parseVolume(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative volume %s", s)
	}
	return d.IntPart(), nil
}

func optionalDecimal(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func parseCompactDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return time.Time{}
	}
	if _, err := strconv.Atoi(s); err != nil {
		return time.Time{}
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
