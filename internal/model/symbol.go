package model

import "time"

// Symbol identifies one tradable instrument.
type Symbol struct {
	Code        string // exchange-local code, e.g. "600519"
	Name        string
	Exchange    Exchange
	Segment     Segment
	Board       string
	ListingDate time.Time // zero when the provider did not report one
}

// FullCode returns the qualified code, e.g. "600519.SH".
func (s Symbol) FullCode() string { return FullCode(s.Code, s.Exchange) }

// Market returns the market label of the symbol's exchange.
func (s Symbol) Market() string { return s.Exchange.Market() }

// Key is the in-universe identity of a symbol.
func (s Symbol) Key() SymbolKey { return SymbolKey{Code: s.Code, Exchange: s.Exchange} }

// SymbolKey is the (code, exchange) pair that is unique within a universe.
type SymbolKey struct {
	Code     string
	Exchange Exchange
}

// FullCode builds a qualified code from its parts.
func FullCode(code string, ex Exchange) string { return code + "." + string(ex) }
