package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Exchange is the listing venue of a symbol.
type Exchange string

const (
	ExchangeSH Exchange = "SH"
	ExchangeSZ Exchange = "SZ"
	ExchangeBJ Exchange = "BJ"
)

// Market returns the market label persisted alongside symbols and bars.
func (e Exchange) Market() string {
	switch e {
	case ExchangeSH:
		return "SSE"
	case ExchangeSZ:
		return "SZSE"
	case ExchangeBJ:
		return "BSE"
	}
	return ""
}

// Lower returns the lower-case prefix used by quote providers ("sh", "sz", "bj").
func (e Exchange) Lower() string { return strings.ToLower(string(e)) }

// Segment classifies a symbol within its exchange.
type Segment string

const (
	SegmentMain    Segment = "MAIN"
	SegmentSTAR    Segment = "STAR"
	SegmentChiNext Segment = "CHINEXT"
	SegmentBSE     Segment = "BSE"
	SegmentOther   Segment = "OTHER"
)

// Board is one selectable listing: an exchange segment with its code prefixes.
type Board struct {
	ID       string
	Name     string
	Exchange Exchange
	Segment  Segment
	Prefixes []string
}

// Boards is the static board table. Order matters: it is the default
// resolution order and the numbering accepted by ParseBoards.
var Boards = []Board{
	{ID: "sh_main", Name: "SSE Main Board", Exchange: ExchangeSH, Segment: SegmentMain, Prefixes: []string{"60"}},
	{ID: "sh_star", Name: "SSE STAR Market", Exchange: ExchangeSH, Segment: SegmentSTAR, Prefixes: []string{"68"}},
	{ID: "sz_main", Name: "SZSE Main Board", Exchange: ExchangeSZ, Segment: SegmentMain, Prefixes: []string{"00"}},
	{ID: "sz_chinext", Name: "SZSE ChiNext", Exchange: ExchangeSZ, Segment: SegmentChiNext, Prefixes: []string{"30"}},
	{ID: "bj", Name: "Beijing Stock Exchange", Exchange: ExchangeBJ, Segment: SegmentBSE, Prefixes: []string{"920", "43", "83", "87", "88"}},
}

// Classify tags a listed code with the board segment, or OTHER when the
// code does not carry one of the board's prefixes.
func (b Board) Classify(code string) Segment {
	for _, p := range b.Prefixes {
		if strings.HasPrefix(code, p) {
			return b.Segment
		}
	}
	return SegmentOther
}

// LookupBoard finds a board by ID.
func LookupBoard(id string) (Board, bool) {
	for _, b := range Boards {
		if b.ID == id {
			return b, true
		}
	}
	return Board{}, false
}

// ParseBoards turns a comma-separated list of board IDs or menu numbers
// (1-based positions in Boards) into boards. "all" or an empty string
// selects every board. Duplicates are dropped, first occurrence wins.
func ParseBoards(s string) ([]Board, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		out := make([]Board, len(Boards))
		copy(out, Boards)
		return out, nil
	}
	var out []Board
	seen := make(map[string]bool)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		var b Board
		if n, err := strconv.Atoi(tok); err == nil {
			if n < 1 || n > len(Boards) {
				return nil, fmt.Errorf("board number %d out of range 1-%d", n, len(Boards))
			}
			b = Boards[n-1]
		} else {
			var ok bool
			if b, ok = LookupBoard(tok); !ok {
				return nil, fmt.Errorf("unknown board %q", tok)
			}
		}
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no boards selected")
	}
	return out, nil
}

// ValidateBoards checks a board table for duplicate IDs, unknown
// exchanges or segments, and missing prefixes.
func ValidateBoards(boards []Board) error {
	seen := make(map[string]bool, len(boards))
	for i, b := range boards {
		if b.ID == "" {
			return fmt.Errorf("board %d: empty id", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("board %s: duplicate id", b.ID)
		}
		seen[b.ID] = true
		if b.Exchange.Market() == "" {
			return fmt.Errorf("board %s: unknown exchange %q", b.ID, b.Exchange)
		}
		switch b.Segment {
		case SegmentMain, SegmentSTAR, SegmentChiNext, SegmentBSE:
		default:
			return fmt.Errorf("board %s: invalid segment %q", b.ID, b.Segment)
		}
		if len(b.Prefixes) == 0 {
			return fmt.Errorf("board %s: no code prefixes", b.ID)
		}
	}
	return nil
}
