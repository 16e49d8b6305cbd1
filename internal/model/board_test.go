package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardTableValid(t *testing.T) {
	require.NoError(t, ValidateBoards(Boards))
}

func TestValidateBoards_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		board Board
	}{
		{"empty id", Board{Exchange: ExchangeSH, Segment: SegmentMain, Prefixes: []string{"60"}}},
		{"bad exchange", Board{ID: "x", Exchange: "HK", Segment: SegmentMain, Prefixes: []string{"60"}}},
		{"other segment", Board{ID: "x", Exchange: ExchangeSH, Segment: SegmentOther, Prefixes: []string{"60"}}},
		{"no prefixes", Board{ID: "x", Exchange: ExchangeSH, Segment: SegmentMain}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateBoards([]Board{tt.board}))
		})
	}
	assert.Error(t, ValidateBoards([]Board{Boards[0], Boards[0]}), "duplicate id")
}

func TestParseBoards(t *testing.T) {
	all, err := ParseBoards("")
	require.NoError(t, err)
	assert.Len(t, all, len(Boards))

	got, err := ParseBoards("5, sh_star ,2,1")
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, b := range got {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"bj", "sh_star", "sh_main"}, ids)

	_, err = ParseBoards("6")
	assert.Error(t, err)
	_, err = ParseBoards("nasdaq")
	assert.Error(t, err)
	_, err = ParseBoards(" , ")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	bj, _ := LookupBoard("bj")
	assert.Equal(t, SegmentBSE, bj.Classify("920118"))
	assert.Equal(t, SegmentBSE, bj.Classify("830799"))
	assert.Equal(t, SegmentOther, bj.Classify("600000"))

	chinext, _ := LookupBoard("sz_chinext")
	assert.Equal(t, SegmentChiNext, chinext.Classify("300750"))
	assert.Equal(t, SegmentOther, chinext.Classify("000001"))
}

func TestFullCode(t *testing.T) {
	s := Symbol{Code: "600519", Exchange: ExchangeSH}
	assert.Equal(t, "600519.SH", s.FullCode())
	assert.Equal(t, "SSE", s.Market())
	assert.Equal(t, "BSE", ExchangeBJ.Market())
	assert.Equal(t, "sz", ExchangeSZ.Lower())
}
