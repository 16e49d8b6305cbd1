package recorder

import (
	"context"

	"StockScreener/internal/model"
)

// NoopRecorder is used when persistence is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) Bootstrap(_ context.Context) error { return nil }
func (n *NoopRecorder) UpsertSymbols(_ context.Context, _ []model.Symbol) (WriteReport, error) {
	return WriteReport{Table: tableSymbols}, nil
}
func (n *NoopRecorder) UpsertBars(_ context.Context, _ []model.DailyBar) (WriteReport, error) {
	return WriteReport{Table: tableBars}, nil
}
func (n *NoopRecorder) Ping(_ context.Context) error { return nil }
func (n *NoopRecorder) Close() error                 { return nil }
