package scheduler

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"StockScreener/internal/model"
	"StockScreener/internal/pipeline"
	"StockScreener/internal/universe"
)

// savedReport is the on-disk form of the latest report.
type savedReport struct {
	RunID            string                  `json:"run_id"`
	Boards           []string                `json:"boards"`
	Start            string                  `json:"start"`
	End              string                  `json:"end"`
	StartedAt        time.Time               `json:"started_at"`
	FinishedAt       time.Time               `json:"finished_at"`
	UniverseSize     int                     `json:"universe_size"`
	FetchedSymbols   int                     `json:"fetched_symbols"`
	SymbolsPersisted int                     `json:"symbols_persisted"`
	BarsPersisted    int                     `json:"bars_persisted"`
	BarsAbandoned    int                     `json:"bars_abandoned"`
	PersistErr       string                  `json:"persist_error,omitempty"`
	Cancelled        bool                    `json:"cancelled"`
	Warnings         []savedWarning          `json:"warnings,omitempty"`
	Failures         []savedFailure          `json:"failures,omitempty"`
	Recommendations  model.RecommendationSet `json:"recommendations"`
}

type savedWarning struct {
	Board string `json:"board"`
	Error string `json:"error"`
}

type savedFailure struct {
	Code     string              `json:"code"`
	Exchange model.Exchange      `json:"exchange"`
	Reason   model.FailureReason `json:"reason"`
	Error    string              `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errFrom(s string) error {
	if s == "" {
		return nil
	}
	return errors.New(s)
}

// LoadReport reads a report saved by SaveReport. A missing file yields nil.
func LoadReport(filePath string) (*pipeline.Report, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s savedReport
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	rep := &pipeline.Report{
		RunID:            s.RunID,
		Boards:           s.Boards,
		StartedAt:        s.StartedAt,
		FinishedAt:       s.FinishedAt,
		UniverseSize:     s.UniverseSize,
		FetchedSymbols:   s.FetchedSymbols,
		SymbolsPersisted: s.SymbolsPersisted,
		BarsPersisted:    s.BarsPersisted,
		BarsAbandoned:    s.BarsAbandoned,
		PersistErr:       errFrom(s.PersistErr),
		Cancelled:        s.Cancelled,
		Recommendations:  s.Recommendations,
	}
	if rep.Recommendations == nil {
		rep.Recommendations = model.RecommendationSet{}
	}
	rep.Range.Start, _ = time.Parse(model.DateLayout, s.Start)
	rep.Range.End, _ = time.Parse(model.DateLayout, s.End)
	for _, w := range s.Warnings {
		rep.Warnings = append(rep.Warnings, universe.Warning{Board: w.Board, Err: errFrom(w.Error)})
	}
	for _, f := range s.Failures {
		rep.Failures = append(rep.Failures, model.FailedSymbol{
			Symbol: model.Symbol{Code: f.Code, Exchange: f.Exchange},
			Reason: f.Reason,
			Err:    errFrom(f.Error),
		})
	}
	return rep, nil
}

// SaveReport writes rep as JSON, replacing the file atomically.
func SaveReport(filePath string, rep *pipeline.Report) error {
	s := savedReport{
		RunID:            rep.RunID,
		Boards:           rep.Boards,
		Start:            rep.Range.Start.Format(model.DateLayout),
		End:              rep.Range.End.Format(model.DateLayout),
		StartedAt:        rep.StartedAt,
		FinishedAt:       rep.FinishedAt,
		UniverseSize:     rep.UniverseSize,
		FetchedSymbols:   rep.FetchedSymbols,
		SymbolsPersisted: rep.SymbolsPersisted,
		BarsPersisted:    rep.BarsPersisted,
		BarsAbandoned:    rep.BarsAbandoned,
		PersistErr:       errString(rep.PersistErr),
		Cancelled:        rep.Cancelled,
		Recommendations:  rep.Recommendations,
	}
	for _, w := range rep.Warnings {
		s.Warnings = append(s.Warnings, savedWarning{Board: w.Board, Error: errString(w.Err)})
	}
	for _, f := range rep.Failures {
		s.Failures = append(s.Failures, savedFailure{
			Code: f.Symbol.Code, Exchange: f.Symbol.Exchange, Reason: f.Reason, Error: errString(f.Err),
		})
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
