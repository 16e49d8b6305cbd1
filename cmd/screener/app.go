package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"StockScreener/internal/collector"
	"StockScreener/internal/config"
	"StockScreener/internal/logx"
	"StockScreener/internal/metrics"
	"StockScreener/internal/model"
	"StockScreener/internal/pipeline"
	"StockScreener/internal/recorder"
	"StockScreener/internal/universe"

	"github.com/rs/zerolog/log"
)

// app holds the components every command shares.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	provider collector.Provider
	recorder recorder.Recorder
	pipeline *pipeline.Pipeline
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	logx.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg, nil
}

// newApp loads configuration and wires providers, storage and the pipeline.
// Storage is bootstrapped when database.bootstrap_on_start is set.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := model.ValidateBoards(model.Boards); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, metrics: metrics.New()}

	a.provider, err = buildProvider(cfg, a.metrics)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", a.provider.Name()).Msg("data source ready")

	a.recorder, err = openRecorder(cfg, a.metrics)
	if err != nil {
		return nil, err
	}
	if *cfg.Database.BootstrapOnStart {
		if err := a.recorder.Bootstrap(ctx); err != nil {
			a.recorder.Close()
			return nil, fmt.Errorf("bootstrap storage: %w", err)
		}
	}

	fetcher := collector.NewBatchFetcher(a.provider, cfg.Fetch.BatchSize, cfg.Fetch.Cooldown, cfg.Fetch.Workers)
	fetcher.CallTimeout = cfg.Provider.CallTimeout
	fetcher.MinHistory = cfg.Fetch.MinHistory
	fetcher.Metrics = a.metrics
	a.pipeline = pipeline.New(universe.NewResolver(a.provider), fetcher, a.recorder, a.metrics)
	return a, nil
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		log.Warn().Err(err).Msg("close storage")
	}
}

// request builds a pipeline request covering lookback_days up to now.
func (a *app) request(boards []model.Board, persist bool) func(time.Time) pipeline.Request {
	return func(now time.Time) pipeline.Request {
		return pipeline.Request{
			Boards:  boards,
			Range:   model.LastDays(now, a.cfg.Fetch.LookbackDays),
			Adjust:  model.AdjustMode(a.cfg.Provider.Adjust),
			Persist: persist,
		}
	}
}

// buildProvider chains the configured sources in order, each optionally
// behind a circuit breaker and instrumented with metrics.
func buildProvider(cfg *config.Config, m *metrics.Metrics) (collector.Provider, error) {
	opts := collector.DefaultHTTPOptions()
	opts.Proxy = cfg.Proxy
	opts.RPS = cfg.Provider.RPS
	opts.Burst = cfg.Provider.Burst
	opts.MaxRetries = cfg.Provider.MaxRetries

	var providers []collector.Provider
	for _, src := range cfg.Provider.Sources {
		var p collector.Provider
		switch strings.ToLower(src) {
		case "eastmoney":
			p = collector.NewEastmoneyProvider(opts)
		case "tencent":
			p = collector.NewTencentProvider(opts)
		case "mock":
			p = &collector.MockProvider{Price: 10, Days: 40}
		default:
			return nil, fmt.Errorf("unknown provider %q", src)
		}
		if cfg.Provider.Breaker.Enabled {
			bo := collector.DefaultBreakerOptions()
			bo.ConsecutiveFails = cfg.Provider.Breaker.ConsecutiveFails
			bo.Timeout = cfg.Provider.Breaker.OpenTimeout
			p = collector.WithBreaker(p, bo)
		}
		providers = append(providers, collector.Instrument(p, m))
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return collector.NewChain(providers...), nil
}

func openRecorder(cfg *config.Config, m *metrics.Metrics) (recorder.Recorder, error) {
	db := cfg.Database
	if strings.EqualFold(db.Driver, "none") {
		log.Warn().Msg("database.driver is none, results will not be persisted")
		return recorder.NewNoopRecorder(), nil
	}
	rec, err := recorder.Open(recorder.Options{
		Driver:       db.Driver,
		SQLitePath:   db.SQLitePath,
		Host:         db.Host,
		Port:         db.Port,
		User:         db.User,
		Password:     db.Password,
		Name:         db.Name,
		SSLMode:      db.SSLMode,
		ChunkSize:    db.ChunkSize,
		MaxOpenConns: db.MaxOpenConns,
		MaxIdleConns: db.MaxIdleConns,
		QueryTimeout: db.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return rec.WithMetrics(m), nil
}

// parseDate accepts YYYY-MM-DD or YYYYMMDD.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{model.DateLayout, "20060102"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
}

// resolveRange applies --start/--end on top of the default lookback window.
func resolveRange(def model.DateRange, start, end string) (model.DateRange, error) {
	r := def
	if end != "" {
		t, err := parseDate(end)
		if err != nil {
			return r, err
		}
		r.End = t
		if start == "" {
			days := int(def.End.Sub(def.Start).Hours()/24 + 0.5)
			r.Start = t.AddDate(0, 0, -days)
		}
	}
	if start != "" {
		t, err := parseDate(start)
		if err != nil {
			return r, err
		}
		r.Start = t
	}
	if r.Start.After(r.End) {
		return r, fmt.Errorf("start %s is after end %s", r.Start.Format(model.DateLayout), r.End.Format(model.DateLayout))
	}
	return r, nil
}
