// Package scheduler runs the screening pipeline on a cron schedule and
// answers chat commands about the latest run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"StockScreener/internal/notifier"
	"StockScreener/internal/pipeline"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

// Sender pushes a message to the operator.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages the recurring screening run.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Notifier Sender
	// Request builds the request for a run starting at now.
	Request  func(now time.Time) pipeline.Request
	Ctx      context.Context
	MaxLines int
	// StatePath, if set, keeps the latest report across restarts.
	StatePath string

	running atomic.Bool
	wg      sync.WaitGroup
	mu      sync.RWMutex
	latest  *pipeline.Report
}

// NewScheduler creates a Scheduler. tn may be nil to disable notifications.
func NewScheduler(ctx context.Context, r Runner, tn Sender, req func(time.Time) pipeline.Request) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Runner:   r,
		Notifier: tn,
		Request:  req,
		Ctx:      ctx,
		MaxLines: 60,
	}
}

// RegisterAll registers the daily screening task.
func (s *Scheduler) RegisterAll(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	zerolog.Ctx(s.Ctx).Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	zerolog.Ctx(s.Ctx).Info().Msg("scheduler stopped")
}

// Latest returns the report of the most recent finished run, or nil.
func (s *Scheduler) Latest() *pipeline.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Restore loads the report saved by the previous process, if any.
func (s *Scheduler) Restore() error {
	if s.StatePath == "" {
		return nil
	}
	rep, err := LoadReport(s.StatePath)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.StatePath, err)
	}
	if rep != nil {
		s.mu.Lock()
		s.latest = rep
		s.mu.Unlock()
		zerolog.Ctx(s.Ctx).Info().Str("run_id", rep.RunID).Time("finished", rep.FinishedAt).Msg("restored latest report")
	}
	return nil
}

// Running reports whether a run is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

func (s *Scheduler) dailyTask() {
	if _, err := s.RunNow(); err != nil {
		zerolog.Ctx(s.Ctx).Error().Err(err).Msg("scheduled run")
	}
}

// RunNow executes one run synchronously and pushes its report. Overlapping
// calls return ErrRunInProgress without running.
func (s *Scheduler) RunNow() (*pipeline.Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		zerolog.Ctx(s.Ctx).Warn().Msg("run skipped, previous run still active")
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	rep, err := s.Runner.Run(s.Ctx, s.Request(time.Now()))
	if err != nil {
		s.trySend(fmt.Sprintf("❌ 选股失败: %v", err))
		return rep, err
	}
	s.mu.Lock()
	s.latest = rep
	s.mu.Unlock()
	if s.StatePath != "" {
		if err := SaveReport(s.StatePath, rep); err != nil {
			zerolog.Ctx(s.Ctx).Error().Err(err).Msg("save latest report")
		}
	}
	s.trySend(notifier.FormatTelegramReport(rep, s.MaxLines))
	return rep, nil
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/latest", "最新结果":
		rep := s.Latest()
		if rep == nil {
			return "暂无选股结果"
		}
		return notifier.FormatTelegramReport(rep, s.MaxLines)
	case "/scan", "立即选股":
		if s.Running() {
			return "选股正在进行中"
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.dailyTask()
		}()
		return "已开始选股, 完成后推送结果"
	default:
		return "可用命令:\n• /latest 最新结果\n• /scan 立即选股"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		zerolog.Ctx(s.Ctx).Error().Err(err).Msg("send notification")
	}
}
