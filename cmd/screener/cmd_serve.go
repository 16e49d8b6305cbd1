package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"StockScreener/internal/httpapi"
	"StockScreener/internal/notifier"
	"StockScreener/internal/scheduler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the screener on schedule.daily_cron",
	Long: `Run the full pipeline on the configured cron schedule. When configured, the
report is pushed to Telegram (which also answers /latest and /scan) and a
read-only HTTP server exposes /healthz, /metrics and /recommendations.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	boards, err := selectBoards("", a.cfg.Screen.Boards)
	if err != nil {
		return err
	}

	var tn *notifier.TelegramNotifier
	sched := scheduler.NewScheduler(ctx, a.pipeline, nil, a.request(boards, true))
	if a.cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy)
		sched.Notifier = tn
	}
	sched.StatePath = a.cfg.Schedule.StateFile
	if err := sched.Restore(); err != nil {
		log.Warn().Err(err).Msg("previous report not restored")
	}
	if err := sched.RegisterAll(a.cfg.Schedule.DailyCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	var srv *httpapi.Server
	if a.cfg.HTTP.Addr != "" {
		srv = httpapi.NewServer(a.cfg.HTTP.Addr, sched, a.recorder, a.metrics, log.Logger)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("http server")
				stop()
			}
		}()
	}

	if a.cfg.Schedule.RunOnStart {
		log.Info().Msg("run_on_start enabled, executing screening now")
		sched.HandleCommand(ctx, "/scan")
	}

	log.Info().Str("cron", a.cfg.Schedule.DailyCron).Msg("screener is running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	}
	return nil
}
