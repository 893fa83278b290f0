package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"remindly/internal/auth"
	"remindly/internal/config"
	"remindly/internal/db"
	httpx "remindly/internal/http"
	"remindly/internal/logger"
	"remindly/internal/notify"
	"remindly/internal/reminder"
	"remindly/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("load config")
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		zlog.Fatal().Err(err).Msg("init logger")
	}

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("connect database")
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store := &reminder.Store{DB: gdb, Clock: reminder.SystemClock, Location: cfg.Location()}

	notifier, err := buildNotifier(cfg.Notify, gdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build notifier")
	}

	sched := scheduler.New(scheduler.Config{
		Cadence:     cfg.Scheduler.Cadence,
		PassTimeout: cfg.Scheduler.PassTimeout,
	}, store, notifier, reminder.SystemClock, logger.Component(log, "scheduler"))

	jwtSvc := auth.NewJWT(cfg.JWTSecret)
	r := httpx.NewRouter(cfg, logger.Component(log, "http"), gdb, jwtSvc, store, sched)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.Env).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// let the server settle before the first pass
	startCtx, cancelStart := context.WithCancel(context.Background())
	startDone := make(chan struct{})
	go func() {
		defer close(startDone)
		if !cfg.Scheduler.Enabled {
			log.Warn().Msg("scheduler disabled; reminders are only checked on manual trigger")
			return
		}
		select {
		case <-time.After(cfg.Scheduler.StartDelay):
			sched.Start()
		case <-startCtx.Done():
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancelStart()
	<-startDone
	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

// buildNotifier always logs; in-app and Telegram delivery are opt-in.
func buildNotifier(cfg config.NotifyConfig, gdb *gorm.DB, log zerolog.Logger) (notify.Notifier, error) {
	chain := notify.Multi{notify.LogNotifier{Log: logger.Component(log, "notify"), DB: gdb}}

	if cfg.InApp {
		chain = append(chain, &notify.InAppNotifier{DB: gdb, Clock: reminder.SystemClock})
	}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramRatePerSec)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tg)
	}

	names := make([]string, 0, len(chain))
	for _, n := range chain {
		names = append(names, fmt.Sprintf("%T", n))
	}
	log.Info().Strs("channels", names).Msg("notifier ready")
	return chain, nil
}
