package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-relay/internal/auth"
	"voice-relay/internal/config"
	"voice-relay/internal/events"
	"voice-relay/internal/httpapi"
	"voice-relay/internal/metrics"
	"voice-relay/internal/missed"
	"voice-relay/internal/presence"
	"voice-relay/internal/relay"
	"voice-relay/internal/session"
	"voice-relay/pkg/logger"
	"voice-relay/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Presence backend: Redis when configured, in-memory otherwise.
	var presenceStore presence.Store
	if cfg.Redis.Host != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		presenceStore = presence.NewRedisStore(rdb)
	} else {
		presenceStore = presence.NewMemoryStore()
	}

	// Missed-call ledger backend: Postgres when configured.
	var missedRepo missed.Repository
	if cfg.DB.Host != "" {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		missedRepo = missed.NewPostgresRepo(db)
	} else {
		missedRepo = missed.NewMemoryRepo()
	}

	var notifier session.Notifier
	if cfg.AMQP.URL != "" {
		pub, err := events.NewRabbit(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Error("rabbitmq init failed", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		notifier = events.NewCallNotifier(pub, log)
	}

	presenceSvc := presence.NewService(presenceStore)
	ledger := missed.NewService(missedRepo)

	sessions := session.NewManager(session.ManagerConfig{
		Presence:    presenceSvc,
		Missed:      ledger,
		Notifier:    notifier,
		Metrics:     m,
		RingTimeout: cfg.Call.RingTimeout,
		Logger:      log,
	})
	presenceSvc.BindActiveCalls(sessions)

	signalRelay := relay.New(sessions, m, log)

	sweeper := presence.NewSweeper(presenceSvc, sessions, cfg.Call.HeartbeatInterval, cfg.Call.StaleTimeout, log)
	go sweeper.Run(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, httpapi.Handlers{
		Auth:     authManager,
		Presence: presenceSvc,
		Sessions: sessions,
		Relay:    signalRelay,
		Missed:   ledger,
	}, auth.RequireAccessToken(authManager), m)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
