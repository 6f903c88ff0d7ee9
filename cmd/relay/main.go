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

	"callbridge/internal/config"
	"callbridge/internal/realtime"
	"callbridge/internal/relay"
	"callbridge/internal/status"
	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "relay")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	newClient, err := realtime.NewFactory(cfg.Realtime)
	if err != nil {
		log.Error("realtime init failed", "err", err)
		os.Exit(1)
	}
	if !cfg.Backend.Enabled() {
		log.Warn("backend not configured, status reporting disabled")
	}

	media := relay.NewServer(relay.Options{
		NewClient:     newClient,
		Reporter:      status.New(cfg.Backend, &http.Client{Timeout: cfg.Backend.Timeout}),
		ReportTimeout: cfg.Backend.Timeout,
		Log:           log,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	media.Register(r)

	// No read/write timeouts: media sockets live as long as the call.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("relay listening", "addr", srv.Addr, "env", cfg.App.Env, "realtime_mode", cfg.Realtime.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated", "sessions", media.ActiveSessions())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// http.Server.Shutdown stops the listener but does not track hijacked
	// media sockets; the relay closes those and waits for their last reports.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := media.Shutdown(shutdownCtx); err != nil {
		log.Error("status reports not flushed before shutdown deadline", "err", err)
	}
}
