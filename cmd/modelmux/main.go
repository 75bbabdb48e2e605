package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/modelmux/modelmux/internal/adapter/backend"
	mmhttp "github.com/modelmux/modelmux/internal/adapter/http"
	"github.com/modelmux/modelmux/internal/adapter/ws"
	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/logger"
	"github.com/modelmux/modelmux/internal/resilience"
	"github.com/modelmux/modelmux/internal/service"
)

func main() {
	// Optional .env for local development; environment wins either way.
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"endpoint", cfg.Backend.Endpoint,
		"orchestrator", cfg.Models.Orchestrator,
		"log_level", cfg.Logging.Level,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Services ---
	sessions := service.NewSessionStore()
	sessions.StartSweeper(ctx, cfg.Session.IdleTTL, cfg.Session.IdleTTL/2)

	hub := ws.NewHub()

	gw := backend.NewClient(
		cfg.Backend.Endpoint,
		cfg.Backend.Token,
		cfg.Backend.RequestTimeout,
		cfg.Backend.MaxRetries,
		cfg.Backend.RetryBaseDelay,
	)
	if cfg.Breaker.MaxFailures > 0 {
		gw.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	}

	pipeline := service.NewPipeline(gw, cfg.Models, sessions, hub)

	// --- HTTP ---
	handlers := mmhttp.NewHandlers(pipeline, cfg)

	r := chi.NewRouter()

	// No global timeout middleware: /query and /stream responses stay open
	// for the whole pipeline run.
	r.Use(mmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(mmhttp.RequestID)
	r.Use(mmhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// WebSocket observer feed
	r.Get("/ws", hub.HandleWS)

	mmhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streaming responses are open-ended; the pipeline bounds its own
		// work through per-attempt timeouts and retry limits.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
