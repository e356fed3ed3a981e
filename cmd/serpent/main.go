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

	"github.com/use-agent/serpent/api"
	"github.com/use-agent/serpent/api/handler"
	"github.com/use-agent/serpent/cache"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/manager"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("serpent starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"engine", cfg.Scrape.SearchEngine,
	)

	// ── 3. Open the scrape session (launches browser) ───────────────
	mgr, err := manager.New(cfg.Scrape)
	if err != nil {
		slog.Error("invalid scrape configuration", "error", err)
		os.Exit(1)
	}
	if err := mgr.Start(context.Background()); err != nil {
		slog.Error("failed to start scrape session", "error", err)
		os.Exit(1)
	}

	// ── 4. Cache and job store ──────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()
	jobs := handler.NewJobStore(cfg.Jobs.TTL)
	defer jobs.Close()

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(mgr, cfg, cc, jobs, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Background jobs still hold the session; let them finish first.
	jobsDone := make(chan struct{})
	go func() {
		jobs.Wait()
		close(jobsDone)
	}()
	select {
	case <-jobsDone:
	case <-ctx.Done():
		slog.Warn("abandoning running jobs")
	}

	if err := mgr.Quit(context.Background()); err != nil {
		slog.Error("failed to close scrape session", "error", err)
	}
	slog.Info("serpent stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
