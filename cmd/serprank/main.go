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

	"github.com/use-agent/serprank/api"
	"github.com/use-agent/serprank/api/handler"
	"github.com/use-agent/serprank/cache"
	"github.com/use-agent/serprank/config"
	"github.com/use-agent/serprank/rank"
	"github.com/use-agent/serprank/runner"
	"github.com/use-agent/serprank/scraper"
	"github.com/use-agent/serprank/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	config.SetupLogger(cfg.Log, os.Stdout)
	slog.Info("serprank starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"pageBudget", cfg.Rank.PageBudget,
	)

	// ── 3. Compile the rank engine ──────────────────────────────────
	tracker, err := rank.NewTracker(cfg.RankOptions())
	if err != nil {
		slog.Error("invalid rank markers", "error", err)
		os.Exit(1)
	}

	// ── 4. Initialise scraper (launches browser) ────────────────────
	sc, err := scraper.NewScraper(cfg.Browser, cfg.Scraper)
	if err != nil {
		slog.Error("failed to initialise scraper", "error", err)
		os.Exit(1)
	}
	defer sc.Close()

	if cfg.Engine.EnableMultiEngine {
		memory := sc.EnableEngines(cfg.Engine, tracker.Detector())
		defer memory.Stop()
	}

	// ── 5. Runner, cache, batches ───────────────────────────────────
	opts := cfg.RunnerOptions()
	opts.Logger = slog.Default()
	batchCtx, stopBatches := context.WithCancel(context.Background())
	defer stopBatches()
	svc := &handler.Service{
		Tracker:     tracker,
		Runner:      runner.New(tracker, scraper.Sessions(sc, cfg.Marketplace), opts),
		Cache:       cache.New(cfg.Cache.MaxEntries),
		Notifier:    webhook.NewNotifier(),
		Batches:     handler.NewBatchStore(time.Hour),
		BaseContext: batchCtx,
	}
	defer svc.Cache.Stop()
	defer svc.Batches.Stop()

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(svc, sc, cfg, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
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

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Rank requests hold a browser for minutes; give them a longer drain.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Background batches outlive their request; end them with the server.
	stopBatches()

	slog.Info("serprank stopped")
}
