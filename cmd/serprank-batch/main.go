// Command serprank-batch reads an "asin,keyword" CSV, checks every keyword
// and writes one row per ASIN to a CSV report. Rows are also appended to
// Postgres when SERPRANK_DATABASE_URL is set and to SQLite when
// SERPRANK_SQLITE_PATH is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/use-agent/serprank/config"
	"github.com/use-agent/serprank/rank"
	"github.com/use-agent/serprank/report"
	"github.com/use-agent/serprank/runner"
	"github.com/use-agent/serprank/scraper"
)

func main() {
	if err := run(); err != nil {
		slog.Error("batch failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	jobsPath := flag.String("jobs", "", "CSV with asin and keyword columns (required)")
	outPath := flag.String("out", cfg.Report.OutputPath, "CSV report to write")
	pages := flag.Int("pages", cfg.Rank.PageBudget, "result pages scanned per keyword")
	earlyStop := flag.Bool("early-stop", cfg.Rank.EarlyStop, "stop a keyword once every ASIN is ranked everywhere")
	flag.Parse()
	if *jobsPath == "" {
		flag.Usage()
		return fmt.Errorf("-jobs is required")
	}

	config.SetupLogger(cfg.Log, os.Stderr)

	cfg.Report.OutputPath = *outPath
	cfg.Rank.PageBudget = *pages
	cfg.Rank.EarlyStop = *earlyStop
	tracker, err := rank.NewTracker(cfg.RankOptions())
	if err != nil {
		return err
	}

	f, err := os.Open(*jobsPath)
	if err != nil {
		return fmt.Errorf("open jobs: %w", err)
	}
	jobs, err := report.ReadJobs(f, cfg.Markers.Shape())
	f.Close()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		slog.Warn("jobs file has no valid rows", "path", *jobsPath)
		return nil
	}

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("closing report", "error", err)
		}
	}()

	sc, err := scraper.NewScraper(cfg.Browser, cfg.Scraper)
	if err != nil {
		return err
	}
	defer sc.Close()
	if cfg.Engine.EnableMultiEngine {
		memory := sc.EnableEngines(cfg.Engine, tracker.Detector())
		defer memory.Stop()
	}

	opts := cfg.RunnerOptions()
	opts.Logger = slog.Default()
	r := runner.New(tracker, scraper.Sessions(sc, cfg.Marketplace), opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("batch starting", "keywords", len(jobs), "pages", *pages, "out", *outPath)

	var (
		mu     sync.Mutex
		failed int
	)
	r.Run(ctx, jobs, func(_ int, o runner.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if o.Result.Status.Retryable() {
			failed++
		}
		if err := sink.Write(report.Rows(o)); err != nil {
			slog.Error("writing report rows", "keyword", o.Job.Keyword, "error", err)
		}
		slog.Info("keyword done",
			"keyword", o.Job.Keyword,
			"status", o.Result.Status,
			"pages", o.Result.Pages,
			"attempts", o.Attempts,
		)
	})

	slog.Info("batch finished", "keywords", len(jobs), "failed", failed)
	return nil
}

// openSink opens the CSV report plus whichever history databases are
// configured.
func openSink(cfg *config.Config) (report.Writer, error) {
	csvw, err := report.CreateCSV(cfg.Report.OutputPath, cfg.Rank.NotFoundLabel)
	if err != nil {
		return nil, err
	}
	sink := report.MultiWriter{csvw}

	if cfg.Report.DatabaseURL != "" {
		pg, err := report.NewPostgresWriter(cfg.Report.DatabaseURL)
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
		sink = append(sink, pg)
	}
	if cfg.Report.SQLitePath != "" {
		lite, err := report.NewSQLiteWriter(cfg.Report.SQLitePath)
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
		sink = append(sink, lite)
	}
	return sink, nil
}
