package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/serprank/config"
	"github.com/use-agent/serprank/engine"
	"github.com/use-agent/serprank/models"
)

// Scraper manages the global browser lifecycle and the page pool.
// It is safe for concurrent use.
type Scraper struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	browserCfg  config.BrowserConfig
	scraperCfg  config.ScraperConfig
	activePages atomic.Int32
	startTime   time.Time
	dispatcher  *engine.Dispatcher
}

// NewScraper launches a headless browser and initialises the reusable page pool.
func NewScraper(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) (*Scraper, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// Hide automation markers the storefront's bot checks look at.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("lang"), "ja-JP")
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(browserCfg.MaxPages)
	slog.Info("page pool created", "maxPages", browserCfg.MaxPages)

	return &Scraper{
		browser:    browser,
		pagePool:   pool,
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		startTime:  time.Now(),
	}, nil
}

// SetDispatcher sets the multi-engine dispatcher. When set, FetchPage
// races the configured engines before falling back to the browser.
func (s *Scraper) SetDispatcher(d *engine.Dispatcher) {
	s.dispatcher = d
}

// FetchPage loads one results page and returns its markup. It satisfies
// PageFetcher.
//
// When every engine was served a bot challenge the failure is returned as
// blocked so the session ends. Any other dispatcher failure, including a
// mix of challenges and timeouts, falls back to a direct browser load.
func (s *Scraper) FetchPage(ctx context.Context, url string) (string, error) {
	req := &engine.FetchRequest{
		URL:     url,
		Timeout: s.scraperCfg.PageTimeout,
		Stealth: s.scraperCfg.Stealth,
	}

	if s.dispatcher != nil {
		result, err := s.dispatcher.Dispatch(ctx, req)
		if err == nil {
			return result.HTML, nil
		}
		if terr := terminalDispatchError(ctx, err); terr != nil {
			return "", terr
		}
		slog.Warn("dispatcher failed, falling back to direct rod load",
			"url", url, "error", err)
	}

	result, err := s.FetchRod(ctx, req)
	if err != nil {
		return "", err
	}
	return result.HTML, nil
}

// terminalDispatchError returns the error that ends the page load after a
// dispatcher failure, or nil when a direct browser load should be tried.
func terminalDispatchError(ctx context.Context, err error) error {
	if errors.Is(err, engine.ErrAllRejected) {
		return models.NewScrapeError(models.ErrCodeBlocked, "every engine hit a bot challenge", err)
	}
	if ctx.Err() != nil {
		return categorizeError(err, "results page fetch cancelled")
	}
	return nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    s.browserCfg.MaxPages,
		ActivePages: int(s.activePages.Load()),
	}
}

// Uptime reports how long the browser has been running.
func (s *Scraper) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: draining page pool")
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("scraper shutting down: closing browser")
	s.browser.MustClose()
	slog.Info("scraper shutdown complete")
}
