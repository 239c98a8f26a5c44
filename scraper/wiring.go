package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/serprank/config"
	"github.com/use-agent/serprank/engine"
	"github.com/use-agent/serprank/rank"
)

// EnableEngines installs the multi-engine dispatcher: a plain HTTP engine
// first, then the browser without stealth, then the browser with stealth.
// Pages the detector recognizes as bot challenges are rejected so the race
// escalates. It returns the domain memory so the caller can stop its sweep.
func (s *Scraper) EnableEngines(cfg config.EngineConfig, detector *rank.Detector) *engine.DomainMemory {
	engines := []engine.Engine{
		engine.NewHTTPEngine(s.browserCfg.DefaultProxy, cfg.HTTPTimeout),
		newBrowserTier(s.FetchRod, engine.NameRod, false, cfg.RodTimeout),
		newBrowserTier(s.FetchRod, engine.NameRodStealth, true, cfg.RodStealthTimeout),
	}
	memory := engine.NewDomainMemory(cfg.MemoryTTL)
	d := engine.NewDispatcher(engines, cfg.EscalationDelays, memory)
	if detector != nil {
		d.SetValidator(blockedValidator(detector))
	}
	s.SetDispatcher(d)

	slog.Info("multi-engine dispatcher enabled",
		"engines", len(engines),
		"delays", cfg.EscalationDelays,
		"rod_timeout", cfg.RodTimeout,
		"rod_stealth_timeout", cfg.RodStealthTimeout,
	)
	return memory
}

type loadFunc func(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)

// browserTier races a browser page load as one dispatcher engine. Each
// tier pins its own stealth mode and timeout regardless of the request.
type browserTier struct {
	load    loadFunc
	name    string
	stealth bool
	timeout time.Duration
}

func newBrowserTier(load loadFunc, name string, stealth bool, timeout time.Duration) *browserTier {
	return &browserTier{load: load, name: name, stealth: stealth, timeout: timeout}
}

func (b *browserTier) Name() string { return b.name }

func (b *browserTier) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	r := *req
	r.Stealth = b.stealth
	if b.timeout > 0 {
		r.Timeout = b.timeout
	}
	res, err := b.load(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	res.EngineName = b.name
	return res, nil
}

func blockedValidator(detector *rank.Detector) engine.Validator {
	return func(res *engine.FetchResult) error {
		if detector.BlockedHTML(res.HTML) {
			return fmt.Errorf("%s: %w", res.EngineName, rank.ErrBlocked)
		}
		return nil
	}
}

// Sessions returns a factory that opens one Pager per keyword session.
// Every pager shares a single limiter so page loads stay under
// cfg.PageRate across concurrent sessions.
func Sessions(fetcher PageFetcher, cfg config.MarketplaceConfig) func() (rank.Browser, error) {
	var limiter *rate.Limiter
	if cfg.PageRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PageRate), 1)
	}
	opts := PagerOptions{
		BaseURL:              cfg.BaseURL,
		NextDisabledSelector: cfg.NextDisabledSelector,
		DelayMin:             cfg.PageDelayMin,
		DelayMax:             cfg.PageDelayMax,
		Limiter:              limiter,
	}
	return func() (rank.Browser, error) {
		return NewPager(fetcher, opts)
	}
}
