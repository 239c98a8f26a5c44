package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// Dispatcher coordinates multi-engine racing with staged escalation.
// It starts the fastest engine first and progressively escalates to heavier
// engines if earlier ones fail, time out, or return a page the validator
// rejects.
type Dispatcher struct {
	engines          []Engine
	escalationDelays []time.Duration
	memory           *DomainMemory
	validate         Validator
}

// NewDispatcher creates a Dispatcher with the given engines and escalation delays.
// engines[i] starts after escalationDelays[i] from the race beginning.
// The first delay should be 0 (immediate start).
func NewDispatcher(engines []Engine, escalationDelays []time.Duration, memory *DomainMemory) *Dispatcher {
	// Missing delays default to 0.
	delays := make([]time.Duration, len(engines))
	copy(delays, escalationDelays)
	return &Dispatcher{
		engines:          engines,
		escalationDelays: delays,
		memory:           memory,
	}
}

// SetValidator installs a page validator applied to every engine result.
func (d *Dispatcher) SetValidator(v Validator) {
	d.validate = v
}

// Dispatch runs the multi-engine race for the given request and returns
// the first accepted result. If all engines fail, the returned error joins
// every engine error so callers can test for specific causes with errors.Is.
// It also wraps ErrAllRejected when each failure was a validator rejection.
func (d *Dispatcher) Dispatch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	domain := extractDomain(req.URL)

	// Try the engine that last won for this domain before racing.
	if remembered := d.memory.Get(domain); remembered != "" {
		for _, eng := range d.engines {
			if eng.Name() != remembered {
				continue
			}
			slog.Debug("domain memory hit", "domain", domain, "engine", remembered)
			result, err := d.fetch(ctx, eng, req)
			if err == nil {
				return result, nil
			}
			slog.Info("domain memory miss (engine failed), running full race",
				"domain", domain, "engine", remembered, "error", err)
			d.memory.Delete(domain)
			break
		}
	}

	return d.race(ctx, req, domain)
}

// fetch runs one engine and applies the validator.
func (d *Dispatcher) fetch(ctx context.Context, e Engine, req *FetchRequest) (*FetchResult, error) {
	result, err := e.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if d.validate != nil {
		if verr := d.validate(result); verr != nil {
			return nil, fmt.Errorf("%s: %w: %w", e.Name(), ErrRejected, verr)
		}
	}
	return result, nil
}

// race runs all engines with staged delays and returns the first success.
func (d *Dispatcher) race(ctx context.Context, req *FetchRequest, domain string) (*FetchResult, error) {
	type raceResult struct {
		result *FetchResult
		err    error
	}

	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	results := make(chan raceResult, len(d.engines))
	var wg sync.WaitGroup

	for i, eng := range d.engines {
		delay := d.escalationDelays[i]
		wg.Add(1)
		go func(e Engine, delay time.Duration) {
			defer wg.Done()

			if delay > 0 {
				select {
				case <-raceCtx.Done():
					return
				case <-time.After(delay):
				}
			}

			// Another engine may already have won.
			select {
			case <-raceCtx.Done():
				return
			default:
			}

			slog.Debug("engine starting", "engine", e.Name(), "url", req.URL)
			result, err := d.fetch(raceCtx, e, req)
			if err != nil {
				slog.Debug("engine failed", "engine", e.Name(), "url", req.URL, "error", err)
			}
			results <- raceResult{result: result, err: err}
		}(eng, delay)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	rejected := 0
	for rr := range results {
		if rr.err != nil {
			errs = append(errs, rr.err)
			if errors.Is(rr.err, ErrRejected) {
				rejected++
			}
			continue
		}
		raceCancel()
		slog.Info("engine won race", "engine", rr.result.EngineName, "url", req.URL)
		d.memory.Set(domain, rr.result.EngineName)
		return rr.result, nil
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("dispatcher: all engines failed for %s", req.URL)
	}
	if rejected == len(errs) {
		return nil, fmt.Errorf("dispatcher: %w for %s: %w", ErrAllRejected, req.URL, errors.Join(errs...))
	}
	return nil, fmt.Errorf("dispatcher: all engines failed for %s: %w", req.URL, errors.Join(errs...))
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
