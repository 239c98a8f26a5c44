package handler

import (
	"context"
	"time"

	"github.com/use-agent/serprank/cache"
	"github.com/use-agent/serprank/rank"
	"github.com/use-agent/serprank/runner"
	"github.com/use-agent/serprank/webhook"
)

// Service bundles what the rank handlers need.
type Service struct {
	// Tracker carries the server's default policy and compiled markers.
	Tracker *rank.Tracker

	// Runner executes keyword sessions with retries.
	Runner *runner.Runner

	// Cache is optional; nil disables max_age lookups.
	Cache *cache.Cache

	// Notifier delivers batch webhooks; nil disables them.
	Notifier *webhook.Notifier

	// Batches holds in-flight and recent batch jobs.
	Batches *BatchStore

	// BaseContext parents every background batch. Cancelling it on server
	// shutdown stops the remaining keywords. Nil means context.Background.
	BaseContext context.Context
}

func (s *Service) baseContext() context.Context {
	if s.BaseContext != nil {
		return s.BaseContext
	}
	return context.Background()
}

// runnerFor returns a runner applying the per-request overrides.
func (s *Service) runnerFor(pages int, earlyStop *bool, timeout time.Duration) *runner.Runner {
	opts := s.Tracker.Options()
	stop := opts.EarlyStop
	if earlyStop != nil {
		stop = *earlyStop
	}
	return s.Runner.WithTracker(s.Tracker.WithPolicy(pages, stop)).WithJobTimeout(timeout)
}

// effectivePolicy resolves the page budget and early stop switch a request
// runs with, for cache keys.
func (s *Service) effectivePolicy(pages int, earlyStop *bool) (int, bool) {
	opts := s.Tracker.Options()
	if pages <= 0 {
		pages = opts.PageBudget
	}
	stop := opts.EarlyStop
	if earlyStop != nil {
		stop = *earlyStop
	}
	return pages, stop
}
