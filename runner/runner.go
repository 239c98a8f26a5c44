// Package runner executes keyword rank sessions in parallel with retries.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/use-agent/serprank/rank"
)

// Job is one keyword and the ASINs tracked for it.
type Job struct {
	Keyword string
	Targets []string
}

// Outcome is the final session of a Job.
type Outcome struct {
	Job      Job
	Result   *rank.Result
	Attempts int
	Started  time.Time
	Finished time.Time
}

// BrowserFactory returns a fresh rank.Browser for one session attempt.
type BrowserFactory func() (rank.Browser, error)

// Options configures a Runner.
type Options struct {
	// Concurrency is the number of sessions run at once.
	Concurrency int

	// MaxAttempts bounds how often a blocked or failed keyword is run.
	MaxAttempts int

	// RetryDelay is the base back-off after an error session; it doubles
	// per attempt.
	RetryDelay time.Duration

	// BlockedDelay is the base back-off after a blocked session.
	BlockedDelay time.Duration

	// KeywordDelayMin and KeywordDelayMax bound the random wait between
	// starting consecutive keywords.
	KeywordDelayMin time.Duration
	KeywordDelayMax time.Duration

	// JobTimeout bounds all attempts of one keyword. Zero means no limit
	// beyond the caller's context.
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Runner schedules sessions. It is safe for concurrent use.
type Runner struct {
	tracker    *rank.Tracker
	newBrowser BrowserFactory
	opts       Options
	log        *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New returns a Runner. Zero Concurrency and MaxAttempts default to 1.
func New(tracker *rank.Tracker, newBrowser BrowserFactory, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		tracker:    tracker,
		newBrowser: newBrowser,
		opts:       opts,
		log:        log,
		sleep:      sleepCtx,
	}
}

// WithTracker returns a copy of r that runs sessions with t.
func (r *Runner) WithTracker(t *rank.Tracker) *Runner {
	c := *r
	c.tracker = t
	return &c
}

// WithJobTimeout returns a copy of r with a different per-keyword timeout.
func (r *Runner) WithJobTimeout(d time.Duration) *Runner {
	c := *r
	c.opts.JobTimeout = d
	return &c
}

// Run executes every job and returns the outcomes in job order. onDone,
// when non-nil, is called from worker goroutines as each job finishes.
// A failing keyword never stops the others.
func (r *Runner) Run(ctx context.Context, jobs []Job, onDone func(idx int, o Outcome)) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	sem := make(chan struct{}, r.opts.Concurrency)
	var wg sync.WaitGroup

	for i, job := range jobs {
		if i > 0 {
			if err := r.sleep(ctx, jitter(r.opts.KeywordDelayMin, r.opts.KeywordDelayMax)); err != nil {
				r.log.Debug("keyword delay interrupted", "remaining", len(jobs)-i, "error", err)
			}
		}

		// A cancelled batch still records an error outcome per job.
		acquired := false
		select {
		case sem <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}

		wg.Add(1)
		go func(idx int, j Job, acquired bool) {
			defer wg.Done()
			if acquired {
				defer func() { <-sem }()
			}
			o := r.RunOne(ctx, j)
			outcomes[idx] = o
			if onDone != nil {
				onDone(idx, o)
			}
		}(i, job, acquired)
	}

	wg.Wait()
	return outcomes
}

// RunOne runs a single keyword, retrying blocked and error sessions with
// exponential back-off until MaxAttempts or ctx ends.
func (r *Runner) RunOne(ctx context.Context, job Job) Outcome {
	o := Outcome{Job: job, Started: time.Now()}
	log := r.log.With("keyword", job.Keyword)

	if r.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.JobTimeout)
		defer cancel()
	}

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		o.Attempts = attempt
		res := r.attempt(ctx, job)
		if !res.Status.Retryable() || o.Result == nil || moreInformative(res, o.Result) {
			o.Result = res
		}
		if !res.Status.Retryable() || attempt == r.opts.MaxAttempts || ctx.Err() != nil {
			break
		}

		delay := r.backoff(res.Status, attempt)
		log.Warn("session failed, retrying",
			"status", res.Status,
			"attempt", attempt,
			"delay", delay,
			"error", res.Err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			break
		}
	}

	o.Finished = time.Now()
	log.Info("keyword finished",
		"status", o.Result.Status,
		"attempts", o.Attempts,
		"pages", o.Result.Pages,
	)
	return o
}

// moreInformative reports whether failed attempt a measured more than b:
// more pages scanned, then more slots filled. Ties go to a, the newer one.
func moreInformative(a, b *rank.Result) bool {
	if a.Pages != b.Pages {
		return a.Pages > b.Pages
	}
	return a.Found() >= b.Found()
}

func (r *Runner) attempt(ctx context.Context, job Job) *rank.Result {
	if err := ctx.Err(); err != nil {
		return &rank.Result{Keyword: job.Keyword, Status: rank.StatusError, Targets: job.Targets, Err: err}
	}
	b, err := r.newBrowser()
	if err != nil {
		return &rank.Result{
			Keyword: job.Keyword,
			Status:  rank.StatusError,
			Targets: job.Targets,
			Err:     fmt.Errorf("runner: open browser: %w", err),
		}
	}
	return r.tracker.Track(ctx, b, job.Keyword, job.Targets)
}

// backoff returns base * 2^(attempt-1), with the blocked base for blocked
// sessions.
func (r *Runner) backoff(status rank.Status, attempt int) time.Duration {
	base := r.opts.RetryDelay
	if status == rank.StatusBlocked {
		base = r.opts.BlockedDelay
	}
	return base << (attempt - 1)
}

// jitter returns a random duration in [min, max].
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
