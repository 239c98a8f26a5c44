package rank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrNoMorePages is returned by Browser.NextPage when the feed has ended.
	ErrNoMorePages = errors.New("rank: no more pages")

	// ErrBlocked marks a session stopped by a bot challenge. A Browser may
	// also wrap it when it recognizes the challenge itself.
	ErrBlocked = errors.New("rank: blocked by anti-automation challenge")
)

// Browser supplies page markup for one keyword session. Calls may block and
// must honour ctx.
type Browser interface {
	// Navigate opens the first results page for keyword.
	Navigate(ctx context.Context, keyword string) (string, error)

	// NextPage moves to the following results page, or returns
	// ErrNoMorePages.
	NextPage(ctx context.Context) (string, error)
}

// Status tags how a session ended.
type Status string

const (
	StatusExhausted Status = "exhausted"
	StatusComplete  Status = "complete"
	StatusBlocked   Status = "blocked"
	StatusError     Status = "error"
)

// Retryable reports whether the caller should run the keyword again later.
func (s Status) Retryable() bool {
	return s == StatusBlocked || s == StatusError
}

// Result is the artifact of one keyword session.
type Result struct {
	Keyword  string
	Status   Status
	Pages    int
	Counters Counters
	Targets  []string
	Ranks    map[string]Positions
	Err      error
}

// Positions returns the ranks of id; unknown ids yield all NotFound.
func (r *Result) Positions(id string) Positions {
	return r.Ranks[id]
}

// Found counts the filled slots across every target.
func (r *Result) Found() int {
	n := 0
	for _, p := range r.Ranks {
		for _, c := range Categories {
			if p.Get(c).Found() {
				n++
			}
		}
	}
	return n
}

// Options configures a Tracker.
type Options struct {
	// PageBudget is the maximum number of pages scanned per keyword.
	PageBudget int

	// EarlyStop ends a session as soon as every target has every category.
	EarlyStop bool

	// CountUnidentified lets elements without any valid identifier occupy a
	// rank slot. When false they are skipped before counting.
	CountUnidentified bool

	Markers Markers

	Logger *slog.Logger
}

// DefaultOptions returns a three page budget with early stop enabled.
func DefaultOptions() Options {
	return Options{
		PageBudget:        3,
		EarlyStop:         true,
		CountUnidentified: true,
		Markers:           DefaultMarkers(),
	}
}

// Tracker drives keyword sessions. It holds only immutable, compiled
// configuration and is safe for concurrent use.
type Tracker struct {
	opts       Options
	classifier *Classifier
	extractor  *Extractor
	detector   *Detector
	log        *slog.Logger
}

// NewTracker compiles opts.Markers and returns a ready Tracker.
func NewTracker(opts Options) (*Tracker, error) {
	if opts.PageBudget <= 0 {
		return nil, fmt.Errorf("rank: page budget must be positive, got %d", opts.PageBudget)
	}
	c, err := opts.Markers.compile()
	if err != nil {
		return nil, err
	}
	shape := opts.Markers.Shape()
	attr, err := NewAttributeStrategy(opts.Markers.IdentifierAttr, shape)
	if err != nil {
		return nil, fmt.Errorf("rank: markers: identifier attr: %w", err)
	}
	strategies := []Strategy{attr}
	if c.link != nil {
		strategies = append(strategies, NewLinkStrategy(c.link, shape))
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Tracker{
		opts:       opts,
		classifier: newClassifier(opts.Markers, c),
		extractor:  NewExtractor(strategies...),
		detector:   newDetector(opts.Markers, c),
		log:        log,
	}, nil
}

// Options returns the tracker configuration.
func (t *Tracker) Options() Options { return t.opts }

// Track runs one keyword session against b and always returns a Result.
// The ledger in the Result reflects every page scanned before the session
// stopped.
func (t *Tracker) Track(ctx context.Context, b Browser, keyword string, targets []string) *Result {
	s := t.NewSession(keyword, targets)
	log := t.log.With("keyword", keyword)

	for page := 1; page <= t.opts.PageBudget; page++ {
		if err := ctx.Err(); err != nil {
			log.Warn("session cancelled", "page", page, "error", err)
			return s.Result(StatusError, err)
		}

		var raw string
		var err error
		if page == 1 {
			raw, err = b.Navigate(ctx, keyword)
		} else {
			raw, err = b.NextPage(ctx)
		}
		switch {
		case errors.Is(err, ErrNoMorePages):
			log.Info("no more pages", "page", page)
			return s.Result(StatusExhausted, nil)
		case errors.Is(err, ErrBlocked):
			log.Warn("blocked while loading page", "page", page)
			return s.Result(StatusBlocked, err)
		case err != nil:
			log.Warn("page load failed", "page", page, "error", err)
			return s.Result(StatusError, err)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err != nil {
			log.Warn("page parse failed", "page", page, "error", err)
			return s.Result(StatusError, fmt.Errorf("rank: parse page %d: %w", page, err))
		}

		if t.detector.Blocked(doc) {
			log.Warn("bot challenge detected", "page", page)
			return s.Result(StatusBlocked, ErrBlocked)
		}

		n := s.ScanPage(doc)
		if n == 0 {
			log.Warn("no listing elements on page", "page", page)
			continue
		}
		log.Debug("page scanned", "page", page, "elements", n)

		if t.opts.EarlyStop && s.ledger.Complete() {
			log.Info("all targets ranked in every category", "page", page)
			return s.Result(StatusComplete, nil)
		}
	}

	return s.Result(StatusExhausted, nil)
}

// Detector returns the tracker's bot challenge detector.
func (t *Tracker) Detector() *Detector { return t.detector }

// WithPolicy returns a Tracker sharing t's compiled markers but with its
// own page budget and early stop switch. A non-positive budget keeps t's.
func (t *Tracker) WithPolicy(pageBudget int, earlyStop bool) *Tracker {
	c := *t
	if pageBudget > 0 {
		c.opts.PageBudget = pageBudget
	}
	c.opts.EarlyStop = earlyStop
	return &c
}
