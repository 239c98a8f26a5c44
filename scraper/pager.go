package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/time/rate"

	"github.com/use-agent/serprank/rank"
)

// PageFetcher loads the markup at a URL. *Scraper implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// PagerOptions configures a Pager.
type PagerOptions struct {
	// BaseURL is the storefront origin, e.g. "https://www.amazon.co.jp".
	BaseURL string

	// NextDisabledSelector matches the disabled "next" control on the last
	// results page. Empty disables end-of-feed detection.
	NextDisabledSelector string

	// DelayMin and DelayMax bound the random wait before each page after
	// the first.
	DelayMin time.Duration
	DelayMax time.Duration

	// Limiter paces page loads across every pager sharing it. Nil means
	// no pacing beyond the delay.
	Limiter *rate.Limiter
}

// Pager walks the paginated results of one keyword. It implements
// rank.Browser and is not safe for concurrent use; create one per session.
type Pager struct {
	fetcher  PageFetcher
	opts     PagerOptions
	lastPage cascadia.Selector

	keyword string
	page    int
	last    string

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPager returns a Pager over fetcher.
func NewPager(fetcher PageFetcher, opts PagerOptions) (*Pager, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("scraper: pager needs a base URL")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("scraper: pager base URL: %w", err)
	}
	p := &Pager{fetcher: fetcher, opts: opts, sleep: sleepCtx}
	if opts.NextDisabledSelector != "" {
		sel, err := cascadia.Compile(opts.NextDisabledSelector)
		if err != nil {
			return nil, fmt.Errorf("scraper: next-disabled selector: %w", err)
		}
		p.lastPage = sel
	}
	return p, nil
}

// SearchURL builds the results URL for keyword at the 1-based page.
func SearchURL(baseURL, keyword string, page int) string {
	v := url.Values{}
	v.Set("k", keyword)
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	return strings.TrimRight(baseURL, "/") + "/s?" + v.Encode()
}

// Navigate opens page 1 for keyword.
func (p *Pager) Navigate(ctx context.Context, keyword string) (string, error) {
	p.keyword = keyword
	p.page = 0
	p.last = ""
	return p.load(ctx, 1)
}

// NextPage loads the page after the current one. It returns
// rank.ErrNoMorePages when the current page shows a disabled "next"
// control.
func (p *Pager) NextPage(ctx context.Context) (string, error) {
	if p.page == 0 {
		return "", errors.New("scraper: NextPage called before Navigate")
	}
	if p.onLastPage() {
		return "", rank.ErrNoMorePages
	}
	if err := p.sleep(ctx, jitter(p.opts.DelayMin, p.opts.DelayMax)); err != nil {
		return "", err
	}
	return p.load(ctx, p.page+1)
}

// Page returns the number of the page most recently loaded.
func (p *Pager) Page() int { return p.page }

func (p *Pager) load(ctx context.Context, n int) (string, error) {
	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	raw, err := p.fetcher.FetchPage(ctx, SearchURL(p.opts.BaseURL, p.keyword, n))
	if err != nil {
		return "", fmt.Errorf("scraper: load page %d of %q: %w", n, p.keyword, err)
	}
	p.page = n
	p.last = raw
	return raw, nil
}

// onLastPage reports whether the last loaded page marks the end of the
// feed. Unparseable markup is treated as "not last" so the next load can
// decide.
func (p *Pager) onLastPage() bool {
	if p.lastPage == nil || p.last == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.last))
	if err != nil {
		return false
	}
	return doc.FindMatcher(p.lastPage).Length() > 0
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
