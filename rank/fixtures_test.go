package rank

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func organic(asin string) string {
	return `<div data-component-type="s-search-result" data-asin="` + asin + `">` +
		`<h2><a href="/Some-Product/dp/` + asin + `/ref=sr_1_1">item</a></h2></div>`
}

func sponsoredProduct(asin string) string {
	return `<div data-component-type="s-search-result" data-asin="` + asin + `">` +
		`<span data-component-type="s-sponsored-label">Sponsored</span>` +
		`<a href="/sspa/click?url=%2Fdp%2F` + asin + `">item</a></div>`
}

func brand(asins ...string) string {
	var b strings.Builder
	b.WriteString(`<div data-component-type="s-impression-logger">`)
	for _, a := range asins {
		b.WriteString(`<div class="card" data-asin="` + a + `"></div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func brandVideo(asins ...string) string {
	var b strings.Builder
	b.WriteString(`<div data-component-type="sbv-video-single-product">`)
	for _, a := range asins {
		b.WriteString(`<a href="https://www.amazon.co.jp/gp/product/` + a + `?ref=sbv">watch</a>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func page(items ...string) string {
	return `<html><head><title>Amazon.co.jp : results</title></head><body><div class="s-main-slot">` +
		strings.Join(items, "\n") + `</div></body></html>`
}

const challengePage = `<html><head><title>Amazon.co.jp</title></head><body>
<form method="get" action="/errors/validateCaptcha"><input name="amzn"></form></body></html>`

func parse(t *testing.T, raw string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func newTestTracker(t *testing.T, mutate func(*Options)) *Tracker {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	tr, err := NewTracker(opts)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

// fakeBrowser serves canned pages. errs[i] fails the load of page i+1.
type fakeBrowser struct {
	pages []string
	errs  map[int]error
	loads int
}

func (f *fakeBrowser) Navigate(_ context.Context, _ string) (string, error) {
	f.loads = 1
	return f.load(0)
}

func (f *fakeBrowser) NextPage(_ context.Context) (string, error) {
	f.loads++
	idx := f.loads - 1
	if idx >= len(f.pages) {
		return "", ErrNoMorePages
	}
	return f.load(idx)
}

func (f *fakeBrowser) load(idx int) (string, error) {
	if err := f.errs[idx]; err != nil {
		return "", err
	}
	return f.pages[idx], nil
}
