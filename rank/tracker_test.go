package rank

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

const target = "AAAAAAAAAA"

func TestTrack_OrganicAndSponsoredAcrossPages(t *testing.T) {
	tr := newTestTracker(t, nil)
	b := &fakeBrowser{pages: []string{
		page(organic("B0AAAAAAA1"), organic("B0AAAAAAA2"), organic("B0AAAAAAA3"), sponsoredProduct(target)),
		page(organic(target)),
	}}

	res := tr.Track(context.Background(), b, "kw", []string{target})

	if res.Status != StatusExhausted {
		t.Fatalf("status = %s, want exhausted", res.Status)
	}
	got := res.Positions(target)
	if got.SponsoredProduct != 1 {
		t.Errorf("sponsored_product_rank = %d, want 1", got.SponsoredProduct)
	}
	// Counters are cumulative: the page 2 card is the fourth organic result.
	if got.Organic != 4 {
		t.Errorf("organic_rank = %d, want 4", got.Organic)
	}
	if got.SponsoredBrand.Found() || got.SponsoredBrandVideo.Found() {
		t.Errorf("brand slots should be empty: %+v", got)
	}
}

func TestTrack_TargetOnlySponsored(t *testing.T) {
	tr := newTestTracker(t, nil)
	b := &fakeBrowser{pages: []string{
		page(organic("B0AAAAAAA1"), organic("B0AAAAAAA2"), organic("B0AAAAAAA3"), sponsoredProduct(target)),
		page(organic("B0AAAAAAA4")),
	}}

	got := tr.Track(context.Background(), b, "kw", []string{target}).Positions(target)
	if got.Organic.Found() {
		t.Errorf("organic_rank = %d, want not found", got.Organic)
	}
	if got.SponsoredProduct != 1 {
		t.Errorf("sponsored_product_rank = %d, want 1", got.SponsoredProduct)
	}
}

func TestTrack_BrandVideoMultipleTargets(t *testing.T) {
	tr := newTestTracker(t, nil)
	const t1, t2 = "T100000001", "T200000002"
	b := &fakeBrowser{pages: []string{page(brandVideo(t1, t2), organic(t1))}}

	res := tr.Track(context.Background(), b, "kw", []string{t1, t2})

	for _, id := range []string{t1, t2} {
		if got := res.Positions(id).SponsoredBrandVideo; got != 1 {
			t.Errorf("%s sponsored_brand_video_rank = %d, want 1", id, got)
		}
	}
	if got := res.Counters.Get(SponsoredBrandVideo); got != 1 {
		t.Errorf("video counter = %d, want 1 (one element, two targets)", got)
	}
}

func TestTrack_BlockedOnSecondPage(t *testing.T) {
	tr := newTestTracker(t, nil)
	b := &fakeBrowser{pages: []string{
		page(organic(target)),
		challengePage,
		page(sponsoredProduct(target)),
	}}

	res := tr.Track(context.Background(), b, "kw", []string{target})

	if res.Status != StatusBlocked {
		t.Fatalf("status = %s, want blocked", res.Status)
	}
	if !errors.Is(res.Err, ErrBlocked) {
		t.Errorf("err = %v, want ErrBlocked", res.Err)
	}
	if !res.Status.Retryable() {
		t.Error("blocked should be retryable")
	}
	got := res.Positions(target)
	if got.Organic != 1 {
		t.Errorf("page 1 organic rank lost: %+v", got)
	}
	if got.SponsoredProduct.Found() {
		t.Errorf("nothing after the challenge may be recorded: %+v", got)
	}
	if res.Pages != 1 {
		t.Errorf("pages = %d, want 1", res.Pages)
	}
}

func TestTrack_BlockedByTitle(t *testing.T) {
	tr := newTestTracker(t, nil)
	b := &fakeBrowser{pages: []string{`<html><head><title>Robot Check</title></head><body></body></html>`}}
	if res := tr.Track(context.Background(), b, "kw", []string{target}); res.Status != StatusBlocked {
		t.Errorf("status = %s, want blocked", res.Status)
	}
}

func TestTrack_BlockedByLoader(t *testing.T) {
	tr := newTestTracker(t, nil)
	b := &fakeBrowser{
		pages: []string{page(organic(target)), ""},
		errs:  map[int]error{1: errors.Join(errors.New("all engines failed"), ErrBlocked)},
	}
	res := tr.Track(context.Background(), b, "kw", []string{target})
	if res.Status != StatusBlocked {
		t.Errorf("status = %s, want blocked", res.Status)
	}
}

func TestTrack_NoListingsAnywhere(t *testing.T) {
	tr := newTestTracker(t, nil)
	empty := page()
	b := &fakeBrowser{pages: []string{empty, empty, empty, page(organic(target))}}

	res := tr.Track(context.Background(), b, "kw", []string{target})

	if res.Status != StatusExhausted {
		t.Fatalf("status = %s, want exhausted", res.Status)
	}
	if b.loads != 3 {
		t.Errorf("loads = %d, want the full budget of 3", b.loads)
	}
	if res.Counters != (Counters{}) {
		t.Errorf("counters = %v, want all zero", res.Counters)
	}
	if got := res.Positions(target); got != (Positions{}) {
		t.Errorf("positions = %+v, want all not found", got)
	}
}

func TestTrack_EarlyStopParity(t *testing.T) {
	pages := []string{
		page(organic(target), sponsoredProduct(target), brand(target), brandVideo(target)),
		page(organic(target), sponsoredProduct("B0AAAAAAA1"), sponsoredProduct(target)),
		page(brand("B0AAAAAAA2", target)),
	}

	on := newTestTracker(t, func(o *Options) { o.EarlyStop = true })
	off := newTestTracker(t, func(o *Options) { o.EarlyStop = false })

	bOn := &fakeBrowser{pages: pages}
	bOff := &fakeBrowser{pages: pages}
	resOn := on.Track(context.Background(), bOn, "kw", []string{target})
	resOff := off.Track(context.Background(), bOff, "kw", []string{target})

	if resOn.Status != StatusComplete {
		t.Errorf("early stop status = %s, want complete", resOn.Status)
	}
	if bOn.loads != 1 {
		t.Errorf("early stop loads = %d, want 1", bOn.loads)
	}
	if resOff.Status != StatusExhausted || bOff.loads != 3 {
		t.Errorf("no early stop: status %s loads %d", resOff.Status, bOff.loads)
	}
	if !reflect.DeepEqual(resOn.Ranks, resOff.Ranks) {
		t.Errorf("ledgers differ:\n on  %+v\n off %+v", resOn.Ranks, resOff.Ranks)
	}
	if resOn.Status.Retryable() {
		t.Error("complete must not be retryable")
	}
}

func TestTrack_WriteOnceAcrossPages(t *testing.T) {
	tr := newTestTracker(t, func(o *Options) { o.EarlyStop = false })
	b := &fakeBrowser{pages: []string{
		page(organic("B0AAAAAAA1"), organic(target)),
		page(organic(target)),
		page(organic(target)),
	}}
	res := tr.Track(context.Background(), b, "kw", []string{target})
	if got := res.Positions(target).Organic; got != 2 {
		t.Errorf("organic_rank = %d, want 2 (first occurrence)", got)
	}
	if got := res.Counters.Get(Organic); got != 4 {
		t.Errorf("organic counter = %d, want 4", got)
	}
}

func TestTrack_CounterAdvancesForUnidentifiedElements(t *testing.T) {
	unidentified := `<div data-component-type="s-search-result" data-asin=""></div>`
	raw := page(unidentified, unidentified, organic(target))

	counting := newTestTracker(t, nil)
	res := counting.Track(context.Background(), &fakeBrowser{pages: []string{raw}}, "kw", []string{target})
	if got := res.Positions(target).Organic; got != 3 {
		t.Errorf("organic_rank = %d, want 3", got)
	}

	skipping := newTestTracker(t, func(o *Options) { o.CountUnidentified = false })
	res = skipping.Track(context.Background(), &fakeBrowser{pages: []string{raw}}, "kw", []string{target})
	if got := res.Positions(target).Organic; got != 1 {
		t.Errorf("organic_rank with skipping policy = %d, want 1", got)
	}
}

func TestTrack_NavigationFailureKeepsLedger(t *testing.T) {
	tr := newTestTracker(t, nil)
	loadErr := errors.New("navigation timeout")
	b := &fakeBrowser{
		pages: []string{page(sponsoredProduct(target)), ""},
		errs:  map[int]error{1: loadErr},
	}
	res := tr.Track(context.Background(), b, "kw", []string{target})
	if res.Status != StatusError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if !errors.Is(res.Err, loadErr) {
		t.Errorf("err = %v, want %v", res.Err, loadErr)
	}
	if res.Positions(target).SponsoredProduct != 1 {
		t.Error("page 1 result must survive the failure")
	}
}

func TestTrack_FirstPageFailure(t *testing.T) {
	tr := newTestTracker(t, nil)
	b := &fakeBrowser{pages: []string{""}, errs: map[int]error{0: errors.New("dns")}}
	res := tr.Track(context.Background(), b, "kw", []string{target})
	if res.Status != StatusError || res.Pages != 0 {
		t.Errorf("status %s pages %d", res.Status, res.Pages)
	}
	if _, ok := res.Ranks[target]; !ok {
		t.Error("every target must be present in the result")
	}
}

func TestTrack_NoMorePages(t *testing.T) {
	tr := newTestTracker(t, nil)
	b := &fakeBrowser{pages: []string{page(organic("B0AAAAAAA1"))}}
	res := tr.Track(context.Background(), b, "kw", []string{target})
	if res.Status != StatusExhausted {
		t.Errorf("status = %s, want exhausted", res.Status)
	}
	if b.loads != 2 {
		t.Errorf("loads = %d, want 2", b.loads)
	}
}

func TestTrack_CancelledContext(t *testing.T) {
	tr := newTestTracker(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := tr.Track(ctx, &fakeBrowser{pages: []string{page()}}, "kw", []string{target})
	if res.Status != StatusError || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("status %s err %v", res.Status, res.Err)
	}
}

func TestTrack_CountersMonotonic(t *testing.T) {
	tr := newTestTracker(t, func(o *Options) { o.EarlyStop = false })
	s := tr.NewSession("kw", []string{target})
	pages := []string{
		page(organic("B0AAAAAAA1"), brand("B0AAAAAAA2", "B0AAAAAAA3"), sponsoredProduct("B0AAAAAAA4")),
		page(brandVideo(), organic("B0AAAAAAA5")),
		page(),
	}
	want := []Counters{
		{1, 1, 1, 0},
		{2, 1, 1, 1},
		{2, 1, 1, 1},
	}
	var prev Counters
	for i, raw := range pages {
		s.ScanPage(parse(t, raw))
		got := s.Counters()
		if got != want[i] {
			t.Errorf("after page %d counters = %v, want %v", i+1, got, want[i])
		}
		for _, c := range Categories {
			if got.Get(c) < prev.Get(c) {
				t.Errorf("counter %s decreased", c)
			}
		}
		prev = got
	}
}

func TestNewTracker_Validation(t *testing.T) {
	opts := DefaultOptions()
	opts.PageBudget = 0
	if _, err := NewTracker(opts); err == nil {
		t.Error("zero page budget should be rejected")
	}

	opts = DefaultOptions()
	opts.Markers.LinkPattern = `/dp/[A-Z0-9]{10}`
	if _, err := NewTracker(opts); err == nil {
		t.Error("link pattern without capture group should be rejected")
	}

	opts = DefaultOptions()
	opts.Markers.SponsoredLabel = "span[["
	if _, err := NewTracker(opts); err == nil {
		t.Error("bad selector should be rejected")
	}
}

func TestTracker_WithPolicy(t *testing.T) {
	base := newTestTracker(t, nil)
	one := base.WithPolicy(1, false)

	if base.Options().PageBudget != 3 || !base.Options().EarlyStop {
		t.Fatalf("base options changed: %+v", base.Options())
	}
	b := &fakeBrowser{pages: []string{
		page(organic("B0AAAAAAA1")),
		page(organic(target)),
	}}
	res := one.Track(context.Background(), b, "kw", []string{target})
	if res.Pages != 1 || b.loads != 1 {
		t.Errorf("pages = %d, loads = %d, want 1 and 1", res.Pages, b.loads)
	}
	if res.Positions(target).Organic.Found() {
		t.Errorf("target beyond budget should not be ranked")
	}
	if got := base.WithPolicy(0, true).Options().PageBudget; got != 3 {
		t.Errorf("zero budget override = %d, want 3", got)
	}
}

func TestResult_Found(t *testing.T) {
	res := &Result{Ranks: map[string]Positions{
		"AAAAAAAAAA": {Organic: 3, SponsoredBrandVideo: 1},
		"BBBBBBBBBB": {},
		"CCCCCCCCCC": {SponsoredProduct: 2},
	}}
	if got := res.Found(); got != 3 {
		t.Errorf("Found() = %d, want 3", got)
	}
	if got := (&Result{}).Found(); got != 0 {
		t.Errorf("empty Found() = %d, want 0", got)
	}
}
