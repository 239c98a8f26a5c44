package rank

import (
	"reflect"
	"testing"
)

func extractFirst(t *testing.T, tr *Tracker, raw string) []string {
	t.Helper()
	doc := parse(t, page(raw))
	el := tr.classifier.Elements(doc).First()
	if el.Length() == 0 {
		t.Fatal("no listing element in fixture")
	}
	return tr.extractor.Extract(el)
}

func TestExtract_StrategiesDeduplicate(t *testing.T) {
	tr := newTestTracker(t, nil)
	// organic() carries the code in both data-asin and the /dp/ link.
	got := extractFirst(t, tr, organic("B0AAAAAAAA"))
	want := []string{"B0AAAAAAAA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	tr := newTestTracker(t, nil)
	raw := `<div data-component-type="s-impression-logger">
		<div data-asin="B0AAAAAAAA"><a href="/dp/B0BBBBBBBB">b</a></div>
		<div data-asin="B0AAAAAAAA"></div>
		<a href="/gp/product/B0CCCCCCCC/">c</a>
	</div>`
	first := extractFirst(t, tr, raw)
	second := extractFirst(t, tr, raw)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extraction not idempotent: %v vs %v", first, second)
	}
	want := []string{"B0AAAAAAAA", "B0BBBBBBBB", "B0CCCCCCCC"}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("Extract = %v, want %v", first, want)
	}
}

func TestExtract_RejectsMalformed(t *testing.T) {
	tr := newTestTracker(t, nil)
	raw := `<div data-component-type="s-search-result" data-asin="{{asin}}abc">
		<div data-asin="  "></div>
		<div data-asin="b0lowercas"></div>
		<a href="/dp/B0AAAAAAAAA">eleven</a>
		<a href="/dp/B0AAAAAAA">nine</a>
		<a href="/help/B0AAAAAAAA">not a product path</a>
	</div>`
	if got := extractFirst(t, tr, raw); len(got) != 0 {
		t.Errorf("Extract = %v, want none", got)
	}
}

func TestExtract_TrimsAttributeValue(t *testing.T) {
	tr := newTestTracker(t, nil)
	got := extractFirst(t, tr, `<div data-component-type="s-search-result" data-asin=" B0AAAAAAAA "></div>`)
	if !reflect.DeepEqual(got, []string{"B0AAAAAAAA"}) {
		t.Errorf("Extract = %v", got)
	}
}

func TestExtract_LinkStrategyOnly(t *testing.T) {
	tr := newTestTracker(t, nil)
	got := extractFirst(t, tr, brandVideo("B0AAAAAAAA", "B0BBBBBBBB"))
	want := []string{"B0AAAAAAAA", "B0BBBBBBBB"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_SponsoredClickLink(t *testing.T) {
	tr := newTestTracker(t, nil)
	tests := []struct {
		name string
		href string
		want []string
	}{
		{"encoded path", `/sspa/click?ie=UTF8&url=%2Fdp%2FB0AAAAAAAA%2Fref%3Dsr_1_1_sspa%3Fkeywords%3Da`, []string{"B0AAAAAAAA"}},
		{"encoded end of value", `/sspa/click?url=%2Fgp%2Fproduct%2FB0BBBBBBBB`, []string{"B0BBBBBBBB"}},
		{"plain and encoded agree", `/dp/B0CCCCCCCC?redirect=%2Fdp%2FB0CCCCCCCC`, []string{"B0CCCCCCCC"}},
		{"bad escape keeps raw match", `/dp/B0DDDDDDDD?q=%zz`, []string{"B0DDDDDDDD"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No data-asin, so only the link can identify the listing.
			got := extractFirst(t, tr, `<div data-component-type="s-search-result"><a href="`+tt.href+`">x</a></div>`)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtract_NoLinkPattern(t *testing.T) {
	tr := newTestTracker(t, func(o *Options) { o.Markers.LinkPattern = "" })
	if got := extractFirst(t, tr, brandVideo("B0AAAAAAAA")); len(got) != 0 {
		t.Errorf("Extract = %v, want none without link strategy", got)
	}
}
