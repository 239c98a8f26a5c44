package rank

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Strategy pulls candidate identifiers out of one listing element.
// Implementations return only shape-valid values; duplicates are allowed.
type Strategy interface {
	Identifiers(el *goquery.Selection) []string
}

// AttributeStrategy reads the identifier attribute of the element and of
// every descendant carrying it.
type AttributeStrategy struct {
	Attr  string
	Shape Shape
	sel   cascadia.Selector
}

// NewAttributeStrategy builds an AttributeStrategy for attr.
func NewAttributeStrategy(attr string, shape Shape) (*AttributeStrategy, error) {
	sel, err := cascadia.Compile("[" + attr + "]")
	if err != nil {
		return nil, err
	}
	return &AttributeStrategy{Attr: attr, Shape: shape, sel: sel}, nil
}

func (a *AttributeStrategy) Identifiers(el *goquery.Selection) []string {
	var out []string
	el.FilterMatcher(a.sel).AddSelection(el.FindMatcher(a.sel)).Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr(a.Attr)
		v = strings.TrimSpace(v)
		if a.Shape.Valid(v) {
			out = append(out, v)
		}
	})
	return out
}

// LinkStrategy matches product links such as /dp/<code> or
// /gp/product/<code> and captures the code. Sponsored click-through links
// carry the product path percent-encoded in their query, so each href is
// also matched after unescaping.
type LinkStrategy struct {
	Pattern *regexp.Regexp
	Shape   Shape
	sel     cascadia.Selector
}

// NewLinkStrategy builds a LinkStrategy. pattern must have one capture group.
func NewLinkStrategy(pattern *regexp.Regexp, shape Shape) *LinkStrategy {
	return &LinkStrategy{Pattern: pattern, Shape: shape, sel: cascadia.MustCompile("a[href]")}
}

func (l *LinkStrategy) Identifiers(el *goquery.Selection) []string {
	var out []string
	el.FilterMatcher(l.sel).AddSelection(el.FindMatcher(l.sel)).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = l.match(out, href)
		if u, err := url.QueryUnescape(href); err == nil && u != href {
			out = l.match(out, u)
		}
	})
	return out
}

func (l *LinkStrategy) match(out []string, href string) []string {
	for _, m := range l.Pattern.FindAllStringSubmatch(href, -1) {
		if len(m) > 1 && l.Shape.Valid(m[1]) {
			out = append(out, m[1])
		}
	}
	return out
}

// Extractor unions the results of its strategies.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor combines strategies in the given order.
func NewExtractor(strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// Extract returns the distinct identifiers of el in first-seen order.
func (e *Extractor) Extract(el *goquery.Selection) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, st := range e.strategies {
		for _, id := range st.Identifiers(el) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
