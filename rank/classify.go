package rank

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Classifier maps a listing element to its placement category.
type Classifier struct {
	attr         string
	searchResult string
	video        string
	brand        map[string]struct{}
	listing      cascadia.Selector
	sponsored    cascadia.Selector
}

func newClassifier(m Markers, c *compiled) *Classifier {
	brand := make(map[string]struct{}, len(m.Brand))
	for _, b := range m.Brand {
		if b != "" {
			brand[b] = struct{}{}
		}
	}
	return &Classifier{
		attr:         m.CategoryAttr,
		searchResult: m.SearchResult,
		video:        m.Video,
		brand:        brand,
		listing:      c.listing,
		sponsored:    c.sponsored,
	}
}

// Classify returns the category of el. The second result is false when el
// is not a trackable listing element.
func (c *Classifier) Classify(el *goquery.Selection) (Category, bool) {
	marker, ok := el.Attr(c.attr)
	if !ok || marker == "" {
		return 0, false
	}
	if c.video != "" && marker == c.video {
		return SponsoredBrandVideo, true
	}
	if _, ok := c.brand[marker]; ok {
		return SponsoredBrand, true
	}
	if marker == c.searchResult {
		if c.sponsored != nil && el.FindMatcher(c.sponsored).Length() > 0 {
			return SponsoredProduct, true
		}
		return Organic, true
	}
	return 0, false
}

// Elements returns the listing elements of doc in document order. An element
// nested inside another listing element belongs to the outer one and is not
// returned on its own.
func (c *Classifier) Elements(doc *goquery.Document) *goquery.Selection {
	return doc.FindMatcher(c.listing).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsMatcher(c.listing).Length() == 0
	})
}
