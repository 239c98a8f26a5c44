// Package rank measures where target products first appear in a paginated
// search results feed, split by placement category.
//
// The package never fetches or renders anything. A Browser hands it raw page
// markup, and Tracker turns a run of pages into a Result.
package rank

import (
	"encoding/json"
	"strconv"
)

// Category is the placement type of one listing element.
type Category int

const (
	Organic Category = iota
	SponsoredProduct
	SponsoredBrand
	SponsoredBrandVideo

	numCategories
)

// Categories lists every category in report column order.
var Categories = [numCategories]Category{
	Organic,
	SponsoredProduct,
	SponsoredBrand,
	SponsoredBrandVideo,
}

func (c Category) String() string {
	switch c {
	case Organic:
		return "organic"
	case SponsoredProduct:
		return "sponsored_product"
	case SponsoredBrand:
		return "sponsored_brand"
	case SponsoredBrandVideo:
		return "sponsored_brand_video"
	default:
		return "unknown"
	}
}

// Position is a 1-based rank inside one category. NotFound means the target
// never showed up in that category within the page budget.
type Position int

// NotFound is the empty slot value.
const NotFound Position = 0

// Found reports whether p holds a real rank.
func (p Position) Found() bool { return p > 0 }

func (p Position) String() string {
	if !p.Found() {
		return ""
	}
	return strconv.Itoa(int(p))
}

// MarshalJSON encodes NotFound as null.
func (p Position) MarshalJSON() ([]byte, error) {
	if !p.Found() {
		return []byte("null"), nil
	}
	return json.Marshal(int(p))
}

// UnmarshalJSON accepts null or a number.
func (p *Position) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = NotFound
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = Position(n)
	return nil
}

// Positions holds one slot per category for a single target.
type Positions struct {
	Organic             Position `json:"organic_rank"`
	SponsoredProduct    Position `json:"sponsored_product_rank"`
	SponsoredBrand      Position `json:"sponsored_brand_rank"`
	SponsoredBrandVideo Position `json:"sponsored_brand_video_rank"`
}

// Get returns the slot for c.
func (p *Positions) Get(c Category) Position {
	if s := p.slot(c); s != nil {
		return *s
	}
	return NotFound
}

// set writes pos into the slot for c if it is still empty.
func (p *Positions) set(c Category, pos Position) bool {
	s := p.slot(c)
	if s == nil || s.Found() {
		return false
	}
	*s = pos
	return true
}

// full reports whether every category has a position.
func (p *Positions) full() bool {
	return p.Organic.Found() && p.SponsoredProduct.Found() &&
		p.SponsoredBrand.Found() && p.SponsoredBrandVideo.Found()
}

func (p *Positions) slot(c Category) *Position {
	switch c {
	case Organic:
		return &p.Organic
	case SponsoredProduct:
		return &p.SponsoredProduct
	case SponsoredBrand:
		return &p.SponsoredBrand
	case SponsoredBrandVideo:
		return &p.SponsoredBrandVideo
	}
	return nil
}
