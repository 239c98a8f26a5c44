package rank

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Markers describes how the results markup encodes placement, identifiers
// and the bot challenge page. Every field can be overridden from config.
type Markers struct {
	// CategoryAttr carries the raw category marker on a listing element.
	CategoryAttr string `yaml:"category_attr"`

	// SearchResult is the marker of a standard result card (organic or
	// sponsored product).
	SearchResult string `yaml:"search_result"`

	// SponsoredLabel is a CSS selector that, when matched inside a standard
	// result card, turns it into a sponsored product.
	SponsoredLabel string `yaml:"sponsored_label"`

	// Brand holds the markers of grouped brand ad blocks.
	Brand []string `yaml:"brand"`

	// Video is the marker of a brand video ad block.
	Video string `yaml:"video"`

	// IdentifierAttr is the attribute holding a product identifier.
	IdentifierAttr string `yaml:"identifier_attr"`

	// IdentifierLength and ForbiddenPrefix make up the identifier Shape.
	IdentifierLength int    `yaml:"identifier_length"`
	ForbiddenPrefix  string `yaml:"forbidden_prefix"`

	// LinkPattern must contain one capture group holding the identifier.
	LinkPattern string `yaml:"link_pattern"`

	// ChallengeSelector matches the bot challenge form.
	ChallengeSelector string `yaml:"challenge_selector"`

	// ChallengeTitle is matched case-insensitively against <title>.
	ChallengeTitle string `yaml:"challenge_title"`
}

// DefaultMarkers returns the markers of the Amazon search results page.
func DefaultMarkers() Markers {
	return Markers{
		CategoryAttr:      "data-component-type",
		SearchResult:      "s-search-result",
		SponsoredLabel:    `span[data-component-type="s-sponsored-label"], .puis-sponsored-label-text`,
		Brand:             []string{"s-impression-logger", "sb-themed-collection"},
		Video:             "sbv-video-single-product",
		IdentifierAttr:    "data-asin",
		IdentifierLength:  DefaultShape.Length,
		ForbiddenPrefix:   DefaultShape.ForbiddenPrefix,
		LinkPattern:       `/(?:dp|gp/product)/([A-Z0-9]{10})(?:[/?#]|$)`,
		ChallengeSelector: `form[action="/errors/validateCaptcha"]`,
		ChallengeTitle:    "Robot Check",
	}
}

// Shape returns the identifier rule these markers describe.
func (m Markers) Shape() Shape {
	return Shape{Length: m.IdentifierLength, ForbiddenPrefix: m.ForbiddenPrefix}
}

// compiled holds the parsed selectors and pattern for one Markers value.
type compiled struct {
	listing    cascadia.Selector
	sponsored  cascadia.Selector
	identifier cascadia.Selector
	links      cascadia.Selector
	challenge  cascadia.Selector
	link       *regexp.Regexp
}

func (m Markers) compile() (*compiled, error) {
	if m.CategoryAttr == "" || m.SearchResult == "" || m.IdentifierAttr == "" {
		return nil, fmt.Errorf("rank: markers: category attr, search result and identifier attr are required")
	}
	if m.IdentifierLength <= 0 {
		return nil, fmt.Errorf("rank: markers: identifier length must be positive")
	}

	values := append([]string{m.SearchResult, m.Video}, m.Brand...)
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s=%q]", m.CategoryAttr, v))
	}

	c := &compiled{}
	var err error
	if c.listing, err = cascadia.Compile(strings.Join(parts, ", ")); err != nil {
		return nil, fmt.Errorf("rank: markers: listing selector: %w", err)
	}
	if c.identifier, err = cascadia.Compile("[" + m.IdentifierAttr + "]"); err != nil {
		return nil, fmt.Errorf("rank: markers: identifier attr: %w", err)
	}
	c.links = cascadia.MustCompile("a[href]")
	if m.SponsoredLabel != "" {
		if c.sponsored, err = cascadia.Compile(m.SponsoredLabel); err != nil {
			return nil, fmt.Errorf("rank: markers: sponsored label: %w", err)
		}
	}
	if m.ChallengeSelector != "" {
		if c.challenge, err = cascadia.Compile(m.ChallengeSelector); err != nil {
			return nil, fmt.Errorf("rank: markers: challenge selector: %w", err)
		}
	}
	if m.LinkPattern != "" {
		if c.link, err = regexp.Compile(m.LinkPattern); err != nil {
			return nil, fmt.Errorf("rank: markers: link pattern: %w", err)
		}
		if c.link.NumSubexp() < 1 {
			return nil, fmt.Errorf("rank: markers: link pattern needs a capture group")
		}
	}
	return c, nil
}
