package rank

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Detector recognizes the bot challenge interstitial.
type Detector struct {
	sel   cascadia.Selector
	title string
}

func newDetector(m Markers, c *compiled) *Detector {
	return &Detector{sel: c.challenge, title: strings.ToLower(strings.TrimSpace(m.ChallengeTitle))}
}

// Blocked reports whether doc is a challenge page instead of results.
func (d *Detector) Blocked(doc *goquery.Document) bool {
	if d.sel != nil && doc.FindMatcher(d.sel).Length() > 0 {
		return true
	}
	if d.title != "" {
		title := strings.ToLower(doc.Find("title").First().Text())
		if strings.Contains(title, d.title) {
			return true
		}
	}
	return false
}

// NewDetector compiles the challenge signature of m on its own, for
// collaborators that want to reject challenge pages before they reach a
// session.
func NewDetector(m Markers) (*Detector, error) {
	c, err := m.compile()
	if err != nil {
		return nil, err
	}
	return newDetector(m, c), nil
}

// BlockedHTML is Blocked for raw markup. Unparseable markup is not blocked.
func (d *Detector) BlockedHTML(raw string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return false
	}
	return d.Blocked(doc)
}
