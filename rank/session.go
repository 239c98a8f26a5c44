package rank

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Session is the state of one keyword run: its counters and ledger. It is
// owned by a single goroutine and discarded once its Result is built.
type Session struct {
	Keyword string

	counters Counters
	ledger   *Ledger
	pages    int

	classifier        *Classifier
	extractor         *Extractor
	countUnidentified bool
}

// NewSession starts a fresh session for keyword and targets.
func (t *Tracker) NewSession(keyword string, targets []string) *Session {
	clean := make([]string, 0, len(targets))
	for _, id := range targets {
		clean = append(clean, strings.TrimSpace(id))
	}
	return &Session{
		Keyword:           keyword,
		ledger:            NewLedger(clean),
		classifier:        t.classifier,
		extractor:         t.extractor,
		countUnidentified: t.opts.CountUnidentified,
	}
}

// ScanPage runs one page through classification, extraction, counting and
// the ledger. It returns the number of listing elements found.
func (s *Session) ScanPage(doc *goquery.Document) int {
	elements := s.classifier.Elements(doc)
	elements.Each(func(_ int, el *goquery.Selection) {
		cat, ok := s.classifier.Classify(el)
		if !ok {
			return
		}
		ids := s.extractor.Extract(el)
		if len(ids) == 0 && !s.countUnidentified {
			return
		}
		pos := s.counters.Next(cat)
		for _, id := range ids {
			s.ledger.Record(id, cat, pos)
		}
	})
	s.pages++
	return elements.Length()
}

// Counters returns a copy of the running counters.
func (s *Session) Counters() Counters { return s.counters }

// Ledger exposes the session ledger for inspection.
func (s *Session) Ledger() *Ledger { return s.ledger }

// Pages is the number of pages scanned so far.
func (s *Session) Pages() int { return s.pages }

// Result freezes the session into a Result.
func (s *Session) Result(status Status, err error) *Result {
	return &Result{
		Keyword:  s.Keyword,
		Status:   status,
		Pages:    s.pages,
		Counters: s.counters,
		Targets:  s.ledger.Targets(),
		Ranks:    s.ledger.Snapshot(),
		Err:      err,
	}
}
