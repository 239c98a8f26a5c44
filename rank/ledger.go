package rank

import "encoding/json"

// Counters holds the running element count of each category for one
// keyword session. They are never reset between pages.
type Counters [numCategories]int

// Next advances the counter of c and returns the new value as a position.
func (c *Counters) Next(cat Category) Position {
	c[cat]++
	return Position(c[cat])
}

// Get returns the current count for cat.
func (c Counters) Get(cat Category) int { return c[cat] }

// MarshalJSON encodes the counters keyed by category name.
func (c Counters) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, numCategories)
	for _, cat := range Categories {
		m[cat.String()] = c[cat]
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the category-keyed form. Unknown keys are ignored.
func (c *Counters) UnmarshalJSON(b []byte) error {
	var m map[string]int
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = Counters{}
	for _, cat := range Categories {
		c[cat] = m[cat.String()]
	}
	return nil
}

// Ledger records the first position of each target in each category.
// A slot, once written, never changes.
type Ledger struct {
	slots map[string]*Positions
	order []string
}

// NewLedger creates an empty ledger for targets. Duplicates and blanks are
// dropped; order is preserved.
func NewLedger(targets []string) *Ledger {
	l := &Ledger{slots: make(map[string]*Positions, len(targets))}
	for _, t := range targets {
		if t == "" {
			continue
		}
		if _, ok := l.slots[t]; ok {
			continue
		}
		l.slots[t] = &Positions{}
		l.order = append(l.order, t)
	}
	return l
}

// Record writes pos for id in cat. It returns false when id is not a target
// or the slot already holds a position.
func (l *Ledger) Record(id string, cat Category, pos Position) bool {
	p, ok := l.slots[id]
	if !ok || !pos.Found() {
		return false
	}
	return p.set(cat, pos)
}

// Tracks reports whether id is one of the ledger's targets.
func (l *Ledger) Tracks(id string) bool {
	_, ok := l.slots[id]
	return ok
}

// Lookup returns the positions of id.
func (l *Ledger) Lookup(id string) (Positions, bool) {
	p, ok := l.slots[id]
	if !ok {
		return Positions{}, false
	}
	return *p, true
}

// Complete reports whether every target has a position in every category.
// An empty ledger is never complete.
func (l *Ledger) Complete() bool {
	if len(l.order) == 0 {
		return false
	}
	for _, p := range l.slots {
		if !p.full() {
			return false
		}
	}
	return true
}

// Targets returns the tracked identifiers in insertion order.
func (l *Ledger) Targets() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Snapshot copies every slot.
func (l *Ledger) Snapshot() map[string]Positions {
	out := make(map[string]Positions, len(l.slots))
	for id, p := range l.slots {
		out[id] = *p
	}
	return out
}
