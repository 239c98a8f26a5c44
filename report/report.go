// Package report turns keyword sessions into per-ASIN rows and persists them.
package report

import (
	"time"

	"github.com/use-agent/serprank/rank"
	"github.com/use-agent/serprank/runner"
)

// TimeLayout formats the checked_at column.
const TimeLayout = "2006/01/02 15:04"

// Row is one ASIN's ranks for one keyword check.
type Row struct {
	ASIN      string
	Keyword   string
	Ranks     rank.Positions
	Status    rank.Status
	Attempts  int
	CheckedAt time.Time
}

// Writer is the interface any report backend must satisfy.
type Writer interface {
	Write(rows []Row) error
	Close() error
}

// Rows expands an outcome into one row per target, in target order.
func Rows(o runner.Outcome) []Row {
	res := o.Result
	if res == nil {
		return nil
	}
	targets := res.Targets
	if len(targets) == 0 {
		targets = o.Job.Targets
	}
	checked := o.Finished
	if checked.IsZero() {
		checked = time.Now()
	}
	rows := make([]Row, 0, len(targets))
	for _, asin := range targets {
		rows = append(rows, Row{
			ASIN:      asin,
			Keyword:   res.Keyword,
			Ranks:     res.Positions(asin),
			Status:    res.Status,
			Attempts:  o.Attempts,
			CheckedAt: checked,
		})
	}
	return rows
}

// MultiWriter fans rows out to several writers. The first error wins but
// every writer is tried.
type MultiWriter []Writer

func (m MultiWriter) Write(rows []Row) error {
	var first error
	for _, w := range m {
		if err := w.Write(rows); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiWriter) Close() error {
	var first error
	for _, w := range m {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
