package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/use-agent/serprank/rank"
	"github.com/use-agent/serprank/runner"
)

// ReadJobs parses an "asin,keyword" CSV and groups ASINs by keyword in
// first-seen order. The header row is required; column names are matched
// case-insensitively and may appear in any order. Rows with an empty
// keyword or a malformed ASIN are skipped with a warning.
func ReadJobs(r io.Reader, shape rank.Shape) ([]runner.Job, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("report: jobs file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("report: read jobs header: %w", err)
	}
	asinCol, keywordCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "asin":
			asinCol = i
		case "keyword", "キーワード":
			keywordCol = i
		}
	}
	if asinCol < 0 || keywordCol < 0 {
		return nil, fmt.Errorf("report: jobs header must name asin and keyword columns, got %v", header)
	}

	var jobs []runner.Job
	index := make(map[string]int)
	seen := make(map[string]struct{})
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("report: read jobs line %d: %w", line, err)
		}
		if asinCol >= len(rec) || keywordCol >= len(rec) {
			slog.Warn("skipping short jobs row", "line", line)
			continue
		}
		asin := strings.ToUpper(strings.TrimSpace(rec[asinCol]))
		keyword := strings.TrimSpace(rec[keywordCol])
		if keyword == "" || asin == "" {
			continue
		}
		if !shape.Valid(asin) {
			slog.Warn("skipping malformed asin", "line", line, "asin", asin)
			continue
		}
		if _, dup := seen[keyword+"\x00"+asin]; dup {
			continue
		}
		seen[keyword+"\x00"+asin] = struct{}{}

		i, ok := index[keyword]
		if !ok {
			i = len(jobs)
			index[keyword] = i
			jobs = append(jobs, runner.Job{Keyword: keyword})
		}
		jobs[i].Targets = append(jobs[i].Targets, asin)
	}
	return jobs, nil
}
