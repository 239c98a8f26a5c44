package report

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/serprank/rank"
	"github.com/use-agent/serprank/runner"
)

const notFound = "not found within 3 pages"

var checkedAt = time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC)

func sampleOutcome() runner.Outcome {
	return runner.Outcome{
		Job:      runner.Job{Keyword: "usb cable", Targets: []string{"B0AAAAAAA1", "B0AAAAAAA2"}},
		Attempts: 2,
		Finished: checkedAt,
		Result: &rank.Result{
			Keyword: "usb cable",
			Status:  rank.StatusExhausted,
			Targets: []string{"B0AAAAAAA1", "B0AAAAAAA2"},
			Ranks: map[string]rank.Positions{
				"B0AAAAAAA1": {Organic: 4, SponsoredProduct: 1},
				"B0AAAAAAA2": {},
			},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sampleOutcome())
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].ASIN != "B0AAAAAAA1" || rows[0].Ranks.Organic != 4 || rows[0].Attempts != 2 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Ranks != (rank.Positions{}) {
		t.Errorf("row 1 ranks = %+v, want empty", rows[1].Ranks)
	}
	if Rows(runner.Outcome{}) != nil {
		t.Error("outcome without result should give no rows")
	}
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf, notFound)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.Write(Rows(sampleOutcome())); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := [][]string{
		Header,
		{"B0AAAAAAA1", "usb cable", "4", "1", notFound, notFound, "exhausted", "2026/05/02 14:30"},
		{"B0AAAAAAA2", "usb cable", notFound, notFound, notFound, notFound, "exhausted", "2026/05/02 14:30"},
	}
	if !reflect.DeepEqual(recs, want) {
		t.Errorf("csv =\n%v\nwant\n%v", recs, want)
	}
}

func TestCreateCSVMakesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ranks.csv")
	w, err := CreateCSV(path, notFound)
	if err != nil {
		t.Fatalf("CreateCSV: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "asin,keyword,") {
		t.Errorf("file starts with %q", data)
	}
}

type failingWriter struct{ closed bool }

func (f *failingWriter) Write([]Row) error { return errors.New("disk full") }
func (f *failingWriter) Close() error      { f.closed = true; return nil }

func TestMultiWriterTriesAll(t *testing.T) {
	var buf bytes.Buffer
	cw, err := NewCSVWriter(&buf, notFound)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	fw := &failingWriter{}
	m := MultiWriter{fw, cw}

	if err := m.Write(Rows(sampleOutcome())); err == nil {
		t.Error("expected the failing writer's error")
	}
	if !strings.Contains(buf.String(), "B0AAAAAAA1") {
		t.Error("csv writer should still receive rows")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !fw.closed {
		t.Error("failing writer not closed")
	}
}

func TestReadJobs(t *testing.T) {
	in := "Keyword,ASIN\n" +
		"usb cable,B0AAAAAAA1\n" +
		"charger,b0bbbbbbb1\n" +
		"usb cable,B0AAAAAAA2\n" +
		"usb cable,B0AAAAAAA1\n" +
		"usb cable,{B0AAAAAA3\n" +
		",B0AAAAAAA4\n" +
		"charger,SHORT\n"

	jobs, err := ReadJobs(strings.NewReader(in), rank.DefaultShape)
	if err != nil {
		t.Fatalf("ReadJobs: %v", err)
	}
	want := []runner.Job{
		{Keyword: "usb cable", Targets: []string{"B0AAAAAAA1", "B0AAAAAAA2"}},
		{Keyword: "charger", Targets: []string{"B0BBBBBBB1"}},
	}
	if !reflect.DeepEqual(jobs, want) {
		t.Errorf("jobs = %+v, want %+v", jobs, want)
	}
}

func TestReadJobsHeaderErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "asin,title\nB0AAAAAAA1,x\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadJobs(strings.NewReader(in), rank.DefaultShape); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestInsertQuery(t *testing.T) {
	rows := Rows(sampleOutcome())
	query, args := insertQuery(rows, dollarPlaceholder)

	if !strings.Contains(query, "($1,$2,$3,$4,$5,$6,$7,$8,$9),($10,") {
		t.Errorf("placeholders wrong in %q", query)
	}
	if len(args) != 2*insertColumns {
		t.Fatalf("args = %d, want %d", len(args), 2*insertColumns)
	}
	if v := nullRank(rank.NotFound); v.Valid {
		t.Error("NotFound should be NULL")
	}
	if v := nullRank(7); !v.Valid || v.Int64 != 7 {
		t.Errorf("nullRank(7) = %+v", v)
	}
}

func TestSQLiteWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "ranks.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()

	if err := w.Write(Rows(sampleOutcome())); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(nil); err != nil {
		t.Fatalf("Write(nil): %v", err)
	}

	var count int
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM rank_checks WHERE keyword = ?`, "usb cable").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("rows = %d, want 2", count)
	}

	var organic, sponsored sql.NullInt64
	err = w.db.QueryRow(`SELECT organic_rank, sponsored_brand_rank FROM rank_checks WHERE asin = ?`, "B0AAAAAAA1").
		Scan(&organic, &sponsored)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !organic.Valid || organic.Int64 != 4 {
		t.Errorf("organic = %+v, want 4", organic)
	}
	if sponsored.Valid {
		t.Errorf("sponsored brand = %+v, want NULL", sponsored)
	}
}
