package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/use-agent/serprank/rank"
)

// Header is the report column order.
var Header = []string{
	"asin", "keyword",
	"organic_rank", "sponsored_product_rank", "sponsored_brand_rank", "sponsored_brand_video_rank",
	"status", "checked_at",
}

// CSVWriter appends report rows to a CSV stream. It is safe for concurrent
// use.
type CSVWriter struct {
	mu       sync.Mutex
	closer   io.Closer
	writer   *csv.Writer
	notFound string
}

// NewCSVWriter writes the header to w. Empty rank slots are written as
// notFound.
func NewCSVWriter(w io.Writer, notFound string) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return nil, fmt.Errorf("report: write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("report: write header: %w", err)
	}
	c := &CSVWriter{writer: cw, notFound: notFound}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c, nil
}

// CreateCSV creates (or truncates) the file at path, creating parent
// directories, and returns a CSVWriter over it.
func CreateCSV(path, notFound string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("report: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("report: create file %q: %w", path, err)
	}
	w, err := NewCSVWriter(f, notFound)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends rows and flushes.
func (c *CSVWriter) Write(rows []Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rows {
		rec := []string{
			r.ASIN,
			r.Keyword,
			c.cell(r.Ranks.Organic),
			c.cell(r.Ranks.SponsoredProduct),
			c.cell(r.Ranks.SponsoredBrand),
			c.cell(r.Ranks.SponsoredBrandVideo),
			string(r.Status),
			r.CheckedAt.Format(TimeLayout),
		}
		if err := c.writer.Write(rec); err != nil {
			return fmt.Errorf("report: write row: %w", err)
		}
	}
	c.writer.Flush()
	return c.writer.Error()
}

func (c *CSVWriter) cell(p rank.Position) string {
	if !p.Found() {
		return c.notFound
	}
	return p.String()
}

// Close flushes and closes the underlying stream when it is closable.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	if c.closer != nil {
		return c.closer.Close()
	}
	return c.writer.Error()
}
