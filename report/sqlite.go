package report

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteWriter appends report rows to a rank_checks table in a local
// SQLite file, for single-machine rank history without a database server.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens (creating if needed) the database at path and
// creates the history table.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("report: sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("report: sqlite open: %w", err)
	}
	// One writer connection; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("report: sqlite %s: %w", p, err)
		}
	}

	sw := &SQLiteWriter{db: db}
	if err := sw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("report: sqlite migrate: %w", err)
	}
	return sw, nil
}

func (sw *SQLiteWriter) migrate() error {
	_, err := sw.db.Exec(`
		CREATE TABLE IF NOT EXISTS rank_checks (
			id                         INTEGER PRIMARY KEY AUTOINCREMENT,
			asin                       TEXT    NOT NULL,
			keyword                    TEXT    NOT NULL,
			organic_rank               INTEGER,
			sponsored_product_rank     INTEGER,
			sponsored_brand_rank       INTEGER,
			sponsored_brand_video_rank INTEGER,
			status                     TEXT    NOT NULL,
			attempts                   INTEGER NOT NULL DEFAULT 1,
			checked_at                 DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rank_checks_asin_keyword ON rank_checks(asin, keyword);
		CREATE INDEX IF NOT EXISTS idx_rank_checks_checked_at   ON rank_checks(checked_at);
	`)
	return err
}

// Write inserts rows in one transaction, 50 per statement. Empty rank slots
// are stored as NULL.
func (sw *SQLiteWriter) Write(rows []Row) error {
	const batchSize = 50
	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("report: sqlite begin: %w", err)
	}
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		query, args := insertQuery(rows[i:end], questionPlaceholder)
		if _, err := tx.Exec(query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("report: sqlite insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("report: sqlite commit: %w", err)
	}
	return nil
}

func (sw *SQLiteWriter) Close() error {
	return sw.db.Close()
}

func questionPlaceholder(int) string { return "?" }
