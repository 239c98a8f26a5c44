package report

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/use-agent/serprank/rank"
)

// PostgresWriter appends report rows to a rank_checks history table.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens dsn, waits for the server, and creates the
// history table if needed.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("report: postgres open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("report: postgres ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("report: postgres migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS rank_checks (
			id                         BIGSERIAL PRIMARY KEY,
			asin                       VARCHAR(16) NOT NULL,
			keyword                    TEXT        NOT NULL,
			organic_rank               INTEGER,
			sponsored_product_rank     INTEGER,
			sponsored_brand_rank       INTEGER,
			sponsored_brand_video_rank INTEGER,
			status                     VARCHAR(16) NOT NULL,
			attempts                   INTEGER     NOT NULL DEFAULT 1,
			checked_at                 TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rank_checks_asin_keyword ON rank_checks(asin, keyword);
		CREATE INDEX IF NOT EXISTS idx_rank_checks_checked_at   ON rank_checks(checked_at);
	`)
	return err
}

// Write inserts rows in batches of 50. Empty rank slots are stored as NULL.
func (pw *PostgresWriter) Write(rows []Row) error {
	const batchSize = 50
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		query, args := insertQuery(rows[i:end], dollarPlaceholder)
		if _, err := pw.db.Exec(query, args...); err != nil {
			return fmt.Errorf("report: postgres insert: %w", err)
		}
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

const insertColumns = 9

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// insertQuery builds one multi-row INSERT for batch. placeholder renders
// the 1-based n-th bind parameter in the driver's syntax.
func insertQuery(batch []Row, placeholder func(n int) string) (string, []any) {
	values := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*insertColumns)

	for idx, r := range batch {
		base := idx * insertColumns
		ph := make([]string, insertColumns)
		for j := range ph {
			ph[j] = placeholder(base + j + 1)
		}
		values = append(values, "("+strings.Join(ph, ",")+")")
		args = append(args,
			r.ASIN, r.Keyword,
			nullRank(r.Ranks.Organic),
			nullRank(r.Ranks.SponsoredProduct),
			nullRank(r.Ranks.SponsoredBrand),
			nullRank(r.Ranks.SponsoredBrandVideo),
			string(r.Status), r.Attempts, r.CheckedAt,
		)
	}

	query := `INSERT INTO rank_checks (asin, keyword, organic_rank, sponsored_product_rank,
		sponsored_brand_rank, sponsored_brand_video_rank, status, attempts, checked_at)
		VALUES ` + strings.Join(values, ",")
	return query, args
}

func nullRank(p rank.Position) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(p), Valid: p.Found()}
}
