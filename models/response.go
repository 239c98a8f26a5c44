package models

import "github.com/use-agent/serprank/rank"

// RankResponse is the response for POST /api/v1/rank and one entry of a
// batch job.
type RankResponse struct {
	// Success is true when the session finished without being blocked or
	// failing. A blocked or failed session still carries partial ranks.
	Success bool `json:"success"`

	Keyword string `json:"keyword"`

	// Status is the terminal state: exhausted, complete, blocked or error.
	Status rank.Status `json:"status"`

	// Retryable tells the caller whether running the keyword again may help.
	Retryable bool `json:"retryable"`

	// PagesScanned is the number of result pages processed.
	PagesScanned int `json:"pages_scanned"`

	// Ranks holds one row per requested ASIN, in request order.
	Ranks []ASINRank `json:"ranks"`

	// Counters is the number of listing elements seen per category.
	Counters rank.Counters `json:"counters"`

	// Attempts is how many sessions were run for this keyword.
	Attempts int `json:"attempts,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated for blocked and error sessions.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ASINRank is the per-category first position of one product.
type ASINRank struct {
	ASIN string `json:"asin"`
	rank.Positions
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}

// NewRankResponse converts a session result into its API shape.
func NewRankResponse(res *rank.Result) *RankResponse {
	rows := make([]ASINRank, 0, len(res.Targets))
	for _, id := range res.Targets {
		rows = append(rows, ASINRank{ASIN: id, Positions: res.Positions(id)})
	}
	return &RankResponse{
		Success:      !res.Status.Retryable(),
		Keyword:      res.Keyword,
		Status:       res.Status,
		Retryable:    res.Status.Retryable(),
		PagesScanned: res.Pages,
		Ranks:        rows,
		Counters:     res.Counters,
		Error:        DetailFor(res.Err),
	}
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
