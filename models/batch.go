package models

import "sync"

// BatchRequest is the payload for POST /api/v1/batch/rank.
type BatchRequest struct {
	// Keywords is the list of keyword sessions to run. Required.
	Keywords []KeywordTargets `json:"keywords" binding:"required,min=1,max=100,dive"`

	// Options contains shared settings applied to every keyword.
	Options BatchOptions `json:"options"`

	// WebhookURL receives a batch.completed event when the job ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// KeywordTargets pairs one keyword with the ASINs tracked for it.
type KeywordTargets struct {
	Keyword string   `json:"keyword" binding:"required"`
	ASINs   []string `json:"asins" binding:"required,min=1,max=50,dive,len=10,alphanum,uppercase"`
}

// BatchOptions are the shared settings applied to every keyword in a batch.
type BatchOptions struct {
	Pages     int   `json:"pages,omitempty" binding:"omitempty,min=1,max=10"`
	EarlyStop *bool `json:"early_stop,omitempty"`
	Timeout   int   `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`
}

// BatchResponse is the immediate response for POST /api/v1/batch/rank.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Results   []*RankResponse `json:"results,omitempty"`
}

// BatchJob tracks an in-progress batch rank operation.
type BatchJob struct {
	ID        string
	Total     int
	CreatedAt int64 // unix timestamp

	mu        sync.Mutex
	status    string // "processing", "completed", "failed", "partial"
	completed int
	results   []*RankResponse
}

// NewBatchJob creates a job in the processing state.
func NewBatchJob(id string, total int, createdAt int64) *BatchJob {
	return &BatchJob{
		ID:        id,
		Total:     total,
		CreatedAt: createdAt,
		status:    "processing",
		results:   make([]*RankResponse, total),
	}
}

// SetResult stores the response for keyword idx.
func (j *BatchJob) SetResult(idx int, resp *RankResponse) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[idx] = resp
	j.completed++
}

// Finish records the terminal job status.
func (j *BatchJob) Finish(status string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
}

// Snapshot returns a consistent view of the job for the status endpoint.
func (j *BatchJob) Snapshot() BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]*RankResponse, len(j.results))
	copy(results, j.results)
	return BatchStatusResponse{
		ID:        j.ID,
		Status:    j.status,
		Completed: j.completed,
		Total:     j.Total,
		Results:   results,
	}
}
