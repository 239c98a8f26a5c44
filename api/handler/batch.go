package handler

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/serprank/models"
	"github.com/use-agent/serprank/runner"
	"github.com/use-agent/serprank/webhook"
)

// BatchStore holds in-flight and completed batch jobs. Jobs older than the
// retention period are expired by a background sweep.
type BatchStore struct {
	jobs      sync.Map
	retention time.Duration
	done      chan struct{}
	once      sync.Once
}

// NewBatchStore starts a store that forgets jobs after retention.
func NewBatchStore(retention time.Duration) *BatchStore {
	s := &BatchStore{retention: retention, done: make(chan struct{})}
	go s.cleanupLoop()
	return s
}

// Put stores job under its ID.
func (s *BatchStore) Put(job *models.BatchJob) { s.jobs.Store(job.ID, job) }

// Get returns the job with id.
func (s *BatchStore) Get(id string) (*models.BatchJob, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.BatchJob), true
}

// Stop ends the background sweep.
func (s *BatchStore) Stop() { s.once.Do(func() { close(s.done) }) }

func (s *BatchStore) expire(now time.Time) {
	cutoff := now.Add(-s.retention).Unix()
	s.jobs.Range(func(key, value any) bool {
		if value.(*models.BatchJob).CreatedAt < cutoff {
			s.jobs.Delete(key)
		}
		return true
	})
}

func (s *BatchStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.expire(now)
		}
	}
}

// PostBatch returns a handler for POST /api/v1/batch/rank.
// It validates the request, registers a job, and runs the keywords in the
// background.
func PostBatch(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		job := models.NewBatchJob("batch-"+randomID(), len(req.Keywords), time.Now().Unix())
		svc.Batches.Put(job)

		go runBatch(svc, job, req)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: "processing",
			Total:  job.Total,
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := svc.Batches.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "batch job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// runBatch runs every keyword of req and records the responses on job.
func runBatch(svc *Service, job *models.BatchJob, req models.BatchRequest) {
	timeout := time.Duration(req.Options.Timeout) * time.Second
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	r := svc.runnerFor(req.Options.Pages, req.Options.EarlyStop, timeout)

	jobs := make([]runner.Job, len(req.Keywords))
	for i, kt := range req.Keywords {
		jobs[i] = runner.Job{Keyword: kt.Keyword, Targets: kt.ASINs}
	}

	var mu sync.Mutex
	failed := 0
	r.Run(svc.baseContext(), jobs, func(idx int, o runner.Outcome) {
		resp := models.NewRankResponse(o.Result)
		resp.Attempts = o.Attempts
		resp.Timing = models.TimingInfo{TotalMs: o.Finished.Sub(o.Started).Milliseconds()}
		job.SetResult(idx, resp)
		if !resp.Success {
			mu.Lock()
			failed++
			mu.Unlock()
		}
	})

	var status string
	switch {
	case failed == job.Total:
		status = "failed"
	case failed > 0:
		status = "partial"
	default:
		status = "completed"
	}
	job.Finish(status)

	slog.Info("batch job finished",
		"id", job.ID,
		"status", status,
		"failed", failed,
		"total", job.Total,
	)

	if req.WebhookURL != "" && svc.Notifier != nil {
		svc.Notifier.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      job.Snapshot(),
		})
	}
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
