package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/serprank/cache"
	"github.com/use-agent/serprank/models"
	"github.com/use-agent/serprank/rank"
	"github.com/use-agent/serprank/runner"
)

// Rank returns a handler for POST /api/v1/rank.
//
// Flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Run the keyword session with retries.
//  4. Store non-retryable results in the cache and respond.
//
// Blocked and failed sessions still carry the ranks found before the stop.
func Rank(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.RankRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.RankResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		pages, earlyStop := svc.effectivePolicy(req.Pages, req.EarlyStop)
		cacheKey := cache.Key(req.Keyword, req.ASINs, pages, earlyStop)

		// ── 2. Cache lookup ─────────────────────────────────────────
		if svc.Cache != nil && req.MaxAge > 0 {
			if cached, hit := svc.Cache.Get(cacheKey, time.Duration(req.MaxAge)*time.Millisecond); hit {
				resp := *cached
				resp.CacheStatus = "hit"
				resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		// ── 3. Run ──────────────────────────────────────────────────
		r := svc.runnerFor(req.Pages, req.EarlyStop, time.Duration(req.Timeout)*time.Second)
		o := r.RunOne(c.Request.Context(), runner.Job{Keyword: req.Keyword, Targets: req.ASINs})

		resp := models.NewRankResponse(o.Result)
		resp.Attempts = o.Attempts
		resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}

		// ── 4. Cache store ──────────────────────────────────────────
		if svc.Cache != nil && req.MaxAge > 0 && !o.Result.Status.Retryable() {
			stored := *resp
			svc.Cache.Set(cacheKey, &stored)
			resp.CacheStatus = "miss"
		}

		c.JSON(statusFor(o.Result.Status, resp.Error), resp)
	}
}

// statusFor maps a session outcome to an HTTP status code.
func statusFor(status rank.Status, detail *models.ErrorDetail) int {
	switch status {
	case rank.StatusExhausted, rank.StatusComplete:
		return http.StatusOK
	case rank.StatusBlocked:
		return http.StatusServiceUnavailable // 503
	}
	if detail == nil {
		return http.StatusInternalServerError
	}
	return mapErrorToStatus(detail.Code)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeBlocked:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
