package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/serprank/api/handler"
	"github.com/use-agent/serprank/api/middleware"
	"github.com/use-agent/serprank/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health sits outside auth so monitoring checks always work.
func NewRouter(svc *handler.Service, pool handler.PoolReporter, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(pool, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/rank", handler.Rank(svc))

	protected.POST("/batch/rank", handler.PostBatch(svc))
	protected.GET("/batch/:id", handler.GetBatch(svc))

	return r
}
