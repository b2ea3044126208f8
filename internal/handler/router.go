package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/health"
	"go.uber.org/zap"
)

// DefaultBodyLimit caps request bodies at 1 MB.
const DefaultBodyLimit = 1 << 20

// RouterConfig controls the middleware stack built by NewRouter.
type RouterConfig struct {
	CORSOrigins    []string
	RateLimitRPS   int // 0 disables rate limiting
	RateLimitBurst int // defaults to twice RateLimitRPS
	BodyLimit      int64
	Health         HealthReporter // optional; adds the latest chain audit to /healthz
}

// HealthReporter supplies the latest background chain audit.
type HealthReporter interface {
	Report() health.Report
}

// NewRouter assembles the notary HTTP surface: middleware, /healthz,
// /metrics and the /api/v1 routes. ctx bounds background work started by
// the middleware.
func NewRouter(ctx context.Context, svc NotaryService, logger *zap.Logger, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
			AllowCredentials: !containsWildcard(cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(SecurityHeaders())

	limit := cfg.BodyLimit
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	router.Use(BodyLimit(limit))

	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = cfg.RateLimitRPS * 2
		}
		router.Use(RateLimiter(ctx, cfg.RateLimitRPS, burst))
	}

	router.Use(PrometheusMiddleware())
	router.Use(RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		resp := gin.H{"status": "ok"}
		if cfg.Health != nil {
			resp["chain"] = cfg.Health.Report()
		}
		c.JSON(http.StatusOK, resp)
	})
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")
	NewNotaryHandler(svc, logger).Register(v1)

	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
