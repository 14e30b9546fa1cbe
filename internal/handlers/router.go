package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/middleware"
	"github.com/ukydev/maintenance-analytics/internal/models"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   int
	// Ping checks the record store for /health. Nil reports healthy.
	Ping func(ctx context.Context) error
}

// NewRouter wires the analytics routes behind authentication, permission
// checks and per-client rate limiting.
func NewRouter(h *AnalyticsHandler, authMW *middleware.AuthMiddleware, limiter *middleware.RateLimitMiddleware, cfg RouterConfig, logger logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", healthHandler(cfg.Ping))

	api := r.Group("/api/analytics")
	api.Use(limiter.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow), authMW.Authenticate())
	api.GET("/statistics", authMW.RequirePermission(models.ActionViewStatistics), h.GetStatistics)
	api.GET("/technicians", authMW.RequirePermission(models.ActionViewTechnicians), h.GetTechnicians)
	api.GET("/predictions", authMW.RequirePermission(models.ActionViewPredictions), h.GetPredictions)
	api.GET("/invoices", authMW.RequirePermission(models.ActionViewInvoices), h.GetInvoices)
	api.GET("/health-score", authMW.RequirePermission(models.ActionViewHealth), h.GetHealthScore)
	api.GET("/overview", authMW.RequirePermission(models.ActionViewOverview), h.GetOverview)
	return r
}

func healthHandler(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Debug("request")
	}
}
