package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/analytics"
	"github.com/ukydev/maintenance-analytics/internal/cache"
	"github.com/ukydev/maintenance-analytics/internal/middleware"
	"github.com/ukydev/maintenance-analytics/internal/models"
)

// ErrForbiddenScope is returned when a principal asks for a building it may not see.
var ErrForbiddenScope = errors.New("scope not permitted")

// AnalyticsHandler serves the analytics read endpoints.
type AnalyticsHandler struct {
	analytics *analytics.Service
	memo      *cache.Memo
	log       logrus.FieldLogger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(service *analytics.Service, memo *cache.Memo, logger logrus.FieldLogger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: service,
		memo:      memo,
		log:       logger,
	}
}

// resolveScope maps the principal and the optional building_id query parameter
// to a tenant scope. Principals allowed the global view may pick any building
// or none; everyone else is pinned to the building in their token.
func resolveScope(c *gin.Context, claims *models.Claims) (models.Scope, error) {
	requested := strings.TrimSpace(c.Query("building_id"))
	if claims.Role.Can(models.ActionViewGlobal) {
		if requested == "" {
			return models.GlobalScope(), nil
		}
		return models.BuildingScope(requested), nil
	}
	if claims.BuildingID == "" {
		return models.Scope{}, ErrForbiddenScope
	}
	if requested != "" && requested != claims.BuildingID {
		return models.Scope{}, ErrForbiddenScope
	}
	return models.BuildingScope(claims.BuildingID), nil
}

// principalScope loads the claims and scope for a request, writing the error
// response itself when either is unavailable.
func (h *AnalyticsHandler) principalScope(c *gin.Context) (*models.Claims, models.Scope, bool) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("user context not found"))
		return nil, models.Scope{}, false
	}
	scope, err := resolveScope(c, claims)
	if err != nil {
		h.handleError(c, err)
		return nil, models.Scope{}, false
	}
	return claims, scope, true
}

// GetStatistics serves ticket statistics through the stats cache.
func (h *AnalyticsHandler) GetStatistics(c *gin.Context) {
	claims, scope, ok := h.principalScope(c)
	if !ok {
		return
	}

	key := cache.StatsKey(claims.UserID, claims.Role, scope)
	body, err := h.memo.Do(c.Request.Context(), key, func(ctx context.Context) (interface{}, error) {
		return h.analytics.TicketStatistics(ctx, scope)
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GetTechnicians serves per-technician performance.
func (h *AnalyticsHandler) GetTechnicians(c *gin.Context) {
	_, scope, ok := h.principalScope(c)
	if !ok {
		return
	}
	perf, err := h.analytics.TechnicianPerformance(c.Request.Context(), scope)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

// GetPredictions serves the prediction summary.
func (h *AnalyticsHandler) GetPredictions(c *gin.Context) {
	_, scope, ok := h.principalScope(c)
	if !ok {
		return
	}
	summary, err := h.analytics.PredictionSummary(c.Request.Context(), scope)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetInvoices serves invoice analytics.
func (h *AnalyticsHandler) GetInvoices(c *gin.Context) {
	_, scope, ok := h.principalScope(c)
	if !ok {
		return
	}
	invoices, err := h.analytics.InvoiceAnalytics(c.Request.Context(), scope)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

// GetHealthScore serves the health score. It never fails on store errors; the
// score degrades to 0 instead.
func (h *AnalyticsHandler) GetHealthScore(c *gin.Context) {
	_, scope, ok := h.principalScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.analytics.HealthReport(c.Request.Context(), scope))
}

// GetOverview serves every section at once.
func (h *AnalyticsHandler) GetOverview(c *gin.Context) {
	_, scope, ok := h.principalScope(c)
	if !ok {
		return
	}
	overview, err := h.analytics.Overview(c.Request.Context(), scope)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *AnalyticsHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrForbiddenScope):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("analytics request failed")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func errorResponse(message string) gin.H {
	return gin.H{"error": message}
}
