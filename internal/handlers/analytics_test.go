package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/maintenance-analytics/internal/analytics"
	"github.com/ukydev/maintenance-analytics/internal/auth"
	"github.com/ukydev/maintenance-analytics/internal/cache"
	"github.com/ukydev/maintenance-analytics/internal/db/memstore"
	"github.com/ukydev/maintenance-analytics/internal/middleware"
	"github.com/ukydev/maintenance-analytics/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router *gin.Engine
	store  *memstore.Store
	auth   *auth.Service
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memstore.New()
	svc := analytics.NewService(store, store, store, logger, analytics.WithClock(func() time.Time { return testNow }))
	memo := cache.NewMemo(cache.NewMemoryCache(30*time.Second, 100), logger)
	authService := auth.NewService("handler-secret", time.Hour)

	if cfg.RateLimitRequests == 0 {
		cfg.RateLimitRequests = 1000
		cfg.RateLimitWindow = 60
	}
	router := NewRouter(
		NewAnalyticsHandler(svc, memo, logger),
		middleware.NewAuthMiddleware(authService),
		middleware.NewRateLimitMiddleware(),
		cfg,
		logger,
	)
	return &testServer{router: router, store: store, auth: authService}
}

func (s *testServer) seed() {
	created := testNow.Add(-48 * time.Hour)
	done := created.Add(5 * time.Hour)
	tech := "tech-1"
	for _, b := range []string{"b-1", "b-1", "b-1", "b-2"} {
		s.store.AddTickets(models.Ticket{ID: primitive.NewObjectID(), BuildingID: b, Status: models.StatusOpen, Priority: models.PriorityLow, Category: "hvac", CreatedAt: created})
	}
	s.store.AddTickets(models.Ticket{ID: primitive.NewObjectID(), BuildingID: "b-1", Status: models.StatusCompleted, Priority: models.PriorityHigh, Category: "plumbing", AssignedTo: &tech, CreatedAt: created, CompletedAt: &done})
	s.store.AddInvoices(models.Invoice{BuildingID: "b-1", Amount: 120, Status: models.InvoicePaid, CreatedAt: created})
}

func (s *testServer) token(t *testing.T, userID string, role models.Role, building string) string {
	t.Helper()
	token, err := s.auth.GenerateToken(models.Claims{UserID: userID, Role: role, BuildingID: building})
	require.NoError(t, err)
	return token
}

func (s *testServer) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestResolveScope(t *testing.T) {
	tests := []struct {
		name    string
		claims  models.Claims
		query   string
		want    models.Scope
		wantErr bool
	}{
		{"admin global", models.Claims{Role: models.RoleAdmin}, "", models.GlobalScope(), false},
		{"admin picks building", models.Claims{Role: models.RoleAdmin}, "b-9", models.BuildingScope("b-9"), false},
		{"manager pinned", models.Claims{Role: models.RoleManager, BuildingID: "b-1"}, "", models.BuildingScope("b-1"), false},
		{"manager own building", models.Claims{Role: models.RoleManager, BuildingID: "b-1"}, "b-1", models.BuildingScope("b-1"), false},
		{"manager other building", models.Claims{Role: models.RoleManager, BuildingID: "b-1"}, "b-2", models.Scope{}, true},
		{"resident without building", models.Claims{Role: models.RoleResident}, "", models.Scope{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			target := "/api/analytics/statistics"
			if tt.query != "" {
				target += "?building_id=" + tt.query
			}
			c.Request = httptest.NewRequest(http.MethodGet, target, nil)

			got, err := resolveScope(c, &tt.claims)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrForbiddenScope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStatistics(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	s.seed()
	manager := s.token(t, "u-1", models.RoleManager, "b-1")

	w := s.get("/api/analytics/statistics", manager)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.TicketStats](t, w)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Open)
	assert.Equal(t, int64(1), stats.Completed)
	assert.InDelta(t, 5.0, stats.AvgCompletionHours, 1e-9)

	admin := s.token(t, "u-admin", models.RoleAdmin, "")
	global := decode[models.TicketStats](t, s.get("/api/analytics/statistics", admin))
	assert.Equal(t, int64(5), global.Total)
	scoped := decode[models.TicketStats](t, s.get("/api/analytics/statistics?building_id=b-2", admin))
	assert.Equal(t, int64(1), scoped.Total)
}

func TestGetStatistics_CachedWithinTTL(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	s.seed()
	manager := s.token(t, "u-1", models.RoleManager, "b-1")

	first := s.get("/api/analytics/statistics", manager)
	require.Equal(t, http.StatusOK, first.Code)

	s.store.AddTickets(models.Ticket{ID: primitive.NewObjectID(), BuildingID: "b-1", Status: models.StatusOpen, CreatedAt: testNow})

	second := s.get("/api/analytics/statistics", manager)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	// Another principal has its own key and sees the new ticket.
	other := s.token(t, "u-2", models.RoleManager, "b-1")
	fresh := decode[models.TicketStats](t, s.get("/api/analytics/statistics", other))
	assert.Equal(t, int64(5), fresh.Total)
}

func TestScopeAndPermissionErrors(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	s.seed()

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"no token", "/api/analytics/statistics", "", http.StatusUnauthorized},
		{"other building", "/api/analytics/statistics?building_id=b-2", s.token(t, "u-1", models.RoleManager, "b-1"), http.StatusForbidden},
		{"no building claim", "/api/analytics/health-score", s.token(t, "u-3", models.RoleResident, ""), http.StatusForbidden},
		{"technician invoices", "/api/analytics/invoices", s.token(t, "u-4", models.RoleTechnician, "b-1"), http.StatusForbidden},
		{"resident overview", "/api/analytics/overview", s.token(t, "u-5", models.RoleResident, "b-1"), http.StatusForbidden},
		{"technician predictions", "/api/analytics/predictions", s.token(t, "u-4", models.RoleTechnician, "b-1"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.get(tt.path, tt.token)
			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				assert.Contains(t, decode[map[string]string](t, w), "error")
			}
		})
	}
}

func TestSectionEndpoints(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	s.seed()
	manager := s.token(t, "u-1", models.RoleManager, "b-1")

	techs := decode[[]models.TechnicianPerformance](t, s.get("/api/analytics/technicians", manager))
	require.Len(t, techs, 1)
	assert.Equal(t, models.UnknownName, techs[0].TechnicianName)
	assert.InDelta(t, 100.0, techs[0].CompletionRate, 1e-9)

	invoices := decode[models.InvoiceAnalytics](t, s.get("/api/analytics/invoices", manager))
	assert.Equal(t, int64(1), invoices.TotalInvoices)
	assert.InDelta(t, 120.0, invoices.AvgInvoiceAmount, 1e-9)

	preds := decode[models.PredictionSummary](t, s.get("/api/analytics/predictions", manager))
	assert.Zero(t, preds.Total)

	// completion 25, open 75 -> 25, no predictions: 10 + 7.5 + 30 = 47.5 -> 48
	health := decode[models.HealthReport](t, s.get("/api/analytics/health-score", manager))
	assert.Equal(t, 48, health.Score)
	assert.Equal(t, "F", health.Grade)

	w := s.get("/api/analytics/overview", manager)
	require.Equal(t, http.StatusOK, w.Code)
	overview := decode[map[string]json.RawMessage](t, w)
	for _, key := range []string{"health_score", "tickets", "technicians", "predictions", "invoices", "generated_at"} {
		assert.Contains(t, overview, key)
	}
	assert.NotContains(t, overview, "failures")
}

func TestStoreFailures(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	s.store.Err = errors.New("no reachable servers")
	admin := s.token(t, "u-admin", models.RoleAdmin, "")

	w := s.get("/api/analytics/technicians", admin)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())

	assert.Equal(t, http.StatusInternalServerError, s.get("/api/analytics/statistics", admin).Code)
	assert.Equal(t, http.StatusInternalServerError, s.get("/api/analytics/overview", admin).Code)

	health := s.get("/api/analytics/health-score", admin)
	require.Equal(t, http.StatusOK, health.Code)
	assert.Equal(t, 0, decode[models.HealthReport](t, health).Score)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	w := s.get("/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	down := newTestServer(t, RouterConfig{Ping: func(context.Context) error { return errors.New("mongo down") }})
	w = down.get("/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimitedRoutes(t *testing.T) {
	s := newTestServer(t, RouterConfig{RateLimitRequests: 2, RateLimitWindow: 60})
	admin := s.token(t, "u-admin", models.RoleAdmin, "")

	assert.Equal(t, http.StatusOK, s.get("/api/analytics/predictions", admin).Code)
	assert.Equal(t, http.StatusOK, s.get("/api/analytics/predictions", admin).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.get("/api/analytics/predictions", admin).Code)
	assert.Equal(t, http.StatusOK, s.get("/health", "").Code, "health is not rate limited")
}
