package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/maintenance-analytics/internal/db/memstore"
	"github.com/ukydev/maintenance-analytics/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(store *memstore.Store) *Service {
	return NewService(store, store, store, quietLogger(), WithClock(func() time.Time { return fixedNow }))
}

func strPtr(s string) *string { return &s }

func riskPtr(r models.RiskLevel) *models.RiskLevel { return &r }

type ticketOpt func(*models.Ticket)

func assignedTo(id, name string) ticketOpt {
	return func(t *models.Ticket) {
		t.AssignedTo = strPtr(id)
		if name != "" {
			t.AssignedToName = strPtr(name)
		}
	}
}

func createdAgo(d time.Duration) ticketOpt {
	return func(t *models.Ticket) { t.CreatedAt = fixedNow.Add(-d) }
}

func completedAfter(d time.Duration) ticketOpt {
	return func(t *models.Ticket) {
		done := t.CreatedAt.Add(d)
		t.Status = models.StatusCompleted
		t.CompletedAt = &done
	}
}

func category(c string) ticketOpt {
	return func(t *models.Ticket) { t.Category = c }
}

func ticket(building string, status models.TicketStatus, opts ...ticketOpt) models.Ticket {
	t := models.Ticket{
		ID:         primitive.NewObjectID(),
		BuildingID: building,
		Status:     status,
		Priority:   models.PriorityMedium,
		Category:   "hvac",
		CreatedAt:  fixedNow.Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func TestTicketStatistics_StatusCountsPartitionTotal(t *testing.T) {
	store := memstore.New()
	store.AddTickets(
		ticket("b-1", models.StatusOpen),
		ticket("b-1", models.StatusOpen),
		ticket("b-1", models.StatusAssigned, assignedTo("t1", "Ana")),
		ticket("b-1", models.StatusAccepted, assignedTo("t1", "Ana")),
		ticket("b-1", models.StatusInProgress, assignedTo("t2", "Ben")),
		ticket("b-1", models.StatusCompleted, assignedTo("t2", "Ben"), completedAfter(3*time.Hour)),
		ticket("b-2", models.StatusOpen),
	)
	svc := newTestService(store)

	for _, scope := range []models.Scope{models.BuildingScope("b-1"), models.BuildingScope("b-2"), models.GlobalScope(), models.BuildingScope("empty")} {
		t.Run(scope.String(), func(t *testing.T) {
			stats, err := svc.TicketStatistics(context.Background(), scope)
			require.NoError(t, err)

			var sum int64
			for _, row := range stats.ByStatus {
				sum += row.Count
			}
			assert.Equal(t, stats.Total, sum)
			assert.Equal(t, stats.Total, stats.Open+stats.Assigned+stats.Accepted+stats.InProgress+stats.Completed)
		})
	}

	stats, err := svc.TicketStatistics(context.Background(), models.BuildingScope("b-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, int64(2), stats.Open)

	global, err := svc.TicketStatistics(context.Background(), models.GlobalScope())
	require.NoError(t, err)
	assert.Equal(t, int64(7), global.Total)
	assert.Equal(t, int64(3), global.Open)
}

func TestTicketStatistics_TrendOmitsEmptyDays(t *testing.T) {
	store := memstore.New()
	day := func(daysAgo int) ticketOpt { return createdAgo(time.Duration(daysAgo) * 24 * time.Hour) }
	for i := 0; i < 2; i++ {
		store.AddTickets(ticket("b-1", models.StatusOpen, day(20)))
	}
	for i := 0; i < 5; i++ {
		store.AddTickets(ticket("b-1", models.StatusOpen, day(10)))
	}
	store.AddTickets(ticket("b-1", models.StatusOpen, day(2)))
	// Outside the 30-day window.
	store.AddTickets(ticket("b-1", models.StatusOpen, day(45)))

	stats, err := newTestService(store).TicketStatistics(context.Background(), models.BuildingScope("b-1"))
	require.NoError(t, err)

	require.Len(t, stats.DailyTrend, 3)
	assert.Equal(t, fixedNow.AddDate(0, 0, -20).Format("2006-01-02"), stats.DailyTrend[0].Date)
	assert.Equal(t, []int64{2, 5, 1}, []int64{stats.DailyTrend[0].Count, stats.DailyTrend[1].Count, stats.DailyTrend[2].Count})
	assert.True(t, stats.DailyTrend[0].Date < stats.DailyTrend[1].Date)
	assert.True(t, stats.DailyTrend[1].Date < stats.DailyTrend[2].Date)
	assert.Equal(t, int64(9), stats.Total)
}

func TestTicketStatistics_AverageCompletionHours(t *testing.T) {
	store := memstore.New()
	store.AddTickets(
		ticket("b-1", models.StatusOpen, createdAgo(10*time.Hour), completedAfter(2*time.Hour)),
		ticket("b-1", models.StatusOpen, createdAgo(10*time.Hour), completedAfter(4*time.Hour)),
		// Completed but the completion timestamp was never written.
		ticket("b-1", models.StatusCompleted),
	)
	svc := newTestService(store)

	stats, err := svc.TicketStatistics(context.Background(), models.BuildingScope("b-1"))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, stats.AvgCompletionHours, 1e-9)

	empty, err := svc.TicketStatistics(context.Background(), models.BuildingScope("b-9"))
	require.NoError(t, err)
	assert.Zero(t, empty.AvgCompletionHours)
	assert.Empty(t, empty.DailyTrend)
}

func TestTicketStatistics_DistributionsSortedDescending(t *testing.T) {
	store := memstore.New()
	store.AddTickets(
		ticket("b-1", models.StatusOpen, category("plumbing")),
		ticket("b-1", models.StatusOpen, category("electrical")),
		ticket("b-1", models.StatusOpen, category("electrical")),
		ticket("b-1", models.StatusOpen, category("electrical")),
		ticket("b-1", models.StatusOpen, category("plumbing")),
		ticket("b-1", models.StatusOpen, category("elevator")),
	)

	stats, err := newTestService(store).TicketStatistics(context.Background(), models.GlobalScope())
	require.NoError(t, err)
	require.Len(t, stats.ByCategory, 3)
	assert.Equal(t, models.LabelCount{Label: "electrical", Count: 3}, stats.ByCategory[0])
	assert.Equal(t, models.LabelCount{Label: "plumbing", Count: 2}, stats.ByCategory[1])
	assert.Equal(t, models.LabelCount{Label: "elevator", Count: 1}, stats.ByCategory[2])
	assert.Equal(t, []models.LabelCount{{Label: "medium", Count: 6}}, stats.ByPriority)
}

func TestTechnicianPerformance(t *testing.T) {
	store := memstore.New()
	store.AddTickets(
		ticket("b-1", models.StatusOpen, assignedTo("t1", "Ana"), category("hvac"), completedAfter(2*time.Hour)),
		ticket("b-1", models.StatusOpen, assignedTo("t1", "Ana"), category("hvac"), completedAfter(4*time.Hour)),
		ticket("b-1", models.StatusOpen, assignedTo("t1", "Ana"), category("plumbing"), completedAfter(6*time.Hour)),
		ticket("b-1", models.StatusInProgress, assignedTo("t1", "Ana"), category("plumbing")),
		ticket("b-1", models.StatusAccepted, assignedTo("t2", "")),
		ticket("b-1", models.StatusOpen),
		ticket("b-2", models.StatusOpen, assignedTo("t3", "Cy"), completedAfter(time.Hour)),
	)
	svc := newTestService(store)

	perf, err := svc.TechnicianPerformance(context.Background(), models.BuildingScope("b-1"))
	require.NoError(t, err)
	require.Len(t, perf, 2)

	ana := perf[0]
	assert.Equal(t, "t1", ana.TechnicianID)
	assert.Equal(t, "Ana", ana.TechnicianName)
	assert.Equal(t, int64(4), ana.TotalAssigned)
	assert.Equal(t, int64(3), ana.Completed)
	assert.Equal(t, int64(1), ana.InProgress)
	assert.InDelta(t, 75.0, ana.CompletionRate, 1e-9)
	assert.InDelta(t, 4.0, ana.AvgCompletionHours, 1e-9)
	assert.Equal(t, map[string]int64{"hvac": 2, "plumbing": 2}, ana.Categories)

	unnamed := perf[1]
	assert.Equal(t, models.UnknownName, unnamed.TechnicianName)
	assert.Zero(t, unnamed.CompletionRate)
	assert.Zero(t, unnamed.AvgCompletionHours)
	assert.Equal(t, int64(1), unnamed.InProgress)
}

func TestTechnicianPerformance_TiesOrderedByID(t *testing.T) {
	store := memstore.New()
	store.AddTickets(
		ticket("b-1", models.StatusOpen, assignedTo("t9", "Zed"), completedAfter(time.Hour)),
		ticket("b-1", models.StatusOpen, assignedTo("t2", "Bo"), completedAfter(time.Hour)),
		ticket("b-1", models.StatusOpen, assignedTo("t5", "Mo"), completedAfter(time.Hour)),
		ticket("b-1", models.StatusOpen, assignedTo("t5", "Mo"), completedAfter(time.Hour)),
	)

	perf, err := newTestService(store).TechnicianPerformance(context.Background(), models.GlobalScope())
	require.NoError(t, err)
	require.Len(t, perf, 3)
	assert.Equal(t, []string{"t5", "t2", "t9"}, []string{perf[0].TechnicianID, perf[1].TechnicianID, perf[2].TechnicianID})
}

func TestPredictionSummary(t *testing.T) {
	store := memstore.New()
	b1 := strPtr("b-1")
	for i := 0; i < 12; i++ {
		store.AddPredictions(models.Prediction{
			ID:                 primitive.NewObjectID(),
			BuildingID:         b1,
			ModelID:            "rf-v2",
			FailureProbability: 0.5,
			RiskLevel:          riskPtr(models.RiskMedium),
			CreatedAt:          fixedNow.Add(-time.Duration(i) * time.Hour),
		})
	}
	store.AddPredictions(
		// Bucket disagrees with probability and must be reported as stored.
		models.Prediction{ID: primitive.NewObjectID(), BuildingID: b1, ModelID: "gb-v1", FailureProbability: 0.1, RiskLevel: riskPtr(models.RiskHigh), CreatedAt: fixedNow.Add(-48 * time.Hour)},
		models.Prediction{ID: primitive.NewObjectID(), BuildingID: b1, ModelID: "gb-v1", FailureProbability: 0.3, CreatedAt: fixedNow.Add(-72 * time.Hour)},
		models.Prediction{ID: primitive.NewObjectID(), ModelID: "gb-v1", FailureProbability: 0.9, RiskLevel: riskPtr(models.RiskLow), CreatedAt: fixedNow},
	)
	svc := newTestService(store)

	summary, err := svc.PredictionSummary(context.Background(), models.BuildingScope("b-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), summary.Total, "prediction without a risk level is excluded")
	assert.Equal(t, int64(1), summary.High)
	assert.Equal(t, int64(12), summary.Medium)
	assert.Zero(t, summary.Low)

	require.Len(t, summary.Models, 2)
	assert.Equal(t, "rf-v2", summary.Models[0].ModelID)
	assert.Equal(t, int64(12), summary.Models[0].Count)
	assert.InDelta(t, 0.2, summary.Models[1].AvgProbability, 1e-9)
	assert.InDelta(t, (12*0.5+0.1+0.3)/14, summary.AvgFailureProbability, 1e-9)

	require.Len(t, summary.Recent, RecentPredictionLimit)
	for i := 1; i < len(summary.Recent); i++ {
		assert.False(t, summary.Recent[i].CreatedAt.After(summary.Recent[i-1].CreatedAt))
	}

	global, err := svc.PredictionSummary(context.Background(), models.GlobalScope())
	require.NoError(t, err)
	assert.Equal(t, int64(14), global.Total)
	assert.Equal(t, int64(1), global.Low)
}

func TestInvoiceAnalytics(t *testing.T) {
	store := memstore.New()
	store.AddInvoices(
		models.Invoice{BuildingID: "b-1", Amount: 100.10, Status: models.InvoicePaid, CreatedAt: fixedNow.AddDate(0, -1, 0)},
		models.Invoice{BuildingID: "b-1", Amount: 250.25, Status: models.InvoicePaid, CreatedAt: fixedNow.AddDate(0, -3, 0)},
		models.Invoice{BuildingID: "b-1", Amount: 80, Status: models.InvoicePending, CreatedAt: fixedNow.AddDate(0, -1, 0)},
		models.Invoice{BuildingID: "b-1", Amount: 33.33, Status: models.InvoiceCancelled, CreatedAt: fixedNow.AddDate(-2, 0, 0)},
		models.Invoice{BuildingID: "b-2", Amount: 999, Status: models.InvoicePaid, CreatedAt: fixedNow},
	)
	svc := newTestService(store)

	inv, err := svc.InvoiceAnalytics(context.Background(), models.BuildingScope("b-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), inv.TotalInvoices)
	assert.InDelta(t, 463.68, inv.TotalRevenue, 1e-9)
	assert.InDelta(t, inv.TotalRevenue, inv.AvgInvoiceAmount*float64(inv.TotalInvoices), 1e-9)
	require.Len(t, inv.ByStatus, 3)
	assert.Equal(t, models.InvoicePaid, inv.ByStatus[0].Status)

	// The two-year-old invoice is outside the trailing window and there is
	// nothing billed two months ago.
	require.Len(t, inv.Monthly, 2)
	assert.Equal(t, fixedNow.AddDate(0, -3, 0).Format("2006-01"), inv.Monthly[0].Month)
	assert.Equal(t, fixedNow.AddDate(0, -1, 0).Format("2006-01"), inv.Monthly[1].Month)
	assert.InDelta(t, 180.10, inv.Monthly[1].Total, 1e-9)

	empty, err := svc.InvoiceAnalytics(context.Background(), models.BuildingScope("none"))
	require.NoError(t, err)
	assert.Zero(t, empty.TotalInvoices)
	assert.Zero(t, empty.AvgInvoiceAmount)
}

func TestAggregatorsAreIdempotent(t *testing.T) {
	store := memstore.New()
	store.AddTickets(
		ticket("b-1", models.StatusOpen, assignedTo("t1", "Ana")),
		ticket("b-1", models.StatusOpen, assignedTo("t2", "Bo"), completedAfter(time.Hour)),
	)
	store.AddPredictions(models.Prediction{ID: primitive.NewObjectID(), ModelID: "m", RiskLevel: riskPtr(models.RiskHigh), CreatedAt: fixedNow})
	store.AddInvoices(models.Invoice{BuildingID: "b-1", Amount: 10, Status: models.InvoicePaid, CreatedAt: fixedNow})
	svc := newTestService(store)
	ctx := context.Background()
	scope := models.GlobalScope()

	s1, _ := svc.TicketStatistics(ctx, scope)
	s2, _ := svc.TicketStatistics(ctx, scope)
	assert.Equal(t, s1, s2)

	p1, _ := svc.TechnicianPerformance(ctx, scope)
	p2, _ := svc.TechnicianPerformance(ctx, scope)
	assert.Equal(t, p1, p2)

	r1, _ := svc.PredictionSummary(ctx, scope)
	r2, _ := svc.PredictionSummary(ctx, scope)
	assert.Equal(t, r1, r2)

	i1, _ := svc.InvoiceAnalytics(ctx, scope)
	i2, _ := svc.InvoiceAnalytics(ctx, scope)
	assert.Equal(t, i1, i2)

	assert.Equal(t, svc.HealthScore(ctx, scope), svc.HealthScore(ctx, scope))
}

func TestAggregatorsPropagateQueryErrors(t *testing.T) {
	store := memstore.New()
	store.Err = errors.New("connection refused")
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.TicketStatistics(ctx, models.GlobalScope())
	assert.ErrorIs(t, err, store.Err)
	_, err = svc.TechnicianPerformance(ctx, models.GlobalScope())
	assert.ErrorIs(t, err, store.Err)
	_, err = svc.PredictionSummary(ctx, models.GlobalScope())
	assert.ErrorIs(t, err, store.Err)
	_, err = svc.InvoiceAnalytics(ctx, models.GlobalScope())
	assert.ErrorIs(t, err, store.Err)
}
