// Package analytics derives ticket, technician, prediction and invoice
// statistics and the composite building health score from the record store.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/db"
	"github.com/ukydev/maintenance-analytics/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	// TrendDays is the window of the daily ticket creation trend.
	TrendDays = 30
	// RevenueMonths is the window of the monthly revenue trend.
	RevenueMonths = 12
	// RecentPredictionLimit caps the recent predictions in a summary.
	RecentPredictionLimit = 10
)

// Service computes analytics over the record store. It never mutates the store,
// so its methods are safe to call concurrently.
type Service struct {
	tickets     db.TicketAggregates
	predictions db.PredictionAggregates
	invoices    db.InvoiceAggregates
	log         logrus.FieldLogger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for trend windows and overview timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an analytics service.
func NewService(tickets db.TicketAggregates, predictions db.PredictionAggregates, invoices db.InvoiceAggregates, logger logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		tickets:     tickets,
		predictions: predictions,
		invoices:    invoices,
		log:         logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TicketStatistics counts tickets by status, category and priority, averages
// completion time and builds the 30-day creation trend.
func (s *Service) TicketStatistics(ctx context.Context, scope models.Scope) (*models.TicketStats, error) {
	statuses, err := s.tickets.CountTicketsByStatus(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("count tickets by status: %w", err)
	}
	categories, err := s.tickets.CountTicketsByCategory(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("count tickets by category: %w", err)
	}
	priorities, err := s.tickets.CountTicketsByPriority(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("count tickets by priority: %w", err)
	}
	completion, err := s.tickets.TicketCompletionStats(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("ticket completion stats: %w", err)
	}
	since := s.now().UTC().AddDate(0, 0, -TrendDays)
	trend, err := s.tickets.DailyTicketCounts(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("daily ticket counts: %w", err)
	}

	stats := &models.TicketStats{
		ByStatus:   sortedCounts(statuses),
		ByCategory: sortedCounts(categories),
		ByPriority: sortedCounts(priorities),
		DailyTrend: trend,
	}
	for _, row := range statuses {
		stats.Total += row.Count
		switch models.TicketStatus(row.Label) {
		case models.StatusOpen:
			stats.Open = row.Count
		case models.StatusAssigned:
			stats.Assigned = row.Count
		case models.StatusAccepted:
			stats.Accepted = row.Count
		case models.StatusInProgress:
			stats.InProgress = row.Count
		case models.StatusCompleted:
			stats.Completed = row.Count
		}
	}
	if completion.Count > 0 {
		stats.AvgCompletionHours = completion.AvgHours
	}
	sort.SliceStable(stats.DailyTrend, func(i, j int) bool { return stats.DailyTrend[i].Date < stats.DailyTrend[j].Date })
	return stats, nil
}

// TechnicianPerformance derives per-technician workload and completion figures,
// ordered by completed tickets descending and technician id ascending.
func (s *Service) TechnicianPerformance(ctx context.Context, scope models.Scope) ([]models.TechnicianPerformance, error) {
	groups, err := s.tickets.TechnicianGroups(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("technician groups: %w", err)
	}

	out := make([]models.TechnicianPerformance, 0, len(groups))
	for _, g := range groups {
		perf := models.TechnicianPerformance{
			TechnicianID:   g.TechnicianID,
			TechnicianName: models.UnknownName,
			TotalAssigned:  g.Total,
			Completed:      g.Completed,
			InProgress:     g.InProgress,
			Categories:     map[string]int64{},
		}
		if g.TechnicianName != nil && *g.TechnicianName != "" {
			perf.TechnicianName = *g.TechnicianName
		}
		// A group exists only because at least one ticket matched it.
		if g.Total > 0 {
			perf.CompletionRate = float64(g.Completed) / float64(g.Total) * 100
		}
		if g.CompletionSamples > 0 {
			perf.AvgCompletionHours = g.CompletionHours / float64(g.CompletionSamples)
		}
		for _, c := range g.Categories {
			perf.Categories[c]++
		}
		out = append(out, perf)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return out[i].Completed > out[j].Completed
		}
		return out[i].TechnicianID < out[j].TechnicianID
	})
	return out, nil
}

// PredictionSummary reports the stored risk distribution, per-model
// calibration and the most recent predictions.
func (s *Service) PredictionSummary(ctx context.Context, scope models.Scope) (*models.PredictionSummary, error) {
	risks, err := s.predictions.CountPredictionsByRisk(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("count predictions by risk: %w", err)
	}
	modelStats, err := s.predictions.PredictionModelStats(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("prediction model stats: %w", err)
	}
	recent, err := s.predictions.RecentPredictions(ctx, scope, RecentPredictionLimit)
	if err != nil {
		return nil, fmt.Errorf("recent predictions: %w", err)
	}

	summary := &models.PredictionSummary{
		ByRisk: sortedCounts(risks),
		Models: modelStats,
		Recent: make([]models.PredictionDigest, 0, len(recent)),
	}
	for _, row := range risks {
		summary.Total += row.Count
		switch models.RiskLevel(row.Label) {
		case models.RiskHigh:
			summary.High = row.Count
		case models.RiskMedium:
			summary.Medium = row.Count
		case models.RiskLow:
			summary.Low = row.Count
		}
	}

	var weighted float64
	var n int64
	for _, m := range modelStats {
		weighted += m.AvgProbability * float64(m.Count)
		n += m.Count
	}
	if n > 0 {
		summary.AvgFailureProbability = weighted / float64(n)
	}

	for _, p := range recent {
		summary.Recent = append(summary.Recent, models.PredictionDigest{
			ID:                 p.ID.Hex(),
			TicketID:           p.TicketID,
			RiskLevel:          p.RiskLevel,
			FailureProbability: p.FailureProbability,
			RecommendedAction:  p.RecommendedAction,
			CreatedAt:          p.CreatedAt,
		})
	}
	return summary, nil
}

// InvoiceAnalytics reports revenue by status over all time and the trailing
// 12-month revenue trend.
func (s *Service) InvoiceAnalytics(ctx context.Context, scope models.Scope) (*models.InvoiceAnalytics, error) {
	byStatus, err := s.invoices.RevenueByStatus(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("revenue by status: %w", err)
	}
	since := s.now().UTC().AddDate(0, -RevenueMonths, 0)
	monthly, err := s.invoices.MonthlyRevenue(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("monthly revenue: %w", err)
	}

	out := &models.InvoiceAnalytics{ByStatus: byStatus, Monthly: monthly}
	for _, row := range byStatus {
		out.TotalRevenue += row.Total
		out.TotalInvoices += row.Count
	}
	if out.TotalInvoices > 0 {
		out.AvgInvoiceAmount = out.TotalRevenue / float64(out.TotalInvoices)
	}
	sort.SliceStable(out.Monthly, func(i, j int) bool { return out.Monthly[i].Month < out.Monthly[j].Month })
	return out, nil
}

// HealthReport computes the composite health score for scope. A failure in
// either input aggregation degrades the score to 0 instead of returning an error.
func (s *Service) HealthReport(ctx context.Context, scope models.Scope) models.HealthReport {
	var (
		stats   *models.TicketStats
		summary *models.PredictionSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = s.TicketStatistics(gctx, scope)
		return err
	})
	g.Go(func() (err error) {
		summary, err = s.PredictionSummary(gctx, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.WithError(err).WithField("scope", scope.String()).Error("health score computation failed, reporting 0")
		return DegradedHealth()
	}
	return ScoreHealth(*stats, *summary)
}

// HealthScore is HealthReport reduced to the integer score.
func (s *Service) HealthScore(ctx context.Context, scope models.Scope) int {
	return s.HealthReport(ctx, scope).Score
}

// Overview sections.
const (
	SectionTickets     = "tickets"
	SectionTechnicians = "technicians"
	SectionPredictions = "predictions"
	SectionInvoices    = "invoices"
)

// Overview computes every analytics section concurrently. A failed section is
// left out and reported in Failures without cancelling the others; an error is
// returned only when every section failed.
func (s *Service) Overview(ctx context.Context, scope models.Scope) (*models.Overview, error) {
	var (
		out     = &models.Overview{}
		health  models.HealthReport
		mu      sync.Mutex
		errs    = map[string]error{}
		g       errgroup.Group
		section = func(name string, fn func() error) {
			g.Go(func() error {
				err := fn()
				if err != nil {
					mu.Lock()
					errs[name] = err
					mu.Unlock()
				}
				return err
			})
		}
	)

	section(SectionTickets, func() (err error) {
		out.Tickets, err = s.TicketStatistics(ctx, scope)
		return err
	})
	section(SectionTechnicians, func() (err error) {
		out.Technicians, err = s.TechnicianPerformance(ctx, scope)
		return err
	})
	section(SectionPredictions, func() (err error) {
		out.Predictions, err = s.PredictionSummary(ctx, scope)
		return err
	})
	section(SectionInvoices, func() (err error) {
		out.Invoices, err = s.InvoiceAnalytics(ctx, scope)
		return err
	})
	g.Go(func() error {
		health = s.HealthReport(ctx, scope)
		return nil
	})
	_ = g.Wait()

	out.HealthScore = health.Score
	out.HealthGrade = health.Grade
	out.GeneratedAt = s.now().UTC()

	if len(errs) == 0 {
		return out, nil
	}
	out.Failures = make(map[string]string, len(errs))
	joined := make([]error, 0, len(errs))
	for name, err := range errs {
		out.Failures[name] = err.Error()
		joined = append(joined, err)
		s.log.WithError(err).WithFields(logrus.Fields{"scope": scope.String(), "section": name}).Warn("overview section failed")
	}
	if len(errs) == 4 {
		return nil, fmt.Errorf("overview: every section failed: %w", errors.Join(joined...))
	}
	return out, nil
}

// sortedCounts orders grouped counts by count descending, then label.
func sortedCounts(rows []models.LabelCount) []models.LabelCount {
	out := append([]models.LabelCount(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
