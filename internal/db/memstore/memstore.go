// Package memstore is an in-memory implementation of the aggregation
// interfaces in package db. It mirrors the MongoDB pipelines closely enough to
// back the analytics and handler tests; no binary uses it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/maintenance-analytics/internal/models"
)

// Store holds tickets, predictions and invoices in memory.
type Store struct {
	mu          sync.RWMutex
	tickets     []models.Ticket
	predictions []models.Prediction
	invoices    []models.Invoice

	// Err, when set, is returned by every query.
	Err error
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// AddTickets appends tickets to the store.
func (s *Store) AddTickets(tickets ...models.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = append(s.tickets, tickets...)
}

// AddPredictions appends predictions to the store.
func (s *Store) AddPredictions(predictions ...models.Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = append(s.predictions, predictions...)
}

// AddInvoices appends invoices to the store.
func (s *Store) AddInvoices(invoices ...models.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = append(s.invoices, invoices...)
}

func inScope(scope models.Scope, buildingID string) bool {
	return scope.IsGlobal() || scope.BuildingID == buildingID
}

func (s *Store) scopedTickets(scope models.Scope) []models.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if inScope(scope, t.BuildingID) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) scopedPredictions(scope models.Scope) []models.Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Prediction, 0, len(s.predictions))
	for _, p := range s.predictions {
		if scope.IsGlobal() || (p.BuildingID != nil && *p.BuildingID == scope.BuildingID) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) scopedInvoices(scope models.Scope) []models.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if inScope(scope, inv.BuildingID) {
			out = append(out, inv)
		}
	}
	return out
}

// countBy groups labels and orders them by count descending, then label.
func countBy(labels []string) []models.LabelCount {
	counts := map[string]int64{}
	for _, l := range labels {
		counts[l]++
	}
	out := make([]models.LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, models.LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// CountTicketsByStatus implements db.TicketAggregates.
func (s *Store) CountTicketsByStatus(_ context.Context, scope models.Scope) ([]models.LabelCount, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var labels []string
	for _, t := range s.scopedTickets(scope) {
		labels = append(labels, string(t.Status))
	}
	return countBy(labels), nil
}

// CountTicketsByCategory implements db.TicketAggregates.
func (s *Store) CountTicketsByCategory(_ context.Context, scope models.Scope) ([]models.LabelCount, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var labels []string
	for _, t := range s.scopedTickets(scope) {
		labels = append(labels, t.Category)
	}
	return countBy(labels), nil
}

// CountTicketsByPriority implements db.TicketAggregates.
func (s *Store) CountTicketsByPriority(_ context.Context, scope models.Scope) ([]models.LabelCount, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var labels []string
	for _, t := range s.scopedTickets(scope) {
		labels = append(labels, string(t.Priority))
	}
	return countBy(labels), nil
}

// TicketCompletionStats implements db.TicketAggregates.
func (s *Store) TicketCompletionStats(_ context.Context, scope models.Scope) (models.CompletionStat, error) {
	if s.Err != nil {
		return models.CompletionStat{}, s.Err
	}
	var sum float64
	var n int64
	for _, t := range s.scopedTickets(scope) {
		if hours, ok := t.CompletionHours(); ok {
			sum += hours
			n++
		}
	}
	if n == 0 {
		return models.CompletionStat{}, nil
	}
	return models.CompletionStat{AvgHours: sum / float64(n), Count: n}, nil
}

// DailyTicketCounts implements db.TicketAggregates.
func (s *Store) DailyTicketCounts(_ context.Context, scope models.Scope, since time.Time) ([]models.DayCount, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	counts := map[string]int64{}
	for _, t := range s.scopedTickets(scope) {
		if t.CreatedAt.Before(since) {
			continue
		}
		counts[t.CreatedAt.UTC().Format("2006-01-02")]++
	}
	out := make([]models.DayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, models.DayCount{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// TechnicianGroups implements db.TicketAggregates.
func (s *Store) TechnicianGroups(_ context.Context, scope models.Scope) ([]models.TechnicianGroup, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	groups := map[string]*models.TechnicianGroup{}
	var order []string
	for _, t := range s.scopedTickets(scope) {
		if t.AssignedTo == nil {
			continue
		}
		id := *t.AssignedTo
		g, ok := groups[id]
		if !ok {
			g = &models.TechnicianGroup{TechnicianID: id}
			groups[id] = g
			order = append(order, id)
		}
		if t.AssignedToName != nil && (g.TechnicianName == nil || *t.AssignedToName > *g.TechnicianName) {
			name := *t.AssignedToName
			g.TechnicianName = &name
		}
		g.Total++
		switch {
		case t.Status == models.StatusCompleted:
			g.Completed++
		case t.Status.IsActiveWork():
			g.InProgress++
		}
		if hours, ok := t.CompletionHours(); ok {
			g.CompletionHours += hours
			g.CompletionSamples++
		}
		g.Categories = append(g.Categories, t.Category)
	}
	out := make([]models.TechnicianGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *groups[id])
	}
	return out, nil
}

// CountPredictionsByRisk implements db.PredictionAggregates.
func (s *Store) CountPredictionsByRisk(_ context.Context, scope models.Scope) ([]models.LabelCount, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var labels []string
	for _, p := range s.scopedPredictions(scope) {
		if p.RiskLevel != nil {
			labels = append(labels, string(*p.RiskLevel))
		}
	}
	return countBy(labels), nil
}

// PredictionModelStats implements db.PredictionAggregates.
func (s *Store) PredictionModelStats(_ context.Context, scope models.Scope) ([]models.ModelStat, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	sums := map[string]float64{}
	counts := map[string]int64{}
	for _, p := range s.scopedPredictions(scope) {
		sums[p.ModelID] += p.FailureProbability
		counts[p.ModelID]++
	}
	out := make([]models.ModelStat, 0, len(counts))
	for id, n := range counts {
		out = append(out, models.ModelStat{ModelID: id, Count: n, AvgProbability: sums[id] / float64(n)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out, nil
}

// RecentPredictions implements db.PredictionAggregates.
func (s *Store) RecentPredictions(_ context.Context, scope models.Scope, limit int) ([]models.Prediction, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := s.scopedPredictions(scope)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RevenueByStatus implements db.InvoiceAggregates.
func (s *Store) RevenueByStatus(_ context.Context, scope models.Scope) ([]models.StatusRevenue, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	rows := map[models.InvoiceStatus]*models.StatusRevenue{}
	for _, inv := range s.scopedInvoices(scope) {
		r, ok := rows[inv.Status]
		if !ok {
			r = &models.StatusRevenue{Status: inv.Status}
			rows[inv.Status] = r
		}
		r.Total += inv.Amount
		r.Count++
	}
	out := make([]models.StatusRevenue, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// MonthlyRevenue implements db.InvoiceAggregates.
func (s *Store) MonthlyRevenue(_ context.Context, scope models.Scope, since time.Time) ([]models.MonthRevenue, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	rows := map[string]*models.MonthRevenue{}
	for _, inv := range s.scopedInvoices(scope) {
		if inv.CreatedAt.Before(since) {
			continue
		}
		month := inv.CreatedAt.UTC().Format("2006-01")
		r, ok := rows[month]
		if !ok {
			r = &models.MonthRevenue{Month: month}
			rows[month] = r
		}
		r.Total += inv.Amount
		r.Count++
	}
	out := make([]models.MonthRevenue, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}
