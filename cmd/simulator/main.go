package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/config"
	"github.com/ukydev/maintenance-analytics/internal/db"
	"github.com/ukydev/maintenance-analytics/internal/logger"
	"github.com/ukydev/maintenance-analytics/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var categories = []string{"hvac", "electrical", "plumbing", "elevator", "security", "appliance"}

var priorities = []models.TicketPriority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent}

var technicians = []struct{ ID, Name string }{
	{"tech-1", "Ada Okafor"},
	{"tech-2", "Luis Moreno"},
	{"tech-3", "Mina Park"},
	{"tech-4", ""}, // no display name on record
}

var predictionModels = []string{"hvac-failure-v2", "elevator-wear-v1", "leak-detector-v3"}

// PredictionWriter inserts prediction records.
type PredictionWriter interface {
	InsertPrediction(ctx context.Context, prediction models.Prediction) error
}

// InvoiceWriter inserts invoice records.
type InvoiceWriter interface {
	InsertInvoice(ctx context.Context, invoice models.Invoice) error
}

// ticketState is the simulator's view of a live ticket.
type ticketState struct {
	ID         primitive.ObjectID
	BuildingID string
	Status     models.TicketStatus
	Priority   models.TicketPriority
	Category   string
}

type simulator struct {
	tickets     db.TicketWriter
	predictions PredictionWriter
	invoices    InvoiceWriter
	buildings   []string
	rng         *rand.Rand
	log         logrus.FieldLogger
	now         func() time.Time
	live        []*ticketState
}

// nextStatus walks open -> assigned -> accepted -> in_progress -> completed.
// Completed tickets stay completed.
func nextStatus(s models.TicketStatus) models.TicketStatus {
	for i, status := range models.TicketStatuses {
		if status == s && i+1 < len(models.TicketStatuses) {
			return models.TicketStatuses[i+1]
		}
	}
	return models.StatusCompleted
}

// riskFor buckets a failure probability.
func riskFor(p float64) models.RiskLevel {
	switch {
	case p >= 0.7:
		return models.RiskHigh
	case p >= 0.4:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func (s *simulator) pick(n int) int { return s.rng.Intn(n) }

func (s *simulator) newTicket() models.Ticket {
	category := categories[s.pick(len(categories))]
	building := s.buildings[s.pick(len(s.buildings))]
	return models.Ticket{
		BuildingID:    building,
		Title:         fmt.Sprintf("%s issue in %s", category, building),
		Description:   "reported by simulator",
		Status:        models.StatusOpen,
		Priority:      priorities[s.pick(len(priorities))],
		Category:      category,
		CreatedBy:     fmt.Sprintf("resident-%d", s.pick(50)),
		CreatedByName: "Simulated Resident",
		CreatedAt:     s.now().UTC(),
	}
}

// advance builds the update moving a ticket one step forward, occasionally
// escalating it to urgent. ok is false for tickets that are already done.
func (s *simulator) advance(t *ticketState) (set bson.M, ok bool) {
	if t.Status == models.StatusCompleted {
		return nil, false
	}
	set = bson.M{}
	next := nextStatus(t.Status)
	set["status"] = next
	switch next {
	case models.StatusAssigned:
		tech := technicians[s.pick(len(technicians))]
		set["assigned_to"] = tech.ID
		if tech.Name != "" {
			set["assigned_to_name"] = tech.Name
		}
	case models.StatusCompleted:
		set["completed_at"] = s.now().UTC()
	}
	if next != models.StatusCompleted && t.Priority != models.PriorityUrgent && s.rng.Float64() < 0.1 {
		set["priority"] = models.PriorityUrgent
	}
	return set, true
}

func (s *simulator) newPrediction() models.Prediction {
	building := s.buildings[s.pick(len(s.buildings))]
	p := s.rng.Float64()
	pred := models.Prediction{
		BuildingID:         &building,
		ModelID:            predictionModels[s.pick(len(predictionModels))],
		FailureProbability: p,
		RecommendedAction:  "inspect equipment",
		CreatedAt:          s.now().UTC(),
	}
	// Some models do not classify risk.
	if s.rng.Float64() >= 0.1 {
		risk := riskFor(p)
		pred.RiskLevel = &risk
	}
	return pred
}

func (s *simulator) invoiceFor(t *ticketState) models.Invoice {
	statuses := []models.InvoiceStatus{models.InvoicePending, models.InvoicePaid, models.InvoicePaid, models.InvoiceCancelled}
	return models.Invoice{
		BuildingID: t.BuildingID,
		TicketID:   t.ID.Hex(),
		Amount:     float64(50+s.pick(950)) + float64(s.pick(100))/100,
		Status:     statuses[s.pick(len(statuses))],
		CreatedAt:  s.now().UTC(),
	}
}

// tick creates one ticket and one prediction, then moves every live ticket
// forward. Completed tickets get an invoice and leave the live set.
func (s *simulator) tick(ctx context.Context) error {
	ticket := s.newTicket()
	id, err := s.tickets.InsertTicket(ctx, ticket)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	s.live = append(s.live, &ticketState{ID: id, BuildingID: ticket.BuildingID, Status: ticket.Status, Priority: ticket.Priority, Category: ticket.Category})
	s.log.WithFields(logrus.Fields{"ticket_id": id.Hex(), "building_id": ticket.BuildingID, "priority": ticket.Priority}).Info("Created ticket")

	if err := s.predictions.InsertPrediction(ctx, s.newPrediction()); err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}

	remaining := s.live[:0]
	for _, t := range s.live {
		// Leave some tickets untouched each tick so statuses spread out.
		if s.rng.Float64() < 0.5 {
			remaining = append(remaining, t)
			continue
		}
		set, ok := s.advance(t)
		if !ok {
			continue
		}
		if err := s.tickets.UpdateTicket(ctx, t.ID, set); err != nil {
			return fmt.Errorf("update ticket %s: %w", t.ID.Hex(), err)
		}
		t.Status = set["status"].(models.TicketStatus)
		if p, escalated := set["priority"]; escalated {
			t.Priority = p.(models.TicketPriority)
		}
		if t.Status == models.StatusCompleted {
			if err := s.invoices.InsertInvoice(ctx, s.invoiceFor(t)); err != nil {
				return fmt.Errorf("insert invoice: %w", err)
			}
			continue
		}
		remaining = append(remaining, t)
	}
	s.live = remaining
	return nil
}

func (s *simulator) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.log.WithError(err).Error("Simulation tick failed")
			}
		}
	}
}

func buildingIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("building-%d", i+1)
	}
	return ids
}

func envInt(key string, def, min int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
	}
	return def
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	buildings := envInt("SIM_BUILDINGS", 5, 1)
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 2, 1)) * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()
	store := db.NewStore(client.Database(cfg.Mongo.Database))

	log.WithFields(logrus.Fields{
		"buildings": buildings,
		"interval":  interval,
	}).Info("Starting maintenance simulation")

	sim := &simulator{
		tickets:     store.Tickets,
		predictions: store.Predictions,
		invoices:    store.Invoices,
		buildings:   buildingIDs(buildings),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		log:         log,
		now:         time.Now,
	}
	sim.run(ctx, interval)
	log.Info("Simulation stopped")
}
