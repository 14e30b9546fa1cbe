package db

import (
	"context"
	"time"

	"github.com/ukydev/maintenance-analytics/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TicketAggregates defines the grouped ticket queries the analytics layer reads.
type TicketAggregates interface {
	CountTicketsByStatus(ctx context.Context, scope models.Scope) ([]models.LabelCount, error)
	CountTicketsByCategory(ctx context.Context, scope models.Scope) ([]models.LabelCount, error)
	CountTicketsByPriority(ctx context.Context, scope models.Scope) ([]models.LabelCount, error)
	TicketCompletionStats(ctx context.Context, scope models.Scope) (models.CompletionStat, error)
	DailyTicketCounts(ctx context.Context, scope models.Scope, since time.Time) ([]models.DayCount, error)
	TechnicianGroups(ctx context.Context, scope models.Scope) ([]models.TechnicianGroup, error)
}

// PredictionAggregates defines the grouped prediction queries.
type PredictionAggregates interface {
	CountPredictionsByRisk(ctx context.Context, scope models.Scope) ([]models.LabelCount, error)
	PredictionModelStats(ctx context.Context, scope models.Scope) ([]models.ModelStat, error)
	RecentPredictions(ctx context.Context, scope models.Scope, limit int) ([]models.Prediction, error)
}

// InvoiceAggregates defines the grouped invoice queries.
type InvoiceAggregates interface {
	RevenueByStatus(ctx context.Context, scope models.Scope) ([]models.StatusRevenue, error)
	MonthlyRevenue(ctx context.Context, scope models.Scope, since time.Time) ([]models.MonthRevenue, error)
}

// TicketWriter defines the ticket mutations used by the simulator.
type TicketWriter interface {
	InsertTicket(ctx context.Context, ticket models.Ticket) (primitive.ObjectID, error)
	UpdateTicket(ctx context.Context, id primitive.ObjectID, set bson.M) error
}

// ChangeStream is the subset of *mongo.ChangeStream the dispatcher consumes.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	ResumeToken() bson.Raw
	Close(ctx context.Context) error
}

// TicketWatcher opens a change subscription on the ticket collection.
type TicketWatcher interface {
	WatchTickets(ctx context.Context, resumeAfter bson.Raw) (ChangeStream, error)
}

// CheckpointStore persists the last processed change stream position.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, id string) (bson.Raw, error)
	SaveCheckpoint(ctx context.Context, id string, token bson.Raw) error
}
