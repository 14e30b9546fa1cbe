package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/maintenance-analytics/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TicketCollection wraps the tickets collection.
type TicketCollection struct {
	Collection *mongo.Collection
}

// CountTicketsByStatus groups tickets in scope by status.
func (c *TicketCollection) CountTicketsByStatus(ctx context.Context, scope models.Scope) ([]models.LabelCount, error) {
	return aggregate[models.LabelCount](ctx, c.Collection, countByPipeline(scope, "$status"))
}

// CountTicketsByCategory groups tickets in scope by category, largest first.
func (c *TicketCollection) CountTicketsByCategory(ctx context.Context, scope models.Scope) ([]models.LabelCount, error) {
	return aggregate[models.LabelCount](ctx, c.Collection, countByPipeline(scope, "$category"))
}

// CountTicketsByPriority groups tickets in scope by priority, largest first.
func (c *TicketCollection) CountTicketsByPriority(ctx context.Context, scope models.Scope) ([]models.LabelCount, error) {
	return aggregate[models.LabelCount](ctx, c.Collection, countByPipeline(scope, "$priority"))
}

// TicketCompletionStats averages creation-to-completion hours over completed tickets.
func (c *TicketCollection) TicketCompletionStats(ctx context.Context, scope models.Scope) (models.CompletionStat, error) {
	rows, err := aggregate[models.CompletionStat](ctx, c.Collection, completionPipeline(scope))
	if err != nil {
		return models.CompletionStat{}, err
	}
	if len(rows) == 0 {
		return models.CompletionStat{}, nil
	}
	return rows[0], nil
}

// DailyTicketCounts counts tickets created since the given time per UTC day.
// Days without tickets are absent from the result.
func (c *TicketCollection) DailyTicketCounts(ctx context.Context, scope models.Scope, since time.Time) ([]models.DayCount, error) {
	return aggregate[models.DayCount](ctx, c.Collection, dailyCountPipeline(scope, since))
}

// TechnicianGroups groups assigned tickets by assignee.
func (c *TicketCollection) TechnicianGroups(ctx context.Context, scope models.Scope) ([]models.TechnicianGroup, error) {
	return aggregate[models.TechnicianGroup](ctx, c.Collection, technicianPipeline(scope))
}

// InsertTicket inserts a ticket and returns its id.
func (c *TicketCollection) InsertTicket(ctx context.Context, ticket models.Ticket) (primitive.ObjectID, error) {
	if c.Collection == nil {
		return primitive.NilObjectID, fmt.Errorf("mongo collection is nil")
	}
	if ticket.ID.IsZero() {
		ticket.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if _, err := c.Collection.InsertOne(ctx, ticket); err != nil {
		return primitive.NilObjectID, err
	}
	return ticket.ID, nil
}

// UpdateTicket applies a $set to a ticket and bumps updated_at.
func (c *TicketCollection) UpdateTicket(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	fields := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range set {
		fields[k] = v
	}
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("ticket not found")
	}
	return nil
}

// WatchTickets subscribes to insert, update and replace events on tickets. Every
// event carries the full current document.
func (c *TicketCollection) WatchTickets(ctx context.Context, resumeAfter bson.Raw) (ChangeStream, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if len(resumeAfter) > 0 {
		opts.SetResumeAfter(resumeAfter)
	}
	stream, err := c.Collection.Watch(ctx, changeStreamPipeline(), opts)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func countByPipeline(scope models.Scope, field string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: scopeFilter(scope)}},
		{{Key: "$group", Value: bson.M{"_id": field, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func completionPipeline(scope models.Scope) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: scopeMatch(scope, bson.M{
			"status":       models.StatusCompleted,
			"created_at":   bson.M{"$ne": nil},
			"completed_at": bson.M{"$ne": nil},
		})}},
		{{Key: "$group", Value: bson.M{
			"_id":       nil,
			"avg_hours": bson.M{"$avg": hoursBetween("$created_at", "$completed_at")},
			"count":     bson.M{"$sum": 1},
		}}},
	}
}

func dailyCountPipeline(scope models.Scope, since time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: scopeMatch(scope, bson.M{"created_at": bson.M{"$gte": since}})}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$created_at"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func technicianPipeline(scope models.Scope) mongo.Pipeline {
	completed := bson.M{"$eq": bson.A{"$status", models.StatusCompleted}}
	timed := bson.M{"$and": bson.A{completed, present("$created_at"), present("$completed_at")}}
	active := bson.M{"$in": bson.A{"$status", bson.A{models.StatusAssigned, models.StatusAccepted, models.StatusInProgress}}}

	return mongo.Pipeline{
		{{Key: "$match", Value: scopeMatch(scope, bson.M{"assigned_to": bson.M{"$ne": nil}})}},
		{{Key: "$group", Value: bson.M{
			"_id":                "$assigned_to",
			"name":               bson.M{"$max": "$assigned_to_name"},
			"total":              bson.M{"$sum": 1},
			"completed":          bson.M{"$sum": bson.M{"$cond": bson.A{completed, 1, 0}}},
			"in_progress":        bson.M{"$sum": bson.M{"$cond": bson.A{active, 1, 0}}},
			"completion_hours":   bson.M{"$sum": bson.M{"$cond": bson.A{timed, hoursBetween("$created_at", "$completed_at"), 0}}},
			"completion_samples": bson.M{"$sum": bson.M{"$cond": bson.A{timed, 1, 0}}},
			"categories":         bson.M{"$push": "$category"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "completed", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func changeStreamPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace"}}}}},
	}
}
