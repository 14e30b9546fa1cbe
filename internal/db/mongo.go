package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/maintenance-analytics/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names in the maintenance database.
const (
	TicketsCollection     = "tickets"
	PredictionsCollection = "predictions"
	InvoicesCollection    = "invoices"
	CheckpointsCollection = "dispatcher_checkpoints"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Store bundles the collections of the maintenance database.
type Store struct {
	Tickets     *TicketCollection
	Predictions *PredictionCollection
	Invoices    *InvoiceCollection
	Checkpoints *CheckpointCollection
}

// NewStore wires every collection of database.
func NewStore(database *mongo.Database) *Store {
	return &Store{
		Tickets:     &TicketCollection{Collection: database.Collection(TicketsCollection)},
		Predictions: &PredictionCollection{Collection: database.Collection(PredictionsCollection)},
		Invoices:    &InvoiceCollection{Collection: database.Collection(InvoicesCollection)},
		Checkpoints: &CheckpointCollection{Collection: database.Collection(CheckpointsCollection)},
	}
}

// EnsureIndexes creates the indexes the analytics pipelines filter and sort on.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	byBuildingCreated := mongo.IndexModel{Keys: bson.D{{Key: "building_id", Value: 1}, {Key: "created_at", Value: -1}}}

	indexes := map[string][]mongo.IndexModel{
		TicketsCollection: {
			byBuildingCreated,
			{Keys: bson.D{{Key: "building_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "assigned_to", Value: 1}}},
		},
		PredictionsCollection: {byBuildingCreated},
		InvoicesCollection:    {byBuildingCreated},
	}
	for name, idx := range indexes {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// scopeFilter restricts a query to the scope's building; the global scope matches everything.
func scopeFilter(scope models.Scope) bson.M {
	if scope.IsGlobal() {
		return bson.M{}
	}
	return bson.M{"building_id": scope.BuildingID}
}

// scopeMatch merges extra conditions into the scope filter.
func scopeMatch(scope models.Scope, extra bson.M) bson.M {
	filter := scopeFilter(scope)
	for k, v := range extra {
		filter[k] = v
	}
	return filter
}

// aggregate runs pipeline against coll and decodes every result into []T.
func aggregate[T any](ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) ([]T, error) {
	if coll == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// hoursBetween is the aggregation expression for (end - start) in hours.
func hoursBetween(start, end string) bson.M {
	return bson.M{"$divide": bson.A{bson.M{"$subtract": bson.A{end, start}}, 3600000}}
}

// present is the aggregation expression that is true when field is neither missing nor null.
func present(field string) bson.M {
	return bson.M{"$ne": bson.A{bson.M{"$ifNull": bson.A{field, nil}}, nil}}
}
