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

// PredictionCollection wraps the predictions collection.
type PredictionCollection struct {
	Collection *mongo.Collection
}

// CountPredictionsByRisk groups predictions by their stored risk level.
// Predictions without a risk level are excluded.
func (c *PredictionCollection) CountPredictionsByRisk(ctx context.Context, scope models.Scope) ([]models.LabelCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: scopeMatch(scope, bson.M{"risk_level": bson.M{"$ne": nil}})}},
		{{Key: "$group", Value: bson.M{"_id": "$risk_level", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	return aggregate[models.LabelCount](ctx, c.Collection, pipeline)
}

// PredictionModelStats counts predictions and averages failure probability per model.
func (c *PredictionCollection) PredictionModelStats(ctx context.Context, scope models.Scope) ([]models.ModelStat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: scopeFilter(scope)}},
		{{Key: "$group", Value: bson.M{
			"_id":             "$model_id",
			"count":           bson.M{"$sum": 1},
			"avg_probability": bson.M{"$avg": "$failure_probability"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	return aggregate[models.ModelStat](ctx, c.Collection, pipeline)
}

// RecentPredictions returns the newest predictions in scope.
func (c *PredictionCollection) RecentPredictions(ctx context.Context, scope models.Scope, limit int) ([]models.Prediction, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := c.Collection.Find(ctx, scopeFilter(scope), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []models.Prediction{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertPrediction inserts a prediction record.
func (c *PredictionCollection) InsertPrediction(ctx context.Context, prediction models.Prediction) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if prediction.CreatedAt.IsZero() {
		prediction.CreatedAt = time.Now().UTC()
	}
	_, err := c.Collection.InsertOne(ctx, prediction)
	return err
}
