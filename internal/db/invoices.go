package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/maintenance-analytics/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// InvoiceCollection wraps the invoices collection.
type InvoiceCollection struct {
	Collection *mongo.Collection
}

// RevenueByStatus sums invoice amounts per status over all time.
func (c *InvoiceCollection) RevenueByStatus(ctx context.Context, scope models.Scope) ([]models.StatusRevenue, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: scopeFilter(scope)}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"total": bson.M{"$sum": "$amount"},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "total", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	return aggregate[models.StatusRevenue](ctx, c.Collection, pipeline)
}

// MonthlyRevenue sums invoice amounts per UTC month for invoices created since
// the given time. Months without invoices are absent from the result.
func (c *InvoiceCollection) MonthlyRevenue(ctx context.Context, scope models.Scope, since time.Time) ([]models.MonthRevenue, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: scopeMatch(scope, bson.M{"created_at": bson.M{"$gte": since}})}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m", "date": "$created_at"}},
			"total": bson.M{"$sum": "$amount"},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	return aggregate[models.MonthRevenue](ctx, c.Collection, pipeline)
}

// InsertInvoice inserts an invoice record.
func (c *InvoiceCollection) InsertInvoice(ctx context.Context, invoice models.Invoice) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	_, err := c.Collection.InsertOne(ctx, invoice)
	return err
}
