package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Invoice represents a billed maintenance charge.
type Invoice struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	BuildingID string             `json:"building_id" bson:"building_id"`
	TicketID   string             `json:"ticket_id,omitempty" bson:"ticket_id,omitempty"`
	Amount     float64            `json:"amount" bson:"amount"` // non-negative, in USD
	Status     InvoiceStatus      `json:"status" bson:"status"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}
