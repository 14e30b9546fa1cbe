package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RiskLevel is the coarse bucket attached to a failure prediction. It is stored
// independently of FailureProbability and is never recomputed from it.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Prediction is a stored equipment failure prediction.
type Prediction struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BuildingID         *string            `bson:"building_id,omitempty" json:"building_id,omitempty"`
	TicketID           *string            `bson:"ticket_id,omitempty" json:"ticket_id,omitempty"`
	ModelID            string             `bson:"model_id" json:"model_id"`
	FailureProbability float64            `bson:"failure_probability" json:"failure_probability"` // 0..1
	RiskLevel          *RiskLevel         `bson:"risk_level,omitempty" json:"risk_level,omitempty"`
	RecommendedAction  string             `bson:"recommended_action" json:"recommended_action"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
}
