package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TicketStatus is the lifecycle state of a maintenance ticket.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusAssigned   TicketStatus = "assigned"
	StatusAccepted   TicketStatus = "accepted"
	StatusInProgress TicketStatus = "in_progress"
	StatusCompleted  TicketStatus = "completed"
)

// TicketStatuses lists every status in lifecycle order.
var TicketStatuses = []TicketStatus{StatusOpen, StatusAssigned, StatusAccepted, StatusInProgress, StatusCompleted}

// IsActiveWork reports whether a technician is holding the ticket but has not finished it.
func (s TicketStatus) IsActiveWork() bool {
	return s == StatusAssigned || s == StatusAccepted || s == StatusInProgress
}

// TicketPriority is the urgency assigned to a ticket.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// Ticket represents a building maintenance request.
type Ticket struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	BuildingID     string             `json:"building_id" bson:"building_id"`
	Title          string             `json:"title" bson:"title"`
	Description    string             `json:"description" bson:"description"`
	Status         TicketStatus       `json:"status" bson:"status"`
	Priority       TicketPriority     `json:"priority" bson:"priority"`
	Category       string             `json:"category" bson:"category"` // "hvac", "electrical", "plumbing", "elevator", "security", "appliance", ...
	CreatedBy      string             `json:"created_by" bson:"created_by"`
	CreatedByName  string             `json:"created_by_name" bson:"created_by_name"`
	AssignedTo     *string            `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	AssignedToName *string            `json:"assigned_to_name,omitempty" bson:"assigned_to_name,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// Assignee returns the technician id and display name, falling back to "Unknown"
// when the name was never recorded.
func (t Ticket) Assignee() (id string, name string, ok bool) {
	if t.AssignedTo == nil || *t.AssignedTo == "" {
		return "", "", false
	}
	name = UnknownName
	if t.AssignedToName != nil && *t.AssignedToName != "" {
		name = *t.AssignedToName
	}
	return *t.AssignedTo, name, true
}

// CompletionHours returns the hours between creation and completion. The second
// result is false unless the ticket is completed with both timestamps set.
func (t Ticket) CompletionHours() (float64, bool) {
	if t.Status != StatusCompleted || t.CreatedAt.IsZero() || t.CompletedAt == nil || t.CompletedAt.IsZero() {
		return 0, false
	}
	return t.CompletedAt.Sub(t.CreatedAt).Hours(), true
}

// UnknownName is reported for people whose display name is missing.
const UnknownName = "Unknown"
