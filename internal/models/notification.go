package models

import "time"

// NotificationType identifies what a dispatched notification is about.
type NotificationType string

const (
	NotificationUrgentTicketCreated NotificationType = "URGENT_TICKET_CREATED"
	NotificationPriorityEscalated   NotificationType = "PRIORITY_ESCALATED"
	NotificationTicketResolved      NotificationType = "TICKET_RESOLVED"
)

// TicketSnapshot is the ticket payload carried by a notification.
type TicketSnapshot struct {
	TicketID     string         `json:"ticket_id"`
	BuildingID   string         `json:"building_id"`
	Title        string         `json:"title"`
	Category     string         `json:"category"`
	Priority     TicketPriority `json:"priority"`
	Status       TicketStatus   `json:"status"`
	CreatedBy    string         `json:"created_by,omitempty"`
	AssigneeName string         `json:"assignee_name,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SnapshotOf projects a ticket into a notification payload.
func SnapshotOf(t Ticket) TicketSnapshot {
	s := TicketSnapshot{
		TicketID:   t.ID.Hex(),
		BuildingID: t.BuildingID,
		Title:      t.Title,
		Category:   t.Category,
		Priority:   t.Priority,
		Status:     t.Status,
		CreatedBy:  t.CreatedByName,
		CreatedAt:  t.CreatedAt,
	}
	if _, name, ok := t.Assignee(); ok {
		s.AssigneeName = name
	}
	return s
}

// Notification is one classified ticket event. ID is stable across delivery
// retries so consumers can deduplicate.
type Notification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	Ticket     TicketSnapshot   `json:"ticket"`
	OccurredAt time.Time        `json:"occurred_at"`
}
