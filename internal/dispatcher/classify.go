package dispatcher

import (
	"errors"
	"fmt"

	"github.com/ukydev/maintenance-analytics/internal/db"
	"github.com/ukydev/maintenance-analytics/internal/models"
)

var (
	// ErrMalformedChange marks a change event that cannot be classified. Such
	// events are logged and skipped.
	ErrMalformedChange = errors.New("malformed change event")
	// ErrChangeStreamClosed is returned when the change stream ends without an
	// error and without a shutdown request.
	ErrChangeStreamClosed = errors.New("ticket change stream closed")
)

// Decision is the outcome of classifying one change event.
type Decision struct {
	Ticket models.Ticket
	// Events lists the notifications to emit, in order.
	Events []models.NotificationType
	// Notes are informational outcomes that produce no notification.
	Notes []string
}

// Classifier maps ticket change events to notifications.
type Classifier struct {
	// NotifyResolved emits TICKET_RESOLVED when a ticket's status changes to
	// completed instead of only logging it.
	NotifyResolved bool
}

// Classify inspects one change event. Inserts and updates are classified from
// the post-change document; an update only triggers on fields it changed.
func (c Classifier) Classify(ev db.ChangeEvent) (Decision, error) {
	if !ev.HasFullDocument() {
		return Decision{}, fmt.Errorf("%w: %s event has no full document", ErrMalformedChange, ev.OperationType)
	}
	var ticket models.Ticket
	if err := ev.FullDocument.Unmarshal(&ticket); err != nil {
		return Decision{}, fmt.Errorf("%w: decode ticket: %v", ErrMalformedChange, err)
	}
	if ticket.ID.IsZero() {
		return Decision{}, fmt.Errorf("%w: ticket has no id", ErrMalformedChange)
	}

	d := Decision{Ticket: ticket}
	switch ev.OperationType {
	case db.OperationInsert:
		if ticket.Priority == models.PriorityUrgent {
			d.Events = append(d.Events, models.NotificationUrgentTicketCreated)
		} else {
			d.Notes = append(d.Notes, fmt.Sprintf("ticket created with %s priority", ticket.Priority))
		}
	case db.OperationUpdate, db.OperationReplace:
		if v, ok := ev.ChangedField("priority"); ok {
			if p, isString := v.StringValueOK(); isString && models.TicketPriority(p) == models.PriorityUrgent {
				d.Events = append(d.Events, models.NotificationPriorityEscalated)
			}
		}
		if v, ok := ev.ChangedField("status"); ok {
			if s, isString := v.StringValueOK(); isString && models.TicketStatus(s) == models.StatusCompleted {
				if c.NotifyResolved {
					d.Events = append(d.Events, models.NotificationTicketResolved)
				} else {
					d.Notes = append(d.Notes, "ticket resolved")
				}
			}
		}
	default:
		d.Notes = append(d.Notes, "ignored "+ev.OperationType+" operation")
	}
	return d, nil
}
