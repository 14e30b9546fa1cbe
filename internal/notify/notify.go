// Package notify delivers classified ticket notifications to external sinks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/models"
)

// Notifier delivers one notification. Implementations must be safe to call
// again with the same notification after a failure.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier creates a log sink.
func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, n models.Notification) error {
	l.log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"type":            n.Type,
		"ticket_id":       n.Ticket.TicketID,
		"building_id":     n.Ticket.BuildingID,
		"priority":        n.Ticket.Priority,
		"status":          n.Ticket.Status,
	}).Info("notification")
	return nil
}

// MultiNotifier delivers to every sink in order. All sinks are attempted and
// their failures joined, so a retry may re-deliver to sinks that succeeded.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for i, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
