// Package dispatcher watches the ticket change stream, classifies each change
// and delivers the resulting notifications in order.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/db"
	"github.com/ukydev/maintenance-analytics/internal/models"
	"github.com/ukydev/maintenance-analytics/internal/notify"
	"go.mongodb.org/mongo-driver/bson"
)

// Config tunes the dispatcher.
type Config struct {
	// QueueSize bounds the classified events waiting for delivery.
	QueueSize int
	// MaxAttempts is the number of delivery attempts per notification.
	MaxAttempts int
	// RetryBackoff is the wait before the first retry; it doubles per attempt
	// up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// CheckpointID names the stored resume position.
	CheckpointID   string
	NotifyResolved bool
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.CheckpointID == "" {
		c.CheckpointID = "tickets"
	}
	return c
}

// delivery is one processed change event: its notifications, if any, and the
// stream position to checkpoint once they are delivered or dropped.
type delivery struct {
	token         bson.Raw
	notifications []models.Notification
}

// Dispatcher runs the watch loop. Exactly one dispatcher may watch a ticket
// store; a second instance would emit every notification twice.
type Dispatcher struct {
	watcher     db.TicketWatcher
	checkpoints db.CheckpointStore
	notifier    notify.Notifier
	classifier  Classifier
	cfg         Config
	log         logrus.FieldLogger
	now         func() time.Time
	newID       func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the notification timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithIDGenerator overrides notification id generation.
func WithIDGenerator(newID func() string) Option {
	return func(d *Dispatcher) { d.newID = newID }
}

// New creates a dispatcher. checkpoints may be nil, in which case every run
// starts from the current end of the stream.
func New(watcher db.TicketWatcher, checkpoints db.CheckpointStore, notifier notify.Notifier, cfg Config, logger logrus.FieldLogger, opts ...Option) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		watcher:     watcher,
		checkpoints: checkpoints,
		notifier:    notifier,
		classifier:  Classifier{NotifyResolved: cfg.NotifyResolved},
		cfg:         cfg,
		log:         logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run watches ticket changes until ctx is cancelled or the stream fails. On
// cancellation every queued notification gets one last delivery attempt
// without retries and Run returns nil. A stream
// failure is returned so the process can exit and be restarted by its
// supervisor; it resumes from the last checkpoint.
func (d *Dispatcher) Run(ctx context.Context) error {
	var resumeAfter bson.Raw
	if d.checkpoints != nil {
		token, err := d.checkpoints.LoadCheckpoint(ctx, d.cfg.CheckpointID)
		if err != nil {
			return fmt.Errorf("load checkpoint %q: %w", d.cfg.CheckpointID, err)
		}
		resumeAfter = token
	}

	stream, err := d.watcher.WatchTickets(ctx, resumeAfter)
	if err != nil {
		return fmt.Errorf("open ticket change stream: %w", err)
	}
	defer stream.Close(context.WithoutCancel(ctx))

	d.log.WithFields(logrus.Fields{
		"resumed":    resumeAfter != nil,
		"queue_size": d.cfg.QueueSize,
	}).Info("dispatcher watching ticket changes")

	queue := make(chan delivery, d.cfg.QueueSize)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		d.deliverAll(context.WithoutCancel(ctx), ctx, queue)
	}()

	err = d.watch(ctx, stream, queue)
	close(queue)
	<-drained
	return err
}

func (d *Dispatcher) watch(ctx context.Context, stream db.ChangeStream, queue chan<- delivery) error {
	for stream.Next(ctx) {
		token := append(bson.Raw(nil), stream.ResumeToken()...)
		var ev db.ChangeEvent
		if err := stream.Decode(&ev); err != nil {
			d.log.WithError(err).Warn("dropping undecodable change event")
			if !enqueue(ctx, queue, delivery{token: token}) {
				break
			}
			continue
		}

		if !enqueue(ctx, queue, d.process(ev, token)) {
			break
		}
	}

	if ctx.Err() != nil {
		d.log.Info("dispatcher shutting down")
		return nil
	}
	if err := stream.Err(); err != nil {
		d.log.WithError(err).Error("ticket change stream failed")
		return fmt.Errorf("ticket change stream: %w", err)
	}
	return ErrChangeStreamClosed
}

// process classifies one event into a delivery. Unclassifiable events yield a
// delivery without notifications so the checkpoint still moves past them.
func (d *Dispatcher) process(ev db.ChangeEvent, token bson.Raw) delivery {
	out := delivery{token: token}
	decision, err := d.classifier.Classify(ev)
	if err != nil {
		d.log.WithError(err).WithField("operation", ev.OperationType).Warn("dropping change event")
		return out
	}

	fields := logrus.Fields{
		"operation":   ev.OperationType,
		"ticket_id":   decision.Ticket.ID.Hex(),
		"building_id": decision.Ticket.BuildingID,
	}
	for _, note := range decision.Notes {
		d.log.WithFields(fields).Info(note)
	}

	snapshot := models.SnapshotOf(decision.Ticket)
	for _, typ := range decision.Events {
		out.notifications = append(out.notifications, models.Notification{
			ID:         d.newID(),
			Type:       typ,
			Ticket:     snapshot,
			OccurredAt: d.now().UTC(),
		})
	}
	return out
}

// enqueue blocks while the queue is full. It reports false when ctx ends first;
// that event is not checkpointed and is replayed on the next run.
func enqueue(ctx context.Context, queue chan<- delivery, del delivery) bool {
	select {
	case queue <- del:
		return true
	case <-ctx.Done():
		return false
	}
}

// deliverAll drains the queue in order. Notify calls run on ctx so in-flight
// attempts survive shutdown; shutdown only stops retries. Once a notification
// is abandoned on shutdown no later checkpoint is saved, so the next run
// replays from the first undelivered event.
func (d *Dispatcher) deliverAll(ctx, shutdown context.Context, queue <-chan delivery) {
	stalled := false
	for del := range queue {
		for _, n := range del.notifications {
			if !d.deliver(ctx, shutdown, n) {
				stalled = true
			}
		}
		if !stalled {
			d.checkpoint(ctx, del.token)
		}
	}
}

// deliver sends n, retrying with exponential backoff. It reports false only when
// n was abandoned because of shutdown; a notification dropped after MaxAttempts
// counts as handled.
func (d *Dispatcher) deliver(ctx, shutdown context.Context, n models.Notification) bool {
	entry := d.log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"type":            n.Type,
		"ticket_id":       n.Ticket.TicketID,
	})
	backoff := d.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := d.notifier.Notify(ctx, n)
		if err == nil {
			entry.WithField("attempt", attempt).Info("notification delivered")
			return true
		}
		if shutdown.Err() != nil {
			entry.WithError(err).WithField("attempts", attempt).Warn("notification abandoned on shutdown")
			return false
		}
		if attempt >= d.cfg.MaxAttempts {
			entry.WithError(err).WithField("attempts", attempt).Error("notification delivery failed, dropping")
			return true
		}
		entry.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "retry_in": backoff}).Warn("notification delivery failed, retrying")
		// Shutdown cuts the wait short; the next attempt is the last.
		select {
		case <-time.After(backoff):
		case <-shutdown.Done():
		}
		backoff *= 2
		if backoff > d.cfg.MaxBackoff {
			backoff = d.cfg.MaxBackoff
		}
	}
}

func (d *Dispatcher) checkpoint(ctx context.Context, token bson.Raw) {
	if d.checkpoints == nil || len(token) == 0 {
		return
	}
	if err := d.checkpoints.SaveCheckpoint(ctx, d.cfg.CheckpointID, token); err != nil {
		d.log.WithError(err).Warn("saving dispatcher checkpoint failed")
	}
}
