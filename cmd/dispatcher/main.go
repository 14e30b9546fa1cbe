package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/config"
	"github.com/ukydev/maintenance-analytics/internal/db"
	"github.com/ukydev/maintenance-analytics/internal/dispatcher"
	"github.com/ukydev/maintenance-analytics/internal/logger"
	"github.com/ukydev/maintenance-analytics/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("dispatcher stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()
	store := db.NewStore(client.Database(cfg.Mongo.Database))

	notifier, closeSinks, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeSinks()

	d := dispatcher.New(store.Tickets, store.Checkpoints, notifier, dispatcherConfig(cfg), log)
	return d.Run(ctx)
}

func dispatcherConfig(cfg *config.Config) dispatcher.Config {
	return dispatcher.Config{
		QueueSize:      cfg.Dispatcher.QueueSize,
		MaxAttempts:    cfg.Dispatcher.MaxAttempts,
		RetryBackoff:   cfg.Dispatcher.RetryBackoff,
		MaxBackoff:     cfg.Dispatcher.MaxBackoff,
		CheckpointID:   cfg.Dispatcher.CheckpointID,
		NotifyResolved: cfg.Dispatcher.NotifyResolved,
	}
}

// buildNotifier fans notifications out to every configured sink. The returned
// func releases sink connections.
func buildNotifier(cfg *config.Config, log logrus.FieldLogger) (notify.Notifier, func(), error) {
	var sinks notify.MultiNotifier
	var closers []func()
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, notify.NewLogNotifier(log))
		case config.SinkMQTT:
			client, err := notify.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, 10*time.Second)
			if err != nil {
				for _, c := range closers {
					c()
				}
				return nil, nil, err
			}
			mq := notify.NewMQTTNotifier(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, log)
			sinks = append(sinks, mq)
			closers = append(closers, mq.Close)
			log.WithField("broker", cfg.MQTT.Broker).Info("publishing notifications to MQTT")
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, notify.NewLogNotifier(log))
	}
	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
