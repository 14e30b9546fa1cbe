package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/models"
)

const defaultPublishTimeout = 10 * time.Second

// MQTTNotifier publishes notifications as JSON to
// <prefix>/<building_id>/<type>.
type MQTTNotifier struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewMQTTNotifier wraps a connected client.
func NewMQTTNotifier(client mqtt.Client, prefix string, qos byte, logger logrus.FieldLogger) *MQTTNotifier {
	return &MQTTNotifier{
		client:  client,
		prefix:  strings.TrimRight(prefix, "/"),
		qos:     qos,
		timeout: defaultPublishTimeout,
		log:     logger,
	}
}

// ConnectMQTT dials the broker and waits for the connection to be acknowledged.
func ConnectMQTT(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out after %s", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, err)
	}
	return client, nil
}

// Topic returns the topic a notification is published on.
func (m *MQTTNotifier) Topic(n models.Notification) string {
	building := n.Ticket.BuildingID
	if building == "" {
		building = "unscoped"
	}
	return m.prefix + "/" + building + "/" + string(n.Type)
}

// Notify implements Notifier.
func (m *MQTTNotifier) Notify(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}

	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	topic := m.Topic(n)
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	m.log.WithFields(logrus.Fields{"topic": topic, "notification_id": n.ID}).Debug("notification published")
	return nil
}

// Close disconnects from the broker, waiting briefly for in-flight messages.
func (m *MQTTNotifier) Close() {
	m.client.Disconnect(250)
}
