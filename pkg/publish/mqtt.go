package publish

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-headgesture/internal/log"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTOptions configures an MQTTPublisher.
type MQTTOptions struct {
	Broker      string // e.g. "tcp://localhost:1883"
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// MQTTPublisher publishes to an actual MQTT broker.
type MQTTPublisher struct {
	client paho.Client
	prefix string
	logger *slog.Logger
}

// NewMQTTPublisher creates a publisher connected to the given broker.
// A retained OFFLINE message is registered as the last will.
func NewMQTTPublisher(o MQTTOptions) (*MQTTPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "gestured"
	}
	if o.TopicPrefix == "" {
		o.TopicPrefix = DefaultTopicPrefix
	}
	logger := log.Component("mqtt").With("broker", o.Broker)

	will, err := FormatSystemPayload(SystemEvent{Event: EventOffline, Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(SystemTopic(o.TopicPrefix), will, 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("connection lost", "error", err)
		}).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("connected")
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTPublisher{
		client: client,
		prefix: o.TopicPrefix,
		logger: logger,
	}, nil
}

// Publish sends a recognized gesture to the broker.
func (p *MQTTPublisher) Publish(event session.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained; gestures are only meaningful live
	token := p.client.Publish(GestureTopic(p.prefix, event.StreamID), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a lifecycle event to the broker.
func (p *MQTTPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) so shutdown notices are delivered
	token := p.client.Publish(SystemTopic(p.prefix), 1, event.Retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is connected.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
