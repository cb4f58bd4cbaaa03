package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned by MQTT.Publish while the broker is
// unreachable.
var ErrNotConnected = errors.New("sink: mqtt not connected")

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker         string        // host:port or a full URL such as tcp://host:1883
	ClientID       string        // defaults to "spectrad"
	Topic          string        // topic prefix, defaults to "spectra"
	QoS            byte          // 0, 1 or 2
	Retain         bool          // retain the last message per topic
	ConnectTimeout time.Duration // defaults to 5s
	PublishTimeout time.Duration // defaults to 2s
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.ClientID == "" {
		c.ClientID = "spectrad"
	}

	if c.Topic == "" {
		c.Topic = "spectra"
	}

	c.Topic = strings.TrimSuffix(c.Topic, "/")

	if c.QoS > 2 {
		c.QoS = 2
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}

	return c
}

// MQTTStats counts publications.
type MQTTStats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// MQTT publishes messages as JSON under <topic>/<event>, where the event
// name's colons become topic levels ("worker:result" → "spectra/worker/result").
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// NewMQTT prepares a publisher. Connect must be called before Publish.
func NewMQTT(cfg MQTTConfig, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MQTT{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		published: make(map[string]uint64),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(m.cfg.Broker))
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		m.setConnected(true)
		m.logger.Info("mqtt connection established", "broker", m.cfg.Broker, "client_id", m.cfg.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.setConnected(false)
		m.logger.Warn("mqtt connection lost, will auto-reconnect", "broker", m.cfg.Broker, "error", err)
	})

	m.client = mqtt.NewClient(opts)

	return m
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}

	return "tcp://" + broker
}

// Connect dials the broker and waits up to ConnectTimeout.
func (m *MQTT) Connect(ctx context.Context) error {
	m.logger.Info("connecting to mqtt broker", "broker", m.cfg.Broker)

	token := m.client.Connect()

	if err := waitToken(ctx, token, m.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("sink: mqtt connect %s: %w", m.cfg.Broker, err)
	}

	m.setConnected(true)

	return nil
}

// Topic returns the topic an event is published under.
func (m *MQTT) Topic(event string) string {
	return m.cfg.Topic + "/" + strings.ReplaceAll(event, ":", "/")
}

// Publish implements Sink.
func (m *MQTT) Publish(ctx context.Context, msg Message) error {
	if !m.isConnected() {
		m.countError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		m.countError()
		return fmt.Errorf("sink: encode %s: %w", msg.Type, err)
	}

	topic := m.Topic(msg.Type)

	token := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retain, payload)
	if err := waitToken(ctx, token, m.cfg.PublishTimeout); err != nil {
		m.countError()
		return fmt.Errorf("sink: mqtt publish %s: %w", topic, err)
	}

	m.mu.Lock()
	m.published[topic]++
	m.mu.Unlock()

	m.logger.Debug("mqtt message published", "topic", topic, "qos", m.cfg.QoS, "size", len(payload))

	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects with a short grace period.
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
		m.logger.Info("mqtt disconnected")
	}

	m.setConnected(false)

	return nil
}

// Stats returns a snapshot of the publication counters.
func (m *MQTT) Stats() MQTTStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	published := make(map[string]uint64, len(m.published))
	for k, v := range m.published {
		published[k] = v
	}

	return MQTTStats{Connected: m.connected, Published: published, Errors: m.errors}
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MQTT) isConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.connected
}

func (m *MQTT) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}
