// Package emitter publishes confirmations to an MQTT broker so downstream
// systems (gates, dashboards) can react without polling the HTTP API.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"anpr-watch/internal/domain/anpr"
)

var ErrNotConnected = errors.New("mqtt not connected")

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTEmitter publishes each confirmation to "<topic>/<mode>".
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	log    zerolog.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

func NewMQTTEmitter(cfg Config, log zerolog.Logger) *MQTTEmitter {
	if cfg.Topic == "" {
		cfg.Topic = "anpr/confirmations"
	}
	return &MQTTEmitter{
		cfg: cfg,
		log: log.With().Str("component", "mqtt").Logger(),
	}
}

// Connect dials the broker once. After a successful connect, lost
// connections are re-established automatically; a failed first connect
// leaves no client running.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.log.Info().Str("broker", e.cfg.Broker).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn().Err(err).Str("broker", e.cfg.Broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	opts.SetConnectTimeout(timeout)

	e.client = mqtt.NewClient(opts)
	token := e.client.Connect()

	if !token.WaitTimeout(timeout) {
		e.abort()
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		e.abort()
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) abort() {
	e.client.Disconnect(0)
	e.setConnected(false)
}

// Record publishes a confirmation.
func (e *MQTTEmitter) Record(_ context.Context, c anpr.Confirmation) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(c)
	if err != nil {
		e.countError()
		return fmt.Errorf("marshal confirmation: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.Topic, c.Mode)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	e.log.Debug().Str("topic", topic).Str("plate", c.Plate).Int("size", len(payload)).Msg("confirmation published")
	return nil
}

func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.log.Info().Msg("mqtt disconnected")
	}
	e.setConnected(false)
}

func (e *MQTTEmitter) Name() string { return "mqtt" }

func (e *MQTTEmitter) Stats() anpr.DeliveryStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return anpr.DeliveryStats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
