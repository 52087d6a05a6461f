package mqtt

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

	"smartclim/internal/config"
	"smartclim/internal/sensorstate"
)

var (
	ErrStopped      = errors.New("publisher stopped")
	ErrNotConnected = errors.New("mqtt client not connected")
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	publishTimeout = 5 * time.Second
)

// Publisher sends sensor updates to a broker. Topics are
// <prefix>/<device_id>/state and <prefix>/<device_id>/availability, plus the
// bridge status topic <prefix>/status guarded by a last will.
type Publisher struct {
	client mqtt.Client
	cfg    config.MQTT
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
	available map[string]bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(cfg config.MQTT, logger *slog.Logger) *Publisher {
	p := newPublisher(nil, cfg, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWill(StatusTopic(cfg.TopicPrefix), payloadOffline, cfg.QoS, true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker)
		c.Publish(StatusTopic(cfg.TopicPrefix), cfg.QoS, true, payloadOnline)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

func newPublisher(client mqtt.Client, cfg config.MQTT, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    client,
		cfg:       cfg,
		logger:    logger,
		available: map[string]bool{},
		stopCh:    make(chan struct{}),
	}
}

func StatusTopic(prefix string) string {
	return topicJoin(prefix, "status")
}

func StateTopic(prefix, deviceID string) string {
	return topicJoin(prefix, deviceID, "state")
}

func AvailabilityTopic(prefix, deviceID string) string {
	return topicJoin(prefix, deviceID, "availability")
}

func topicJoin(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/ "); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// Connect waits for the initial connection, honouring ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			p.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return ErrStopped
		default:
		}
	}
}

// PublishUpdate sends the update for one device. The first update per device
// also marks it available.
func (p *Publisher) PublishUpdate(deviceID string, u sensorstate.SensorUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	topic := StateTopic(p.cfg.TopicPrefix, deviceID)
	if err := p.publish(topic, p.cfg.Retain, data); err != nil {
		return err
	}
	p.logger.Debug("published update", "topic", topic, "values", len(u.Values))

	p.mu.Lock()
	first := !p.available[deviceID]
	p.available[deviceID] = true
	p.mu.Unlock()
	if first {
		return p.PublishAvailability(deviceID, true)
	}
	return nil
}

// PublishAvailability sets the retained availability of one device.
func (p *Publisher) PublishAvailability(deviceID string, online bool) error {
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}
	if !online {
		p.mu.Lock()
		delete(p.available, deviceID)
		p.mu.Unlock()
	}
	return p.publish(AvailabilityTopic(p.cfg.TopicPrefix, deviceID), true, []byte(payload))
}

func (p *Publisher) publish(topic string, retained bool, data []byte) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, p.cfg.QoS, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		p.logger.Error("publish failed", "topic", topic, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect marks every known device offline and closes the connection.
// Safe to call more than once.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() {
		close(p.stopCh)

		p.mu.RLock()
		ids := make([]string, 0, len(p.available))
		for id := range p.available {
			ids = append(ids, id)
		}
		p.mu.RUnlock()
		for _, id := range ids {
			_ = p.PublishAvailability(id, false)
		}
		_ = p.publish(StatusTopic(p.cfg.TopicPrefix), true, []byte(payloadOffline))

		if p.client != nil {
			p.client.Disconnect(250)
		}
		p.setConnected(false)
		p.logger.Info("mqtt disconnected")
	})
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
