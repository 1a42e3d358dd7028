// Package telemetry mirrors navigation events onto an MQTT broker and accepts
// remote stop and voice commands from it.
//
// Topics, with prefix "kibo" and rover "rover-1":
//
//	kibo/rover-1/events/<type>   every navigation event (JSON)
//	kibo/rover-1/status          latest status event, retained
//	kibo/rover-1/cmd/stop        payload is an optional reason
//	kibo/rover-1/cmd/voice       payload is the spoken text
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kibo-rover/go-kibo/pkg/navigation"
)

// Config configures the MQTT connection.
type Config struct {
	Broker   string // tcp://host:1883
	ClientID string
	Username string
	Password string
	Prefix   string
	RoverID  string
	QoS      byte

	PublishTimeout time.Duration
	QueueSize      int
}

// DefaultConfig returns defaults for everything but the broker.
func DefaultConfig() Config {
	return Config{
		ClientID:       "kibo-navigation",
		Prefix:         "kibo",
		RoverID:        "kibo",
		QoS:            1,
		PublishTimeout: 2 * time.Second,
		QueueSize:      256,
	}
}

// Controller is what remote commands act on.
type Controller interface {
	Stop(ctx context.Context, reason string) bool
	HandleVoiceCommand(ctx context.Context, text string) bool
}

// broker is the part of mqtt.Client the publisher uses.
type broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Publisher is a navigation.Listener that forwards events to MQTT.
type Publisher struct {
	cfg    Config
	client broker
	ctrl   Controller
	logger *slog.Logger

	queue   chan navigation.Event
	dropped atomic.Uint64
	failed  atomic.Uint64

	disconnect func()
}

// Connect dials the broker and returns a publisher. ctrl may be nil, in which
// case command topics are not subscribed.
func Connect(cfg Config, ctrl Controller, logger *slog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("telemetry: broker not configured")
	}
	p := newPublisher(cfg, nil, ctrl, logger)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)
	opts.SetOnConnectHandler(func(mqtt.Client) { p.subscribe() })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Error("connection lost, reconnecting", "error", err)
	})

	client := mqtt.NewClient(opts)
	p.client = client
	p.disconnect = func() {
		if client.IsConnected() {
			client.Disconnect(250)
		}
	}
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %w", cfg.Broker, token.Error())
	}
	p.logger.Info("connected", "broker", cfg.Broker)
	return p, nil
}

func newPublisher(cfg Config, client broker, ctrl Controller, logger *slog.Logger) *Publisher {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.RoverID == "" {
		cfg.RoverID = def.RoverID
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		client:     client,
		ctrl:       ctrl,
		logger:     logger.With("component", "telemetry"),
		queue:      make(chan navigation.Event, cfg.QueueSize),
		disconnect: func() {},
	}
}

// Topic returns the full topic for suffix.
func (p *Publisher) Topic(suffix string) string {
	return p.cfg.Prefix + "/" + p.cfg.RoverID + "/" + suffix
}

func eventTopic(t navigation.EventType) string {
	return "events/" + strings.ReplaceAll(string(t), ":", "/")
}

// OnEvent queues e for publishing. It never blocks; events are dropped when
// the queue is full.
func (p *Publisher) OnEvent(e navigation.Event) {
	select {
	case p.queue <- e:
	default:
		p.dropped.Add(1)
	}
}

// Run publishes queued events until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.queue:
			p.publish(e)
		}
	}
}

func (p *Publisher) publish(e navigation.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("marshal event", "type", e.Type, "error", err)
		return
	}
	p.send(p.Topic(eventTopic(e.Type)), false, payload)
	if e.Type == navigation.EventStatus {
		p.send(p.Topic("status"), true, payload)
	}
}

func (p *Publisher) send(topic string, retained bool, payload []byte) {
	token := p.client.Publish(topic, p.cfg.QoS, retained, payload)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		p.failed.Add(1)
		p.logger.Warn("publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.failed.Add(1)
		p.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

func (p *Publisher) subscribe() {
	if p.ctrl == nil {
		return
	}
	p.sub(p.Topic("cmd/stop"), p.handleStop)
	p.sub(p.Topic("cmd/voice"), p.handleVoice)
}

func (p *Publisher) sub(topic string, handler mqtt.MessageHandler) {
	if token := p.client.Subscribe(topic, p.cfg.QoS, handler); token.Wait() && token.Error() != nil {
		p.logger.Error("subscribe failed", "topic", topic, "error", token.Error())
		return
	}
	p.logger.Info("subscribed", "topic", topic)
}

func (p *Publisher) handleStop(_ mqtt.Client, msg mqtt.Message) {
	reason := strings.TrimSpace(string(msg.Payload()))
	if reason == "" {
		reason = "remote stop"
	}
	stopped := p.ctrl.Stop(context.Background(), reason)
	p.logger.Info("remote stop", "reason", reason, "stopped", stopped)
}

func (p *Publisher) handleVoice(_ mqtt.Client, msg mqtt.Message) {
	text := strings.TrimSpace(string(msg.Payload()))
	if text == "" {
		return
	}
	accepted := p.ctrl.HandleVoiceCommand(context.Background(), text)
	p.logger.Info("remote voice command", "text", text, "accepted", accepted)
}

// Dropped returns the number of events dropped because the queue was full.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Failed returns the number of publishes that timed out or errored.
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.disconnect()
}
