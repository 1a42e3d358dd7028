package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kibo-rover/go-kibo/pkg/navigation"
)

var closed = make(chan struct{})

func init() { close(closed) }

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{}          { return closed }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]mqtt.MessageHandler
	token    *fakeToken
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler), token: &fakeToken{}}
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return b.token
}

func (b *fakeBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = cb
	return b.token
}

func (b *fakeBroker) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.messages {
		out = append(out, m.topic)
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type fakeController struct {
	mu      sync.Mutex
	reasons []string
	voice   []string
}

func (c *fakeController) Stop(_ context.Context, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
	return true
}

func (c *fakeController) HandleVoiceCommand(_ context.Context, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voice = append(c.voice, text)
	return true
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnectRequiresBroker(t *testing.T) {
	if _, err := Connect(Config{}, nil, quietLogger()); err == nil {
		t.Error("Connect without broker should fail")
	}
}

func TestPublishTopics(t *testing.T) {
	b := newFakeBroker()
	p := newPublisher(Config{Prefix: "kibo", RoverID: "r1"}, b, nil, quietLogger())

	p.publish(navigation.Event{Type: navigation.EventStarted, RunID: "run"})
	p.publish(navigation.Event{Type: navigation.EventStatus, Message: "Navigation active - say STOP to halt"})

	want := []string{
		"kibo/r1/events/navigation/start",
		"kibo/r1/events/status",
		"kibo/r1/status",
	}
	got := b.topics()
	if len(got) != len(want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topic[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if !b.messages[2].retained {
		t.Error("status topic should be retained")
	}
}

func TestPublishFailuresCounted(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"timeout", &fakeToken{timeout: true}},
		{"error", &fakeToken{err: errors.New("broker gone")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBroker()
			b.token = tt.token
			p := newPublisher(Config{}, b, nil, quietLogger())
			p.publish(navigation.Event{Type: navigation.EventLog})
			if p.Failed() != 1 {
				t.Errorf("Failed() = %d, want 1", p.Failed())
			}
		})
	}
}

func TestOnEventDropsWhenFull(t *testing.T) {
	p := newPublisher(Config{QueueSize: 1}, newFakeBroker(), nil, quietLogger())
	p.OnEvent(navigation.Event{Type: navigation.EventLog})
	p.OnEvent(navigation.Event{Type: navigation.EventLog})
	if p.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", p.Dropped())
	}
}

func TestRunDrainsQueue(t *testing.T) {
	b := newFakeBroker()
	p := newPublisher(Config{}, b, nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.OnEvent(navigation.Event{Type: navigation.EventStep})
	deadline := time.Now().Add(time.Second)
	for len(b.topics()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if len(b.topics()) != 1 {
		t.Errorf("published %d messages, want 1", len(b.topics()))
	}
}

func TestRemoteCommands(t *testing.T) {
	b := newFakeBroker()
	ctrl := &fakeController{}
	p := newPublisher(Config{Prefix: "kibo", RoverID: "r1"}, b, ctrl, quietLogger())
	p.subscribe()

	stop, ok := b.handlers["kibo/r1/cmd/stop"]
	if !ok {
		t.Fatal("stop topic not subscribed")
	}
	stop(nil, &fakeMessage{topic: "kibo/r1/cmd/stop"})
	stop(nil, &fakeMessage{topic: "kibo/r1/cmd/stop", payload: []byte("operator")})

	voice := b.handlers["kibo/r1/cmd/voice"]
	voice(nil, &fakeMessage{payload: []byte("  ")})
	voice(nil, &fakeMessage{payload: []byte("stop")})

	if len(ctrl.reasons) != 2 || ctrl.reasons[0] != "remote stop" || ctrl.reasons[1] != "operator" {
		t.Errorf("stop reasons = %v", ctrl.reasons)
	}
	if len(ctrl.voice) != 1 || ctrl.voice[0] != "stop" {
		t.Errorf("voice commands = %v", ctrl.voice)
	}
}
