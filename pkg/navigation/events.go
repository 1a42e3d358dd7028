package navigation

import (
	"log/slog"
	"time"

	"github.com/kibo-rover/go-kibo/pkg/avoidance"
	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
	"github.com/kibo-rover/go-kibo/pkg/pose"
)

// EventType identifies what happened.
type EventType string

// Event types.
const (
	EventStarted   EventType = "navigation:start"
	EventEnded     EventType = "navigation:end"
	EventLog       EventType = "log"
	EventPhase     EventType = "phase"
	EventStep      EventType = "step"
	EventObstacle  EventType = "obstacle"
	EventAvoidance EventType = "avoidance"
	EventPose      EventType = "pose"
	EventStatus    EventType = "status"
)

// Event is delivered to listeners. Only the fields relevant to Type are set.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id"`
	Time  time.Time `json:"time"`

	Message string `json:"message,omitempty"`
	Level   string `json:"level,omitempty"`

	Step     int           `json:"step"`
	Total    int           `json:"total"`
	Command  motor.Command `json:"command,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Progress float64       `json:"progress"`
	Phase    Phase         `json:"phase,omitempty"`
	Pose     *pose.Pose    `json:"pose,omitempty"`

	Obstacles []obstacle.Obstacle `json:"obstacles,omitempty"`
	Attempt   *avoidance.Attempt  `json:"attempt,omitempty"`

	Completed bool   `json:"completed,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Listener receives navigation events. OnEvent is called synchronously from
// the navigation goroutine and must not block; listeners that do I/O queue
// the event and return.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnEvent calls f.
func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Listeners fans an event out to several listeners. A panicking listener is
// logged and skipped.
type Listeners []Listener

// OnEvent delivers e to every listener in order.
func (ls Listeners) OnEvent(e Event) {
	for _, l := range ls {
		deliver(l, e)
	}
}

func deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Error("navigation listener panicked", "event", e.Type, "panic", r)
		}
	}()
	l.OnEvent(e)
}

type nopListener struct{}

func (nopListener) OnEvent(Event) {}
