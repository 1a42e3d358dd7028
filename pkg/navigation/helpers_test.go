package navigation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kibo-rover/go-kibo/internal/log"
	"github.com/kibo-rover/go-kibo/pkg/announce"
	"github.com/kibo-rover/go-kibo/pkg/avoidance"
	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.MinMove = time.Millisecond
	cfg.MaxMove = 20 * time.Millisecond
	cfg.MoveGain = 20 * time.Millisecond
	cfg.TurnDuration = time.Millisecond
	cfg.TurnSettle = 0
	cfg.StepPause = time.Millisecond
	cfg.FinalPause = 0
	cfg.SamplePeriod = 5 * time.Millisecond
	cfg.MinSamplePeriod = time.Millisecond
	cfg.ProgressCooldown = 0
	cfg.ProgressUnlock = time.Hour
	cfg.Avoidance = avoidance.Config{
		WaitAttempts:     3,
		WaitDelay:        time.Millisecond,
		DetourTurn:       time.Millisecond,
		DetourForward:    time.Millisecond,
		Reverse:          time.Millisecond,
		MaxRetryAttempts: 3,
	}
	return cfg
}

// fakeMonitor replays Poll results; the last one repeats. PollFresh returns
// fresh, or the Poll script when fresh is nil.
type fakeMonitor struct {
	mu    sync.Mutex
	polls [][]obstacle.Obstacle
	fresh []obstacle.Obstacle
	n     int
}

func (m *fakeMonitor) Poll(context.Context) []obstacle.Obstacle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.polls) == 0 {
		return nil
	}
	i := m.n
	if i >= len(m.polls) {
		i = len(m.polls) - 1
	}
	m.n++
	return m.polls[i]
}

func (m *fakeMonitor) PollFresh(ctx context.Context) []obstacle.Obstacle {
	m.mu.Lock()
	fresh := m.fresh
	m.mu.Unlock()
	if fresh != nil {
		return fresh
	}
	return m.Poll(ctx)
}

func (m *fakeMonitor) Thresholds() obstacle.Thresholds { return obstacle.DefaultThresholds() }

// recorder collects events and a shared trace of speech and motor calls.
type recorder struct {
	mu     sync.Mutex
	events []Event
	trace  []string
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) note(s string) {
	r.mu.Lock()
	r.trace = append(r.trace, s)
	r.mu.Unlock()
}

func (r *recorder) Speak(_ context.Context, text string) error {
	r.note("say:" + text)
	return nil
}

func (r *recorder) of(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) traced() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.trace...)
}

func (r *recorder) spoken() []string {
	var out []string
	for _, s := range r.traced() {
		if len(s) > 4 && s[:4] == "say:" {
			out = append(out, s[4:])
		}
	}
	return out
}

type fixture struct {
	c     *Coordinator
	motor *motor.Mock
	mon   *fakeMonitor
	rec   *recorder
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{motor: motor.NewMock(), mon: &fakeMonitor{}, rec: &recorder{}}
	f.motor.OnCall = func(c motor.Call) { f.rec.note(fmt.Sprintf("motor:%s", c.Command)) }
	f.c = New(cfg, Collaborators{
		Motor:    f.motor,
		Monitor:  f.mon,
		Speaker:  announce.Speaker(f.rec),
		Listener: f.rec,
		Logger:   log.Discard(),
	})
	t.Cleanup(func() { f.c.Stop(context.Background(), "cleanup") })
	return f
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.c.Wait(ctx); err != nil {
		t.Fatalf("route did not finish: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
