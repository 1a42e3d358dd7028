package obstacle

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the minimum spacing between real feed calls.
const DefaultInterval = 2 * time.Second

// Classification is the result of the most recent real poll.
type Classification struct {
	Obstacles []Obstacle
	Dangerous []Obstacle
	At        time.Time
}

// Stats counts monitor activity.
type Stats struct {
	Polls    int64 `json:"polls"`
	Skipped  int64 `json:"skipped"`
	Failures int64 `json:"failures"`
}

// Monitor rate-limits access to a Feed and classifies its results.
//
// All callers share one last-call timestamp, so a poll from the pre-turn
// check also debounces the in-movement loop and the avoidance re-checks.
// Errors from the feed are logged and read as "no obstacles".
type Monitor struct {
	feed       Feed
	interval   time.Duration
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	last   time.Time
	latest Classification

	polls    atomic.Int64
	skipped  atomic.Int64
	failures atomic.Int64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the minimum time between feed calls.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithThresholds sets the danger classification constants.
func WithThresholds(t Thresholds) Option {
	return func(m *Monitor) { m.thresholds = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock overrides time.Now. Tests use it to step through the debounce
// window.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a monitor over feed.
func NewMonitor(feed Feed, opts ...Option) *Monitor {
	m := &Monitor{
		feed:       feed,
		interval:   DefaultInterval,
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "obstacle.Monitor")
	return m
}

// Thresholds returns the classification constants in use.
func (m *Monitor) Thresholds() Thresholds { return m.thresholds }

// Poll returns the obstacles currently observed. When called within the
// debounce interval of the previous real call it returns nil without
// touching the feed. It never fails.
func (m *Monitor) Poll(ctx context.Context) []Obstacle {
	m.mu.Lock()
	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < m.interval {
		m.mu.Unlock()
		m.skipped.Add(1)
		return nil
	}
	m.last = now
	m.mu.Unlock()

	return m.fetch(ctx)
}

// PollFresh waits out the remainder of the debounce window and then polls.
// Avoidance re-checks use it so a debounced empty answer is never mistaken
// for a clear path. Returns nil if ctx ends first.
func (m *Monitor) PollFresh(ctx context.Context) []Obstacle {
	m.mu.Lock()
	var wait time.Duration
	if !m.last.IsZero() {
		wait = m.interval - m.now().Sub(m.last)
	}
	m.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}

	m.mu.Lock()
	m.last = m.now()
	m.mu.Unlock()
	return m.fetch(ctx)
}

func (m *Monitor) fetch(ctx context.Context) (obs []Obstacle) {
	m.polls.Add(1)
	defer func() {
		if r := recover(); r != nil {
			m.failures.Add(1)
			m.logger.Warn("obstacle feed panicked, assuming clear", "panic", r)
			obs = nil
		}
	}()

	obs, err := m.feed.Obstacles(ctx)
	if err != nil {
		m.failures.Add(1)
		m.logger.Warn("obstacle check failed, assuming clear", "error", err)
		return nil
	}

	c := Classification{
		Obstacles: obs,
		Dangerous: m.thresholds.FilterDangerous(obs),
		At:        m.now(),
	}
	m.mu.Lock()
	m.latest = c
	m.mu.Unlock()

	if len(obs) > 0 {
		m.logger.Debug("obstacles detected", "count", len(obs), "types", Types(obs), "dangerous", len(c.Dangerous))
	}
	return obs
}

// Latest returns the classification from the most recent real poll.
func (m *Monitor) Latest() Classification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Stats returns poll counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Polls:    m.polls.Load(),
		Skipped:  m.skipped.Load(),
		Failures: m.failures.Load(),
	}
}
