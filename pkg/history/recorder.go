// Package history records navigation runs and their running log in Postgres.
package history

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kibo-rover/go-kibo/pkg/navigation"
)

// Recorder is a navigation.Listener that persists runs. Events are queued
// and written by Run; OnEvent never blocks.
type Recorder struct {
	store  Store
	logger *slog.Logger

	queue         chan navigation.Event
	flushInterval time.Duration
	dropped       atomic.Uint64

	runs    map[string]*Run
	pending []RunEvent
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:         store,
		logger:        logger.With("component", "history"),
		queue:         make(chan navigation.Event, 1024),
		flushInterval: time.Second,
		runs:          make(map[string]*Run),
	}
}

// OnEvent queues e.
func (r *Recorder) OnEvent(e navigation.Event) {
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run writes queued events until ctx is done, then flushes what it has.
func (r *Recorder) Run(ctx context.Context) {
	t := time.NewTicker(r.flushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			r.flush(context.WithoutCancel(ctx))
			return
		case e := <-r.queue:
			r.record(ctx, e)
		case <-t.C:
			r.flush(ctx)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.queue:
			r.record(context.Background(), e)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, e navigation.Event) {
	switch e.Type {
	case navigation.EventStarted:
		run := &Run{ID: e.RunID, StartedAt: e.Time, TotalSteps: e.Total}
		r.runs[e.RunID] = run
		if err := r.store.CreateRun(ctx, run); err != nil {
			r.logger.Warn("create run", "run", e.RunID, "error", err)
		}
	case navigation.EventObstacle:
		if run := r.runs[e.RunID]; run != nil {
			run.Obstacles++
		}
	case navigation.EventAvoidance:
		if run := r.runs[e.RunID]; run != nil {
			run.Avoidances++
		}
	case navigation.EventEnded:
		r.flush(ctx)
		run := r.runs[e.RunID]
		if run == nil {
			return
		}
		delete(r.runs, e.RunID)
		ended := e.Time
		run.EndedAt = &ended
		run.StepsDone = e.Step
		run.Completed = e.Completed
		run.Reason = e.Reason
		if err := r.store.UpdateRun(ctx, run); err != nil {
			r.logger.Warn("update run", "run", e.RunID, "error", err)
		}
		return
	}

	if e.Message == "" || e.RunID == "" {
		return
	}
	r.pending = append(r.pending, RunEvent{
		RunID:   e.RunID,
		At:      e.Time,
		Type:    string(e.Type),
		Level:   e.Level,
		Step:    e.Step,
		Message: e.Message,
	})
}

func (r *Recorder) flush(ctx context.Context) {
	if len(r.pending) == 0 {
		return
	}
	if err := r.store.AppendEvents(ctx, r.pending); err != nil {
		r.logger.Warn("append events", "count", len(r.pending), "error", err)
	}
	r.pending = nil
}
