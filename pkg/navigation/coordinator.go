// Package navigation drives a route one step at a time: announce, move while
// watching for obstacles, avoid when needed, advance.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kibo-rover/go-kibo/pkg/announce"
	"github.com/kibo-rover/go-kibo/pkg/avoidance"
	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
	"github.com/kibo-rover/go-kibo/pkg/pose"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

// Errors returned by the coordinator.
var (
	ErrActive    = errors.New("navigation: a route is already active")
	ErrNotActive = errors.New("navigation: no active route")
)

// Status messages shown to the user.
const (
	StatusReady        = "Ready - where would you like to go next?"
	StatusActive       = "Navigation active - say STOP to halt"
	StatusAssistance   = "Navigation paused - manual assistance needed"
	StatusStopped      = "Navigation stopped"
	statusHaltedPrefix = "Navigation halted: "
)

// Monitor is the obstacle source sampled during moves.
type Monitor interface {
	Poll(ctx context.Context) []obstacle.Obstacle
	PollFresh(ctx context.Context) []obstacle.Obstacle
	Thresholds() obstacle.Thresholds
}

// Collaborators are the coordinator's optional dependencies. Nil fields get
// no-op defaults.
type Collaborators struct {
	Motor    motor.Driver
	Monitor  Monitor
	Speaker  announce.Speaker
	Listener Listener
	Pose     *pose.Simulator
	Logger   *slog.Logger
	Now      func() time.Time
}

// State is a point-in-time copy of the navigation state.
type State struct {
	RunID          string      `json:"run_id,omitempty"`
	Active         bool        `json:"active"`
	StepIndex      int         `json:"step_index"`
	TotalSteps     int         `json:"total_steps"`
	StepLocked     bool        `json:"step_locked"`
	InProgress     bool        `json:"in_progress"`
	StopOnlyMode   bool        `json:"stop_only_mode"`
	Phase          Phase       `json:"phase"`
	Progress       float64     `json:"progress"`
	Status         string      `json:"status"`
	StartedAt      time.Time   `json:"started_at,omitempty"`
	LastCompletion time.Time   `json:"last_completion,omitempty"`
	Pose           pose.Pose   `json:"pose"`
	Current        *route.Step `json:"current,omitempty"`
}

// Coordinator owns the navigation state and runs at most one route at a time.
type Coordinator struct {
	motor    motor.Driver
	monitor  Monitor
	speaker  announce.Speaker
	listener Listener
	pose     *pose.Simulator
	logger   *slog.Logger
	now      func() time.Time
	phase    *phaseMachine

	mu             sync.Mutex
	cfg            Config
	run            *run
	index          int
	active         bool
	stepLocked     bool
	inProgress     bool
	stopOnlyMode   bool
	startedAt      time.Time
	lastCompletion time.Time
	status         string
}

// run is one StartRoute invocation.
type run struct {
	c          *Coordinator
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	steps      []route.Step
	total      float64
	cfg        Config
	voice      *announce.Announcer
	strategist *avoidance.Strategist
	done       chan struct{}
	endOnce    sync.Once
}

// New creates a coordinator.
func New(cfg Config, deps Collaborators) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Motor == nil {
		deps.Motor = nopDriver{}
	}
	if deps.Monitor == nil {
		deps.Monitor = obstacle.NewMonitor(obstacle.FeedFunc(func(context.Context) ([]obstacle.Obstacle, error) {
			return nil, nil
		}), obstacle.WithLogger(deps.Logger))
	}
	if deps.Speaker == nil {
		deps.Speaker = announce.SpeakerFunc(func(context.Context, string) error { return nil })
	}
	if deps.Listener == nil {
		deps.Listener = nopListener{}
	}
	if deps.Pose == nil {
		deps.Pose = pose.NewSimulator()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	c := &Coordinator{
		motor:    deps.Motor,
		monitor:  deps.Monitor,
		speaker:  deps.Speaker,
		listener: deps.Listener,
		pose:     deps.Pose,
		logger:   deps.Logger.With("component", "navigation.Coordinator"),
		now:      deps.Now,
		cfg:      cfg,
		status:   StatusReady,
	}
	c.phase = newPhaseMachine(c.phaseChanged)
	return c
}

// Reconfigure replaces the configuration used by the next route.
func (c *Coordinator) Reconfigure(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Config returns the configuration for the next route.
func (c *Coordinator) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// StartRoute resets the navigation state and begins step 0 in the
// background. ctx only carries values; the route runs until it completes,
// halts or Stop is called. An empty route completes immediately.
func (c *Coordinator) StartRoute(ctx context.Context, steps []route.Step) (string, error) {
	if err := route.Validate(steps); err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return "", ErrActive
	}
	cfg := c.cfg
	r := &run{
		c:     c,
		id:    uuid.NewString(),
		steps: append([]route.Step(nil), steps...),
		total: route.TotalDistance(steps),
		cfg:   cfg,
		done:  make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.voice = announce.NewAnnouncer(c.speaker, cfg.AnnouncePerChar, cfg.AnnounceMargin, c.logger)
	r.strategist = avoidance.NewStrategist(c.motor, c.monitor, r.voice, gate{r}, cfg.Avoidance, c.logger)
	r.strategist.OnAttempt = func(a avoidance.Attempt) {
		r.emit(Event{Type: EventAvoidance, Attempt: &a, Message: a.String()})
	}
	r.strategist.OnMove = r.avoidanceMove

	c.run = r
	c.index = 0
	c.active = true
	c.stepLocked = false
	c.inProgress = false
	c.stopOnlyMode = false
	c.startedAt = c.now()
	c.lastCompletion = time.Time{}
	c.status = StatusActive
	c.mu.Unlock()

	if c.phase.can(evReset) {
		_ = c.phase.fire(r.ctx, evReset)
	}
	c.pose.Init(startCoordinate(steps, cfg, c.pose))

	r.emit(Event{Type: EventStarted, Message: fmt.Sprintf("Navigation started with %d steps", len(steps))})
	r.logf(slog.LevelInfo, "Starting navigation: %d steps, %.0f m", len(steps), r.total)

	go r.loop()
	if cfg.ProgressInterval > 0 {
		go r.watchProgress()
	}
	return r.id, nil
}

func startCoordinate(steps []route.Step, cfg Config, sim *pose.Simulator) route.Coordinate {
	if len(steps) > 0 && steps[0].Start != nil && steps[0].Start.Valid() {
		return *steps[0].Start
	}
	if cfg.Start != nil && cfg.Start.Valid() {
		return *cfg.Start
	}
	return sim.Current().Position
}

// Stop halts the active route: cancels it, stops the motor and emits the end
// signal. It reports whether a route was active.
func (c *Coordinator) Stop(ctx context.Context, reason string) bool {
	c.mu.Lock()
	r := c.run
	if r == nil || !c.active {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	r.cancel()
	if err := c.motor.Stop(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("stop motor failed", "error", err)
	}
	if reason == "" {
		reason = "stopped"
	}
	r.finish(false, reason, StatusStopped)
	return true
}

// Wait blocks until the current route's goroutine has exited or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pose returns the simulated pose.
func (c *Coordinator) Pose() pose.Pose { return c.pose.Current() }

// Progress returns the completed fraction of the current route in [0,1],
// weighted by step distance.
func (c *Coordinator) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

func (c *Coordinator) progressLocked() float64 {
	r := c.run
	if r == nil {
		return 0
	}
	n := len(r.steps)
	if c.index >= n {
		return 1
	}
	if r.total <= 0 {
		return float64(c.index) / float64(n)
	}
	var done float64
	for _, s := range r.steps[:c.index] {
		done += s.DistanceMeters
	}
	return done / r.total
}

// State returns a snapshot of the navigation state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Active:         c.active,
		StepIndex:      c.index,
		StepLocked:     c.stepLocked,
		InProgress:     c.inProgress,
		StopOnlyMode:   c.stopOnlyMode,
		Phase:          c.phase.current(),
		Progress:       c.progressLocked(),
		Status:         c.status,
		StartedAt:      c.startedAt,
		LastCompletion: c.lastCompletion,
		Pose:           c.pose.Current(),
	}
	if r := c.run; r != nil {
		st.RunID = r.id
		st.TotalSteps = len(r.steps)
		if c.index < len(r.steps) {
			step := r.steps[c.index]
			st.Current = &step
		}
	}
	return st
}

// AcceptsVoiceCommand reports whether a voice command is honored right now.
// In stop-only mode only commands containing "stop" are.
func (c *Coordinator) AcceptsVoiceCommand(text string) bool {
	c.mu.Lock()
	stopOnly := c.stopOnlyMode
	c.mu.Unlock()
	if !stopOnly {
		return true
	}
	return isStop(text)
}

// HandleVoiceCommand applies a voice command. "stop" halts the route; other
// commands are only acknowledged. It reports whether the command was accepted.
func (c *Coordinator) HandleVoiceCommand(ctx context.Context, text string) bool {
	if !c.AcceptsVoiceCommand(text) {
		c.logger.Info("voice command ignored in stop-only mode", "command", text)
		return false
	}
	if isStop(text) {
		c.Stop(ctx, "voice stop")
	}
	return true
}

func isStop(text string) bool {
	return strings.Contains(strings.ToLower(text), "stop")
}

// CheckProgress completes the current step when the simulated pose is within
// CompletionRadius of the step's end coordinate. It reports whether the step
// was advanced.
func (c *Coordinator) CheckProgress() bool {
	c.mu.Lock()
	r := c.run
	if r == nil || !c.active || c.stepLocked || c.index >= len(r.steps) {
		c.mu.Unlock()
		return false
	}
	if !c.lastCompletion.IsZero() && c.now().Sub(c.lastCompletion) < r.cfg.ProgressCooldown {
		c.mu.Unlock()
		return false
	}
	idx := c.index
	end := r.steps[idx].End
	c.mu.Unlock()

	if end == nil || !end.Valid() {
		return false
	}
	dist := c.pose.Current().Position.DistanceTo(*end)
	if dist >= r.cfg.CompletionRadius {
		return false
	}
	r.logf(slog.LevelInfo, "Reached end of step %d (%.1f m away)", idx+1, dist)
	return r.completeStep(idx, r.cfg.ProgressUnlock)
}

// manualAssistance leaves the moving state after avoidance gives up.
func (c *Coordinator) manualAssistance(r *run) {
	c.mu.Lock()
	if c.run == r {
		c.inProgress = false
		c.stopOnlyMode = false
		c.status = StatusAssistance
	}
	c.mu.Unlock()
	r.emit(Event{Type: EventStatus, Message: StatusAssistance})
}

type gate struct{ r *run }

func (g gate) ManualAssistanceNeeded(context.Context) { g.r.c.manualAssistance(g.r) }

func (c *Coordinator) phaseChanged(from, to Phase) {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return
	}
	r.emit(Event{Type: EventPhase, Phase: to, Message: fmt.Sprintf("%s -> %s", from, to)})
}

func (c *Coordinator) fire(ctx context.Context, event string) {
	if err := c.phase.fire(ctx, event); err != nil {
		c.logger.Debug("phase transition rejected", "event", event, "phase", c.phase.current(), "error", err)
	}
}

// fire moves the phase machine for r. An abandoned run leaves the shared
// machine alone.
func (r *run) fire(event string) {
	if !r.current() {
		return
	}
	r.c.fire(r.ctx, event)
}

// emit stamps and delivers an event. Never called with c.mu held.
func (r *run) emit(e Event) {
	e.RunID = r.id
	e.Time = r.c.now()
	if e.Total == 0 {
		e.Total = len(r.steps)
	}
	r.c.listener.OnEvent(e)
}

// logf writes a running-log line to the logger and to listeners.
func (r *run) logf(level slog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.c.logger.Log(r.ctx, level, msg, "run", r.id)
	r.emit(Event{Type: EventLog, Level: strings.ToLower(level.String()), Message: msg})
}

func (r *run) current() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.run == r && r.c.active && r.ctx.Err() == nil
}

func (r *run) index() int {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.index
}

// loop runs steps until the route completes or halts.
func (r *run) loop() {
	defer close(r.done)
	defer r.cancel()

	for {
		if !r.current() {
			return
		}
		idx := r.index()
		if idx >= len(r.steps) {
			r.complete()
			return
		}

		r.fire(evAnnounce)
		if !r.runStep(idx) {
			if r.ctx.Err() != nil {
				// Stop already finished the run.
				return
			}
			r.logf(slog.LevelError, "Step %d failed, navigation halted", idx+1)
			r.finish(false, fmt.Sprintf("step %d failed", idx+1), "")
			return
		}

		r.fire(evAdvance)
		r.finishStep(idx)

		if err := sleep(r.ctx, r.cfg.StepPause); err != nil {
			return
		}
	}
}

// runStep executes one step. Panics are converted into a failed step.
func (r *run) runStep(idx int) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.c.logger.Error("navigation step panicked", "step", idx, "panic", p)
			ok = false
		}
	}()

	step := r.steps[idx]
	cmd := DeriveCommand(step)
	dur := ComputeDuration(step.DistanceMeters, r.cfg)

	r.emit(Event{Type: EventStep, Step: idx, Command: cmd, Duration: dur, Message: step.Instruction})
	r.logf(slog.LevelInfo, "Step %d/%d: %s (%.0f m)", idx+1, len(r.steps), step.Instruction, step.DistanceMeters)

	return r.executeMovement(cmd, dur, step)
}

// completeStep advances past idx on a progress check. It is a no-op unless
// idx is still the current step and no other completion is in flight, so
// concurrent signals advance at most once. unlockAfter keeps stepLocked set
// for that long.
func (r *run) completeStep(idx int, unlockAfter time.Duration) bool {
	return r.advance(idx, unlockAfter, true)
}

// finishStep advances past idx once its movement has returned. The progress
// lock only gates CheckProgress: if a check already advanced past idx the
// index no longer matches and this is a no-op.
func (r *run) finishStep(idx int) bool {
	return r.advance(idx, 0, false)
}

func (r *run) advance(idx int, unlockAfter time.Duration, honorLock bool) bool {
	c := r.c
	c.mu.Lock()
	if c.run != r || !c.active || c.index != idx || (honorLock && c.stepLocked) {
		c.mu.Unlock()
		return false
	}
	held := c.stepLocked
	c.stepLocked = true
	c.index++
	c.lastCompletion = c.now()
	progress := c.progressLocked()
	if unlockAfter <= 0 && !held {
		c.stepLocked = false
	}
	c.mu.Unlock()

	if unlockAfter > 0 {
		time.AfterFunc(unlockAfter, func() {
			c.mu.Lock()
			if c.run == r {
				c.stepLocked = false
			}
			c.mu.Unlock()
		})
	}

	r.emit(Event{Type: EventStep, Step: idx + 1, Progress: progress, Message: fmt.Sprintf("Completed step %d", idx+1)})
	return true
}

// complete is the terminal transition for a finished route.
func (r *run) complete() {
	r.fire(evComplete)
	r.finish(true, "arrived", StatusReady)
	if err := sleep(r.ctx, r.cfg.FinalPause); err != nil {
		return
	}
	r.voice.Announce(r.ctx, announce.ArrivalPhrase)
}

// finish resets the navigation flags and emits the end signal once.
func (r *run) finish(completed bool, reason, status string) {
	r.endOnce.Do(func() {
		c := r.c
		c.mu.Lock()
		if c.run == r {
			c.active = false
			c.inProgress = false
			c.stopOnlyMode = false
			switch {
			case status != "":
				c.status = status
			case c.status != StatusAssistance:
				c.status = statusHaltedPrefix + reason
			}
		}
		owner := c.run == r
		progress := c.progressLocked()
		status = c.status
		c.mu.Unlock()

		if !completed && owner {
			c.fire(r.ctx, evHalt)
		}
		r.emit(Event{Type: EventStatus, Message: status})
		r.emit(Event{Type: EventEnded, Completed: completed, Reason: reason, Progress: progress, Step: r.index()})
		if completed {
			r.logf(slog.LevelInfo, "Navigation complete")
		}
	})
}

// watchProgress periodically checks progress against step end coordinates.
func (r *run) watchProgress() {
	t := time.NewTicker(r.cfg.ProgressInterval)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.done:
			return
		case <-t.C:
			if !r.current() {
				return
			}
			r.c.CheckProgress()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopDriver struct{}

func (nopDriver) Forward(context.Context, time.Duration) error   { return nil }
func (nopDriver) Backward(context.Context, time.Duration) error  { return nil }
func (nopDriver) TurnLeft(context.Context, time.Duration) error  { return nil }
func (nopDriver) TurnRight(context.Context, time.Duration) error { return nil }
func (nopDriver) Stop(context.Context) error                     { return nil }
