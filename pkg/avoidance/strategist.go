package avoidance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kibo-rover/go-kibo/pkg/announce"
	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
)

// Config holds strategy timing and bounds.
type Config struct {
	WaitAttempts  int
	WaitDelay     time.Duration
	DetourTurn    time.Duration
	DetourForward time.Duration
	Reverse       time.Duration
	// Settle is the pause between detour legs.
	Settle time.Duration
	// ReverseSettle is the pause after backing up.
	ReverseSettle time.Duration
	// MaxRetryAttempts bounds detour recursion.
	MaxRetryAttempts int
}

// DefaultConfig returns the field-tested defaults.
func DefaultConfig() Config {
	return Config{
		WaitAttempts:     10,
		WaitDelay:        3 * time.Second,
		DetourTurn:       500 * time.Millisecond,
		DetourForward:    time.Second,
		Reverse:          500 * time.Millisecond,
		Settle:           500 * time.Millisecond,
		ReverseSettle:    time.Second,
		MaxRetryAttempts: 3,
	}
}

// Monitor is the obstacle source used for re-checks.
type Monitor interface {
	PollFresh(ctx context.Context) []obstacle.Obstacle
	Thresholds() obstacle.Thresholds
}

// Announcer speaks avoidance status.
type Announcer interface {
	Announce(ctx context.Context, text string) announce.Outcome
	Say(ctx context.Context, text string)
}

// Gate is told when avoidance gives up so navigation can leave its moving
// state and ask for help.
type Gate interface {
	ManualAssistanceNeeded(ctx context.Context)
}

type nopGate struct{}

func (nopGate) ManualAssistanceNeeded(context.Context) {}

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(context.Context, string) announce.Outcome { return announce.Spoken }
func (nopAnnouncer) Say(context.Context, string)                       {}

// Strategist executes avoidance strategies against a motor driver.
type Strategist struct {
	motor   motor.Driver
	monitor Monitor
	voice   Announcer
	gate    Gate
	cfg     Config
	logger  *slog.Logger

	// OnAttempt, when set, observes every finished attempt.
	OnAttempt func(Attempt)
	// OnMove, when set, observes every motor leg that completed.
	OnMove func(cmd motor.Command, d time.Duration)
}

// NewStrategist creates a strategist. voice and gate may be nil.
func NewStrategist(drv motor.Driver, mon Monitor, voice Announcer, gate Gate, cfg Config, logger *slog.Logger) *Strategist {
	if voice == nil {
		voice = nopAnnouncer{}
	}
	if gate == nil {
		gate = nopGate{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = DefaultConfig().MaxRetryAttempts
	}
	return &Strategist{
		motor:   drv,
		monitor: mon,
		voice:   voice,
		gate:    gate,
		cfg:     cfg,
		logger:  logger.With("component", "avoidance.Strategist"),
	}
}

// run tracks the attempts of one encounter.
type run struct {
	s         *Strategist
	attempts  []Attempt
	emergency bool
}

func (s *Strategist) newRun() *run { return &run{s: s} }

func (r *run) record(strategy Strategy, ok bool, depth int) bool {
	a := Attempt{Strategy: strategy, Outcome: ok, RetryDepth: depth, At: time.Now()}
	r.attempts = append(r.attempts, a)
	r.s.logger.Info("avoidance attempt", "strategy", strategy, "ok", ok, "depth", depth)
	if r.s.OnAttempt != nil {
		r.s.OnAttempt(a)
	}
	return ok
}

// Handle announces the obstacles, picks a strategy and executes it. A
// failed strategy ends in an emergency stop unless ctx was cancelled.
func (s *Strategist) Handle(ctx context.Context, obs []obstacle.Obstacle, original motor.Command) (rep Report) {
	r := s.newRun()
	rep.Obstacles = obstacle.Types(obs)

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("avoidance panicked", "panic", p)
			rep.OK = r.emergencyStop(context.WithoutCancel(ctx))
		}
		rep.Attempts = r.attempts
	}()

	s.voice.Announce(ctx, announce.Obstacles(rep.Obstacles))

	rep.Strategy = Determine(obs, s.monitor.Thresholds())
	s.logger.Info("avoiding obstacles", "strategy", rep.Strategy, "obstacles", rep.Obstacles, "command", original)

	rep.OK = r.execute(ctx, rep.Strategy)
	if !rep.OK && !r.emergency && ctx.Err() == nil {
		r.emergencyStop(ctx)
	}
	return rep
}

func (s *Strategist) moved(cmd motor.Command, d time.Duration) {
	if s.OnMove != nil {
		s.OnMove(cmd, d)
	}
}

func (r *run) execute(ctx context.Context, strategy Strategy) bool {
	switch strategy {
	case StopAndWait:
		return r.stopAndWait(ctx)
	case DetourLeft:
		return r.detour(ctx, motor.Left, 0)
	case DetourRight:
		return r.detour(ctx, motor.Right, 0)
	case ReverseAndRetry:
		return r.reverseAndRetry(ctx)
	}
	return r.emergencyStop(ctx)
}

// Execute runs a specific strategy. It is used when the caller has already
// decided, and by tests.
func (s *Strategist) Execute(ctx context.Context, strategy Strategy) (bool, []Attempt) {
	r := s.newRun()
	ok := r.execute(ctx, strategy)
	return ok, r.attempts
}

// StopAndWait halts and polls until the path ahead clears, escalating to a
// right detour when the wait budget runs out.
func (s *Strategist) StopAndWait(ctx context.Context) bool { return s.newRun().stopAndWait(ctx) }

// Detour steps around an obstacle toward dir (motor.Left or motor.Right).
func (s *Strategist) Detour(ctx context.Context, dir motor.Command) bool {
	return s.newRun().detour(ctx, dir, 0)
}

// ReverseAndRetry backs up and re-checks, detouring right if still blocked.
func (s *Strategist) ReverseAndRetry(ctx context.Context) bool { return s.newRun().reverseAndRetry(ctx) }

// EmergencyStop halts, asks for help and always returns false.
func (s *Strategist) EmergencyStop(ctx context.Context) bool { return s.newRun().emergencyStop(ctx) }

func (r *run) stopAndWait(ctx context.Context) bool {
	s := r.s
	if err := s.motor.Stop(ctx); err != nil {
		s.logger.Warn("stop failed", "error", err)
	}
	s.voice.Say(ctx, announce.WaitPhrase)

	th := s.monitor.Thresholds()
	for attempt := 0; attempt < s.cfg.WaitAttempts; attempt++ {
		if err := sleep(ctx, s.cfg.WaitDelay); err != nil {
			return r.record(StopAndWait, false, 0)
		}
		if !th.StillBlocked(s.monitor.PollFresh(ctx)) {
			s.logger.Info("path cleared", "attempt", attempt+1)
			return r.record(StopAndWait, true, 0)
		}
		s.logger.Debug("still waiting", "attempt", attempt+1)
	}

	r.record(StopAndWait, false, 0)
	s.logger.Info("wait timed out, detouring")
	return r.detour(ctx, motor.Right, 0)
}

func detourStrategy(dir motor.Command) Strategy {
	if dir == motor.Left {
		return DetourLeft
	}
	return DetourRight
}

func (r *run) detour(ctx context.Context, dir motor.Command, depth int) bool {
	s := r.s
	strategy := detourStrategy(dir)

	if depth >= s.cfg.MaxRetryAttempts {
		s.logger.Warn("detour retries exhausted", "depth", depth)
		return r.emergencyStop(ctx)
	}

	if err := r.detourLegs(ctx, dir); err != nil {
		s.logger.Warn("detour failed", "direction", dir, "error", err)
		return r.record(strategy, false, depth)
	}

	if s.monitor.Thresholds().CenterBlocked(s.monitor.PollFresh(ctx)) {
		r.record(strategy, false, depth)
		if ctx.Err() != nil {
			return false
		}
		s.logger.Info("path still blocked, trying opposite side", "direction", dir.Opposite(), "depth", depth+1)
		return r.detour(ctx, dir.Opposite(), depth+1)
	}

	if err := motor.Turn(ctx, s.motor, dir.Opposite(), s.cfg.DetourTurn); err != nil {
		s.logger.Warn("return turn failed", "error", err)
		return r.record(strategy, false, depth)
	}
	s.moved(dir.Opposite(), s.cfg.DetourTurn)
	return r.record(strategy, true, depth)
}

func (r *run) detourLegs(ctx context.Context, dir motor.Command) error {
	s := r.s
	if err := motor.Turn(ctx, s.motor, dir, s.cfg.DetourTurn); err != nil {
		return fmt.Errorf("turn %s: %w", dir, err)
	}
	s.moved(dir, s.cfg.DetourTurn)
	if err := sleep(ctx, s.cfg.Settle); err != nil {
		return err
	}
	if err := s.motor.Forward(ctx, s.cfg.DetourForward); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	s.moved(motor.Forward, s.cfg.DetourForward)
	return sleep(ctx, s.cfg.Settle)
}

func (r *run) reverseAndRetry(ctx context.Context) bool {
	s := r.s
	if err := s.motor.Backward(ctx, s.cfg.Reverse); err != nil {
		s.logger.Warn("reverse failed", "error", err)
		return r.record(ReverseAndRetry, false, 0)
	}
	s.moved(motor.Backward, s.cfg.Reverse)
	if err := sleep(ctx, s.cfg.ReverseSettle); err != nil {
		return r.record(ReverseAndRetry, false, 0)
	}
	if len(s.monitor.PollFresh(ctx)) == 0 {
		return r.record(ReverseAndRetry, true, 0)
	}
	r.record(ReverseAndRetry, false, 0)
	return r.detour(ctx, motor.Right, 0)
}

func (r *run) emergencyStop(ctx context.Context) bool {
	s := r.s
	r.emergency = true
	if err := s.motor.Stop(ctx); err != nil {
		s.logger.Error("emergency stop failed", "error", err)
	}
	s.voice.Say(ctx, announce.EmergencyPhrase)
	s.gate.ManualAssistanceNeeded(ctx)
	return r.record(EmergencyStop, false, 0)
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
