package motor

import (
	"context"
	"log/slog"
	"time"
)

// Sim is a dry-run driver. It logs each command and sleeps for its duration
// so timing matches the real rover.
type Sim struct {
	logger *slog.Logger
}

// NewSim creates a simulated driver.
func NewSim(logger *slog.Logger) *Sim {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sim{logger: logger.With("component", "motor.Sim")}
}

func (s *Sim) run(ctx context.Context, cmd Command, d time.Duration) error {
	s.logger.Info("motor command", "action", cmd, "duration", d)
	return sleep(ctx, d)
}

// Forward simulates forward motion.
func (s *Sim) Forward(ctx context.Context, d time.Duration) error { return s.run(ctx, Forward, d) }

// Backward simulates backward motion.
func (s *Sim) Backward(ctx context.Context, d time.Duration) error { return s.run(ctx, Backward, d) }

// TurnLeft simulates a left turn.
func (s *Sim) TurnLeft(ctx context.Context, d time.Duration) error { return s.run(ctx, Left, d) }

// TurnRight simulates a right turn.
func (s *Sim) TurnRight(ctx context.Context, d time.Duration) error { return s.run(ctx, Right, d) }

// Stop logs the stop.
func (s *Sim) Stop(ctx context.Context) error { return s.run(ctx, Stop, 0) }

var _ Driver = (*Sim)(nil)
