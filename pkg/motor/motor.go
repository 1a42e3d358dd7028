// Package motor drives the rover's wheels.
//
// Like the rest of the rover APIs, the interfaces are kept small so callers
// depend only on what they use. Every primitive blocks until the motion has
// physically finished (or ctx ends) and reports failure as an error.
package motor

import (
	"context"
	"fmt"
	"time"
)

// Command is a primitive motor action.
type Command string

// Motor commands, as understood by the rover's motor bridge.
const (
	Forward  Command = "forward"
	Backward Command = "backward"
	Left     Command = "left"
	Right    Command = "right"
	Stop     Command = "stop"
)

// Opposite returns the mirror command: left<->right, forward<->backward.
func (c Command) Opposite() Command {
	switch c {
	case Left:
		return Right
	case Right:
		return Left
	case Forward:
		return Backward
	case Backward:
		return Forward
	}
	return c
}

// IsTurn reports whether c rotates the rover in place.
func (c Command) IsTurn() bool { return c == Left || c == Right }

// IsLinear reports whether c translates the rover.
func (c Command) IsLinear() bool { return c == Forward || c == Backward }

// Mover translates the rover.
type Mover interface {
	Forward(ctx context.Context, d time.Duration) error
	Backward(ctx context.Context, d time.Duration) error
}

// Turner rotates the rover in place.
type Turner interface {
	TurnLeft(ctx context.Context, d time.Duration) error
	TurnRight(ctx context.Context, d time.Duration) error
}

// Stopper halts all motion immediately.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Driver is the full motor interface used by navigation.
type Driver interface {
	Mover
	Turner
	Stopper
}

// Run dispatches cmd to the matching Driver method.
func Run(ctx context.Context, drv Driver, cmd Command, d time.Duration) error {
	switch cmd {
	case Forward:
		return drv.Forward(ctx, d)
	case Backward:
		return drv.Backward(ctx, d)
	case Left:
		return drv.TurnLeft(ctx, d)
	case Right:
		return drv.TurnRight(ctx, d)
	case Stop:
		return drv.Stop(ctx)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

// Turn rotates toward cmd, which must be Left or Right.
func Turn(ctx context.Context, t Turner, cmd Command, d time.Duration) error {
	switch cmd {
	case Left:
		return t.TurnLeft(ctx, d)
	case Right:
		return t.TurnRight(ctx, d)
	}
	return fmt.Errorf("%w: %q is not a turn", ErrUnknownCommand, cmd)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
