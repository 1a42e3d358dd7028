package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kibo-rover/go-kibo/pkg/announce"
	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

// executeMovement announces the step and performs it. Speech always finishes
// (or times out) before the first motor command.
func (r *run) executeMovement(cmd motor.Command, dur time.Duration, step route.Step) bool {
	c := r.c
	c.mu.Lock()
	if c.run == r {
		c.inProgress = true
		c.stopOnlyMode = true
		c.status = StatusActive
	}
	c.mu.Unlock()

	text := announce.Movement(cmd, step)
	r.logf(slog.LevelInfo, "Announcing: %s", text)
	if out := r.voice.Announce(r.ctx, text); out != announce.Spoken {
		r.c.logger.Warn("announcement not confirmed, moving anyway", "outcome", out)
	}
	if r.ctx.Err() != nil {
		return false
	}

	switch cmd {
	case motor.Left, motor.Right:
		return r.turnThenForward(cmd, dur, step)
	default:
		return r.monitoredMove(cmd, dur, step)
	}
}

// turnThenForward checks for obstacles once, turns, and then realizes the
// step distance with a monitored forward leg.
func (r *run) turnThenForward(cmd motor.Command, dur time.Duration, step route.Step) bool {
	if obs := r.c.monitor.Poll(r.ctx); len(obs) > 0 {
		r.fire(evAvoid)
		if !r.avoid(obs, cmd) {
			return false
		}
	}

	r.fire(evMove)
	err := motor.Turn(r.ctx, r.c.motor, cmd, r.cfg.TurnDuration)
	r.applyPose(cmd, 0, &step)
	if err != nil {
		r.logf(slog.LevelError, "Turn %s failed: %v", cmd, err)
		return false
	}
	if step.DistanceMeters <= 0 {
		return true
	}

	if err := sleep(r.ctx, r.cfg.TurnSettle); err != nil {
		return false
	}
	return r.monitoredMove(motor.Forward, dur, step)
}

type moveResult struct {
	err error
}

// monitoredMove runs a linear move while sampling obstacles about four times
// across its duration. A dangerous obstacle stops the motor and hands the
// outcome to the strategist; the motor call's late result is then ignored.
func (r *run) monitoredMove(cmd motor.Command, dur time.Duration, step route.Step) bool {
	r.fire(evMove)

	var once sync.Once
	moved := func() { once.Do(func() { r.applyPose(cmd, step.DistanceMeters, &step) }) }

	done := make(chan moveResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- moveResult{err: fmt.Errorf("motor panicked: %v", p)}
			}
		}()
		done <- moveResult{err: motor.Run(r.ctx, r.c.motor, cmd, dur)}
	}()

	period := SamplingPeriod(dur, r.cfg)
	th := r.c.monitor.Thresholds()
	sample := time.NewTimer(0)
	defer sample.Stop()
	var sampled time.Duration

	for {
		select {
		case res := <-done:
			moved()
			if res.err != nil {
				r.logf(slog.LevelError, "Move %s failed: %v", cmd, res.err)
				return false
			}
			return true

		case <-sample.C:
			dangerous := th.FilterDangerous(r.c.monitor.Poll(r.ctx))
			if len(dangerous) > 0 {
				if err := r.c.motor.Stop(context.WithoutCancel(r.ctx)); err != nil {
					r.c.logger.Warn("stop before avoidance failed", "error", err)
				}
				moved()
				r.fire(evAvoid)
				return r.avoid(dangerous, cmd)
			}
			sampled += period
			if sampled < dur {
				sample.Reset(period)
			}

		case <-r.ctx.Done():
			return false
		}
	}
}

// avoid runs the strategist and reports its outcome.
func (r *run) avoid(obs []obstacle.Obstacle, cmd motor.Command) bool {
	types := obstacle.Types(obs)
	r.emit(Event{Type: EventObstacle, Obstacles: obs, Command: cmd, Message: announce.Obstacles(types)})
	r.logf(slog.LevelWarn, "Obstacles detected: %v", types)

	rep := r.strategist.Handle(r.ctx, obs, cmd)
	if rep.OK {
		r.logf(slog.LevelInfo, "Avoidance %s succeeded", rep.Strategy)
		r.fire(evMove)
	} else {
		r.logf(slog.LevelError, "Avoidance %s failed after %d attempts", rep.Strategy, len(rep.Attempts))
	}
	return rep.OK
}

// applyPose records one executed motion leg. step may be nil for legs that
// are not part of the route, such as detours.
func (r *run) applyPose(cmd motor.Command, meters float64, step *route.Step) {
	if !r.current() {
		return
	}
	p := r.c.pose.Apply(cmd, meters, step)
	r.emit(Event{Type: EventPose, Pose: &p, Command: cmd})
}

// avoidanceMove feeds a strategist leg into the simulated pose.
func (r *run) avoidanceMove(cmd motor.Command, dur time.Duration) {
	switch cmd {
	case motor.Left, motor.Right:
		r.applyPose(cmd, 0, nil)
	case motor.Forward, motor.Backward:
		r.applyPose(cmd, DistanceFor(dur, r.cfg), nil)
	}
}
