package navigation

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// Phase is the coordinator's position in the step lifecycle.
type Phase string

// Phases.
const (
	PhaseIdle             Phase = "idle"
	PhaseAnnouncing       Phase = "announcing"
	PhaseMoving           Phase = "moving"
	PhaseObstacleHandling Phase = "obstacle_handling"
	PhaseAdvancing        Phase = "advancing"
	PhaseComplete         Phase = "complete"
	PhaseHalted           Phase = "halted"
)

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseHalted }

// Phase machine events.
const (
	evAnnounce = "announce"
	evMove     = "move"
	evAvoid    = "avoid"
	evAdvance  = "advance"
	evComplete = "complete"
	evHalt     = "halt"
	evReset    = "reset"
)

type phaseMachine struct {
	fsm *fsm.FSM
}

func newPhaseMachine(onChange func(from, to Phase)) *phaseMachine {
	s := func(ps ...Phase) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = string(p)
		}
		return out
	}

	return &phaseMachine{
		fsm: fsm.NewFSM(
			string(PhaseIdle),
			fsm.Events{
				{Name: evAnnounce, Src: s(PhaseIdle, PhaseAdvancing), Dst: string(PhaseAnnouncing)},
				{Name: evMove, Src: s(PhaseAnnouncing, PhaseMoving, PhaseObstacleHandling), Dst: string(PhaseMoving)},
				{Name: evAvoid, Src: s(PhaseAnnouncing, PhaseMoving), Dst: string(PhaseObstacleHandling)},
				{Name: evAdvance, Src: s(PhaseMoving, PhaseObstacleHandling), Dst: string(PhaseAdvancing)},
				{Name: evComplete, Src: s(PhaseIdle, PhaseAdvancing), Dst: string(PhaseComplete)},
				{Name: evHalt, Src: s(PhaseIdle, PhaseAnnouncing, PhaseMoving, PhaseObstacleHandling, PhaseAdvancing), Dst: string(PhaseHalted)},
				{Name: evReset, Src: s(PhaseComplete, PhaseHalted), Dst: string(PhaseIdle)},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					if onChange != nil {
						onChange(Phase(e.Src), Phase(e.Dst))
					}
				},
			},
		),
	}
}

// fire triggers event. Re-entering the current phase is not an error.
func (m *phaseMachine) fire(ctx context.Context, event string) error {
	err := m.fsm.Event(context.WithoutCancel(ctx), event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

func (m *phaseMachine) current() Phase {
	return Phase(m.fsm.Current())
}

func (m *phaseMachine) can(event string) bool {
	return m.fsm.Can(event)
}
