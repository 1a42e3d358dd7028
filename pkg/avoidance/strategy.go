// Package avoidance chooses and runs obstacle avoidance maneuvers.
package avoidance

import (
	"fmt"
	"time"

	"github.com/kibo-rover/go-kibo/pkg/obstacle"
)

// Strategy is an avoidance maneuver.
type Strategy string

// Strategies.
const (
	StopAndWait     Strategy = "stop_and_wait"
	DetourLeft      Strategy = "detour_left"
	DetourRight     Strategy = "detour_right"
	ReverseAndRetry Strategy = "reverse_and_retry"
	EmergencyStop   Strategy = "emergency_stop"
)

// Determine picks a strategy for obs. It is a pure function of its inputs.
//
// Order, first match wins:
//  1. center clear and obstacles on exactly one side: detour to the other side
//  2. center occupied: detour toward the side with strictly fewer obstacles
//  3. any person, dog or cat: stop and wait
//  4. detour right
func Determine(obs []obstacle.Obstacle, th obstacle.Thresholds) Strategy {
	z := th.Partition(obs)
	left, center, right := len(z.Left), len(z.Center), len(z.Right)

	if center == 0 {
		switch {
		case left > 0 && right == 0:
			return DetourRight
		case right > 0 && left == 0:
			return DetourLeft
		}
	}

	if center > 0 {
		switch {
		case left < right:
			return DetourLeft
		case right < left:
			return DetourRight
		}
	}

	for _, o := range obs {
		if o.Mobile() {
			return StopAndWait
		}
	}

	return DetourRight
}

// Attempt records one strategy execution.
type Attempt struct {
	Strategy   Strategy  `json:"strategy"`
	Outcome    bool      `json:"outcome"`
	RetryDepth int       `json:"retry_depth"`
	At         time.Time `json:"at"`
}

func (a Attempt) String() string {
	result := "failed"
	if a.Outcome {
		result = "succeeded"
	}
	return fmt.Sprintf("%s %s (depth %d)", a.Strategy, result, a.RetryDepth)
}

// Report is the result of handling one obstacle encounter.
type Report struct {
	Strategy  Strategy  `json:"strategy"`
	Obstacles []string  `json:"obstacles"`
	Attempts  []Attempt `json:"attempts"`
	OK        bool      `json:"ok"`
}
