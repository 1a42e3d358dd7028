// Package obstacle polls the rover's detection service and classifies what
// it sees.
package obstacle

import (
	"strings"
)

// DangerLevel is the detector's threat classification.
type DangerLevel string

// Danger levels reported by the detector.
const (
	DangerLow    DangerLevel = "LOW"
	DangerMedium DangerLevel = "MEDIUM"
	DangerHigh   DangerLevel = "HIGH"
)

// Obstacle is one detection result. Optional signals are nil when the
// detector did not report them.
type Obstacle struct {
	Type               string      `json:"type"`
	Center             []float64   `json:"center,omitempty"`
	DangerLevel        DangerLevel `json:"danger_level,omitempty"`
	Area               *float64    `json:"area,omitempty"`
	DistanceFromCenter *float64    `json:"distance_from_center,omitempty"`
	Distance           *float64    `json:"distance,omitempty"`
}

// CenterX returns the horizontal center in frame pixels.
func (o Obstacle) CenterX() (float64, bool) {
	if len(o.Center) == 0 {
		return 0, false
	}
	return o.Center[0], true
}

// Level returns the normalized danger level.
func (o Obstacle) Level() DangerLevel {
	return DangerLevel(strings.ToUpper(strings.TrimSpace(string(o.DangerLevel))))
}

// Mobile reports whether the obstacle is a class that usually moves out of
// the way on its own.
func (o Obstacle) Mobile() bool {
	switch strings.ToLower(o.Type) {
	case "person", "dog", "cat":
		return true
	}
	return false
}

// Float returns a pointer to v. Handy for building obstacles in code.
func Float(v float64) *float64 { return &v }

// Thresholds are the tuning constants for danger classification and frame
// zones. Frame coordinates assume a 320px wide detector input.
type Thresholds struct {
	FrameMidX          float64
	CenterMin          float64
	CenterMax          float64
	AreaThreshold      float64
	NearCenterDistance float64
	DangerDistance     float64 // meters
}

// DefaultThresholds returns the detector defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FrameMidX:          160,
		CenterMin:          120,
		CenterMax:          200,
		AreaThreshold:      5000,
		NearCenterDistance: 50,
		DangerDistance:     2.0,
	}
}

// InCenter reports whether x lies inside the central band, inclusive.
func (t Thresholds) InCenter(x float64) bool {
	return x >= t.CenterMin && x <= t.CenterMax
}

// Dangerous reports whether o warrants abandoning a move: a HIGH danger
// level, a large apparent size, a position close to the frame center, or a
// close distance estimate while directly ahead.
func (t Thresholds) Dangerous(o Obstacle) bool {
	if o.Level() == DangerHigh {
		return true
	}
	if o.Area != nil && *o.Area > t.AreaThreshold {
		return true
	}
	if o.DistanceFromCenter != nil && *o.DistanceFromCenter < t.NearCenterDistance {
		return true
	}
	if x, ok := o.CenterX(); ok && t.InCenter(x) && o.Distance != nil && *o.Distance < t.DangerDistance {
		return true
	}
	return false
}

// FilterDangerous returns the dangerous subset of obs.
func (t Thresholds) FilterDangerous(obs []Obstacle) []Obstacle {
	var out []Obstacle
	for _, o := range obs {
		if t.Dangerous(o) {
			out = append(out, o)
		}
	}
	return out
}

// Zones is the left/center/right split of a set of obstacles.
type Zones struct {
	Left   []Obstacle
	Center []Obstacle
	Right  []Obstacle
}

// Partition splits obs by horizontal center. The center band takes
// precedence; the rest fall left or right of FrameMidX. Obstacles without a
// center position belong to no zone.
func (t Thresholds) Partition(obs []Obstacle) Zones {
	var z Zones
	for _, o := range obs {
		x, ok := o.CenterX()
		switch {
		case !ok:
		case t.InCenter(x):
			z.Center = append(z.Center, o)
		case x < t.FrameMidX:
			z.Left = append(z.Left, o)
		default:
			z.Right = append(z.Right, o)
		}
	}
	return z
}

// CenterBlocked reports whether anything sits in the central band.
func (t Thresholds) CenterBlocked(obs []Obstacle) bool {
	for _, o := range obs {
		if x, ok := o.CenterX(); ok && t.InCenter(x) {
			return true
		}
	}
	return false
}

// StillBlocked reports whether the path ahead is still unsafe while waiting:
// any HIGH danger obstacle or anything in the central band.
func (t Thresholds) StillBlocked(obs []Obstacle) bool {
	for _, o := range obs {
		if o.Level() == DangerHigh {
			return true
		}
	}
	return t.CenterBlocked(obs)
}

// Types returns the distinct obstacle types in first-seen order.
func Types(obs []Obstacle) []string {
	seen := make(map[string]bool, len(obs))
	var out []string
	for _, o := range obs {
		if o.Type == "" || seen[o.Type] {
			continue
		}
		seen[o.Type] = true
		out = append(out, o.Type)
	}
	return out
}
