// Package pose tracks the rover's simulated position and heading.
//
// The simulated pose is driven only by executed motor commands. It is not a
// GPS fix: forward travel is compressed into a centimeter-scale displacement
// so the rover marker stays visible on a street-level map regardless of how
// far the real step went.
package pose

import (
	"math"
	"sync"

	"github.com/paulmach/orb/geo"

	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

// DefaultStart is used when no better starting location is known.
var DefaultStart = route.Coordinate{Lat: 43.6532, Lng: -79.3832}

// Simulated displacement band and the real distance at which it saturates.
const (
	MinSimulatedMeters = 0.01
	MaxSimulatedMeters = 0.10
	SaturationMeters   = 5000.0
)

// Turn angles in degrees by maneuver class.
const (
	SlightTurn     = 30.0
	NormalTurn     = 90.0
	SharpTurn      = 120.0
	RoundaboutTurn = 270.0
)

// Pose is a position plus heading. Bearing is in [0, 360), 0 = north.
type Pose struct {
	Position route.Coordinate `json:"position"`
	Bearing  float64          `json:"bearing"`
}

// NormalizeBearing maps any angle into [0, 360).
func NormalizeBearing(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}

// SimulatedDistance compresses a real distance logarithmically into
// [MinSimulatedMeters, MaxSimulatedMeters]. It is monotonic and saturates at
// SaturationMeters.
func SimulatedDistance(realMeters float64) float64 {
	if math.IsNaN(realMeters) || realMeters <= 0 {
		return MinSimulatedMeters
	}
	frac := math.Log1p(realMeters) / math.Log1p(SaturationMeters)
	if frac >= 1 {
		return MaxSimulatedMeters
	}
	return MinSimulatedMeters + frac*(MaxSimulatedMeters-MinSimulatedMeters)
}

// TurnAngle returns the default rotation magnitude for a maneuver. Ramps are
// treated as slight turns; anything unknown or straight is a normal turn.
func TurnAngle(m route.Maneuver) float64 {
	switch m {
	case route.ManeuverTurnSlightLeft, route.ManeuverTurnSlightRight,
		route.ManeuverRampLeft, route.ManeuverRampRight:
		return SlightTurn
	case route.ManeuverTurnSharpLeft, route.ManeuverTurnSharpRight:
		return SharpTurn
	case route.ManeuverRoundaboutLeft, route.ManeuverRoundaboutRight:
		return RoundaboutTurn
	}
	return NormalTurn
}

// Simulator owns the simulated pose. It is safe for concurrent use.
type Simulator struct {
	mu          sync.RWMutex
	pose        Pose
	initialized bool
}

// NewSimulator returns an uninitialized simulator. The pose is set lazily
// to DefaultStart on first use unless Init is called.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Init places the rover at start facing north.
func (s *Simulator) Init(start route.Coordinate) {
	if !start.Valid() {
		start = DefaultStart
	}
	s.mu.Lock()
	s.pose = Pose{Position: start}
	s.initialized = true
	s.mu.Unlock()
}

// Current returns the pose, initializing it if needed.
func (s *Simulator) Current() Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()
	return s.pose
}

func (s *Simulator) ensureLocked() {
	if !s.initialized {
		s.pose = Pose{Position: DefaultStart}
		s.initialized = true
	}
}

// Apply updates the pose for one executed command and returns the result.
// step supplies the maneuver and optional geometry for turns; it may be nil.
func (s *Simulator) Apply(cmd motor.Command, realMeters float64, step *route.Step) Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()

	s.pose = Next(s.pose, cmd, realMeters, step)
	return s.pose
}

// Next is the pure pose transition behind Simulator.Apply.
func Next(p Pose, cmd motor.Command, realMeters float64, step *route.Step) Pose {
	switch cmd {
	case motor.Forward:
		p.Position = project(p.Position, p.Bearing, SimulatedDistance(realMeters))
	case motor.Backward:
		p.Position = project(p.Position, p.Bearing+180, SimulatedDistance(realMeters))
	case motor.Left, motor.Right:
		p.Bearing += TurnDelta(p.Bearing, cmd, step)
	}
	p.Bearing = NormalizeBearing(p.Bearing)
	return p
}

// TurnDelta returns the signed rotation for a turn from the current
// bearing. When the step has usable geometry the rover turns to face along
// the step's start->end segment; otherwise the maneuver default applies,
// negative for left.
func TurnDelta(current float64, cmd motor.Command, step *route.Step) float64 {
	if step != nil && step.HasGeometry() {
		if target, ok := segmentBearing(*step); ok {
			d := math.Mod(target-current, 360)
			if d <= -180 {
				d += 360
			} else if d > 180 {
				d -= 360
			}
			return d
		}
	}
	angle := NormalTurn
	if step != nil {
		angle = TurnAngle(step.Maneuver)
	}
	if cmd == motor.Left {
		return -angle
	}
	return angle
}

// segmentBearing is the bearing of the step's start->end segment. A
// degenerate segment has none.
func segmentBearing(step route.Step) (float64, bool) {
	if step.Start.DistanceTo(*step.End) < 1e-6 {
		return 0, false
	}
	b := step.Start.BearingTo(*step.End)
	if math.IsNaN(b) {
		return 0, false
	}
	return NormalizeBearing(b), true
}

func project(from route.Coordinate, bearing, meters float64) route.Coordinate {
	to := route.FromPoint(geo.PointAtBearingAndDistance(from.Point(), NormalizeBearing(bearing), meters))
	if !to.Valid() {
		return from
	}
	return to
}
