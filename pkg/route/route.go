// Package route defines navigation steps and the sources that supply them.
//
// A route is an ordered list of Steps produced once per navigation run by an
// external directions provider. Steps are immutable after creation.
package route

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Sentinel errors.
var (
	ErrNoRoute         = errors.New("route: no route found")
	ErrInvalidDistance = errors.New("route: distance must be a finite non-negative number")
)

// Maneuver is the categorical turn type attached to a step.
type Maneuver string

// Maneuver values.
const (
	ManeuverStraight        Maneuver = "straight"
	ManeuverTurnSlightLeft  Maneuver = "turn-slight-left"
	ManeuverTurnLeft        Maneuver = "turn-left"
	ManeuverTurnSharpLeft   Maneuver = "turn-sharp-left"
	ManeuverTurnSlightRight Maneuver = "turn-slight-right"
	ManeuverTurnRight       Maneuver = "turn-right"
	ManeuverTurnSharpRight  Maneuver = "turn-sharp-right"
	ManeuverRampLeft        Maneuver = "ramp-left"
	ManeuverRampRight       Maneuver = "ramp-right"
	ManeuverRoundaboutLeft  Maneuver = "roundabout-left"
	ManeuverRoundaboutRight Maneuver = "roundabout-right"
	ManeuverUnknown         Maneuver = "unknown"
)

var knownManeuvers = map[Maneuver]bool{
	ManeuverStraight:        true,
	ManeuverTurnSlightLeft:  true,
	ManeuverTurnLeft:        true,
	ManeuverTurnSharpLeft:   true,
	ManeuverTurnSlightRight: true,
	ManeuverTurnRight:       true,
	ManeuverTurnSharpRight:  true,
	ManeuverRampLeft:        true,
	ManeuverRampRight:       true,
	ManeuverRoundaboutLeft:  true,
	ManeuverRoundaboutRight: true,
}

// ParseManeuver normalizes a provider maneuver string. Empty and unrecognized
// values map to ManeuverUnknown.
func ParseManeuver(s string) Maneuver {
	m := Maneuver(strings.ToLower(strings.TrimSpace(s)))
	if knownManeuvers[m] {
		return m
	}
	return ManeuverUnknown
}

// IsLeft reports whether the maneuver bends to the left.
func (m Maneuver) IsLeft() bool { return strings.HasSuffix(string(m), "-left") }

// IsRight reports whether the maneuver bends to the right.
func (m Maneuver) IsRight() bool { return strings.HasSuffix(string(m), "-right") }

// IsRoundabout reports whether the maneuver is a roundabout.
func (m Maneuver) IsRoundabout() bool { return strings.HasPrefix(string(m), "roundabout") }

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point converts to an orb point (lng, lat order).
func (c Coordinate) Point() orb.Point { return orb.Point{c.Lng, c.Lat} }

// FromPoint converts an orb point back to a Coordinate.
func FromPoint(p orb.Point) Coordinate { return Coordinate{Lat: p.Lat(), Lng: p.Lon()} }

// Valid reports whether both components are finite and in range.
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) &&
		c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// DistanceTo returns the haversine distance in meters.
func (c Coordinate) DistanceTo(o Coordinate) float64 {
	return geo.DistanceHaversine(c.Point(), o.Point())
}

// BearingTo returns the initial great-circle bearing in degrees, [-180, 180].
func (c Coordinate) BearingTo(o Coordinate) float64 {
	return geo.Bearing(c.Point(), o.Point())
}

// Step is one instruction of a planned route.
type Step struct {
	Instruction    string      `json:"instruction"`
	Maneuver       Maneuver    `json:"maneuver"`
	DistanceMeters float64     `json:"distance_meters"`
	Start          *Coordinate `json:"start,omitempty"`
	End            *Coordinate `json:"end,omitempty"`
}

// Validate checks the step's invariants.
func (s Step) Validate() error {
	if math.IsNaN(s.DistanceMeters) || math.IsInf(s.DistanceMeters, 0) || s.DistanceMeters < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDistance, s.DistanceMeters)
	}
	return nil
}

// HasGeometry reports whether both endpoints are known and usable.
func (s Step) HasGeometry() bool {
	return s.Start != nil && s.End != nil && s.Start.Valid() && s.End.Valid()
}

// Validate checks every step and reports the first offending index.
func Validate(steps []Step) error {
	for i, s := range steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// TotalDistance sums step distances.
func TotalDistance(steps []Step) float64 {
	var total float64
	for _, s := range steps {
		total += s.DistanceMeters
	}
	return total
}

// Source supplies the steps for one navigation run.
type Source interface {
	Steps(ctx context.Context) ([]Step, error)
}

// Static is a Source backed by an in-memory slice.
type Static []Step

// Steps returns a copy of the slice.
func (s Static) Steps(ctx context.Context) ([]Step, error) {
	out := make([]Step, len(s))
	copy(out, s)
	return out, nil
}
