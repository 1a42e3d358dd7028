package navigation

import (
	"math"
	"time"

	"github.com/kibo-rover/go-kibo/pkg/announce"
	"github.com/kibo-rover/go-kibo/pkg/avoidance"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

// Config holds navigation timing. The numbers are tuning constants, not
// protocol; every delay is configurable so tests can run in milliseconds.
type Config struct {
	// Move duration mapping: clamp(sqrt(m/DistanceScale)*MoveGain, MinMove, MaxMove).
	MinMove       time.Duration
	MaxMove       time.Duration
	DistanceScale float64
	MoveGain      time.Duration

	TurnDuration time.Duration
	// TurnSettle is the pause between a turn and its forward leg.
	TurnSettle time.Duration
	// StepPause separates consecutive steps.
	StepPause time.Duration
	// FinalPause delays the arrival announcement.
	FinalPause time.Duration

	// SamplePeriod caps the obstacle sampling period during a move; the
	// actual period is min(SamplePeriod, duration/4), never below MinSamplePeriod.
	SamplePeriod    time.Duration
	MinSamplePeriod time.Duration

	// Progress checking against step end coordinates. Disabled when
	// ProgressInterval is zero.
	ProgressInterval time.Duration
	CompletionRadius float64
	ProgressCooldown time.Duration
	ProgressUnlock   time.Duration

	AnnouncePerChar time.Duration
	AnnounceMargin  time.Duration

	// Start is used to place the simulated pose when the first step has no
	// start coordinate. Nil keeps the simulator default.
	Start *route.Coordinate

	Avoidance avoidance.Config
}

// DefaultConfig returns the field defaults.
func DefaultConfig() Config {
	return Config{
		MinMove:          30 * time.Millisecond,
		MaxMove:          2 * time.Second,
		DistanceScale:    50,
		MoveGain:         5 * time.Second,
		TurnDuration:     300 * time.Millisecond,
		TurnSettle:       500 * time.Millisecond,
		StepPause:        time.Second,
		FinalPause:       time.Second,
		SamplePeriod:     500 * time.Millisecond,
		MinSamplePeriod:  10 * time.Millisecond,
		CompletionRadius: 100,
		ProgressCooldown: 3 * time.Second,
		ProgressUnlock:   2 * time.Second,
		AnnouncePerChar:  announce.DefaultPerChar,
		AnnounceMargin:   announce.DefaultMargin,
		Avoidance:        avoidance.DefaultConfig(),
	}
}

// ComputeDuration maps a step distance to a motor duration. The mapping is
// monotonic non-decreasing and bounded by [MinMove, MaxMove].
func ComputeDuration(meters float64, cfg Config) time.Duration {
	if math.IsNaN(meters) || meters <= 0 || cfg.DistanceScale <= 0 {
		return cfg.MinMove
	}
	secs := math.Sqrt(meters/cfg.DistanceScale) * cfg.MoveGain.Seconds()
	if secs >= cfg.MaxMove.Seconds() {
		return cfg.MaxMove
	}
	if d := time.Duration(secs * float64(time.Second)); d > cfg.MinMove {
		return d
	}
	return cfg.MinMove
}

// DistanceFor inverts ComputeDuration for moves the route did not ask for,
// such as detour legs.
func DistanceFor(d time.Duration, cfg Config) float64 {
	if d <= 0 || cfg.MoveGain <= 0 || cfg.DistanceScale <= 0 {
		return 0
	}
	x := d.Seconds() / cfg.MoveGain.Seconds()
	return x * x * cfg.DistanceScale
}

// SamplingPeriod returns the obstacle sampling period for a move of total
// length: about four samples, capped at cfg.SamplePeriod.
func SamplingPeriod(total time.Duration, cfg Config) time.Duration {
	p := total / 4
	if cfg.SamplePeriod > 0 && p > cfg.SamplePeriod {
		p = cfg.SamplePeriod
	}
	if p < cfg.MinSamplePeriod {
		p = cfg.MinSamplePeriod
	}
	if p <= 0 {
		p = time.Millisecond
	}
	return p
}
