package kibo

import (
	"time"

	"github.com/kibo-rover/go-kibo/internal/config"
	"github.com/kibo-rover/go-kibo/pkg/navigation"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
)

// ApplyTuning overlays the non-zero values of t onto cfg.
func ApplyTuning(cfg navigation.Config, t config.Tuning) navigation.Config {
	n := t.Navigation
	setDur(&cfg.MinMove, n.MinMove)
	setDur(&cfg.MaxMove, n.MaxMove)
	setFloat(&cfg.DistanceScale, n.DistanceScale)
	setDur(&cfg.TurnDuration, n.TurnDuration)
	setDur(&cfg.TurnSettle, n.TurnSettle)
	setDur(&cfg.StepPause, n.StepPause)
	setDur(&cfg.SamplePeriod, n.SamplePeriod)
	setFloat(&cfg.CompletionRadius, n.CompletionRadius)
	setDur(&cfg.ProgressCooldown, n.ProgressCooldown)

	a := t.Avoidance
	setInt(&cfg.Avoidance.WaitAttempts, a.WaitAttempts)
	setDur(&cfg.Avoidance.WaitDelay, a.WaitDelay)
	setDur(&cfg.Avoidance.DetourTurn, a.DetourTurn)
	setDur(&cfg.Avoidance.DetourForward, a.DetourForward)
	setDur(&cfg.Avoidance.Reverse, a.Reverse)
	setDur(&cfg.Avoidance.Settle, a.Settle)
	setInt(&cfg.Avoidance.MaxRetryAttempts, a.MaxRetryAttempts)

	setDur(&cfg.AnnouncePerChar, t.Announce.PerChar)
	setDur(&cfg.AnnounceMargin, t.Announce.Margin)
	return cfg
}

// ApplyThresholds overlays the non-zero obstacle values of t onto th.
func ApplyThresholds(th obstacle.Thresholds, t config.Tuning) obstacle.Thresholds {
	o := t.Obstacle
	setFloat(&th.FrameMidX, o.FrameMidX)
	setFloat(&th.CenterMin, o.CenterMin)
	setFloat(&th.CenterMax, o.CenterMax)
	setFloat(&th.AreaThreshold, o.AreaThreshold)
	setFloat(&th.NearCenterDistance, o.NearCenterDistance)
	setFloat(&th.DangerDistance, o.DangerDistance)
	return th
}

func setDur(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
