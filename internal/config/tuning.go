package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Tuning holds the navigation constants that can be adjusted without a
// rebuild. Zero values mean "keep the built-in default".
type Tuning struct {
	Navigation NavigationTuning `mapstructure:"navigation"`
	Obstacle   ObstacleTuning   `mapstructure:"obstacle"`
	Avoidance  AvoidanceTuning  `mapstructure:"avoidance"`
	Announce   AnnounceTuning   `mapstructure:"announce"`
}

// NavigationTuning covers step timing.
type NavigationTuning struct {
	MinMove          time.Duration `mapstructure:"min_move"`
	MaxMove          time.Duration `mapstructure:"max_move"`
	DistanceScale    float64       `mapstructure:"distance_scale"`
	TurnDuration     time.Duration `mapstructure:"turn_duration"`
	TurnSettle       time.Duration `mapstructure:"turn_settle"`
	StepPause        time.Duration `mapstructure:"step_pause"`
	SamplePeriod     time.Duration `mapstructure:"sample_period"`
	CompletionRadius float64       `mapstructure:"completion_radius"`
	ProgressCooldown time.Duration `mapstructure:"progress_cooldown"`
}

// ObstacleTuning covers polling and classification.
type ObstacleTuning struct {
	Interval           time.Duration `mapstructure:"interval"`
	Timeout            time.Duration `mapstructure:"timeout"`
	FrameMidX          float64       `mapstructure:"frame_mid_x"`
	CenterMin          float64       `mapstructure:"center_min"`
	CenterMax          float64       `mapstructure:"center_max"`
	AreaThreshold      float64       `mapstructure:"area_threshold"`
	NearCenterDistance float64       `mapstructure:"near_center_distance"`
	DangerDistance     float64       `mapstructure:"danger_distance"`
}

// AvoidanceTuning covers strategy timing and retry bounds.
type AvoidanceTuning struct {
	WaitAttempts     int           `mapstructure:"wait_attempts"`
	WaitDelay        time.Duration `mapstructure:"wait_delay"`
	DetourTurn       time.Duration `mapstructure:"detour_turn"`
	DetourForward    time.Duration `mapstructure:"detour_forward"`
	Reverse          time.Duration `mapstructure:"reverse"`
	Settle           time.Duration `mapstructure:"settle"`
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts"`
}

// AnnounceTuning covers the speech timeout estimate.
type AnnounceTuning struct {
	PerChar time.Duration `mapstructure:"per_char"`
	Margin  time.Duration `mapstructure:"margin"`
}

// TuningStore holds the current Tuning loaded from a YAML file and keeps it
// in sync with the file on disk.
type TuningStore struct {
	v *viper.Viper

	mu      sync.RWMutex
	current Tuning
}

// LoadTuning reads the YAML file at path. Environment variables prefixed
// KIBO_ override file values (navigation.step_pause -> KIBO_NAVIGATION_STEP_PAUSE).
func LoadTuning(path string) (*TuningStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KIBO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read tuning %s: %w", path, err)
	}

	s := &TuningStore{v: v}
	t, err := s.decode()
	if err != nil {
		return nil, err
	}
	s.current = t
	return s, nil
}

func (s *TuningStore) decode() (Tuning, error) {
	var t Tuning
	if err := s.v.Unmarshal(&t); err != nil {
		return Tuning{}, fmt.Errorf("config: decode tuning: %w", err)
	}
	return t, nil
}

// Current returns the most recently loaded tuning.
func (s *TuningStore) Current() Tuning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch reloads the file whenever it changes and calls onChange with the new
// values. Decode failures keep the previous tuning.
func (s *TuningStore) Watch(onChange func(Tuning)) {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		t, err := s.decode()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.current = t
		s.mu.Unlock()
		if onChange != nil {
			onChange(t)
		}
	})
	s.v.WatchConfig()
}
