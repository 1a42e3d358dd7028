package history

import "time"

// Run is one navigation attempt.
type Run struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	TotalSteps int        `json:"total_steps"`
	StepsDone  int        `json:"steps_done"`
	Completed  bool       `json:"completed"`
	Reason     string     `gorm:"size:255" json:"reason,omitempty"`
	Obstacles  int        `json:"obstacles"`
	Avoidances int        `json:"avoidances"`
}

// RunEvent is a log line or notable event within a run.
type RunEvent struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	RunID   string    `gorm:"index;size:36" json:"run_id"`
	At      time.Time `json:"at"`
	Type    string    `gorm:"size:32" json:"type"`
	Level   string    `gorm:"size:16" json:"level,omitempty"`
	Step    int       `json:"step"`
	Message string    `json:"message"`
}
