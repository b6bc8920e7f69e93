package domain

import (
	"fmt"
	"time"
)

// MonitoringConfig is the per-config policy the scheduler drives.
type MonitoringConfig struct {
	ID               string
	Name             string
	Keywords         []string
	ExcludeKeywords  []string
	GeoUnits         []string
	FrequencyMinutes int
	MaxItemsPerRun   int
	RelevanceFloor   float64
	AnalysisFloor    float64
	LastExecuted     time.Time
	NextExecution    time.Time
	IsActive         bool
}

// Frequency is the minimum interval between two runs.
func (c MonitoringConfig) Frequency() time.Duration {
	return time.Duration(c.FrequencyMinutes) * time.Minute
}

// Due gates the Idle to Running transition. A config that never ran is due.
func (c MonitoringConfig) Due(now time.Time) bool {
	if c.NextExecution.IsZero() {
		return true
	}
	return !now.Before(c.NextExecution)
}

// Advance returns the execution timestamps recorded after a run finishes.
func (c MonitoringConfig) Advance(now time.Time) (last, next time.Time) {
	return now, now.Add(c.Frequency())
}

// Validate checks the operator-editable policy fields.
func (c MonitoringConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("monitoring config: id is required")
	}
	if c.FrequencyMinutes <= 0 {
		return fmt.Errorf("monitoring config %s: frequencyMinutes must be positive", c.ID)
	}
	if c.MaxItemsPerRun < 0 {
		return fmt.Errorf("monitoring config %s: maxItemsPerRun must not be negative", c.ID)
	}
	if c.RelevanceFloor < 0 || c.RelevanceFloor > 10 {
		return fmt.Errorf("monitoring config %s: relevanceFloor out of range", c.ID)
	}
	if c.AnalysisFloor < c.RelevanceFloor {
		return fmt.Errorf("monitoring config %s: analysisFloor %.1f below relevanceFloor %.1f",
			c.ID, c.AnalysisFloor, c.RelevanceFloor)
	}
	return nil
}
