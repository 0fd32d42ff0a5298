package model

import (
	"fmt"
	"time"
)

type ExperimentStatus string

const (
	ExperimentStatusRunning   ExperimentStatus = "running"
	ExperimentStatusCompleted ExperimentStatus = "completed"
)

// MetricSample freezes a page's metrics at a point in time.
type MetricSample struct {
	SnapshotID  int64      `json:"snapshot_id"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Impressions int        `json:"impressions"`
	Clicks      int        `json:"clicks"`
	CTR         string     `json:"ctr"` // percentage string, e.g. "2.50%"
	DateRange   *DateRange `json:"date_range,omitempty"`
}

// Experiment tracks a before/after metadata change on one page URL.
// The state machine is one-way and one-shot: running -> completed.
type Experiment struct {
	ID          int64            `json:"id"`
	WorkspaceID int64            `json:"workspace_id"`
	PageURL     string           `json:"page_url"`
	Status      ExperimentStatus `json:"status"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
	Before      MetricSample     `json:"before"`
	After       *MetricSample    `json:"after,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// CTRChange is the derived delta in percentage points, after - before.
// Valid only on completed experiments.
func (e *Experiment) CTRChange() (float64, error) {
	if e.After == nil {
		return 0, fmt.Errorf("experiment %d has no after sample", e.ID)
	}
	before, err := parseCTR(e.Before.CTR)
	if err != nil {
		return 0, err
	}
	after, err := parseCTR(e.After.CTR)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// ComputeCTR formats clicks/impressions as a percentage string with two
// decimal places. Zero impressions yields "0%" rather than dividing.
func ComputeCTR(clicks, impressions int) string {
	if impressions == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(clicks)/float64(impressions)*100)
}

func parseCTR(s string) (float64, error) {
	var v float64
	if s == "0%" {
		return 0, nil
	}
	if _, err := fmt.Sscanf(s, "%f%%", &v); err != nil {
		return 0, fmt.Errorf("parsing ctr %q: %w", s, err)
	}
	return v, nil
}
