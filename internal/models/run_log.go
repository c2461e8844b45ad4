package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusScanned   = "scanned"
	RunStatusCompleted = "completed"
	RunStatusError     = "error"
)

// Item outcomes recorded in a run.
const (
	OutcomeDispatched       = "dispatched"
	OutcomeSucceeded        = "succeeded"
	OutcomeFailed           = "failed"
	OutcomeSkipped          = "skipped"
	OutcomeSkippedDuplicate = "skipped-duplicate"
)

// RunResult is the outcome of one processed item.
type RunResult struct {
	Origin    string `json:"origin"`
	Label     string `json:"label"`
	Item      string `json:"item"`
	Outcome   string `json:"outcome"`
	ArticleID uint   `json:"article_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunLog is the append-only record of one orchestrator invocation.
type RunLog struct {
	ID         uint                           `gorm:"primaryKey" json:"id"`
	RunID      string                         `gorm:"uniqueIndex;size:36;not null" json:"run_id"`
	Trigger    string                         `gorm:"size:20" json:"trigger"`
	StartedAt  time.Time                      `gorm:"index" json:"started_at"`
	DurationMs int64                          `json:"duration_ms"`
	Processed  int                            `json:"processed"`
	Dispatched int                            `json:"dispatched"`
	Succeeded  int                            `json:"succeeded"`
	Failed     int                            `json:"failed"`
	Skipped    int                            `json:"skipped"`
	Status     string                         `gorm:"size:20;index" json:"status"`
	Error      string                         `gorm:"type:text" json:"error,omitempty"`
	Results    datatypes.JSONSlice[RunResult] `json:"results"`
	Logs       datatypes.JSONSlice[string]    `json:"logs"`
	CreatedAt  time.Time                      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time                      `gorm:"autoUpdateTime" json:"updated_at"`
}
