package domain

import "time"

// SyncStatus represents the lifecycle state of a sync run.
// A run is terminal once it reaches SyncStatusCompleted or SyncStatusFailed.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncTypeFull is the sync type for a full pagination + reconciliation run.
const SyncTypeFull = "full"

// SyncRun is the durable audit record of one sync run. It is created in the
// running state, mutated as pages are processed, and becomes immutable once
// terminal.
type SyncRun struct {
	ID                string     `gorm:"type:text;primaryKey" json:"id"`
	SyncType          string     `gorm:"type:text;not null;index" json:"sync_type"`
	Status            SyncStatus `gorm:"type:text;default:running;index" json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	TotalRecords      int        `gorm:"default:0" json:"total_records"`
	ProcessedRecords  int        `gorm:"default:0" json:"processed_records"`
	FailedPages       int        `gorm:"default:0" json:"failed_pages"`
	APICalls          int        `gorm:"column:api_calls;default:0" json:"api_calls"`
	LastPageProcessed int        `gorm:"default:0" json:"last_page_processed"`
	DeletedRecords    int        `gorm:"default:0" json:"deleted_records"`
	DeleteFailures    int        `gorm:"default:0" json:"delete_failures"`
	Notes             string     `gorm:"type:text" json:"notes,omitempty"`
	ErrorMessage      string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SyncRun.
func (SyncRun) TableName() string {
	return "sync_runs"
}

// Duration returns the elapsed time of the run, using the completion time for
// terminal runs and the current time for runs still in flight.
func (r *SyncRun) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// IsTerminal reports whether the run has reached a terminal state.
func (r *SyncRun) IsTerminal() bool {
	return r.Status == SyncStatusCompleted || r.Status == SyncStatusFailed
}
