package models

import "time"

// RunRecord is one completed agent invocation within a session. Rows are
// append-only and ordered by (timestamp, id).
type RunRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SessionID  string    `gorm:"size:64;not null;index:idx_run_session_ts"`
	Timestamp  time.Time `gorm:"not null;index:idx_run_session_ts"`
	Input      string    `gorm:"type:text"`
	Output     string    `gorm:"type:text"`
	Error      *string   `gorm:"type:text"`
	ExitCode   *int
	DurationMs int64
}

// TableName keeps the historical table name.
func (RunRecord) TableName() string { return "run_history" }
