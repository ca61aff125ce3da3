package models

import "time"

// Job outcome values stored in ScheduledJob.LastStatus.
const (
	JobStatusOK    = "ok"
	JobStatusError = "error"
)

// ScheduledJob is a recurring or one-shot prompt. SessionTarget is resolved
// lazily at run time and may be a slot letter, a session id, or an id prefix.
type ScheduledJob struct {
	ID            string     `gorm:"primaryKey;size:36"`
	Enabled       bool       `gorm:"index:idx_job_due"`
	ChatID        string     `gorm:"size:128;not null;index"`
	SessionTarget string     `gorm:"size:64;not null"`
	CronExpr      string     `gorm:"size:128;not null"`
	Prompt        string     `gorm:"type:text;not null"`
	Timezone      string     `gorm:"size:64"`
	RunOnce       bool
	NextRunAt     *time.Time `gorm:"index:idx_job_due"`
	LastRunAt     *time.Time
	LastStatus    string `gorm:"size:8"`
	LastError     string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
