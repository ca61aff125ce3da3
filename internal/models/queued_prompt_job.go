package models

import "time"

// QueuedPromptJob status values. pending -> running -> completed|failed.
const (
	QueueStatusPending   = "pending"
	QueueStatusRunning   = "running"
	QueueStatusCompleted = "completed"
	QueueStatusFailed    = "failed"
)

// QueuedPromptJob is a prompt submitted for asynchronous execution.
type QueuedPromptJob struct {
	ID                string `gorm:"primaryKey;size:36"`
	ChatID            string `gorm:"size:128;not null;index"`
	SessionID         string `gorm:"size:64;not null"`
	SessionSlot       string `gorm:"size:1"`
	Prompt            string `gorm:"type:text;not null"`
	Status            string `gorm:"size:16;not null;default:pending;index:idx_queue_status_created"`
	Output            string `gorm:"type:text"`
	ExitCode          *int
	DurationMs        int64
	ContinuationToken string    `gorm:"size:128"`
	Error             string    `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"index:idx_queue_status_created"`
	UpdatedAt         time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
}

// Terminal reports whether the job reached completed or failed.
func (j *QueuedPromptJob) Terminal() bool {
	return j.Status == QueueStatusCompleted || j.Status == QueueStatusFailed
}
