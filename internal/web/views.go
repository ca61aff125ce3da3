package web

import (
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
)

type sessionView struct {
	ID                string    `json:"id"`
	ChatID            string    `json:"chat_id"`
	Slot              string    `json:"slot"`
	ContinuationToken string    `json:"continuation_token,omitempty"`
	PlanMode          bool      `json:"plan_mode"`
	ReasoningEffort   string    `json:"reasoning_effort,omitempty"`
	Active            bool      `json:"active,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newSessionView(s *models.Session) sessionView {
	return sessionView{
		ID:                s.ID,
		ChatID:            s.ChatID,
		Slot:              s.Slot,
		ContinuationToken: s.Token(),
		PlanMode:          s.PlanMode,
		ReasoningEffort:   s.ReasoningEffort,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

type runView struct {
	ID         uint      `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	Error      *string   `json:"error,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

func newRunView(r *models.RunRecord) runView {
	return runView{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Input:      r.Input,
		Output:     r.Output,
		Error:      r.Error,
		ExitCode:   r.ExitCode,
		DurationMs: r.DurationMs,
	}
}

type queuedView struct {
	ID                string     `json:"id"`
	ChatID            string     `json:"chat_id"`
	SessionID         string     `json:"session_id"`
	SessionSlot       string     `json:"session_slot"`
	Prompt            string     `json:"prompt"`
	Status            string     `json:"status"`
	Output            string     `json:"output,omitempty"`
	ExitCode          *int       `json:"exit_code,omitempty"`
	DurationMs        int64      `json:"duration_ms,omitempty"`
	ContinuationToken string     `json:"continuation_token,omitempty"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

func newQueuedView(j *models.QueuedPromptJob) queuedView {
	return queuedView{
		ID:                j.ID,
		ChatID:            j.ChatID,
		SessionID:         j.SessionID,
		SessionSlot:       j.SessionSlot,
		Prompt:            j.Prompt,
		Status:            j.Status,
		Output:            j.Output,
		ExitCode:          j.ExitCode,
		DurationMs:        j.DurationMs,
		ContinuationToken: j.ContinuationToken,
		Error:             j.Error,
		CreatedAt:         j.CreatedAt,
		StartedAt:         j.StartedAt,
		FinishedAt:        j.FinishedAt,
	}
}

type eventView struct {
	Kind   string      `json:"kind"`
	JobID  string      `json:"job_id"`
	Job    *queuedView `json:"job,omitempty"`
	Stream string      `json:"stream,omitempty"`
	Chunk  string      `json:"chunk,omitempty"`
}

func newEventView(ev queue.Event) eventView {
	v := eventView{Kind: ev.Kind, JobID: ev.JobID, Stream: ev.Stream, Chunk: ev.Chunk}
	if ev.Job != nil {
		jv := newQueuedView(ev.Job)
		v.Job = &jv
	}
	return v
}

type scheduleView struct {
	ID            string     `json:"id"`
	ChatID        string     `json:"chat_id"`
	SessionTarget string     `json:"session_target"`
	CronExpr      string     `json:"cron_expr"`
	Prompt        string     `json:"prompt"`
	Timezone      string     `json:"timezone,omitempty"`
	Enabled       bool       `json:"enabled"`
	RunOnce       bool       `json:"run_once"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastStatus    string     `json:"last_status,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

func newScheduleView(j *models.ScheduledJob) scheduleView {
	return scheduleView{
		ID:            j.ID,
		ChatID:        j.ChatID,
		SessionTarget: j.SessionTarget,
		CronExpr:      j.CronExpr,
		Prompt:        j.Prompt,
		Timezone:      j.Timezone,
		Enabled:       j.Enabled,
		RunOnce:       j.RunOnce,
		NextRunAt:     j.NextRunAt,
		LastRunAt:     j.LastRunAt,
		LastStatus:    j.LastStatus,
		LastError:     j.LastError,
	}
}
