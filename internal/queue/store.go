// Package queue executes prompts asynchronously. Rows in queued_prompt_jobs
// move pending -> running -> completed|failed; a bounded worker pool claims
// pending rows oldest first and subscribers follow each job's transitions.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// StoreOpts configures a Store.
type StoreOpts struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Store persists queued prompt jobs.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore returns a Store backed by opts.DB.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("queue: db is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{db: opts.DB, now: opts.Now}, nil
}

// EnqueueRequest describes a prompt bound to an already resolved session.
type EnqueueRequest struct {
	ChatID      string
	SessionID   string
	SessionSlot string
	Prompt      string
}

// Outcome is the result stored on a finished job.
type Outcome struct {
	Output            string
	ExitCode          *int
	DurationMs        int64
	ContinuationToken string
}

func (s *Store) clock() time.Time { return s.now().UTC() }

// newID returns a time-ordered id so rows created in the same instant
// still sort in insertion order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Enqueue inserts a pending job.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*models.QueuedPromptJob, error) {
	var missing []string
	if strings.TrimSpace(req.ChatID) == "" {
		missing = append(missing, "chat id")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		missing = append(missing, "session id")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("queue: enqueue: %s required: %w", strings.Join(missing, ", "), errs.ErrValidation)
	}

	now := s.clock()
	job := &models.QueuedPromptJob{
		ID:          newID(),
		ChatID:      req.ChatID,
		SessionID:   req.SessionID,
		SessionSlot: req.SessionSlot,
		Prompt:      req.Prompt,
		Status:      models.QueueStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("queue: enqueue: %w", err)
	}
	return job, nil
}

// Get loads a job by id.
func (s *Store) Get(ctx context.Context, id string) (*models.QueuedPromptJob, error) {
	var job models.QueuedPromptJob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("queue: job %q: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get %s: %w", id, err)
	}
	return &job, nil
}

// List returns the newest jobs first. An empty chatID lists every chat;
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, chatID string, limit int) ([]models.QueuedPromptJob, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if chatID != "" {
		q = q.Where("chat_id = ?", chatID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var jobs []models.QueuedPromptJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	return jobs, nil
}

// ClaimPending moves one pending job to running. It reports false, with no
// error, when the row is no longer pending because another worker won.
func (s *Store) ClaimPending(ctx context.Context, id string) (bool, error) {
	now := s.clock()
	res := s.db.WithContext(ctx).Model(&models.QueuedPromptJob{}).
		Where("id = ? AND status = ?", id, models.QueueStatusPending).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusRunning,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("queue: claim %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ClaimNextPending claims the oldest pending job. It returns nil when the
// queue is empty or the candidate was claimed concurrently.
func (s *Store) ClaimNextPending(ctx context.Context) (*models.QueuedPromptJob, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.QueuedPromptJob{}).
		Where("status = ?", models.QueueStatusPending).
		Order("created_at ASC").Order("id ASC").
		Limit(1).Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("queue: find pending: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	ok, err := s.ClaimPending(ctx, ids[0])
	if err != nil || !ok {
		return nil, err
	}
	return s.Get(ctx, ids[0])
}

// MarkCompleted records a successful run. Finishing an already terminal
// job is a no-op.
func (s *Store) MarkCompleted(ctx context.Context, id string, out Outcome) (*models.QueuedPromptJob, error) {
	return s.finish(ctx, id, models.QueueStatusCompleted, "", out)
}

// MarkFailed records a failed run. A pending job may be failed directly.
// Finishing an already terminal job is a no-op.
func (s *Store) MarkFailed(ctx context.Context, id, errText string, out Outcome) (*models.QueuedPromptJob, error) {
	return s.finish(ctx, id, models.QueueStatusFailed, errText, out)
}

func (s *Store) finish(ctx context.Context, id, status, errText string, out Outcome) (*models.QueuedPromptJob, error) {
	from := []string{models.QueueStatusRunning}
	if status == models.QueueStatusFailed {
		from = append(from, models.QueueStatusPending)
	}
	now := s.clock()
	res := s.db.WithContext(ctx).Model(&models.QueuedPromptJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":             status,
			"output":             out.Output,
			"exit_code":          out.ExitCode,
			"duration_ms":        out.DurationMs,
			"continuation_token": out.ContinuationToken,
			"error":              errText,
			"finished_at":        now,
			"updated_at":         now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("queue: mark %s %s: %w", id, status, res.Error)
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 && !job.Terminal() {
		return nil, fmt.Errorf("queue: mark %s %s: job is %s: %w", id, status, job.Status, errs.ErrValidation)
	}
	return job, nil
}

// RecoverStuck resets every running job to pending. It must only be
// called at startup, before any worker runs.
func (s *Store) RecoverStuck(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.QueuedPromptJob{}).
		Where("status = ?", models.QueueStatusRunning).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusPending,
			"started_at": nil,
			"updated_at": s.clock(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("queue: recover stuck: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Prune deletes the oldest terminal jobs until at most maxRows remain.
// Pending and running jobs are never deleted. maxRows <= 0 disables it.
func (s *Store) Prune(ctx context.Context, maxRows int) (int64, error) {
	if maxRows <= 0 {
		return 0, nil
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.QueuedPromptJob{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("queue: prune: count: %w", err)
	}
	excess := int(total) - maxRows
	if excess <= 0 {
		return 0, nil
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&models.QueuedPromptJob{}).
		Where("status IN ?", []string{models.QueueStatusCompleted, models.QueueStatusFailed}).
		Order("created_at ASC").Order("id ASC").
		Limit(excess).Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("queue: prune: select: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.QueuedPromptJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("queue: prune: delete: %w", res.Error)
	}
	return res.RowsAffected, nil
}
