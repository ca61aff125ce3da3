package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// Store persists scheduled jobs.
type Store struct {
	db        *gorm.DB
	defaultTZ *time.Location
	now       func() time.Time
}

// StoreOpts configures a Store.
type StoreOpts struct {
	DB              *gorm.DB
	DefaultTimezone string           // IANA name; empty means UTC
	Now             func() time.Time // optional
}

// NewStore validates opts and returns a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("scheduler: db is required")
	}
	loc, err := loadLocation(opts.DefaultTimezone, time.UTC)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: opts.DB, defaultTZ: loc, now: now}, nil
}

// JobSpec describes a recurring job.
type JobSpec struct {
	ChatID   string
	Target   string // slot letter, session id or id prefix
	Cron     string
	Prompt   string
	Timezone string
}

func (sp JobSpec) validate() error {
	var missing []string
	if strings.TrimSpace(sp.ChatID) == "" {
		missing = append(missing, "chat id")
	}
	if strings.TrimSpace(sp.Target) == "" {
		missing = append(missing, "session target")
	}
	if strings.TrimSpace(sp.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("scheduler: %s required: %w", strings.Join(missing, ", "), errs.ErrValidation)
	}
	return nil
}

func (s *Store) location(tz string) (*time.Location, error) {
	return loadLocation(tz, s.defaultTZ)
}

// Add creates an enabled recurring job with next_run_at computed from now.
func (s *Store) Add(ctx context.Context, sp JobSpec) (*models.ScheduledJob, error) {
	if err := sp.validate(); err != nil {
		return nil, err
	}
	loc, err := s.location(sp.Timezone)
	if err != nil {
		return nil, err
	}
	next, err := NextRun(sp.Cron, loc, s.now())
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, sp, strings.TrimSpace(sp.Cron), false, next)
}

// AddOnce creates a run-once job at the minute containing at. The instant
// must be strictly in the future after truncation.
func (s *Store) AddOnce(ctx context.Context, sp JobSpec, at time.Time) (*models.ScheduledJob, error) {
	if err := sp.validate(); err != nil {
		return nil, err
	}
	loc, err := s.location(sp.Timezone)
	if err != nil {
		return nil, err
	}
	at = at.In(loc).Truncate(time.Minute)
	if !at.After(s.now()) {
		return nil, fmt.Errorf("scheduler: one-shot time %s is not in the future: %w",
			at.Format(time.RFC3339), errs.ErrValidation)
	}
	return s.insert(ctx, sp, OnceExpr(at), true, at.UTC())
}

func (s *Store) insert(ctx context.Context, sp JobSpec, expr string, once bool, next time.Time) (*models.ScheduledJob, error) {
	job := &models.ScheduledJob{
		ID:            uuid.NewString(),
		Enabled:       true,
		ChatID:        strings.TrimSpace(sp.ChatID),
		SessionTarget: strings.TrimSpace(sp.Target),
		CronExpr:      expr,
		Prompt:        sp.Prompt,
		Timezone:      strings.TrimSpace(sp.Timezone),
		RunOnce:       once,
		NextRunAt:     &next,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("scheduler: add job: %w", err)
	}
	return job, nil
}

// Get returns a job by id or unique id prefix.
func (s *Store) Get(ctx context.Context, id string) (*models.ScheduledJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("scheduler: get: empty id: %w", errs.ErrNotFound)
	}
	var jobs []models.ScheduledJob
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("scheduler: get %s: %w", id, err)
	}
	if len(jobs) == 1 {
		return &jobs[0], nil
	}
	if err := s.db.WithContext(ctx).Where("id LIKE ? ESCAPE '!'", likePrefix(id)).Limit(2).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("scheduler: get %s: %w", id, err)
	}
	switch len(jobs) {
	case 0:
		return nil, fmt.Errorf("scheduler: job %s: %w", id, errs.ErrNotFound)
	case 1:
		return &jobs[0], nil
	default:
		return nil, fmt.Errorf("scheduler: job prefix %s: %w", id, errs.ErrAmbiguous)
	}
}

// List returns jobs for chatID (all chats when empty), oldest first.
func (s *Store) List(ctx context.Context, chatID string) ([]models.ScheduledJob, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC")
	if chatID != "" {
		q = q.Where("chat_id = ?", chatID)
	}
	var jobs []models.ScheduledJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("scheduler: list: %w", err)
	}
	return jobs, nil
}

// Enable turns a job on and recomputes next_run_at from now.
func (s *Store) Enable(ctx context.Context, id string) (*models.ScheduledJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	loc, err := s.location(job.Timezone)
	if err != nil {
		return nil, err
	}
	next, err := NextRun(job.CronExpr, loc, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).Where("id = ?", job.ID).
		Updates(map[string]interface{}{"enabled": true, "next_run_at": next}).Error; err != nil {
		return nil, fmt.Errorf("scheduler: enable %s: %w", job.ID, err)
	}
	return s.Get(ctx, job.ID)
}

// Disable turns a job off. next_run_at is kept.
func (s *Store) Disable(ctx context.Context, id string) (*models.ScheduledJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).Where("id = ?", job.ID).
		Update("enabled", false).Error; err != nil {
		return nil, fmt.Errorf("scheduler: disable %s: %w", job.ID, err)
	}
	return s.Get(ctx, job.ID)
}

// Remove deletes a job.
func (s *Store) Remove(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", job.ID).Delete(&models.ScheduledJob{}).Error; err != nil {
		return fmt.Errorf("scheduler: remove %s: %w", job.ID, err)
	}
	return nil
}

// Due returns enabled jobs whose next_run_at is at or before now, earliest
// first.
func (s *Store) Due(ctx context.Context, now time.Time) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := s.db.WithContext(ctx).
		Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now.UTC()).
		Order("next_run_at ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("scheduler: due jobs: %w", err)
	}
	return jobs, nil
}

// RecordRun stores the outcome of an attempt. Run-once jobs are deleted;
// recurring jobs get next_run_at recomputed from completedAt.
func (s *Store) RecordRun(ctx context.Context, job *models.ScheduledJob, completedAt time.Time, status, errText string) error {
	db := s.db.WithContext(ctx)
	if job.RunOnce {
		if err := db.Where("id = ?", job.ID).Delete(&models.ScheduledJob{}).Error; err != nil {
			return fmt.Errorf("scheduler: delete run-once %s: %w", job.ID, err)
		}
		return nil
	}

	completedAt = completedAt.UTC()
	fields := map[string]interface{}{
		"last_run_at": completedAt,
		"last_status": status,
		"last_error":  errText,
	}
	loc, err := s.location(job.Timezone)
	var next time.Time
	if err == nil {
		next, err = NextRun(job.CronExpr, loc, completedAt)
	}
	if err != nil {
		// An unschedulable job would otherwise fire on every poll.
		fields["enabled"] = false
		fields["last_status"] = models.JobStatusError
		fields["last_error"] = err.Error()
	} else {
		fields["next_run_at"] = next
	}
	res := db.Model(&models.ScheduledJob{}).Where("id = ?", job.ID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("scheduler: record run %s: %w", job.ID, res.Error)
	}
	return nil
}

// RepairNextRuns fills in next_run_at for enabled jobs that lost it.
func (s *Store) RepairNextRuns(ctx context.Context) (int, error) {
	var jobs []models.ScheduledJob
	if err := s.db.WithContext(ctx).Where("enabled = ? AND next_run_at IS NULL", true).Find(&jobs).Error; err != nil {
		return 0, fmt.Errorf("scheduler: repair: %w", err)
	}
	repaired := 0
	for i := range jobs {
		job := &jobs[i]
		loc, err := s.location(job.Timezone)
		var next time.Time
		if err == nil {
			next, err = NextRun(job.CronExpr, loc, s.now())
		}
		fields := map[string]interface{}{"next_run_at": next}
		if err != nil {
			fields = map[string]interface{}{"enabled": false, "last_status": models.JobStatusError, "last_error": err.Error()}
		}
		if err := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).Where("id = ?", job.ID).
			Updates(fields).Error; err != nil {
			return repaired, fmt.Errorf("scheduler: repair %s: %w", job.ID, err)
		}
		repaired++
	}
	return repaired, nil
}

func likePrefix(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s) + "%"
}
