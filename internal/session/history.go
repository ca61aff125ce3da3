package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// AppendRun records a completed run, bumps the session's updated time and
// stores continuationToken when the run produced one. It returns the
// refreshed session.
func (r *Registry) AppendRun(ctx context.Context, sessionID string, run models.RunRecord, continuationToken string) (*models.Session, error) {
	var out *models.Session
	err := r.mutate(ctx, "append run", func(tx *gorm.DB, m *mutation) error {
		if _, err := r.byID(tx, sessionID); err != nil {
			return err
		}
		now := r.now()
		run.ID = 0
		run.SessionID = sessionID
		if run.Timestamp.IsZero() {
			run.Timestamp = now
		}
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		fields := map[string]interface{}{"updated_at": now}
		if tok := strings.TrimSpace(continuationToken); tok != "" {
			fields["continuation_token"] = tok
		}
		if err := tx.Model(&models.Session{}).Where("id = ?", sessionID).Updates(fields).Error; err != nil {
			return err
		}
		var err error
		out, err = r.byID(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListHistory returns up to limit of the most recent runs, oldest first.
// A limit of zero or less returns the whole history.
func (r *Registry) ListHistory(ctx context.Context, sessionID string, limit int) ([]models.RunRecord, error) {
	db := r.db.WithContext(ctx)
	if _, err := r.byID(db, sessionID); err != nil {
		return nil, fmt.Errorf("session: history: %w", err)
	}
	q := db.Where("session_id = ?", sessionID).Order("timestamp DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []models.RunRecord
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("session: history: %w", err)
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}
