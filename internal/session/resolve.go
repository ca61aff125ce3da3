package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// ResolveID maps target to a session id without writing anything.
// Resolution order: exact id (any chat), slot letter, unique id prefix.
// Slot and prefix lookups are limited to chatID when it is non-empty.
func (r *Registry) ResolveID(ctx context.Context, target, chatID string) (string, error) {
	s, err := resolve(r.db.WithContext(ctx), target, chatID)
	if err != nil {
		return "", fmt.Errorf("session: resolve: %w", err)
	}
	return s.ID, nil
}

func resolve(tx *gorm.DB, target, chatID string) (*models.Session, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("empty target: %w", errs.ErrNotFound)
	}

	var exact models.Session
	err := tx.Where("id = ?", target).First(&exact).Error
	if err == nil {
		return &exact, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// A bare slot letter never falls through to prefix matching.
	if letter, ok := NormalizeSlot(target); ok {
		q := tx.Where("slot = ?", letter)
		if chatID != "" {
			q = q.Where("chat_id = ?", chatID)
		}
		return pickOne(q, target, "slot")
	}

	q := tx.Where("id LIKE ? ESCAPE '!'", escapeLike(target)+"%")
	if chatID != "" {
		q = q.Where("chat_id = ?", chatID)
	}
	return pickOne(q, target, "prefix")
}

// pickOne loads at most two candidates; more than one is an error.
func pickOne(q *gorm.DB, target, kind string) (*models.Session, error) {
	var found []models.Session
	if err := q.Order("id ASC").Limit(2).Find(&found).Error; err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s %q: %w", kind, target, errs.ErrNotFound)
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%s %q matches %s and %s: %w", kind, target, found[0].ID, found[1].ID, errs.ErrAmbiguous)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
