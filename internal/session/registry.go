// Package session owns the per-chat slot namespace: session allocation,
// eviction, lookup, per-channel active pointers and startup repair.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArtifactCleaner removes on-disk state the agent keeps for a continuation
// token. It is called after a session holding the token is deleted and no
// other session references it.
type ArtifactCleaner interface {
	Clean(ctx context.Context, token string) error
}

// Opts configures a Registry.
type Opts struct {
	DB      *gorm.DB
	Cleaner ArtifactCleaner  // optional
	Logger  *logger.Logger   // optional
	Now     func() time.Time // optional, defaults to time.Now().UTC()
}

// Registry is the session store. All mutations are serialized by an
// in-process mutex and run inside a single transaction each.
type Registry struct {
	db      *gorm.DB
	cleaner ArtifactCleaner
	log     *logger.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewRegistry validates opts and returns a Registry.
func NewRegistry(opts Opts) (*Registry, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("session: db is required")
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		db:      opts.DB,
		cleaner: opts.Cleaner,
		log:     logger.OrNop(opts.Logger).With("component", "session"),
		now:     now,
	}, nil
}

// mutation carries bookkeeping out of a transaction: the continuation
// tokens of deleted sessions, checked for cleanup after commit.
type mutation struct {
	freedTokens []string
}

// mutate runs fn in a transaction under the registry lock and then cleans
// artifacts for tokens that became unreferenced.
func (r *Registry) mutate(ctx context.Context, op string, fn func(tx *gorm.DB, m *mutation) error) error {
	r.mu.Lock()
	var m mutation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, &m)
	})
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: %s: %w", op, err)
	}
	r.cleanArtifacts(ctx, m.freedTokens)
	return nil
}

func (r *Registry) cleanArtifacts(ctx context.Context, tokens []string) {
	if r.cleaner == nil {
		return
	}
	for _, tok := range tokens {
		var n int64
		if err := r.db.WithContext(ctx).Model(&models.Session{}).
			Where("continuation_token = ?", tok).Count(&n).Error; err != nil {
			r.log.Warn("artifact reference check failed", "token", tok, "error", err)
			continue
		}
		if n > 0 {
			continue
		}
		if err := r.cleaner.Clean(ctx, tok); err != nil {
			r.log.Warn("artifact cleanup failed", "token", tok, "error", err)
		}
	}
}

// GetOrCreateActive returns the session the channel currently targets.
// A non-shared channel without its own pointer adopts the shared pointer.
// When nothing resolves, a session is allocated round-robin and activated.
func (r *Registry) GetOrCreateActive(ctx context.Context, chatID string, channel models.Channel) (*models.Session, error) {
	if err := checkArgs(chatID, channel); err != nil {
		return nil, err
	}
	var out *models.Session
	err := r.mutate(ctx, "get or create active", func(tx *gorm.DB, m *mutation) error {
		s, err := r.pointerSession(tx, chatID, channel)
		if err != nil {
			return err
		}
		if s != nil {
			out = s
			return nil
		}
		if channel != models.ChannelShared {
			s, err = r.pointerSession(tx, chatID, models.ChannelShared)
			if err != nil {
				return err
			}
			if s != nil {
				out = s
				return r.setPointer(tx, chatID, channel, s.ID)
			}
		}
		slot, err := r.allocateSlot(tx, chatID)
		if err != nil {
			return err
		}
		if out, err = r.createAt(tx, m, chatID, slot, nil); err != nil {
			return err
		}
		return r.activate(tx, chatID, channel, out.ID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAndActivate allocates the next round-robin slot, evicting its
// occupant, and activates the fresh session for channel.
func (r *Registry) CreateAndActivate(ctx context.Context, chatID string, channel models.Channel) (*models.Session, error) {
	if err := checkArgs(chatID, channel); err != nil {
		return nil, err
	}
	var out *models.Session
	err := r.mutate(ctx, "create", func(tx *gorm.DB, m *mutation) error {
		slot, err := r.allocateSlot(tx, chatID)
		if err != nil {
			return err
		}
		if out, err = r.createAt(tx, m, chatID, slot, nil); err != nil {
			return err
		}
		return r.activate(tx, chatID, channel, out.ID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecreateAtSlot replaces whatever occupies slot with a fresh session and
// activates it. The round-robin counter is left alone.
func (r *Registry) RecreateAtSlot(ctx context.Context, chatID, slot string, channel models.Channel) (*models.Session, error) {
	if err := checkArgs(chatID, channel); err != nil {
		return nil, err
	}
	letter, ok := NormalizeSlot(slot)
	if !ok {
		return nil, fmt.Errorf("session: recreate: invalid slot %q: %w", slot, errs.ErrValidation)
	}
	var out *models.Session
	err := r.mutate(ctx, "recreate", func(tx *gorm.DB, m *mutation) error {
		var err error
		if out, err = r.createAt(tx, m, chatID, letter, nil); err != nil {
			return err
		}
		return r.activate(tx, chatID, channel, out.ID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetActive points channel at target (a session id, slot letter or
// unambiguous id prefix). An unresolved bare slot letter creates a session
// there. A session from another chat is moved into chatID, evicting the
// occupant of its slot letter.
func (r *Registry) SetActive(ctx context.Context, chatID, target string, channel models.Channel) (*models.Session, error) {
	if err := checkArgs(chatID, channel); err != nil {
		return nil, err
	}
	var out *models.Session
	err := r.mutate(ctx, "set active", func(tx *gorm.DB, m *mutation) error {
		s, err := r.resolveOrCreate(tx, m, chatID, target)
		if err != nil {
			return err
		}
		if s.ChatID != chatID {
			if s, err = r.move(tx, m, s, chatID); err != nil {
				return err
			}
		}
		out = s
		return r.activate(tx, chatID, channel, s.ID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureForTarget resolves target for non-interactive callers. Active
// pointers are never consulted or written. An unresolved target must be a
// bare slot letter, in which case a session is created at that slot. A
// session id belonging to another chat is not found; only SetActive moves
// sessions between chats.
func (r *Registry) EnsureForTarget(ctx context.Context, chatID, target string) (*models.Session, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("session: ensure: chat id is required: %w", errs.ErrValidation)
	}
	var out *models.Session
	err := r.mutate(ctx, "ensure", func(tx *gorm.DB, m *mutation) error {
		s, err := r.resolveOrCreate(tx, m, chatID, target)
		if err != nil {
			return err
		}
		if s.ChatID != chatID {
			return fmt.Errorf("session %s belongs to another chat: %w", s.ID, errs.ErrNotFound)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BindContinuation stores token on the session at slot, creating the
// session if the slot is empty.
func (r *Registry) BindContinuation(ctx context.Context, chatID, slot, token string) (*models.Session, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("session: bind: chat id is required: %w", errs.ErrValidation)
	}
	letter, ok := NormalizeSlot(slot)
	if !ok {
		return nil, fmt.Errorf("session: bind: invalid slot %q: %w", slot, errs.ErrValidation)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("session: bind: token is required: %w", errs.ErrValidation)
	}
	var out *models.Session
	err := r.mutate(ctx, "bind", func(tx *gorm.DB, m *mutation) error {
		existing, err := r.atSlot(tx, chatID, letter)
		if err != nil {
			return err
		}
		if existing == nil {
			out, err = r.createAt(tx, m, chatID, letter, &token)
			return err
		}
		if err := tx.Model(existing).Updates(map[string]interface{}{
			"continuation_token": token,
			"updated_at":         r.now(),
		}).Error; err != nil {
			return err
		}
		out, err = r.byID(tx, existing.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetPlanMode toggles the plan-mode prompt modifier on a session.
func (r *Registry) SetPlanMode(ctx context.Context, sessionID string, on bool) (*models.Session, error) {
	return r.update(ctx, "set plan mode", sessionID, map[string]interface{}{"plan_mode": on})
}

// ReasoningEfforts lists the accepted reasoning-effort hints. The empty
// string clears the hint.
var ReasoningEfforts = []string{"minimal", "low", "medium", "high"}

// SetReasoningEffort sets or clears the reasoning-effort hint on a session.
func (r *Registry) SetReasoningEffort(ctx context.Context, sessionID, effort string) (*models.Session, error) {
	effort = strings.ToLower(strings.TrimSpace(effort))
	if effort != "" && !validEffort(effort) {
		return nil, fmt.Errorf("session: reasoning effort %q not one of %s: %w",
			effort, strings.Join(ReasoningEfforts, ", "), errs.ErrValidation)
	}
	return r.update(ctx, "set reasoning effort", sessionID, map[string]interface{}{"reasoning_effort": effort})
}

func validEffort(e string) bool {
	for _, v := range ReasoningEfforts {
		if v == e {
			return true
		}
	}
	return false
}

func (r *Registry) update(ctx context.Context, op, sessionID string, fields map[string]interface{}) (*models.Session, error) {
	var out *models.Session
	err := r.mutate(ctx, op, func(tx *gorm.DB, m *mutation) error {
		s, err := r.byID(tx, sessionID)
		if err != nil {
			return err
		}
		fields["updated_at"] = r.now()
		if err := tx.Model(s).Updates(fields).Error; err != nil {
			return err
		}
		out, err = r.byID(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*models.Session, error) {
	s, err := r.byID(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	return s, nil
}

// List returns the sessions of a chat ordered by slot letter.
func (r *Registry) List(ctx context.Context, chatID string) ([]models.Session, error) {
	var out []models.Session
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("slot ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return out, nil
}

// Active returns the session channel targets, falling back to the shared
// pointer. Unlike GetOrCreateActive it never writes.
func (r *Registry) Active(ctx context.Context, chatID string, channel models.Channel) (*models.Session, error) {
	if err := checkArgs(chatID, channel); err != nil {
		return nil, err
	}
	db := r.db.WithContext(ctx)
	s, err := r.pointerSession(db, chatID, channel)
	if err != nil {
		return nil, fmt.Errorf("session: active: %w", err)
	}
	if s == nil && channel != models.ChannelShared {
		if s, err = r.pointerSession(db, chatID, models.ChannelShared); err != nil {
			return nil, fmt.Errorf("session: active: %w", err)
		}
	}
	if s == nil {
		return nil, fmt.Errorf("session: active: no session for %s/%s: %w", chatID, channel, errs.ErrNotFound)
	}
	return s, nil
}

func checkArgs(chatID string, channel models.Channel) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("session: chat id is required: %w", errs.ErrValidation)
	}
	if !channel.Valid() {
		return fmt.Errorf("session: unknown channel %q: %w", channel, errs.ErrValidation)
	}
	return nil
}

// --- transaction-scoped helpers ---

func (r *Registry) byID(tx *gorm.DB, id string) (*models.Session, error) {
	var s models.Session
	err := tx.Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %q: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Registry) atSlot(tx *gorm.DB, chatID, slot string) (*models.Session, error) {
	var s models.Session
	err := tx.Where("chat_id = ? AND slot = ?", chatID, slot).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// pointerSession follows a (chat, channel) pointer. A pointer to a missing
// session, or to a session now owned by another chat, yields nil.
func (r *Registry) pointerSession(tx *gorm.DB, chatID string, channel models.Channel) (*models.Session, error) {
	var p models.ActiveSession
	err := tx.Where("chat_id = ? AND channel = ?", chatID, channel).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s models.Session
	err = tx.Where("id = ? AND chat_id = ?", p.SessionID, chatID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Registry) setPointer(tx *gorm.DB, chatID string, channel models.Channel, sessionID string) error {
	p := models.ActiveSession{ChatID: chatID, Channel: channel, SessionID: sessionID, UpdatedAt: r.now()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "channel"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_id", "updated_at"}),
	}).Create(&p).Error
}

// activate points channel at sessionID. Non-shared activations also move
// the shared pointer so other channels adopt the latest choice.
func (r *Registry) activate(tx *gorm.DB, chatID string, channel models.Channel, sessionID string) error {
	if err := r.setPointer(tx, chatID, channel, sessionID); err != nil {
		return err
	}
	if channel == models.ChannelShared {
		return nil
	}
	return r.setPointer(tx, chatID, models.ChannelShared, sessionID)
}

// allocateSlot returns the next round-robin slot for chatID and advances
// the counter with a compare-and-set update so concurrent writers outside
// this process cannot hand out the same index twice.
func (r *Registry) allocateSlot(tx *gorm.DB, chatID string) (string, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ChatMeta{ChatID: chatID, NextSlot: 0}).Error; err != nil {
		return "", fmt.Errorf("init slot counter: %w", err)
	}
	for attempt := 0; attempt < 5; attempt++ {
		var meta models.ChatMeta
		if err := tx.Where("chat_id = ?", chatID).First(&meta).Error; err != nil {
			return "", fmt.Errorf("read slot counter: %w", err)
		}
		cur := meta.NextSlot
		if cur < 0 || cur >= MaxSessions {
			cur = 0
		}
		res := tx.Model(&models.ChatMeta{}).
			Where("chat_id = ? AND next_slot = ?", chatID, meta.NextSlot).
			Update("next_slot", (cur+1)%MaxSessions)
		if res.Error != nil {
			return "", fmt.Errorf("advance slot counter: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return SlotAt(cur), nil
		}
	}
	return "", fmt.Errorf("advance slot counter for %q: lost too many races", chatID)
}

// createAt evicts the occupant of (chatID, slot) and inserts a fresh
// session there.
func (r *Registry) createAt(tx *gorm.DB, m *mutation, chatID, slot string, token *string) (*models.Session, error) {
	occupant, err := r.atSlot(tx, chatID, slot)
	if err != nil {
		return nil, err
	}
	if occupant != nil {
		if err := r.deleteSession(tx, m, occupant); err != nil {
			return nil, err
		}
	}
	id, err := NewID(chatID, slot)
	if err != nil {
		return nil, err
	}
	now := r.now()
	s := &models.Session{
		ID:                id,
		ChatID:            chatID,
		Slot:              slot,
		ContinuationToken: token,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.Create(s).Error; err != nil {
		return nil, fmt.Errorf("create session at %s/%s: %w", chatID, slot, err)
	}
	r.log.Debug("session created", "session_id", s.ID, "chat_id", chatID, "slot", slot)
	return s, nil
}

// deleteSession removes a session with its history and every pointer to it.
func (r *Registry) deleteSession(tx *gorm.DB, m *mutation, s *models.Session) error {
	if err := tx.Where("session_id = ?", s.ID).Delete(&models.RunRecord{}).Error; err != nil {
		return fmt.Errorf("delete history of %s: %w", s.ID, err)
	}
	if err := tx.Where("session_id = ?", s.ID).Delete(&models.ActiveSession{}).Error; err != nil {
		return fmt.Errorf("delete pointers to %s: %w", s.ID, err)
	}
	if err := tx.Where("id = ?", s.ID).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("delete session %s: %w", s.ID, err)
	}
	if tok := s.Token(); tok != "" {
		m.freedTokens = append(m.freedTokens, tok)
	}
	r.log.Info("session evicted", "session_id", s.ID, "chat_id", s.ChatID, "slot", s.Slot)
	return nil
}

// move reparents s into chatID at its own slot letter. The destination
// occupant is evicted and the source chat's pointers to s are dropped.
func (r *Registry) move(tx *gorm.DB, m *mutation, s *models.Session, chatID string) (*models.Session, error) {
	occupant, err := r.atSlot(tx, chatID, s.Slot)
	if err != nil {
		return nil, err
	}
	if occupant != nil {
		if err := r.deleteSession(tx, m, occupant); err != nil {
			return nil, err
		}
	}
	if err := tx.Where("chat_id = ? AND session_id = ?", s.ChatID, s.ID).
		Delete(&models.ActiveSession{}).Error; err != nil {
		return nil, fmt.Errorf("drop source pointers of %s: %w", s.ID, err)
	}
	if err := tx.Model(s).Updates(map[string]interface{}{
		"chat_id":    chatID,
		"updated_at": r.now(),
	}).Error; err != nil {
		return nil, fmt.Errorf("move %s to %s: %w", s.ID, chatID, err)
	}
	r.log.Info("session moved", "session_id", s.ID, "from", s.ChatID, "to", chatID, "slot", s.Slot)
	return r.byID(tx, s.ID)
}

// resolveOrCreate resolves target in chatID, creating a session when the
// unresolved target is a bare slot letter.
func (r *Registry) resolveOrCreate(tx *gorm.DB, m *mutation, chatID, target string) (*models.Session, error) {
	s, err := resolve(tx, target, chatID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	letter, ok := NormalizeSlot(target)
	if !ok {
		return nil, err
	}
	return r.createAt(tx, m, chatID, letter, nil)
}
