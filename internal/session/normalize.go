package session

import (
	"context"
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// InitReport summarizes what Init repaired.
type InitReport struct {
	Evicted          int
	Reassigned       int
	CountersRepaired int
	PointersRepaired int
	PointersDeleted  int
	SharedCreated    int
	OrphanRuns       int64
}

// Changed reports whether Init modified anything.
func (rep InitReport) Changed() bool {
	return rep != InitReport{}
}

// Init repairs the store after a crash or an out-of-band edit. For every
// chat it evicts sessions beyond the 26 most recently updated, reassigns
// duplicate or invalid slot letters, repairs the slot counter, repoints or
// deletes dangling active pointers and makes sure a shared pointer exists.
// Run history rows without a session are deleted. Running Init on a
// consistent store changes nothing.
func (r *Registry) Init(ctx context.Context) (InitReport, error) {
	var rep InitReport
	err := r.mutate(ctx, "init", func(tx *gorm.DB, m *mutation) error {
		var chats []string
		if err := tx.Model(&models.Session{}).Distinct("chat_id").Pluck("chat_id", &chats).Error; err != nil {
			return fmt.Errorf("list chats: %w", err)
		}
		for _, chatID := range chats {
			if err := r.normalizeChat(tx, m, chatID, &rep); err != nil {
				return fmt.Errorf("chat %q: %w", chatID, err)
			}
		}

		// Pointers in chats that no longer have any session.
		res := tx.Where("chat_id NOT IN (?)", tx.Model(&models.Session{}).Distinct("chat_id")).
			Delete(&models.ActiveSession{})
		if res.Error != nil {
			return fmt.Errorf("delete pointers of empty chats: %w", res.Error)
		}
		rep.PointersDeleted += int(res.RowsAffected)

		res = tx.Where("session_id NOT IN (?)", tx.Model(&models.Session{}).Select("id")).
			Delete(&models.RunRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete orphan history: %w", res.Error)
		}
		rep.OrphanRuns = res.RowsAffected
		return nil
	})
	if err != nil {
		return InitReport{}, err
	}
	if rep.Changed() {
		r.log.Info("session store normalized",
			"evicted", rep.Evicted,
			"reassigned", rep.Reassigned,
			"counters", rep.CountersRepaired,
			"pointers_repaired", rep.PointersRepaired,
			"pointers_deleted", rep.PointersDeleted,
			"shared_created", rep.SharedCreated,
			"orphan_runs", rep.OrphanRuns)
	}
	return rep, nil
}

func (r *Registry) normalizeChat(tx *gorm.DB, m *mutation, chatID string, rep *InitReport) error {
	var sessions []models.Session
	if err := tx.Where("chat_id = ?", chatID).
		Order("updated_at DESC").Order("id DESC").Find(&sessions).Error; err != nil {
		return err
	}

	// (a) overflow
	if len(sessions) > MaxSessions {
		for i := range sessions[MaxSessions:] {
			if err := r.deleteSession(tx, m, &sessions[MaxSessions+i]); err != nil {
				return err
			}
			rep.Evicted++
		}
		sessions = sessions[:MaxSessions]
	}

	// (b) slot letters: most recent sessions keep theirs.
	used := make(map[string]bool, MaxSessions)
	var reassign []int
	var recase []int
	for i := range sessions {
		letter, ok := NormalizeSlot(sessions[i].Slot)
		if !ok || used[letter] {
			reassign = append(reassign, i)
			continue
		}
		used[letter] = true
		if letter != sessions[i].Slot {
			recase = append(recase, i)
		}
	}
	// Rows leaving a letter move first so case fixes never collide.
	for _, i := range reassign {
		letter := firstFree(used)
		used[letter] = true
		if err := tx.Model(&models.Session{}).Where("id = ?", sessions[i].ID).
			Update("slot", letter).Error; err != nil {
			return fmt.Errorf("reassign %s: %w", sessions[i].ID, err)
		}
		r.log.Warn("session slot reassigned", "session_id", sessions[i].ID, "from", sessions[i].Slot, "to", letter)
		sessions[i].Slot = letter
		rep.Reassigned++
	}
	for _, i := range recase {
		letter, _ := NormalizeSlot(sessions[i].Slot)
		if err := tx.Model(&models.Session{}).Where("id = ?", sessions[i].ID).
			Update("slot", letter).Error; err != nil {
			return fmt.Errorf("normalize slot of %s: %w", sessions[i].ID, err)
		}
		sessions[i].Slot = letter
		rep.Reassigned++
	}

	// (c) slot counter
	var metas []models.ChatMeta
	if err := tx.Where("chat_id = ?", chatID).Limit(1).Find(&metas).Error; err != nil {
		return err
	}
	if len(metas) == 1 && (metas[0].NextSlot < 0 || metas[0].NextSlot >= MaxSessions) {
		next := 0
		if len(used) < MaxSessions {
			next = SlotIndex(firstFree(used))
		}
		if err := tx.Model(&models.ChatMeta{}).Where("chat_id = ?", chatID).
			Update("next_slot", next).Error; err != nil {
			return fmt.Errorf("repair slot counter: %w", err)
		}
		rep.CountersRepaired++
	}

	// (d) pointers: only dangling or missing ones move to the newest session.
	live := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		live[s.ID] = true
	}
	mostRecent := sessions[0].ID

	var pointers []models.ActiveSession
	if err := tx.Where("chat_id = ?", chatID).Find(&pointers).Error; err != nil {
		return err
	}
	haveShared := false
	for _, p := range pointers {
		if !p.Channel.Valid() {
			if err := tx.Where("chat_id = ? AND channel = ?", chatID, p.Channel).
				Delete(&models.ActiveSession{}).Error; err != nil {
				return err
			}
			rep.PointersDeleted++
			continue
		}
		if p.Channel == models.ChannelShared {
			haveShared = true
		}
		if live[p.SessionID] {
			continue
		}
		if err := r.setPointer(tx, chatID, p.Channel, mostRecent); err != nil {
			return fmt.Errorf("repoint %s: %w", p.Channel, err)
		}
		rep.PointersRepaired++
	}
	if !haveShared {
		if err := r.setPointer(tx, chatID, models.ChannelShared, mostRecent); err != nil {
			return fmt.Errorf("create shared pointer: %w", err)
		}
		rep.SharedCreated++
	}
	return nil
}

func firstFree(used map[string]bool) string {
	for i := 0; i < MaxSessions; i++ {
		if l := SlotAt(i); !used[l] {
			return l
		}
	}
	return ""
}
