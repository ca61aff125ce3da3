package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zulandar/switchboard/internal/models"
	"gopkg.in/yaml.v3"
)

// Binding is one slot-to-continuation mapping in an export document.
type Binding struct {
	Slot              string `yaml:"slot" json:"slot"`
	ContinuationToken string `yaml:"continuation_token" json:"continuation_token"`
	SessionID         string `yaml:"session_id,omitempty" json:"session_id,omitempty"`
}

// Bindings groups binding lists by chat id.
type Bindings map[string][]Binding

// ImportResult counts how an import was applied.
type ImportResult struct {
	Applied int
	Skipped int
}

// ExportBindings returns the slot bindings of chatID, or of every chat when
// chatID is empty.
func (r *Registry) ExportBindings(ctx context.Context, chatID string) (Bindings, error) {
	q := r.db.WithContext(ctx).Order("chat_id ASC").Order("slot ASC")
	if chatID != "" {
		q = q.Where("chat_id = ?", chatID)
	}
	var sessions []models.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("session: export: %w", err)
	}
	out := make(Bindings)
	for _, s := range sessions {
		out[s.ChatID] = append(out[s.ChatID], Binding{
			Slot:              s.Slot,
			ContinuationToken: s.Token(),
			SessionID:         s.ID,
		})
	}
	return out, nil
}

// ImportBindings applies BindContinuation for every row. Rows with an
// invalid slot or an empty token are skipped.
func (r *Registry) ImportBindings(ctx context.Context, b Bindings) (ImportResult, error) {
	var res ImportResult
	chats := make([]string, 0, len(b))
	for chatID := range b {
		chats = append(chats, chatID)
	}
	sort.Strings(chats)

	for _, chatID := range chats {
		for _, row := range b[chatID] {
			slot, ok := NormalizeSlot(row.Slot)
			if !ok || strings.TrimSpace(row.ContinuationToken) == "" || strings.TrimSpace(chatID) == "" {
				res.Skipped++
				continue
			}
			if _, err := r.BindContinuation(ctx, chatID, slot, row.ContinuationToken); err != nil {
				return res, fmt.Errorf("session: import %s/%s: %w", chatID, slot, err)
			}
			res.Applied++
		}
	}
	return res, nil
}

// MarshalBindings encodes bindings as YAML.
func MarshalBindings(b Bindings) ([]byte, error) {
	data, err := yaml.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("session: marshal bindings: %w", err)
	}
	return data, nil
}

// ParseBindings decodes a YAML bindings document.
func ParseBindings(data []byte) (Bindings, error) {
	var b Bindings
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("session: parse bindings: %w", err)
	}
	if b == nil {
		b = Bindings{}
	}
	return b, nil
}
