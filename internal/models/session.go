package models

import "time"

// Session is a conversation thread bound to one slot letter within one chat.
// ContinuationToken is nil until the first agent run reports one.
type Session struct {
	ID                string  `gorm:"primaryKey;size:64"`
	ChatID            string  `gorm:"size:128;not null;uniqueIndex:idx_chat_slot"`
	Slot              string  `gorm:"size:1;not null;uniqueIndex:idx_chat_slot"`
	ContinuationToken *string `gorm:"size:128;index"`
	PlanMode          bool
	ReasoningEffort   string `gorm:"size:16"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Runs []RunRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// Token returns the continuation token or "" when none is bound.
func (s *Session) Token() string {
	if s == nil || s.ContinuationToken == nil {
		return ""
	}
	return *s.ContinuationToken
}
