package models

import "time"

// ActiveSession points a (chat, channel) pair at the session it targets.
type ActiveSession struct {
	ChatID    string  `gorm:"primaryKey;size:128"`
	Channel   Channel `gorm:"primaryKey;size:16"`
	SessionID string  `gorm:"size:64;not null;index"`
	UpdatedAt time.Time
}

// ChatMeta holds per-chat bookkeeping. NextSlot is the round-robin index
// (0-25) of the next slot CreateAndActivate will use.
type ChatMeta struct {
	ChatID   string `gorm:"primaryKey;size:128"`
	NextSlot int    `gorm:"not null;default:0"`
}

// TableName keeps the historical table name.
func (ChatMeta) TableName() string { return "chat_meta" }
