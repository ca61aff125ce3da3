package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Letters is the per-chat slot namespace in allocation order.
const Letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// MaxSessions is the number of slots, and so of live sessions, per chat.
const MaxSessions = len(Letters)

// NormalizeSlot upper-cases s and reports whether it is a single A-Z letter.
func NormalizeSlot(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'Z' {
		return "", false
	}
	return s, true
}

// SlotAt returns the letter for a round-robin index, wrapping modulo 26.
func SlotAt(i int) string {
	i %= MaxSessions
	if i < 0 {
		i += MaxSessions
	}
	return Letters[i : i+1]
}

// SlotIndex returns the zero-based index of a valid slot letter.
func SlotIndex(slot string) int {
	return strings.Index(Letters, slot)
}

// chatFragment reduces a chat id to a short lowercase token usable in
// session ids.
func chatFragment(chatID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(chatID) {
		if b.Len() >= 12 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "chat"
	}
	return b.String()
}

// NewID generates a session id of the form <chat>-<slot>-xxxxxxxx.
func NewID(chatID, slot string) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", chatFragment(chatID), strings.ToLower(slot), hex.EncodeToString(b)), nil
}
