package session

import (
	"regexp"
	"testing"
)

func TestNormalizeSlot(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"A", "A", true},
		{"z", "Z", true},
		{" q ", "Q", true},
		{"", "", false},
		{"AB", "", false},
		{"1", "", false},
		{"é", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeSlot(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeSlot(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSlotAt_Wraps(t *testing.T) {
	if SlotAt(0) != "A" || SlotAt(25) != "Z" || SlotAt(26) != "A" || SlotAt(-1) != "Z" {
		t.Errorf("SlotAt wrap mismatch: %s %s %s %s", SlotAt(0), SlotAt(25), SlotAt(26), SlotAt(-1))
	}
	if SlotIndex("C") != 2 {
		t.Errorf("SlotIndex(C) = %d, want 2", SlotIndex("C"))
	}
}

func TestNewID_Format(t *testing.T) {
	re := regexp.MustCompile(`^[a-z0-9]{1,12}-[a-z]-[0-9a-f]{8}$`)
	tests := []struct {
		chat, slot, prefix string
	}{
		{"C0123", "B", "c0123-b-"},
		{"slack:T1/C99", "A", "slackt1c99-a-"},
		{"!!!", "Z", "chat-z-"},
		{"averyveryverylongchatidentifier", "K", "averyveryver-k-"},
	}
	for _, tt := range tests {
		id, err := NewID(tt.chat, tt.slot)
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if !re.MatchString(id) {
			t.Errorf("NewID(%q, %q) = %q, bad format", tt.chat, tt.slot, id)
		}
		if id[:len(tt.prefix)] != tt.prefix {
			t.Errorf("NewID(%q, %q) = %q, want prefix %q", tt.chat, tt.slot, id, tt.prefix)
		}
	}

	a, _ := NewID("c", "A")
	b, _ := NewID("c", "A")
	if a == b {
		t.Error("NewID should not repeat")
	}
}
