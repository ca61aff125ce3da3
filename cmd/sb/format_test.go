package main

import (
	"strings"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a longer string", 8, "a longe…"},
		{"héllo wörld", 5, "héll…"},
		{"ab", 1, "a"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(nil); got != "-" {
		t.Errorf("formatTime(nil) = %q", got)
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	if got := formatTime(&ts); got != "2026-01-02 03:04:05" {
		t.Errorf("formatTime = %q", got)
	}
}

func TestFormatJobTable(t *testing.T) {
	if got := formatJobTable(nil); got != "No scheduled jobs.\n" {
		t.Errorf("empty table = %q", got)
	}
	jobs := []models.ScheduledJob{
		{ID: "0123456789abcdef", Enabled: true, ChatID: "cli", SessionTarget: "A", CronExpr: "0 9 * * *", Prompt: "daily\nreport"},
		{ID: "fedcba98", ChatID: "cli", SessionTarget: "B", RunOnce: true, Prompt: "once", LastStatus: models.JobStatusError},
	}
	out := formatJobTable(jobs)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "01234567 ") || !strings.Contains(lines[1], "daily report") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "once") || !strings.Contains(lines[2], " no ") || !strings.Contains(lines[2], "error") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestChatIDs_Sorted(t *testing.T) {
	got := chatIDs(session.Bindings{"zeta": nil, "alpha": nil, "mid": nil})
	if strings.Join(got, ",") != "alpha,mid,zeta" {
		t.Errorf("chatIDs = %v", got)
	}
}
