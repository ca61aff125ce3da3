package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
)

// formatJobTable renders scheduled jobs one per line.
func formatJobTable(jobs []models.ScheduledJob) string {
	if len(jobs) == 0 {
		return "No scheduled jobs.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-3s %-10s %-6s %-20s %-20s %-6s %s\n",
		"ID", "ON", "CHAT", "TARGET", "SCHEDULE", "NEXT RUN", "LAST", "PROMPT")
	for _, j := range jobs {
		on := "yes"
		if !j.Enabled {
			on = "no"
		}
		schedule := j.CronExpr
		if j.RunOnce {
			schedule = "once"
		}
		last := j.LastStatus
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(&b, "%-10s %-3s %-10s %-6s %-20s %-20s %-6s %s\n",
			shortID(j.ID), on, truncate(j.ChatID, 10), j.SessionTarget, truncate(schedule, 20),
			formatTime(j.NextRunAt), last, truncate(oneLine(j.Prompt), 40))
	}
	return b.String()
}

// formatTime renders t in local time, or "-" when unset.
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to max runes, marking the cut with "…".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// chatIDs returns the chats of a bindings document in sorted order.
func chatIDs(b session.Bindings) []string {
	out := make([]string, 0, len(b))
	for chatID := range b {
		out = append(out, chatID)
	}
	sort.Strings(out)
	return out
}
