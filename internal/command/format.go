package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/runner"
)

// FormatSession renders a one-line session summary.
func FormatSession(s *models.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "slot %s (`%s`)", s.Slot, s.ID)
	var mods []string
	if s.PlanMode {
		mods = append(mods, "plan")
	}
	if s.ReasoningEffort != "" {
		mods = append(mods, "effort="+s.ReasoningEffort)
	}
	if s.Token() == "" {
		mods = append(mods, "new")
	}
	if len(mods) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(mods, ", "))
	}
	return b.String()
}

// FormatSessionTable renders the sessions of a chat, marking activeID.
func FormatSessionTable(list []models.Session, activeID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Sessions** (%d)\n", len(list))
	fmt.Fprintf(&b, "  %-4s %-28s %-6s %-8s %s\n", "SLOT", "ID", "PLAN", "EFFORT", "UPDATED")
	for _, s := range list {
		mark := " "
		if s.ID == activeID {
			mark = "*"
		}
		effort := s.ReasoningEffort
		if effort == "" {
			effort = "-"
		}
		fmt.Fprintf(&b, "%s %-4s %-28s %-6s %-8s %s\n",
			mark, s.Slot, s.ID, onOff(s.PlanMode), effort, s.UpdatedAt.UTC().Format(time.DateTime))
	}
	return b.String()
}

// FormatHistory renders runs oldest first.
func FormatHistory(s *models.Session, runs []models.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**History** slot %s (%d)\n", s.Slot, len(runs))
	for _, r := range runs {
		status := "ok"
		if r.Error != nil {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s [%s, %dms] %s\n", r.Timestamp.UTC().Format(time.DateTime), status,
			r.DurationMs, notify.Truncate(oneLine(r.Input), 80))
	}
	return b.String()
}

// FormatResult renders the outcome of a prompt. Agent failures are shown
// inline after any partial output.
func FormatResult(out *runner.Outcome) string {
	res := out.Result
	text := strings.TrimSpace(res.Output)
	if !res.Failed() {
		if text == "" {
			return "(no output)"
		}
		return text
	}
	msg := fmt.Sprintf("Run failed (%s): %s", res.ErrorKind, res.Error)
	if res.ErrorKind == "" {
		msg = "Run failed: " + res.Error
	}
	if text != "" {
		return text + "\n\n" + msg
	}
	return msg
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
