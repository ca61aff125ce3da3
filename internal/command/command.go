// Package command implements the slash commands shared by the chat bot and
// the terminal. Text that is not a command is run as a prompt against the
// caller's active session.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/runner"
	"github.com/zulandar/switchboard/internal/session"
)

// Prefix marks a command.
const Prefix = "/"

// DefaultHistory is the number of runs /history shows without an argument.
const DefaultHistory = 5

// Sessions is the registry surface the commands need.
type Sessions interface {
	Active(ctx context.Context, chatID string, channel models.Channel) (*models.Session, error)
	GetOrCreateActive(ctx context.Context, chatID string, channel models.Channel) (*models.Session, error)
	CreateAndActivate(ctx context.Context, chatID string, channel models.Channel) (*models.Session, error)
	RecreateAtSlot(ctx context.Context, chatID, slot string, channel models.Channel) (*models.Session, error)
	SetActive(ctx context.Context, chatID, target string, channel models.Channel) (*models.Session, error)
	List(ctx context.Context, chatID string) ([]models.Session, error)
	ListHistory(ctx context.Context, sessionID string, limit int) ([]models.RunRecord, error)
	SetPlanMode(ctx context.Context, sessionID string, on bool) (*models.Session, error)
	SetReasoningEffort(ctx context.Context, sessionID, effort string) (*models.Session, error)
	BindContinuation(ctx context.Context, chatID, slot, token string) (*models.Session, error)
}

// Runner executes plain-text prompts.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Outcome, error)
}

// HandlerOpts configures a Handler.
type HandlerOpts struct {
	Sessions Sessions
	Runner   Runner
	Channel  models.Channel
	Logger   *logger.Logger
}

// Handler executes commands for one front-end channel.
type Handler struct {
	sessions Sessions
	runner   Runner
	channel  models.Channel
	log      *logger.Logger
}

// NewHandler validates opts and returns a Handler.
func NewHandler(opts HandlerOpts) (*Handler, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("command: sessions is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("command: runner is required")
	}
	if !opts.Channel.Valid() {
		return nil, fmt.Errorf("command: unknown channel %q", opts.Channel)
	}
	return &Handler{
		sessions: opts.Sessions,
		runner:   opts.Runner,
		channel:  opts.Channel,
		log:      logger.OrNop(opts.Logger).With("component", "command", "channel", string(opts.Channel)),
	}, nil
}

// Channel returns the channel the handler acts for.
func (h *Handler) Channel() models.Channel { return h.channel }

// IsCommand reports whether text is a slash command.
func IsCommand(text string) bool {
	text = strings.TrimSpace(text)
	return len(text) > 1 && strings.HasPrefix(text, Prefix) && text[1] != ' '
}

// parseCommand splits "/name args..." into a lowercased name and args.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(text), Prefix))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// Execute handles one line of input and returns the reply text. onChunk,
// when set, receives streamed agent output for prompts.
func (h *Handler) Execute(ctx context.Context, chatID, text string, onChunk func(stream string, chunk []byte)) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if !IsCommand(text) {
		return h.prompt(ctx, chatID, text, onChunk)
	}

	name, args := parseCommand(text)
	switch name {
	case "session":
		return h.cmdSession(ctx, chatID, args)
	case "sessions":
		return h.cmdSessions(ctx, chatID)
	case "new":
		return h.cmdNew(ctx, chatID)
	case "reset":
		return h.cmdReset(ctx, chatID)
	case "history":
		return h.cmdHistory(ctx, chatID, args)
	case "plan":
		return h.cmdPlan(ctx, chatID, args)
	case "effort":
		return h.cmdEffort(ctx, chatID, args)
	case "bind":
		return h.cmdBind(ctx, chatID, args)
	case "help":
		return HelpText()
	default:
		return fmt.Sprintf("Unknown command: `/%s`\n\n%s", name, HelpText())
	}
}

func (h *Handler) prompt(ctx context.Context, chatID, text string, onChunk func(string, []byte)) string {
	out, err := h.runner.Run(ctx, runner.Request{
		ChatID:  chatID,
		Channel: h.channel,
		Prompt:  text,
		OnChunk: onChunk,
	})
	if err != nil {
		if out == nil {
			return renderError(err, "")
		}
		h.log.Error("run not persisted", "chat_id", chatID, "error", err)
	}
	return FormatResult(out)
}

func (h *Handler) cmdSession(ctx context.Context, chatID string, args []string) string {
	if len(args) == 0 {
		s, err := h.sessions.Active(ctx, chatID, h.channel)
		if errors.Is(err, errs.ErrNotFound) {
			return "No active session yet. Send a prompt or use `/new`."
		}
		if err != nil {
			return renderError(err, usageSession)
		}
		return "Active: " + FormatSession(s)
	}
	s, err := h.sessions.SetActive(ctx, chatID, args[0], h.channel)
	if err != nil {
		return renderError(err, usageSession)
	}
	return "Switched to " + FormatSession(s)
}

func (h *Handler) cmdSessions(ctx context.Context, chatID string) string {
	list, err := h.sessions.List(ctx, chatID)
	if err != nil {
		return renderError(err, "")
	}
	if len(list) == 0 {
		return "No sessions."
	}
	activeID := ""
	if s, err := h.sessions.Active(ctx, chatID, h.channel); err == nil {
		activeID = s.ID
	}
	return FormatSessionTable(list, activeID)
}

func (h *Handler) cmdNew(ctx context.Context, chatID string) string {
	s, err := h.sessions.CreateAndActivate(ctx, chatID, h.channel)
	if err != nil {
		return renderError(err, "")
	}
	return "Started " + FormatSession(s)
}

func (h *Handler) cmdReset(ctx context.Context, chatID string) string {
	cur, err := h.sessions.GetOrCreateActive(ctx, chatID, h.channel)
	if err != nil {
		return renderError(err, "")
	}
	s, err := h.sessions.RecreateAtSlot(ctx, chatID, cur.Slot, h.channel)
	if err != nil {
		return renderError(err, "")
	}
	return fmt.Sprintf("Slot %s reset. Now on %s", s.Slot, FormatSession(s))
}

func (h *Handler) cmdHistory(ctx context.Context, chatID string, args []string) string {
	limit := DefaultHistory
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return usageHistory
		}
		limit = n
	}
	s, err := h.sessions.Active(ctx, chatID, h.channel)
	if errors.Is(err, errs.ErrNotFound) {
		return "No active session yet."
	}
	if err != nil {
		return renderError(err, "")
	}
	runs, err := h.sessions.ListHistory(ctx, s.ID, limit)
	if err != nil {
		return renderError(err, "")
	}
	if len(runs) == 0 {
		return fmt.Sprintf("Slot %s has no runs yet.", s.Slot)
	}
	return FormatHistory(s, runs)
}

func (h *Handler) cmdPlan(ctx context.Context, chatID string, args []string) string {
	if len(args) != 1 {
		return usagePlan
	}
	var on bool
	switch strings.ToLower(args[0]) {
	case "on":
		on = true
	case "off":
	default:
		return usagePlan
	}
	cur, err := h.sessions.GetOrCreateActive(ctx, chatID, h.channel)
	if err != nil {
		return renderError(err, "")
	}
	s, err := h.sessions.SetPlanMode(ctx, cur.ID, on)
	if err != nil {
		return renderError(err, usagePlan)
	}
	return fmt.Sprintf("Plan mode %s for slot %s.", onOff(s.PlanMode), s.Slot)
}

func (h *Handler) cmdEffort(ctx context.Context, chatID string, args []string) string {
	if len(args) != 1 {
		return usageEffort
	}
	effort := args[0]
	if strings.EqualFold(effort, "off") {
		effort = ""
	}
	cur, err := h.sessions.GetOrCreateActive(ctx, chatID, h.channel)
	if err != nil {
		return renderError(err, "")
	}
	s, err := h.sessions.SetReasoningEffort(ctx, cur.ID, effort)
	if err != nil {
		return renderError(err, usageEffort)
	}
	if s.ReasoningEffort == "" {
		return fmt.Sprintf("Reasoning effort cleared for slot %s.", s.Slot)
	}
	return fmt.Sprintf("Reasoning effort for slot %s set to %s.", s.Slot, s.ReasoningEffort)
}

func (h *Handler) cmdBind(ctx context.Context, chatID string, args []string) string {
	if len(args) != 2 {
		return usageBind
	}
	s, err := h.sessions.BindContinuation(ctx, chatID, args[0], args[1])
	if err != nil {
		return renderError(err, usageBind)
	}
	return fmt.Sprintf("Bound slot %s to continuation %s.", s.Slot, s.Token())
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

const (
	usageSession = "Usage: `/session [slot|id|id-prefix]`"
	usageHistory = "Usage: `/history [n]`"
	usagePlan    = "Usage: `/plan on|off`"
	usageBind    = "Usage: `/bind <slot> <continuation-token>`"
)

var usageEffort = "Usage: `/effort " + strings.Join(session.ReasoningEfforts, "|") + "|off`"

// renderError maps core errors to chat text.
func renderError(err error, usage string) string {
	switch {
	case errors.Is(err, errs.ErrBusy):
		return "That session is still working on a previous prompt, try again shortly."
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrAmbiguous), errors.Is(err, errs.ErrValidation):
		msg := "Error: " + err.Error()
		if usage != "" {
			msg += "\n" + usage
		}
		return msg
	default:
		return "Error: " + err.Error()
	}
}

// HelpText lists the commands.
func HelpText() string {
	return "**Commands**\n" +
		"`/session [target]` - show or switch the active session\n" +
		"`/sessions` - list sessions in this chat\n" +
		"`/new` - start a session in the next slot\n" +
		"`/reset` - start over in the current slot\n" +
		"`/history [n]` - recent runs of the active session\n" +
		"`/plan on|off` - toggle plan mode\n" +
		"`/effort <level>|off` - set the reasoning effort\n" +
		"`/bind <slot> <token>` - attach an existing agent conversation\n" +
		"`/help` - this message\n" +
		"Anything else is sent to the active session."
}
