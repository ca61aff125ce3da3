// Package notify delivers best-effort outcome messages to chats and shells.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Notification is one fire-and-forget message.
type Notification struct {
	TargetID string // chat id or platform channel
	Message  string
}

// Notifier delivers notifications. Callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Sender is implemented by chat front-ends that can post plain text.
type Sender interface {
	SendText(ctx context.Context, targetID, text string) error
}

// Chat posts notifications through a chat front-end. Fallback is used when
// a notification carries no target.
type Chat struct {
	Sender   Sender
	Fallback string
}

func (c *Chat) Notify(ctx context.Context, n Notification) error {
	target := n.TargetID
	if target == "" {
		target = c.Fallback
	}
	if target == "" {
		return fmt.Errorf("notify: chat: no target")
	}
	if err := c.Sender.SendText(ctx, target, n.Message); err != nil {
		return fmt.Errorf("notify: chat %s: %w", target, err)
	}
	return nil
}

// Command runs a shell command template per notification, e.g.
// "notify-send switchboard {{.Message}}". Substituted values are shell
// quoted and also exported as SB_NOTIFY_TARGET and SB_NOTIFY_MESSAGE.
type Command struct {
	Template string
}

func (c *Command) Notify(ctx context.Context, n Notification) error {
	if c.Template == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", templateCommand(c.Template, n))
	cmd.Env = append(os.Environ(),
		"SB_NOTIFY_TARGET="+n.TargetID,
		"SB_NOTIFY_MESSAGE="+n.Message,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify: command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// templateCommand replaces placeholders with shell-quoted values.
func templateCommand(command string, n Notification) string {
	r := strings.NewReplacer(
		"{{.Target}}", shellQuote(n.TargetID),
		"{{.Message}}", shellQuote(n.Message),
	)
	return r.Replace(command)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Multi fans a notification out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Truncate shortens s to at most max runes, marking the cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
