package telegraph

import (
	"context"
	"fmt"
	"strings"
)

// Sender posts notifications through an Adapter. It implements
// notify.Sender: the first line of the text becomes the notice title and
// the rest its body, with any overflow sent as plain follow-up messages.
type Sender struct {
	Adapter Adapter
	MaxLen  int
}

// SendText delivers text to the channel targetID.
func (s *Sender) SendText(ctx context.Context, targetID, text string) error {
	if s.Adapter == nil {
		return fmt.Errorf("telegraph: sender: adapter is required")
	}
	title, body, _ := strings.Cut(strings.TrimSpace(text), "\n")
	chunks := chunkMessage(body, s.MaxLen)

	notice := &Notice{Title: title, Body: chunks[0], Color: noticeColor(title)}
	if err := s.Adapter.Send(ctx, OutboundMessage{ChannelID: targetID, Text: title, Notice: notice}); err != nil {
		return fmt.Errorf("telegraph: send notice: %w", err)
	}
	for _, c := range chunks[1:] {
		if err := s.Adapter.Send(ctx, OutboundMessage{ChannelID: targetID, Text: c}); err != nil {
			return fmt.Errorf("telegraph: send notice continuation: %w", err)
		}
	}
	return nil
}
