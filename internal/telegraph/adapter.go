// Package telegraph bridges chat platforms (Slack, Discord) to the command
// surface: inbound messages become commands or prompts, replies and job
// notices go back out through the platform adapter.
package telegraph

import (
	"context"
	"time"
)

// Adapter is one chat platform connection. Implementations drop traffic
// not addressed to the bot before it reaches Listen's channel.
type Adapter interface {
	Connect(ctx context.Context) error
	// Listen is valid after Connect. The channel closes with the adapter.
	Listen(ctx context.Context) (<-chan InboundMessage, error)
	Send(ctx context.Context, msg OutboundMessage) error
	Close() error
}

// InboundMessage is a user message addressed to the bot. ChannelID
// doubles as the chat id sessions are keyed by.
type InboundMessage struct {
	Platform  string
	ChannelID string
	ThreadID  string // empty at top level
	UserID    string
	UserName  string
	Text      string
	Timestamp time.Time
}

// OutboundMessage is a reply or job notification. An empty ChannelID
// targets the adapter's configured channel.
type OutboundMessage struct {
	ChannelID string
	ThreadID  string
	Text      string
	Notice    *Notice
}

// Notice is a titled, colored block such as a scheduled job outcome.
type Notice struct {
	Title string
	Body  string
	Color string // "#rrggbb"
}

// BotUserIDer is implemented by adapters that know their own user id, so
// the router can ignore the bot's echoes.
type BotUserIDer interface {
	BotUserID() string
}
