package telegraph

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/logger"
)

// Executor runs one line of chat input. *command.Handler implements it.
type Executor interface {
	Execute(ctx context.Context, chatID, text string, onChunk func(stream string, chunk []byte)) string
}

// Router classifies inbound chat messages. Slash commands are answered
// inline; anything else is a prompt, acknowledged immediately and run in
// the background so one slow agent never blocks other chats.
type Router struct {
	exec      Executor
	adapter   Adapter
	botUserID string
	maxLen    int
	log       *logger.Logger

	inflight sync.WaitGroup

	ackMu   sync.Mutex
	ackDeck []string // shuffled phrases, popped from end
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Executor  Executor
	Adapter   Adapter
	BotUserID string // bot's user ID for self-message filtering
	MaxLen    int    // reply chunk size; defaults to MaxMessageLen
	Logger    *logger.Logger
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("telegraph: router: executor is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: router: adapter is required")
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = MaxMessageLen
	}
	return &Router{
		exec:      opts.Executor,
		adapter:   opts.Adapter,
		botUserID: opts.BotUserID,
		maxLen:    opts.MaxLen,
		log:       logger.OrNop(opts.Logger).With("component", "telegraph-router"),
	}, nil
}

// Handle routes a single inbound message. The chat id is the platform
// channel id, so every thread in a channel shares its sessions.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}
	text := stripMentions(msg.Text)
	if text == "" {
		return
	}
	r.log.Debug("recv", "platform", msg.Platform, "channel", msg.ChannelID,
		"thread", msg.ThreadID, "user", msg.UserName, "command", command.IsCommand(text))

	if command.IsCommand(text) {
		r.reply(ctx, msg, r.exec.Execute(ctx, msg.ChannelID, text, nil))
		return
	}

	r.sendAck(ctx, msg)
	// Replies outlive a shutdown request; the agent timeout bounds them.
	runCtx := context.WithoutCancel(ctx)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.reply(runCtx, msg, r.exec.Execute(runCtx, msg.ChannelID, text, nil))
	}()
}

// Wait blocks until every background prompt has replied.
func (r *Router) Wait() {
	r.inflight.Wait()
}

// reply sends text in chunks to the message's channel and thread.
func (r *Router) reply(ctx context.Context, msg InboundMessage, text string) {
	if text == "" {
		return
	}
	for _, chunk := range chunkMessage(text, r.maxLen) {
		if err := r.adapter.Send(ctx, OutboundMessage{
			ChannelID: msg.ChannelID,
			ThreadID:  msg.ThreadID,
			Text:      chunk,
		}); err != nil {
			r.log.Error("send reply failed", "channel", msg.ChannelID, "error", err)
			return
		}
	}
}

// ackPhrases are sent when a prompt is accepted.
var ackPhrases = []string{
	"On it.",
	"Looking into it...",
	"Copy that, working on it now.",
	"Roger that. Give me a sec.",
	"Let me see what I can do.",
	"Already on it.",
	"Hold tight...",
}

// sendAck tells the user the prompt was received. It cycles through all
// phrases in shuffled order before repeating any.
func (r *Router) sendAck(ctx context.Context, msg InboundMessage) {
	if err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
		Text:      r.nextAck(),
	}); err != nil {
		r.log.Warn("send ack failed", "channel", msg.ChannelID, "error", err)
	}
}

func (r *Router) nextAck() string {
	r.ackMu.Lock()
	defer r.ackMu.Unlock()

	if len(r.ackDeck) == 0 {
		r.ackDeck = make([]string, len(ackPhrases))
		copy(r.ackDeck, ackPhrases)
		rand.Shuffle(len(r.ackDeck), func(i, j int) {
			r.ackDeck[i], r.ackDeck[j] = r.ackDeck[j], r.ackDeck[i]
		})
	}

	phrase := r.ackDeck[len(r.ackDeck)-1]
	r.ackDeck = r.ackDeck[:len(r.ackDeck)-1]
	return phrase
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}
