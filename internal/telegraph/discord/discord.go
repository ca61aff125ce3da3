// Package discord connects the bot front-end to the Discord Gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/telegraph"
)

var sendBackoff = telegraph.Backoff{Base: 2 * time.Second, Max: 2 * time.Minute, Attempts: 3}

// session is the slice of *discordgo.Session the adapter calls.
type session interface {
	Open() error
	Close() error
	Channel(channelID string) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) Channel(channelID string) (*discordgo.Channel, error) {
	return r.s.State.Channel(channelID)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}

// Adapter forwards direct messages, and guild messages that mention the
// bot, to the router.
type Adapter struct {
	sess     session
	botToken string
	fallback string // channel for messages that name none
	log      *logger.Logger
	send     telegraph.Backoff

	mu        sync.Mutex
	self      string
	connected bool
	closed    bool
	inbound   chan telegraph.InboundMessage
	unhook    func()
}

// AdapterOpts configures an Adapter. Session replaces the real gateway in
// tests.
type AdapterOpts struct {
	BotToken  string
	ChannelID string
	Logger    *logger.Logger
	Session   session
}

// New validates opts without touching the network.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	return &Adapter{
		sess:     opts.Session,
		botToken: opts.BotToken,
		fallback: opts.ChannelID,
		log:      logger.OrNop(opts.Logger).With("component", "discord"),
		send:     sendBackoff,
		inbound:  make(chan telegraph.InboundMessage, 100),
	}, nil
}

// Connect opens the gateway. discordgo resumes dropped sessions itself, so
// the handlers only log those transitions.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.closed:
		return fmt.Errorf("discord: adapter already closed")
	case a.connected:
		return nil
	}

	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
		a.sess = &realSession{s: dg}
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.self = r.User.ID
		a.mu.Unlock()
		a.log.Info("gateway ready", "user", r.User.Username, "user_id", r.User.ID)
	})
	a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		a.log.Warn("gateway dropped")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		a.log.Info("gateway resumed")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

// Listen hooks message creation events. Connect must succeed first.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.unhook = a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	})
	return a.inbound, nil
}

// Send posts msg, preferring its thread since threads are channels here.
// A Notice becomes an embed.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	a.mu.Lock()
	up := a.connected
	a.mu.Unlock()
	if !up {
		return fmt.Errorf("discord: not connected")
	}

	target := firstNonEmpty(msg.ThreadID, msg.ChannelID, a.fallback)
	if target == "" {
		return fmt.Errorf("discord: no channel specified")
	}

	data := buildMessageSend(msg)
	err := a.send.Retry(ctx, func() error {
		_, err := a.sess.ChannelMessageSendComplex(target, data)
		return err
	}, a.tooManyRequests)
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Close unhooks the handler, closes the inbound channel and the gateway.
// Later calls are no-ops.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed, a.connected = true, false
	if a.unhook != nil {
		a.unhook()
	}
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID is the bot's own id, known once the gateway is ready.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.self
}

// SetBotUserID overrides the id used to drop the bot's own messages and to
// detect mentions.
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.self = id
}

func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	botID, closed := a.self, a.closed
	a.mu.Unlock()
	if closed || m.Author.ID == botID {
		return
	}
	if m.GuildID != "" && !mentions(m.Mentions, botID) {
		return
	}

	// Inside a thread the message's channel is the thread itself.
	channelID, threadID := m.ChannelID, ""
	if ch, err := a.sess.Channel(m.ChannelID); err == nil && ch.IsThread() {
		channelID, threadID = ch.ParentID, m.ChannelID
	}
	ts, _ := discordgo.SnowflakeTimestamp(m.ID)

	a.inbound <- telegraph.InboundMessage{
		Platform:  "discord",
		ChannelID: channelID,
		ThreadID:  threadID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Text:      m.Content,
		Timestamp: ts,
	}
}

func mentions(users []*discordgo.User, id string) bool {
	if id == "" {
		return false
	}
	for _, u := range users {
		if u != nil && u.ID == id {
			return true
		}
	}
	return false
}

func buildMessageSend(msg telegraph.OutboundMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{Content: msg.Text}
	if msg.Notice != nil {
		data.Embeds = append(data.Embeds, noticeToEmbed(*msg.Notice))
	}
	return data
}

func noticeToEmbed(n telegraph.Notice) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Body,
	}
	if n.Color != "" {
		embed.Color = parseHexColor(n.Color)
	}
	return embed
}

// parseHexColor reads "#rrggbb" into the integer form embeds take.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}

// tooManyRequests classifies HTTP 429 responses as retryable.
func (a *Adapter) tooManyRequests(err error) (time.Duration, bool) {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil || rest.Response.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}
	a.log.Warn("rate limited, backing off", "status", rest.Response.StatusCode)
	return 0, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
