// Package slack connects the bot front-end to Slack over Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/telegraph"
)

var (
	sendBackoff      = telegraph.Backoff{Base: time.Second, Max: 30 * time.Second, Attempts: 3}
	reconnectBackoff = telegraph.Backoff{Base: 2 * time.Second, Max: 2 * time.Minute, Attempts: 10}
)

// webAPI is the part of the Slack Web API the adapter calls.
type webAPI interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socket is the part of the Socket Mode client the adapter calls.
type socket interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

type socketModeClient struct{ *socketmode.Client }

func (c socketModeClient) EventsChan() chan socketmode.Event { return c.Events }

// Adapter forwards direct messages and @mentions of the bot. Any other
// channel traffic is dropped before it reaches the router.
type Adapter struct {
	api      webAPI
	sock     socket
	appToken string
	botToken string
	fallback string // channel for messages that name none
	log      *logger.Logger

	reconnect telegraph.Backoff
	send      telegraph.Backoff

	mu        sync.Mutex
	self      string
	connected bool
	closed    bool
	stop      context.CancelFunc
	names     map[string]string
	inbound   chan telegraph.InboundMessage
}

// AdapterOpts configures an Adapter. Client and Socket replace the real
// Slack clients in tests.
type AdapterOpts struct {
	AppToken  string // xapp- token, Socket Mode
	BotToken  string // xoxb- token, Web API
	ChannelID string
	Logger    *logger.Logger
	Client    webAPI
	Socket    socket
}

// New validates opts. No network calls are made until Connect.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	return &Adapter{
		api:       opts.Client,
		sock:      opts.Socket,
		appToken:  opts.AppToken,
		botToken:  opts.BotToken,
		fallback:  opts.ChannelID,
		log:       logger.OrNop(opts.Logger).With("component", "slack"),
		reconnect: reconnectBackoff,
		send:      sendBackoff,
		names:     make(map[string]string),
		inbound:   make(chan telegraph.InboundMessage, 100),
	}, nil
}

// Connect verifies the bot token and records the bot's own user id.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.closed:
		return fmt.Errorf("slack: adapter already closed")
	case a.connected:
		return nil
	}
	if a.api == nil {
		client := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.api = client
		a.sock = socketModeClient{socketmode.New(client)}
	}
	auth, err := a.api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.self = auth.UserID
	a.connected = true
	return nil
}

// Listen starts the socket and its event pump.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	ctx, a.stop = context.WithCancel(ctx)
	a.mu.Unlock()

	go a.runSocket(ctx)
	go a.pump(ctx)
	return a.inbound, nil
}

// Send posts msg to its channel or the default one. A Notice becomes a
// colored attachment.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	if !a.isConnected() {
		return fmt.Errorf("slack: not connected")
	}
	channel := msg.ChannelID
	if channel == "" {
		channel = a.fallback
	}
	if channel == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	opts := buildMessageOptions(msg)
	err := a.send.Retry(ctx, func() error {
		_, _, err := a.api.PostMessage(channel, opts...)
		return err
	}, rateLimited)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close stops the pump and closes the inbound channel. Safe to call twice.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed, a.connected = true, false
	if a.stop != nil {
		a.stop()
	}
	close(a.inbound)
	return nil
}

// BotUserID is the bot's own user id, known after Connect.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.self
}

func (a *Adapter) isConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// runSocket keeps the Socket Mode connection up, backing off between
// failed runs until the attempts are spent.
func (a *Adapter) runSocket(ctx context.Context) {
	for n := 0; n < a.reconnect.Attempts; n++ {
		err := a.sock.Run()
		if err == nil || ctx.Err() != nil {
			return
		}
		wait := a.reconnect.Delay(n)
		a.log.Warn("socket mode dropped",
			"attempt", n+1, "of", a.reconnect.Attempts, "retry_in", wait.String(), "error", err)
		if !telegraph.Sleep(ctx, wait) {
			return
		}
	}
	a.log.Error("giving up on socket mode", "attempts", a.reconnect.Attempts)
}

func (a *Adapter) pump(ctx context.Context) {
	events := a.sock.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.dispatch(evt)
		}
	}
}

// dispatch acks Events API envelopes and forwards the messages addressed
// to the bot.
func (a *Adapter) dispatch(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		a.log.Info("socket mode connected")
		return
	case socketmode.EventTypeConnectionError, socketmode.EventTypeDisconnect:
		a.log.Warn("socket mode interrupted", "type", string(evt.Type))
		return
	case socketmode.EventTypeEventsAPI:
	default:
		return
	}

	envelope, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		a.sock.Ack(*evt.Request)
	}
	if envelope.Type != slackevents.CallbackEvent {
		return
	}

	self := a.BotUserID()
	switch ev := envelope.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Mentions in channels arrive again as app_mention; only DMs count here.
		if ev.ChannelType != "im" || ev.SubType != "" || ev.BotID != "" || ev.User == "" || ev.User == self {
			return
		}
		a.forward(ev.Channel, ev.ThreadTimeStamp, ev.User, ev.Text, ev.TimeStamp)
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" || ev.User == self {
			return
		}
		a.forward(ev.Channel, ev.ThreadTimeStamp, ev.User, ev.Text, ev.TimeStamp)
	}
}

func (a *Adapter) forward(channel, thread, user, text, ts string) {
	msg := telegraph.InboundMessage{
		Platform:  "slack",
		ChannelID: channel,
		ThreadID:  thread,
		UserID:    user,
		UserName:  a.displayName(user),
		Text:      text,
		Timestamp: parseSlackTimestamp(ts),
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if !closed {
		a.inbound <- msg
	}
}

// displayName returns the cached profile name of userID, falling back to
// the real name and then the id itself.
func (a *Adapter) displayName(userID string) string {
	if userID == "" {
		return ""
	}
	a.mu.Lock()
	name, cached := a.names[userID]
	a.mu.Unlock()
	if cached {
		return name
	}

	name = userID
	if u, err := a.api.GetUserInfo(userID); err == nil {
		switch {
		case u.Profile.DisplayName != "":
			name = u.Profile.DisplayName
		case u.RealName != "":
			name = u.RealName
		}
	}
	a.mu.Lock()
	a.names[userID] = name
	a.mu.Unlock()
	return name
}

func buildMessageOptions(msg telegraph.OutboundMessage) []slackapi.MsgOption {
	var opts []slackapi.MsgOption
	if msg.ThreadID != "" {
		opts = append(opts, slackapi.MsgOptionTS(msg.ThreadID))
	}
	if msg.Notice != nil {
		opts = append(opts, slackapi.MsgOptionAttachments(noticeToAttachment(*msg.Notice)))
		if msg.Text == "" {
			return opts
		}
	}
	return append(opts, slackapi.MsgOptionText(msg.Text, false))
}

func noticeToAttachment(n telegraph.Notice) slackapi.Attachment {
	return slackapi.Attachment{
		Title:    n.Title,
		Text:     n.Body,
		Color:    n.Color,
		Fallback: n.Title,
	}
}

// rateLimited classifies Slack 429s, passing on the Retry-After hint.
func rateLimited(err error) (time.Duration, bool) {
	var rle *slackapi.RateLimitedError
	if errors.As(err, &rle) {
		return rle.RetryAfter, true
	}
	return 0, false
}

// parseSlackTimestamp reads the seconds part of a "1234567890.123456" ts.
func parseSlackTimestamp(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
