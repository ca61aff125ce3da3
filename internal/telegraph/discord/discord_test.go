package discord

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/switchboard/internal/telegraph"
)

type mockSession struct {
	mu          sync.Mutex
	openErr     error
	closeCalled bool
	sent        []sentMessage
	sendErr     error
	handlers    []interface{}
	removeCount int
	channels    map[string]*discordgo.Channel
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func newMockSession() *mockSession {
	return &mockSession{channels: make(map[string]*discordgo.Channel)}
}

func (m *mockSession) Open() error { return m.openErr }

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

func (m *mockSession) Channel(channelID string) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[channelID]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("channel not found: %s", channelID)
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: "msg-1"}, nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeCount++
	}
}

func (m *mockSession) messageHandler() func(*discordgo.Session, *discordgo.MessageCreate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.MessageCreate)); ok {
			return fn
		}
	}
	return nil
}

func (m *mockSession) lastSent() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func newTestAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	sess := newMockSession()
	a, err := New(AdapterOpts{Session: sess, ChannelID: "C_DEFAULT"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.SetBotUserID("BOT")
	return a, sess
}

func listen(t *testing.T, a *Adapter, sess *mockSession) (<-chan telegraph.InboundMessage, func(*discordgo.MessageCreate)) {
	t.Helper()
	ch, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	h := sess.messageHandler()
	if h == nil {
		t.Fatal("message handler not registered")
	}
	return ch, func(m *discordgo.MessageCreate) { h(nil, m) }
}

func message(id, guild, channel, author, content string, mentioned ...string) *discordgo.MessageCreate {
	m := &discordgo.Message{
		ID:        id,
		GuildID:   guild,
		ChannelID: channel,
		Content:   content,
		Author:    &discordgo.User{ID: author, Username: author + "-name"},
	}
	for _, u := range mentioned {
		m.Mentions = append(m.Mentions, &discordgo.User{ID: u})
	}
	return &discordgo.MessageCreate{Message: m}
}

func TestNew_RequiresBotToken(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestConnect(t *testing.T) {
	a, sess := newTestAdapter(t)
	if len(sess.handlers) != 3 {
		t.Errorf("handlers = %d, want 3 lifecycle handlers", len(sess.handlers))
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Errorf("second connect: %v", err)
	}
	if len(sess.handlers) != 3 {
		t.Error("second connect registered handlers again")
	}
}

func TestConnect_OpenError(t *testing.T) {
	sess := newMockSession()
	sess.openErr = fmt.Errorf("gateway down")
	a, _ := New(AdapterOpts{Session: sess})
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
	if _, err := a.Listen(context.Background()); err == nil {
		t.Fatal("expected listen to fail when not connected")
	}
}

func TestConnect_CapturesBotUserOnReady(t *testing.T) {
	sess := newMockSession()
	a, _ := New(AdapterOpts{Session: sess})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, h := range sess.handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.Ready)); ok {
			fn(nil, &discordgo.Ready{User: &discordgo.User{ID: "B1", Username: "sb"}})
		}
	}
	if a.BotUserID() != "B1" {
		t.Errorf("bot user id = %q, want B1", a.BotUserID())
	}
}

func TestHandleMessage_DirectMessage(t *testing.T) {
	a, sess := newTestAdapter(t)
	ch, deliver := listen(t, a, sess)

	deliver(message("1", "", "DM1", "alice", "/sessions"))

	select {
	case msg := <-ch:
		if msg.Platform != "discord" || msg.ChannelID != "DM1" || msg.Text != "/sessions" {
			t.Errorf("unexpected message: %+v", msg)
		}
		if msg.UserName != "alice-name" {
			t.Errorf("user name = %q", msg.UserName)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestHandleMessage_Filters(t *testing.T) {
	a, sess := newTestAdapter(t)
	ch, deliver := listen(t, a, sess)

	deliver(&discordgo.MessageCreate{Message: &discordgo.Message{ID: "0", Content: "no author"}})
	deliver(message("1", "", "DM1", "BOT", "self"))
	bot := message("2", "", "DM1", "other-bot", "beep")
	bot.Author.Bot = true
	deliver(bot)
	deliver(message("3", "G1", "C1", "alice", "chatter"))
	deliver(message("4", "G1", "C1", "alice", "chatter", "someone-else"))

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message forwarded: %+v", msg)
	default:
	}
}

func TestHandleMessage_MentionInThread(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.channels["T1"] = &discordgo.Channel{ID: "T1", ParentID: "C1", Type: discordgo.ChannelTypeGuildPublicThread}
	ch, deliver := listen(t, a, sess)

	deliver(message("5", "G1", "T1", "alice", "<@BOT> status", "BOT"))

	select {
	case msg := <-ch:
		if msg.ChannelID != "C1" || msg.ThreadID != "T1" {
			t.Errorf("channel = %q thread = %q, want C1/T1", msg.ChannelID, msg.ThreadID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSend(t *testing.T) {
	a, sess := newTestAdapter(t)
	ctx := context.Background()

	if err := a.Send(ctx, telegraph.OutboundMessage{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if got := sess.lastSent(); got.channelID != "C_DEFAULT" || got.data.Content != "hi" {
		t.Errorf("sent = %+v", got)
	}

	if err := a.Send(ctx, telegraph.OutboundMessage{ChannelID: "C1", ThreadID: "T1", Text: "in thread"}); err != nil {
		t.Fatal(err)
	}
	if got := sess.lastSent(); got.channelID != "T1" {
		t.Errorf("channel = %q, want thread T1", got.channelID)
	}

	notice := &telegraph.Notice{Title: "Job finished", Body: "ok", Color: telegraph.ColorSuccess}
	if err := a.Send(ctx, telegraph.OutboundMessage{ChannelID: "C1", Notice: notice}); err != nil {
		t.Fatal(err)
	}
	got := sess.lastSent()
	if len(got.data.Embeds) != 1 || got.data.Embeds[0].Title != "Job finished" {
		t.Fatalf("embeds = %+v", got.data.Embeds)
	}

	sess.sendErr = fmt.Errorf("missing access")
	if err := a.Send(ctx, telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Error("expected send error")
	}
}

func TestSend_NotConnectedOrNoChannel(t *testing.T) {
	sess := newMockSession()
	a, _ := New(AdapterOpts{Session: sess})
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Error("expected not connected error")
	}
	a.Connect(context.Background())
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Error("expected no channel error")
	}
}

func TestClose(t *testing.T) {
	a, sess := newTestAdapter(t)
	listen(t, a, sess)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !sess.closeCalled || sess.removeCount != 1 {
		t.Errorf("close called = %v, handler removals = %d", sess.closeCalled, sess.removeCount)
	}
	if err := a.Connect(context.Background()); err == nil {
		t.Error("expected connect after close to fail")
	}
}

func TestNoticeToEmbed(t *testing.T) {
	e := noticeToEmbed(telegraph.Notice{Title: "t", Body: "b", Color: "#36a64f"})
	if e.Title != "t" || e.Description != "b" || e.Color != 0x36a64f {
		t.Errorf("embed = %+v", e)
	}
	if e := noticeToEmbed(telegraph.Notice{Title: "t"}); e.Color != 0 {
		t.Errorf("color = %d, want 0", e.Color)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := map[string]int{
		"#36a64f": 0x36a64f,
		"FF0000":  0xff0000,
		"#2EB67D": 0x2eb67d,
		"":        0,
	}
	for in, want := range tests {
		if got := parseHexColor(in); got != want {
			t.Errorf("parseHexColor(%q) = %x, want %x", in, got, want)
		}
	}
}

func TestSend_RetriesTooManyRequests(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.send = telegraph.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond, Attempts: 3}
	limited := func() error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
	}

	calls := 0
	err := a.send.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return limited()
		}
		return nil
	}, a.tooManyRequests)
	if err != nil || calls != 3 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}

	calls = 0
	err = a.send.Retry(context.Background(), func() error {
		calls++
		return limited()
	}, a.tooManyRequests)
	if err == nil || calls != a.send.Attempts+1 {
		t.Errorf("err = %v, calls = %d, want %d", err, calls, a.send.Attempts+1)
	}

	calls = 0
	err = a.send.Retry(context.Background(), func() error {
		calls++
		return fmt.Errorf("boom")
	}, a.tooManyRequests)
	if err == nil || calls != 1 {
		t.Errorf("non rate limit error retried: calls = %d", calls)
	}
}

var _ telegraph.Adapter = (*Adapter)(nil)
