package telegraph

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	errMockClosed       = errors.New("mock adapter: already closed")
	errMockDisconnected = errors.New("mock adapter: not connected")
)

// MockAdapter is an in-memory Adapter. Tests push inbound traffic with
// SimulateInbound and inspect what the bot replied.
type MockAdapter struct {
	in   chan InboundMessage
	wake chan struct{}

	mu      sync.Mutex
	up      bool
	done    bool
	self    string
	failing error
	out     []OutboundMessage
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		in:   make(chan InboundMessage, 100),
		wake: make(chan struct{}, 1),
	}
}

func (m *MockAdapter) locked(fn func()) {
	m.mu.Lock()
	fn()
	m.mu.Unlock()
}

func (m *MockAdapter) BotUserID() (id string) {
	m.locked(func() { id = m.self })
	return id
}

func (m *MockAdapter) SetBotUserID(id string) { m.locked(func() { m.self = id }) }

// SetSendError makes every later Send fail with err; nil clears it.
func (m *MockAdapter) SetSendError(err error) { m.locked(func() { m.failing = err }) }

func (m *MockAdapter) Connect(context.Context) (err error) {
	m.locked(func() {
		if m.done {
			err = errMockClosed
			return
		}
		m.up = true
	})
	return err
}

func (m *MockAdapter) Listen(context.Context) (<-chan InboundMessage, error) {
	var err error
	m.locked(func() {
		if !m.up {
			err = errMockDisconnected
		}
	})
	if err != nil {
		return nil, err
	}
	return m.in, nil
}

func (m *MockAdapter) Send(_ context.Context, msg OutboundMessage) (err error) {
	m.locked(func() {
		switch {
		case !m.up:
			err = errMockDisconnected
		case m.failing != nil:
			err = m.failing
		default:
			m.out = append(m.out, msg)
		}
	})
	if err == nil {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
	return err
}

func (m *MockAdapter) Close() error {
	m.locked(func() {
		if m.done {
			return
		}
		m.done, m.up = true, false
		close(m.in)
	})
	return nil
}

func (m *MockAdapter) Closed() (closed bool) {
	m.locked(func() { closed = m.done })
	return closed
}

// SimulateInbound delivers msg as if a user had typed it, stamping the
// current time when msg has none.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.in <- msg
}

func (m *MockAdapter) LastSent() (msg OutboundMessage, ok bool) {
	m.locked(func() {
		if n := len(m.out); n > 0 {
			msg, ok = m.out[n-1], true
		}
	})
	return msg, ok
}

func (m *MockAdapter) SentCount() (n int) {
	m.locked(func() { n = len(m.out) })
	return n
}

// AllSent returns a copy of every recorded message, oldest first.
func (m *MockAdapter) AllSent() (out []OutboundMessage) {
	m.locked(func() { out = append([]OutboundMessage(nil), m.out...) })
	return out
}

// WaitForSent reports whether n messages were recorded within timeout.
func (m *MockAdapter) WaitForSent(n int, timeout time.Duration) bool {
	expire := time.NewTimer(timeout)
	defer expire.Stop()
	for m.SentCount() < n {
		select {
		case <-m.wake:
		case <-expire.C:
			return m.SentCount() >= n
		}
	}
	return true
}
