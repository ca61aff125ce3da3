package queue

import (
	"context"
	"sync"

	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
)

// Event kinds.
const (
	EventStatus = "status"
	EventChunk  = "chunk"
)

// Event is one transition or output chunk of a queued job.
type Event struct {
	Kind   string                  `json:"kind"`
	JobID  string                  `json:"job_id"`
	Job    *models.QueuedPromptJob `json:"job,omitempty"`
	Stream string                  `json:"stream,omitempty"`
	Chunk  string                  `json:"chunk,omitempty"`
}

// Terminal reports whether ev carries a completed or failed job.
func (ev Event) Terminal() bool {
	return ev.Kind == EventStatus && ev.Job != nil && ev.Job.Terminal()
}

// Publisher delivers job events. *Hub and *RedisBus implement it.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

const subscriptionBuffer = 64

// Subscription receives events for a single job. C is closed after the
// terminal event or when the subscription is closed.
type Subscription struct {
	C <-chan Event

	ch    chan Event
	hub   *Hub
	jobID string
	once  sync.Once
}

// Close unsubscribes. It is safe to call more than once and after the
// hub has closed the subscription.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans job events out to in-process subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
	log  *logger.Logger
}

// NewHub returns an empty Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
		log:  logger.OrNop(log).With("component", "queue-hub"),
	}
}

// Subscribe registers interest in jobID.
func (h *Hub) Subscribe(jobID string) *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, jobID: jobID}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[jobID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers ev to the job's subscribers without blocking. Chunks
// are dropped for slow readers; a terminal event is always delivered and
// closes every subscription for the job.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[ev.JobID]
	terminal := ev.Terminal()
	for sub := range set {
		if terminal {
			deliverTerminal(sub.ch, ev)
			sub.once.Do(func() { close(sub.ch) })
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn("dropping job event, subscriber buffer full", "job_id", ev.JobID, "kind", ev.Kind)
		}
	}
	if terminal {
		delete(h.subs, ev.JobID)
	}
	return nil
}

// deliverTerminal makes room by discarding the oldest buffered event.
func deliverTerminal(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions for jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.jobID)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}
