package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/zulandar/switchboard/internal/logger"
)

// DefaultRedisChannel is used when RedisOpts.Channel is empty.
const DefaultRedisChannel = "switchboard:jobs"

// RedisOpts configures a RedisBus.
type RedisOpts struct {
	Addr    string
	Channel string
	Logger  *logger.Logger
}

// RedisBus publishes job events on a Redis channel so every process
// sharing the store can stream any job. A forwarder feeds received events
// into the local Hub.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	log     *logger.Logger
}

// NewRedisBus connects and pings the server.
func NewRedisBus(ctx context.Context, opts RedisOpts) (*RedisBus, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("queue: redis addr is required")
	}
	channel := strings.TrimSpace(opts.Channel)
	if channel == "" {
		channel = DefaultRedisChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}

	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		log:     logger.OrNop(opts.Logger).With("component", "queue-redis"),
	}, nil
}

// Publish sends ev to the channel.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("queue: redis publish: %w", err)
	}
	return nil
}

// StartForwarder subscribes to the channel and republishes every event
// into hub until ctx is done.
func (b *RedisBus) StartForwarder(ctx context.Context, hub *Hub) error {
	if hub == nil {
		return fmt.Errorf("queue: forwarder: hub is required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("queue: redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				ev, err := decodeEvent(m.Payload)
				if err != nil {
					b.log.Warn("bad job event payload", "error", err)
					continue
				}
				_ = hub.Publish(ctx, ev)
			}
		}
	}()
	return nil
}

// Close releases the client.
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.JobID == "" {
		return Event{}, fmt.Errorf("event without job id")
	}
	return ev, nil
}
