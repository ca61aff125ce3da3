package telegraph

import (
	"context"
	"fmt"

	"github.com/zulandar/switchboard/internal/logger"
)

// Daemon is the bot process. It connects to a chat platform via an
// Adapter and pumps inbound messages through a Router until its context
// is cancelled.
type Daemon struct {
	adapter  Adapter
	exec     Executor
	announce bool
	log      *logger.Logger
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter  Adapter
	Executor Executor
	Announce bool // post online/offline messages to the default channel
	Logger   *logger.Logger
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("telegraph: executor is required")
	}
	return &Daemon{
		adapter:  opts.Adapter,
		exec:     opts.Executor,
		announce: opts.Announce,
		log:      logger.OrNop(opts.Logger).With("component", "telegraph"),
	}, nil
}

// Run connects the adapter and routes messages until ctx is cancelled or
// the adapter closes its inbound channel. Prompts still running at
// shutdown get their replies before the adapter is closed.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("connecting")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := NewRouter(RouterOpts{
		Executor:  d.exec,
		Adapter:   d.adapter,
		BotUserID: botUserID,
		Logger:    d.log,
	})
	if err != nil {
		d.adapter.Close()
		return err
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	d.log.Info("online", "bot_user_id", botUserID)
	d.post(ctx, "switchboard online")

	for {
		select {
		case <-ctx.Done():
			d.log.Info("shutting down")
			router.Wait()
			d.post(context.WithoutCancel(ctx), "switchboard shutting down")
			if err := d.adapter.Close(); err != nil {
				d.log.Warn("close adapter", "error", err)
			}
			return nil

		case msg, ok := <-inbound:
			if !ok {
				d.log.Warn("inbound channel closed")
				router.Wait()
				return nil
			}
			router.Handle(ctx, msg)
		}
	}
}

// post sends a status line to the adapter's default channel.
func (d *Daemon) post(ctx context.Context, text string) {
	if !d.announce {
		return
	}
	if err := d.adapter.Send(ctx, OutboundMessage{Text: text}); err != nil {
		d.log.Warn("announce failed", "error", err)
	}
}
