package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// errPause is how long the poller sleeps after a failed getUpdates call.
const errPause = 3 * time.Second

// Poller drives the long-poll loop, feeding updates to the router one at a
// time in arrival order.
type Poller struct {
	client *Client
	router *Router
	log    *slog.Logger
}

func NewPoller(client *Client, router *Router, log *slog.Logger) *Poller {
	return &Poller{client: client, router: router, log: log}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := p.client.GetUpdates(ctx, offset)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			p.log.Error("poll failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errPause):
			}
			continue
		}

		for _, u := range updates {
			offset = u.ID + 1
			p.router.HandleUpdate(u)
		}
	}
}
