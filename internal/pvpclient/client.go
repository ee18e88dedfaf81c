// Package pvpclient implements the PVP collaborator contract
// (CreateCall/AcceptCall/DiscardCall/GetUserProfile/NewController, plus the
// contactcache.Resolver lookups) against github.com/gotd/td, a pure-Go
// MTProto client standing in for the original's tdlib binding: §1 places
// PVP controller internals out of core scope, so only a thin, real,
// idiomatic client is needed behind the narrow contract callfsm consumes.
package pvpclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"github.com/Infactum/tg2sip/internal/config"
	"github.com/Infactum/tg2sip/internal/events"
	"github.com/Infactum/tg2sip/internal/queue"
)

// Client wraps a gotd/td MTProto session and exposes the narrow contract
// callfsm.PvpClient and contactcache.Resolver need. One Client serves the
// whole process; Run blocks for its lifetime, the same shape as the
// teacher's long-running collaborator goroutines.
type Client struct {
	cfg *config.Config
	log *slog.Logger
	out *queue.Queue[events.Event]

	tg  *telegram.Client
	api *tg.Client
	upd *updates.Manager

	handles  *callHandles
	ready    chan struct{}
	inWorker atomic.Bool
}

// guardNotWorker refuses a blocking MTProto call made from inside the
// update-dispatch callback: gotd/td drives OnPhoneCall/OnNewMessage on the
// same goroutine that owns the connection, so a query issued from there
// would wait on a reply the worker itself must pump (spec §4.7). The
// dispatcher never calls into Client this way; this is a guard against a
// future handler doing so by mistake, not a path exercised today.
func (c *Client) guardNotWorker() error {
	if c.inWorker.Load() {
		return fmt.Errorf("pvpclient: call issued from the PVP worker goroutine would deadlock")
	}
	return nil
}

// New constructs a Client. Run must be called once to bring the MTProto
// session up and start dispatching updates onto out.
func New(cfg *config.Config, out *queue.Queue[events.Event], log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{cfg: cfg, log: log, out: out, handles: newCallHandles(), ready: make(chan struct{})}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnPhoneCall(func(ctx context.Context, e tg.Entities, u *tg.UpdatePhoneCall) error {
		c.inWorker.Store(true)
		defer c.inWorker.Store(false)
		if req, ok := u.PhoneCall.(*tg.PhoneCallRequested); ok {
			c.handles.put(req.ID, req.AccessHash)
		}
		if ev, ok := phoneCallToEvent(u.PhoneCall); ok {
			c.out.Push(ev)
		}
		return nil
	})
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.inWorker.Store(true)
		defer c.inWorker.Store(false)
		if ev, ok := newMessageToEvent(u.Message); ok {
			c.out.Push(ev)
		}
		return nil
	})

	c.upd = updates.New(updates.Config{
		Handler: dispatcher,
	})

	c.tg = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{Path: cfg.DatabaseFolder + "/session.json"},
		UpdateHandler:  c.upd,
	})
	c.api = c.tg.API()

	return c
}

// Ready returns a channel closed once the session is authorized and the
// update dispatcher is live, mirroring the original's tg::Client::is_ready
// future that cmd/tg2sip waits on with a 5-second timeout.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// MaxLayer reports gotd/td's own MTProto API layer version, the value spec
// §4.4 calls "whatever the platform max" for the createCall/acceptCall
// protocol ceiling.
func (c *Client) MaxLayer() int { return tg.Layer }

// Run brings the MTProto connection up and blocks until ctx is cancelled or
// a fatal transport error occurs.
func (c *Client) Run(ctx context.Context) error {
	return c.tg.Run(ctx, func(ctx context.Context) error {
		status, err := c.tg.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("pvpclient: auth status: %w", err)
		}
		if !status.Authorized {
			return fmt.Errorf("pvpclient: session not authorized; run the one-shot login helper first")
		}

		self, err := c.tg.Self(ctx)
		if err != nil {
			return fmt.Errorf("pvpclient: resolve self: %w", err)
		}

		return c.upd.Run(ctx, c.api, self.ID, updates.AuthOptions{
			IsBot: false,
			OnStart: func(ctx context.Context) {
				close(c.ready)
			},
		})
	})
}
