// Package dispatcher implements the gateway's single-threaded control loop
// (spec §4.6): it drains the internal/PVP/SSP event queues in turn,
// correlates each event to a call context (creating one on first sighting),
// advances that context's state machine, and reaps contexts that reach the
// terminal state.
package dispatcher

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/Infactum/tg2sip/internal/callctx"
	"github.com/Infactum/tg2sip/internal/callfsm"
	"github.com/Infactum/tg2sip/internal/events"
	"github.com/Infactum/tg2sip/internal/queue"
)

// tickFloor is the minimum duration one loop iteration occupies, bounding
// CPU use when every queue is idle.
const tickFloor = 10 * time.Millisecond

// Dispatcher owns every live call context and the contact cache; per spec
// §5 neither needs a lock because only this goroutine ever touches them.
type Dispatcher struct {
	deps callfsm.Deps
	log  *slog.Logger
	pid  int

	pvp *queue.Queue[events.Event]
	ssp *queue.Queue[events.Event]

	machines    map[string]*callfsm.Machine
	byPvpCallID map[int64]string
	bySspCallID map[string]string
}

// New creates a Dispatcher. pvpQueue and sspQueue are the PVP and SSP
// collaborators' outbound event queues; deps.Internal is the synchronous
// failure-reporting queue actions post to.
func New(deps callfsm.Deps, pvpQueue, sspQueue *queue.Queue[events.Event], log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		deps:        deps,
		log:         log,
		pid:         os.Getpid(),
		pvp:         pvpQueue,
		ssp:         sspQueue,
		machines:    make(map[string]*callfsm.Machine),
		byPvpCallID: make(map[int64]string),
		bySspCallID: make(map[string]string),
	}
}

// Run executes the control loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()

		if ev, ok := d.deps.Internal.TryPop(); ok {
			d.routeInternal(ctx, ev)
		}
		if ev, ok := d.pvp.TryPop(); ok {
			d.routePvp(ctx, ev)
		}
		if ev, ok := d.ssp.TryPop(); ok {
			d.routeSsp(ctx, ev)
		}

		if elapsed := time.Since(start); elapsed < tickFloor {
			time.Sleep(tickFloor - elapsed)
		}
	}
}

func (d *Dispatcher) routeInternal(ctx context.Context, ev events.Event) {
	ie, ok := ev.(events.InternalError)
	if !ok {
		return
	}
	m, ok := d.machines[ie.CtxID]
	if !ok {
		return
	}
	d.advance(ctx, m, ev)
}

func (d *Dispatcher) routePvp(ctx context.Context, ev events.Event) {
	switch e := ev.(type) {
	case events.PvpCallUpdate:
		m, ok := d.machines[d.byPvpCallID[e.PvpCallID]]
		if !ok {
			m = d.newMachine()
			d.byPvpCallID[e.PvpCallID] = m.Ctx.ID
		}
		d.advance(ctx, m, ev)

	case events.PvpTextMessage:
		var match *callfsm.Machine
		ambiguous := false
		for _, m := range d.machines {
			if m.Ctx.PvpUserID == e.SenderUserID {
				if match != nil {
					ambiguous = true
					break
				}
				match = m
			}
		}
		switch {
		case ambiguous:
			d.log.Warn("dispatcher: ambiguous PVP text message sender, dropping", "senderUserId", e.SenderUserID)
		case match != nil:
			d.advance(ctx, match, ev)
		}
	}
}

func (d *Dispatcher) routeSsp(ctx context.Context, ev events.Event) {
	switch e := ev.(type) {
	case events.SspIncoming:
		m, ok := d.machines[d.bySspCallID[e.SspCallID]]
		if !ok {
			m = d.newMachine()
			d.bySspCallID[e.SspCallID] = m.Ctx.ID
		}
		d.advance(ctx, m, ev)

	case events.SspCallStateUpdate:
		if m, ok := d.machines[d.bySspCallID[e.SspCallID]]; ok {
			d.advance(ctx, m, ev)
		}

	case events.SspMediaStateUpdate:
		if m, ok := d.machines[d.bySspCallID[e.SspCallID]]; ok {
			d.advance(ctx, m, ev)
		}
	}
}

func (d *Dispatcher) newMachine() *callfsm.Machine {
	id := callctx.NextID(d.pid)
	cc := callctx.New(id)
	m := callfsm.New(cc, d.deps, d.log.With("ctxId", id))
	d.machines[id] = m
	return m
}

// advance feeds ev to m, then refreshes the correlation indices (a context
// can learn its PVP or SSP call id only after an action runs) and reaps m if
// it has reached the terminal state.
func (d *Dispatcher) advance(ctx context.Context, m *callfsm.Machine, ev events.Event) {
	m.Advance(ctx, ev)

	if m.Ctx.HasPvpCallID() {
		d.byPvpCallID[m.Ctx.PvpCallID] = m.Ctx.ID
	}
	if m.Ctx.HasSspCallID() {
		d.bySspCallID[m.Ctx.SspCallID] = m.Ctx.ID
	}

	if m.Terminated() {
		d.reap(m)
	}
}

func (d *Dispatcher) reap(m *callfsm.Machine) {
	delete(d.machines, m.Ctx.ID)
	// CleanUp has already cleared the context's call ids by now, so the
	// index entries are found by the context id they point at.
	for pvpCallID, ctxID := range d.byPvpCallID {
		if ctxID == m.Ctx.ID {
			delete(d.byPvpCallID, pvpCallID)
		}
	}
	for sspCallID, ctxID := range d.bySspCallID {
		if ctxID == m.Ctx.ID {
			delete(d.bySspCallID, sspCallID)
		}
	}
}
