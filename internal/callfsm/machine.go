// Package callfsm implements the per-call hierarchical state machine: the
// init state decides call origin, then one of two parallel regions
// (fromPvp, fromSsp) drives the bridge to a single terminal sink whose
// on-entry action releases both sides.
package callfsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Infactum/tg2sip/internal/callctx"
	"github.com/Infactum/tg2sip/internal/config"
	"github.com/Infactum/tg2sip/internal/contactcache"
	"github.com/Infactum/tg2sip/internal/events"
	"github.com/Infactum/tg2sip/internal/queue"
	"github.com/Infactum/tg2sip/internal/ratelimit"
)

// State enumerates every node of the hierarchical machine described in
// spec §4.4. A naive nested-switch implementation is acceptable provided
// every non-terminal state of a region can still reach the terminal sink;
// Advance below satisfies that by checking region-wide terminal events
// before the per-state table.
type State int

const (
	StateInit State = iota
	StateFromPvpSspWaitMedia
	StateFromPvpWaitPvp
	StateFromPvpWaitDtmf
	StateFromSspSspWaitConfirm
	StateFromSspWaitPvp
	StateFromSspSspWaitMedia
	StateFromSspWaitDtmf
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFromPvpSspWaitMedia:
		return "fromPvp.sspWaitMedia"
	case StateFromPvpWaitPvp:
		return "fromPvp.waitPvp"
	case StateFromPvpWaitDtmf:
		return "fromPvp.waitDtmf"
	case StateFromSspSspWaitConfirm:
		return "fromSsp.sspWaitConfirm"
	case StateFromSspWaitPvp:
		return "fromSsp.waitPvp"
	case StateFromSspSspWaitMedia:
		return "fromSsp.sspWaitMedia"
	case StateFromSspWaitDtmf:
		return "fromSsp.waitDtmf"
	case StateTerminal:
		return "X"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ProtocolCaps are the PVP call-protocol parameters common to both
// createCall and acceptCall.
type ProtocolCaps struct {
	UDPP2P       bool
	UDPReflector bool
	MinLayer     int
	MaxLayer     int
}

// UserProfile is the subset of a PVP user record DialSip needs to build
// diagnostic SSP headers.
type UserProfile struct {
	FirstName string
	LastName  string
	Username  string
	Phone     string
}

// Controller is the shared handle to the PVP media/control object created by
// CreateTgVoip. Its lifetime is owned jointly by the Context and the PVP
// adapter; Stop must be idempotent.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
}

// PvpClient is the narrow contract callfsm needs from the PVP collaborator.
// It embeds contactcache.Resolver so the same adapter backs both contact
// resolution and call signalling.
type PvpClient interface {
	contactcache.Resolver

	CreateCall(ctx context.Context, userID int64, caps ProtocolCaps) (pvpCallID int64, err error)
	AcceptCall(ctx context.Context, pvpCallID int64, caps ProtocolCaps) error
	DiscardCall(ctx context.Context, pvpCallID int64, isDisconnected bool, durationSeconds int, connectionID int64) error
	GetUserProfile(ctx context.Context, userID int64) (UserProfile, error)
	NewController(ctx context.Context, update events.PvpCallUpdate) (Controller, error)

	// MaxLayer reports the PVP library's own API layer version, used as the
	// protocol ceiling spec §4.4 assigns to createCall/acceptCall (minLayer
	// is the spec-fixed 65; maxLayer is "whatever the PVP library reports").
	MaxLayer() int
}

// SspClient is the narrow contract callfsm needs from the SSP collaborator.
type SspClient interface {
	Dial(ctx context.Context, callbackURI string, headers map[string]string) (sspCallID string, err error)
	AnswerRinging(ctx context.Context, sspCallID string) error
	AnswerOK(ctx context.Context, sspCallID string) error
	Hangup(ctx context.Context, sspCallID string, reason callctx.HangupReason) error
	DialDtmf(ctx context.Context, sspCallID string, digits string) error
	BridgeAudio(ctx context.Context, sspCallID string, controller Controller) error
}

// Deps bundles every collaborator an action may call, shared read-only
// across all live machines.
type Deps struct {
	Pvp      PvpClient
	Ssp      SspClient
	Cache    *contactcache.Cache
	Gate     *ratelimit.Gate
	Cfg      *config.Config
	Internal *queue.Queue[events.Event]
}

// Machine is one call's state machine instance plus its correlation
// context. It is never touched concurrently: only the dispatcher goroutine
// calls Advance.
type Machine struct {
	Ctx   *callctx.Context
	state State
	deps  Deps
	log   *slog.Logger

	cleanedUp bool
}

// New creates a machine in the init state for a freshly created context.
func New(ctx *callctx.Context, deps Deps, log *slog.Logger) *Machine {
	return &Machine{Ctx: ctx, state: StateInit, deps: deps, log: log}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// Terminated reports whether the machine has reached X.
func (m *Machine) Terminated() bool { return m.state == StateTerminal }

// Advance feeds one event to the machine, per the transition table in
// spec §4.4. Actions never return an error to the caller: a failure is
// posted onto the internal queue as an events.InternalError and delivered
// back to this same machine (by ctxId) on a later dispatcher iteration.
func (m *Machine) Advance(ctx context.Context, ev events.Event) {
	if m.state == StateTerminal {
		return
	}

	switch m.state {
	case StateInit:
		m.advanceInit(ctx, ev)
		return
	}

	// Region-wide terminal transitions apply to every non-terminal state
	// of both regions before the per-state table is consulted.
	if m.handleRegionTerminal(ctx, ev) {
		return
	}

	switch m.state {
	case StateFromPvpSspWaitMedia:
		m.advanceFromPvpSspWaitMedia(ctx, ev)
	case StateFromPvpWaitPvp:
		m.advanceFromPvpWaitPvp(ctx, ev)
	case StateFromPvpWaitDtmf:
		m.advanceFromPvpWaitDtmf(ctx, ev)
	case StateFromSspSspWaitConfirm:
		m.advanceFromSspSspWaitConfirm(ctx, ev)
	case StateFromSspWaitPvp:
		m.advanceFromSspWaitPvp(ctx, ev)
	case StateFromSspSspWaitMedia:
		m.advanceFromSspSspWaitMedia(ctx, ev)
	case StateFromSspWaitDtmf:
		m.advanceFromSspWaitDtmf(ctx, ev)
	}
}

// handleRegionTerminal implements the three terminal transitions shared by
// both regions: PVP-terminal, SSP-terminal, and InternalError.
func (m *Machine) handleRegionTerminal(ctx context.Context, ev events.Event) bool {
	switch e := ev.(type) {
	case events.PvpCallUpdate:
		if e.State == events.PvpCallDiscarded || e.State == events.PvpCallError {
			m.cleanTgID()
			m.enterTerminal(ctx)
			return true
		}
	case events.SspCallStateUpdate:
		if e.State == events.SspDisconnected {
			m.cleanSipID()
			m.enterTerminal(ctx)
			return true
		}
	case events.InternalError:
		m.setHangupPrm(e)
		m.enterTerminal(ctx)
		return true
	}
	return false
}

func (m *Machine) emitInternalError(statusCode int, reason string) {
	m.deps.Internal.Push(events.InternalError{
		CtxID:      m.Ctx.ID,
		StatusCode: statusCode,
		Reason:     reason,
	})
}

func (m *Machine) enterTerminal(ctx context.Context) {
	m.state = StateTerminal
	m.CleanUp(ctx)
}

func logOrNil(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
