package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/Infactum/tg2sip/internal/callctx"
	"github.com/Infactum/tg2sip/internal/callfsm"
	"github.com/Infactum/tg2sip/internal/config"
	"github.com/Infactum/tg2sip/internal/contactcache"
	"github.com/Infactum/tg2sip/internal/events"
	"github.com/Infactum/tg2sip/internal/queue"
	"github.com/Infactum/tg2sip/internal/ratelimit"
)

type fakeController struct{}

func (c *fakeController) Start(ctx context.Context) error { return nil }
func (c *fakeController) Stop() error                     { return nil }

type fakePvp struct {
	createCallID int64
	publicChatID int64
	publicChatOK bool
}

func (f *fakePvp) SearchContacts(ctx context.Context, query string, limit int) ([]int64, error) {
	return nil, nil
}
func (f *fakePvp) GetUser(ctx context.Context, userID int64) (contactcache.Contact, error) {
	return contactcache.Contact{}, nil
}
func (f *fakePvp) SearchPublicChat(ctx context.Context, username string) (int64, bool, error) {
	return f.publicChatID, f.publicChatOK, nil
}
func (f *fakePvp) ImportContacts(ctx context.Context, phone string) (int64, error) { return 0, nil }
func (f *fakePvp) CreateCall(ctx context.Context, userID int64, caps callfsm.ProtocolCaps) (int64, error) {
	return f.createCallID, nil
}
func (f *fakePvp) AcceptCall(ctx context.Context, pvpCallID int64, caps callfsm.ProtocolCaps) error {
	return nil
}
func (f *fakePvp) DiscardCall(ctx context.Context, pvpCallID int64, isDisconnected bool, durationSeconds int, connectionID int64) error {
	return nil
}
func (f *fakePvp) GetUserProfile(ctx context.Context, userID int64) (callfsm.UserProfile, error) {
	return callfsm.UserProfile{}, nil
}
func (f *fakePvp) NewController(ctx context.Context, update events.PvpCallUpdate) (callfsm.Controller, error) {
	return &fakeController{}, nil
}
func (f *fakePvp) MaxLayer() int { return 177 }

type fakeSsp struct {
	dialID      string
	bridgeCalls int
	dtmfCalls   int
}

func (f *fakeSsp) Dial(ctx context.Context, callbackURI string, headers map[string]string) (string, error) {
	return f.dialID, nil
}
func (f *fakeSsp) AnswerRinging(ctx context.Context, sspCallID string) error { return nil }
func (f *fakeSsp) AnswerOK(ctx context.Context, sspCallID string) error     { return nil }
func (f *fakeSsp) Hangup(ctx context.Context, sspCallID string, reason callctx.HangupReason) error {
	return nil
}
func (f *fakeSsp) DialDtmf(ctx context.Context, sspCallID string, digits string) error {
	f.dtmfCalls++
	return nil
}
func (f *fakeSsp) BridgeAudio(ctx context.Context, sspCallID string, controller callfsm.Controller) error {
	f.bridgeCalls++
	return nil
}

func newTestDeps(pvp *fakePvp, ssp *fakeSsp) callfsm.Deps {
	return callfsm.Deps{
		Pvp:      pvp,
		Ssp:      ssp,
		Cache:    contactcache.New(),
		Gate:     ratelimit.New(0, time.Hour),
		Cfg:      &config.Config{CallbackUri: "sip:pbx@host", UDPP2P: true, UDPReflector: true},
		Internal: queue.New[events.Event](),
	}
}

func TestRoutePvpCallUpdateCreatesContextOnMiss(t *testing.T) {
	deps := newTestDeps(&fakePvp{}, &fakeSsp{dialID: "ssp-1"})
	d := New(deps, queue.New[events.Event](), queue.New[events.Event](), nil)

	d.routePvp(context.Background(), events.PvpCallUpdate{PvpCallID: 7, State: events.PvpCallPending, UserID: 7})

	if _, ok := d.byPvpCallID[7]; !ok {
		t.Fatal("expected a context to be indexed by PvpCallID 7")
	}
	if len(d.machines) != 1 {
		t.Fatalf("expected exactly one machine, got %d", len(d.machines))
	}
}

func TestRouteSspIncomingCreatesContextOnMiss(t *testing.T) {
	deps := newTestDeps(&fakePvp{publicChatID: 42, publicChatOK: true}, &fakeSsp{})
	d := New(deps, queue.New[events.Event](), queue.New[events.Event](), nil)

	d.routeSsp(context.Background(), events.SspIncoming{SspCallID: "ssp-1", Extension: "tg#alice"})

	if _, ok := d.bySspCallID["ssp-1"]; !ok {
		t.Fatal("expected a context to be indexed by SspCallID ssp-1")
	}
}

func TestRouteSspStateUpdateDropsUnknownCallID(t *testing.T) {
	deps := newTestDeps(&fakePvp{}, &fakeSsp{})
	d := New(deps, queue.New[events.Event](), queue.New[events.Event](), nil)

	d.routeSsp(context.Background(), events.SspCallStateUpdate{SspCallID: "unknown", State: events.SspEarly})

	if len(d.machines) != 0 {
		t.Fatalf("expected no machine to be created for an unknown SspCallID, got %d", len(d.machines))
	}
}

// driveToFromPvpWaitDtmf advances a freshly created machine through the
// fromPvp region's happy path up to waitDtmf, the same sequence
// callfsm.TestPvpOriginatedHappyPath exercises, so these dispatcher tests
// reach a realistic non-init state without reaching into callfsm internals.
func driveToFromPvpWaitDtmf(ctx context.Context, m *callfsm.Machine, pvpCallID, userID int64, sspCallID string) {
	m.Advance(ctx, events.PvpCallUpdate{PvpCallID: pvpCallID, State: events.PvpCallPending, UserID: userID})
	m.Advance(ctx, events.SspMediaStateUpdate{SspCallID: sspCallID, HasMedia: true})
	m.Advance(ctx, events.PvpCallUpdate{PvpCallID: pvpCallID, State: events.PvpCallReady})
}

func TestRoutePvpTextMessageExactlyOneMatchAdvances(t *testing.T) {
	ssp := &fakeSsp{dialID: "ssp-1"}
	deps := newTestDeps(&fakePvp{}, ssp)
	d := New(deps, queue.New[events.Event](), queue.New[events.Event](), nil)

	m := d.newMachine()
	m.Ctx.PvpUserID = 42
	driveToFromPvpWaitDtmf(context.Background(), m, 7, 42, "ssp-1")
	if m.State() != callfsm.StateFromPvpWaitDtmf {
		t.Fatalf("setup failed, state = %v", m.State())
	}

	d.routePvp(context.Background(), events.PvpTextMessage{SenderUserID: 42, Text: "123"})

	if m.State() != callfsm.StateFromPvpWaitDtmf {
		t.Fatalf("unexpected state transition: %v", m.State())
	}
	if ssp.dtmfCalls != 1 {
		t.Fatalf("expected the single matching context to issue one DialDtmf, got %d", ssp.dtmfCalls)
	}
}

func TestRoutePvpTextMessageAmbiguousIsDropped(t *testing.T) {
	deps := newTestDeps(&fakePvp{}, &fakeSsp{})
	d := New(deps, queue.New[events.Event](), queue.New[events.Event](), nil)

	a := d.newMachine()
	a.Ctx.PvpUserID = 42
	b := d.newMachine()
	b.Ctx.PvpUserID = 42

	d.routePvp(context.Background(), events.PvpTextMessage{SenderUserID: 42, Text: "123"})

	if len(d.machines) != 2 {
		t.Fatalf("ambiguous delivery must not mutate either context, got %d machines", len(d.machines))
	}
}

func TestRoutePvpTextMessageZeroMatchesIsDropped(t *testing.T) {
	deps := newTestDeps(&fakePvp{}, &fakeSsp{})
	d := New(deps, queue.New[events.Event](), queue.New[events.Event](), nil)

	d.routePvp(context.Background(), events.PvpTextMessage{SenderUserID: 99, Text: "123"})

	if len(d.machines) != 0 {
		t.Fatalf("no context should be created for a stray PvpTextMessage, got %d", len(d.machines))
	}
}

func TestAdvanceReapsTerminatedContext(t *testing.T) {
	deps := newTestDeps(&fakePvp{}, &fakeSsp{dialID: "ssp-1"})
	d := New(deps, queue.New[events.Event](), queue.New[events.Event](), nil)

	m := d.newMachine()
	driveToFromPvpWaitDtmf(context.Background(), m, 5, 42, "ssp-1")
	d.byPvpCallID[5] = m.Ctx.ID

	d.advance(context.Background(), m, events.PvpCallUpdate{State: events.PvpCallDiscarded})

	if len(d.machines) != 0 {
		t.Fatal("terminated context should have been reaped")
	}
	if _, ok := d.byPvpCallID[5]; ok {
		t.Fatal("reap should also clear the PvpCallID index")
	}
}

func TestRouteInternalErrorRoutesByCtxID(t *testing.T) {
	deps := newTestDeps(&fakePvp{}, &fakeSsp{dialID: "ssp-1"})
	d := New(deps, queue.New[events.Event](), queue.New[events.Event](), nil)

	m := d.newMachine()
	driveToFromPvpWaitDtmf(context.Background(), m, 9, 42, "ssp-1")

	d.routeInternal(context.Background(), events.InternalError{CtxID: m.Ctx.ID, StatusCode: 500, Reason: "boom"})

	if !m.Terminated() {
		t.Fatal("InternalError should drive the matching context to terminal")
	}
}
