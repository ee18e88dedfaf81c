package callfsm

import (
	"context"
	"errors"
	"strconv"

	"github.com/Infactum/tg2sip/internal/callctx"
	"github.com/Infactum/tg2sip/internal/contactcache"
	"github.com/Infactum/tg2sip/internal/events"
)

// Status codes used in InternalError.StatusCode, surfaced to SSP callers as
// a response class per spec §7.
const (
	StatusInternalServerError = 500
	StatusNotFound            = 404
	StatusBadExtension        = 420
)

// ---- init region ----

func (m *Machine) advanceInit(ctx context.Context, ev events.Event) {
	switch e := ev.(type) {
	case events.PvpCallUpdate:
		if e.State == events.PvpCallPending {
			m.Ctx.PvpCallID = e.PvpCallID
			m.Ctx.PvpUserID = e.UserID
			if m.deps.Cfg.HasCallbackUri() {
				m.dialSip(ctx)
				m.state = StateFromPvpSspWaitMedia
				return
			}
			m.enterTerminal(ctx)
			return
		}
		m.enterTerminal(ctx)
	case events.SspIncoming:
		m.Ctx.SspCallID = e.SspCallID
		m.acceptIncomingSip(ctx, e.Extension)
	default:
		m.enterTerminal(ctx)
	}
}

// ---- fromPvp region ----

func (m *Machine) advanceFromPvpSspWaitMedia(ctx context.Context, ev events.Event) {
	if e, ok := ev.(events.SspMediaStateUpdate); ok && e.HasMedia {
		m.answerTg(ctx)
		m.state = StateFromPvpWaitPvp
	}
}

func (m *Machine) advanceFromPvpWaitPvp(ctx context.Context, ev events.Event) {
	if e, ok := ev.(events.PvpCallUpdate); ok && e.State == events.PvpCallReady {
		if !m.createTgVoipAndBridge(ctx, e) {
			return
		}
		m.state = StateFromPvpWaitDtmf
	}
}

func (m *Machine) advanceFromPvpWaitDtmf(ctx context.Context, ev events.Event) {
	if e, ok := ev.(events.PvpTextMessage); ok && IsDtmfString(e.Text) {
		m.dialDtmf(ctx, e.Text)
	}
}

// ---- fromSsp region ----

func (m *Machine) advanceFromSspSspWaitConfirm(ctx context.Context, ev events.Event) {
	if e, ok := ev.(events.SspCallStateUpdate); ok && e.State == events.SspEarly {
		m.dialTg(ctx)
		m.state = StateFromSspWaitPvp
	}
}

func (m *Machine) advanceFromSspWaitPvp(ctx context.Context, ev events.Event) {
	e, ok := ev.(events.PvpCallUpdate)
	if !ok || e.State != events.PvpCallReady {
		return
	}
	m.Ctx.PvpUserID = e.UserID
	controller, err := m.deps.Pvp.NewController(ctx, e)
	if err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return
	}
	if err := controller.Start(ctx); err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return
	}
	m.Ctx.Controller = controller
	if err := m.deps.Ssp.AnswerOK(ctx, m.Ctx.SspCallID); err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return
	}
	m.state = StateFromSspSspWaitMedia
}

func (m *Machine) advanceFromSspSspWaitMedia(ctx context.Context, ev events.Event) {
	e, ok := ev.(events.SspMediaStateUpdate)
	if !ok || !e.HasMedia {
		return
	}
	controller, _ := m.Ctx.Controller.(Controller)
	if err := m.deps.Ssp.BridgeAudio(ctx, m.Ctx.SspCallID, controller); err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return
	}
	m.state = StateFromSspWaitDtmf
}

func (m *Machine) advanceFromSspWaitDtmf(ctx context.Context, ev events.Event) {
	if e, ok := ev.(events.PvpTextMessage); ok && IsDtmfString(e.Text) {
		m.dialDtmf(ctx, e.Text)
	}
}

// createTgVoipAndBridge implements the fromPvp.waitPvp CreateTgVoip;BridgeAudio
// compound action; it reports false and has already emitted an
// InternalError if either step fails.
func (m *Machine) createTgVoipAndBridge(ctx context.Context, update events.PvpCallUpdate) bool {
	controller, err := m.deps.Pvp.NewController(ctx, update)
	if err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return false
	}
	if err := controller.Start(ctx); err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return false
	}
	m.Ctx.Controller = controller
	if err := m.deps.Ssp.BridgeAudio(ctx, m.Ctx.SspCallID, controller); err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return false
	}
	return true
}

// ---- field-update-only actions ----

func (m *Machine) cleanTgID()  { m.Ctx.PvpCallID = 0 }
func (m *Machine) cleanSipID() { m.Ctx.SspCallID = callctx.InvalidSspCallID }

func (m *Machine) setHangupPrm(e events.InternalError) {
	m.Ctx.HangupReason = callctx.HangupReason{Code: e.StatusCode, Reason: e.Reason}
}

// ---- actions with collaborator side effects ----

func (m *Machine) dialSip(ctx context.Context) {
	profile, err := m.deps.Pvp.GetUserProfile(ctx, m.Ctx.PvpUserID)
	if err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return
	}

	headers := map[string]string{
		"X-GW-Context": m.Ctx.ID,
		"X-TG-ID":      strconv.FormatInt(m.Ctx.PvpUserID, 10),
	}
	if profile.FirstName != "" {
		headers["X-TG-FirstName"] = profile.FirstName
	}
	if profile.LastName != "" {
		headers["X-TG-LastName"] = profile.LastName
	}
	if profile.Username != "" {
		headers["X-TG-Username"] = profile.Username
	}
	if profile.Phone != "" {
		headers["X-TG-Phone"] = profile.Phone
	}

	sspCallID, err := m.deps.Ssp.Dial(ctx, m.deps.Cfg.CallbackUri, headers)
	if err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return
	}
	m.Ctx.SspCallID = sspCallID
}

func (m *Machine) acceptIncomingSip(ctx context.Context, extension string) {
	kind, value := ParseExtension(extension)
	switch kind {
	case ExtensionUsername:
		m.Ctx.ExtUsername = value
	case ExtensionPhone:
		m.Ctx.ExtPhone = value
	case ExtensionUserID:
		userID, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			m.emitInternalError(StatusBadExtension, "bad extension")
			m.setHangupPrm(events.InternalError{StatusCode: StatusBadExtension, Reason: "bad extension"})
			m.enterTerminal(ctx)
			return
		}
		m.Ctx.PvpUserID = userID
	default:
		m.emitInternalError(StatusBadExtension, "bad extension")
		m.setHangupPrm(events.InternalError{StatusCode: StatusBadExtension, Reason: "bad extension"})
		m.enterTerminal(ctx)
		return
	}

	if err := m.deps.Ssp.AnswerRinging(ctx, m.Ctx.SspCallID); err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
		return
	}
	m.state = StateFromSspSspWaitConfirm
}

func (m *Machine) dialDtmf(ctx context.Context, text string) {
	if err := m.deps.Ssp.DialDtmf(ctx, m.Ctx.SspCallID, text); err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
	}
}

// dialTg implements the resolver described in spec §4.5: username, then
// phone, then a bare pvpUserId, each guarded by the rate-limit gate.
func (m *Machine) dialTg(ctx context.Context) {
	if m.deps.Gate.Blocked() {
		m.emitInternalError(StatusInternalServerError, m.deps.Gate.FloodWaitReason())
		return
	}

	userID, err := m.resolveTarget(ctx)
	if err != nil {
		if errors.Is(err, contactcache.ErrNotRegistered) {
			m.emitInternalError(StatusNotFound, "not registered")
			return
		}
		m.emitInternalError(StatusInternalServerError, err.Error())
		m.deps.Gate.Observe(err.Error())
		return
	}

	caps := ProtocolCaps{UDPP2P: m.deps.Cfg.UDPP2P, UDPReflector: m.deps.Cfg.UDPReflector, MinLayer: 65, MaxLayer: m.deps.Pvp.MaxLayer()}
	pvpCallID, err := m.deps.Pvp.CreateCall(ctx, userID, caps)
	if err != nil {
		m.deps.Gate.Observe(err.Error())
		m.emitInternalError(StatusInternalServerError, err.Error())
		return
	}
	m.Ctx.PvpCallID = pvpCallID
}

func (m *Machine) resolveTarget(ctx context.Context) (int64, error) {
	switch {
	case m.Ctx.ExtUsername != "":
		return m.deps.Cache.ResolveUsername(ctx, m.deps.Pvp, m.Ctx.ExtUsername)
	case m.Ctx.ExtPhone != "":
		return m.deps.Cache.ResolvePhone(ctx, m.deps.Pvp, m.Ctx.ExtPhone)
	default:
		return m.Ctx.PvpUserID, nil
	}
}

func (m *Machine) answerTg(ctx context.Context) {
	caps := ProtocolCaps{UDPP2P: m.deps.Cfg.UDPP2P, UDPReflector: m.deps.Cfg.UDPReflector, MinLayer: 65, MaxLayer: m.deps.Pvp.MaxLayer()}
	if err := m.deps.Pvp.AcceptCall(ctx, m.Ctx.PvpCallID, caps); err != nil {
		m.emitInternalError(StatusInternalServerError, err.Error())
	}
}

// CleanUp is the terminal state's on-entry action. It is idempotent: a
// second call is a no-op, satisfying invariant 1/2 from spec §8 even if the
// dispatcher feeds two terminal-triggering events back to back.
func (m *Machine) CleanUp(ctx context.Context) {
	if m.cleanedUp {
		return
	}
	m.cleanedUp = true

	log := logOrNil(m.log)

	if controller, ok := m.Ctx.Controller.(Controller); ok && controller != nil {
		if err := controller.Stop(); err != nil {
			log.Warn("controller stop failed during cleanup", "ctxId", m.Ctx.ID, "err", err)
		}
		m.Ctx.Controller = nil
	}

	if m.Ctx.HasPvpCallID() {
		if err := m.deps.Pvp.DiscardCall(ctx, m.Ctx.PvpCallID, false, 0, m.Ctx.PvpCallID); err != nil {
			log.Warn("discardCall failed during cleanup", "ctxId", m.Ctx.ID, "err", err)
		}
		m.Ctx.PvpCallID = 0
	}

	if m.Ctx.HasSspCallID() {
		if err := m.deps.Ssp.Hangup(ctx, m.Ctx.SspCallID, m.Ctx.HangupReason); err != nil {
			log.Warn("hangup failed during cleanup", "ctxId", m.Ctx.ID, "err", err)
		}
		m.Ctx.SspCallID = callctx.InvalidSspCallID
	}
}
