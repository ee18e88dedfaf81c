package sspadapter

import (
	"github.com/emiago/sipgo/sip"

	"github.com/Infactum/tg2sip/internal/events"
)

// handleInvite is the SSP adapter's incoming-call hook: it registers the
// call under its SIP Call-ID (used verbatim as the opaque sspCallID) and
// emits SspIncoming with the user part of the request URI as the extension,
// per spec §4.7.
func (a *Adapter) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	sspCallID := req.CallID().Value()

	a.mu.Lock()
	a.calls[sspCallID] = &call{direction: dirInbound, req: req, serverTx: tx}
	a.mu.Unlock()

	a.out.Push(events.SspIncoming{
		SspCallID: sspCallID,
		Extension: req.Recipient.User,
	})
}

func (a *Adapter) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	sspCallID := req.CallID().Value()

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(res); err != nil {
		a.log.Warn("sspadapter: failed to respond to BYE", "sspCallId", sspCallID, "err", err)
	}

	a.finishCall(sspCallID)
	a.out.Push(events.SspCallStateUpdate{SspCallID: sspCallID, State: events.SspDisconnected})
}

func (a *Adapter) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	sspCallID := req.CallID().Value()

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(res); err != nil {
		a.log.Warn("sspadapter: failed to respond to CANCEL", "sspCallId", sspCallID, "err", err)
	}

	a.finishCall(sspCallID)
	a.out.Push(events.SspCallStateUpdate{SspCallID: sspCallID, State: events.SspDisconnected})
}

func (a *Adapter) handleAck(req *sip.Request, tx sip.ServerTransaction) {
	// ACK confirms a 2xx response to an inbound INVITE; no application
	// action is required once the dialog is already tracked as confirmed.
}

func (a *Adapter) finishCall(sspCallID string) {
	a.mu.Lock()
	c, ok := a.calls[sspCallID]
	if ok {
		delete(a.calls, sspCallID)
	}
	a.mu.Unlock()
	if ok && c.rtp != nil {
		c.rtp.Close()
	}
}
