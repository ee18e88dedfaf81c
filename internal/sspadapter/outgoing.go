package sspadapter

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/Infactum/tg2sip/internal/callctx"
	"github.com/Infactum/tg2sip/internal/callfsm"
	"github.com/Infactum/tg2sip/internal/events"
	"github.com/Infactum/tg2sip/internal/media"
)

// Dial sends an INVITE to callbackURI with the given extra headers and
// returns immediately with a freshly minted SSP call id; the dial's
// progress (Early/Confirmed/Disconnected) arrives later as
// SspCallStateUpdate events, per spec §4.4's fromPvp region.
func (a *Adapter) Dial(ctx context.Context, callbackURI string, headers map[string]string) (string, error) {
	var target sip.Uri
	if err := sip.ParseUri(callbackURI, &target); err != nil {
		return "", fmt.Errorf("sspadapter: invalid callback_uri %q: %w", callbackURI, err)
	}

	sspCallID := uuid.NewString()
	rtp, err := newRTPStream(media.CodecPCMU)
	if err != nil {
		return "", fmt.Errorf("sspadapter: allocate RTP socket: %w", err)
	}

	invite := sip.NewRequest(sip.INVITE, target)
	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	from := a.localURI()
	fromParams := sip.NewParams()
	fromParams.Add("tag", uuid.NewString())
	invite.AppendHeader(&sip.FromHeader{Address: from, Params: fromParams})
	invite.AppendHeader(&sip.ToHeader{Address: target, Params: sip.NewParams()})

	callID := sip.CallIDHeader(sspCallID)
	invite.AppendHeader(&callID)
	invite.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	invite.AppendHeader(&sip.ContactHeader{Address: a.localURI()})

	for name, value := range headers {
		invite.AppendHeader(sip.NewHeader(name, value))
	}

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)
	invite.SetBody(buildOffer(a.cfg.PublicAddress, rtp.localPort()))

	tx, err := a.client.TransactionRequest(ctx, invite)
	if err != nil {
		rtp.Close()
		return "", fmt.Errorf("sspadapter: send INVITE: %w", err)
	}

	c := &call{direction: dirOutbound, req: invite, clientTx: tx, rtp: rtp}
	a.mu.Lock()
	a.calls[sspCallID] = c
	a.mu.Unlock()

	go a.watchOutboundResponses(sspCallID, c, invite, tx)

	return sspCallID, nil
}

// watchOutboundResponses translates a client transaction's provisional and
// final responses into SspCallStateUpdate/SspMediaStateUpdate events.
func (a *Adapter) watchOutboundResponses(sspCallID string, c *call, invite *sip.Request, tx sip.ClientTransaction) {
	for {
		select {
		case resp, ok := <-tx.Responses():
			if !ok || resp == nil {
				return
			}
			switch {
			case resp.StatusCode == 180 || resp.StatusCode == 183:
				a.out.Push(events.SspCallStateUpdate{SspCallID: sspCallID, State: events.SspEarly})
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				a.handleOutboundAnswer(sspCallID, c, invite, resp, tx)
				a.out.Push(events.SspCallStateUpdate{SspCallID: sspCallID, State: events.SspConfirmed})
			case resp.StatusCode >= 300:
				a.out.Push(events.SspCallStateUpdate{SspCallID: sspCallID, State: events.SspDisconnected})
				return
			}
		case <-tx.Done():
			return
		}
	}
}

func (a *Adapter) handleOutboundAnswer(sspCallID string, c *call, invite *sip.Request, resp *sip.Response, tx sip.ClientTransaction) {
	c.confirmed = true

	if body := resp.Body(); body != nil {
		if addr, port, codec, err := parseRemoteMedia(body); err == nil {
			c.rtp.codec = codec
			if err := c.rtp.setRemote(addr, port); err != nil {
				a.log.Warn("sspadapter: failed to set remote RTP endpoint", "sspCallId", sspCallID, "err", err)
			} else {
				a.out.Push(events.SspMediaStateUpdate{SspCallID: sspCallID, HasMedia: true})
			}
		} else {
			a.log.Warn("sspadapter: failed to parse SDP answer", "sspCallId", sspCallID, "err", err)
		}
	}

	ack := sip.NewAckRequest(invite, resp, nil)
	if err := a.client.WriteRequest(ack); err != nil {
		a.log.Warn("sspadapter: failed to send ACK", "sspCallId", sspCallID, "err", err)
	}
}

// AnswerRinging sends a 180 Ringing on an inbound dialog. It is also used
// as a provisional "accepted" signal before the final answer per spec §4.4:
// once the 180 is sent, the dialog is early and an SspEarly update is
// emitted for it.
func (a *Adapter) AnswerRinging(ctx context.Context, sspCallID string) error {
	c, ok := a.getCall(sspCallID)
	if !ok || c.serverTx == nil {
		return fmt.Errorf("sspadapter: unknown inbound call %s", sspCallID)
	}
	res := sip.NewResponseFromRequest(c.req, 180, "Ringing", nil)
	if err := c.serverTx.Respond(res); err != nil {
		return err
	}
	a.out.Push(events.SspCallStateUpdate{SspCallID: sspCallID, State: events.SspEarly})
	return nil
}

// AnswerOK sends the final 200 OK with an SDP answer on an inbound dialog.
func (a *Adapter) AnswerOK(ctx context.Context, sspCallID string) error {
	c, ok := a.getCall(sspCallID)
	if !ok || c.serverTx == nil {
		return fmt.Errorf("sspadapter: unknown inbound call %s", sspCallID)
	}

	if c.rtp == nil {
		rtp, err := newRTPStream(media.CodecPCMU)
		if err != nil {
			return fmt.Errorf("sspadapter: allocate RTP socket: %w", err)
		}
		c.rtp = rtp
	}

	if body := c.req.Body(); body != nil {
		if addr, port, codec, err := parseRemoteMedia(body); err == nil {
			c.rtp.codec = codec
			if err := c.rtp.setRemote(addr, port); err != nil {
				a.log.Warn("sspadapter: failed to set remote RTP endpoint", "sspCallId", sspCallID, "err", err)
			}
		}
	}

	res := sip.NewResponseFromRequest(c.req, 200, "OK", buildOffer(a.cfg.PublicAddress, c.rtp.localPort()))
	contentType := sip.ContentTypeHeader("application/sdp")
	res.AppendHeader(&contentType)
	if err := c.serverTx.Respond(res); err != nil {
		return err
	}

	c.confirmed = true
	a.out.Push(events.SspMediaStateUpdate{SspCallID: sspCallID, HasMedia: true})
	return nil
}

// Hangup tears down sspCallID: a BYE for a confirmed dialog, a CANCEL for
// an outbound dialog still ringing, or a final error response for an
// inbound dialog not yet answered. reason.Reason becomes the response text.
func (a *Adapter) Hangup(ctx context.Context, sspCallID string, reason callctx.HangupReason) error {
	c, ok := a.getCall(sspCallID)
	if !ok {
		return nil // already cleaned up
	}
	defer a.finishCall(sspCallID)

	statusCode, statusReason := hangupStatus(reason)

	switch {
	case c.confirmed:
		return a.sendBye(ctx, c)
	case c.direction == dirOutbound && c.clientTx != nil:
		return a.sendCancel(ctx, c)
	case c.direction == dirInbound && c.serverTx != nil:
		res := sip.NewResponseFromRequest(c.req, statusCode, statusReason, nil)
		return c.serverTx.Respond(res)
	}
	return nil
}

func hangupStatus(reason callctx.HangupReason) (int, string) {
	if reason.Code == 0 {
		return 480, "Temporarily Unavailable"
	}
	if reason.Reason == "" {
		return reason.Code, "Call Failed"
	}
	return reason.Code, reason.Reason
}

// sendCancel builds a CANCEL from the original INVITE per RFC 3261 §9.1:
// matching Via/From/To/Call-ID and the same CSeq number with method CANCEL.
func (a *Adapter) sendCancel(ctx context.Context, c *call) error {
	cancelReq := sip.NewRequest(sip.CANCEL, c.req.Recipient)
	sip.CopyHeaders("Via", c.req, cancelReq)
	sip.CopyHeaders("From", c.req, cancelReq)
	sip.CopyHeaders("To", c.req, cancelReq)
	sip.CopyHeaders("Call-ID", c.req, cancelReq)

	if cseq := c.req.CSeq(); cseq != nil {
		cancelReq.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.CANCEL})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)

	tx, err := a.client.TransactionRequest(ctx, cancelReq)
	if err != nil {
		return fmt.Errorf("sspadapter: send CANCEL: %w", err)
	}
	defer tx.Terminate()
	return nil
}

func (a *Adapter) sendBye(ctx context.Context, c *call) error {
	target := c.req.Recipient
	if c.direction == dirInbound {
		target = c.req.From().Address
	}
	bye := sip.NewRequest(sip.BYE, target)
	sip.CopyHeaders("From", c.req, bye)
	sip.CopyHeaders("To", c.req, bye)
	sip.CopyHeaders("Call-ID", c.req, bye)

	if cseq := c.req.CSeq(); cseq != nil {
		bye.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo + 1, MethodName: sip.BYE})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)

	tx, err := a.client.TransactionRequest(ctx, bye)
	if err != nil {
		return fmt.Errorf("sspadapter: send BYE: %w", err)
	}
	defer tx.Terminate()
	return nil
}

// DialDtmf forwards a validated DTMF string as a burst of RFC 4733 RTP
// events on the call's media socket.
func (a *Adapter) DialDtmf(ctx context.Context, sspCallID string, digits string) error {
	c, ok := a.getCall(sspCallID)
	if !ok || c.rtp == nil {
		return fmt.Errorf("sspadapter: no media for call %s", sspCallID)
	}
	payloads, err := media.EncodeDigits(digits)
	if err != nil {
		return err
	}
	return c.rtp.writeDTMF(payloads)
}

// BridgeAudio links the SSP call's RTP socket with the PVP controller's
// media stream. The fsm layer treats controller opaquely as
// callfsm.Controller; the SSP adapter recovers the media.Stream side here.
func (a *Adapter) BridgeAudio(ctx context.Context, sspCallID string, controller callfsm.Controller) error {
	c, ok := a.getCall(sspCallID)
	if !ok || c.rtp == nil {
		return fmt.Errorf("sspadapter: no media for call %s", sspCallID)
	}
	peer, ok := controller.(media.Stream)
	if !ok {
		return fmt.Errorf("sspadapter: controller does not expose a media stream")
	}
	go media.Bridge(ctx, a.log, c.rtp, peer)
	return nil
}
