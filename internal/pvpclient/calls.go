package pvpclient

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/Infactum/tg2sip/internal/callfsm"
	"github.com/Infactum/tg2sip/internal/events"
)

// floodReason translates a gotd/td RPC error into the prose spec.md's
// rate-limit extractor parses ("Too Many Requests: retry after N" / a
// message containing "PEER_FLOOD"). The original gateway
// (_examples/original_source/tg2sip/gateway.cpp: ParseRLE) parses that
// prose directly out of TDLib's own human-readable error text; gotd/td
// instead surfaces flood control as a typed tgerr.Error{Type, Argument}
// (e.g. Type "FLOOD_WAIT", Argument <seconds>), so this is the one
// translation step between the two clients' wire formats. Errors that
// aren't a recognized flood-control type pass through unchanged.
func floodReason(err error) string {
	if rpcErr, ok := tgerr.As(err); ok {
		switch rpcErr.Type {
		case "FLOOD_WAIT":
			return fmt.Sprintf("Too Many Requests: retry after %d", rpcErr.Argument)
		case "PEER_FLOOD":
			return "PEER_FLOOD"
		}
	}
	return err.Error()
}

// callHandles records the access hash MTProto requires alongside a call id
// for every subsequent phone.* request, since callfsm only threads the bare
// pvpCallID through its actions per spec.
type callHandles struct {
	mu   sync.Mutex
	hash map[int64]int64
}

func newCallHandles() *callHandles {
	return &callHandles{hash: make(map[int64]int64)}
}

func (h *callHandles) put(id, accessHash int64) {
	h.mu.Lock()
	h.hash[id] = accessHash
	h.mu.Unlock()
}

func (h *callHandles) get(id int64) (int64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	accessHash, ok := h.hash[id]
	return accessHash, ok
}

func (h *callHandles) delete(id int64) {
	h.mu.Lock()
	delete(h.hash, id)
	h.mu.Unlock()
}

func protocolFromCaps(caps callfsm.ProtocolCaps) tg.PhoneCallProtocol {
	return tg.PhoneCallProtocol{
		UDPP2P:          caps.UDPP2P,
		UDPReflector:    caps.UDPReflector,
		MinLayer:        caps.MinLayer,
		MaxLayer:        caps.MaxLayer,
		LibraryVersions: []string{"4.0.0"},
	}
}

// CreateCall mirrors the original's createCall td_api call: a
// phone.requestCall with the given protocol capabilities. The g_a hash is a
// random 256-bit value; the original's Diffie-Hellman key exchange itself is
// PVP controller internals, out of core scope per spec.md §1.
func (c *Client) CreateCall(ctx context.Context, userID int64, caps callfsm.ProtocolCaps) (int64, error) {
	if err := c.guardNotWorker(); err != nil {
		return 0, err
	}
	gAHash, err := randomBytes(32)
	if err != nil {
		return 0, fmt.Errorf("pvpclient: generate g_a_hash: %w", err)
	}
	randomID, err := randomInt32()
	if err != nil {
		return 0, err
	}

	result, err := c.api.PhoneRequestCall(ctx, &tg.PhoneRequestCallRequest{
		UserID:   &tg.InputUser{UserID: userID},
		RandomID: randomID,
		GAHash:   gAHash,
		Protocol: protocolFromCaps(caps),
	})
	if err != nil {
		return 0, fmt.Errorf("pvpclient: phone.requestCall: %s", floodReason(err))
	}

	call, ok := result.PhoneCall.(*tg.PhoneCallWaiting)
	if !ok {
		return 0, fmt.Errorf("pvpclient: unexpected phone call state after requestCall")
	}
	c.handles.put(call.ID, call.AccessHash)
	return call.ID, nil
}

// AcceptCall mirrors the original's acceptCall td_api call: a
// phone.acceptCall in response to an UpdatePhoneCall carrying a
// PhoneCallRequested. g_b is a placeholder of the same shape the real DH
// exchange produces; the exchange itself is out of scope (see CreateCall).
func (c *Client) AcceptCall(ctx context.Context, pvpCallID int64, caps callfsm.ProtocolCaps) error {
	if err := c.guardNotWorker(); err != nil {
		return err
	}
	accessHash, ok := c.handles.get(pvpCallID)
	if !ok {
		return fmt.Errorf("pvpclient: unknown call id %d", pvpCallID)
	}
	gB, err := randomBytes(256)
	if err != nil {
		return fmt.Errorf("pvpclient: generate g_b: %w", err)
	}

	_, err = c.api.PhoneAcceptCall(ctx, &tg.PhoneAcceptCallRequest{
		Peer:     tg.InputPhoneCall{ID: pvpCallID, AccessHash: accessHash},
		GB:       gB,
		Protocol: protocolFromCaps(caps),
	})
	if err != nil {
		return fmt.Errorf("pvpclient: phone.acceptCall(%d): %w", pvpCallID, err)
	}
	return nil
}

// DiscardCall mirrors the original's discardCall td_api call. connectionID
// carries the "connection_id = pvpCallId" convention the fsm actions already
// apply (see callfsm.CleanUp) rather than a distinct relay connection id.
func (c *Client) DiscardCall(ctx context.Context, pvpCallID int64, isDisconnected bool, durationSeconds int, connectionID int64) error {
	if err := c.guardNotWorker(); err != nil {
		return err
	}
	defer c.handles.delete(pvpCallID)

	accessHash, ok := c.handles.get(pvpCallID)
	if !ok {
		// Never connected far enough to learn an access hash; nothing to
		// discard on the wire.
		return nil
	}

	var reason tg.PhoneCallDiscardReasonClass = &tg.PhoneCallDiscardReasonHangup{}
	if isDisconnected {
		reason = &tg.PhoneCallDiscardReasonDisconnect{}
	}

	_, err := c.api.PhoneDiscardCall(ctx, &tg.PhoneDiscardCallRequest{
		Peer:         tg.InputPhoneCall{ID: pvpCallID, AccessHash: accessHash},
		Duration:     durationSeconds,
		Reason:       reason,
		ConnectionID: connectionID,
	})
	if err != nil {
		return fmt.Errorf("pvpclient: phone.discardCall(%d): %w", pvpCallID, err)
	}
	return nil
}

// GetUserProfile mirrors the original's getUser td_api call, projected onto
// the fields DialSip needs for diagnostic SSP headers.
func (c *Client) GetUserProfile(ctx context.Context, userID int64) (callfsm.UserProfile, error) {
	if err := c.guardNotWorker(); err != nil {
		return callfsm.UserProfile{}, err
	}
	users, err := c.api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUser{UserID: userID}})
	if err != nil {
		return callfsm.UserProfile{}, fmt.Errorf("pvpclient: users.getUsers(%d): %w", userID, err)
	}
	if len(users) == 0 {
		return callfsm.UserProfile{}, fmt.Errorf("pvpclient: no such user %d", userID)
	}
	user, ok := users[0].(*tg.User)
	if !ok {
		return callfsm.UserProfile{}, fmt.Errorf("pvpclient: user %d is deleted or unavailable", userID)
	}
	return callfsm.UserProfile{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		Phone:     user.Phone,
	}, nil
}

// NewController builds the PVP controller for a call that has reached
// PvpCallReady, applying the timeouts/data-saving/AEC/NS/AGC/proxy
// parameters spec.md §4.4 assigns to CreateTgVoip.
func (c *Client) NewController(ctx context.Context, update events.PvpCallUpdate) (callfsm.Controller, error) {
	return newController(c.cfg, update), nil
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func randomInt32() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<31))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
