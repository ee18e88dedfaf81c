// Package events defines the tagged union of values carried across the
// gateway's three event queues (PVP, SSP, internal) and consumed by the
// dispatcher's single control loop.
package events

// Type identifies the concrete shape of an Event for routing/logging, the
// Go analogue of the teacher's EventType string enum.
type Type string

const (
	TypePvpCallUpdate       Type = "pvp.call_update"
	TypePvpTextMessage      Type = "pvp.text_message"
	TypeSspIncoming         Type = "ssp.incoming"
	TypeSspCallStateUpdate  Type = "ssp.call_state_update"
	TypeSspMediaStateUpdate Type = "ssp.media_state_update"
	TypeInternalError       Type = "internal.error"
)

// Event is the marker interface implemented by every value that can travel
// through a queue.Queue[Event].
type Event interface {
	Type() Type
}

// PvpCallState is the lifecycle state reported by the PVP collaborator for
// one call handle.
type PvpCallState string

const (
	PvpCallPending   PvpCallState = "pending"
	PvpCallReady     PvpCallState = "ready"
	PvpCallDiscarded PvpCallState = "discarded"
	PvpCallError     PvpCallState = "error"
)

// PvpConnection is one relay or peer-to-peer endpoint offered by the PVP
// collaborator for a call, carrying both address families and the 16-byte
// peer tag the protocol requires.
type PvpConnection struct {
	ID      int64
	IP      string
	IPv6    string
	Port    int
	PeerTag [16]byte
	IsRelay bool
}

// PvpCallUpdate reports a state change on a PVP call handle.
type PvpCallUpdate struct {
	PvpCallID   int64
	State       PvpCallState
	IsOutgoing  bool
	UserID      int64
	Connections []PvpConnection
	Key         []byte // 256-byte per-call encryption key, present once State == PvpCallReady
	ErrorCode   int
	ErrorReason string
}

func (PvpCallUpdate) Type() Type { return TypePvpCallUpdate }

// PvpTextMessage reports an in-chat text message from a PVP peer, the
// channel carrying DTMF digits once a call is bridged.
type PvpTextMessage struct {
	SenderUserID int64
	Text         string
}

func (PvpTextMessage) Type() Type { return TypePvpTextMessage }

// SspIncoming reports a new inbound SSP invitation.
type SspIncoming struct {
	SspCallID string
	Extension string // user part of the request URI, e.g. "tg#alice", "+1555...", "42"
}

func (SspIncoming) Type() Type { return TypeSspIncoming }

// SspCallState is the lifecycle state reported by the SSP collaborator for
// one call handle.
type SspCallState string

const (
	SspEarly        SspCallState = "early"
	SspConfirmed    SspCallState = "confirmed"
	SspDisconnected SspCallState = "disconnected"
)

// SspCallStateUpdate reports a dialog-state change on an SSP call handle.
type SspCallStateUpdate struct {
	SspCallID string
	State     SspCallState
}

func (SspCallStateUpdate) Type() Type { return TypeSspCallStateUpdate }

// SspMediaStateUpdate reports that negotiated media has become
// available/unavailable on an SSP call handle.
type SspMediaStateUpdate struct {
	SspCallID string
	HasMedia  bool
}

func (SspMediaStateUpdate) Type() Type { return TypeSspMediaStateUpdate }

// InternalError is posted by an action that failed synchronously, routed
// back to the originating context's state machine on the next dispatcher
// iteration so that CleanUp always runs on the dispatcher's own thread.
type InternalError struct {
	CtxID      string
	StatusCode int
	Reason     string
}

func (InternalError) Type() Type { return TypeInternalError }
