// Package callctx defines the per-call correlation record threaded through
// every state-machine action: the gateway-local id, both sides' protocol
// handles, resolver hints, and the pending hangup reason.
package callctx

import (
	"fmt"
	"sync/atomic"
)

// InvalidSspCallID is the sentinel used where the original distinguishes "no
// SSP call id yet" from a valid, non-empty handle.
const InvalidSspCallID = ""

var counter atomic.Int64

// NextID returns the next gateway-local call id, "<pid>-<counter>", unique
// for the lifetime of the process.
func NextID(pid int) string {
	return fmt.Sprintf("%d-%d", pid, counter.Add(1))
}

// HangupReason is the status code + human reason recorded by SetHangupPrm so
// that CleanUp can tell the SSP side why the call ended.
type HangupReason struct {
	Code   int
	Reason string
}

// Context is the per-call correlation record. Exactly one exists per active
// bridge; it is owned and mutated exclusively by the dispatcher goroutine
// via the action functions attached to the call's state machine.
type Context struct {
	ID string

	SspCallID string // InvalidSspCallID when absent
	PvpCallID int64  // 0 when absent
	PvpUserID int64  // 0 until known

	// ExtUsername/ExtPhone are resolver hints parsed from the SSP
	// extension when the call originated from SSP; mutually exclusive
	// with PvpUserID until resolution completes.
	ExtUsername string
	ExtPhone    string

	// Controller is the shared handle to the PVP media/control object.
	// Present only once the peer has reported Ready.
	Controller any

	HangupReason HangupReason
}

// New creates a fresh, uncorrelated context.
func New(id string) *Context {
	return &Context{ID: id, SspCallID: InvalidSspCallID}
}

// HasSspCallID reports whether an SSP handle has been recorded.
func (c *Context) HasSspCallID() bool {
	return c.SspCallID != InvalidSspCallID
}

// HasPvpCallID reports whether a PVP handle has been recorded.
func (c *Context) HasPvpCallID() bool {
	return c.PvpCallID != 0
}
