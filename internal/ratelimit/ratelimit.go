// Package ratelimit gates outbound PVP dials behind a single deadline,
// extracted from PVP error text such as "Too Many Requests: retry after 30"
// or "PEER_FLOOD", mirroring the original gateway's block_until_ mechanism.
package ratelimit

import (
	"regexp"
	"strconv"
	"sync"
	"time"
)

var retryAfterRe = regexp.MustCompile(`Too Many Requests: retry after (\d+)`)

// Gate holds a single shared deadline before which new outbound PVP dials
// must not be attempted. It is safe for concurrent use.
type Gate struct {
	mu         sync.Mutex
	blockUntil time.Time
	extraWait  time.Duration
	peerFlood  time.Duration
}

// New creates a Gate. extraWait is added on top of any server-reported
// retry-after interval (settings.ini's other.extra_wait_time); peerFlood is
// the block duration applied when a PEER_FLOOD error is observed, since that
// error carries no explicit retry interval (other.peer_flood_time).
func New(extraWait, peerFlood time.Duration) *Gate {
	return &Gate{extraWait: extraWait, peerFlood: peerFlood}
}

// Blocked reports whether outbound dials are currently gated.
func (g *Gate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.blockUntil)
}

// BlockedUntil returns the current deadline, zero if not blocked.
func (g *Gate) BlockedUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockUntil
}

// Observe inspects an error message from a PVP call and extends the gate's
// deadline if it recognizes a rate-limit signal. It reports whether the
// message was recognized as a rate-limit error at all.
func (g *Gate) Observe(message string) bool {
	if m := retryAfterRe.FindStringSubmatch(message); m != nil {
		seconds, err := strconv.Atoi(m[1])
		if err == nil {
			g.block(time.Duration(seconds)*time.Second + g.extraWait)
			return true
		}
	}
	if containsPeerFlood(message) {
		g.block(g.peerFlood)
		return true
	}
	return false
}

// FloodWaitReason returns the synthetic "FLOOD_WAIT <n>" reason carried by
// the InternalError emitted when a dial is rejected locally, n being the
// number of seconds remaining before the gate opens.
func (g *Gate) FloodWaitReason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := time.Until(g.blockUntil)
	if remaining < 0 {
		remaining = 0
	}
	return "FLOOD_WAIT " + strconv.Itoa(int(remaining.Round(time.Second)/time.Second))
}

func containsPeerFlood(message string) bool {
	return regexp.MustCompile(`PEER_FLOOD`).MatchString(message)
}

func (g *Gate) block(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	deadline := time.Now().Add(d)
	if deadline.After(g.blockUntil) {
		g.blockUntil = deadline
	}
}
