package verify

import (
	"sync"
	"time"

	"github.com/entrhq/conduit/pkg/types"
)

// Channel is the per-context verification mailbox: a single result slot
// per context bridging an asynchronous cross-process probe into a bounded
// synchronous wait.
//
// Contract: at most one probe per context may be outstanding at a time.
// Callers must Reset before every probe; concurrent probes for the same
// context produce undefined attribution. Slots are overwritten across
// cycles, never removed.
type Channel struct {
	mu    sync.Mutex
	slots map[types.ContextID]*channelSlot
}

type channelSlot struct {
	result ProbeResult
	ready  chan struct{}
	done   bool
}

// NewChannel creates an empty verification channel.
func NewChannel() *Channel {
	return &Channel{slots: make(map[types.ContextID]*channelSlot)}
}

// Reset clears the context's slot ahead of a new probe. A stale "ready"
// state from a previous cycle must never be reused, so this installs a
// fresh notification channel.
func (c *Channel) Reset(ctx types.ContextID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[ctx] = &channelSlot{ready: make(chan struct{})}
}

// SetResult is the producer-side write, invoked by the browser-engine side
// once it has computed an answer. Last write wins; there is no queuing. A
// write to a context that was never Reset still lands (and reads as
// ready), covering answers that raced a caller's abandonment.
func (c *Channel) SetResult(ctx types.ContextID, result ProbeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[ctx]
	if !ok {
		s = &channelSlot{ready: make(chan struct{})}
		c.slots[ctx] = s
	}
	s.result = result
	if !s.done {
		s.done = true
		close(s.ready)
	}
}

// Wait blocks until the context's result is ready or the timeout elapses,
// whichever comes first. Returns true when a result is available. The
// return is deterministic at or before the timeout; there is no spinning.
func (c *Channel) Wait(ctx types.ContextID, timeout time.Duration) bool {
	c.mu.Lock()
	s, ok := c.slots[ctx]
	if !ok {
		// Wait before any Reset: install an empty slot so a late
		// SetResult can still satisfy the wait.
		s = &channelSlot{ready: make(chan struct{})}
		c.slots[ctx] = s
	}
	ready := s.ready
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return true
	case <-timer.C:
		return false
	}
}

// GetResult reads the current payload without blocking. The second return
// reports whether a result has been set since the last Reset.
func (c *Channel) GetResult(ctx types.ContextID) (ProbeResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[ctx]
	if !ok || !s.done {
		return ProbeResult{}, false
	}
	return s.result, true
}
