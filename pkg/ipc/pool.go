package ipc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/conduit/pkg/logging"
	"github.com/entrhq/conduit/pkg/types"
)

// ErrNoLiveConnections reports a pool whose every connection has died.
// Unlike exhaustion, this state is permanent: pool clients do not
// reconnect, so waiting would never end.
var ErrNoLiveConnections = errors.New("ipc: pool has no live connections")

// Pool owns a fixed set of pre-connected clients and hands them out one
// caller at a time. Exhaustion is a latency symptom, not a visible fault:
// callers block on a condition variable until a slot frees. An all-dead
// pool is a fault and unblocks waiters with ErrNoLiveConnections.
//
// Contexts can be routed through a sticky slot (GetConnectionForContext)
// so a context's verification traffic flows over one transport connection.
// Affinity entries are write-once and never evicted; an entry is only
// meaningful while its slot remains connected.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	slots    []*poolSlot
	affinity map[types.ContextID]int
	log      *logging.Logger
	closed   bool
}

type poolSlot struct {
	client *Client
	inUse  bool
}

// NewPool connects size clients to the instance's socket. Partial
// connection failure is tolerated: the pool is usable as long as at least
// one client connected. Only a fully failed pool is an error.
func NewPool(dir string, instance types.InstanceID, size int, opts ...ClientOption) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}

	log, _ := logging.NewLogger("ipc-pool")
	p := &Pool{
		affinity: make(map[types.ContextID]int),
		log:      log,
	}
	p.cond = sync.NewCond(&p.mu)

	var connected int
	for i := 0; i < size; i++ {
		client, err := Dial(dir, instance, opts...)
		if err != nil {
			log.Warnf("pool slot %d failed to connect: %v", i, err)
			continue
		}
		p.slots = append(p.slots, &poolSlot{client: client})
		connected++
	}

	if connected == 0 {
		return nil, fmt.Errorf("pool: no clients connected to instance %s", instance)
	}
	log.Infof("pool connected %d/%d slots to instance %s", connected, size, instance)
	return p, nil
}

// Size returns the number of slots that connected.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// SendCommand claims any free connected slot (blocking until one frees),
// sends the command, and releases the slot. There is no fairness guarantee
// beyond first-to-win-the-race after a wakeup.
func (p *Pool) SendCommand(command string, timeout time.Duration) (string, error) {
	client, idx, err := p.claimAny()
	if err != nil {
		return "", err
	}

	resp, err := client.SendCommand(command, timeout)

	p.mu.Lock()
	p.slots[idx].inUse = false
	p.cond.Signal()
	p.mu.Unlock()

	return resp, err
}

// claimAny blocks until some slot is free and connected, then claims it.
// Returns ErrClosed when the pool is closed and ErrNoLiveConnections when
// every connection has died.
func (p *Pool) claimAny() (*Client, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return nil, -1, ErrClosed
		}
		for i, s := range p.slots {
			if !s.inUse && s.client.Connected() {
				s.inUse = true
				return s.client, i, nil
			}
		}
		if p.allDead() {
			return nil, -1, ErrNoLiveConnections
		}
		p.cond.Wait()
	}
}

// allDead reports whether every slot's connection is gone. Callers must
// hold p.mu.
func (p *Pool) allDead() bool {
	for _, s := range p.slots {
		if s.client.Connected() {
			return false
		}
	}
	return true
}

// GetConnectionForContext claims a slot with sticky routing: if the
// context already has an affinity entry and that slot is currently free
// and connected, it is reclaimed; otherwise any free slot is claimed and,
// if the context has no entry yet, the affinity is recorded permanently.
//
// Entries are never rewritten or evicted, so under slot churn a context
// whose original slot died keeps falling through to arbitrary slots. The
// caller must hand the client back with ReturnConnection.
//
// Returns nil when the pool is closed or has no live connections left.
func (p *Pool) GetConnectionForContext(ctx types.ContextID) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return nil
		}

		if idx, ok := p.affinity[ctx]; ok && idx < len(p.slots) {
			s := p.slots[idx]
			if !s.inUse && s.client.Connected() {
				s.inUse = true
				return s.client
			}
		}

		for i, s := range p.slots {
			if !s.inUse && s.client.Connected() {
				s.inUse = true
				if _, ok := p.affinity[ctx]; !ok {
					p.affinity[ctx] = i
				}
				return s.client
			}
		}

		if p.allDead() {
			return nil
		}
		p.cond.Wait()
	}
}

// ReturnConnection releases a slot claimed by GetConnectionForContext and
// wakes one waiter. Unknown clients are ignored.
func (p *Pool) ReturnConnection(client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		if s.client == client {
			s.inUse = false
			p.cond.Signal()
			return
		}
	}
	p.log.Warnf("ReturnConnection called with a client not owned by this pool")
}

// Close closes every client and unblocks all waiters.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	slots := p.slots
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, s := range slots {
		s.client.Close()
	}
}
