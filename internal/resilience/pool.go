package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolExhausted is returned when the pool is at capacity and the caller
// either overflows the wait queue or waits out the acquire timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// PoolConfig bounds a Pool's concurrency, wait queue, and idle-connection
// lifetime.
type PoolConfig struct {
	// MaxConnections is the maximum number of concurrently checked-out slots.
	MaxConnections int
	// MaxKeepalive is the maximum number of idle slots kept warm between uses.
	MaxKeepalive int
	// KeepaliveTTL is how long an idle slot may sit before it is dropped.
	KeepaliveTTL time.Duration
	// MaxQueue is how many callers may wait for a slot once the pool is at
	// capacity; an arrival beyond the queue fails immediately.
	MaxQueue int
	// AcquireTimeout bounds how long a queued caller waits before giving up.
	AcquireTimeout time.Duration
}

// Pool is a bounded semaphore-backed connection pool shared across
// sessions: every outbound worker dispatch acquires a slot first, so total
// concurrency never exceeds MaxConnections regardless of per-session
// fan-out. Callers beyond capacity wait in a bounded queue with a short
// timeout; overflowing either fails with ErrPoolExhausted.
//
// Pool itself is transport-agnostic: it governs admission only. The caller
// is expected to create/reuse the actual connection once a slot is acquired.
type Pool struct {
	config PoolConfig

	sem chan struct{}

	mu        sync.Mutex
	waiting   int
	idleSince map[int]time.Time
	nextSlot  int
	idle      []int
}

// NewPool creates a Pool with the given config, applying defaults for any
// zero field.
func NewPool(config PoolConfig) *Pool {
	if config.MaxConnections <= 0 {
		config.MaxConnections = 10
	}
	if config.MaxKeepalive <= 0 {
		config.MaxKeepalive = config.MaxConnections
	}
	if config.KeepaliveTTL <= 0 {
		config.KeepaliveTTL = 90 * time.Second
	}
	if config.MaxQueue <= 0 {
		config.MaxQueue = 2 * config.MaxConnections
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 5 * time.Second
	}

	return &Pool{
		config:    config,
		sem:       make(chan struct{}, config.MaxConnections),
		idleSince: make(map[int]time.Time),
	}
}

// Slot is a checked-out pool slot; Release must be called exactly once.
type Slot struct {
	pool *Pool
	id   int
}

// Acquire returns a slot immediately when capacity is free. At capacity the
// caller joins the bounded wait queue; it fails with ErrPoolExhausted when
// the queue is already full or AcquireTimeout elapses before a slot frees
// up. Context cancellation surfaces as ctx.Err().
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	select {
	case p.sem <- struct{}{}:
		return p.checkout(), nil
	default:
	}

	p.mu.Lock()
	if p.waiting >= p.config.MaxQueue {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.waiting++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
	}()

	timer := time.NewTimer(p.config.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		return p.checkout(), nil
	case <-timer.C:
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (p *Pool) TryAcquire() (*Slot, bool) {
	select {
	case p.sem <- struct{}{}:
		return p.checkout(), true
	default:
		return nil, false
	}
}

// checkout hands out a warm idle slot when one is still within its
// keepalive window, minting a fresh slot id otherwise. The caller must
// already hold a sem token.
func (p *Pool) checkout() *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for len(p.idle) > 0 {
		id := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		since, ok := p.idleSince[id]
		delete(p.idleSince, id)
		if ok && now.Sub(since) < p.config.KeepaliveTTL {
			return &Slot{pool: p, id: id}
		}
	}

	p.nextSlot++
	return &Slot{pool: p, id: p.nextSlot}
}

// Release returns the slot to the pool. If fewer than MaxKeepalive slots are
// currently idle, this slot is kept warm; otherwise it is discarded.
func (s *Slot) Release() {
	s.pool.mu.Lock()
	if len(s.pool.idle) < s.pool.config.MaxKeepalive {
		s.pool.idle = append(s.pool.idle, s.id)
		s.pool.idleSince[s.id] = time.Now()
	}
	s.pool.mu.Unlock()

	<-s.pool.sem
}

// InUse reports how many slots are currently checked out.
func (p *Pool) InUse() int {
	return len(p.sem)
}

// Waiting reports how many callers are queued for a slot.
func (p *Pool) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting
}
