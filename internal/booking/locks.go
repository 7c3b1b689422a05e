package booking

import (
	"context"
	"sync"
	"time"
)

// KeyedMutex provides mutual exclusion per uint64 key.  Each session and
// each ledger account gets its own scope so that operations on different
// keys proceed fully in parallel; a single global lock is deliberately
// avoided.  Acquisition waits at most the configured duration and then
// fails with ErrBusy so that contended callers can retry instead of
// blocking indefinitely.
type KeyedMutex struct {
	wait time.Duration
	mu   sync.Mutex
	held map[uint64]chan struct{}
}

// NewKeyedMutex returns a KeyedMutex whose Lock gives up after wait.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &KeyedMutex{wait: wait, held: make(map[uint64]chan struct{})}
}

// Lock acquires the mutex for key.  It returns ErrBusy when the lock is not
// obtained within the wait configured at construction, or the context error
// when the context is cancelled first.
func (m *KeyedMutex) Lock(ctx context.Context, key uint64) error {
	timer := time.NewTimer(m.wait)
	defer timer.Stop()
	for {
		m.mu.Lock()
		ch, taken := m.held[key]
		if !taken {
			m.held[key] = make(chan struct{})
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		select {
		case <-ch:
			// Holder released; loop and race for the lock again.
		case <-timer.C:
			return ErrBusy
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Unlock releases the mutex for key and wakes all waiters.  Unlocking a key
// that is not held is a no-op.
func (m *KeyedMutex) Unlock(key uint64) {
	m.mu.Lock()
	if ch, taken := m.held[key]; taken {
		delete(m.held, key)
		close(ch)
	}
	m.mu.Unlock()
}
