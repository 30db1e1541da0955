// Package dlock is component C (Lock Manager): the two-layer exclusion
// around a bus device — an in-process mutex with a FIFO wait queue,
// layered with an optional cross-process advisory file lock. Ordering
// rule: acquire in-process first, then the file lock; release in reverse.
package dlock

import (
	"context"
	"sync"

	"github.com/rockowitz/ddcutil-sub002/ddcerr"
)

// InProcManager holds one exclusion primitive per bus number, created
// lazily on first use.
type InProcManager struct {
	mu    sync.Mutex
	buses map[int]*busState
}

// NewInProcManager returns a ready-to-use manager.
func NewInProcManager() *InProcManager {
	return &InProcManager{buses: make(map[int]*busState)}
}

type busState struct {
	mu      sync.Mutex
	held    bool
	holder  string
	waiters []chan struct{}
}

func (m *InProcManager) stateFor(busno int) *busState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.buses[busno]
	if !ok {
		s = &busState{}
		m.buses[busno] = s
	}
	return s
}

// Release undoes a successful Acquire.
type Release func()

// AcquireNoWait tries once to claim busno for holder. It fails immediately
// with ddcerr.Locked if another holder already has it, and with
// ddcerr.Locked if holder already holds it.
func (m *InProcManager) AcquireNoWait(busno int, holder string) (Release, error) {
	s := m.stateFor(busno)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return nil, ddcerr.Wrap("inproc.acquire", busno, ddcerr.Locked, errAlreadyHeld(s.holder, holder))
	}
	s.held = true
	s.holder = holder
	return m.releaseFunc(busno, s), nil
}

// Acquire blocks, in FIFO order against other waiters, until busno is free
// or ctx is done. A re-entrant acquire (same holder already owns the bus)
// fails immediately rather than queuing behind itself.
func (m *InProcManager) Acquire(ctx context.Context, busno int, holder string) (Release, error) {
	s := m.stateFor(busno)
	s.mu.Lock()
	if s.held && s.holder == holder {
		s.mu.Unlock()
		return nil, ddcerr.Wrap("inproc.acquire", busno, ddcerr.Locked, errAlreadyHeld(s.holder, holder))
	}
	if !s.held {
		s.held = true
		s.holder = holder
		s.mu.Unlock()
		return m.releaseFunc(busno, s), nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		s.mu.Lock()
		s.held = true
		s.holder = holder
		s.mu.Unlock()
		return m.releaseFunc(busno, s), nil
	case <-ctx.Done():
		// Remove ourselves from the wait queue; if we were already handed
		// the baton (closed channel) right as ctx expired, pass it on to
		// the next waiter instead of losing a wakeup.
		s.mu.Lock()
		removed := removeWaiter(&s.waiters, ch)
		s.mu.Unlock()
		if !removed {
			// We'd already been woken; become holder then immediately
			// release to the next waiter, since the caller no longer wants it.
			s.mu.Lock()
			s.held = true
			s.holder = holder
			s.mu.Unlock()
			m.releaseFunc(busno, s)()
		}
		return nil, ddcerr.Wrap("inproc.acquire", busno, ddcerr.Locked, ctx.Err())
	}
}

func (m *InProcManager) releaseFunc(busno int, s *busState) Release {
	return func() {
		s.mu.Lock()
		var next chan struct{}
		if len(s.waiters) > 0 {
			next = s.waiters[0]
			s.waiters = s.waiters[1:]
		} else {
			s.held = false
			s.holder = ""
		}
		s.mu.Unlock()
		if next != nil {
			close(next)
		}
	}
}

func removeWaiter(waiters *[]chan struct{}, target chan struct{}) bool {
	w := *waiters
	for i, c := range w {
		if c == target {
			*waiters = append(w[:i], w[i+1:]...)
			return true
		}
	}
	return false
}

type heldError struct {
	holder, requester string
}

func (e heldError) Error() string {
	return "bus held by " + e.holder + ", requested by " + e.requester
}

func errAlreadyHeld(holder, requester string) error {
	return heldError{holder: holder, requester: requester}
}
