// Package filelock implements the File Lock Manager (C3): multi-reader,
// single-writer locks over file paths with FIFO waiters, writer-starvation
// prevention, and deadlock avoidance via global lock ordering.
//
// Locks are granted strictly in request order: a request that cannot be
// granted immediately joins a FIFO queue, and an Exclusive waiter is never
// bypassed by later Shared requests.
package filelock

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
)

// Mode is the lock mode requested.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// Handle is returned by Acquire/AcquireAll and must be passed to Release.
type Handle struct {
	paths []string
	mode  Mode
	task  model.TaskID
}

type waiter struct {
	taskID   model.TaskID
	mode     Mode
	deadline time.Time
	grantCh  chan error // receives nil on grant; expiry is detected by the waiter itself
	granted  bool
}

type lockState struct {
	holders map[model.TaskID]Mode // all holders must share Mode == Shared, or exactly one Exclusive holder
	waiters *list.List            // of *waiter, FIFO
}

func newLockState() *lockState {
	return &lockState{holders: make(map[model.TaskID]Mode), waiters: list.New()}
}

// Manager is the File Lock Manager. A single coarse mutex protects the lock
// table; it is held only during table mutations (hold-and-wait forbidden —
// callers never hold this mutex across a suspension point).
type Manager struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{locks: make(map[string]*lockState)}
}

// Acquire requests a single path in the given mode, waiting up to timeout.
func (m *Manager) Acquire(ctx context.Context, path string, mode Mode, taskID model.TaskID, timeout time.Duration) (*Handle, error) {
	if err := m.acquireOne(ctx, path, mode, taskID, timeout); err != nil {
		return nil, err
	}
	return &Handle{paths: []string{path}, mode: mode, task: taskID}, nil
}

// AcquireAll acquires every path in mode for taskID atomically with respect to
// deadlock: paths are sorted lexicographically and acquired in that order. Any
// failure releases all partially held locks and returns the first error.
func (m *Manager) AcquireAll(ctx context.Context, paths []string, mode Mode, taskID model.TaskID, timeout time.Duration) (*Handle, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	deadline := time.Now().Add(timeout)
	acquired := make([]string, 0, len(sorted))
	for _, p := range sorted {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if err := m.acquireOne(ctx, p, mode, taskID, remaining); err != nil {
			// release everything already held, in reverse order
			for i := len(acquired) - 1; i >= 0; i-- {
				m.releaseOne(acquired[i], taskID)
			}
			return nil, err
		}
		acquired = append(acquired, p)
	}
	return &Handle{paths: sorted, mode: mode, task: taskID}, nil
}

func (m *Manager) acquireOne(ctx context.Context, path string, mode Mode, taskID model.TaskID, timeout time.Duration) error {
	m.mu.Lock()
	st, ok := m.locks[path]
	if !ok {
		st = newLockState()
		m.locks[path] = st
	}

	if grantable(st, mode) && st.waiters.Len() == 0 {
		st.holders[taskID] = mode
		m.mu.Unlock()
		return nil
	}

	if timeout <= 0 {
		m.mu.Unlock()
		return orcherr.New(orcherr.KindFileLockTimeout, "filelock.acquire", orcherr.ErrTimeout)
	}

	w := &waiter{taskID: taskID, mode: mode, deadline: time.Now().Add(timeout), grantCh: make(chan error, 1)}
	elem := st.waiters.PushBack(w)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-w.grantCh:
		if err != nil {
			return orcherr.New(orcherr.KindFileLockTimeout, "filelock.acquire", err)
		}
		return nil
	case <-timer.C:
		m.mu.Lock()
		if w.granted {
			// The grant raced the timer; it already landed, so take it.
			m.mu.Unlock()
			<-w.grantCh
			return nil
		}
		st.waiters.Remove(elem)
		m.mu.Unlock()
		return orcherr.New(orcherr.KindFileLockTimeout, "filelock.acquire", orcherr.ErrTimeout)
	case <-ctx.Done():
		m.mu.Lock()
		if w.granted {
			m.mu.Unlock()
			<-w.grantCh
			m.releaseOne(path, taskID)
			return orcherr.New(orcherr.KindFileLockTimeout, "filelock.acquire", ctx.Err())
		}
		st.waiters.Remove(elem)
		m.mu.Unlock()
		return orcherr.New(orcherr.KindFileLockTimeout, "filelock.acquire", ctx.Err())
	}
}

// grantable reports whether mode could be granted given the current holders,
// ignoring waiters.
func grantable(st *lockState, mode Mode) bool {
	if len(st.holders) == 0 {
		return true
	}
	if mode == Shared {
		for _, hm := range st.holders {
			if hm == Exclusive {
				return false
			}
		}
		return true
	}
	return false // Exclusive requires zero holders
}

// Release releases every path held by h.
func (m *Manager) Release(h *Handle) {
	for _, p := range h.paths {
		m.releaseOne(p, h.task)
	}
}

func (m *Manager) releaseOne(path string, taskID model.TaskID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.locks[path]
	if !ok {
		return
	}
	delete(st.holders, taskID)
	m.wakeWaiters(st)
}

// wakeWaiters grants the FIFO-prefix of waiters that is now grantable.
// Exclusive waiters are never bypassed by later Shared waiters (prevents
// writer starvation): Shared waiters at the head are granted in a batch up to
// the next Exclusive waiter, then processing stops until that Exclusive
// waiter itself is grantable.
func (m *Manager) wakeWaiters(st *lockState) {
	for {
		front := st.waiters.Front()
		if front == nil {
			return
		}
		w := front.Value.(*waiter)

		if w.mode == Exclusive {
			if len(st.holders) == 0 {
				st.holders[w.taskID] = Exclusive
				w.granted = true
				st.waiters.Remove(front)
				w.grantCh <- nil
				continue
			}
			return // head is Exclusive and blocked: stop, do not bypass
		}

		// Shared waiter at head: grant iff no Exclusive holder currently.
		blocked := false
		for _, hm := range st.holders {
			if hm == Exclusive {
				blocked = true
				break
			}
		}
		if blocked {
			return
		}
		st.holders[w.taskID] = Shared
		w.granted = true
		st.waiters.Remove(front)
		w.grantCh <- nil
		// continue: grant the next Shared waiter too, up to the next Exclusive
	}
}
