// Package pagelock serializes layout changes per page.
//
// A repack reads every block of a page, computes new positions and writes
// them back. Two of those running at once for the same page can interleave
// and persist overlapping blocks, so every operation that may repack takes
// the page's lock first. Memory covers a single process; Redis covers
// several instances sharing one database.
package pagelock

import (
	"context"
	"sync"
)

// Locker grants exclusive access to one page at a time. Lock blocks until
// the page is free or ctx is done; the returned unlock must be called
// exactly once.
type Locker interface {
	Lock(ctx context.Context, pageID string) (unlock func(), err error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]*slot)}
}

func (m *Memory) Lock(ctx context.Context, pageID string) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[pageID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[pageID] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(pageID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.release(pageID, s)
		})
	}, nil
}

// release drops a reference and forgets the slot once nobody waits on it.
func (m *Memory) release(pageID string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, pageID)
	}
}

// ─────────────────────────────────────────────────────────────
// Guard: non-blocking per-key exclusion for background jobs
// ─────────────────────────────────────────────────────────────

// Guard ensures only one run of a given job key is active at a time.
type Guard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks key as running. It returns false if it already is.
func (g *Guard) TryLock(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[key]; ok {
		return false
	}
	g.running[key] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock marks key as finished. Must follow a successful TryLock.
func (g *Guard) Unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, key)
	g.wg.Done()
}

// WaitAll blocks until all running jobs finish or ctx is done.
func (g *Guard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
