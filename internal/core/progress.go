package core

// progress.go publishes job snapshots to pollers and subscribers.
//
// The current Snapshot lives behind an atomic pointer. Writers build a new
// value from a copy and swap it in with compare-and-swap, so Poll never takes
// a lock the worker holds and never sees a half-written snapshot. Cancel and
// the worker both write; a cancel request sticks through later worker writes
// because every write re-derives Cancelling from the request flag.

import (
	"slices"
	"sync"
	"sync/atomic"
)

// listenerBuffer is the channel depth handed to each subscriber.
const listenerBuffer = 16

type progress struct {
	snap            atomic.Pointer[Snapshot]
	cancelRequested atomic.Bool

	listenerMu sync.Mutex
	listeners  []chan Snapshot
	closed     bool
}

func newProgress(initial Snapshot) *progress {
	p := &progress{}
	p.snap.Store(&initial)
	return p
}

// load returns the latest published snapshot.
func (p *progress) load() Snapshot {
	s := *p.snap.Load()
	s.Failures = slices.Clone(s.Failures)
	return s
}

// update publishes fn applied to a copy of the current snapshot.
// It is a no-op once the snapshot is terminal and reports whether it published.
func (p *progress) update(fn func(*Snapshot)) bool {
	for {
		old := p.snap.Load()
		if old.Status.Terminal() {
			return false
		}
		next := *old
		next.Failures = slices.Clip(old.Failures)
		fn(&next)
		if next.Status == StatusRunning && p.cancelRequested.Load() {
			next.Status = StatusCancelling
		}
		if p.snap.CompareAndSwap(old, &next) {
			p.notify()
			if next.Status.Terminal() {
				p.closeListeners()
			}
			return true
		}
	}
}

// requestCancel marks the job for cancellation at the next file boundary.
func (p *progress) requestCancel() {
	p.cancelRequested.Store(true)
	p.update(func(s *Snapshot) {})
}

func (p *progress) cancelling() bool {
	return p.cancelRequested.Load()
}

// subscribe returns a channel primed with the current snapshot. The channel is
// closed after the terminal snapshot has been delivered.
func (p *progress) subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, listenerBuffer)

	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	ch <- p.load()
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	p.listeners = append(p.listeners, ch)

	unsubscribe := func() {
		p.listenerMu.Lock()
		defer p.listenerMu.Unlock()
		for i, l := range p.listeners {
			if l == ch {
				p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

// notify sends the latest snapshot to every listener. Sends happen under the
// listener lock and always read the newest value, so a subscriber never sees
// currentIndex go backwards. A full channel drops its oldest entry.
func (p *progress) notify() {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	if len(p.listeners) == 0 {
		return
	}
	snap := p.load()
	for _, ch := range p.listeners {
		offer(ch, snap)
	}
}

func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (p *progress) closeListeners() {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	for _, ch := range p.listeners {
		close(ch)
	}
	p.listeners = nil
	p.closed = true
}
