// Package tray connects an OS tray icon, whose event pump runs on its own locked
// thread, to the interactive loop. The only shared state is two latches and a
// replaceable wake callback; the native tray handle never leaves its thread.
package tray

import (
	"sync"
	"sync/atomic"
)

// Latch is a single pending request. Repeated requests before a Take coalesce.
type Latch struct {
	v atomic.Bool
}

func (l *Latch) Request() { l.v.Store(true) }

// Take reports whether a request was pending and clears it.
func (l *Latch) Take() bool { return l.v.Swap(false) }

func (l *Latch) Pending() bool { return l.v.Load() }

// Bridge carries "show window" and "exit" intents from the tray thread to the
// interactive loop and wakes that loop after each request.
type Bridge struct {
	show Latch
	exit Latch

	mu    sync.Mutex
	waker func()
}

func NewBridge() *Bridge { return &Bridge{} }

// SetWaker installs the interactive loop's wake callback. The loop re-registers
// it every frame; nil clears it.
func (b *Bridge) SetWaker(fn func()) {
	b.mu.Lock()
	b.waker = fn
	b.mu.Unlock()
}

func (b *Bridge) RequestShow() {
	b.show.Request()
	b.wake()
}

func (b *Bridge) RequestExit() {
	b.exit.Request()
	b.wake()
}

func (b *Bridge) TakeShowRequest() bool { return b.show.Take() }
func (b *Bridge) TakeExitRequest() bool { return b.exit.Take() }

// wake is best effort; the interactive loop also polls the latches every frame.
func (b *Bridge) wake() {
	b.mu.Lock()
	fn := b.waker
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}
