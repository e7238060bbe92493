package tray

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "wcnotice/pkg/logx"
)

func TestLatchCoalesces(t *testing.T) {
	t.Parallel()
	var l Latch
	if l.Take() {
		t.Fatal("fresh latch is pending")
	}
	l.Request()
	l.Request()
	if !l.Take() {
		t.Fatal("request lost")
	}
	if l.Take() {
		t.Fatal("double request must coalesce into one")
	}
}

func TestBridgeWakesAfterLatching(t *testing.T) {
	t.Parallel()
	b := NewBridge()
	var sawShow atomic.Bool
	b.SetWaker(func() { sawShow.Store(b.show.Pending()) })

	b.RequestShow()
	if !sawShow.Load() {
		t.Fatal("waker ran before the latch was set")
	}
	if !b.TakeShowRequest() || b.TakeShowRequest() {
		t.Fatal("show latch")
	}
	if b.TakeExitRequest() {
		t.Fatal("exit latched without request")
	}

	b.SetWaker(nil)
	b.RequestExit() // no waker: must not panic
	if !b.TakeExitRequest() {
		t.Fatal("exit latch")
	}
}

func TestBridgeConcurrentRequests(t *testing.T) {
	t.Parallel()
	b := NewBridge()
	var wakes atomic.Int32
	b.SetWaker(func() { wakes.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); b.RequestShow() }()
		go func() { defer wg.Done(); b.SetWaker(func() { wakes.Add(1) }) }()
	}
	wg.Wait()
	if !b.TakeShowRequest() || b.TakeShowRequest() {
		t.Fatal("50 requests must latch to exactly one pending take")
	}
	if wakes.Load() != 50 {
		t.Fatalf("wakes = %d", wakes.Load())
	}
}

type fakeDriver struct {
	initErr error
	delay   time.Duration
	pumped  chan struct{}
	onReady func(b *Bridge)
}

func (d *fakeDriver) Run(ctx context.Context, b *Bridge, ready func(error)) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	ready(d.initErr)
	ready(errors.New("second report ignored"))
	if d.initErr != nil {
		return
	}
	if d.onReady != nil {
		d.onReady(b)
	}
	<-ctx.Done()
	close(d.pumped)
}

func TestStartSuccessDoesNotWaitForPump(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBridge()
	d := &fakeDriver{pumped: make(chan struct{}), onReady: func(b *Bridge) { b.RequestExit() }}

	if !Start(ctx, d, b, logx.Nop(), time.Second) {
		t.Fatal("Start reported failure")
	}
	select {
	case <-d.pumped:
		t.Fatal("Start waited for the pump to exit")
	default:
	}

	deadline := time.Now().Add(time.Second)
	for !b.TakeExitRequest() {
		if time.Now().After(deadline) {
			t.Fatal("tray request never reached the bridge")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-d.pumped:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop with ctx")
	}
}

func TestStartFailureModes(t *testing.T) {
	t.Parallel()
	tests := map[string]Driver{
		"init error": &fakeDriver{initErr: errors.New("no status notifier host")},
		"timeout":    &fakeDriver{delay: 500 * time.Millisecond, pumped: make(chan struct{})},
		"panic":      panicDriver{},
		"silent":     silentDriver{},
	}
	for name, d := range tests {
		name, d := name, d
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if Start(ctx, d, NewBridge(), logx.Nop(), 50*time.Millisecond) {
				t.Fatal("Start reported success")
			}
		})
	}
	if Start(context.Background(), nil, NewBridge(), logx.Nop(), 0) {
		t.Fatal("nil driver")
	}
}

type panicDriver struct{}

func (panicDriver) Run(context.Context, *Bridge, func(error)) { panic("native init crashed") }

type silentDriver struct{}

func (silentDriver) Run(context.Context, *Bridge, func(error)) {}

func TestValidateIcon(t *testing.T) {
	t.Parallel()
	if err := ValidateIcon(DefaultIcon()); err != nil {
		t.Fatalf("bundled icon: %v", err)
	}
	if err := ValidateIcon([]byte("not a png")); err == nil {
		t.Fatal("garbage icon accepted")
	}
}

func TestWindowTrackerGraceWindow(t *testing.T) {
	t.Parallel()
	w := NewWindowTracker(2)

	if w.Observe(false) != ActionNone {
		t.Fatal("normal frame")
	}
	if w.Observe(true) != ActionHideToTray {
		t.Fatal("minimize edge not detected")
	}
	if w.Observe(true) != ActionNone {
		t.Fatal("staying minimized is not a new edge")
	}

	w.Restore()
	if w.String() != "RestoringFallback(2)" {
		t.Fatalf("state = %s", w)
	}
	// The platform still reports minimized for the next frames; not a new minimize.
	if w.Observe(true) != ActionNone || w.Observe(true) != ActionNone {
		t.Fatal("late ack treated as user minimize")
	}
	if w.Restoring() {
		t.Fatal("grace window should be spent")
	}
	if w.Observe(false) != ActionNone {
		t.Fatal("restored frame")
	}
	if w.Observe(true) != ActionHideToTray {
		t.Fatal("real minimize after grace not detected")
	}
	if w.String() != "Normal" {
		t.Fatalf("state = %s", w)
	}
}
