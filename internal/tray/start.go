package tray

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	logx "wcnotice/pkg/logx"
)

// DefaultInitTimeout bounds how long Start waits for the driver's init report.
const DefaultInitTimeout = 5 * time.Second

var ErrInitTimeout = errors.New("tray init timed out")

// Driver owns the platform tray. Run is called on a goroutine locked to its OS
// thread; it must call ready exactly once with the init result and, on
// success, keep pumping platform events until ctx ends or the pump quits.
// Only ready's first call counts.
type Driver interface {
	Run(ctx context.Context, b *Bridge, ready func(error))
}

// Start launches d on a dedicated OS thread and blocks only until d reports
// its init result (or timeout passes). It returns false when the tray is not
// available; the application then runs without it.
func Start(ctx context.Context, d Driver, b *Bridge, log logx.Logger, timeout time.Duration) bool {
	if d == nil {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultInitTimeout
	}
	log = log.With(logx.Component("tray"))

	initCh := make(chan error, 1)
	var once sync.Once
	ready := func(err error) {
		once.Do(func() { initCh <- err })
	}

	go func() {
		runtime.LockOSThread()
		defer func() {
			if r := recover(); r != nil {
				log.Error("tray thread panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				ready(fmt.Errorf("tray panic: %v", r))
			}
		}()
		d.Run(ctx, b, ready)
		ready(errors.New("tray driver exited without reporting init"))
		log.Debug("tray event pump exited")
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-initCh:
		if err != nil {
			log.Warn("tray unavailable; continuing without it", logx.Err(err))
			return false
		}
		log.Info("tray started")
		return true
	case <-t.C:
		log.Warn("tray unavailable; continuing without it", logx.Err(ErrInitTimeout))
		return false
	case <-ctx.Done():
		return false
	}
}
