package dispatch

import (
	"context"
	"sync/atomic"

	logx "wcnotice/pkg/logx"
)

// lane is a bounded fire-and-forget queue drained by one worker goroutine.
// Submit never blocks; a full lane drops the job.
type lane struct {
	name    string
	ch      chan func(context.Context)
	log     logx.Logger
	dropped atomic.Uint64
}

func newLane(name string, size int, log logx.Logger) *lane {
	if size <= 0 {
		size = 8
	}
	return &lane{name: name, ch: make(chan func(context.Context), size), log: log}
}

func (l *lane) submit(job func(context.Context)) bool {
	select {
	case l.ch <- job:
		return true
	default:
		n := l.dropped.Add(1)
		l.log.Warn("dispatch queue full; job dropped",
			logx.String("lane", l.name),
			logx.Int("queue_cap", cap(l.ch)),
			logx.Uint64("dropped_total", n),
		)
		return false
	}
}

// run drains the lane until ctx is done. A panicking job propagates to the
// supervisor, which restarts the lane.
func (l *lane) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-l.ch:
			job(ctx)
		}
	}
}
