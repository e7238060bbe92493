// Package engine samples the wall clock once per second, matches it against the
// active schedule profile and dispatches at most one period per calendar minute.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"wcnotice/internal/eventbus"
	"wcnotice/internal/schedule"
	"wcnotice/internal/storage"
	logx "wcnotice/pkg/logx"
)

// Dispatcher plays the sound and raises the banner for a fired period.
// It must not block on audio playback. A non-empty return is a user-facing warning.
type Dispatcher interface {
	Dispatch(ctx context.Context, p schedule.Period, slots schedule.SoundSlots) (warning string)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, p schedule.Period, slots schedule.SoundSlots) string

func (f DispatcherFunc) Dispatch(ctx context.Context, p schedule.Period, slots schedule.SoundSlots) string {
	return f(ctx, p, slots)
}

const (
	DefaultInterval = time.Second
	noMinute        = -1

	historyQueue   = 32
	historyTimeout = 2 * time.Second
)

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(e *Engine) { e.log = log } }

func WithBus(bus eventbus.Bus) Option {
	return func(e *Engine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

// WithHistory records every trigger. A nil store disables history. Records are
// written by RunHistory, off the timer goroutine.
func WithHistory(st storage.Store) Option { return func(e *Engine) { e.history = st } }

// Engine owns the live configuration.
//
// Lock discipline: cfgMu, markMu and eventsMu are never held together, and
// none is held while the dispatcher runs.
type Engine struct {
	cfgMu sync.Mutex
	cfg   schedule.AppConfig

	enabled atomic.Bool

	// The dedup marker is a calendar minute: the day is kept so a period
	// fires again tomorrow even when nothing else fired in between.
	markMu     sync.Mutex
	lastDay    int
	lastMinute int

	eventsMu sync.Mutex
	events   []string

	// warned is touched only by the timer goroutine.
	warned map[string]struct{}

	dispatcher Dispatcher
	now        func() time.Time
	interval   time.Duration
	log        logx.Logger
	bus        eventbus.Bus
	history    storage.Store

	records        chan storage.TriggerRecord
	historyDropped atomic.Uint64
}

// New returns an enabled engine holding cfg. cfg is used as given; callers
// normalize before handing it over.
func New(cfg schedule.AppConfig, d Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		lastMinute: noMinute,
		warned:     map[string]struct{}{},
		dispatcher: d,
		now:        time.Now,
		interval:   DefaultInterval,
		log:        logx.Nop(),
		bus:        eventbus.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With(logx.Component("engine"))
	if e.history != nil {
		e.records = make(chan storage.TriggerRecord, historyQueue)
	}
	e.enabled.Store(true)
	return e
}

// UpdateConfiguration replaces the live configuration. It takes effect on the
// next tick; a tick already in flight keeps its snapshot.
func (e *Engine) UpdateConfiguration(cfg schedule.AppConfig) {
	e.cfgMu.Lock()
	e.cfg = cfg
	name := ""
	if p := e.cfg.ActiveSchedule(); p != nil {
		name = p.Name
	}
	e.cfgMu.Unlock()

	e.bus.Publish(eventbus.Event{Type: eventbus.EngineConfigured, Data: name})
}

// Configuration returns a deep copy of the live configuration.
func (e *Engine) Configuration() schedule.AppConfig {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.cfg.Clone()
}

// ToggleEnabled flips the pause flag and returns the new state.
func (e *Engine) ToggleEnabled() bool {
	for {
		old := e.enabled.Load()
		if e.enabled.CompareAndSwap(old, !old) {
			e.publishToggle(!old)
			return !old
		}
	}
}

func (e *Engine) SetEnabled(on bool) {
	if e.enabled.Swap(on) != on {
		e.publishToggle(on)
	}
}

func (e *Engine) IsEnabled() bool { return e.enabled.Load() }

func (e *Engine) publishToggle(on bool) {
	e.log.Info("engine toggled", logx.Bool("enabled", on))
	e.bus.Publish(eventbus.Event{Type: eventbus.EngineToggled, Data: on})
}

// DrainStatusEvents removes and returns all pending status messages. Never blocks
// on the timer loop; returns nil when there are none.
func (e *Engine) DrainStatusEvents() []string {
	e.eventsMu.Lock()
	defer e.eventsMu.Unlock()
	out := e.events
	e.events = nil
	return out
}

func (e *Engine) pushStatus(msg string) {
	e.eventsMu.Lock()
	e.events = append(e.events, msg)
	e.eventsMu.Unlock()
}

// LastTriggeredMinute returns the minute of day of the last trigger, or -1.
func (e *Engine) LastTriggeredMinute() int {
	e.markMu.Lock()
	defer e.markMu.Unlock()
	return e.lastMinute
}

func (e *Engine) alreadyFired(day, minute int) bool {
	e.markMu.Lock()
	defer e.markMu.Unlock()
	return e.lastMinute == minute && e.lastDay == day
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// Snapshot is a read-only view for presentation layers.
type Snapshot struct {
	Enabled       bool
	ActiveProfile string
	HasActive     bool
	Status        string
	Next          schedule.Period
	HasNext       bool
	NextAt        time.Time
	LastMinute    int
	PendingEvents int
}

// Snapshot reads every piece of shared state under its own lock in turn.
func (e *Engine) Snapshot() Snapshot {
	now := e.now()
	s := Snapshot{Enabled: e.IsEnabled(), LastMinute: e.LastTriggeredMinute(), Status: schedule.StandbyStatus}

	if prof, ok := e.activeProfile(); ok {
		s.HasActive = true
		s.ActiveProfile = prof.Name
		s.Status = prof.CurrentStatus(schedule.ClockOf(now))
		s.Next, s.NextAt, s.HasNext = prof.NextFire(now)
	}

	e.eventsMu.Lock()
	s.PendingEvents = len(e.events)
	e.eventsMu.Unlock()
	return s
}

// activeProfile clones the active profile out from under the config lock.
func (e *Engine) activeProfile() (schedule.ScheduleProfile, bool) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	p := e.cfg.ActiveSchedule()
	if p == nil {
		return schedule.ScheduleProfile{}, false
	}
	return p.Clone(), true
}

// Run ticks until ctx is done. In the application ctx ends only at process exit.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(e.interval)
	defer t.Stop()

	e.log.Info("engine started", logx.Duration("interval", e.interval))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return nil
		case <-t.C:
			e.tick(ctx)
		}
	}
}

// tick runs one sampling step and reports whether a period fired.
func (e *Engine) tick(ctx context.Context) bool {
	if !e.IsEnabled() {
		return false
	}

	now := e.now()
	clock := schedule.ClockOf(now)
	minute := clock.MinuteOfDay()
	day := dayKey(now)

	if e.alreadyFired(day, minute) {
		return false
	}

	prof, ok := e.activeProfile()
	if !ok {
		return false
	}
	period, ok := prof.FirstMatch(clock)
	if !ok {
		return false
	}

	e.log.Info("period triggered",
		logx.Profile(prof.Name),
		logx.Period(period.Name),
		logx.String("kind", string(period.Kind)),
		logx.String("time", period.Time),
	)

	var warning string
	if e.dispatcher != nil {
		warning = e.dispatcher.Dispatch(ctx, period, prof.Sound)
	}
	if warning != "" {
		if _, seen := e.warned[warning]; !seen {
			e.warned[warning] = struct{}{}
			e.pushStatus(warning)
		} else {
			e.log.Debug("repeated warning suppressed", logx.String("warning", warning))
		}
	}

	e.markMu.Lock()
	e.lastDay, e.lastMinute = day, minute
	e.markMu.Unlock()

	e.bus.Publish(eventbus.Event{
		Type: eventbus.EngineTriggered,
		Time: now,
		Data: eventbus.Triggered{
			Profile: prof.Name,
			Period:  period.Name,
			Kind:    string(period.Kind),
			Time:    period.Time,
			Warning: warning,
		},
	})
	e.record(now, prof, period, warning)
	return true
}

// record queues the trigger for RunHistory. A full queue drops the record.
func (e *Engine) record(at time.Time, prof schedule.ScheduleProfile, p schedule.Period, warning string) {
	if e.records == nil {
		return
	}
	rec := storage.TriggerRecord{
		At:         at,
		Profile:    prof.Name,
		Period:     p.Name,
		Kind:       string(p.Kind),
		PeriodTime: p.Time,
		Sound:      prof.Sound.For(p.Kind).String(),
		Warning:    warning,
	}
	select {
	case e.records <- rec:
	default:
		n := e.historyDropped.Add(1)
		e.log.Warn("trigger history queue full; record dropped",
			logx.Period(p.Name),
			logx.Uint64("dropped_total", n),
		)
	}
}

// RunHistory writes queued trigger records until ctx is done, then flushes
// what is still queued. It returns at once when history is off.
func (e *Engine) RunHistory(ctx context.Context) error {
	if e.records == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			defer cancel()
			for {
				select {
				case rec := <-e.records:
					e.appendRecord(flushCtx, rec)
				default:
					return nil
				}
			}
		case rec := <-e.records:
			e.appendRecord(ctx, rec)
		}
	}
}

func (e *Engine) appendRecord(ctx context.Context, rec storage.TriggerRecord) {
	rctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	if err := e.history.AppendTrigger(rctx, rec); err != nil {
		e.log.Warn("trigger history append failed", logx.Period(rec.Period), logx.Err(err))
	}
}
