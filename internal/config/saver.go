package config

import (
	"sync"
	"time"

	"wcnotice/internal/eventbus"
	"wcnotice/internal/schedule"
	logx "wcnotice/pkg/logx"
)

// Saver coalesces save requests: the last configuration requested within the
// quiet period is written once. Identical content is not rewritten.
type Saver struct {
	store *ScheduleStore
	delay time.Duration
	log   logx.Logger
	bus   eventbus.Bus

	mu      sync.Mutex
	timer   *time.Timer
	pending *schedule.AppConfig
	writes  int
}

func NewSaver(store *ScheduleStore, delay time.Duration, log logx.Logger, bus eventbus.Bus) *Saver {
	if delay <= 0 {
		delay = DefaultSaveDebounce
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Saver{store: store, delay: delay, log: log.With(logx.Component("saver")), bus: bus}
}

// Request schedules cfg to be written after the quiet period, replacing any
// earlier pending request.
func (s *Saver) Request(cfg schedule.AppConfig) {
	cp := cfg.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &cp
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() { _ = s.Flush() })
}

// Discard drops the pending request, if any, and reports whether there was one.
func (s *Saver) Discard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	had := s.pending != nil
	s.pending = nil
	return had
}

// Flush writes the pending configuration now, if any.
func (s *Saver) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	cfg := s.pending
	s.pending = nil
	if cfg == nil {
		return nil
	}

	data, err := EncodeSchedule(*cfg)
	if err != nil {
		s.log.Error("schedule encode failed", logx.Err(err))
		return err
	}
	if h := hashBytes(data); h == s.store.LastHash() {
		s.log.Debug("schedule unchanged; skipping write")
		return nil
	}
	if err := s.store.write(data); err != nil {
		s.log.Warn("schedule save failed", logx.String("path", s.store.Path()), logx.Err(err))
		return err
	}
	s.writes++
	s.log.Debug("schedule saved", logx.String("path", s.store.Path()))
	s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleSaved, Data: s.store.Path()})
	return nil
}

// Writes reports how many writes reached disk.
func (s *Saver) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
