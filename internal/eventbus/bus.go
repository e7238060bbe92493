package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by wcnotice components.
const (
	// EngineTriggered: a period fired. Data is a Triggered.
	EngineTriggered = "engine.triggered"
	// EngineToggled: the pause flag changed. Data is a bool (new state).
	EngineToggled = "engine.toggled"
	// EngineConfigured: a new configuration was pushed. Data is the active profile name.
	EngineConfigured = "engine.configured"

	// DispatchPlayed: a clip was handed to the audio player. Data is a Played.
	DispatchPlayed = "dispatch.played"
	// DispatchFallback: a local sound was replaced by its builtin default. Data is a Played.
	DispatchFallback = "dispatch.fallback"
	// DispatchBannerFailed: a banner sink failed. Data is the error text.
	DispatchBannerFailed = "dispatch.banner_failed"

	// ScheduleReloaded: the schedule file changed on disk and was re-read.
	ScheduleReloaded = "schedule.reloaded"
	// ScheduleSaved: the schedule document was written.
	ScheduleSaved = "schedule.saved"
)

// Triggered is the payload of EngineTriggered.
type Triggered struct {
	Profile string `json:"profile"`
	Period  string `json:"period"`
	Kind    string `json:"kind"`
	Time    string `json:"time"`
	Warning string `json:"warning,omitempty"`
}

// Played is the payload of DispatchPlayed and DispatchFallback.
type Played struct {
	Period string `json:"period"`
	Source string `json:"source"`
	Reason string `json:"reason,omitempty"`
}

// Event is a small in-memory signal.
//
// Publish never blocks; subscribers get buffered channels and slow ones lose events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop is a bus that drops everything; components use it when none is wired.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Hold the read lock across sends; unsubscribe takes the write lock before
	// closing, so a send never races a close.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
