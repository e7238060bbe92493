package config

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"wcnotice/internal/eventbus"
	"wcnotice/internal/schedule"
	logx "wcnotice/pkg/logx"
)

const (
	watchDebounce      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watcher publishes external edits of the schedule document.
//
// Content written by this process (tracked by the store's hash) is ignored, as
// are edits that fail to parse; the user may still be typing.
type Watcher struct {
	store *ScheduleStore
	log   logx.Logger
	bus   eventbus.Bus
	saver *Saver

	subsMu sync.Mutex
	subs   []chan schedule.AppConfig
}

func NewWatcher(store *ScheduleStore, log logx.Logger, bus eventbus.Bus) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Watcher{store: store, log: log.With(logx.Component("watcher")), bus: bus}
}

// Supersedes makes accepted edits drop whatever s still has pending, so a
// debounced save cannot overwrite the file with the configuration it replaced.
// Call before Watch.
func (w *Watcher) Supersedes(s *Saver) { w.saver = s }

// Subscribe returns a channel receiving each accepted edit. A slow subscriber
// only ever loses older edits, never the latest.
func (w *Watcher) Subscribe(buffer int) (<-chan schedule.AppConfig, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan schedule.AppConfig, buffer)
	w.subsMu.Lock()
	w.subs = append(w.subs, ch)
	w.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.subsMu.Lock()
			defer w.subsMu.Unlock()
			for i, s := range w.subs {
				if s == ch {
					w.subs = append(w.subs[:i], w.subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

func (w *Watcher) publish(cfg schedule.AppConfig) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- cfg.Clone():
			continue
		default:
		}
		// Full: drop the oldest, then deliver the newest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg.Clone():
		default:
			w.log.Debug("schedule update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Reload re-reads the file and publishes it when it differs from what this
// process last read or wrote. It reports whether an update was published.
func (w *Watcher) Reload() bool {
	path := w.store.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Debug("schedule reload skipped", logx.String("path", path), logx.Err(err))
		return false
	}
	h := hashBytes(data)
	if h == w.store.LastHash() {
		return false
	}
	cfg, err := DecodeSchedule(data)
	if err != nil {
		w.log.Warn("edited schedule rejected", logx.String("path", path), logx.Err(err))
		return false
	}
	w.store.lastHash.Store(h)
	if w.saver != nil && w.saver.Discard() {
		w.log.Info("pending save dropped for external edit", logx.String("path", path))
	}
	w.log.Info("schedule changed on disk", logx.String("path", path))
	w.bus.Publish(eventbus.Event{Type: eventbus.ScheduleReloaded, Data: path})
	w.publish(cfg)
	return true
}

// Watch follows the document's directory until ctx ends. A broken fsnotify
// watcher is recreated with jittered backoff.
func (w *Watcher) Watch(ctx context.Context) error {
	dir := filepath.Dir(w.store.Path())
	file := filepath.Base(w.store.Path())

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff *= 2; backoff > restartBackoffMax {
			backoff = restartBackoffMax
		}
		return wait
	}
	sleep := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() { w.Reload() })
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for ctx.Err() == nil {
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fw.Add(dir); err != nil {
				_ = fw.Close()
			}
		}
		if err != nil {
			w.log.Warn("schedule watch init failed", logx.String("dir", dir), logx.Err(err))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		w.log.Debug("schedule watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					w.log.Warn("schedule watch overflow; forcing reload", logx.Err(err))
					debounce()
					continue
				}
				w.log.Warn("schedule watch error", logx.Err(err))
			}
		}

		_ = fw.Close()
		wait := nextWait()
		w.log.Warn("schedule watcher stopped; restarting", logx.Duration("backoff", wait))
		if !sleep(wait) {
			return nil
		}
	}
	return nil
}
