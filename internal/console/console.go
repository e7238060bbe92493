// Package console is the interactive front-end: a frame loop that owns the
// editable schedule, reads line commands, and relays engine status events and
// tray requests.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"wcnotice/internal/engine"
	"wcnotice/internal/runtime/supervisor"
	"wcnotice/internal/schedule"
	"wcnotice/internal/storage"
	"wcnotice/internal/tray"
	logx "wcnotice/pkg/logx"
)

// DefaultFrame is the frame cadence when nothing wakes the loop earlier.
const DefaultFrame = 250 * time.Millisecond

// Engine is the part of the scheduling engine the console drives.
type Engine interface {
	UpdateConfiguration(cfg schedule.AppConfig)
	ToggleEnabled() bool
	SetEnabled(on bool)
	IsEnabled() bool
	DrainStatusEvents() []string
	Snapshot() engine.Snapshot
}

// Saver persists the configuration some time after it was requested.
type Saver interface {
	Request(cfg schedule.AppConfig)
	// Discard drops a pending request; it reports whether there was one.
	Discard() bool
}

type Option func(*Console)

func WithLogger(log logx.Logger) Option { return func(c *Console) { c.log = log } }

// WithInput reads commands from r. Without it the loop only relays events.
func WithInput(r io.Reader) Option { return func(c *Console) { c.in = r } }

func WithFrame(d time.Duration) Option {
	return func(c *Console) {
		if d > 0 {
			c.frameEvery = d
		}
	}
}

func WithSaver(s Saver) Option { return func(c *Console) { c.saver = s } }

func WithBridge(b *tray.Bridge) Option { return func(c *Console) { c.bridge = b } }

func WithGraceFrames(n int) Option { return func(c *Console) { c.tracker = tray.NewWindowTracker(n) } }

// WithUpdates applies every configuration received on ch, e.g. external edits
// of the schedule file.
func WithUpdates(ch <-chan schedule.AppConfig) Option { return func(c *Console) { c.updates = ch } }

func WithHistory(st storage.Store) Option { return func(c *Console) { c.history = st } }

func WithHealth(fn func() []supervisor.Stat) Option { return func(c *Console) { c.health = fn } }

// Console is not safe for concurrent use; everything runs on the Run goroutine.
type Console struct {
	cfg     schedule.AppConfig
	engine  Engine
	saver   Saver
	bridge  *tray.Bridge
	tracker *tray.WindowTracker
	win     window
	updates <-chan schedule.AppConfig
	history storage.Store
	health  func() []supervisor.Stat

	in         io.Reader
	out        io.Writer
	log        logx.Logger
	frameEvery time.Duration

	wakeCh chan struct{}
	quit   bool
}

// New takes a private copy of cfg. Replies and status lines go to out.
func New(cfg schedule.AppConfig, eng Engine, out io.Writer, opts ...Option) *Console {
	c := &Console{
		cfg:        cfg.Clone(),
		engine:     eng,
		out:        out,
		frameEvery: DefaultFrame,
		wakeCh:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	if c.out == nil {
		c.out = io.Discard
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.Component("console"))
	if c.bridge == nil {
		c.bridge = tray.NewBridge()
	}
	if c.tracker == nil {
		c.tracker = tray.NewWindowTracker(tray.DefaultGraceFrames)
	}
	c.cfg.EnsureActiveSchedule()
	return c
}

// Config returns a copy of the console's configuration.
func (c *Console) Config() schedule.AppConfig { return c.cfg.Clone() }

// Hidden reports whether the front-end is hidden to the tray.
func (c *Console) Hidden() bool { return c.win.hidden }

func (c *Console) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// Run drives frames until quit is requested (command or tray) or ctx ends.
func (c *Console) Run(ctx context.Context) error {
	defer c.bridge.SetWaker(nil)

	var lines <-chan string
	if c.in != nil {
		lines = c.readLines(ctx)
	}

	t := time.NewTicker(c.frameEvery)
	defer t.Stop()
	c.printf("wcnotice ready; type 'help' for commands\n")
	for {
		c.frame(lines)
		if c.quit {
			c.log.Info("quit requested")
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		case <-c.wakeCh:
		}
	}
}

// readLines pumps lines from the input on its own goroutine. A blocked read
// outlives ctx; the goroutine ends with the input.
func (c *Console) readLines(ctx context.Context) <-chan string {
	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
				c.wake()
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			c.log.Warn("command input failed", logx.Err(err))
			return
		}
		c.log.Debug("command input closed")
	}()
	return ch
}

// frame is one pass of the loop.
func (c *Console) frame(lines <-chan string) {
	c.bridge.SetWaker(c.wake)

	for _, msg := range c.engine.DrainStatusEvents() {
		c.log.Warn("status event", logx.String("msg", msg))
		c.printf("! %s\n", msg)
	}

	if c.bridge.TakeExitRequest() {
		c.quit = true
		return
	}
	if c.bridge.TakeShowRequest() {
		c.show()
	}
	if c.tracker.Observe(c.win.minimized) == tray.ActionHideToTray {
		c.win.hidden = true
		c.log.Info("hidden to tray")
	}

	c.applyUpdates()

	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if reply := c.Exec(line); reply != "" {
				c.printf("%s\n", reply)
			}
			if c.quit {
				return
			}
		default:
			return
		}
	}
}

func (c *Console) applyUpdates() {
	if c.updates == nil {
		return
	}
	for {
		select {
		case cfg, ok := <-c.updates:
			if !ok {
				c.updates = nil
				return
			}
			// A pending edit was made against the replaced configuration.
			if c.saver != nil && c.saver.Discard() {
				c.printf("! unsaved edit dropped; the file was edited elsewhere\n")
			}
			c.cfg = cfg.Clone()
			c.cfg.EnsureActiveSchedule()
			c.engine.UpdateConfiguration(c.cfg.Clone())
			c.printf("schedule reloaded from disk\n")
		default:
			return
		}
	}
}

func (c *Console) show() {
	c.win.minimized = false
	c.win.hidden = false
	c.tracker.Restore()
	c.log.Debug("window restored", logx.String("tracker", c.tracker.String()))
}

// commit publishes an edit of the local copy to the engine and the saver.
func (c *Console) commit() {
	c.cfg.EnsureActiveSchedule()
	c.engine.UpdateConfiguration(c.cfg.Clone())
	if c.saver != nil {
		c.saver.Request(c.cfg)
	}
}

// printf writes to the output. While hidden only warnings get through.
func (c *Console) printf(format string, args ...any) {
	if c.win.hidden && (len(format) == 0 || format[0] != '!') {
		return
	}
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// window is the console's stand-in for a native window: "hide" minimizes it,
// the tracker turns that into hide-to-tray, and "show" or the tray restores it.
type window struct {
	minimized bool
	hidden    bool
}
