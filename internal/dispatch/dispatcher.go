package dispatch

import (
	"context"
	"os"
	"time"

	"wcnotice/internal/eventbus"
	rtsup "wcnotice/internal/runtime/supervisor"
	"wcnotice/internal/schedule"
	logx "wcnotice/pkg/logx"
)

// LocalFallbackWarning prefixes the warning returned when a local sound is unusable.
const LocalFallbackWarning = "local sound invalid, reverted to default: "

const (
	defaultQueueSize   = 16
	defaultPlayTimeout = 30 * time.Second
	defaultShowTimeout = 10 * time.Second
)

type Option func(*Dispatcher)

func WithLogger(log logx.Logger) Option { return func(d *Dispatcher) { d.log = log } }

func WithBus(bus eventbus.Bus) Option {
	return func(d *Dispatcher) {
		if bus != nil {
			d.bus = bus
		}
	}
}

func WithQueueSize(n int) Option { return func(d *Dispatcher) { d.queueSize = n } }

func WithPlayTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.playTimeout = t
		}
	}
}

// Dispatcher picks the sound for a fired period, queues playback and the banner,
// and returns immediately.
type Dispatcher struct {
	player Player
	banner Banner

	log         logx.Logger
	bus         eventbus.Bus
	queueSize   int
	playTimeout time.Duration
	readFile    func(string) ([]byte, error)

	audio   *lane
	banners *lane
}

// New builds a dispatcher. A nil player disables audio and a nil banner disables
// notifications; neither is an error. Call Start before dispatching.
func New(player Player, banner Banner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		player:      player,
		banner:      banner,
		log:         logx.Nop(),
		bus:         eventbus.Nop(),
		queueSize:   defaultQueueSize,
		playTimeout: defaultPlayTimeout,
		readFile:    os.ReadFile,
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With(logx.Component("dispatch"))
	d.audio = newLane("audio", d.queueSize, d.log)
	d.banners = newLane("banner", d.queueSize, d.log)
	return d
}

// Start runs the audio and banner workers under sup.
func (d *Dispatcher) Start(sup *rtsup.Supervisor) {
	sup.GoRestart("dispatch.audio", d.audio.run)
	sup.GoRestart("dispatch.banner", d.banners.run)
}

// Dispatch implements the engine's collaborator. It never blocks on playback
// or banner delivery. Nothing is queued once ctx is done.
func (d *Dispatcher) Dispatch(ctx context.Context, p schedule.Period, slots schedule.SoundSlots) string {
	if err := ctx.Err(); err != nil {
		d.log.Debug("dispatch skipped", logx.Period(p.Name), logx.Err(err))
		return ""
	}
	primary, fallback, warning := d.resolve(p.Kind, slots.For(p.Kind))

	if d.player != nil && primary.Data != nil {
		d.audio.submit(d.playJob(p.Name, primary, fallback))
	}
	if d.banner != nil {
		title, body := Title(p.Kind), p.Name
		d.banners.submit(func(ctx context.Context) { d.show(ctx, title, body) })
	}
	return warning
}

// resolve returns the clip to play, the builtin armed as a play-time fallback
// (local sources only), and a warning when a local source was rejected up front.
func (d *Dispatcher) resolve(kind schedule.PeriodKind, src schedule.SoundSource) (Clip, *Clip, string) {
	def, err := BuiltinClip(kind.DefaultSound())
	if err != nil {
		d.log.Error("default sound missing", logx.String("kind", string(kind)), logx.Err(err))
	}

	if !src.IsLocal() {
		clip, err := BuiltinClip(src.Builtin)
		if err != nil {
			d.log.Warn("builtin sound unavailable; using default", logx.String("sound", src.String()), logx.Err(err))
			return def, nil, ""
		}
		return clip, nil, ""
	}

	data, err := d.readFile(src.Path)
	if err == nil {
		var f Format
		if f, err = Probe(data); err == nil {
			return Clip{Name: src.Path, Data: data, Format: f}, &def, ""
		}
	}

	d.log.Warn("local sound rejected; using default", logx.String("path", src.Path), logx.Err(err))
	d.bus.Publish(eventbus.Event{
		Type: eventbus.DispatchFallback,
		Data: eventbus.Played{Source: src.String(), Reason: err.Error()},
	})
	return def, nil, LocalFallbackWarning + src.Path
}

func (d *Dispatcher) playJob(period string, primary Clip, fallback *Clip) func(context.Context) {
	return func(ctx context.Context) {
		err := d.play(ctx, primary)
		if err == nil {
			d.bus.Publish(eventbus.Event{Type: eventbus.DispatchPlayed, Data: eventbus.Played{Period: period, Source: primary.Name}})
			return
		}
		d.log.Warn("playback failed", logx.Period(period), logx.String("clip", primary.Name), logx.Err(err))
		if fallback == nil {
			return
		}

		d.bus.Publish(eventbus.Event{
			Type: eventbus.DispatchFallback,
			Data: eventbus.Played{Period: period, Source: primary.Name, Reason: err.Error()},
		})
		if err := d.play(ctx, *fallback); err != nil {
			d.log.Warn("fallback playback failed", logx.Period(period), logx.Err(err))
			return
		}
		d.bus.Publish(eventbus.Event{Type: eventbus.DispatchPlayed, Data: eventbus.Played{Period: period, Source: fallback.Name}})
	}
}

func (d *Dispatcher) play(ctx context.Context, clip Clip) error {
	pctx, cancel := context.WithTimeout(ctx, d.playTimeout)
	defer cancel()
	return d.player.Play(pctx, clip)
}

func (d *Dispatcher) show(ctx context.Context, title, body string) {
	sctx, cancel := context.WithTimeout(ctx, defaultShowTimeout)
	defer cancel()
	if err := d.banner.Show(sctx, title, body); err != nil {
		d.log.Warn("notification failed", logx.String("title", title), logx.Err(err))
		d.bus.Publish(eventbus.Event{Type: eventbus.DispatchBannerFailed, Data: err.Error()})
	}
}
