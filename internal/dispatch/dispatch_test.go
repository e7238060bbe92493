package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"wcnotice/internal/eventbus"
	rtsup "wcnotice/internal/runtime/supervisor"
	"wcnotice/internal/schedule"
)

type fakePlayer struct {
	played chan Clip
	fail   func(Clip) error
}

func newFakePlayer(fail func(Clip) error) *fakePlayer {
	return &fakePlayer{played: make(chan Clip, 8), fail: fail}
}

func (p *fakePlayer) Play(_ context.Context, c Clip) error {
	p.played <- c
	if p.fail != nil {
		return p.fail(c)
	}
	return nil
}

type shown struct{ title, body string }

func recordBanner(ch chan shown, err error) Banner {
	return BannerFunc(func(_ context.Context, title, body string) error {
		ch <- shown{title, body}
		return err
	})
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	sup := rtsup.New(context.Background())
	d.Start(sup)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuiltinAssetsProbe(t *testing.T) {
	t.Parallel()
	for _, b := range schedule.AllBuiltinSounds {
		c, err := BuiltinClip(b)
		if err != nil {
			t.Fatalf("%s: %v", b, err)
		}
		if f, err := Probe(c.Data); err != nil || f != FormatWAV {
			t.Fatalf("%s: probe = %q, %v", b, f, err)
		}
	}
	if _, err := BuiltinClip("missing"); err == nil {
		t.Fatal("expected error for unknown asset")
	}
}

func TestProbeRejects(t *testing.T) {
	t.Parallel()
	tests := map[string][]byte{
		"text":      []byte("definitely not audio"),
		"empty":     nil,
		"riff-only": []byte("RIFF\x00\x00\x00\x00WAVEjunk"),
		"id3-junk":  append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0}, 64)...),
	}
	for name, data := range tests {
		if _, err := Probe(data); err == nil {
			t.Fatalf("%s: probe accepted invalid data", name)
		}
	}
	if _, err := Probe([]byte("OggS....")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ogg err = %v", err)
	}
}

func TestDispatchBuiltin(t *testing.T) {
	t.Parallel()
	p := newFakePlayer(nil)
	banners := make(chan shown, 4)
	d := New(p, recordBanner(banners, nil))
	startDispatcher(t, d)

	period := schedule.NewPeriod("08:00:00", schedule.KindStart, "Lesson 1 start")
	if w := d.Dispatch(context.Background(), period, schedule.DefaultSoundSlots()); w != "" {
		t.Fatalf("warning = %q", w)
	}

	if c := recv(t, p.played); c.Name != string(schedule.BellStart) {
		t.Fatalf("played %q", c.Name)
	}
	if b := recv(t, banners); b.title != "🔔 Start" || b.body != "Lesson 1 start" {
		t.Fatalf("banner = %+v", b)
	}
}

func TestDispatchLocalFallsBackUpFront(t *testing.T) {
	t.Parallel()
	bad := writeTemp(t, "bad.mp3", []byte("not audio at all"))
	for name, path := range map[string]string{
		"missing":     filepath.Join(t.TempDir(), "gone.wav"),
		"undecodable": bad,
	} {
		name, path := name, path
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := newFakePlayer(nil)
			d := New(p, nil)
			startDispatcher(t, d)

			slots := schedule.DefaultSoundSlots()
			slots.Set(schedule.KindEnd, schedule.Local(path))
			period := schedule.NewPeriod("08:45:00", schedule.KindEnd, "Lesson 1 end")

			w := d.Dispatch(context.Background(), period, slots)
			if w != LocalFallbackWarning+path {
				t.Fatalf("warning = %q", w)
			}
			if c := recv(t, p.played); c.Name != string(schedule.BellEnd) {
				t.Fatalf("played %q, want default end bell", c.Name)
			}
		})
	}
}

func TestDispatchLocalFallsBackAtPlayTime(t *testing.T) {
	t.Parallel()
	asset, err := BuiltinClip(schedule.BellOther)
	if err != nil {
		t.Fatal(err)
	}
	path := writeTemp(t, "custom.wav", asset.Data)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	p := newFakePlayer(func(c Clip) error {
		if c.Name == path {
			return errors.New("device busy")
		}
		return nil
	})
	d := New(p, nil, WithBus(bus))
	startDispatcher(t, d)

	slots := schedule.DefaultSoundSlots()
	slots.Set(schedule.KindStart, schedule.Local(path))
	w := d.Dispatch(context.Background(), schedule.NewPeriod("08:00:00", schedule.KindStart, "x"), slots)
	if w != "" {
		t.Fatalf("probe should pass, got warning %q", w)
	}

	if c := recv(t, p.played); c.Name != path {
		t.Fatalf("first play = %q", c.Name)
	}
	if c := recv(t, p.played); c.Name != string(schedule.BellStart) {
		t.Fatalf("fallback play = %q", c.Name)
	}
	var sawFallback bool
	deadline := time.After(2 * time.Second)
	for !sawFallback {
		select {
		case e := <-events:
			sawFallback = e.Type == eventbus.DispatchFallback
		case <-deadline:
			t.Fatal("no fallback event")
		}
	}
}

func TestDispatchNeverBlocksWhenQueueFull(t *testing.T) {
	t.Parallel()
	p := newFakePlayer(nil)
	d := New(p, nil, WithQueueSize(1)) // not started: nothing drains

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Dispatch(context.Background(), schedule.NewPeriod("08:00:00", schedule.KindStart, "x"), schedule.DefaultSoundSlots())
		}
		close(done)
	}()
	recv(t, done)
	if n := d.audio.dropped.Load(); n != 4 {
		t.Fatalf("dropped = %d, want 4", n)
	}
}

func TestDispatchSkipsAfterCancel(t *testing.T) {
	t.Parallel()
	d := New(newFakePlayer(nil), recordBanner(make(chan shown, 1), nil)) // not started
	period := schedule.NewPeriod("08:00:00", schedule.KindStart, "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, period, schedule.DefaultSoundSlots())
	if len(d.audio.ch) != 0 || len(d.banners.ch) != 0 {
		t.Fatalf("queued after cancel: audio=%d banner=%d", len(d.audio.ch), len(d.banners.ch))
	}

	d.Dispatch(context.Background(), period, schedule.DefaultSoundSlots())
	if len(d.audio.ch) != 1 || len(d.banners.ch) != 1 {
		t.Fatalf("live dispatch: audio=%d banner=%d", len(d.audio.ch), len(d.banners.ch))
	}
}

func TestBannerFailureIsPublishedOnly(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	banners := make(chan shown, 1)
	d := New(nil, recordBanner(banners, errors.New("dbus unavailable")), WithBus(bus))
	startDispatcher(t, d)

	if w := d.Dispatch(context.Background(), schedule.NewPeriod("08:00:00", schedule.KindStart, "x"), schedule.DefaultSoundSlots()); w != "" {
		t.Fatalf("banner failure leaked as warning %q", w)
	}
	recv(t, banners)
	if e := recv(t, events); e.Type != eventbus.DispatchBannerFailed {
		t.Fatalf("event = %+v", e)
	}
}

func TestMultiBannerJoinsErrors(t *testing.T) {
	t.Parallel()
	var calls int
	ok := BannerFunc(func(context.Context, string, string) error { calls++; return nil })
	bad := BannerFunc(func(context.Context, string, string) error { calls++; return errors.New("nope") })

	err := MultiBanner{ok, nil, bad, ok}.Show(context.Background(), "t", "b")
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

type fakeSender struct {
	to   tele.Recipient
	what interface{}
	opts []interface{}
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.to, f.what, f.opts = to, what, opts
	return &tele.Message{ID: 1}, nil
}

func TestTelegramBannerFormatsHTML(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	b := newTelegramBanner(s, TelegramConfig{ChatID: -100123, ThreadID: 7, RatePerSec: 5})

	if err := b.Show(context.Background(), "🔔 End", "Lab <3>"); err != nil {
		t.Fatal(err)
	}
	if s.to.Recipient() != "-100123" {
		t.Fatalf("recipient = %q", s.to.Recipient())
	}
	if s.what != "<b>🔔 End</b>\nLab &lt;3&gt;" {
		t.Fatalf("text = %q", s.what)
	}
	opt, ok := s.opts[0].(*tele.SendOptions)
	if !ok || opt.ThreadID != 7 || opt.ParseMode != tele.ModeHTML {
		t.Fatalf("opts = %+v", s.opts)
	}
}

func TestNewTelegramBannerValidates(t *testing.T) {
	t.Parallel()
	if _, err := NewTelegramBanner(TelegramConfig{ChatID: 1}); err == nil {
		t.Fatal("expected token error")
	}
	if _, err := NewTelegramBanner(TelegramConfig{Token: "x"}); err == nil {
		t.Fatal("expected chat error")
	}
}
