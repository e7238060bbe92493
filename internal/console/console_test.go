package console

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"wcnotice/internal/engine"
	"wcnotice/internal/runtime/supervisor"
	"wcnotice/internal/schedule"
	"wcnotice/internal/storage"
	"wcnotice/internal/tray"
	logx "wcnotice/pkg/logx"
)

type fakeEngine struct {
	mu      sync.Mutex
	enabled bool
	cfgs    []schedule.AppConfig
	events  []string
	snap    engine.Snapshot
}

func (f *fakeEngine) UpdateConfiguration(cfg schedule.AppConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgs = append(f.cfgs, cfg)
}

func (f *fakeEngine) ToggleEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = !f.enabled
	return f.enabled
}

func (f *fakeEngine) SetEnabled(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = on
}

func (f *fakeEngine) IsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeEngine) DrainStatusEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out
}

func (f *fakeEngine) Snapshot() engine.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	s.Enabled = f.enabled
	return s
}

func (f *fakeEngine) pushed() []schedule.AppConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schedule.AppConfig(nil), f.cfgs...)
}

type fakeSaver struct {
	reqs      []schedule.AppConfig
	pending   bool
	discarded int
}

func (s *fakeSaver) Request(cfg schedule.AppConfig) {
	s.reqs = append(s.reqs, cfg.Clone())
	s.pending = true
}

func (s *fakeSaver) Discard() bool {
	had := s.pending
	s.pending = false
	if had {
		s.discarded++
	}
	return had
}

func newTestConsole(opts ...Option) (*Console, *fakeEngine, *fakeSaver, *bytes.Buffer) {
	eng := &fakeEngine{enabled: true}
	sv := &fakeSaver{}
	var out bytes.Buffer
	opts = append([]Option{WithSaver(sv)}, opts...)
	return New(schedule.DefaultConfig(), eng, &out, opts...), eng, sv, &out
}

func TestSplitLine(t *testing.T) {
	t.Parallel()
	tests := map[string][]string{
		"":                                 nil,
		"  list ":                          {"list"},
		`add 07:30 start "Morning  one"`:   {"add", "07:30", "start", "Morning  one"},
		`rename 'A b' c`:                   {"rename", "A b", "c"},
		`sound start local a\ b.mp3`:       {"sound", "start", "local", "a b.mp3"},
		`new ""`:                           {"new", ""},
		`sound start local C:\bells\a.wav`: {"sound", "start", "local", `C:\bells\a.wav`},
		`name 1 "say \"hi\""`:              {"name", "1", `say "hi"`},
		`x a\\b "c:\d e"`:                  {"x", `a\b`, `c:\d e`},
		`trailing\`:                        {`trailing\`},
	}
	for in, want := range tests {
		if got := splitLine(in); !reflect.DeepEqual(got, want) {
			t.Errorf("splitLine(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEditCommandsCommit(t *testing.T) {
	t.Parallel()
	c, eng, sv, _ := newTestConsole()

	steps := []struct {
		line  string
		reply string
	}{
		{`add 6:5 start "Early bird"`, "added Early bird"},
		{"time 1 23:00", "moved Early bird"},
		{"disable 2", "disabled Lesson 1 end"},
		{"name 1 Homeroom", "renamed"},
		{"rm 16", "removed Evening study end"},
		{"rename Exams", "profile renamed to Exams"},
		{"sound end builtin bell_other", "End sound: builtin:bell_other"},
	}
	for _, s := range steps {
		if got := c.Exec(s.line); got != s.reply {
			t.Fatalf("%q -> %q, want %q", s.line, got, s.reply)
		}
	}
	if len(eng.pushed()) != len(steps) || len(sv.reqs) != len(steps) {
		t.Fatalf("pushes=%d saves=%d, want %d each", len(eng.pushed()), len(sv.reqs), len(steps))
	}

	cfg := c.Config()
	prof := cfg.ActiveSchedule()
	if prof.Name != "Exams" || len(prof.Periods) != 16 {
		t.Fatalf("profile = %q with %d periods", prof.Name, len(prof.Periods))
	}
	if last := prof.Periods[len(prof.Periods)-1]; last.Time != "23:00:00" || last.Name != "Early bird" {
		t.Fatalf("moved period = %+v", last)
	}
	if prof.Periods[0].Name != "Homeroom" || !prof.Periods[0].Enabled || prof.Periods[1].Enabled {
		t.Fatalf("first periods = %+v", prof.Periods[:2])
	}
	if prof.Sound.End != schedule.Builtin(schedule.BellOther) {
		t.Fatalf("end sound = %v", prof.Sound.End)
	}

	// The engine gets its own copy.
	pushed := eng.pushed()
	pushed[len(pushed)-1].Schedules[0].Name = "mutated"
	if cur := c.Config(); cur.ActiveSchedule().Name != "Exams" {
		t.Fatal("engine copy aliases console state")
	}
}

func TestRejectedCommandsLeaveConfig(t *testing.T) {
	t.Parallel()
	c, eng, sv, _ := newTestConsole()
	before := c.Config()

	for _, line := range []string{
		"add 25:00 start X",
		"add 07:00 middle X",
		"time 1 23:99",
		"time 99 08:00",
		"rm zero",
		"use 42",
		"sound start builtin trumpet",
		"sound start url http://x",
		"add 07:00",
		"frobnicate",
	} {
		reply := c.Exec(line)
		if !strings.HasPrefix(reply, "error:") && !strings.HasPrefix(reply, "usage:") && !strings.HasPrefix(reply, "unknown command") {
			t.Errorf("%q accepted: %q", line, reply)
		}
	}
	if !reflect.DeepEqual(before, c.Config()) {
		t.Fatal("rejected commands changed the configuration")
	}
	if len(eng.pushed()) != 0 || len(sv.reqs) != 0 {
		t.Fatal("rejected commands were committed")
	}
}

func TestProfileCommands(t *testing.T) {
	t.Parallel()
	c, eng, _, _ := newTestConsole()

	if got := c.Exec("new Weekend"); got != "created profile 2" {
		t.Fatalf("new -> %q", got)
	}
	if got := c.Exec("profiles"); !strings.Contains(got, "* 2  Weekend (0 periods)") || !strings.Contains(got, "  1  Default timetable") {
		t.Fatalf("profiles -> %q", got)
	}
	if got := c.Exec("list"); !strings.Contains(got, "no periods") {
		t.Fatalf("list -> %q", got)
	}
	if got := c.Exec("use 1"); got != "using Default timetable" {
		t.Fatalf("use -> %q", got)
	}
	if got := c.Exec("drop"); got != "deleted Default timetable; now using Weekend" {
		t.Fatalf("drop -> %q", got)
	}
	if got := c.Exec("drop"); !strings.Contains(got, "no profiles left") {
		t.Fatalf("drop last -> %q", got)
	}
	if got := c.Exec("drop"); !strings.HasPrefix(got, "error:") {
		t.Fatalf("drop none -> %q", got)
	}
	if got := c.Exec("list"); !strings.HasPrefix(got, "error:") {
		t.Fatalf("list none -> %q", got)
	}
	if got := c.Exec("new Fresh"); got != "created profile 3" {
		t.Fatalf("ids reused: %q", got)
	}

	last := eng.pushed()[len(eng.pushed())-1]
	if a := last.ActiveSchedule(); a == nil || a.ID != 3 {
		t.Fatalf("engine active = %+v", a)
	}
}

func TestEngineCommands(t *testing.T) {
	t.Parallel()
	c, eng, _, _ := newTestConsole()
	eng.snap = engine.Snapshot{
		HasActive:     true,
		ActiveProfile: "Default timetable",
		Status:        "Period 1",
		HasNext:       true,
		Next:          schedule.NewPeriod("08:40:00", schedule.KindEnd, "Period 1"),
		NextAt:        time.Date(2030, 1, 1, 8, 40, 0, 0, time.Local),
	}

	if c.Exec("pause") != "paused" || eng.IsEnabled() {
		t.Fatal("pause")
	}
	if c.Exec("toggle") != "running" || !eng.IsEnabled() {
		t.Fatal("toggle")
	}
	if c.Exec("resume") != "running" {
		t.Fatal("resume")
	}
	got := c.Exec("status")
	if !strings.Contains(got, `profile "Default timetable"`) || !strings.Contains(got, "next: End Period 1 at 08:40:00") {
		t.Fatalf("status -> %q", got)
	}
	if got := c.Exec("next"); !strings.Contains(got, "tomorrow") {
		t.Fatalf("next -> %q", got)
	}
	if !strings.Contains(c.Exec("help"), "sound start|end") {
		t.Fatal("help lacks usage")
	}
}

func TestHistoryAndHealth(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir() + "/history"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	at := time.Date(2030, 1, 1, 7, 0, 0, 0, time.Local)
	if err := st.AppendTrigger(context.Background(), storage.TriggerRecord{At: at, Profile: "P", Period: "Assembly", Kind: "start", Warning: "local sound invalid"}); err != nil {
		t.Fatal(err)
	}

	c, _, _, _ := newTestConsole(
		WithHistory(st),
		WithHealth(func() []supervisor.Stat {
			return []supervisor.Stat{{Name: "engine", Active: 1, Starts: 1}, {Name: "dispatch.audio", Starts: 2, Panics: 1, LastErr: "boom"}}
		}),
	)
	got := c.Exec("history 5")
	if !strings.Contains(got, "2030-01-01 07:00:00") || !strings.Contains(got, "Assembly (P)") || !strings.Contains(got, "! local sound invalid") {
		t.Fatalf("history -> %q", got)
	}
	got = c.Exec("health")
	if !strings.HasPrefix(got, "dispatch.audio") || !strings.Contains(got, "panics=1 last_err=boom") {
		t.Fatalf("health -> %q", got)
	}
	if c2, _, _, _ := newTestConsole(); c2.Exec("history") != "history is off" {
		t.Fatal("history without store")
	}
}

func TestFrameRelaysEventsAndTray(t *testing.T) {
	t.Parallel()
	b := tray.NewBridge()
	c, eng, _, out := newTestConsole(WithBridge(b), WithGraceFrames(2))

	eng.events = []string{"local sound invalid, reverted to default: Period 1"}
	c.frame(nil)
	if !strings.Contains(out.String(), "! local sound invalid") {
		t.Fatalf("event not printed: %q", out.String())
	}

	c.Exec("hide")
	c.frame(nil)
	if !c.Hidden() {
		t.Fatal("hide did not reach the tray")
	}

	b.RequestShow()
	c.frame(nil)
	if c.Hidden() || !c.tracker.Restoring() {
		t.Fatalf("show: hidden=%v tracker=%s", c.Hidden(), c.tracker)
	}

	b.RequestExit()
	c.frame(nil)
	if !c.quit {
		t.Fatal("exit latch ignored")
	}
}

func TestRunAppliesUpdatesAndQuits(t *testing.T) {
	t.Parallel()
	updates := make(chan schedule.AppConfig, 1)
	edited := schedule.DefaultConfig()
	edited.ActiveSchedule().Rename("From disk")
	updates <- edited

	pr, pw := io.Pipe()
	c, eng, sv, _ := newTestConsole(WithInput(pr), WithUpdates(updates), WithFrame(5*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	go func() {
		_, _ = io.WriteString(pw, "status\nquit\n")
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not quit")
	}
	_ = pw.Close()

	if cur := c.Config(); cur.ActiveSchedule().Name != "From disk" {
		t.Fatal("update not applied")
	}
	if p := eng.pushed(); len(p) == 0 || p[0].ActiveSchedule().Name != "From disk" {
		t.Fatal("update not pushed to engine")
	}
	if len(sv.reqs) != 0 {
		t.Fatal("external edit written back")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	t.Parallel()
	c, _, _, _ := newTestConsole(WithFrame(5 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestUpdateFromDiskDropsPendingEdit(t *testing.T) {
	t.Parallel()
	updates := make(chan schedule.AppConfig, 1)
	c, eng, sv, out := newTestConsole(WithUpdates(updates))

	if got := c.Exec("rename Local"); got != "profile renamed to Local" {
		t.Fatalf("rename -> %q", got)
	}
	edited := schedule.DefaultConfig()
	edited.ActiveSchedule().Rename("From disk")
	updates <- edited
	c.frame(nil)

	if sv.discarded != 1 || sv.pending {
		t.Fatalf("discarded=%d pending=%v", sv.discarded, sv.pending)
	}
	if cur := c.Config(); cur.ActiveSchedule().Name != "From disk" {
		t.Fatal("update not applied")
	}
	p := eng.pushed()
	if last := p[len(p)-1]; last.ActiveSchedule().Name != "From disk" {
		t.Fatalf("engine runs %q", last.ActiveSchedule().Name)
	}
	if !strings.Contains(out.String(), "unsaved edit dropped") {
		t.Fatalf("output = %q", out.String())
	}
}
