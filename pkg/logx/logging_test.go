package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(Component("engine"))

	log.Debug("hidden")
	log.Info("period triggered", Profile("Default timetable"), Period("Lesson 1 start"), Err(nil))
	log.Warn("append failed", Err(errors.New("disk full")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d:\n%s", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	for k, want := range map[string]string{
		"comp":    "engine",
		"profile": "Default timetable",
		"period":  "Lesson 1 start",
		"message": "period triggered",
	} {
		if first[k] != want {
			t.Errorf("%s = %v, want %q", k, first[k], want)
		}
	}
	if _, ok := first["err"]; ok {
		t.Error("nil error logged")
	}
	if c, _ := first["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Errorf("caller = %v", first["caller"])
	}
	if !strings.Contains(lines[1], `"err":"disk full"`) {
		t.Errorf("error missing: %s", lines[1])
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() || Nop().IsZero() {
		t.Fatal("IsZero mismatch")
	}
	zero.Info("dropped")
	Nop().With(Component("x")).Error("dropped")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServiceWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wcnotice.log")
	svc, log := New(Config{Level: "debug", Interactive: true, File: FileConfig{Enabled: true, Path: path}})
	log.With(Component("dispatch")).Debug("queued", Period("Lesson 2 end"))
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var ev map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &ev); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, data)
	}
	if ev["comp"] != "dispatch" || ev["period"] != "Lesson 2 end" || ev["level"] != "debug" {
		t.Fatalf("event = %v", ev)
	}
}
