package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AppDirName is the per-user directory name under the OS config dir.
const AppDirName = "wc_notice"

const (
	DefaultSaveDebounce = 500 * time.Millisecond
	DefaultPlayTimeout  = 30 * time.Second
	DefaultTrayInit     = 5 * time.Second
)

func DefaultSettings() Settings {
	return Settings{
		Logging: LoggingSettings{Level: "info", Console: true},
		Audio:   AudioSettings{Enabled: true},
		Banner:  BannerSettings{Desktop: DesktopBanner{Enabled: true}},
		Tray:    TraySettings{Enabled: true},
		Schedule: ScheduleSettings{
			SaveDebounce: DefaultSaveDebounce.String(),
			Watch:        true,
		},
	}
}

// LoadSettings reads path over DefaultSettings. A missing file (or empty path)
// yields the defaults; any other read, parse or validation failure is an error.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	if err := decodeStrict(jb, &s); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := s.Durations(); err != nil {
		return s, err
	}
	if s.Banner.Telegram.Enabled && (strings.TrimSpace(s.Banner.Telegram.Token) == "" || s.Banner.Telegram.ChatID == 0) {
		return s, errors.New("banner.telegram: token and chat_id are required when enabled")
	}
	return s, nil
}

// Durations holds the parsed duration fields of Settings.
type Durations struct {
	SaveDebounce time.Duration
	PlayTimeout  time.Duration
	TrayInit     time.Duration
	BusyTimeout  time.Duration
}

func (s Settings) Durations() (Durations, error) {
	var (
		d   Durations
		err error
	)
	if d.SaveDebounce, err = ParseDurationOrDefault("schedule.save_debounce", s.Schedule.SaveDebounce, DefaultSaveDebounce); err != nil {
		return d, err
	}
	if d.PlayTimeout, err = ParseDurationOrDefault("audio.play_timeout", s.Audio.PlayTimeout, DefaultPlayTimeout); err != nil {
		return d, err
	}
	if d.TrayInit, err = ParseDurationOrDefault("tray.init_timeout", s.Tray.InitTimeout, DefaultTrayInit); err != nil {
		return d, err
	}
	if d.BusyTimeout, err = ParseDurationField("storage.busy_timeout", s.Storage.BusyTimeout); err != nil {
		return d, err
	}
	return d, nil
}

// SchedulePath resolves the schedule document location.
func (s Settings) SchedulePath() (string, error) {
	if p := strings.TrimSpace(s.Schedule.Path); p != "" {
		return expandHome(p), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppDirName, "schedule.yaml"), nil
}

// StoragePath resolves the history location; empty when storage is off.
func (s Settings) StoragePath() string {
	if p := strings.TrimSpace(s.Storage.Path); p != "" {
		return expandHome(p)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	name := "history.db"
	if strings.EqualFold(strings.TrimSpace(s.Storage.Driver), "file") {
		name = "history"
	}
	return filepath.Join(dir, AppDirName, name)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
