package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	yaml "go.yaml.in/yaml/v3"

	"wcnotice/internal/schedule"
	logx "wcnotice/pkg/logx"
)

// ScheduleStore reads and writes the schedule document.
//
// It remembers the hash of the last content it read or wrote so the saver can
// skip no-op writes and the watcher can ignore our own writes.
type ScheduleStore struct {
	path     string
	log      logx.Logger
	lastHash atomic.Uint64
}

func NewScheduleStore(path string, log logx.Logger) *ScheduleStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ScheduleStore{path: path, log: log.With(logx.Component("schedule_store"))}
}

func (s *ScheduleStore) Path() string { return s.path }

// LastHash is the content hash of the last document read or written.
func (s *ScheduleStore) LastHash() uint64 { return s.lastHash.Load() }

// Load reads the document. When it is missing or unreadable the default
// configuration is returned and immediately persisted; a broken file is kept
// next to it as <path>.broken. The returned error only reports a failed write
// of that default.
func (s *ScheduleStore) Load() (schedule.AppConfig, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		cfg, perr := DecodeSchedule(data)
		if perr == nil {
			s.lastHash.Store(hashBytes(data))
			s.log.Info("schedule loaded", logx.String("path", s.path), logx.Int("profiles", len(cfg.Schedules)))
			return cfg, nil
		}
		s.log.Warn("schedule unreadable; restoring defaults", logx.String("path", s.path), logx.Err(perr))
		if werr := os.WriteFile(s.path+".broken", data, 0o600); werr != nil {
			s.log.Warn("could not keep broken schedule", logx.Err(werr))
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("schedule read failed; restoring defaults", logx.String("path", s.path), logx.Err(err))
	} else {
		s.log.Info("no schedule yet; creating default", logx.String("path", s.path))
	}

	cfg := schedule.DefaultConfig()
	return cfg, s.Save(cfg)
}

// Save writes cfg atomically with owner-only permissions.
func (s *ScheduleStore) Save(cfg schedule.AppConfig) error {
	data, err := EncodeSchedule(cfg)
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *ScheduleStore) write(data []byte) error {
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	s.lastHash.Store(hashBytes(data))
	return nil
}

// EncodeSchedule renders the document as YAML.
func EncodeSchedule(cfg schedule.AppConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSchedule parses and repairs a document. Unknown keys are ignored so a
// newer file still loads.
func DecodeSchedule(data []byte) (schedule.AppConfig, error) {
	var cfg schedule.AppConfig
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, errors.New("empty schedule document")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	return cfg, nil
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
