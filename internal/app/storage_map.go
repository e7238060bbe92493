package app

import (
	"fmt"
	"strings"
	"time"

	"wcnotice/internal/config"
	"wcnotice/internal/storage"
)

// mapStorageConfig turns the storage settings into a storage.Config.
// enabled is false when the history is switched off.
func mapStorageConfig(s config.Settings) (storage.Config, bool, error) {
	sc := s.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := s.StoragePath()
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when no user config dir is available")
	}
	if sc.MaxRecords < 0 {
		return storage.Config{}, false, fmt.Errorf("storage.max_records must be >= 0")
	}

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path, MaxRecords: sc.MaxRecords}, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, MaxRecords: sc.MaxRecords}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
