package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file next to Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// MaxRecords bounds the history; 0 means 5000.
	MaxRecords int
}

// TriggerRecord is one fired period. Keep it compact and schema-stable.
type TriggerRecord struct {
	At         time.Time `json:"at"`
	Profile    string    `json:"profile"`
	Period     string    `json:"period"`
	Kind       string    `json:"kind"`
	PeriodTime string    `json:"period_time"`
	Sound      string    `json:"sound,omitempty"`
	Warning    string    `json:"warning,omitempty"`
}

// Store is the persistence API used by the engine and the console.
type Store interface {
	AppendTrigger(ctx context.Context, r TriggerRecord) error
	// RecentTriggers returns up to n records, newest first.
	RecentTriggers(ctx context.Context, n int) ([]TriggerRecord, error)
	Close() error
}
