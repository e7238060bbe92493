package schedule

import (
	"errors"
	"strings"
)

var ErrNoActiveSchedule = errors.New("no active schedule")

// AppConfig is the configuration root persisted between runs.
type AppConfig struct {
	// ActiveScheduleID references (does not own) a profile in Schedules.
	ActiveScheduleID *uint64 `yaml:"active_schedule_id" json:"active_schedule_id"`
	// NextScheduleID is the next ID handed out; IDs are never reused.
	NextScheduleID uint64            `yaml:"next_schedule_id" json:"next_schedule_id"`
	Schedules      []ScheduleProfile `yaml:"schedules" json:"schedules"`
	Autostart      bool              `yaml:"autostart" json:"autostart"`
}

// DefaultConfig holds a single default preset, active, with autostart on.
func DefaultConfig() AppConfig {
	const id = 1
	return AppConfig{
		ActiveScheduleID: ptr(uint64(id)),
		NextScheduleID:   id + 1,
		Schedules:        []ScheduleProfile{DefaultPreset(id)},
		Autostart:        true,
	}
}

// Clone returns a deep copy suitable for handing to another goroutine.
func (c AppConfig) Clone() AppConfig {
	cp := c
	if c.ActiveScheduleID != nil {
		cp.ActiveScheduleID = ptr(*c.ActiveScheduleID)
	}
	if c.Schedules != nil {
		cp.Schedules = make([]ScheduleProfile, len(c.Schedules))
		for i, s := range c.Schedules {
			cp.Schedules[i] = s.Clone()
		}
	}
	return cp
}

func (c *AppConfig) indexOf(id uint64) int {
	for i := range c.Schedules {
		if c.Schedules[i].ID == id {
			return i
		}
	}
	return -1
}

// ActiveSchedule returns the active profile, or nil. The pointer aliases c.Schedules.
func (c *AppConfig) ActiveSchedule() *ScheduleProfile {
	if c.ActiveScheduleID == nil {
		return nil
	}
	if i := c.indexOf(*c.ActiveScheduleID); i >= 0 {
		return &c.Schedules[i]
	}
	return nil
}

// Schedule returns the profile with id, or nil.
func (c *AppConfig) Schedule(id uint64) *ScheduleProfile {
	if i := c.indexOf(id); i >= 0 {
		return &c.Schedules[i]
	}
	return nil
}

// EnsureActiveSchedule resets a dangling or empty active reference to the first
// remaining profile (or none). Call after every structural mutation.
func (c *AppConfig) EnsureActiveSchedule() {
	if c.ActiveSchedule() != nil {
		return
	}
	if len(c.Schedules) == 0 {
		c.ActiveScheduleID = nil
		return
	}
	c.ActiveScheduleID = ptr(c.Schedules[0].ID)
}

// CreateEmptySchedule allocates a new ID, appends an empty profile and makes it active.
func (c *AppConfig) CreateEmptySchedule(name string) uint64 {
	id := c.NextScheduleID
	c.NextScheduleID++

	c.Schedules = append(c.Schedules, EmptyProfile(id, strings.TrimSpace(name)))
	c.ActiveScheduleID = ptr(id)
	c.EnsureActiveSchedule()
	return id
}

// RemoveActiveSchedule deletes the active profile; the first remaining profile
// (if any) becomes active.
func (c *AppConfig) RemoveActiveSchedule() (ScheduleProfile, bool) {
	if c.ActiveScheduleID == nil {
		return ScheduleProfile{}, false
	}
	i := c.indexOf(*c.ActiveScheduleID)
	if i < 0 {
		c.EnsureActiveSchedule()
		return ScheduleProfile{}, false
	}
	removed := c.Schedules[i]
	c.Schedules = append(c.Schedules[:i], c.Schedules[i+1:]...)
	c.ActiveScheduleID = nil
	c.EnsureActiveSchedule()
	return removed, true
}

// SetActiveSchedule selects id if it exists; otherwise the reference is repaired.
func (c *AppConfig) SetActiveSchedule(id *uint64) {
	c.ActiveScheduleID = nil
	if id != nil && c.indexOf(*id) >= 0 {
		c.ActiveScheduleID = ptr(*id)
	}
	c.EnsureActiveSchedule()
}

// SetSound replaces the sound used for kind on the active profile.
func (c *AppConfig) SetSound(kind PeriodKind, src SoundSource) error {
	active := c.ActiveSchedule()
	if active == nil {
		return ErrNoActiveSchedule
	}
	if !src.Valid() {
		return errors.New("invalid sound source " + src.String())
	}
	active.Sound.Set(kind, src)
	return nil
}

// Normalize repairs a freshly decoded document: canonical period times, sorted
// periods, valid sound slots, an ID counter past every existing ID, and a valid
// active reference.
func (c *AppConfig) Normalize() {
	var maxID uint64
	for i := range c.Schedules {
		c.Schedules[i].normalize()
		if c.Schedules[i].ID > maxID {
			maxID = c.Schedules[i].ID
		}
	}
	if c.NextScheduleID <= maxID {
		c.NextScheduleID = maxID + 1
	}
	if c.NextScheduleID == 0 {
		c.NextScheduleID = 1
	}
	c.EnsureActiveSchedule()
}

func ptr[T any](v T) *T { return &v }
