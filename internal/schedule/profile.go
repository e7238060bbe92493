package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrPeriodIndex = errors.New("period index out of range")

// StandbyStatus is reported by CurrentStatus before the first period of the day.
const StandbyStatus = "Standby"

// Period is one daily occurrence. Time is kept in canonical "HH:MM:SS" form by
// every editing path; a value that fails to parse never matches.
type Period struct {
	Time    string     `yaml:"time" json:"time"`
	Kind    PeriodKind `yaml:"kind" json:"kind"`
	Name    string     `yaml:"name" json:"name"`
	Enabled bool       `yaml:"enabled" json:"enabled"`
}

func NewPeriod(time string, kind PeriodKind, name string) Period {
	return Period{Time: time, Kind: kind, Name: name, Enabled: true}
}

// Clock parses Time. ok is false for malformed values.
func (p Period) Clock() (Clock, bool) {
	c, err := ParseClock(p.Time)
	if err != nil {
		return 0, false
	}
	return c, true
}

// MatchesNow reports whether an enabled period falls exactly on now (second precision).
// A second that is never sampled is never matched retroactively.
func (p Period) MatchesNow(now Clock) bool {
	if !p.Enabled {
		return false
	}
	c, ok := p.Clock()
	return ok && c == now
}

// ScheduleProfile is a named timetable with its own sound configuration.
type ScheduleProfile struct {
	ID      uint64     `yaml:"id" json:"id"`
	Name    string     `yaml:"name" json:"name"`
	Periods []Period   `yaml:"periods" json:"periods"`
	Sound   SoundSlots `yaml:"sound" json:"sound"`
}

// DefaultPreset is the built-in school-day timetable (16 periods).
func DefaultPreset(id uint64) ScheduleProfile {
	return ScheduleProfile{
		ID:   id,
		Name: "Default timetable",
		Periods: []Period{
			NewPeriod("08:00:00", KindStart, "Lesson 1 start"),
			NewPeriod("08:45:00", KindEnd, "Lesson 1 end"),
			NewPeriod("08:55:00", KindStart, "Lesson 2 start"),
			NewPeriod("09:40:00", KindEnd, "Lesson 2 end"),
			NewPeriod("10:10:00", KindStart, "Lesson 3 start"),
			NewPeriod("10:55:00", KindEnd, "Lesson 3 end"),
			NewPeriod("11:05:00", KindStart, "Lesson 4 start"),
			NewPeriod("11:50:00", KindEnd, "Morning end"),
			NewPeriod("13:50:00", KindStart, "Lesson 5 start"),
			NewPeriod("14:35:00", KindEnd, "Lesson 5 end"),
			NewPeriod("14:45:00", KindStart, "Lesson 6 start"),
			NewPeriod("15:30:00", KindEnd, "Lesson 6 end"),
			NewPeriod("15:40:00", KindStart, "Lesson 7 start"),
			NewPeriod("16:25:00", KindEnd, "Lesson 7 end"),
			NewPeriod("19:00:00", KindStart, "Evening study start"),
			NewPeriod("21:30:00", KindEnd, "Evening study end"),
		},
		Sound: DefaultSoundSlots(),
	}
}

func EmptyProfile(id uint64, name string) ScheduleProfile {
	return ScheduleProfile{
		ID:      id,
		Name:    name,
		Periods: []Period{},
		Sound:   DefaultSoundSlots(),
	}
}

// Clone returns a deep copy.
func (s ScheduleProfile) Clone() ScheduleProfile {
	cp := s
	cp.Periods = append([]Period(nil), s.Periods...)
	return cp
}

// SortPeriods orders periods lexicographically by their time string.
// Equal times keep their relative order.
func (s *ScheduleProfile) SortPeriods() {
	sort.SliceStable(s.Periods, func(i, j int) bool {
		return s.Periods[i].Time < s.Periods[j].Time
	})
}

// NextPeriod returns the enabled period with the smallest time strictly after now.
// ok is false once the last period of the day has passed.
func (s ScheduleProfile) NextPeriod(now Clock) (next Period, ok bool) {
	var best Clock
	for _, p := range s.Periods {
		if !p.Enabled {
			continue
		}
		c, valid := p.Clock()
		if !valid || c <= now {
			continue
		}
		if !ok || c < best {
			next, best, ok = p, c, true
		}
	}
	return next, ok
}

// CurrentStatus returns the name of the latest enabled period at or before now,
// or StandbyStatus if none has been reached yet today.
func (s ScheduleProfile) CurrentStatus(now Clock) string {
	var (
		best  Clock
		name  string
		found bool
	)
	for _, p := range s.Periods {
		if !p.Enabled {
			continue
		}
		c, valid := p.Clock()
		if !valid || c > now {
			continue
		}
		if !found || c >= best {
			best, name, found = c, p.Name, true
		}
	}
	if !found {
		return StandbyStatus
	}
	return name
}

// FirstMatch returns the first period in sequence order that matches now.
func (s ScheduleProfile) FirstMatch(now Clock) (Period, bool) {
	for _, p := range s.Periods {
		if p.MatchesNow(now) {
			return p, true
		}
	}
	return Period{}, false
}

func (s *ScheduleProfile) Rename(name string) {
	s.Name = strings.TrimSpace(name)
}

// AddPeriod appends a period after normalizing its time and re-sorts.
func (s *ScheduleProfile) AddPeriod(input string, kind PeriodKind, name string) error {
	t, ok := NormalizeTime(input)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTime, input)
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown period kind %q", kind)
	}
	s.Periods = append(s.Periods, NewPeriod(t, kind, strings.TrimSpace(name)))
	s.SortPeriods()
	return nil
}

// SetPeriodTime edits the time of period i. Invalid input is rejected and the
// period keeps its previous time.
func (s *ScheduleProfile) SetPeriodTime(i int, input string) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	t, ok := NormalizeTime(input)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTime, input)
	}
	s.Periods[i].Time = t
	s.SortPeriods()
	return nil
}

func (s *ScheduleProfile) SetPeriodEnabled(i int, enabled bool) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.Periods[i].Enabled = enabled
	return nil
}

func (s *ScheduleProfile) RenamePeriod(i int, name string) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.Periods[i].Name = strings.TrimSpace(name)
	return nil
}

func (s *ScheduleProfile) RemovePeriod(i int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.Periods = append(s.Periods[:i], s.Periods[i+1:]...)
	s.SortPeriods()
	return nil
}

func (s *ScheduleProfile) checkIndex(i int) error {
	if i < 0 || i >= len(s.Periods) {
		return fmt.Errorf("%w: %d (have %d)", ErrPeriodIndex, i, len(s.Periods))
	}
	return nil
}

// normalize canonicalizes parsable period times, repairs kinds and sounds, and sorts.
// Unparsable times are left untouched; they simply never match.
func (s *ScheduleProfile) normalize() {
	if s.Periods == nil {
		s.Periods = []Period{}
	}
	for i := range s.Periods {
		if t, ok := NormalizeTime(s.Periods[i].Time); ok {
			s.Periods[i].Time = t
		}
		if !s.Periods[i].Kind.Valid() {
			s.Periods[i].Kind = KindStart
		}
	}
	s.Sound.repair()
	s.SortPeriods()
}
