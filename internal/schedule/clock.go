package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTime = errors.New("invalid time of day")

// Clock is a wall-clock time of day with second precision (0 = 00:00:00).
type Clock int

func NewClock(h, m, s int) Clock { return Clock(h*3600 + m*60 + s) }

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) Clock {
	h, m, s := t.Clock()
	return NewClock(h, m, s)
}

func (c Clock) Hour() int   { return int(c) / 3600 }
func (c Clock) Minute() int { return int(c) % 3600 / 60 }
func (c Clock) Second() int { return int(c) % 60 }

// MinuteOfDay is hour*60 + minute; the engine's dedup granularity.
func (c Clock) MinuteOfDay() int { return int(c) / 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
}

// Until returns the duration from c to later within the same day (0 if later <= c).
func (c Clock) Until(later Clock) time.Duration {
	if later <= c {
		return 0
	}
	return time.Duration(later-c) * time.Second
}

// ParseClock accepts "H:M" or "H:M:S" with hour 0-23 and minute/second 0-59.
// Missing seconds default to 0. Surrounding whitespace is ignored.
func ParseClock(input string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(input), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, input)
	}

	limits := [3]int{23, 59, 59}
	var vals [3]int
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil || int(n) > limits[i] {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, input)
		}
		vals[i] = int(n)
	}
	return NewClock(vals[0], vals[1], vals[2]), nil
}

// NormalizeTime canonicalizes user input to zero-padded "HH:MM:SS".
// It returns false for malformed or out-of-range input; callers keep their
// previous value in that case.
func NormalizeTime(input string) (string, bool) {
	c, err := ParseClock(input)
	if err != nil {
		return "", false
	}
	return c.String(), true
}
