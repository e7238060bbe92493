package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Each period becomes a 6-field daily cron spec ("S M H * * *").
var periodParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronSpec returns the daily cron spec of the period, or false if its time is malformed.
func (p Period) CronSpec() (string, bool) {
	c, ok := p.Clock()
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%d %d %d * * *", c.Second(), c.Minute(), c.Hour()), true
}

// NextFire returns the enabled period that fires next strictly after now and the
// absolute instant it fires, rolling over into tomorrow once today is done.
// Ties resolve to sequence order.
func (s ScheduleProfile) NextFire(now time.Time) (Period, time.Time, bool) {
	var (
		best   Period
		bestAt time.Time
		found  bool
	)
	for _, p := range s.Periods {
		if !p.Enabled {
			continue
		}
		spec, ok := p.CronSpec()
		if !ok {
			continue
		}
		sched, err := periodParser.Parse(spec)
		if err != nil {
			continue
		}
		at := sched.Next(now)
		if at.IsZero() {
			continue
		}
		if !found || at.Before(bestAt) {
			best, bestAt, found = p, at, true
		}
	}
	return best, bestAt, found
}
