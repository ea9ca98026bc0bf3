package plan

import (
	"fmt"
	"time"

	"github.com/samber/mo"
)

// Config describes the daily execution window. Runs may only begin between
// DailyStart and DailyEnd inclusive, spaced IntervalHours apart.
type Config struct {
	DailyStart    ClockTime
	DailyEnd      ClockTime
	IntervalHours int
}

// ParseConfig builds a Config from the raw "HH:MM" strings carried in the
// configuration file.
func ParseConfig(dailyStart, dailyEnd string, intervalHours int) (Config, error) {
	start, err := ParseClockTime(dailyStart)
	if err != nil {
		return Config{}, fmt.Errorf("daily_start: %w", err)
	}
	end, err := ParseClockTime(dailyEnd)
	if err != nil {
		return Config{}, fmt.Errorf("daily_end: %w", err)
	}
	cfg := Config{DailyStart: start, DailyEnd: end, IntervalHours: intervalHours}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.IntervalHours < 1 {
		return fmt.Errorf("interval hours must be at least 1, got %d", c.IntervalHours)
	}
	if !c.DailyStart.Before(c.DailyEnd) {
		return fmt.Errorf("daily window inverted: start %s is not before end %s", c.DailyStart, c.DailyEnd)
	}
	return nil
}

// Window expands the config into the run points of the calendar day
// containing ref, ascending, in ref's location. The first point is always
// DailyStart; points step by IntervalHours and never pass DailyEnd, so a
// trailing remainder shorter than the interval is dropped rather than
// rounded up.
func Window(cfg Config, ref time.Time) []time.Time {
	start := cfg.DailyStart.On(ref)
	end := cfg.DailyEnd.On(ref)
	step := time.Duration(cfg.IntervalHours) * time.Hour

	var points []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		points = append(points, t)
	}
	return points
}

// NextRun returns the first window point strictly after now, computed
// against the calendar day containing now. Once every point of the day has
// elapsed it returns None; the caller re-plans when a new day begins.
func NextRun(cfg Config, now time.Time) mo.Option[time.Time] {
	for _, point := range Window(cfg, now) {
		if point.After(now) {
			return mo.Some(point)
		}
	}
	return mo.None[time.Time]()
}
