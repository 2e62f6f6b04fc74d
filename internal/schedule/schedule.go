// Package schedule models the device's ten recurring watering slots, their
// wire encoding, and the client-side cache of them.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Slots is the fixed number of schedules the device holds.
const Slots = 10

// AutoIndex asks Registry.Save to pick the first free slot.
const AutoIndex = -1

// MaxDurationSeconds bounds a single run.
const MaxDurationSeconds = 24 * 60 * 60

// Schedule is one recurring run.
type Schedule struct {
	Index           int  `json:"index"`
	Hour            int  `json:"hour"`
	Minute          int  `json:"min"`
	DurationSeconds int  `json:"dur"`
	Days            Days `json:"dow"`
	Enabled         bool `json:"en"`
}

// Empty returns the cleared schedule for a slot.
func Empty(index int) Schedule {
	return Schedule{Index: index}
}

// Draft returns the defaults offered for a new schedule: 08:00 for a
// minute on weekdays.
func Draft(index int) Schedule {
	return Schedule{Index: index, Hour: 8, DurationSeconds: 60, Days: Weekdays, Enabled: true}
}

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Value int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schedule: invalid %s %d", e.Field, e.Value)
}

// Validate checks field ranges. An index of AutoIndex is accepted when
// allowAuto is set.
func (s Schedule) Validate(allowAuto bool) error {
	switch {
	case s.Index == AutoIndex && allowAuto:
	case s.Index < 0 || s.Index >= Slots:
		return &ValidationError{Field: "index", Value: s.Index}
	}
	if s.Hour < 0 || s.Hour > 23 {
		return &ValidationError{Field: "hour", Value: s.Hour}
	}
	if s.Minute < 0 || s.Minute > 59 {
		return &ValidationError{Field: "minute", Value: s.Minute}
	}
	if s.DurationSeconds < 0 || s.DurationSeconds > MaxDurationSeconds {
		return &ValidationError{Field: "duration", Value: s.DurationSeconds}
	}
	if !s.Days.Valid() {
		return &ValidationError{Field: "days", Value: int(s.Days)}
	}
	return nil
}

// Duration returns the run time.
func (s Schedule) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// Clock formats the start time on a 12-hour clock, e.g. "8:05 AM".
func (s Schedule) Clock() string {
	period := "AM"
	if s.Hour >= 12 {
		period = "PM"
	}
	h := s.Hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, s.Minute, period)
}

// Label is the one-line summary shown in lists. Slots are numbered from 1.
func (s Schedule) Label() string {
	return fmt.Sprintf("#%d: %s for %ds (%s)", s.Index+1, s.Clock(), s.DurationSeconds, s.Days)
}

// CronSpec returns the standard five-field cron expression for the start time.
func (s Schedule) CronSpec() string {
	days := make([]string, 0, 7)
	for _, w := range s.Days.Weekdays() {
		days = append(days, strconv.Itoa(int(w)))
	}
	return fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, strings.Join(days, ","))
}

// Next returns the next start strictly after t, in t's location. It reports
// false for disabled schedules and schedules with no days.
func (s Schedule) Next(t time.Time) (time.Time, bool) {
	if !s.Enabled || s.Days == NoDays {
		return time.Time{}, false
	}
	sched, err := cron.ParseStandard(s.CronSpec())
	if err != nil {
		return time.Time{}, false
	}
	next := sched.Next(t)
	return next, !next.IsZero()
}

// Upcoming returns the schedule that starts soonest after t.
func Upcoming(list []Schedule, t time.Time) (Schedule, time.Time, bool) {
	var best Schedule
	var at time.Time
	found := false
	for _, s := range list {
		n, ok := s.Next(t)
		if !ok {
			continue
		}
		if !found || n.Before(at) {
			best, at, found = s, n, true
		}
	}
	return best, at, found
}

// UnmarshalJSON accepts numbers or numeric strings for every field and
// booleans or 0/1 for the enabled flag. Long field names are accepted
// alongside the device's short ones.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Schedule
	fields := []struct {
		keys     []string
		dst      *int
		required bool
	}{
		{[]string{"index", "idx"}, &out.Index, true},
		{[]string{"hour"}, &out.Hour, false},
		{[]string{"min", "minute"}, &out.Minute, false},
		{[]string{"dur", "duration", "durationSeconds"}, &out.DurationSeconds, false},
	}
	for _, f := range fields {
		raw, ok := lookup(m, f.keys...)
		if !ok {
			if f.required {
				return fmt.Errorf("missing %s", f.keys[0])
			}
			continue
		}
		n, err := flexInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = n
	}
	if raw, ok := lookup(m, "dow", "days", "daysBitmask"); ok {
		n, err := flexInt(raw)
		if err != nil {
			return fmt.Errorf("dow: %w", err)
		}
		if n < 0 || n > 255 {
			return fmt.Errorf("dow %d out of range", n)
		}
		out.Days = Days(n)
	}
	if raw, ok := lookup(m, "en", "enabled"); ok {
		b, err := flexBool(raw)
		if err != nil {
			return fmt.Errorf("en: %w", err)
		}
		out.Enabled = b
	}
	*s = out
	return nil
}

func lookup(m map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func flexInt(raw json.RawMessage) (int, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("not an integer: %v", x)
		}
		return int(x), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	}
	return 0, fmt.Errorf("unexpected %T", v)
}

func flexBool(raw json.RawMessage) (bool, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, err
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case string:
		return parseFlag(x)
	}
	return false, fmt.Errorf("unexpected %T", v)
}

func parseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on":
		return true, nil
	case "0", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a flag: %q", s)
}
