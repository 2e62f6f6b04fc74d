package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Days is a weekday bitmask: Sunday=1, Monday=2 ... Saturday=64.
type Days uint8

const (
	Sunday Days = 1 << iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

const (
	NoDays   Days = 0
	Weekdays      = Monday | Tuesday | Wednesday | Thursday | Friday
	Weekends      = Saturday | Sunday
	AllDays       = Weekdays | Weekends
)

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Bit returns the mask bit for a weekday.
func Bit(d time.Weekday) Days {
	return 1 << uint(d)
}

// Toggle flips one day.
func (d Days) Toggle(day time.Weekday) Days {
	return d ^ Bit(day)
}

// Has reports whether day is selected.
func (d Days) Has(day time.Weekday) bool {
	return d&Bit(day) != 0
}

// Valid reports whether only the seven day bits are used.
func (d Days) Valid() bool {
	return d&^AllDays == 0
}

// Weekdays lists the selected days, Sunday first.
func (d Days) Weekdays() []time.Weekday {
	var out []time.Weekday
	for w := time.Sunday; w <= time.Saturday; w++ {
		if d.Has(w) {
			out = append(out, w)
		}
	}
	return out
}

// FromWeekdays builds a mask from a list of days.
func FromWeekdays(days ...time.Weekday) Days {
	var d Days
	for _, w := range days {
		d |= Bit(w)
	}
	return d
}

func (d Days) String() string {
	switch d {
	case NoDays:
		return "none"
	case AllDays:
		return "daily"
	case Weekdays:
		return "weekdays"
	case Weekends:
		return "weekends"
	}
	var names []string
	for _, w := range d.Weekdays() {
		names = append(names, dayNames[w])
	}
	return strings.Join(names, ",")
}

// ParseDays reads a comma separated list of day names ("mon,wed"), one of
// the words daily, weekdays, weekends or none, or a raw mask number.
func ParseDays(s string) (Days, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none":
		return NoDays, nil
	case "daily", "all", "every":
		return AllDays, nil
	case "weekdays":
		return Weekdays, nil
	case "weekends":
		return Weekends, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		d := Days(n)
		if n < 0 || n > int(AllDays) {
			return 0, fmt.Errorf("day mask %d out of range 0-%d", n, AllDays)
		}
		return d, nil
	}

	var d Days
	for _, part := range strings.Split(s, ",") {
		w, ok := weekdayByName(strings.TrimSpace(part))
		if !ok {
			return 0, fmt.Errorf("unknown day %q", part)
		}
		d |= Bit(w)
	}
	return d, nil
}

func weekdayByName(s string) (time.Weekday, bool) {
	if len(s) < 3 {
		return 0, false
	}
	for i, n := range dayNames {
		if strings.HasPrefix(s, strings.ToLower(n)) {
			return time.Weekday(i), true
		}
	}
	return 0, false
}
