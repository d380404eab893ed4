package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
	Yearly
)

var freqNames = map[Freq]string{
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
	Yearly:  "YEARLY",
}

var freqFromName = map[string]Freq{
	"DAILY":   Daily,
	"WEEKLY":  Weekly,
	"MONTHLY": Monthly,
	"YEARLY":  Yearly,
}

// Rule is the subset of an RFC 5545 RRULE used for maintenance intervals.
type Rule struct {
	Freq       Freq
	Interval   int        // default 1; 3 with Monthly = quarterly
	ByMonthDay int        // for MONTHLY: day of month (0 = same as the previous due date)
	Until      *time.Time // no occurrences after this instant (nil = no limit)
}

var ErrEmptyRule = errors.New("empty rule")

// Parse parses an RRULE string like "FREQ=MONTHLY;INTERVAL=3". A leading
// "RRULE:" prefix is accepted.
func Parse(rule string) (Rule, error) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	if rule == "" {
		return Rule{}, ErrEmptyRule
	}

	r := Rule{Interval: 1}
	var hasFreq bool

	for _, part := range strings.Split(rule, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key, val := strings.ToUpper(strings.TrimSpace(kv[0])), strings.TrimSpace(kv[1])

		switch key {
		case "FREQ":
			f, ok := freqFromName[strings.ToUpper(val)]
			if !ok {
				return Rule{}, fmt.Errorf("unknown frequency: %q", val)
			}
			r.Freq = f
			hasFreq = true

		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid interval: %q", val)
			}
			r.Interval = n

		case "BYMONTHDAY":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 || n > 31 {
				return Rule{}, fmt.Errorf("invalid BYMONTHDAY: %q", val)
			}
			r.ByMonthDay = n

		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", val)
			if err != nil {
				t, err = time.Parse("20060102", val)
				if err != nil {
					return Rule{}, fmt.Errorf("invalid UNTIL: %q", val)
				}
			}
			r.Until = &t

		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	if r.ByMonthDay > 0 && r.Freq != Monthly {
		return Rule{}, fmt.Errorf("BYMONTHDAY requires FREQ=MONTHLY")
	}

	return r, nil
}

// String serializes the rule back to an RRULE string.
func (r Rule) String() string {
	parts := []string{"FREQ=" + freqNames[r.Freq]}

	if r.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", r.Interval))
	}
	if r.ByMonthDay > 0 {
		parts = append(parts, fmt.Sprintf("BYMONTHDAY=%d", r.ByMonthDay))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
	}

	return strings.Join(parts, ";")
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	switch r.Freq {
	case Daily:
		if r.Interval > 1 {
			return fmt.Sprintf("Every %d days", r.Interval)
		}
		return "Daily"
	case Weekly:
		if r.Interval > 1 {
			return fmt.Sprintf("Every %d weeks", r.Interval)
		}
		return "Weekly"
	case Monthly:
		var desc string
		switch r.Interval {
		case 1:
			desc = "Monthly"
		case 3:
			desc = "Quarterly"
		case 6:
			desc = "Twice a year"
		default:
			desc = fmt.Sprintf("Every %d months", r.Interval)
		}
		if r.ByMonthDay > 0 {
			desc += fmt.Sprintf(" on day %d", r.ByMonthDay)
		}
		return desc
	case Yearly:
		if r.Interval > 1 {
			return fmt.Sprintf("Every %d years", r.Interval)
		}
		return "Yearly"
	}
	return ""
}

// Next returns the occurrence that follows prev, keeping prev's wall-clock
// time and location. Month and year steps clamp to the last day of a short
// month. The zero time is returned once the rule's UNTIL has passed.
func (r Rule) Next(prev time.Time) time.Time {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}

	var next time.Time
	switch r.Freq {
	case Daily:
		next = prev.AddDate(0, 0, interval)
	case Weekly:
		next = prev.AddDate(0, 0, 7*interval)
	case Monthly:
		day := r.ByMonthDay
		if day == 0 {
			day = prev.Day()
		}
		next = addMonthsClamped(prev, interval, day)
	case Yearly:
		next = addMonthsClamped(prev, 12*interval, prev.Day())
	default:
		return time.Time{}
	}

	if r.Until != nil && next.After(*r.Until) {
		return time.Time{}
	}
	return next
}

// addMonthsClamped moves t forward n months and sets the day, clamped to the
// length of the target month.
func addMonthsClamped(t time.Time, n, day int) time.Time {
	year, month, _ := t.Date()
	// Normalize from the first of the month so AddDate cannot overflow.
	first := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, n, 0)

	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
