package timecache

import (
	"strings"
	"time"
)

// Summarize buckets entries by the calendar day of their start in loc.
// Entries without a positive duration or a parseable start are ignored.
func Summarize(entries []TimeEntry, loc *time.Location) (map[string]int64, map[string]map[string]int64) {
	totals := make(map[string]int64)
	breakdown := make(map[string]map[string]int64)

	for _, e := range entries {
		seconds := e.Seconds()
		if seconds <= 0 {
			continue
		}
		if e.Start == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, e.Start)
		if err != nil {
			continue
		}
		day := start.In(loc).Format(time.DateOnly)

		desc := e.Description
		if strings.TrimSpace(desc) == "" {
			desc = NoDescription
		}

		totals[day] += seconds
		if breakdown[day] == nil {
			breakdown[day] = make(map[string]int64)
		}
		breakdown[day][desc] += seconds
	}
	return totals, breakdown
}

// WindowDays returns how many trailing days to re-fetch: enough to cover
// the gap since the last report plus buffer, within [1, max]. A nil gap
// means no report is known and the whole window is used.
func WindowDays(gap *int, buffer, max int) int {
	if max < 1 {
		max = 1
	}
	if gap == nil {
		return max
	}
	g := *gap
	if g < 0 {
		g = 0
	}
	if buffer < 0 {
		buffer = 0
	}
	days := g + buffer
	if days > max {
		days = max
	}
	if days < 1 {
		days = 1
	}
	return days
}

// midnight returns the start of t's calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func parseDay(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
