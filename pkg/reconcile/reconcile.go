// Package reconcile merges a periodic per-day rollup with a live overlay of
// the same counter without counting a day twice.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// DayDiff is a day on which the live overlay is ahead of the rollup.
type DayDiff struct {
	Day    string
	Rollup int64
	Live   int64
}

// Result is a reconciled lifetime total.
type Result struct {
	Total  int64
	Raised []DayDiff // ordered by day
}

// Reconcile corrects the rollup lifetime for the days covered by the live
// overlay: lifetime - sum(db[d]) + sum(max(db[d], live[d])). The result is
// never below lifetime.
func Reconcile(lifetime int64, dbByDay, liveByDay map[string]int64) Result {
	days := make([]string, 0, len(liveByDay))
	for d := range liveByDay {
		days = append(days, d)
	}
	sort.Strings(days)

	res := Result{Total: lifetime}
	for _, d := range days {
		rollup, live := dbByDay[d], liveByDay[d]
		if live > rollup {
			res.Total += live - rollup
			res.Raised = append(res.Raised, DayDiff{Day: d, Rollup: rollup, Live: live})
		}
	}
	return res
}

// Diagnostics describes raised days with at most limit examples.
func Diagnostics(raised []DayDiff, limit int) string {
	if len(raised) == 0 {
		return ""
	}
	if limit < 1 {
		limit = 1
	}
	shown := raised
	if len(shown) > limit {
		shown = shown[:limit]
	}
	parts := make([]string, 0, len(shown))
	for _, r := range shown {
		parts = append(parts, fmt.Sprintf("%s rollup=%d live=%d", r.Day, r.Rollup, r.Live))
	}
	msg := fmt.Sprintf("Live character counts ahead of rollup on %d day(s): %s", len(raised), strings.Join(parts, "; "))
	if extra := len(raised) - len(shown); extra > 0 {
		msg += fmt.Sprintf(" (+%d more)", extra)
	}
	return msg
}
