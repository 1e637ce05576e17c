package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGeneratedLabel(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 10, 19, 9, 5, 0, 0, time.UTC), "October 19th 2026 at 09:05"},
		{time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC), "January 1st 2026 at 23:59"},
		{time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "March 2nd 2026 at 00:00"},
		{time.Date(2026, 5, 23, 12, 30, 0, 0, time.UTC), "May 23rd 2026 at 12:30"},
		{time.Date(2026, 7, 11, 8, 0, 0, 0, time.UTC), "July 11th 2026 at 08:00"},
		{time.Date(2026, 7, 12, 8, 0, 0, 0, time.UTC), "July 12th 2026 at 08:00"},
		{time.Date(2026, 7, 13, 8, 0, 0, 0, time.UTC), "July 13th 2026 at 08:00"},
		{time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC), "August 31st 2026 at 08:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GeneratedLabel(tt.at))
	}
}

func TestImmersionWindowsFirstRun(t *testing.T) {
	today := time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC)
	log, avg, delta := ImmersionWindows("", today, 5400, nil, AvgWindowDays)

	assert.Equal(t, []LogCell{{Label: "Jun 3", Hours: 1.5}}, log)
	assert.Equal(t, int64(5400), avg)
	assert.Zero(t, delta)
}

func TestImmersionWindowsTodayOverridesCache(t *testing.T) {
	today := time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC)
	byDay := map[string]int64{"2024-06-01": 3600, "2024-06-03": 60}

	log, avg, _ := ImmersionWindows("2024-06-01", today, 7200, byDay, AvgWindowDays)
	assert.Equal(t, []LogCell{
		{Label: "Jun 1", Hours: 1},
		{Label: "Jun 2", Hours: 0},
		{Label: "Jun 3", Hours: 2},
	}, log)
	// Zero days are left out of the average.
	assert.Equal(t, int64(5400), avg)
}

func TestImmersionWindowsAverageDelta(t *testing.T) {
	today := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	byDay := map[string]int64{
		// previous window: Jun 1..Jun 7
		"2024-06-01": 1000,
		"2024-06-05": 2001,
		// recent window: Jun 8..Jun 14
		"2024-06-08": 3000,
		"2024-06-10": 4000,
	}

	log, avg, delta := ImmersionWindows("2024-06-01", today, 5000, byDay, AvgWindowDays)
	assert.Len(t, log, 14)
	assert.Equal(t, int64(4000), avg)
	assert.Equal(t, int64(4000-1500), delta)
}

func TestImmersionWindowsBadFirstDay(t *testing.T) {
	log, avg, delta := ImmersionWindows("not a day", time.Now(), 100, nil, AvgWindowDays)
	assert.Empty(t, log)
	assert.Zero(t, avg)
	assert.Zero(t, delta)
}
