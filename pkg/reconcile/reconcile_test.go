package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileRaisesLiveDays(t *testing.T) {
	res := Reconcile(1000,
		map[string]int64{"2024-06-01": 100, "2024-06-02": 300},
		map[string]int64{"2024-06-01": 140, "2024-06-02": 200, "2024-06-03": 50})

	assert.Equal(t, int64(1090), res.Total)
	assert.Equal(t, []DayDiff{
		{Day: "2024-06-01", Rollup: 100, Live: 140},
		{Day: "2024-06-03", Rollup: 0, Live: 50},
	}, res.Raised)
}

func TestReconcileEmptyOverlay(t *testing.T) {
	res := Reconcile(500, map[string]int64{"2024-06-01": 100}, nil)
	assert.Equal(t, int64(500), res.Total)
	assert.Empty(t, res.Raised)
}

func TestReconcileNeverBelowLifetime(t *testing.T) {
	dbByDay := map[string]int64{}
	liveByDay := map[string]int64{}
	for i, day := range []string{"2024-06-01", "2024-06-02", "2024-06-03", "2024-06-04"} {
		dbByDay[day] = int64(i * 70)
		liveByDay[day] = int64(150 - i*40)
		res := Reconcile(10_000, dbByDay, liveByDay)
		if res.Total < 10_000 {
			t.Fatalf("total %d below lifetime", res.Total)
		}
	}
}

func TestReconcileIsIdempotentOnCaughtUpRollup(t *testing.T) {
	live := map[string]int64{"2024-06-01": 140}
	first := Reconcile(100, map[string]int64{"2024-06-01": 100}, live)
	assert.Equal(t, int64(140), first.Total)

	// Once the rollup catches up the overlay adds nothing.
	caught := Reconcile(140, map[string]int64{"2024-06-01": 140}, live)
	assert.Equal(t, int64(140), caught.Total)
	assert.Empty(t, caught.Raised)
}

func TestDiagnostics(t *testing.T) {
	assert.Equal(t, "", Diagnostics(nil, 3))

	raised := []DayDiff{
		{Day: "2024-06-01", Rollup: 100, Live: 140},
		{Day: "2024-06-02", Rollup: 0, Live: 10},
		{Day: "2024-06-03", Rollup: 5, Live: 6},
	}
	msg := Diagnostics(raised, 2)
	assert.True(t, strings.HasPrefix(msg, "Live character counts ahead of rollup on 3 day(s)"))
	assert.Contains(t, msg, "2024-06-01 rollup=100 live=140")
	assert.NotContains(t, msg, "2024-06-03")
	assert.True(t, strings.HasSuffix(msg, "(+1 more)"))

	assert.NotContains(t, Diagnostics(raised, 5), "more")
}
