package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Deltas are per-metric differences between two snapshots.
type Deltas struct {
	LifetimeHours    float64 // seconds difference / 3600, 2 decimals
	KnownLemmas      int64
	KnownInflections int64
	KnownLexemes     int64
	CardsStudied     int64
	Reviews          int64
	RetentionPoints  float64 // percentage points, 2 decimals
	MangaChars       int64
	GSMChars         int64
	ArticleChars     int64
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Compute returns current - previous. A nil previous compares current against
// itself and yields zero deltas.
func Compute(current Values, previous *Values) Deltas {
	prev := current
	if previous != nil {
		prev = *previous
	}
	return Deltas{
		LifetimeHours:    round2(float64(current.LifetimeSeconds-prev.LifetimeSeconds) / 3600),
		KnownLemmas:      current.KnownLemmas - prev.KnownLemmas,
		KnownInflections: current.KnownInflections - prev.KnownInflections,
		KnownLexemes:     current.KnownLexemes - prev.KnownLexemes,
		CardsStudied:     current.CardsStudied - prev.CardsStudied,
		Reviews:          current.Reviews - prev.Reviews,
		RetentionPoints:  round2(current.TrueRetention*100 - prev.TrueRetention*100),
		MangaChars:       current.MangaChars - prev.MangaChars,
		GSMChars:         current.GSMChars - prev.GSMChars,
		ArticleChars:     current.ArticleChars - prev.ArticleChars,
	}
}

// DeltasAgainstPrevious compares current with the latest snapshot, or with
// the latest one older than excludeRunID when a snapshot is being
// overwritten. The snapshot compared against is returned, nil when none.
func (l *Ledger) DeltasAgainstPrevious(ctx context.Context, current Values, excludeRunID *int64) (Deltas, *Snapshot, error) {
	var prev *Snapshot
	var err error
	if excludeRunID != nil {
		prev, err = l.Previous(ctx, *excludeRunID)
	} else {
		prev, err = l.Latest(ctx)
	}
	if err != nil {
		return Deltas{}, nil, err
	}
	if prev == nil {
		return Compute(current, nil), nil, nil
	}
	return Compute(current, &prev.Values), prev, nil
}

// ErrAlreadyGenerated marks a refused same-day run.
var ErrAlreadyGenerated = errors.New("report already generated")

// AlreadyGenerated describes the existing snapshot of a refused run.
type AlreadyGenerated struct {
	Status      string `json:"status"`
	RunID       int64  `json:"report_no"`
	GeneratedAt string `json:"generated_at"`
	ReportDay   string `json:"report_day"`
}

func (e *AlreadyGenerated) Error() string {
	return fmt.Sprintf("report %d already generated for %s at %s", e.RunID, e.ReportDay, e.GeneratedAt)
}

func (e *AlreadyGenerated) Is(target error) bool { return target == ErrAlreadyGenerated }

// Mode selects how a run treats a day that already has a snapshot.
type Mode struct {
	AllowSameDay   bool
	OverwriteToday bool
}

// Guard returns the latest snapshot of day. It fails with *AlreadyGenerated
// when that snapshot exists and mode permits neither a duplicate nor an
// overwrite.
func (l *Ledger) Guard(ctx context.Context, day string, mode Mode) (*Snapshot, error) {
	existing, err := l.LatestForDay(ctx, day)
	if err != nil {
		return nil, err
	}
	if existing != nil && !mode.AllowSameDay && !mode.OverwriteToday {
		return existing, &AlreadyGenerated{
			Status:      "already_generated",
			RunID:       existing.RunID,
			GeneratedAt: existing.GeneratedAt,
			ReportDay:   day,
		}
	}
	return existing, nil
}
