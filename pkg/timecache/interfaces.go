package timecache

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"
)

// EntryFetcher fetches time entries for a half-open datetime range.
type EntryFetcher interface {
	TimeEntries(ctx context.Context, start, end time.Time) ([]TimeEntry, error)
}
