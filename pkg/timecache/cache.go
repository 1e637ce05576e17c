package timecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nekopy/Tokei/pkg/db"
)

// AutoStart as the configured start date tracks only from the first run on;
// everything before is covered by the baseline offset.
const AutoStart = "auto"

// Sync metadata keys.
const (
	MetaTimezone        = "timezone"
	MetaStartDate       = "toggl_start_date"
	MetaBaselineSeconds = "toggl_baseline_seconds"
	MetaLastReportDay   = "last_report_day"
	MetaAPIMinStartDate = "toggl_api_min_start_date"
	MetaBaselineThrough = "toggl_baseline_through_day"
	MetaCacheStartDay   = "toggl_cache_start_day"
)

// Settings configures the cache.
type Settings struct {
	Timezone          string // configured name, compared against stored metadata
	Location          *time.Location
	StartDate         string // YYYY-MM-DD or AutoStart
	BaselineSeconds   int64
	RefreshDaysBack   int
	RefreshBufferDays int
	ChunkDays         int
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s Settings) auto() bool {
	return s.StartDate == "" || s.StartDate == AutoStart
}

// RefreshResult describes what a refresh fetched.
type RefreshResult struct {
	Start       string // first day re-fetched
	End         string // today
	Chunks      int
	Days        int
	Floor       string // API floor discovered during this refresh, if any
	Invalidated bool
}

// Cache mirrors Toggl daily totals in the cache database.
type Cache struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New returns a Cache over a migrated cache database.
func New(conn *sql.DB, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		db:     sqlx.NewDb(conn, "sqlite3"),
		logger: logger.With("component", "timecache"),
	}
}

// Refresh re-fetches the adaptive window of recent days ending today.
// Every write happens in one transaction; any error other than a recovered
// API floor rolls the whole refresh back.
func (c *Cache) Refresh(ctx context.Context, f EntryFetcher, s Settings, now time.Time) (RefreshResult, error) {
	var res RefreshResult

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin refresh: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	res, err = c.refresh(ctx, tx, f, s, now)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit refresh: %w", err)
	}

	c.logger.Info("time cache refreshed",
		"start", res.Start,
		"end", res.End,
		"days", res.Days,
		"chunks", res.Chunks,
	)
	return res, nil
}

func (c *Cache) refresh(ctx context.Context, tx *sqlx.Tx, f EntryFetcher, s Settings, now time.Time) (RefreshResult, error) {
	var res RefreshResult
	loc := s.location()
	today := midnight(now, loc)
	res.End = db.Day(today)

	invalidated, err := c.invalidate(ctx, tx, s)
	if err != nil {
		return res, err
	}
	res.Invalidated = invalidated

	for k, v := range map[string]string{
		MetaTimezone:        s.Timezone,
		MetaStartDate:       startDateMeta(s),
		MetaBaselineSeconds: strconv.FormatInt(s.BaselineSeconds, 10),
	} {
		if err := db.SetMeta(ctx, tx, k, v); err != nil {
			return res, err
		}
	}

	start, err := c.refreshStart(ctx, tx, s, today)
	if err != nil {
		return res, err
	}
	res.Start = db.Day(start)

	chunk := s.ChunkDays
	if chunk < 1 {
		chunk = 1
	}
	tomorrow := today.AddDate(0, 0, 1)
	updatedAt := now.In(loc).Format(time.RFC3339)

	cursor := start
	for !cursor.After(today) {
		chunkEnd := cursor.AddDate(0, 0, chunk)
		if chunkEnd.After(tomorrow) {
			chunkEnd = tomorrow
		}

		entries, err := f.TimeEntries(ctx, cursor, chunkEnd)
		var floorErr *MinStartDateError
		if errors.As(err, &floorErr) {
			floor, perr := parseDay(floorErr.Day, loc)
			if perr != nil || !floor.After(cursor) {
				return res, &APIError{Err: fmt.Errorf("api floor %s does not advance past %s: %w", floorErr.Day, db.Day(cursor), err)}
			}
			if err := db.SetMeta(ctx, tx, MetaAPIMinStartDate, floorErr.Day); err != nil {
				return res, err
			}
			c.logger.Warn("toggl api floor reached, skipping ahead",
				"requested", db.Day(cursor),
				"floor", floorErr.Day,
			)
			res.Floor = floorErr.Day
			res.Start = floorErr.Day
			cursor = floor
			continue
		}
		if err != nil {
			return res, fmt.Errorf("fetch %s..%s: %w", db.Day(cursor), db.Day(chunkEnd), err)
		}

		totals, breakdown := Summarize(entries, loc)
		for d := cursor; d.Before(chunkEnd); d = d.AddDate(0, 0, 1) {
			day := db.Day(d)
			if err := replaceDay(ctx, tx, day, totals[day], breakdown[day], updatedAt); err != nil {
				return res, err
			}
			res.Days++
		}
		res.Chunks++
		c.logger.Debug("cached chunk",
			"start", db.Day(cursor),
			"end", db.Day(chunkEnd),
			"entries", len(entries),
		)
		cursor = chunkEnd
	}

	if err := db.SetMeta(ctx, tx, MetaLastReportDay, res.End); err != nil {
		return res, err
	}
	return res, nil
}

func startDateMeta(s Settings) string {
	if s.auto() {
		return AutoStart
	}
	return s.StartDate
}

// invalidate clears the day cache when the timezone or start date changed,
// since every stored day boundary is then wrong.
func (c *Cache) invalidate(ctx context.Context, tx db.Executor, s Settings) (bool, error) {
	storedTZ, _, err := db.GetMeta(ctx, tx, MetaTimezone)
	if err != nil {
		return false, err
	}
	storedStart, _, err := db.GetMeta(ctx, tx, MetaStartDate)
	if err != nil {
		return false, err
	}
	tzChanged := storedTZ != "" && storedTZ != s.Timezone
	startChanged := storedStart != "" && storedStart != startDateMeta(s)
	if !tzChanged && !startChanged {
		return false, nil
	}

	c.logger.Info("time cache invalidated",
		"stored_timezone", storedTZ,
		"timezone", s.Timezone,
		"stored_start", storedStart,
		"start", startDateMeta(s),
	)
	for _, q := range []string{`DELETE FROM toggl_daily_desc`, `DELETE FROM toggl_daily`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return false, fmt.Errorf("reset day cache: %w", err)
		}
	}
	if err := db.DeleteMeta(ctx, tx, MetaAPIMinStartDate, MetaBaselineThrough, MetaCacheStartDay); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) refreshStart(ctx context.Context, tx *sqlx.Tx, s Settings, today time.Time) (time.Time, error) {
	loc := s.location()

	var maxDay sql.NullString
	if err := tx.GetContext(ctx, &maxDay, `SELECT MAX(day) FROM toggl_daily`); err != nil {
		return time.Time{}, fmt.Errorf("read cached days: %w", err)
	}

	var configured time.Time
	if !s.auto() {
		d, err := parseDay(s.StartDate, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("start date %q: %w", s.StartDate, err)
		}
		configured = d
	}

	start := configured
	switch {
	case !maxDay.Valid && s.auto():
		through, ok, err := db.GetMeta(ctx, tx, MetaBaselineThrough)
		if err != nil {
			return time.Time{}, err
		}
		if !ok || through == "" {
			if err := db.SetMeta(ctx, tx, MetaBaselineThrough, db.Day(today.AddDate(0, 0, -1))); err != nil {
				return time.Time{}, err
			}
			if err := db.SetMeta(ctx, tx, MetaCacheStartDay, db.Day(today)); err != nil {
				return time.Time{}, err
			}
		}
		start = today
	case maxDay.Valid:
		gap, err := c.gapSinceLastReport(ctx, tx, today, loc)
		if err != nil {
			return time.Time{}, err
		}
		days := WindowDays(gap, s.RefreshBufferDays, s.RefreshDaysBack)
		window := today.AddDate(0, 0, -(days - 1))
		if window.After(start) {
			start = window
		}
	}

	floorRaw, _, err := db.GetMeta(ctx, tx, MetaAPIMinStartDate)
	if err != nil {
		return time.Time{}, err
	}
	if floorRaw != "" {
		if floor, err := parseDay(floorRaw, loc); err == nil && floor.After(start) {
			start = floor
		}
	}
	return start, nil
}

func (c *Cache) gapSinceLastReport(ctx context.Context, tx *sqlx.Tx, today time.Time, loc *time.Location) (*int, error) {
	last, _, err := db.GetMeta(ctx, tx, MetaLastReportDay)
	if err != nil {
		return nil, err
	}
	if last == "" {
		var maxReport sql.NullString
		if err := tx.GetContext(ctx, &maxReport, `SELECT MAX(report_day) FROM snapshots`); err != nil {
			return nil, fmt.Errorf("read last report day: %w", err)
		}
		last = maxReport.String
	}
	if last == "" {
		return nil, nil
	}
	d, err := parseDay(last, loc)
	if err != nil {
		return nil, nil
	}
	gap := daysBetween(d, today)
	return &gap, nil
}

func replaceDay(ctx context.Context, tx db.Executor, day string, total int64, breakdown map[string]int64, updatedAt string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO toggl_daily (day, total_seconds, updated_at) VALUES (?, ?, ?)`,
		day, total, updatedAt); err != nil {
		return fmt.Errorf("store day %s: %w", day, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM toggl_daily_desc WHERE day = ?`, day); err != nil {
		return fmt.Errorf("clear breakdown %s: %w", day, err)
	}
	for desc, seconds := range breakdown {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO toggl_daily_desc (day, description, seconds) VALUES (?, ?, ?)`,
			day, desc, seconds); err != nil {
			return fmt.Errorf("store breakdown %s: %w", day, err)
		}
	}
	return nil
}

// LifetimeSeconds sums cached days from the effective start through today and
// adds the baseline offset. With AutoStart the effective start is the first
// cached day.
func (c *Cache) LifetimeSeconds(ctx context.Context, s Settings, today string) (int64, error) {
	from := s.StartDate
	if s.auto() {
		v, _, err := db.GetMeta(ctx, c.db, MetaCacheStartDay)
		if err != nil {
			return 0, err
		}
		from = v
	}
	var sum int64
	if err := c.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(total_seconds), 0) FROM toggl_daily WHERE day >= ? AND day <= ?`,
		from, today); err != nil {
		return 0, fmt.Errorf("sum lifetime: %w", err)
	}
	return sum + s.BaselineSeconds, nil
}

// DaySeconds returns the cached total for day, 0 when absent.
func (c *Cache) DaySeconds(ctx context.Context, day string) (int64, error) {
	var total int64
	err := c.db.GetContext(ctx, &total, `SELECT total_seconds FROM toggl_daily WHERE day = ?`, day)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read day %s: %w", day, err)
	}
	return total, nil
}

// Breakdown returns day's per-description seconds, largest first.
func (c *Cache) Breakdown(ctx context.Context, day string) ([]DescSeconds, error) {
	out := []DescSeconds{}
	if err := c.db.SelectContext(ctx, &out,
		`SELECT description, seconds FROM toggl_daily_desc WHERE day = ? ORDER BY seconds DESC, description`,
		day); err != nil {
		return nil, fmt.Errorf("read breakdown %s: %w", day, err)
	}
	return out, nil
}

// SecondsBetween returns cached totals keyed by day for [from, to].
func (c *Cache) SecondsBetween(ctx context.Context, from, to string) (map[string]int64, error) {
	var rows []struct {
		Day     string `db:"day"`
		Seconds int64  `db:"total_seconds"`
	}
	if err := c.db.SelectContext(ctx, &rows,
		`SELECT day, total_seconds FROM toggl_daily WHERE day >= ? AND day <= ?`, from, to); err != nil {
		return nil, fmt.Errorf("read days %s..%s: %w", from, to, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Day] = r.Seconds
	}
	return out, nil
}
