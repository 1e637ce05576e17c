package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nekopy/Tokei/pkg/db"
)

// ErrNoDayColumn is returned when no column of a table holds recognizable days.
var ErrNoDayColumn = errors.New("no day column found")

// DefaultRollupTable is the per-day rollup table of GameSentenceMiner.
const DefaultRollupTable = "daily_stats_rollup"

// diagnosticExamples caps the examples listed in a raised-days warning.
const diagnosticExamples = 5

var dayColumnHints = []string{"day", "date", "stat_date", "rollup_date", "timestamp", "ts", "created_at", "start"}

// Column is a detected day column.
type Column struct {
	Name     string
	Detector DayColumnDetector
}

// DetectDayColumn samples one non-null value per column, hinted names
// first, and returns the first column a detector recognizes.
func DetectDayColumn(ctx context.Context, q db.Executor, table string, detectors []DayColumnDetector) (Column, error) {
	if len(detectors) == 0 {
		detectors = DefaultDetectors
	}
	cols, err := tableColumns(ctx, q, table)
	if err != nil {
		return Column{}, err
	}

	for _, col := range orderByHints(cols) {
		var sample any
		err := q.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT %s FROM %s WHERE %s IS NOT NULL AND %s != '' LIMIT 1`,
			quoteIdent(col), quoteIdent(table), quoteIdent(col), quoteIdent(col))).Scan(&sample)
		if err != nil {
			continue
		}
		for _, d := range detectors {
			if d.Detect(col, sample) {
				return Column{Name: col, Detector: d}, nil
			}
		}
	}
	return Column{}, fmt.Errorf("%s: %w", table, ErrNoDayColumn)
}

func tableColumns(ctx context.Context, q db.Executor, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, nil
}

func orderByHints(cols []string) []string {
	out := make([]string, 0, len(cols))
	used := make(map[string]bool)
	for _, h := range dayColumnHints {
		for _, c := range cols {
			if !used[c] && strings.EqualFold(c, h) {
				out = append(out, c)
				used[c] = true
			}
		}
	}
	for _, c := range cols {
		if !used[c] {
			out = append(out, c)
		}
	}
	return out
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// RollupResult is the reconciled character total of a rollup database.
type RollupResult struct {
	Raw      int64 // rollup lifetime before reconciliation
	Total    int64
	Column   string
	Raised   []DayDiff
	Warnings []string
}

// RollupReader reads a per-day character rollup and reconciles it with a
// live overlay.
type RollupReader struct {
	Table     string
	Detectors []DayColumnDetector
	Location  *time.Location
	Logger    *slog.Logger
}

// Read opens the rollup database read-only (through a temporary copy when it
// is locked) and returns the corrected lifetime. Without a recognizable day
// column the raw lifetime is returned with a warning.
func (r RollupReader) Read(ctx context.Context, path string, liveByDay map[string]int64) (RollupResult, error) {
	var res RollupResult
	table := r.Table
	if table == "" {
		table = DefaultRollupTable
	}
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, cleanup, err := db.OpenReadOnly(ctx, path)
	if err != nil {
		return res, err
	}
	defer cleanup()

	where := `total_characters IS NOT NULL AND total_characters != ''`
	if err := conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(SUM(CAST(total_characters AS INTEGER)), 0) FROM %s WHERE %s`, quoteIdent(table), where)).
		Scan(&res.Raw); err != nil {
		return res, fmt.Errorf("sum rollup: %w", err)
	}
	res.Total = res.Raw
	if len(liveByDay) == 0 {
		return res, nil
	}

	col, err := DetectDayColumn(ctx, conn, table, r.Detectors)
	if errors.Is(err, ErrNoDayColumn) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Rollup %s has no recognizable day column; live overlay ignored.", table))
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Column = col.Name

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, CAST(total_characters AS INTEGER) FROM %s WHERE %s`, quoteIdent(col.Name), quoteIdent(table), where))
	if err != nil {
		return res, fmt.Errorf("read rollup days: %w", err)
	}
	defer rows.Close()

	dbByDay := make(map[string]int64)
	for rows.Next() {
		var raw any
		var chars int64
		if err := rows.Scan(&raw, &chars); err != nil {
			return res, err
		}
		day, ok := col.Detector.DayKey(raw, loc)
		if !ok {
			continue
		}
		if _, live := liveByDay[day]; live {
			dbByDay[day] += chars
		}
	}
	if err := rows.Err(); err != nil {
		return res, err
	}

	rec := Reconcile(res.Raw, dbByDay, liveByDay)
	res.Total = rec.Total
	res.Raised = rec.Raised
	if msg := Diagnostics(rec.Raised, diagnosticExamples); msg != "" {
		res.Warnings = append(res.Warnings, msg)
		logger.Warn("live overlay ahead of rollup", "days", len(rec.Raised), "added", res.Total-res.Raw)
	}
	return res, nil
}
