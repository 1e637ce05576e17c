// Package ledger keeps the append-mostly history of report snapshots and
// computes the deltas a report shows against the previous one.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Values are the absolute metrics of one snapshot.
type Values struct {
	GeneratedAt   string `db:"generated_at"`
	ReportDay     string `db:"report_day"`
	Timezone      string `db:"timezone"`
	Theme         string `db:"theme"`
	WarningsJSON  string `db:"warnings_json"`
	BreakdownJSON string `db:"toggl_today_breakdown_json"`

	LifetimeSeconds  int64   `db:"toggl_lifetime_seconds"`
	TodaySeconds     int64   `db:"toggl_today_seconds"`
	KnownLemmas      int64   `db:"known_lemmas"`
	KnownInflections int64   `db:"known_inflections"`
	KnownLexemes     int64   `db:"known_lexemes"`
	CardsStudied     int64   `db:"anki_total_reviews"`
	Reviews          int64   `db:"anki_reviews"`
	TrueRetention    float64 `db:"anki_true_retention"` // fraction
	MangaChars       int64   `db:"manga_chars_total"`
	GSMChars         int64   `db:"gsm_chars_total"`
	ArticleChars     int64   `db:"article_chars_total"`
}

// Snapshot is a stored row.
type Snapshot struct {
	RunID int64 `db:"run_id"`
	Values
}

const snapshotColumns = `run_id, generated_at, report_day, timezone, theme, warnings_json,
	toggl_today_breakdown_json, toggl_lifetime_seconds, toggl_today_seconds,
	known_lemmas, known_inflections, known_lexemes, anki_total_reviews, anki_reviews,
	anki_true_retention, manga_chars_total, gsm_chars_total, article_chars_total`

// Ledger reads and writes the snapshots table.
type Ledger struct {
	db *sqlx.DB
}

// New returns a Ledger over a migrated cache database.
func New(conn *sql.DB) *Ledger {
	return &Ledger{db: sqlx.NewDb(conn, "sqlite3")}
}

func (l *Ledger) getOne(ctx context.Context, query string, args ...any) (*Snapshot, error) {
	var s Snapshot
	err := l.db.GetContext(ctx, &s, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Latest returns the most recent snapshot, nil when there is none.
func (l *Ledger) Latest(ctx context.Context) (*Snapshot, error) {
	s, err := l.getOne(ctx, `SELECT `+snapshotColumns+` FROM snapshots ORDER BY run_id DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return s, nil
}

// LatestForDay returns the most recent snapshot of report day, nil when there is none.
func (l *Ledger) LatestForDay(ctx context.Context, day string) (*Snapshot, error) {
	s, err := l.getOne(ctx, `SELECT `+snapshotColumns+` FROM snapshots
		WHERE report_day = ? ORDER BY run_id DESC LIMIT 1`, day)
	if err != nil {
		return nil, fmt.Errorf("snapshot for %s: %w", day, err)
	}
	return s, nil
}

// Previous returns the most recent snapshot older than runID.
func (l *Ledger) Previous(ctx context.Context, runID int64) (*Snapshot, error) {
	s, err := l.getOne(ctx, `SELECT `+snapshotColumns+` FROM snapshots
		WHERE run_id < ? ORDER BY run_id DESC LIMIT 1`, runID)
	if err != nil {
		return nil, fmt.Errorf("snapshot before %d: %w", runID, err)
	}
	return s, nil
}

// Append inserts v and returns its run id.
func (l *Ledger) Append(ctx context.Context, v Values) (int64, error) {
	res, err := l.db.NamedExecContext(ctx, `INSERT INTO snapshots (
		generated_at, report_day, timezone, theme, warnings_json, toggl_today_breakdown_json,
		toggl_lifetime_seconds, toggl_today_seconds, known_lemmas, known_inflections, known_lexemes,
		anki_total_reviews, anki_reviews, anki_true_retention,
		manga_chars_total, gsm_chars_total, article_chars_total
	) VALUES (
		:generated_at, :report_day, :timezone, :theme, :warnings_json, :toggl_today_breakdown_json,
		:toggl_lifetime_seconds, :toggl_today_seconds, :known_lemmas, :known_inflections, :known_lexemes,
		:anki_total_reviews, :anki_reviews, :anki_true_retention,
		:manga_chars_total, :gsm_chars_total, :article_chars_total
	)`, v)
	if err != nil {
		return 0, fmt.Errorf("append snapshot: %w", err)
	}
	return res.LastInsertId()
}

// Overwrite replaces the values of an existing snapshot in place.
func (l *Ledger) Overwrite(ctx context.Context, runID int64, v Values) error {
	res, err := l.db.NamedExecContext(ctx, `UPDATE snapshots SET
		generated_at = :generated_at,
		report_day = :report_day,
		timezone = :timezone,
		theme = :theme,
		warnings_json = :warnings_json,
		toggl_today_breakdown_json = :toggl_today_breakdown_json,
		toggl_lifetime_seconds = :toggl_lifetime_seconds,
		toggl_today_seconds = :toggl_today_seconds,
		known_lemmas = :known_lemmas,
		known_inflections = :known_inflections,
		known_lexemes = :known_lexemes,
		anki_total_reviews = :anki_total_reviews,
		anki_reviews = :anki_reviews,
		anki_true_retention = :anki_true_retention,
		manga_chars_total = :manga_chars_total,
		gsm_chars_total = :gsm_chars_total,
		article_chars_total = :article_chars_total
		WHERE run_id = :run_id`, Snapshot{RunID: runID, Values: v})
	if err != nil {
		return fmt.Errorf("overwrite snapshot %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("overwrite snapshot %d: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// FirstReportDay returns the earliest report day, "" when there are no snapshots.
func (l *Ledger) FirstReportDay(ctx context.Context) (string, error) {
	return l.reportDay(ctx, `SELECT MIN(report_day) FROM snapshots`)
}

// MaxReportDay returns the latest report day, "" when there are no snapshots.
func (l *Ledger) MaxReportDay(ctx context.Context) (string, error) {
	return l.reportDay(ctx, `SELECT MAX(report_day) FROM snapshots`)
}

func (l *Ledger) reportDay(ctx context.Context, query string) (string, error) {
	var day sql.NullString
	if err := l.db.GetContext(ctx, &day, query); err != nil {
		return "", fmt.Errorf("read report day: %w", err)
	}
	return day.String, nil
}
