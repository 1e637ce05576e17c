package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one ordered, idempotent schema step.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

// Migrate applies every migration whose version is above the highest recorded
// in schema_version. Each step runs in its own transaction together with its
// version record.
func Migrate(ctx context.Context, conn *sql.DB, migrations []Migration) error {
	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := SchemaVersion(ctx, conn)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := WithTx(ctx, conn, func(tx *sql.Tx) error {
			if err := m.Up(ctx, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_version (version, name, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Name, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		current = m.Version
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, 0 when none.
func SchemaVersion(ctx context.Context, q Executor) (int, error) {
	var v sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// ColumnExists reports whether table has a column with the given name.
func ColumnExists(ctx context.Context, q Executor, table, column string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s.%s: %w", table, column, err)
	}
	return exists, nil
}

// AddColumnIfMissing runs ALTER TABLE ... ADD COLUMN only when the column is absent.
func AddColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	exists, err := ColumnExists(ctx, tx, table, column)
	if err != nil || exists {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func execAll(stmts ...string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}
}

// WordsMigrations builds the lexeme/lemma store.
var WordsMigrations = []Migration{
	{
		Version: 1,
		Name:    "lexemes",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS lexemes (
				id INTEGER PRIMARY KEY,
				content_key TEXT UNIQUE NOT NULL,
				surface TEXT NOT NULL,
				normalized_surface TEXT NOT NULL,
				rule_id TEXT NOT NULL,
				first_seen DATE NOT NULL,
				last_seen DATE NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS lemmas (
				id INTEGER PRIMARY KEY,
				lemma TEXT NOT NULL,
				reading TEXT,
				rule_id TEXT NOT NULL,
				UNIQUE (lemma, rule_id)
			)`,
			`CREATE TABLE IF NOT EXISTS lexeme_lemmas (
				lexeme_id INTEGER NOT NULL,
				lemma_id INTEGER NOT NULL,
				PRIMARY KEY (lexeme_id, lemma_id)
			)`,
		),
	},
	{
		Version: 2,
		Name:    "lexeme indexes",
		Up: execAll(
			`CREATE INDEX IF NOT EXISTS idx_lexemes_rule ON lexemes(rule_id)`,
			`CREATE INDEX IF NOT EXISTS idx_lexeme_lemmas_lemma ON lexeme_lemmas(lemma_id)`,
		),
	},
	{
		// The driver decodes DATE columns into time.Time, which scans back as
		// RFC 3339 text. Seen dates are stored and compared as YYYY-MM-DD text.
		Version: 3,
		Name:    "lexeme seen dates as text",
		Up: execAll(
			`CREATE TABLE lexemes_v3 (
				id INTEGER PRIMARY KEY,
				content_key TEXT UNIQUE NOT NULL,
				surface TEXT NOT NULL,
				normalized_surface TEXT NOT NULL,
				rule_id TEXT NOT NULL,
				first_seen TEXT NOT NULL,
				last_seen TEXT NOT NULL
			)`,
			`INSERT INTO lexemes_v3 (id, content_key, surface, normalized_surface, rule_id, first_seen, last_seen)
				SELECT id, content_key, surface, normalized_surface, rule_id,
				       substr(CAST(first_seen AS TEXT), 1, 10), substr(CAST(last_seen AS TEXT), 1, 10)
				FROM lexemes`,
			`DROP TABLE lexemes`,
			`ALTER TABLE lexemes_v3 RENAME TO lexemes`,
			`CREATE INDEX IF NOT EXISTS idx_lexemes_rule ON lexemes(rule_id)`,
		),
	},
}

// CacheMigrations builds the time-entry cache, sync metadata and snapshot ledger.
var CacheMigrations = []Migration{
	{
		Version: 1,
		Name:    "cache and snapshots",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS meta (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS toggl_daily (
				day TEXT PRIMARY KEY,
				total_seconds INTEGER NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS toggl_daily_desc (
				day TEXT NOT NULL,
				description TEXT NOT NULL,
				seconds INTEGER NOT NULL,
				PRIMARY KEY (day, description)
			)`,
			`CREATE TABLE IF NOT EXISTS snapshots (
				run_id INTEGER PRIMARY KEY AUTOINCREMENT,
				generated_at TEXT NOT NULL,
				report_day TEXT NOT NULL,
				timezone TEXT NOT NULL,
				theme TEXT NOT NULL,
				toggl_lifetime_seconds INTEGER NOT NULL,
				toggl_today_seconds INTEGER NOT NULL,
				toggl_today_breakdown_json TEXT NOT NULL,
				known_lemmas INTEGER NOT NULL,
				known_inflections INTEGER NOT NULL,
				anki_total_reviews INTEGER NOT NULL,
				anki_reviews INTEGER NOT NULL,
				anki_true_retention REAL NOT NULL
			)`,
		),
	},
	{
		Version: 2,
		Name:    "snapshot character totals and warnings",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			if err := AddColumnIfMissing(ctx, tx, "snapshots", "manga_chars_total", "INTEGER NOT NULL DEFAULT 0"); err != nil {
				return err
			}
			if err := AddColumnIfMissing(ctx, tx, "snapshots", "gsm_chars_total", "INTEGER NOT NULL DEFAULT 0"); err != nil {
				return err
			}
			return AddColumnIfMissing(ctx, tx, "snapshots", "warnings_json", "TEXT NOT NULL DEFAULT '[]'")
		},
	},
	{
		Version: 3,
		Name:    "snapshot lexeme and article totals",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			if err := AddColumnIfMissing(ctx, tx, "snapshots", "known_lexemes", "INTEGER NOT NULL DEFAULT 0"); err != nil {
				return err
			}
			if err := AddColumnIfMissing(ctx, tx, "snapshots", "article_chars_total", "INTEGER NOT NULL DEFAULT 0"); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_snapshots_report_day ON snapshots(report_day)`)
			return err
		},
	},
}

// LiveMigrations builds the live session overlay.
var LiveMigrations = []Migration{
	{
		Version: 1,
		Name:    "gsm sessions",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS gsm_sessions (
				session_key TEXT PRIMARY KEY,
				day TEXT NOT NULL,
				game_name TEXT NOT NULL,
				start_time REAL NOT NULL,
				end_time REAL NOT NULL,
				total_chars INTEGER NOT NULL,
				total_seconds REAL NOT NULL,
				last_seen REAL NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_gsm_sessions_day ON gsm_sessions(day)`,
		),
	},
}
