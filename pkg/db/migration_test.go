package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func tableColumns(t *testing.T, conn *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := conn.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("pragma: %v", err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan col: %v", err)
		}
		cols[name] = true
	}
	return cols
}

// TestCacheMigrationsCreateFinalSchema verifies a fresh cache DB ends up with
// every snapshot column added by later migration steps.
func TestCacheMigrationsCreateFinalSchema(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, conn, CacheMigrations); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	cols := tableColumns(t, conn, "snapshots")
	for _, c := range []string{"run_id", "manga_chars_total", "gsm_chars_total", "warnings_json", "known_lexemes", "article_chars_total"} {
		if !cols[c] {
			t.Fatalf("expected column %s in snapshots, got %v", c, cols)
		}
	}

	v, err := SchemaVersion(ctx, conn)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(CacheMigrations) {
		t.Fatalf("expected version %d, got %d", len(CacheMigrations), v)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, conn, WordsMigrations); err != nil {
			t.Fatalf("Migrate run %d: %v", i, err)
		}
	}
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(WordsMigrations) {
		t.Fatalf("expected %d version rows, got %d", len(WordsMigrations), n)
	}
}

// TestMigrateUpgradesLegacySnapshots simulates a database created before the
// character-total columns existed.
func TestMigrateUpgradesLegacySnapshots(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, conn, CacheMigrations[:1]); err != nil {
		t.Fatalf("Migrate v1: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO snapshots (generated_at, report_day, timezone, theme,
		toggl_lifetime_seconds, toggl_today_seconds, toggl_today_breakdown_json,
		known_lemmas, known_inflections, anki_total_reviews, anki_reviews, anki_true_retention)
		VALUES ('t', '2024-01-01', 'UTC', 'midnight', 10, 5, '[]', 1, 2, 3, 4, 0.9)`); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	if err := Migrate(ctx, conn, CacheMigrations); err != nil {
		t.Fatalf("Migrate all: %v", err)
	}
	var warnings string
	var manga int
	if err := conn.QueryRow("SELECT warnings_json, manga_chars_total FROM snapshots").Scan(&warnings, &manga); err != nil {
		t.Fatalf("query upgraded row: %v", err)
	}
	if warnings != "[]" || manga != 0 {
		t.Fatalf("unexpected defaults: %q %d", warnings, manga)
	}
}

func TestMigrateRollsBackFailedStep(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")
	steps := []Migration{
		{Version: 1, Name: "ok", Up: execAll(`CREATE TABLE a (x INTEGER)`)},
		{Version: 2, Name: "fails", Up: func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `CREATE TABLE b (x INTEGER)`); err != nil {
				return err
			}
			return boom
		}},
	}
	if err := Migrate(ctx, conn, steps); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	v, _ := SchemaVersion(ctx, conn)
	if v != 1 {
		t.Fatalf("expected version 1 after failure, got %d", v)
	}
	var name string
	err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='b'").Scan(&name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("table b should have been rolled back, err=%v", err)
	}
}

// TestWordsMigrationNormalizesSeenDates simulates a store whose DATE columns
// received timestamp text from an earlier import.
func TestWordsMigrationNormalizesSeenDates(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, conn, WordsMigrations[:2]); err != nil {
		t.Fatalf("Migrate v2: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO lexemes (content_key, surface, normalized_surface, rule_id, first_seen, last_seen)
		VALUES ('k', '猫', '猫', 'default', '2024-01-01T00:00:00Z', '2024-02-01')`); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	if err := Migrate(ctx, conn, WordsMigrations); err != nil {
		t.Fatalf("Migrate all: %v", err)
	}

	var first, last string
	if err := conn.QueryRow(`SELECT first_seen, last_seen FROM lexemes WHERE content_key = 'k'`).Scan(&first, &last); err != nil {
		t.Fatalf("query migrated row: %v", err)
	}
	if first != "2024-01-01" || last != "2024-02-01" {
		t.Fatalf("range = [%s, %s]; want [2024-01-01, 2024-02-01]", first, last)
	}

	var typ string
	if err := conn.QueryRow(`SELECT type FROM pragma_table_info('lexemes') WHERE name = 'first_seen'`).Scan(&typ); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if typ != "TEXT" {
		t.Fatalf("first_seen type = %s; want TEXT", typ)
	}
}
