package ingest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nekopy/Tokei/pkg/db"
	"github.com/nekopy/Tokei/pkg/identity"
	"github.com/nekopy/Tokei/pkg/lexeme"
)

// writeExport creates an external producer database with the given rows of
// (surface, normalized, rule, first_seen, last_seen).
func writeExport(t *testing.T, rows [][5]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_words.sqlite")
	conn, err := db.OpenMigrated(context.Background(), path, db.WordsMigrations)
	if err != nil {
		t.Fatalf("create export: %v", err)
	}
	defer conn.Close()
	for _, r := range rows {
		key, _ := identity.ContentKey(r[1].(string), r[2].(string))
		if _, err := conn.Exec(`INSERT INTO lexemes (content_key, surface, normalized_surface, rule_id, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)`, key, r[0], r[1], r[2], r[3], r[4]); err != nil {
			t.Fatalf("insert export row: %v", err)
		}
	}
	return path
}

func importExport(t *testing.T, conn *sql.DB, path, rule string) int {
	t.Helper()
	var n int
	err := Run(context.Background(), conn, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		n, err = ImportExport(ctx, tx, path, rule, "2024-06-30")
		return err
	})
	if err != nil {
		t.Fatalf("ImportExport failed: %v", err)
	}
	return n
}

func TestImportExportKeepsExportedIdentity(t *testing.T) {
	ctx := context.Background()
	conn := openWordsDB(t)
	path := writeExport(t, [][5]any{
		{"猫", "猫", "hashi", "2024-01-01", "2024-02-01"},
		{"犬", "犬", "hashi", "", ""},
	})

	if n := importExport(t, conn, path, ""); n != 2 {
		t.Fatalf("imported = %d; want 2", n)
	}
	store := lexeme.NewStore(conn)
	key, _ := identity.ContentKey("犬", "hashi")
	got, err := store.Get(ctx, key)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.RuleID != "hashi" || got.FirstSeen != "2024-06-30" {
		t.Errorf("got %+v; want rule hashi dated today", got)
	}

	// Importing twice changes nothing.
	importExport(t, conn, path, "")
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("Count = %d; want 2", n)
	}
}

func TestImportExportRekeysUnderLocalRule(t *testing.T) {
	ctx := context.Background()
	conn := openWordsDB(t)
	path := writeExport(t, [][5]any{{"猫", "猫", "hashi", "2024-01-01", "2024-02-01"}})

	// The same word from a flat file under the local rule merges with the export row.
	if _, err := lexeme.NewStore(conn).Upsert(ctx, lexeme.Lexeme{
		ContentKey: mustKey(t, "猫", "default"), Surface: "猫", NormalizedSurface: "猫",
		RuleID: "default", FirstSeen: "2024-06-01", LastSeen: "2024-06-01",
	}); err != nil {
		t.Fatal(err)
	}

	importExport(t, conn, path, "default")
	got, _ := lexeme.NewStore(conn).Get(ctx, mustKey(t, "猫", "default"))
	if got == nil {
		t.Fatal("re-keyed row not found")
	}
	if got.FirstSeen != "2024-01-01" || got.LastSeen != "2024-06-01" {
		t.Errorf("range = [%s, %s]", got.FirstSeen, got.LastSeen)
	}
	if n, _ := lexeme.NewStore(conn).Count(ctx); n != 1 {
		t.Errorf("Count = %d; want 1", n)
	}
}

func TestImportExportExtractsBoldedTerm(t *testing.T) {
	ctx := context.Background()
	conn := openWordsDB(t)
	sentence := "昨日<b>猫</b>を見た"
	path := writeExport(t, [][5]any{{sentence, sentence, "hashi", "2024-01-01", "2024-01-01"}})

	importExport(t, conn, path, "")
	got, _ := lexeme.NewStore(conn).Get(ctx, mustKey(t, sentence, "hashi"))
	if got == nil {
		t.Fatal("row not found under its exported key")
	}
	if got.Surface != "猫" || got.NormalizedSurface != "猫" {
		t.Errorf("surface = %q/%q; want 猫", got.Surface, got.NormalizedSurface)
	}
}

func TestImportExportMarkedTermMergesUnderLocalRule(t *testing.T) {
	ctx := context.Background()
	conn := openWordsDB(t)
	sentence := "昨日<b>猫</b>を見た"
	path := writeExport(t, [][5]any{{sentence, sentence, "hashi", "2024-01-01", "2024-01-01"}})
	words := writeFile(t, t.TempDir(), "known.csv", []byte("猫\n"))

	importExport(t, conn, path, "default")
	ingestFile(t, conn, words)

	store := lexeme.NewStore(conn)
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("Count = %d; want 1", n)
	}
	got, err := store.Get(ctx, mustKey(t, "猫", "default"))
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Surface != "猫" || got.NormalizedSurface != "猫" {
		t.Errorf("surface = %q/%q; want 猫", got.Surface, got.NormalizedSurface)
	}
	if want := mustKey(t, got.NormalizedSurface, got.RuleID); got.ContentKey != want {
		t.Errorf("content key %s does not match normalized surface and rule (%s)", got.ContentKey, want)
	}
	if got.FirstSeen != "2024-01-01" || got.LastSeen != "2024-06-01" {
		t.Errorf("range = [%s, %s]", got.FirstSeen, got.LastSeen)
	}
}

// TestImportExportReadsDateColumnsAsDays uses an export whose seen columns are
// declared DATE, which the driver would otherwise decode as timestamps.
func TestImportExportReadsDateColumnsAsDays(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "known_words.sqlite")
	src, err := db.Open(path)
	if err != nil {
		t.Fatalf("create export: %v", err)
	}
	key := mustKey(t, "猫", "hashi")
	_, err = src.Exec(`CREATE TABLE lexemes (
		id INTEGER PRIMARY KEY,
		content_key TEXT UNIQUE NOT NULL,
		surface TEXT NOT NULL,
		normalized_surface TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		first_seen DATE NOT NULL,
		last_seen DATE NOT NULL
	)`)
	if err == nil {
		_, err = src.Exec(`INSERT INTO lexemes (content_key, surface, normalized_surface, rule_id, first_seen, last_seen)
			VALUES (?, '猫', '猫', 'hashi', '2024-01-01', '2024-02-01 09:30:00')`, key)
	}
	src.Close()
	if err != nil {
		t.Fatalf("write export: %v", err)
	}

	conn := openWordsDB(t)
	importExport(t, conn, path, "")
	got, err := lexeme.NewStore(conn).Get(ctx, key)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.FirstSeen != "2024-01-01" || got.LastSeen != "2024-02-01" {
		t.Errorf("range = [%s, %s]; want [2024-01-01, 2024-02-01]", got.FirstSeen, got.LastSeen)
	}

	// A later sighting on the same day keeps the calendar form.
	importExport(t, conn, path, "")
	got, _ = lexeme.NewStore(conn).Get(ctx, key)
	if got.LastSeen != "2024-02-01" {
		t.Errorf("last_seen = %s after re-import", got.LastSeen)
	}
}

func TestImportExportMissingIsNoop(t *testing.T) {
	conn := openWordsDB(t)
	if n := importExport(t, conn, filepath.Join(t.TempDir(), "absent.sqlite"), "default"); n != 0 {
		t.Errorf("imported = %d; want 0", n)
	}
}

func TestRefreshCollectsWarnings(t *testing.T) {
	ctx := context.Background()
	conn := openWordsDB(t)
	dir := t.TempDir()

	// Not a database: unreadable, becomes a warning.
	badExport := writeFile(t, dir, "known_words.sqlite", []byte("this is not sqlite"))
	good := writeFile(t, dir, "known.csv", []byte("word\n猫\n犬\n"))

	res, err := Refresh(ctx, conn, Options{
		ExportDB:  badExport,
		RuleID:    "default",
		FlatFiles: []string{good, filepath.Join(dir, "absent.csv")},
		Today:     "2024-06-30",
	})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.Ingested != 2 {
		t.Errorf("Ingested = %d; want 2", res.Ingested)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v; want exactly one", res.Warnings)
	}
}

func mustKey(t *testing.T, normalized, rule string) string {
	t.Helper()
	k, err := identity.ContentKey(normalized, rule)
	if err != nil {
		t.Fatal(err)
	}
	return k
}
