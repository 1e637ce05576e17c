package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMetaRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, conn, CacheMigrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, ok, err := GetMeta(ctx, conn, "timezone"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := SetMeta(ctx, conn, "timezone", "Asia/Tokyo"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetMeta(ctx, conn, "timezone", "UTC"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := GetMeta(ctx, conn, "timezone")
	if err != nil || !ok || v != "UTC" {
		t.Fatalf("expected UTC, got %q ok=%v err=%v", v, ok, err)
	}
	if err := DeleteMeta(ctx, conn, "timezone", "unknown"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := GetMeta(ctx, conn, "timezone"); ok {
		t.Fatal("expected key to be deleted")
	}
	if err := SetMeta(ctx, conn, " ", "x"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "src.sqlite")
	conn, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := conn.Exec(`CREATE TABLE t (v INTEGER); INSERT INTO t VALUES (42)`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	conn.Close()

	ro, cleanup, err := OpenReadOnly(ctx, path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer cleanup()
	var v int
	if err := ro.QueryRow(`SELECT v FROM t`).Scan(&v); err != nil || v != 42 {
		t.Fatalf("expected 42, got %d err=%v", v, err)
	}
	if _, err := ro.Exec(`INSERT INTO t VALUES (1)`); err == nil {
		t.Fatal("expected write to fail on read-only connection")
	}
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, _, err := OpenReadOnly(context.Background(), filepath.Join(t.TempDir(), "nope.sqlite"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestCopyWithSidecars(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.sqlite")
	if err := os.WriteFile(src, []byte("main"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src+"-wal", []byte("wal"), 0o644); err != nil {
		t.Fatal(err)
	}
	dstDir := t.TempDir()
	dst, err := copyWithSidecars(src, dstDir)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if b, _ := os.ReadFile(dst + "-wal"); string(b) != "wal" {
		t.Fatalf("wal sidecar not copied: %q", b)
	}
	if _, err := os.Stat(dst + "-shm"); !os.IsNotExist(err) {
		t.Fatalf("unexpected shm sidecar: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) {
		t.Fatal("nil is not busy")
	}
	if !IsBusy(errString("database is locked")) {
		t.Fatal("expected locked message to be busy")
	}
	if IsBusy(errString("no such table: x")) {
		t.Fatal("schema error is not busy")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
