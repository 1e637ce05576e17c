package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// IsBusy returns true when the error indicates a locked or busy database.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked {
			return true
		}
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "locked") || strings.Contains(s, "busy")
}

// OpenReadOnly opens a database owned by another program. When the file is
// locked it is copied (with its -wal and -shm sidecars) into a temporary
// directory and the copy is opened instead. cleanup closes the connection and
// removes any copy; it is safe to call once.
func OpenReadOnly(ctx context.Context, path string) (conn *sql.DB, cleanup func(), err error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, err
	}

	conn, err = openRO(ctx, path)
	if err == nil {
		return conn, func() { conn.Close() }, nil
	}
	if !IsBusy(err) {
		return nil, nil, err
	}

	tmpDir, err := os.MkdirTemp("", "tokei-ro-")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}
	copied, err := copyWithSidecars(path, tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, nil, fmt.Errorf("copy locked db: %w", err)
	}
	conn, err = openRO(ctx, copied)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, nil, err
	}
	return conn, func() {
		conn.Close()
		os.RemoveAll(tmpDir)
	}, nil
}

func openRO(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=2000&_query_only=1")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	var one int
	if err := conn.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master LIMIT 1`).Scan(&one); err != nil && !errors.Is(err, sql.ErrNoRows) {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func copyWithSidecars(src, dstDir string) (string, error) {
	dst := filepath.Join(dstDir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		side := src + suffix
		if _, err := os.Stat(side); err != nil {
			continue
		}
		// A sidecar that cannot be copied only loses uncheckpointed pages.
		_ = copyFile(side, dst+suffix)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
