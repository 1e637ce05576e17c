package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Options configures one lexeme refresh.
type Options struct {
	ExportDB  string   // external producer database, "" to skip
	RuleID    string   // local rule; also re-keys export rows when set
	FlatFiles []string // delimited word lists
	Today     string   // YYYY-MM-DD
	Logger    *slog.Logger
}

// Result summarizes a lexeme refresh.
type Result struct {
	Imported int
	Ingested int
	Warnings []string
}

// Refresh runs every configured producer, each in its own transaction.
// Unreadable inputs become warnings; any other failure aborts.
func Refresh(ctx context.Context, conn *sql.DB, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ingest")

	var res Result

	if opts.ExportDB != "" {
		var n int
		err := Run(ctx, conn, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			n, err = ImportExport(ctx, tx, opts.ExportDB, opts.RuleID, opts.Today)
			return err
		})
		switch {
		case errors.Is(err, ErrUnreadable):
			logger.Warn("skipping vocabulary export", "path", opts.ExportDB, "error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("Vocabulary export skipped (%s): %v", filepath.Base(opts.ExportDB), err))
		case err != nil:
			return res, fmt.Errorf("import export %s: %w", opts.ExportDB, err)
		default:
			res.Imported = n
			logger.Info("imported vocabulary export", "path", opts.ExportDB, "rows", n)
		}
	}

	for _, path := range opts.FlatFiles {
		var n int
		err := Run(ctx, conn, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			n, err = IngestFlatFile(ctx, tx, path, opts.RuleID, opts.Today)
			return err
		})
		switch {
		case errors.Is(err, ErrUnreadable):
			logger.Warn("skipping word list", "path", path, "error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("Word list skipped (%s): %v", filepath.Base(path), err))
		case err != nil:
			return res, fmt.Errorf("ingest %s: %w", path, err)
		default:
			res.Ingested += n
			logger.Debug("ingested word list", "path", path, "rows", n)
		}
	}

	return res, nil
}
