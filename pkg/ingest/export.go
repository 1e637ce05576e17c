package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/nekopy/Tokei/pkg/db"
	"github.com/nekopy/Tokei/pkg/identity"
	"github.com/nekopy/Tokei/pkg/lexeme"
)

// ErrUnreadable marks a producer input that could not be read or parsed.
// Callers record a warning and carry on with zero rows from that input.
var ErrUnreadable = errors.New("unreadable input")

type exportRow struct {
	contentKey        string
	surface           string
	normalizedSurface string
	ruleID            string
	firstSeen         sql.NullString
	lastSeen          sql.NullString
}

// ImportExport copies the lexemes table of an external producer's database
// into the local store through tx. When ruleID is non-empty each row is
// re-keyed under it; otherwise the exported key and rule are kept. Rows whose
// surface carries markup take the extracted bolded term as surface, and the
// re-keyed identity is derived from that term. A missing database imports
// nothing.
func ImportExport(ctx context.Context, tx db.Executor, path, ruleID, today string) (int, error) {
	src, cleanup, err := db.OpenReadOnly(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrUnreadable, path, err)
	}
	defer cleanup()

	rows, err := readExportRows(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrUnreadable, path, err)
	}

	store := lexeme.NewStore(tx)
	imported := 0
	for _, r := range rows {
		term, marked := ExtractMarkedTerm(r.surface)
		l, err := localLexeme(r, term, marked, ruleID, today)
		if err != nil {
			// Rows with neither an exported rule nor a local one cannot be keyed.
			continue
		}
		if marked {
			_, err = store.UpsertPreferSurface(ctx, l)
		} else {
			_, err = store.Upsert(ctx, l)
		}
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func readExportRows(ctx context.Context, src *sql.DB) ([]exportRow, error) {
	rs, err := src.QueryContext(ctx,
		`SELECT content_key, surface, normalized_surface, rule_id,
		        CAST(first_seen AS TEXT), CAST(last_seen AS TEXT) FROM lexemes`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []exportRow
	for rs.Next() {
		var r exportRow
		var key, surface, normalized, rule sql.NullString
		if err := rs.Scan(&key, &surface, &normalized, &rule, &r.firstSeen, &r.lastSeen); err != nil {
			return nil, err
		}
		r.contentKey, r.surface, r.normalizedSurface, r.ruleID = key.String, surface.String, normalized.String, rule.String
		out = append(out, r)
	}
	return out, rs.Err()
}

// localLexeme maps an export row to the local store. A marked-up row takes
// the extracted term as surface; when re-keyed under ruleID the key is derived
// from that term so it merges with the same word from other producers.
func localLexeme(r exportRow, term string, marked bool, ruleID, today string) (lexeme.Lexeme, error) {
	surface := r.surface
	normalized := r.normalizedSurface
	if strings.TrimSpace(normalized) == "" {
		normalized = identity.Normalize(r.surface)
	}
	if marked {
		surface = term
		normalized = identity.Normalize(term)
	}
	l := lexeme.Lexeme{
		ContentKey:        r.contentKey,
		Surface:           surface,
		NormalizedSurface: normalized,
		RuleID:            r.ruleID,
		FirstSeen:         seenDay(r.firstSeen, today),
		LastSeen:          seenDay(r.lastSeen, today),
	}
	if strings.TrimSpace(ruleID) != "" {
		key, err := identity.ContentKey(normalized, ruleID)
		if err != nil {
			return l, err
		}
		l.ContentKey = key
		l.RuleID = strings.TrimSpace(ruleID)
	}
	if l.ContentKey == "" || strings.TrimSpace(l.RuleID) == "" {
		return l, identity.ErrInvalidArgument
	}
	return l, nil
}

// seenDay reduces a stored date or timestamp to YYYY-MM-DD, falling back to
// def when the value is empty or not a date.
func seenDay(v sql.NullString, def string) string {
	s := strings.TrimSpace(v.String)
	if !v.Valid || len(s) < len(time.DateOnly) {
		return def
	}
	day := s[:len(time.DateOnly)]
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return def
	}
	return day
}
