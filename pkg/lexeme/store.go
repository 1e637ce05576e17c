package lexeme

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nekopy/Tokei/pkg/db"
	"github.com/nekopy/Tokei/pkg/identity"
)

// Store reads and writes the lexeme tables through an Executor, so the same
// code runs against a connection or inside an ingestion transaction.
type Store struct {
	q db.Executor
}

// NewStore returns a Store bound to q.
func NewStore(q db.Executor) *Store {
	return &Store{q: q}
}

func validate(l Lexeme) error {
	if strings.TrimSpace(l.ContentKey) == "" {
		return fmt.Errorf("content key must be non-empty: %w", identity.ErrInvalidArgument)
	}
	if strings.TrimSpace(l.RuleID) == "" {
		return fmt.Errorf("rule_id must be non-empty: %w", identity.ErrInvalidArgument)
	}
	if l.FirstSeen == "" || l.LastSeen == "" {
		return fmt.Errorf("seen dates must be set: %w", identity.ErrInvalidArgument)
	}
	return nil
}

// Upsert inserts a lexeme or widens the stored [first_seen, last_seen] range.
// Surface columns are never rewritten. Returns the row id.
func (s *Store) Upsert(ctx context.Context, l Lexeme) (int64, error) {
	if err := validate(l); err != nil {
		return 0, err
	}
	var id int64
	err := s.q.QueryRowContext(ctx, `INSERT INTO lexemes (content_key, surface, normalized_surface, rule_id, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_key) DO UPDATE SET
		  first_seen = MIN(lexemes.first_seen, excluded.first_seen),
		  last_seen = MAX(lexemes.last_seen, excluded.last_seen)
		RETURNING id`,
		l.ContentKey, l.Surface, l.NormalizedSurface, l.RuleID, l.FirstSeen, l.LastSeen).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert lexeme: %w", err)
	}
	return id, nil
}

// UpsertPreferSurface behaves like Upsert but also replaces surface and
// normalized_surface with the incoming values. Used when a producer extracts
// a cleaner canonical form than the one stored earlier.
func (s *Store) UpsertPreferSurface(ctx context.Context, l Lexeme) (int64, error) {
	if err := validate(l); err != nil {
		return 0, err
	}
	var id int64
	err := s.q.QueryRowContext(ctx, `INSERT INTO lexemes (content_key, surface, normalized_surface, rule_id, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_key) DO UPDATE SET
		  surface = excluded.surface,
		  normalized_surface = excluded.normalized_surface,
		  first_seen = MIN(lexemes.first_seen, excluded.first_seen),
		  last_seen = MAX(lexemes.last_seen, excluded.last_seen)
		RETURNING id`,
		l.ContentKey, l.Surface, l.NormalizedSurface, l.RuleID, l.FirstSeen, l.LastSeen).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert lexeme surface: %w", err)
	}
	return id, nil
}

// Get returns the lexeme with the given content key, or nil when absent.
func (s *Store) Get(ctx context.Context, contentKey string) (*Lexeme, error) {
	var l Lexeme
	err := s.q.QueryRowContext(ctx, `SELECT id, content_key, surface, normalized_surface, rule_id, first_seen, last_seen
		FROM lexemes WHERE content_key = ?`, contentKey).
		Scan(&l.ID, &l.ContentKey, &l.Surface, &l.NormalizedSurface, &l.RuleID, &l.FirstSeen, &l.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lexeme: %w", err)
	}
	return &l, nil
}

// DeleteByContentKey removes a lexeme together with its lemma links.
// Reports whether a row was removed.
func (s *Store) DeleteByContentKey(ctx context.Context, contentKey string) (bool, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM lexemes WHERE content_key = ?`, contentKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find lexeme: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM lexeme_lemmas WHERE lexeme_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete lexeme links: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM lexemes WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete lexeme: %w", err)
	}
	return true, nil
}

// LinkLemma ensures the (lemma, ruleID) row and the lexeme link exist.
func (s *Store) LinkLemma(ctx context.Context, lexemeID int64, lemma, reading, ruleID string) error {
	if lexemeID <= 0 {
		return fmt.Errorf("lexemeID must be positive")
	}
	if strings.TrimSpace(lemma) == "" || strings.TrimSpace(ruleID) == "" {
		return fmt.Errorf("lemma and rule_id must be non-empty: %w", identity.ErrInvalidArgument)
	}
	if _, err := s.q.ExecContext(ctx, `INSERT OR IGNORE INTO lemmas (lemma, reading, rule_id) VALUES (?, ?, ?)`,
		lemma, nullableString(reading), ruleID); err != nil {
		return fmt.Errorf("insert lemma: %w", err)
	}
	var lemmaID int64
	if err := s.q.QueryRowContext(ctx, `SELECT id FROM lemmas WHERE lemma = ? AND rule_id = ?`, lemma, ruleID).Scan(&lemmaID); err != nil {
		return fmt.Errorf("select lemma: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `INSERT OR IGNORE INTO lexeme_lemmas (lexeme_id, lemma_id) VALUES (?, ?)`,
		lexemeID, lemmaID); err != nil {
		return fmt.Errorf("link lemma: %w", err)
	}
	return nil
}

// Pending returns lexemes without any lemma link, ordered by id. An empty
// ruleID returns pending lexemes of every rule.
func (s *Store) Pending(ctx context.Context, ruleID string) ([]Lexeme, error) {
	query := `SELECT l.id, l.content_key, l.surface, l.normalized_surface, l.rule_id, l.first_seen, l.last_seen
		FROM lexemes l
		LEFT JOIN lexeme_lemmas ll ON ll.lexeme_id = l.id
		WHERE ll.lexeme_id IS NULL`
	var args []any
	if ruleID != "" {
		query += ` AND l.rule_id = ?`
		args = append(args, ruleID)
	}
	query += ` ORDER BY l.id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending lexemes: %w", err)
	}
	defer rows.Close()
	var out []Lexeme
	for rows.Next() {
		var l Lexeme
		if err := rows.Scan(&l.ID, &l.ContentKey, &l.Surface, &l.NormalizedSurface, &l.RuleID, &l.FirstSeen, &l.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountPending returns the number of lexemes without a lemma link.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM lexemes l
		LEFT JOIN lexeme_lemmas ll ON ll.lexeme_id = l.id
		WHERE ll.lexeme_id IS NULL`)
}

// Count returns the number of lexemes.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM lexemes`)
}

// CountLemmas returns the number of distinct lemma rows.
func (s *Store) CountLemmas(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM lemmas`)
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// RebuildLemmas clears every lemma and link row so the next BuildLemmas
// re-derives them from scratch.
func (s *Store) RebuildLemmas(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM lexeme_lemmas`); err != nil {
		return fmt.Errorf("clear lexeme_lemmas: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM lemmas`); err != nil {
		return fmt.Errorf("clear lemmas: %w", err)
	}
	return nil
}

// BuildLemmas links every pending lexeme to the lemma produced by lz. When
// rebuild is set all existing lemma rows are dropped first. Returns the number
// of lexemes linked.
func (s *Store) BuildLemmas(ctx context.Context, lz Lemmatizer, rebuild bool) (int, error) {
	if lz == nil {
		return 0, fmt.Errorf("lemmatizer is required")
	}
	if rebuild {
		if err := s.RebuildLemmas(ctx); err != nil {
			return 0, err
		}
	}
	pending, err := s.Pending(ctx, "")
	if err != nil {
		return 0, err
	}
	rp, _ := lz.(ReadingProvider)

	linked := 0
	for _, l := range pending {
		lemma := identity.Normalize(lz.Lemmatize(l.Surface))
		if lemma == "" {
			lemma = identity.Normalize(l.Surface)
		}
		if lemma == "" {
			continue
		}
		reading := ""
		if rp != nil {
			reading = rp.Reading(lemma)
		}
		if err := s.LinkLemma(ctx, l.ID, lemma, reading, l.RuleID); err != nil {
			return linked, err
		}
		linked++
	}
	return linked, nil
}

// nullableString returns nil for "" else the value.
func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
