package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/nekopy/Tokei/pkg/db"
)

const (
	SourceRetention  = "Review stats export"
	SourceAnkiMorphs = "AnkiMorphs DB"
)

// Retention holds the review totals of a stats export. TrueRetention is a
// fraction in [0, 1].
type Retention struct {
	CardsStudied  int64   `json:"cards_studied"`
	Reviews       int64   `json:"reviews"`
	TrueRetention float64 `json:"true_retention"`
}

type retentionFile struct {
	Totals *struct {
		CardsStudied  *json.Number `json:"cards_studied"`
		Reviews       *json.Number `json:"reviews"`
		TrueRetention *json.Number `json:"true_retention"`
	} `json:"totals"`
}

// ReadRetention reads the totals object of a review stats export. Absent
// fields count as zero.
func ReadRetention(path string) (Retention, error) {
	var r Retention
	b, err := os.ReadFile(path)
	if err != nil {
		return r, newReadError(SourceRetention, path, err)
	}
	var f retentionFile
	if err := json.Unmarshal(b, &f); err != nil {
		return r, &ReadError{Source: SourceRetention, Path: path, Kind: Unreadable, Err: err}
	}
	if f.Totals == nil {
		return r, nil
	}
	r.CardsStudied = numberInt(f.Totals.CardsStudied)
	r.Reviews = numberInt(f.Totals.Reviews)
	if f.Totals.TrueRetention != nil {
		r.TrueRetention, _ = f.Totals.TrueRetention.Float64()
	}
	return r, nil
}

func numberInt(n *json.Number) int64 {
	if n == nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, _ := n.Float64()
	return int64(f)
}

// ReadKnownCounts counts the lemmas and inflections AnkiMorphs considers
// known, i.e. whose highest learning interval reaches intervalDays.
func ReadKnownCounts(ctx context.Context, path string, intervalDays int) (lemmas, inflections int64, err error) {
	conn, cleanup, err := db.OpenReadOnly(ctx, path)
	if err != nil {
		return 0, 0, newReadError(SourceAnkiMorphs, path, err)
	}
	defer cleanup()
	x := sqlx.NewDb(conn, "sqlite3")

	var counts struct {
		Lemmas      int64 `db:"lemmas"`
		Inflections int64 `db:"inflections"`
	}
	err = x.GetContext(ctx, &counts, `SELECT
		COUNT(DISTINCT lemma) AS lemmas,
		COUNT(*) AS inflections
		FROM Morphs
		WHERE highest_inflection_learning_interval >= ?`, intervalDays)
	if err != nil {
		return 0, 0, &ReadError{Source: SourceAnkiMorphs, Path: path, Kind: Schema, Err: fmt.Errorf("query Morphs: %w", err)}
	}
	return counts.Lemmas, counts.Inflections, nil
}
