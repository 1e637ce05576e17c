// Package live stores GameSentenceMiner sessions as a per-day overlay on top
// of its periodic character rollup.
package live

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nekopy/Tokei/pkg/db"
)

// Session is one reading session reported by GSM. Times are unix seconds.
type Session struct {
	GameName     string
	StartTime    float64
	EndTime      float64
	TotalChars   int64
	TotalSeconds float64
}

// SessionKey identifies a session by game and start time. The start time is
// rendered the way the GSM plugin renders floats, so keys written by either
// side collide.
func SessionKey(gameName string, startTime float64) string {
	sum := sha256.Sum256([]byte(gameName + "|" + formatFloat(startTime)))
	return hex.EncodeToString(sum[:])
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !math.IsInf(f, 0) && !math.IsNaN(f) {
		s += ".0"
	}
	return s
}

// Store reads and writes the gsm_sessions table.
type Store struct {
	q   db.Executor
	loc *time.Location
	now func() time.Time
}

// NewStore returns a Store that buckets sessions by local day in loc.
func NewStore(q db.Executor, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{q: q, loc: loc, now: time.Now}
}

// Upsert records a session. Sessions without a positive start and end are
// ignored and reported as not written. A known session keeps its day and
// start and takes the latest end, totals and last_seen.
func (s *Store) Upsert(ctx context.Context, sess Session) (bool, error) {
	if sess.StartTime <= 0 || sess.EndTime <= 0 {
		return false, nil
	}
	sec, frac := math.Modf(sess.StartTime)
	day := db.Day(time.Unix(int64(sec), int64(frac*1e9)).In(s.loc))
	now := float64(s.now().UnixNano()) / 1e9

	_, err := s.q.ExecContext(ctx, `INSERT INTO gsm_sessions
		(session_key, day, game_name, start_time, end_time, total_chars, total_seconds, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
		  end_time = excluded.end_time,
		  total_chars = excluded.total_chars,
		  total_seconds = excluded.total_seconds,
		  last_seen = excluded.last_seen`,
		SessionKey(sess.GameName, sess.StartTime), day, sess.GameName,
		sess.StartTime, sess.EndTime, sess.TotalChars, sess.TotalSeconds, now)
	if err != nil {
		return false, fmt.Errorf("upsert session: %w", err)
	}
	return true, nil
}

// TotalsByDay returns the summed characters of every recorded day.
func (s *Store) TotalsByDay(ctx context.Context) (map[string]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT day, COALESCE(SUM(total_chars), 0) FROM gsm_sessions GROUP BY day`)
	if err != nil {
		return nil, fmt.Errorf("query session totals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var day string
		var chars int64
		if err := rows.Scan(&day, &chars); err != nil {
			return nil, err
		}
		out[day] = chars
	}
	return out, rows.Err()
}
