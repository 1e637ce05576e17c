package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTodayStatsURL is the local GSM endpoint serving today's sessions.
const DefaultTodayStatsURL = "http://localhost:55000/api/today-stats"

type todayStats struct {
	Sessions []json.RawMessage `json:"sessions"`
}

type rawSession struct {
	GameName     any    `json:"gameName"`
	StartTime    number `json:"startTime"`
	EndTime      number `json:"endTime"`
	TotalChars   number `json:"totalChars"`
	TotalSeconds number `json:"totalSeconds"`
}

// number accepts JSON numbers, numeric strings and null.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == "false" {
		*n = 0
		return nil
	}
	if string(b) == "true" {
		*n = 1
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = number(f)
	return nil
}

// ParseTodayStats decodes a GSM today-stats payload. Entries that are not
// objects or carry unusable numbers are skipped; a payload without a
// sessions list yields no sessions.
func ParseTodayStats(r io.Reader) ([]Session, error) {
	var payload todayStats
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode today-stats: %w", err)
	}

	out := make([]Session, 0, len(payload.Sessions))
	for _, raw := range payload.Sessions {
		var rs rawSession
		if err := json.Unmarshal(raw, &rs); err != nil {
			continue
		}
		out = append(out, Session{
			GameName:     gameName(rs.GameName),
			StartTime:    float64(rs.StartTime),
			EndTime:      float64(rs.EndTime),
			TotalChars:   int64(rs.TotalChars),
			TotalSeconds: float64(rs.TotalSeconds),
		})
	}
	return out, nil
}

func gameName(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return ""
	}
	return fmt.Sprint(v)
}

// FetchTodayStats reads today's sessions from a running GSM instance.
func FetchTodayStats(ctx context.Context, client *http.Client, url string) ([]Session, error) {
	if client == nil {
		client = &http.Client{Timeout: 2500 * time.Millisecond}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GSM today-stats not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GSM today-stats returned %s", resp.Status)
	}
	return ParseTodayStats(resp.Body)
}

// Import upserts sessions and returns how many were written.
func (s *Store) Import(ctx context.Context, sessions []Session) (int, error) {
	written := 0
	for _, sess := range sessions {
		ok, err := s.Upsert(ctx, sess)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}
