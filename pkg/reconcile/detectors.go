package reconcile

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DayColumnDetector recognizes one encoding of a calendar day.
type DayColumnDetector interface {
	Name() string
	// Detect reports whether a sampled value of column uses this encoding.
	Detect(column string, sample any) bool
	// DayKey converts a value to YYYY-MM-DD in loc.
	DayKey(v any, loc *time.Location) (string, bool)
}

// DefaultDetectors are tried in order; the first match wins.
var DefaultDetectors = []DayColumnDetector{
	ISOText{},
	YYYYMMDD{},
	UnixSeconds{},
	UnixMillis{},
}

var reISODay = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// ISOText matches text such as "2024-06-01" or "2024-06-01T10:00:00".
type ISOText struct{}

func (ISOText) Name() string { return "iso-text" }

func (d ISOText) Detect(_ string, sample any) bool {
	_, ok := d.DayKey(sample, time.UTC)
	return ok
}

func (ISOText) DayKey(v any, loc *time.Location) (string, bool) {
	switch x := v.(type) {
	case time.Time:
		// The driver parses DATE/TIMESTAMP columns; keep the stored wall date.
		return x.Format(time.DateOnly), true
	case string, []byte:
		s := strings.TrimSpace(asString(x))
		if !reISODay.MatchString(s) {
			return "", false
		}
		if len(s) == len(time.DateOnly) {
			if _, err := time.Parse(time.DateOnly, s); err != nil {
				return "", false
			}
			return s, true
		}
		t, err := dateparse.ParseIn(s, loc)
		if err != nil {
			return "", false
		}
		return t.In(loc).Format(time.DateOnly), true
	}
	return "", false
}

// YYYYMMDD matches integers like 20240601.
type YYYYMMDD struct{}

func (YYYYMMDD) Name() string { return "yyyymmdd" }

func (d YYYYMMDD) Detect(_ string, sample any) bool {
	_, ok := d.DayKey(sample, time.UTC)
	return ok
}

func (YYYYMMDD) DayKey(v any, _ *time.Location) (string, bool) {
	n, ok := asInt(v)
	if !ok || n < 19000101 || n > 29991231 {
		return "", false
	}
	t, err := time.Parse("20060102", strconv.FormatInt(n, 10))
	if err != nil {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

// UnixSeconds matches epoch seconds between 2001 and 2286.
type UnixSeconds struct{}

func (UnixSeconds) Name() string { return "unix-seconds" }

func (d UnixSeconds) Detect(_ string, sample any) bool {
	_, ok := d.DayKey(sample, time.UTC)
	return ok
}

func (UnixSeconds) DayKey(v any, loc *time.Location) (string, bool) {
	f, ok := asFloat(v)
	if !ok || f < 1e9 || f >= 1e10 {
		return "", false
	}
	return time.Unix(int64(f), 0).In(loc).Format(time.DateOnly), true
}

// UnixMillis matches epoch milliseconds between 2001 and 2286.
type UnixMillis struct{}

func (UnixMillis) Name() string { return "unix-millis" }

func (d UnixMillis) Detect(_ string, sample any) bool {
	_, ok := d.DayKey(sample, time.UTC)
	return ok
}

func (UnixMillis) DayKey(v any, loc *time.Location) (string, bool) {
	f, ok := asFloat(v)
	if !ok || f < 1e12 || f >= 1e13 {
		return "", false
	}
	return time.UnixMilli(int64(f)).In(loc).Format(time.DateOnly), true
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(asString(x)), 64)
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
