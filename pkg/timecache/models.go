package timecache

import (
	"encoding/json"
	"fmt"
)

// NoDescription labels entries without a description.
const NoDescription = "No Description"

// User is the subset of GET /me used to verify the token.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
	Timezone string `json:"timezone"`
}

// TimeEntry is one Toggl time entry. Duration is kept raw because running
// entries carry negative values and malformed payloads non-numeric ones.
type TimeEntry struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Start       string          `json:"start"`
	Duration    json.RawMessage `json:"duration"`
}

// Seconds returns the entry duration, or 0 when it is not a positive number.
func (e TimeEntry) Seconds() int64 {
	var d float64
	if err := json.Unmarshal(e.Duration, &d); err != nil || d <= 0 {
		return 0
	}
	return int64(d)
}

// DescSeconds is one row of a day's breakdown.
type DescSeconds struct {
	Description string `db:"description" json:"desc"`
	Seconds     int64  `db:"seconds" json:"seconds"`
}

// APIError is a failed Toggl call: transport failure, bad status or
// unparseable body.
type APIError struct {
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("toggl api: status %d: %v", e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("toggl api: %v", e.Err)
	default:
		return fmt.Sprintf("toggl api: status %d: %s", e.Status, e.Body)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// AuthError is returned when the API rejects the token.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("toggl authentication failed (status %d): check the API token", e.Status)
}

// MinStartDateError reports the earliest day the API will serve.
type MinStartDateError struct {
	Day string // YYYY-MM-DD
}

func (e *MinStartDateError) Error() string {
	return "toggl api: start_date must not be earlier than " + e.Day
}
