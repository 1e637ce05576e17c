package timecache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.track.toggl.com/api/v9"
	userAgent      = "tokei/1.0"
)

// ClientConfig holds Toggl API client configuration.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the Toggl Track v9 API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient creates a new Toggl client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		logger:  logger.With("component", "toggl"),
	}
}

// Me verifies the token by fetching the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	body, err := c.get(ctx, c.baseURL+"/me")
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, &APIError{Body: string(body), Err: fmt.Errorf("decode user: %w", err)}
	}
	return &u, nil
}

// TimeEntries returns the entries started in [start, end). A response that is
// valid JSON but not a list yields no entries.
func (c *Client) TimeEntries(ctx context.Context, start, end time.Time) ([]TimeEntry, error) {
	q := url.Values{}
	q.Set("start_date", start.Format(time.RFC3339))
	q.Set("end_date", end.Format(time.RFC3339))

	body, err := c.get(ctx, c.baseURL+"/me/time_entries?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &APIError{Body: string(body), Err: fmt.Errorf("decode time entries: %w", err)}
	}
	if _, ok := raw.([]any); !ok {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &APIError{Body: string(body), Err: fmt.Errorf("decode time entries: %w", err)}
	}
	entries := make([]TimeEntry, 0, len(items))
	for _, item := range items {
		var e TimeEntry
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	c.logger.Debug("fetched time entries",
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"entries", len(entries),
	)
	return entries, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.token, "api_token")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	body = bytes.TrimSpace(body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: resp.StatusCode, Body: string(body)}
	}
	if day, ok := ParseMinStartDate(string(body)); ok {
		return nil, &MinStartDateError{Day: day}
	}
	return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
}

const floorNeedle = "start_date must not be earlier than "

// ParseMinStartDate extracts the YYYY-MM-DD floor from an API rejection such
// as "start_date must not be earlier than 2024-06-01".
func ParseMinStartDate(message string) (string, bool) {
	_, after, found := strings.Cut(message, floorNeedle)
	if !found {
		return "", false
	}
	fields := strings.Fields(strings.TrimSpace(after))
	if len(fields) == 0 {
		return "", false
	}
	token := strings.Trim(fields[0], `"'.,}`)
	if _, err := time.Parse(time.DateOnly, token); err != nil {
		return "", false
	}
	return token, true
}
