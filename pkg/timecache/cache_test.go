package timecache_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/nekopy/Tokei/pkg/db"
	"github.com/nekopy/Tokei/pkg/timecache"
	"github.com/nekopy/Tokei/pkg/timecache/mocks"
)

// dayMatcher matches a time.Time by its calendar day.
type dayMatcher string

func dayIs(day string) gomock.Matcher { return dayMatcher(day) }

func (m dayMatcher) Matches(x any) bool {
	t, ok := x.(time.Time)
	return ok && t.Format(time.DateOnly) == string(m)
}

func (m dayMatcher) String() string { return "is day " + string(m) }

func entry(desc, start string, seconds int) timecache.TimeEntry {
	return timecache.TimeEntry{Description: desc, Start: start, Duration: json.RawMessage(fmt.Sprint(seconds))}
}

type CacheTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	fetcher *mocks.MockEntryFetcher

	conn     *sql.DB
	cache    *timecache.Cache
	settings timecache.Settings
	ctx      context.Context
}

func (s *CacheTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.fetcher = mocks.NewMockEntryFetcher(s.ctrl)
	s.ctx = context.Background()

	conn, err := db.OpenMigrated(s.ctx, filepath.Join(s.T().TempDir(), "cache.sqlite"), db.CacheMigrations)
	s.Require().NoError(err)
	s.conn = conn

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.cache = timecache.New(conn, logger)
	s.settings = timecache.Settings{
		Timezone:          "UTC",
		Location:          time.UTC,
		StartDate:         "2020-01-01",
		RefreshDaysBack:   60,
		RefreshBufferDays: 2,
		ChunkDays:         7,
	}
}

func (s *CacheTestSuite) TearDownTest() {
	s.ctrl.Finish()
	s.conn.Close()
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) at(day string) time.Time {
	t, err := time.ParseInLocation(time.DateOnly, day, time.UTC)
	s.Require().NoError(err)
	return t.Add(10 * time.Hour)
}

func (s *CacheTestSuite) meta(key string) string {
	v, _, err := db.GetMeta(s.ctx, s.conn, key)
	s.Require().NoError(err)
	return v
}

func (s *CacheTestSuite) seed(day string, total int64, desc map[string]int64) {
	_, err := s.conn.Exec(`INSERT INTO toggl_daily (day, total_seconds, updated_at) VALUES (?, ?, 'x')`, day, total)
	s.Require().NoError(err)
	for d, sec := range desc {
		_, err := s.conn.Exec(`INSERT INTO toggl_daily_desc (day, description, seconds) VALUES (?, ?, ?)`, day, d, sec)
		s.Require().NoError(err)
	}
}

func (s *CacheTestSuite) seedMeta(kv map[string]string) {
	for k, v := range kv {
		s.Require().NoError(db.SetMeta(s.ctx, s.conn, k, v))
	}
}

func (s *CacheTestSuite) TestRefresh_RecoversFromAPIFloor() {
	gomock.InOrder(
		s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2020-01-01"), dayIs("2020-01-08")).
			Return(nil, &timecache.MinStartDateError{Day: "2024-06-01"}),
		s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2024-06-01"), dayIs("2024-06-04")).
			Return([]timecache.TimeEntry{
				entry("Anime", "2024-06-01T09:00:00Z", 1800),
				entry("Anime", "2024-06-03T09:00:00Z", 600),
			}, nil),
	)

	res, err := s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	s.Require().NoError(err)

	s.Equal("2024-06-01", res.Floor)
	s.Equal("2024-06-01", res.Start)
	s.Equal(3, res.Days)
	s.Equal("2024-06-01", s.meta(timecache.MetaAPIMinStartDate))
	s.Equal("2024-06-03", s.meta(timecache.MetaLastReportDay))

	sec, err := s.cache.DaySeconds(s.ctx, "2024-06-02")
	s.Require().NoError(err)
	s.Equal(int64(0), sec)

	lifetime, err := s.cache.LifetimeSeconds(s.ctx, s.settings, "2024-06-03")
	s.Require().NoError(err)
	s.Equal(int64(2400), lifetime)
}

func (s *CacheTestSuite) TestRefresh_RememberedFloorClampsStart() {
	s.seedMeta(map[string]string{
		timecache.MetaTimezone:        "UTC",
		timecache.MetaStartDate:       "2020-01-01",
		timecache.MetaAPIMinStartDate: "2024-06-01",
	})

	s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2024-06-01"), dayIs("2024-06-04")).Return(nil, nil)

	_, err := s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	s.Require().NoError(err)
}

func (s *CacheTestSuite) TestRefresh_FloorThatDoesNotAdvanceIsFatal() {
	s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2020-01-01"), gomock.Any()).
		Return(nil, &timecache.MinStartDateError{Day: "2019-01-01"})

	_, err := s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	var apiErr *timecache.APIError
	s.Require().ErrorAs(err, &apiErr)
	s.Empty(s.meta(timecache.MetaLastReportDay))
}

func (s *CacheTestSuite) TestRefresh_EmptyDayIsZeroed() {
	s.seedMeta(map[string]string{
		timecache.MetaTimezone:      "UTC",
		timecache.MetaStartDate:     "2020-01-01",
		timecache.MetaLastReportDay: "2024-06-03",
	})
	s.seed("2024-06-03", 500, map[string]int64{"Reading": 500})

	// Gap 0 + buffer 2: today and yesterday.
	s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2024-06-02"), dayIs("2024-06-04")).Return([]timecache.TimeEntry{}, nil)

	_, err := s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	s.Require().NoError(err)

	sec, err := s.cache.DaySeconds(s.ctx, "2024-06-03")
	s.Require().NoError(err)
	s.Equal(int64(0), sec)

	rows, err := s.cache.Breakdown(s.ctx, "2024-06-03")
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *CacheTestSuite) TestRefresh_AdaptiveWindowCoversGap() {
	s.seedMeta(map[string]string{
		timecache.MetaTimezone:      "UTC",
		timecache.MetaStartDate:     "2020-01-01",
		timecache.MetaLastReportDay: "2024-05-24",
	})
	s.seed("2024-05-24", 100, nil)

	// Gap 10 + buffer 2 = 12 days: 05-23 through 06-03 in two chunks.
	gomock.InOrder(
		s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2024-05-23"), dayIs("2024-05-30")).Return(nil, nil),
		s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2024-05-30"), dayIs("2024-06-04")).Return(nil, nil),
	)

	res, err := s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	s.Require().NoError(err)
	s.Equal(12, res.Days)
	s.Equal(2, res.Chunks)
}

func (s *CacheTestSuite) TestRefresh_FallsBackToLastSnapshotDay() {
	s.seedMeta(map[string]string{
		timecache.MetaTimezone:  "UTC",
		timecache.MetaStartDate: "2020-01-01",
	})
	s.seed("2024-06-01", 100, nil)
	_, err := s.conn.Exec(`INSERT INTO snapshots (generated_at, report_day, timezone, theme, toggl_lifetime_seconds,
		toggl_today_seconds, toggl_today_breakdown_json, known_lemmas, known_inflections, anki_total_reviews,
		anki_reviews, anki_true_retention) VALUES ('x', '2024-06-02', 'UTC', 't', 0, 0, '[]', 0, 0, 0, 0, 0)`)
	s.Require().NoError(err)

	// Gap 1 + buffer 2 = 3 days.
	s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2024-06-01"), dayIs("2024-06-04")).Return(nil, nil)

	_, err = s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	s.Require().NoError(err)
}

func (s *CacheTestSuite) TestRefresh_AutoStartRecordsBaselineOnce() {
	s.settings.StartDate = timecache.AutoStart
	s.settings.BaselineSeconds = 36000

	s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2024-06-03"), dayIs("2024-06-04")).
		Return([]timecache.TimeEntry{entry("", "2024-06-03T01:00:00Z", 900)}, nil)

	_, err := s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	s.Require().NoError(err)

	s.Equal("2024-06-02", s.meta(timecache.MetaBaselineThrough))
	s.Equal("2024-06-03", s.meta(timecache.MetaCacheStartDay))

	lifetime, err := s.cache.LifetimeSeconds(s.ctx, s.settings, "2024-06-03")
	s.Require().NoError(err)
	s.Equal(int64(36900), lifetime)

	rows, err := s.cache.Breakdown(s.ctx, "2024-06-03")
	s.Require().NoError(err)
	s.Equal([]timecache.DescSeconds{{Description: timecache.NoDescription, Seconds: 900}}, rows)

	// Next day: the cache exists, so the adaptive window applies (gap 1 +
	// buffer 2) and the baseline is left untouched.
	s.fetcher.EXPECT().TimeEntries(gomock.Any(), dayIs("2024-06-02"), dayIs("2024-06-05")).Return(nil, nil)
	_, err = s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-04"))
	s.Require().NoError(err)
	s.Equal("2024-06-02", s.meta(timecache.MetaBaselineThrough))
	s.Equal("2024-06-03", s.meta(timecache.MetaCacheStartDay))
}

func (s *CacheTestSuite) TestRefresh_TimezoneChangeInvalidates() {
	s.seedMeta(map[string]string{
		timecache.MetaTimezone:        "Asia/Tokyo",
		timecache.MetaStartDate:       "2020-01-01",
		timecache.MetaAPIMinStartDate: "2024-06-01",
		timecache.MetaLastReportDay:   "2024-06-03",
	})
	s.seed("2019-12-31", 999, map[string]int64{"Old": 999})

	// Cache is empty after invalidation, so the whole history from the start date is fetched.
	s.fetcher.EXPECT().TimeEntries(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	res, err := s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	s.Require().NoError(err)
	s.True(res.Invalidated)
	s.Equal("2020-01-01", res.Start)
	s.Equal("UTC", s.meta(timecache.MetaTimezone))
	s.Empty(s.meta(timecache.MetaAPIMinStartDate))

	sec, err := s.cache.DaySeconds(s.ctx, "2019-12-31")
	s.Require().NoError(err)
	s.Equal(int64(0), sec)
}

func (s *CacheTestSuite) TestRefresh_APIErrorRollsBack() {
	s.seedMeta(map[string]string{
		timecache.MetaTimezone:      "UTC",
		timecache.MetaStartDate:     "2020-01-01",
		timecache.MetaLastReportDay: "2024-06-01",
	})
	s.seed("2024-06-01", 100, nil)

	s.fetcher.EXPECT().TimeEntries(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &timecache.APIError{Status: 500, Body: "boom"})

	_, err := s.cache.Refresh(s.ctx, s.fetcher, s.settings, s.at("2024-06-03"))
	s.Require().Error(err)
	var apiErr *timecache.APIError
	s.True(errors.As(err, &apiErr))
	s.Equal("2024-06-01", s.meta(timecache.MetaLastReportDay))
}

func (s *CacheTestSuite) TestSecondsBetween() {
	s.seed("2024-06-01", 100, nil)
	s.seed("2024-06-02", 200, nil)
	s.seed("2024-06-05", 500, nil)

	got, err := s.cache.SecondsBetween(s.ctx, "2024-06-01", "2024-06-04")
	s.Require().NoError(err)
	s.Equal(map[string]int64{"2024-06-01": 100, "2024-06-02": 200}, got)
}
