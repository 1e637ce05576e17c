package report

import (
	"fmt"
	"time"

	"github.com/nekopy/Tokei/pkg/timecache"
)

// Report is the JSON document a run produces.
type Report struct {
	ReportNo                 int64                   `json:"report_no"`
	GeneratedLabel           string                  `json:"generated_label"`
	Theme                    string                  `json:"theme"`
	OnePage                  bool                    `json:"one_page"`
	Warnings                 []string                `json:"warnings"`
	TotalImmersionHours      float64                 `json:"total_immersion_hours"`
	TotalImmersionDeltaHours float64                 `json:"total_immersion_delta_hours"`
	KnownWords               int64                   `json:"known_words"`
	KnownWordsDelta          int64                   `json:"known_words_delta"`
	KnownInflections         int64                   `json:"known_inflections"`
	KnownInflectionsDelta    int64                   `json:"known_inflections_delta"`
	KnownLexemes             int64                   `json:"known_lexemes"`
	KnownLexemesDelta        int64                   `json:"known_lexemes_delta"`
	TodayImmersion           TodayImmersion          `json:"today_immersion"`
	AvgImmersionSeconds      int64                   `json:"avg_immersion_seconds"`
	AvgImmersionDeltaSeconds int64                   `json:"avg_immersion_delta_seconds"`
	RetentionRate            float64                 `json:"retention_rate"`
	RetentionDelta           float64                 `json:"retention_delta"`
	TotalReviews             int64                   `json:"total_reviews"`
	TotalReviewsDelta        int64                   `json:"total_reviews_delta"`
	MangaCharsTotal          int64                   `json:"manga_chars_total"`
	MangaCharsDelta          int64                   `json:"manga_chars_delta"`
	GSMCharsTotal            int64                   `json:"gsm_chars_total"`
	GSMCharsDelta            int64                   `json:"gsm_chars_delta"`
	ArticleCharsTotal        int64                   `json:"article_chars_total"`
	ArticleCharsDelta        int64                   `json:"article_chars_delta"`
	ImmersionLog             []LogCell               `json:"immersion_log"`
}

// TodayImmersion is today's tracked time with its per-description breakdown.
type TodayImmersion struct {
	TotalSeconds int64                   `json:"total_seconds"`
	Entries      []timecache.DescSeconds `json:"entries"`
}

// LogCell is one calendar day of the immersion heatmap.
type LogCell struct {
	Label string  `json:"label"`
	Hours float64 `json:"hours"`
}

// GeneratedLabel formats now as "October 19th 2026 at 09:05".
func GeneratedLabel(now time.Time) string {
	return fmt.Sprintf("%s %d%s %d at %02d:%02d",
		now.Month(), now.Day(), ordinalSuffix(now.Day()), now.Year(), now.Hour(), now.Minute())
}

func ordinalSuffix(day int) string {
	if k := day % 100; k >= 11 && k <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// AvgWindowDays is the trailing window of the immersion average.
const AvgWindowDays = 7

// ImmersionWindows builds the heatmap from firstDay through today and the
// average of non-zero days over the trailing window compared with the window
// before it. todaySeconds overrides whatever byDay holds for today. Without a
// first report day the log is a single cell for today.
func ImmersionWindows(firstDay string, today time.Time, todaySeconds int64, byDay map[string]int64, window int) (log []LogCell, avg, delta int64) {
	end := civil(today)
	if firstDay == "" {
		return []LogCell{{Label: end.Format("Jan 2"), Hours: float64(todaySeconds) / 3600}}, todaySeconds, 0
	}
	start, err := time.Parse(time.DateOnly, firstDay)
	if err != nil {
		return []LogCell{}, 0, 0
	}

	seconds := make(map[string]int64, len(byDay)+1)
	for d, s := range byDay {
		seconds[d] = s
	}
	seconds[end.Format(time.DateOnly)] = todaySeconds

	log = []LogCell{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		log = append(log, LogCell{Label: d.Format("Jan 2"), Hours: float64(seconds[d.Format(time.DateOnly)]) / 3600})
	}

	if window < 1 {
		window = 1
	}
	recentStart := end.AddDate(0, 0, -(window - 1))
	prevStart := recentStart.AddDate(0, 0, -window)
	prevEnd := recentStart.AddDate(0, 0, -1)

	cur := nonZeroMean(seconds, recentStart, end)
	prev := nonZeroMean(seconds, prevStart, prevEnd)
	return log, cur, cur - prev
}

func nonZeroMean(seconds map[string]int64, from, to time.Time) int64 {
	var sum, n int64
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if s := seconds[d.Format(time.DateOnly)]; s > 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// civil drops the clock and zone so day arithmetic ignores DST.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
