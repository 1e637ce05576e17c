// Package report runs one sync and produces the report of the day.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nekopy/Tokei/pkg/config"
	"github.com/nekopy/Tokei/pkg/db"
	"github.com/nekopy/Tokei/pkg/ingest"
	"github.com/nekopy/Tokei/pkg/ledger"
	"github.com/nekopy/Tokei/pkg/lexeme"
	"github.com/nekopy/Tokei/pkg/live"
	"github.com/nekopy/Tokei/pkg/reconcile"
	"github.com/nekopy/Tokei/pkg/sources"
	"github.com/nekopy/Tokei/pkg/timecache"
)

// Run statuses.
const (
	StatusOK               = "ok"
	StatusAlreadyGenerated = "already_generated"
	StatusLexemesOnly      = "lexemes_only"
)

// API is the remote time-tracking service.
type API interface {
	timecache.EntryFetcher
	Me(ctx context.Context) (*timecache.User, error)
}

// Options are the per-run switches.
type Options struct {
	AllowSameDay   bool
	OverwriteToday bool
	RebuildLemmas  bool
	LexemesOnly    bool
}

// Outcome is the result of a run. Existing is set when the day already has
// a report and the run was refused.
type Outcome struct {
	Status     string
	RunID      int64
	ReportPath string
	Report     *Report
	Existing   *ledger.AlreadyGenerated
}

// Runner wires the stores and sources of one run.
type Runner struct {
	Config     *config.Config
	Lemmatizer lexeme.Lemmatizer
	API        API
	Logger     *slog.Logger
	Now        func() time.Time
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run refreshes the lexeme store, then the time cache, reads every source,
// writes a snapshot and the report file. Each stage sees the state left by
// the one before.
func (r *Runner) Run(ctx context.Context, opts Options) (*Outcome, error) {
	cfg := r.Config
	logger := r.logger().With("component", "report")
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	loc := cfg.Location(logger)
	current := now().In(loc)
	today := db.Day(current)

	warnings := append([]string{}, cfg.Warnings...)

	knownLexemes, lexWarnings, err := r.refreshLexemes(ctx, today, opts)
	if err != nil {
		if opts.LexemesOnly {
			return nil, err
		}
		logger.Warn("lexeme refresh skipped", "error", err)
		lexWarnings = append(lexWarnings, fmt.Sprintf("Lexeme refresh skipped: %v.", err))
	}
	warnings = append(warnings, lexWarnings...)
	if opts.LexemesOnly {
		return &Outcome{Status: StatusLexemesOnly}, nil
	}

	if _, err := r.API.Me(ctx); err != nil {
		return nil, err
	}

	conn, err := db.OpenMigrated(ctx, cfg.CacheDB(), db.CacheMigrations)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	lg := ledger.New(conn)

	existing, err := lg.Guard(ctx, today, ledger.Mode{AllowSameDay: opts.AllowSameDay, OverwriteToday: opts.OverwriteToday})
	var already *ledger.AlreadyGenerated
	if errors.As(err, &already) {
		logger.Info("report already generated", "run_id", already.RunID, "day", today)
		return &Outcome{Status: StatusAlreadyGenerated, RunID: already.RunID, Existing: already}, nil
	}
	if err != nil {
		return nil, err
	}

	settings := timecache.Settings{
		Timezone:          cfg.Timezone,
		Location:          loc,
		StartDate:         cfg.Toggl.StartDate,
		BaselineSeconds:   cfg.BaselineSeconds(),
		RefreshDaysBack:   cfg.Toggl.RefreshDaysBack,
		RefreshBufferDays: *cfg.Toggl.RefreshBufferDays,
		ChunkDays:         cfg.Toggl.ChunkDays,
	}
	cache := timecache.New(conn, r.logger())
	if _, err := cache.Refresh(ctx, r.API, settings, current); err != nil {
		return nil, err
	}

	lifetime, err := cache.LifetimeSeconds(ctx, settings, today)
	if err != nil {
		return nil, err
	}
	todaySeconds, err := cache.DaySeconds(ctx, today)
	if err != nil {
		return nil, err
	}
	breakdown, err := cache.Breakdown(ctx, today)
	if err != nil {
		return nil, err
	}

	liveByDay, err := r.liveTotals(ctx, loc)
	if err != nil {
		logger.Warn("live overlay unavailable", "error", err)
		warnings = append(warnings, fmt.Sprintf("Live session overlay skipped: %v.", err))
	}
	collector := &sources.Collector{
		Paths: sources.Paths{
			RetentionJSON:     cfg.Sources.RetentionJSON,
			AnkiMorphsDB:      cfg.Sources.AnkiMorphsDB,
			KnownIntervalDays: cfg.Sources.KnownIntervalDays,
			MokuroVolumeData:  cfg.Sources.MokuroVolumeData,
			RollupDB:          cfg.Sources.RollupDB,
			ArticlesDir:       cfg.Sources.ArticlesDir,
		},
		Rollup: reconcile.RollupReader{Location: loc},
		Logger: r.logger().With("component", "sources"),
	}
	metrics, err := collector.Collect(ctx, liveByDay)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, collector.Warnings...)

	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, err
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, err
	}
	values := ledger.Values{
		GeneratedAt:      current.Format(time.RFC3339),
		ReportDay:        today,
		Timezone:         cfg.Timezone,
		Theme:            cfg.Theme,
		WarningsJSON:     string(warningsJSON),
		BreakdownJSON:    string(breakdownJSON),
		LifetimeSeconds:  lifetime,
		TodaySeconds:     todaySeconds,
		KnownLemmas:      metrics.KnownLemmas,
		KnownInflections: metrics.KnownInflections,
		KnownLexemes:     knownLexemes,
		CardsStudied:     metrics.Retention.CardsStudied,
		Reviews:          metrics.Retention.Reviews,
		TrueRetention:    metrics.Retention.TrueRetention,
		MangaChars:       metrics.MangaChars,
		GSMChars:         metrics.GSMChars,
		ArticleChars:     metrics.ArticleChars,
	}

	var exclude *int64
	if opts.OverwriteToday && existing != nil {
		exclude = &existing.RunID
	}
	deltas, _, err := lg.DeltasAgainstPrevious(ctx, values, exclude)
	if err != nil {
		return nil, err
	}

	firstDay, err := lg.FirstReportDay(ctx)
	if err != nil {
		return nil, err
	}
	var byDay map[string]int64
	if firstDay != "" {
		if byDay, err = cache.SecondsBetween(ctx, firstDay, today); err != nil {
			return nil, err
		}
	}
	immersionLog, avg, avgDelta := ImmersionWindows(firstDay, current, todaySeconds, byDay, AvgWindowDays)

	var runID int64
	if exclude != nil {
		runID = *exclude
		err = lg.Overwrite(ctx, runID, values)
	} else {
		runID, err = lg.Append(ctx, values)
	}
	if err != nil {
		return nil, err
	}

	rep := &Report{
		ReportNo:                 runID,
		GeneratedLabel:           GeneratedLabel(current),
		Theme:                    cfg.Theme,
		OnePage:                  *cfg.OnePage,
		Warnings:                 warnings,
		TotalImmersionHours:      float64(lifetime) / 3600,
		TotalImmersionDeltaHours: deltas.LifetimeHours,
		KnownWords:               metrics.KnownLemmas,
		KnownWordsDelta:          deltas.KnownLemmas,
		KnownInflections:         metrics.KnownInflections,
		KnownInflectionsDelta:    deltas.KnownInflections,
		KnownLexemes:             knownLexemes,
		KnownLexemesDelta:        deltas.KnownLexemes,
		TodayImmersion:           TodayImmersion{TotalSeconds: todaySeconds, Entries: breakdown},
		AvgImmersionSeconds:      avg,
		AvgImmersionDeltaSeconds: avgDelta,
		RetentionRate:            metrics.Retention.TrueRetention * 100,
		RetentionDelta:           deltas.RetentionPoints,
		TotalReviews:             metrics.Retention.CardsStudied,
		TotalReviewsDelta:        deltas.CardsStudied,
		MangaCharsTotal:          metrics.MangaChars,
		MangaCharsDelta:          deltas.MangaChars,
		GSMCharsTotal:            metrics.GSMChars,
		GSMCharsDelta:            deltas.GSMChars,
		ArticleCharsTotal:        metrics.ArticleChars,
		ArticleCharsDelta:        deltas.ArticleChars,
		ImmersionLog:             immersionLog,
	}
	if err := WriteJSON(cfg.OutputPath, rep); err != nil {
		return nil, err
	}

	logger.Info("report generated", "run_id", runID, "day", today, "warnings", len(warnings), "path", cfg.OutputPath)
	return &Outcome{Status: StatusOK, RunID: runID, ReportPath: cfg.OutputPath, Report: rep}, nil
}

// refreshLexemes runs the lexeme producers and links pending lemmas. It
// returns the number of stored lexemes.
func (r *Runner) refreshLexemes(ctx context.Context, today string, opts Options) (int64, []string, error) {
	cfg := r.Config
	logger := r.logger()

	conn, err := db.OpenMigrated(ctx, cfg.WordsDB(), db.WordsMigrations)
	if err != nil {
		return 0, nil, err
	}
	defer conn.Close()

	res, err := ingest.Refresh(ctx, conn, ingest.Options{
		ExportDB:  cfg.Lexemes.ExportDB,
		RuleID:    cfg.Lexemes.RuleID,
		FlatFiles: cfg.Lexemes.FlatFiles,
		Today:     today,
		Logger:    logger,
	})
	if err != nil {
		return 0, res.Warnings, err
	}
	warnings := res.Warnings

	store := lexeme.NewStore(conn)
	pending, err := store.CountPending(ctx)
	if err != nil {
		return 0, warnings, err
	}
	if opts.RebuildLemmas || pending > 0 {
		if r.Lemmatizer == nil {
			warnings = append(warnings, fmt.Sprintf("%d lexeme(s) have no lemma: no lemmatizer available.", pending))
		} else {
			var linked int
			err := db.WithTx(ctx, conn, func(tx *sql.Tx) error {
				var err error
				linked, err = lexeme.NewStore(tx).BuildLemmas(ctx, r.Lemmatizer, opts.RebuildLemmas)
				return err
			})
			if err != nil {
				return 0, warnings, fmt.Errorf("build lemmas: %w", err)
			}
			logger.Info("lemmas linked", "component", "lexeme", "linked", linked, "rebuild", opts.RebuildLemmas)
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		return 0, warnings, err
	}
	return int64(n), warnings, nil
}

func (r *Runner) liveTotals(ctx context.Context, loc *time.Location) (map[string]int64, error) {
	path := r.Config.Sources.LiveDB
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	conn, err := db.OpenMigrated(ctx, path, db.LiveMigrations)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return live.NewStore(conn, loc).TotalsByDay(ctx)
}

// WriteJSON writes v as indented UTF-8 JSON, creating the parent directory.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
