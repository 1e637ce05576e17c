package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nekopy/Tokei/pkg/config"
	"github.com/nekopy/Tokei/pkg/db"
	"github.com/nekopy/Tokei/pkg/lemmatize"
	"github.com/nekopy/Tokei/pkg/live"
	"github.com/nekopy/Tokei/pkg/report"
	"github.com/nekopy/Tokei/pkg/timecache"
)

// Exit codes.
const (
	exitOK               = 0
	exitError            = 1
	exitAlreadyGenerated = 2
	exitConfig           = 3
	exitAPI              = 4
)

var (
	configPath     string
	allowSameDay   bool
	overwriteToday bool
	rebuildLemmas  bool
	lexemesOnly    bool
	liveURL        string
)

var rootCmd = &cobra.Command{
	Use:           "tokei",
	Short:         "tokei - daily immersion and vocabulary report",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Manage the live session overlay",
}

var liveImportCmd = &cobra.Command{
	Use:   "import [today-stats.json]",
	Short: "Import GSM today-stats sessions into the live overlay",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLiveImport,
}

// alreadyGeneratedError carries the refusal payload to main.
type alreadyGeneratedError struct {
	payload []byte
}

func (e *alreadyGeneratedError) Error() string { return "report already generated for today" }

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	rootCmd.Flags().BoolVar(&allowSameDay, "allow-same-day", false, "Append another report for today")
	rootCmd.Flags().BoolVar(&overwriteToday, "overwrite-today", false, "Replace today's latest report")
	rootCmd.Flags().BoolVar(&rebuildLemmas, "rebuild-lemmas", false, "Rebuild the lemma index from scratch")
	rootCmd.Flags().BoolVar(&lexemesOnly, "lexemes-only", false, "Only refresh the lexeme store")
	liveImportCmd.Flags().StringVar(&liveURL, "url", live.DefaultTodayStatsURL, "today-stats endpoint used when no file is given")

	liveCmd.AddCommand(liveImportCmd)
	rootCmd.AddCommand(liveCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	var already *alreadyGeneratedError
	if errors.As(err, &already) {
		fmt.Fprintln(os.Stdout, string(already.payload))
	} else if err != nil {
		fmt.Fprintln(os.Stderr, "tokei:", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var (
		already *alreadyGeneratedError
		cfgErr  *config.ConfigError
		apiErr  *timecache.APIError
		authErr *timecache.AuthError
		minErr  *timecache.MinStartDateError
	)
	switch {
	case errors.As(err, &already):
		return exitAlreadyGenerated
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &authErr), errors.As(err, &apiErr), errors.As(err, &minErr):
		return exitAPI
	}
	return exitError
}

func setupLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler)
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := setupLogger(cfg.SlogLevel())
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	opts := report.Options{
		AllowSameDay:   allowSameDay,
		OverwriteToday: overwriteToday,
		RebuildLemmas:  rebuildLemmas,
		LexemesOnly:    lexemesOnly,
	}

	var token string
	if !opts.LexemesOnly {
		token, err = cfg.Token()
		if err != nil {
			return err
		}
	}

	lemmatizer, err := lemmatize.NewKagome()
	if err != nil {
		return fmt.Errorf("load tokenizer dictionary: %w", err)
	}

	runner := &report.Runner{
		Config:     cfg,
		Lemmatizer: lemmatizer,
		API: timecache.NewClient(timecache.ClientConfig{
			BaseURL: cfg.Toggl.BaseURL,
			Token:   token,
			Timeout: cfg.Toggl.Timeout,
		}, logger),
		Logger: logger,
	}
	out, err := runner.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return printOutcome(cmd.OutOrStdout(), out)
}

func printOutcome(w io.Writer, out *report.Outcome) error {
	switch out.Status {
	case report.StatusAlreadyGenerated:
		payload, err := json.Marshal(out.Existing)
		if err != nil {
			return err
		}
		return &alreadyGeneratedError{payload: payload}
	case report.StatusLexemesOnly:
		fmt.Fprintln(w, "Lexeme store refreshed.")
	default:
		fmt.Fprintln(w, out.ReportPath)
	}
	return nil
}

func runLiveImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var sessions []live.Session
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open today-stats: %w", err)
		}
		defer f.Close()
		sessions, err = live.ParseTodayStats(f)
		if err != nil {
			return err
		}
	} else {
		sessions, err = live.FetchTodayStats(ctx, nil, liveURL)
		if err != nil {
			return err
		}
	}

	conn, err := db.OpenMigrated(ctx, cfg.Sources.LiveDB, db.LiveMigrations)
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := live.NewStore(conn, cfg.Location(logger)).Import(ctx, sessions)
	if err != nil {
		return err
	}
	logger.Info("live sessions imported", "sessions", n, "db", cfg.Sources.LiveDB)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d session(s).\n", n)
	return nil
}
