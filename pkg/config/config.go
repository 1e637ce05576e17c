// Package config loads the YAML configuration of a tokei run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TokenEnv  = "TOGGL_API_TOKEN"
	TokenFile = "toggl-token.txt"
	// RollupAuto resolves the rollup database under %APPDATA%.
	RollupAuto = "auto"
	RollupOff  = "off"
)

// ConfigError is a malformed or incomplete configuration.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return "config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

type Config struct {
	Timezone    string        `yaml:"timezone"`
	Theme       string        `yaml:"theme"`
	OnePage     *bool         `yaml:"one_page"`
	CacheDir    string        `yaml:"cache_dir"`
	OutputPath  string        `yaml:"output_path"`
	LogLevel    string        `yaml:"log_level"`
	AnkiProfile string        `yaml:"anki_profile"`
	Toggl       TogglConfig   `yaml:"toggl"`
	Lexemes     LexemeConfig  `yaml:"lexemes"`
	Sources     SourcesConfig `yaml:"sources"`

	// Dir is the directory of the loaded file; relative paths resolve against it.
	Dir string `yaml:"-"`
	// Warnings collects non-fatal issues found while resolving defaults.
	Warnings []string `yaml:"-"`
}

type TogglConfig struct {
	BaseURL           string        `yaml:"base_url"`
	StartDate         string        `yaml:"start_date"`
	RefreshDaysBack   int           `yaml:"refresh_days_back"`
	RefreshBufferDays *int          `yaml:"refresh_buffer_days"`
	ChunkDays         int           `yaml:"chunk_days"`
	BaselineHours     float64       `yaml:"baseline_hours"`
	Timeout           time.Duration `yaml:"timeout"`
}

type LexemeConfig struct {
	ExportDB  string   `yaml:"export_db"`
	RuleID    string   `yaml:"rule_id"`
	FlatFiles []string `yaml:"flat_files"`
}

type SourcesConfig struct {
	RetentionJSON     string `yaml:"retention_json"`
	AnkiMorphsDB      string `yaml:"ankimorphs_db"`
	KnownIntervalDays int    `yaml:"known_interval_days"`
	MokuroVolumeData  string `yaml:"mokuro_volume_data"`
	RollupDB          string `yaml:"rollup_db"`
	LiveDB            string `yaml:"live_db"`
	ArticlesDir       string `yaml:"articles_dir"`
}

// Load reads path, expands ${ENV} references (after loading .env when
// present), applies defaults and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: "read config file", Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, &ConfigError{Msg: "resolve config dir", Err: err}
	}
	cfg.Dir = abs
	cfg.resolvePaths()
	return cfg, nil
}

// Parse decodes YAML content without touching the filesystem. Paths stay
// relative until resolved by Load.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, &ConfigError{Msg: "parse config", Err: err}
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Timezone == "" {
		c.Timezone = "local"
	}
	if c.Theme == "" {
		c.Theme = "midnight"
	}
	if c.OnePage == nil {
		v := true
		c.OnePage = &v
	}
	if c.CacheDir == "" {
		c.CacheDir = "cache"
	}
	if c.OutputPath == "" {
		c.OutputPath = filepath.Join(c.CacheDir, "latest_stats.json")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Toggl.BaseURL == "" {
		c.Toggl.BaseURL = "https://api.track.toggl.com/api/v9"
	}
	if c.Toggl.StartDate == "" {
		c.Toggl.StartDate = "auto"
	}
	if c.Toggl.RefreshDaysBack == 0 {
		c.Toggl.RefreshDaysBack = 60
	}
	if c.Toggl.RefreshBufferDays == nil {
		v := 2
		c.Toggl.RefreshBufferDays = &v
	}
	if c.Toggl.ChunkDays == 0 {
		c.Toggl.ChunkDays = 7
	}
	if c.Toggl.Timeout == 0 {
		c.Toggl.Timeout = 30 * time.Second
	}
	c.Lexemes.RuleID = strings.TrimSpace(c.Lexemes.RuleID)
	if c.Lexemes.RuleID == "" {
		c.Lexemes.RuleID = "default"
	}
	if c.Lexemes.FlatFiles == nil {
		c.Lexemes.FlatFiles = []string{"known.csv"}
	}
	if c.Sources.KnownIntervalDays == 0 {
		c.Sources.KnownIntervalDays = 21
	}
	if c.Sources.RollupDB == "" {
		c.Sources.RollupDB = RollupAuto
	}
	if c.Sources.LiveDB == "" {
		c.Sources.LiveDB = filepath.Join(c.CacheDir, "gsm_live.sqlite")
	}
	if c.Sources.AnkiMorphsDB == "" && c.AnkiProfile != "" {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			c.Sources.AnkiMorphsDB = filepath.Join(appdata, "Anki2", c.AnkiProfile, "ankimorphs.db")
		}
	}
	if strings.EqualFold(c.Sources.RollupDB, RollupAuto) {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			c.Sources.RollupDB = filepath.Join(appdata, "GameSentenceMiner", "gsm.db")
		} else {
			c.Sources.RollupDB = RollupOff
			c.Warnings = append(c.Warnings, "Could not read GSM chars: APPDATA is not set.")
		}
	}
}

// Validate rejects values no run could use.
func (c *Config) Validate() error {
	if c.Toggl.StartDate != "auto" {
		if _, err := time.Parse(time.DateOnly, c.Toggl.StartDate); err != nil {
			return &ConfigError{Msg: fmt.Sprintf("toggl.start_date %q is neither auto nor YYYY-MM-DD", c.Toggl.StartDate), Err: err}
		}
	}
	if c.Toggl.ChunkDays < 1 {
		return &ConfigError{Msg: fmt.Sprintf("toggl.chunk_days must be positive, got %d", c.Toggl.ChunkDays)}
	}
	if c.Toggl.RefreshDaysBack < 1 {
		return &ConfigError{Msg: fmt.Sprintf("toggl.refresh_days_back must be positive, got %d", c.Toggl.RefreshDaysBack)}
	}
	if *c.Toggl.RefreshBufferDays < 0 {
		return &ConfigError{Msg: fmt.Sprintf("toggl.refresh_buffer_days must not be negative, got %d", *c.Toggl.RefreshBufferDays)}
	}
	if c.Toggl.BaselineHours < 0 {
		return &ConfigError{Msg: "toggl.baseline_hours must not be negative"}
	}
	if c.Toggl.Timeout < 0 {
		return &ConfigError{Msg: "toggl.timeout must not be negative"}
	}
	if c.Sources.KnownIntervalDays < 0 {
		return &ConfigError{Msg: "sources.known_interval_days must not be negative"}
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return &ConfigError{Msg: fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel)}
	}
	return nil
}

func (c *Config) resolvePaths() {
	resolve := func(p *string) {
		if *p == "" || strings.EqualFold(*p, RollupOff) || filepath.IsAbs(*p) {
			return
		}
		*p = filepath.Join(c.Dir, *p)
	}
	resolve(&c.CacheDir)
	resolve(&c.OutputPath)
	resolve(&c.Lexemes.ExportDB)
	for i := range c.Lexemes.FlatFiles {
		resolve(&c.Lexemes.FlatFiles[i])
	}
	resolve(&c.Sources.RetentionJSON)
	resolve(&c.Sources.AnkiMorphsDB)
	resolve(&c.Sources.MokuroVolumeData)
	resolve(&c.Sources.RollupDB)
	resolve(&c.Sources.LiveDB)
	resolve(&c.Sources.ArticlesDir)
}

// CacheDB is the time cache and snapshot database.
func (c *Config) CacheDB() string { return filepath.Join(c.CacheDir, "tokei_cache.sqlite") }

// WordsDB is the lexeme store.
func (c *Config) WordsDB() string { return filepath.Join(c.CacheDir, "tokei_words.sqlite") }

// BaselineSeconds converts the configured baseline hours.
func (c *Config) BaselineSeconds() int64 {
	return int64(c.Toggl.BaselineHours*3600 + 0.5)
}

// Location resolves the configured timezone. Unknown names fall back to the
// local zone with a warning.
func (c *Config) Location(logger *slog.Logger) *time.Location {
	if strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("unknown timezone, using local", "timezone", c.Timezone, "error", err)
		return time.Local
	}
	return loc
}

// Token returns the Toggl API token from the environment or from the token
// file next to the config.
func (c *Config) Token() (string, error) {
	if v := strings.TrimSpace(os.Getenv(TokenEnv)); v != "" {
		return v, nil
	}
	b, err := os.ReadFile(filepath.Join(c.Dir, TokenFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", &ConfigError{Msg: "read " + TokenFile, Err: err}
	}
	if v := strings.TrimSpace(strings.TrimPrefix(string(b), "\ufeff")); v != "" {
		return v, nil
	}
	return "", &ConfigError{Msg: "No Toggl API token found. Set " + TokenEnv + " or create " + TokenFile + "."}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
