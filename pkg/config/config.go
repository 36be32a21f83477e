// Package config loads findingscope settings from a YAML file, an optional
// .env file and FINDINGSCOPE_* environment variables, in increasing order of
// precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // timeline.location must resolve without host zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/exploopio/findingscope/pkg/aggregate"
	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/fetch"
	"github.com/exploopio/findingscope/pkg/kv"
)

// Environment variables that override file settings.
const (
	EnvSourceURL      = "FINDINGSCOPE_SOURCE_URL"
	EnvSourceFile     = "FINDINGSCOPE_SOURCE_FILE"
	EnvHistoryBackend = "FINDINGSCOPE_HISTORY_BACKEND"
	EnvHistoryPath    = "FINDINGSCOPE_HISTORY_PATH"
	EnvLogLevel       = "FINDINGSCOPE_LOG_LEVEL"
	EnvLogFormat      = "FINDINGSCOPE_LOG_FORMAT"
	EnvListen         = "FINDINGSCOPE_LISTEN"
)

// Config is the complete findingscope configuration.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Timeline TimelineConfig `yaml:"timeline"`
}

// SourceConfig selects where findings come from. URL and File are mutually
// exclusive; with neither, the built-in sample dataset is served.
type SourceConfig struct {
	URL     string        `yaml:"url"`
	File    string        `yaml:"file"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
	Watch   bool          `yaml:"watch"` // re-fetch when File changes
}

// HistoryConfig selects the recent-search persistence backend.
type HistoryConfig struct {
	Backend string `yaml:"backend"` // memory, file or sqlite
	Path    string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console or auto
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen       string `yaml:"listen"`
	RefreshRate  int    `yaml:"refresh_rate"` // manual refreshes per minute, 0 = unlimited
	RefreshBurst int    `yaml:"refresh_burst"`
}

// TimelineConfig configures day grouping and labels.
type TimelineConfig struct {
	Location string `yaml:"location"` // IANA name, default UTC
	Locale   string `yaml:"locale"`   // en or tr
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Source:   SourceConfig{Timeout: fetch.DefaultTimeout},
		History:  HistoryConfig{Backend: kv.BackendMemory},
		Log:      LogConfig{Level: "info", Format: "auto"},
		Server:   ServerConfig{Listen: "127.0.0.1:8080", RefreshRate: 6, RefreshBurst: 2},
		Timeline: TimelineConfig{Location: "UTC", Locale: "en"},
	}
}

// Load builds the configuration. path and envFile are optional; a missing
// envFile is ignored, a missing path is an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	env, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return env[key]
	})

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.E(errors.KindInvalidInput, "config.Load", "read config", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return errors.E(errors.KindInvalidInput, "config.Load", "parse config", err)
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, "config.Load", "read env file", err)
	}
	for k, v := range env {
		env[k] = strings.Trim(v, `'"`)
	}
	return env, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Source.URL, EnvSourceURL)
	set(&c.Source.File, EnvSourceFile)
	set(&c.History.Backend, EnvHistoryBackend)
	set(&c.History.Path, EnvHistoryPath)
	set(&c.Log.Level, EnvLogLevel)
	set(&c.Log.Format, EnvLogFormat)
	set(&c.Server.Listen, EnvListen)
}

func (c *Config) normalize() {
	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))
	if c.History.Backend == "" {
		c.History.Backend = kv.BackendMemory
	}
	if c.History.Path == "" && c.History.Backend != kv.BackendMemory {
		c.History.Path = DefaultHistoryPath(c.History.Backend)
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = fetch.DefaultTimeout
	}
	if c.Timeline.Location == "" {
		c.Timeline.Location = "UTC"
	}
	if c.Timeline.Locale == "" {
		c.Timeline.Locale = "en"
	}
}

// DefaultHistoryPath returns the per-user history location for backend.
func DefaultHistoryPath(backend string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	name := "history.json"
	if backend == kv.BackendSQLite {
		name = "history.db"
	}
	return filepath.Join(dir, "findingscope", name)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.E(errors.KindInvalidInput, "config.Validate", fmt.Sprintf(format, args...))
	}

	if c.Source.URL != "" && c.Source.File != "" {
		return invalid("source.url and source.file are mutually exclusive")
	}
	if c.Source.URL != "" {
		u, err := url.Parse(c.Source.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("source.url must be an http(s) URL, got %q", c.Source.URL)
		}
	}
	if c.Source.Watch && c.Source.File == "" {
		return invalid("source.watch requires source.file")
	}
	if c.Source.Retries < 0 {
		return invalid("source.retries must not be negative")
	}

	switch c.History.Backend {
	case kv.BackendMemory, kv.BackendFile, kv.BackendSQLite:
	default:
		return invalid("unknown history.backend %q", c.History.Backend)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "silent":
	default:
		return invalid("unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console", "auto":
	default:
		return invalid("unknown log.format %q", c.Log.Format)
	}

	if c.Server.RefreshRate < 0 || c.Server.RefreshBurst < 0 {
		return invalid("server.refresh_rate and server.refresh_burst must not be negative")
	}

	if _, err := time.LoadLocation(c.Timeline.Location); err != nil {
		return invalid("unknown timeline.location %q", c.Timeline.Location)
	}
	if _, ok := aggregate.Formatter(c.Timeline.Locale); !ok {
		return invalid("unsupported timeline.locale %q", c.Timeline.Locale)
	}
	return nil
}

// TimelineOptions returns the aggregation options for the timeline settings.
// The configuration must be valid.
func (c *Config) TimelineOptions() []aggregate.TimelineOption {
	loc, err := time.LoadLocation(c.Timeline.Location)
	if err != nil {
		loc = time.UTC
	}
	f, _ := aggregate.Formatter(c.Timeline.Locale)
	return []aggregate.TimelineOption{aggregate.InLocation(loc), aggregate.WithFormatter(f)}
}
