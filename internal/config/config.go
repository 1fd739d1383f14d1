package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server  ServerConfig  `toml:"server"`  // HTTP server settings
	Logging LoggingConfig `toml:"logging"` // Application logging settings
	Storage StorageConfig `toml:"storage"` // Settings and recent-track persistence
	Speech  SpeechConfig  `toml:"speech"`  // Speech recognition session defaults
	Metrics MetricsConfig `toml:"metrics"` // Prometheus exposition
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (127.0.0.1 keeps the HUD local)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // Origins allowed for CORS and websocket upgrades (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory holding the HUD page (e.g., "www")
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// Settings backends
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// StorageConfig contains persistence settings
type StorageConfig struct {
	SettingsBackend   string `toml:"settings_backend"`    // Key-value backend for settings: "sqlite", "badger" or "memory"
	SQLitePath        string `toml:"sqlite_path"`         // SQLite database file (settings and recent tracks)
	BadgerDir         string `toml:"badger_dir"`          // Badger directory, used when settings_backend = "badger"
	RecentTracksLimit int    `toml:"recent_tracks_limit"` // Default number of tracks returned by /tracks/recent
}

// SpeechConfig contains speech recognition defaults
type SpeechConfig struct {
	DefaultLocale    string   `toml:"default_locale"`    // Language used when the page reports none (IETF tag)
	FallbackLocales  []string `toml:"fallback_locales"`  // Language list used when the page reports no preferences
	Continuous       *bool    `toml:"continuous"`        // Ask the recognizer for continuous results (default true)
	InterimResults   *bool    `toml:"interim_results"`   // Ask the recognizer for interim results (default true)
	DefaultListening *bool    `toml:"default_listening"` // Listen on first start when no intent is saved (default true)
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`   // Expose metrics over HTTP
	Namespace string `toml:"namespace"` // Metric name prefix
	Path      string `toml:"path"`      // HTTP path of the exposition endpoint
}

// ContinuousEnabled reports the effective continuous flag
func (s SpeechConfig) ContinuousEnabled() bool { return boolOr(s.Continuous, true) }

// InterimResultsEnabled reports the effective interim-results flag
func (s SpeechConfig) InterimResultsEnabled() bool { return boolOr(s.InterimResults, true) }

// ListeningByDefault reports the effective default listening intent
func (s SpeechConfig) ListeningByDefault() bool { return boolOr(s.DefaultListening, true) }

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSpeech(); err != nil {
		return err
	}
	c.validateMetrics()
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	portsSeen := map[int]bool{c.Server.Port: true}
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}

	// Set default static files directory if not specified
	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "www"
	}
	if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
		return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.SettingsBackend == "" {
		c.Storage.SettingsBackend = BackendSQLite
	}
	switch c.Storage.SettingsBackend {
	case BackendSQLite, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("invalid settings_backend: %s (must be sqlite, badger or memory)", c.Storage.SettingsBackend)
	}

	// recent tracks always live in SQLite
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/co-hud.db"
	}
	if c.Storage.SettingsBackend == BackendBadger && c.Storage.BadgerDir == "" {
		c.Storage.BadgerDir = "data/settings"
	}
	if c.Storage.RecentTracksLimit < 0 {
		return fmt.Errorf("invalid recent_tracks_limit: %d", c.Storage.RecentTracksLimit)
	}
	if c.Storage.RecentTracksLimit == 0 {
		c.Storage.RecentTracksLimit = 10
	}
	return nil
}

func (c *Config) validateSpeech() error {
	if c.Speech.DefaultLocale == "" {
		c.Speech.DefaultLocale = "en-US"
	}
	if _, err := language.Parse(c.Speech.DefaultLocale); err != nil {
		return fmt.Errorf("invalid speech default_locale %q: %w", c.Speech.DefaultLocale, err)
	}

	locales := c.Speech.FallbackLocales[:0]
	for _, locale := range c.Speech.FallbackLocales {
		locale = strings.TrimSpace(locale)
		if locale == "" {
			continue
		}
		if _, err := language.Parse(locale); err != nil {
			return fmt.Errorf("invalid speech fallback locale %q: %w", locale, err)
		}
		locales = append(locales, locale)
	}
	c.Speech.FallbackLocales = locales
	return nil
}

func (c *Config) validateMetrics() {
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "hud"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}
}
