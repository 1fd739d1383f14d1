package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[server]
port = 9090
host = "0.0.0.0"
static_files_dir = "%s"
cors_allowed_origins = ["http://localhost:9090"]

[logging]
level = "debug"
format = "json"

[storage]
settings_backend = "badger"
sqlite_path = "var/hud.db"

[speech]
default_locale = "fr-FR"
fallback_locales = ["fr-FR", " ", "en-GB"]
interim_results = false
default_listening = false

[metrics]
enabled = true
path = "prom"
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	dir := t.TempDir()
	www := filepath.Join(dir, "www")
	require.NoError(t, os.Mkdir(www, 0755))
	path := writeConfig(t, dir, fmtSample(www))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 60, cfg.Server.IdleTimeoutSecs)
	assert.Equal(t, []string{"http://localhost:9090"}, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, BackendBadger, cfg.Storage.SettingsBackend)
	assert.Equal(t, "data/settings", cfg.Storage.BadgerDir)
	assert.Equal(t, "var/hud.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 10, cfg.Storage.RecentTracksLimit)

	assert.Equal(t, "fr-FR", cfg.Speech.DefaultLocale)
	assert.Equal(t, []string{"fr-FR", "en-GB"}, cfg.Speech.FallbackLocales)
	assert.True(t, cfg.Speech.ContinuousEnabled())
	assert.False(t, cfg.Speech.InterimResultsEnabled())
	assert.False(t, cfg.Speech.ListeningByDefault())

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "hud", cfg.Metrics.Namespace)
	assert.Equal(t, "/prom", cfg.Metrics.Path)
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{Server: ServerConfig{StaticFilesDir: t.TempDir()}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, BackendSQLite, cfg.Storage.SettingsBackend)
	assert.Equal(t, "data/co-hud.db", cfg.Storage.SQLitePath)
	assert.Empty(t, cfg.Storage.BadgerDir)
	assert.Equal(t, "en-US", cfg.Speech.DefaultLocale)
	assert.True(t, cfg.Speech.ListeningByDefault())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestValidateRejects(t *testing.T) {
	static := t.TempDir()
	cases := map[string]func(*Config){
		"port":            func(c *Config) { c.Server.Port = 70000 },
		"duplicate port":  func(c *Config) { c.Server.Port = 8080; c.Server.AdditionalPorts = []int{8080} },
		"static dir":      func(c *Config) { c.Server.StaticFilesDir = filepath.Join(static, "missing") },
		"log level":       func(c *Config) { c.Logging.Level = "verbose" },
		"log format":      func(c *Config) { c.Logging.Format = "xml" },
		"backend":         func(c *Config) { c.Storage.SettingsBackend = "postgres" },
		"tracks limit":    func(c *Config) { c.Storage.RecentTracksLimit = -1 },
		"default locale":  func(c *Config) { c.Speech.DefaultLocale = "@@" },
		"fallback locale": func(c *Config) { c.Speech.FallbackLocales = []string{"en-US", "@@"} },
		"timeouts":        func(c *Config) { c.Server.ReadTimeoutSecs = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{StaticFilesDir: static}}
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "[server]\nport = 1234\n")

	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Server.Port)

	_, err = LoadWithFallback(filepath.Join(dir, "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsBrokenTOML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[server\nport = ")
	_, err := Load(path)
	assert.Error(t, err)
}

func fmtSample(static string) string {
	return fmt.Sprintf(sample, filepath.ToSlash(static))
}
