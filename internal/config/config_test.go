package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `{
		"preferences": {"theme": "dark", "font_size": 12, "language": "de"},
		"database": {"path": "/var/lib/exportdesk/crm.db"},
		"sync": {"workers": 5},
		"search": {"api_key": "sk-test", "max_candidates": 20},
		"filters": {
			"bulk_patterns": ["unsubscribe"],
			"min_body_length": 80,
			"sentiment_phrases": {"looking forward": 3}
		},
		"metrics": {"port": 9999}
	}`)
	require.NoError(t, LoadFromFile(path))

	cfg := Get()
	require.NotNil(t, cfg)
	assert.Equal(t, "dark", cfg.Preferences.Theme)
	assert.Equal(t, 12, cfg.Preferences.FontSize)
	assert.Equal(t, "de", cfg.Preferences.Language)
	assert.Equal(t, "/var/lib/exportdesk/crm.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Sync.Workers)
	assert.Equal(t, "sk-test", cfg.Search.APIKey)
	assert.Equal(t, 20, cfg.Search.MaxCandidates)
	assert.Equal(t, []string{"unsubscribe"}, cfg.Filters.BulkPatterns)
	assert.Equal(t, 80, cfg.Filters.MinBodyLength)
	assert.Equal(t, map[string]int{"looking forward": 3}, cfg.Filters.SentimentPhrases)

	// Keys the file omits fall back to defaults.
	assert.Equal(t, "backups", cfg.Database.BackupDir)
	assert.Equal(t, 50, cfg.Sync.MaxPerSender)
	assert.Equal(t, "*/10 * * * *", cfg.Sync.PollSchedule)
	assert.Equal(t, "google", cfg.Search.Engine)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFileDefaultsOnly(t *testing.T) {
	path := writeConfig(t, `{}`)
	require.NoError(t, LoadFromFile(path))

	cfg := Get()
	assert.Equal(t, "light", cfg.Preferences.Theme)
	assert.Equal(t, "Segoe UI", cfg.Preferences.FontFamily)
	assert.True(t, cfg.Preferences.AutoSave)
	assert.Equal(t, "database/crm.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Sync.Workers)
	assert.Equal(t, 9180, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := writeConfig(t, `{"sync": `)
	err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFromFileMissing(t *testing.T) {
	err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestMetricsAddr(t *testing.T) {
	m := &MetricsConfig{Host: "127.0.0.1", Port: 9180}
	assert.Equal(t, "127.0.0.1:9180", m.MetricsAddr())
}

func TestOnReloadHooks(t *testing.T) {
	var got *Config
	OnReload(func(c *Config) { got = c })
	OnReload(nil)

	want := &Config{}
	notifyReload(want)
	assert.Same(t, want, got)
}
