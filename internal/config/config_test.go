package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("FORAGER_DB_PASSWORD", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  user: forager
  password: ${FORAGER_DB_PASSWORD}
  dbname: forager
fetch:
  user_agent: test-agent
  retries: -1
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Contains(t, cfg.Database.DSN(), "dbname=forager")
	assert.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	assert.Equal(t, -1, cfg.Fetch.Retries)
	assert.Equal(t, time.Second, cfg.Fetch.MinDelay)
	assert.Equal(t, 3*time.Second, cfg.Fetch.MaxDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.Fetch.BackoffFactor)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "feeds.yaml", cfg.Sync.Subscriptions)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestParseSubscriptions(t *testing.T) {
	subs, err := ParseSubscriptions([]byte(`
feeds:
  - id: tech
    name: Tech
    url: http://x/rss
    interval: 3600
    enabled: true
    category: "  News "
    tags: [tech, Go]
  - id: old
    name: Old
    url: http://y/rss
    interval: 600
    enabled: false
    string_id: legacy-old
sync:
  delete_missing: true
`))
	require.NoError(t, err)

	require.Len(t, subs.Feeds, 2)
	assert.True(t, subs.DeleteMissing)

	tech := subs.Feeds[0]
	assert.Equal(t, "News", tech.CategoryName())
	assert.Equal(t, "tech", tech.EffectiveStringID())
	assert.Equal(t, []string{"tech", "Go"}, tech.Tags)

	old := subs.Feeds[1]
	assert.Equal(t, "Default", old.CategoryName())
	assert.Equal(t, "legacy-old", old.EffectiveStringID())

	assert.Len(t, subs.Enabled(), 1)
}

func TestParseSubscriptions_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		problem string
	}{
		{
			name:    "no feeds key",
			input:   "sync:\n  delete_missing: true\n",
			problem: "missing top-level 'feeds' list",
		},
		{
			name:    "missing enabled",
			input:   "feeds:\n  - {id: a, name: A, url: http://a, interval: 60}\n",
			problem: "feed #0: missing required fields: enabled",
		},
		{
			name:    "non-positive interval",
			input:   "feeds:\n  - {id: a, name: A, url: http://a, interval: 0, enabled: true}\n",
			problem: `feed "a": interval must be positive, got 0`,
		},
		{
			name: "duplicate url",
			input: "feeds:\n  - {id: a, name: A, url: http://a, interval: 60, enabled: true}\n" +
				"  - {id: b, name: B, url: http://a, interval: 60, enabled: true}\n",
			problem: `feed "b": duplicate url http://a (also feed #0)`,
		},
		{
			name: "string_id collides with another id",
			input: "feeds:\n  - {id: a, name: A, url: http://a, interval: 60, enabled: true, string_id: b}\n" +
				"  - {id: b, name: B, url: http://b, interval: 60, enabled: true}\n",
			problem: `feed "b": duplicate string_id "b" (also feed #0)`,
		},
		{
			name:    "broken yaml",
			input:   "feeds: [",
			problem: "parse yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSubscriptions([]byte(tt.input))

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Contains(t, vErr.Error(), tt.problem)
		})
	}
}
