package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "centralrepo.yml")
	raw := `
centralrepo:
  store:
    mode: sqlite
    bulk_threshold: 250
    bad_tags: [Evidence, "Notable Item"]
    sqlite:
      path: /tmp/cr.db
  ingest:
    workers: 4
    flag_tagged_notable_items: false
  events:
    mode: redis
    enqueue_timeout: 3s
    redis:
      addr: 127.0.0.1:6379
      key: case_events
  logging:
    enabled: true
    level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	cr := cfg.CentralRepo
	assert.Equal(t, "sqlite", cr.Store.Mode)
	assert.Equal(t, 250, cr.Store.BulkThreshold)
	assert.Equal(t, []string{"Evidence", "Notable Item"}, cr.Store.BadTags)
	assert.Equal(t, "/tmp/cr.db", cr.Store.SQLite.Path)
	assert.Equal(t, 4, cr.Ingest.Workers)
	assert.False(t, BoolOr(cr.Ingest.FlagTaggedNotableItems, true))
	assert.True(t, BoolOr(cr.Ingest.CreateCorrelationProperties, true))
	assert.Equal(t, 3*time.Second, cr.Events.EnqueueTimeout)
	assert.Equal(t, "case_events", cr.Events.Redis.Key)
	assert.Equal(t, "debug", cr.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
