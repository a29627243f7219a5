package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/config"
	"centralrepo/internal/ingest"
	"centralrepo/internal/metrics"
	"centralrepo/internal/store"
	"centralrepo/internal/store/sqlstore"
	"centralrepo/pkg/models"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &config.Config{}
	applyDefaults(cfg)

	c := cfg.CentralRepo
	assert.Equal(t, "sqlite", c.Store.Mode)
	assert.Equal(t, 1000, c.Store.BulkThreshold)
	assert.Equal(t, []string{"Evidence", "Notable Item"}, c.Store.BadTags)
	assert.Equal(t, 4, c.Ingest.Workers)
	assert.Equal(t, "case_events", c.Events.Redis.Key)
	assert.Equal(t, 2*time.Second, c.Events.EnqueueTimeout)
	assert.Equal(t, "log", c.Notifications.Mode)
	assert.Equal(t, "info", c.Logging.Level)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &config.Config{}
	cfg.CentralRepo.Store.Mode = "redis"
	cfg.CentralRepo.Store.Redis.Addr = "10.0.0.5:6379"
	cfg.CentralRepo.Store.BadTags = []string{"Malware"}
	applyDefaults(cfg)

	assert.Equal(t, "redis", cfg.CentralRepo.Store.Mode)
	assert.Equal(t, []string{"Malware"}, cfg.CentralRepo.Store.BadTags)
	assert.Equal(t, "10.0.0.5:6379", cfg.CentralRepo.Events.Redis.Addr, "event bus follows the store redis")
}

func TestFindConfigFilePrefersExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("centralrepo: {}\n"), 0644))
	assert.Equal(t, path, findConfigFile(path))
	assert.Equal(t, defaultConfigName, findConfigFile(filepath.Join(t.TempDir(), "missing.yml")))
}

func TestOpenStoreModes(t *testing.T) {
	s, err := openStore(config.StoreConfig{Mode: "disabled"})
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	_, err = openStore(config.StoreConfig{Mode: "oracle"})
	assert.Error(t, err)

	s, err = openStore(config.StoreConfig{Mode: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "db", "cr.db")}})
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.Enabled())
}

func TestNewNotifierModes(t *testing.T) {
	n, err := newNotifier(config.NotificationConfig{Mode: "log"})
	require.NoError(t, err)
	assert.IsType(t, ingest.LogNotifier{}, n)

	n, err = newNotifier(config.NotificationConfig{Mode: "file", File: config.FileOutputConfig{Path: filepath.Join(t.TempDir(), "n.jsonl")}})
	require.NoError(t, err)
	require.NoError(t, n.Close())

	_, err = newNotifier(config.NotificationConfig{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	m.IncFilesProcessed()
	srv := httptest.NewServer(newRouter(m, store.Disabled{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, body.String(), "centralrepo_files_processed_total 1")
}

func TestImportHashSetThenLookup(t *testing.T) {
	ctx := context.Background()
	s, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "cr.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	list := filepath.Join(t.TempDir(), "nsrl-bad.txt")
	require.NoError(t, os.WriteFile(list, []byte("# bad\nd41d8cd98f00b204e9800998ecf8427e,empty\n0cc175b9c0f1b6a831c399e269772661\n"), 0644))

	set, n, err := importHashSet(ctx, s, list, "Lab A", &models.GlobalSet{Name: "bad"}, models.Bad, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotZero(t, set.ID)

	// A second import reuses the organization.
	_, _, err = importHashSet(ctx, s, list, "lab a", &models.GlobalSet{Name: "bad-2"}, models.Bad, 10)
	require.NoError(t, err)
	orgs, err := s.GetOrganizations(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 1)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, lookup(ctx, cmd, s, "FILES", "D41D8CD98F00B204E9800998ECF8427E"))
	assert.Contains(t, out.String(), "global notable=true")
	assert.Contains(t, out.String(), "0 occurrence(s)")
}
