package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"centralrepo/config"
	"centralrepo/internal/ingest"
	"centralrepo/internal/logger"
	"centralrepo/internal/output/notifyclickhouse"
	"centralrepo/internal/output/notifyhttp"
	"centralrepo/internal/output/notifyjson"
	"centralrepo/internal/output/notifynats"
	"centralrepo/internal/rules"
	"centralrepo/internal/store"
	"centralrepo/internal/store/redisstore"
	"centralrepo/internal/store/sqlstore"
)

const defaultConfigName = "centralrepo.yml"

func main() {
	rootCmd := &cobra.Command{
		Use:   "centralrepo",
		Short: "Cross-case correlation of file hashes",
		Long: `centralrepo records file hashes seen in forensic cases and flags files
that were tagged notable in earlier cases or appear in a known-bad
reference set.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: ./centralrepo.yml)")

	ingestCmd := &cobra.Command{
		Use:   "ingest <manifest>",
		Short: "Run one ingest job over a JSON-lines file manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	ingestCmd.Flags().String("case", "", "Case display name")
	ingestCmd.Flags().String("case-uuid", "", "Case UUID (derived from the case name when empty)")
	ingestCmd.Flags().String("device", "", "Data source device ID")
	ingestCmd.Flags().String("data-source", "", "Data source name (defaults to the manifest file name)")
	ingestCmd.Flags().Int64("job-id", 0, "Ingest job ID (defaults to the current time)")
	ingestCmd.Flags().Int("workers", 0, "Override ingest.workers")
	_ = ingestCmd.MarkFlagRequired("case")
	_ = ingestCmd.MarkFlagRequired("device")
	rootCmd.AddCommand(ingestCmd)

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Apply case events from Redis or NATS and serve metrics",
		RunE:  runListen,
	}
	rootCmd.AddCommand(listenCmd)

	importCmd := &cobra.Command{
		Use:   "import-hashset <file>",
		Short: "Import a list of MD5 hashes as a global reference set",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportHashSet,
	}
	importCmd.Flags().String("org", "", "Owning organization name")
	importCmd.Flags().String("set", "", "Reference set name (defaults to the file name)")
	importCmd.Flags().String("version", "", "Reference set version")
	importCmd.Flags().String("known", "BAD", "Known status of every hash (BAD or KNOWN)")
	importCmd.Flags().Int("batch", 1000, "Hashes per insert batch")
	_ = importCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(importCmd)

	lookupCmd := &cobra.Command{
		Use:   "lookup <value>",
		Short: "Show where a value occurred and whether it is notable",
		Args:  cobra.ExactArgs(1),
		RunE:  runLookup,
	}
	lookupCmd.Flags().String("type", "FILES", "Correlation type name")
	rootCmd.AddCommand(lookupCmd)

	tagCmd := &cobra.Command{
		Use:   "tag",
		Short: "Tag file content and record it through the case-event listener",
		RunE:  runTag,
	}
	tagCmd.Flags().String("case", "", "Case display name")
	tagCmd.Flags().String("case-uuid", "", "Case UUID (derived from the case name when empty)")
	tagCmd.Flags().String("device", "", "Data source device ID")
	tagCmd.Flags().String("data-source", "", "Data source name")
	tagCmd.Flags().String("tag", "", "Tag name")
	tagCmd.Flags().String("comment", "", "Tag comment")
	tagCmd.Flags().String("md5", "", "MD5 of the tagged file")
	tagCmd.Flags().String("path", "", "Path of the tagged file")
	tagCmd.Flags().Bool("publish", false, "Publish the event on the configured event bus instead of applying it")
	for _, name := range []string{"case", "device", "tag", "md5"} {
		_ = tagCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(tagCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultConfigName
}

func applyDefaults(cfg *config.Config) {
	c := &cfg.CentralRepo

	if c.Store.Mode == "" {
		c.Store.Mode = "sqlite"
	}
	if c.Store.BulkThreshold <= 0 {
		c.Store.BulkThreshold = 1000
	}
	if len(c.Store.BadTags) == 0 {
		c.Store.BadTags = []string{"Evidence", "Notable Item"}
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "data/central_repository.db"
	}
	if c.Store.Postgres.Host == "" {
		c.Store.Postgres.Host = "localhost"
	}
	if c.Store.Postgres.Port == 0 {
		c.Store.Postgres.Port = 5432
	}
	if c.Store.Postgres.DBName == "" {
		c.Store.Postgres.DBName = "central_repository"
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "127.0.0.1:6379"
	}

	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}

	if c.Events.Mode == "" {
		c.Events.Mode = "redis"
	}
	if c.Events.Workers <= 0 {
		c.Events.Workers = 2
	}
	if c.Events.QueueSize <= 0 {
		c.Events.QueueSize = 256
	}
	if c.Events.EnqueueTimeout <= 0 {
		c.Events.EnqueueTimeout = 2 * time.Second
	}
	if c.Events.Redis.Addr == "" {
		c.Events.Redis.Addr = c.Store.Redis.Addr
	}
	if c.Events.Redis.Key == "" {
		c.Events.Redis.Key = "case_events"
	}
	if c.Events.Redis.BlockTimeout == 0 {
		c.Events.Redis.BlockTimeout = 5 * time.Second
	}
	if c.Events.NATS.URL == "" {
		c.Events.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Events.NATS.Subject == "" {
		c.Events.NATS.Subject = "centralrepo.case_events"
	}

	if c.Notifications.Mode == "" {
		c.Notifications.Mode = "log"
	}
	if c.Notifications.File.Path == "" {
		c.Notifications.File.Path = "output/notifications.jsonl"
	}
	if c.Notifications.NATS.URL == "" {
		c.Notifications.NATS.URL = c.Events.NATS.URL
	}
	if c.Notifications.NATS.Subject == "" {
		c.Notifications.NATS.Subject = notifynats.DefaultSubject
	}

	if c.Notifications.ClickHouse.Database == "" {
		c.Notifications.ClickHouse.Database = "centralrepo"
	}
	if c.Notifications.ClickHouse.Table == "" {
		c.Notifications.ClickHouse.Table = "notifications"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9108"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// loadConfig resolves, reads and defaults the config, then starts logging.
// A missing default config file is not an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configArg, _ := cmd.Flags().GetString("config")
	path := findConfigFile(configArg)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || configArg != "" {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = &config.Config{}
		cfg.CentralRepo.Logging = config.LoggingConfig{Enabled: true, Console: true}
		path = "(defaults)"
	}
	applyDefaults(cfg)

	l := cfg.CentralRepo.Logging
	if err := logger.Init(l.Enabled, l.Level, l.File, l.Console); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	logger.Infof("Config loaded from: %s", path)
	return cfg, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Mode) {
	case "disabled", "none":
		logger.Warnf("Central repository disabled; correlation is off")
		return store.Disabled{}, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		s, err := sqlstore.Open(sqlstore.Config{
			Driver:    sqlstore.DriverSQLite,
			DSN:       sqlstore.SQLiteDSN(cfg.SQLite.Path),
			BadTags:   cfg.BadTags,
			CacheSize: cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Store mode: sqlite (%s)", cfg.SQLite.Path)
		return s, nil
	case "postgres", "postgresql":
		p := cfg.Postgres
		s, err := sqlstore.Open(sqlstore.Config{
			Driver:       sqlstore.DriverPostgres,
			DSN:          sqlstore.PostgresDSN(p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode),
			BadTags:      cfg.BadTags,
			CacheSize:    cfg.CacheSize,
			MaxOpenConns: p.MaxOpenConns,
			ConnLifetime: p.ConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Store mode: postgres (%s:%d/%s)", p.Host, p.Port, p.DBName)
		return s, nil
	case "redis":
		s, err := redisstore.New(redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			BadTags:   cfg.BadTags,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Store mode: redis (%s)", cfg.Redis.Addr)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store mode: %s", cfg.Mode)
	}
}

func newNotifier(cfg config.NotificationConfig) (ingest.Notifier, error) {
	switch strings.ToLower(cfg.Mode) {
	case "log":
		return ingest.LogNotifier{}, nil
	case "file":
		w, err := notifyjson.NewWriter(cfg.File.Path)
		if err != nil {
			return nil, fmt.Errorf("create notification file writer: %w", err)
		}
		logger.Infof("Notification mode: file (%s)", cfg.File.Path)
		return w, nil
	case "http":
		w, err := notifyhttp.NewWriter(notifyhttp.Config{
			URL:     cfg.HTTP.URL,
			Timeout: cfg.HTTP.Timeout,
			Headers: cfg.HTTP.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("create notification HTTP writer: %w", err)
		}
		logger.Infof("Notification mode: http (%s)", cfg.HTTP.URL)
		return w, nil
	case "nats":
		w, err := notifynats.NewWriter(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, fmt.Errorf("create notification NATS writer: %w", err)
		}
		logger.Infof("Notification mode: nats (%s %s)", cfg.NATS.URL, cfg.NATS.Subject)
		return w, nil
	case "clickhouse":
		ch := cfg.ClickHouse
		w, err := notifyclickhouse.NewWriter(notifyclickhouse.Config{
			URL:      ch.URL,
			Database: ch.Database,
			Table:    ch.Table,
			Username: ch.Username,
			Password: ch.Password,
			Timeout:  ch.Timeout,
			Headers:  ch.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("create notification ClickHouse writer: %w", err)
		}
		logger.Infof("Notification mode: clickhouse (%s/%s.%s)", ch.URL, ch.Database, ch.Table)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown notification mode: %s", cfg.Mode)
	}
}

func loadRules(cfg config.RulesConfig) (rules.Engine, error) {
	if !cfg.Enabled {
		return &rules.NoopEngine{}, nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		logger.Warnf("Rules enabled but rules.path is empty; interesting-file rules disabled")
		return &rules.NoopEngine{}, nil
	}
	engine, stats, err := rules.LoadFileRules(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load interesting-file rules: %w", err)
	}
	logger.Infof("Interesting-file rules from %s: %d of %d files loaded (%d not file rules, %d unsupported, %d unparsable)",
		cfg.Path, stats.Loaded, stats.Files, stats.NotFileRules, stats.Unsupported, stats.Unparsable)
	if stats.Loaded == 0 {
		logger.Warnf("No usable rules under %s; interesting-file matching is off", cfg.Path)
	}
	return engine, nil
}

func ingestSettings(cfg config.IngestConfig) ingest.Settings {
	def := ingest.DefaultSettings()
	return ingest.Settings{
		FlagTaggedNotableItems:      config.BoolOr(cfg.FlagTaggedNotableItems, def.FlagTaggedNotableItems),
		FlagGlobalKnownBad:          config.BoolOr(cfg.FlagGlobalKnownBad, def.FlagGlobalKnownBad),
		CreateCorrelationProperties: config.BoolOr(cfg.CreateCorrelationProperties, def.CreateCorrelationProperties),
	}
}
