package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	CentralRepo CentralRepoConfig `yaml:"centralrepo"`
}

// CentralRepoConfig is the project configuration.
type CentralRepoConfig struct {
	Store         StoreConfig        `yaml:"store"`
	Ingest        IngestConfig       `yaml:"ingest"`
	Events        EventsConfig       `yaml:"events"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// StoreConfig selects and configures the correlation store backend.
type StoreConfig struct {
	Mode          string         `yaml:"mode"` // disabled|sqlite|postgres|redis
	BulkThreshold int            `yaml:"bulk_threshold"`
	BadTags       []string       `yaml:"bad_tags"`
	CacheSize     int            `yaml:"cache_size"`
	SQLite        SQLiteConfig   `yaml:"sqlite"`
	Postgres      PostgresConfig `yaml:"postgres"`
	Redis         RedisConfig    `yaml:"redis"`
}

// SQLiteConfig controls the embedded SQLite store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig controls the shared PostgreSQL store.
type PostgresConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	DBName       string        `yaml:"dbname"`
	SSLMode      string        `yaml:"sslmode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// RedisConfig controls Redis access.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// IngestConfig controls the file ingest module.
type IngestConfig struct {
	Workers                     int         `yaml:"workers"`
	FlagTaggedNotableItems      *bool       `yaml:"flag_tagged_notable_items"`
	FlagGlobalKnownBad          *bool       `yaml:"flag_global_known_bad"`
	CreateCorrelationProperties *bool       `yaml:"create_correlation_properties"`
	NotificationCacheSize       int         `yaml:"notification_cache_size"`
	Rules                       RulesConfig `yaml:"rules"`
}

// RulesConfig controls interesting-file Sigma rules.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EventsConfig controls the case-event listener.
type EventsConfig struct {
	Mode           string        `yaml:"mode"` // none|redis|nats
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
	Redis          RedisConfig   `yaml:"redis"`
	NATS           NATSConfig    `yaml:"nats"`
}

// NATSConfig controls a NATS connection.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// NotificationConfig controls where found-artifact notifications go.
type NotificationConfig struct {
	Mode       string                 `yaml:"mode"` // log|file|http|nats|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	NATS       NATSConfig             `yaml:"nats"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// ClickHouseOutputConfig config for ClickHouse output.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// BoolOr returns *b, or def when b is unset.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
