package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CASEGEST_PORT.
const EnvPrefix = "CASEGEST"

type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// Auth
	APIKey string `mapstructure:"api_key"`

	// Document store
	DBPath string `mapstructure:"db_path"`

	// Blob storage: "local" or "minio"
	BlobBackend    string `mapstructure:"blob_backend"`
	BlobDir        string `mapstructure:"blob_dir"`
	MinIOEndpoint  string `mapstructure:"minio_endpoint"`
	MinIOAccessKey string `mapstructure:"minio_access_key"`
	MinIOSecretKey string `mapstructure:"minio_secret_key"`
	MinIOBucket    string `mapstructure:"minio_bucket"`
	MinIOUseSSL    bool   `mapstructure:"minio_use_ssl"`

	// Change notifications. Empty RedisAddr keeps them in process.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisChannel  string `mapstructure:"redis_channel"`

	// Pathstore export. Empty PathstoreURL disables it.
	PathstoreURL       string        `mapstructure:"pathstore_url"`
	PathstoreAPIKey    string        `mapstructure:"pathstore_api_key"`
	PathstoreTimeout   time.Duration `mapstructure:"pathstore_timeout"`
	MaxConcurrentStore int           `mapstructure:"max_concurrent_store"`

	// Worker pool
	WorkerCount  int           `mapstructure:"worker_count"`
	MaxQueueSize int           `mapstructure:"max_queue_size"`
	JobTTL       time.Duration `mapstructure:"job_ttl"`

	// Upload limits
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// Analysis
	DefaultChunkSize    int           `mapstructure:"chunk_size"`
	DefaultChunkOverlap int           `mapstructure:"chunk_overlap"`
	CrossRefConcurrency int           `mapstructure:"crossref_concurrency"`
	StatsWindow         time.Duration `mapstructure:"stats_window"`
}

var defaults = map[string]any{
	"port":      "8090",
	"log_level": "info",
	"api_key":   "",

	"db_path": "data/casegest.db",

	"blob_backend":     "local",
	"blob_dir":         "data/blobs",
	"minio_endpoint":   "",
	"minio_access_key": "",
	"minio_secret_key": "",
	"minio_bucket":     "documents",
	"minio_use_ssl":    false,

	"redis_addr":     "",
	"redis_password": "",
	"redis_db":       0,
	"redis_channel":  "casegest:documents",

	"pathstore_url":        "",
	"pathstore_api_key":    "",
	"pathstore_timeout":    30 * time.Second,
	"max_concurrent_store": 10,

	"worker_count":   4,
	"max_queue_size": 100,
	"job_ttl":        time.Hour,

	"max_upload_bytes": int64(52428800), // 50MB

	"chunk_size":           1000,
	"chunk_overlap":        200,
	"crossref_concurrency": 4,
	"stats_window":         time.Hour,
}

// New returns a viper instance with defaults and environment binding set up.
// Callers may bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file and decodes v into a Config. Values
// resolve in flag, env, file, default order.
func Load(v *viper.Viper, file string) (Config, error) {
	if v == nil {
		v = New()
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentStore <= 0 {
		cfg.MaxConcurrentStore = 10
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = 1000
	}
	if cfg.DefaultChunkOverlap < 0 {
		cfg.DefaultChunkOverlap = 200
	}
	if cfg.CrossRefConcurrency <= 0 {
		cfg.CrossRefConcurrency = 4
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = time.Hour
	}
	return cfg, nil
}

// Validate checks the settings the HTTP service needs.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, fmt.Errorf("port is required"))
	}
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s_API_KEY is required", EnvPrefix))
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("db_path is required"))
	}
	switch c.BlobBackend {
	case "local":
		if c.BlobDir == "" {
			errs = append(errs, fmt.Errorf("blob_dir is required for the local blob backend"))
		}
	case "minio":
		if c.MinIOEndpoint == "" {
			errs = append(errs, fmt.Errorf("minio_endpoint is required for the minio blob backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob_backend %q", c.BlobBackend))
	}
	if c.DefaultChunkOverlap >= c.DefaultChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.DefaultChunkOverlap, c.DefaultChunkSize))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// PathstoreEnabled reports whether analyses are exported downstream.
func (c Config) PathstoreEnabled() bool {
	return c.PathstoreURL != ""
}
