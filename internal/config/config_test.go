package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "local", cfg.BlobBackend)
	assert.Equal(t, "data/casegest.db", cfg.DBPath)
	assert.Equal(t, 1000, cfg.DefaultChunkSize)
	assert.Equal(t, 200, cfg.DefaultChunkOverlap)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 100, cfg.MaxQueueSize)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	assert.Equal(t, 30*time.Second, cfg.PathstoreTimeout)
	assert.Equal(t, int64(52428800), cfg.MaxUploadBytes)
	assert.False(t, cfg.PathstoreEnabled())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CASEGEST_PORT", "9000")
	t.Setenv("CASEGEST_API_KEY", "k")
	t.Setenv("CASEGEST_WORKER_COUNT", "8")
	t.Setenv("CASEGEST_JOB_TTL", "15m")
	t.Setenv("CASEGEST_PATHSTORE_URL", "http://pathstore:8080")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 15*time.Minute, cfg.JobTTL)
	assert.True(t, cfg.PathstoreEnabled())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casegest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
blob_backend: minio
minio_endpoint: localhost:9000
chunk_size: 500
chunk_overlap: 50
`), 0o644))
	t.Setenv("CASEGEST_CHUNK_OVERLAP", "80")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "minio", cfg.BlobBackend)
	assert.Equal(t, "localhost:9000", cfg.MinIOEndpoint)
	assert.Equal(t, 500, cfg.DefaultChunkSize)
	assert.Equal(t, 80, cfg.DefaultChunkOverlap, "env overrides file")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_NonPositiveFallbacks(t *testing.T) {
	t.Setenv("CASEGEST_WORKER_COUNT", "0")
	t.Setenv("CASEGEST_MAX_QUEUE_SIZE", "-1")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 100, cfg.MaxQueueSize)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	cfg.APIKey = "k"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing api key", func(c *Config) { c.APIKey = "" }, "CASEGEST_API_KEY is required"},
		{"unknown backend", func(c *Config) { c.BlobBackend = "s3" }, `unknown blob_backend "s3"`},
		{"minio without endpoint", func(c *Config) { c.BlobBackend = "minio" }, "minio_endpoint is required"},
		{"overlap too large", func(c *Config) { c.DefaultChunkOverlap = 1000 }, "chunk_overlap (1000)"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := Config{LogLevel: "debug"}
	l, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}
