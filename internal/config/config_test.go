package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("R2_ACCOUNT_ID", "acct")
	t.Setenv("R2_BUCKET_NAME", "media")
	t.Setenv("R2_PUBLIC_URL", "https://cdn.example.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://acct.r2.cloudflarestorage.com", c.Endpoint)
	assert.Equal(t, "https://cdn.example.com/", c.PublicURL)
	assert.Equal(t, int64(1024*1024*1024), c.MaxBodySize)
	assert.Equal(t, int64(DefaultPartSize), c.PartSize)
	assert.Equal(t, 3, c.Concurrency)
	assert.Equal(t, 5, c.MaxAttempts)
	assert.Equal(t, 24*time.Hour, c.UploadURLTTL)
	assert.Equal(t, time.Hour, c.DownloadURLTTL)
	assert.Equal(t, DefaultAllowedOrigins, c.AllowedOrigins)
	assert.Equal(t, ":3005", c.ListenAddr())
	assert.False(t, c.AbortOnFailure)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("R2_ENDPOINT", "http://localhost:9000")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("MAX_FILE_SIZE", "10mb")
	t.Setenv("UPLOAD_CONCURRENCY", "6")
	t.Setenv("DOWNLOAD_URL_TTL", "15m")
	t.Setenv("ABORT_ON_FAILURE", "true")
	t.Setenv("PORT", "8080")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", c.Endpoint)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.Equal(t, int64(10*1024*1024), c.MaxBodySize)
	assert.Equal(t, 6, c.Concurrency)
	assert.Equal(t, 15*time.Minute, c.DownloadURLTTL)
	assert.True(t, c.AbortOnFailure)
	assert.Equal(t, ":8080", c.ListenAddr())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := []byte(`
endpoint: http://minio:9000
bucket: uploads
public_url: https://files.example.com/
proxy_url: https://relay.example.com/cors
request_timeout: 30s
`)
	require.NoError(t, os.WriteFile(path, yml, 0o600))
	t.Setenv("CONFIG_PATH", path)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://minio:9000", c.Endpoint)
	assert.Equal(t, "uploads", c.Bucket)
	assert.Equal(t, "https://relay.example.com/cors", c.ProxyURL)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("UPLOAD_CONCURRENCY", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPLOAD_CONCURRENCY")
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "R2_BUCKET_NAME")
	assert.Contains(t, err.Error(), "R2_PUBLIC_URL")
	assert.Contains(t, err.Error(), "R2_ENDPOINT")
}
