package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile 写入测试用配置文件
func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
storage:
  provider: r2
  endpoint: https://abc123.r2.cloudflarestorage.com
  access_key: test-access-key
  secret_key: test-secret-key
  bucket: images
  custom_domain: https://i.example.net/
upload:
  max_concurrent_uploads: 3
  max_retries: 2
  retry_delay_seconds: 0.5
file:
  supported_formats: ["JPG", "png", " gif "]
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "r2", cfg.Storage.Provider)
	assert.Equal(t, "images", cfg.Storage.Bucket)
	assert.Equal(t, 3, cfg.Upload.MaxConcurrentUploads)
	assert.Equal(t, 2, cfg.Upload.MaxRetries)
	assert.Equal(t, 0.5, cfg.Upload.RetryDelaySeconds)

	// 自定义域名移除末尾斜线
	assert.Equal(t, "https://i.example.net", cfg.Storage.CustomDomain)

	// 副档名统一为小写并去除空白
	assert.Equal(t, []string{"jpg", "png", "gif"}, cfg.File.SupportedFormats)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  endpoint: https://abc123.r2.cloudflarestorage.com
  access_key: ak
  secret_key: sk
  bucket: images
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "r2", cfg.Storage.Provider)
	assert.Equal(t, 5, cfg.Upload.MaxConcurrentUploads)
	assert.Equal(t, 3, cfg.Upload.MaxRetries)
	assert.True(t, cfg.Upload.CheckDuplicate)
	assert.Equal(t, "sha512", cfg.File.HashAlgorithm)
	assert.Equal(t, 12, cfg.ShortKey.MaxLength)
	assert.Equal(t, "data/uploadr2.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  provider: ftp
  endpoint: https://example.com
  access_key: ak
  secret_key: sk
  bucket: images
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  endpoint: https://example.com
  bucket: images
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeConcurrency(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  endpoint: https://example.com
  access_key: ak
  secret_key: sk
  bucket: images
upload:
  max_concurrent_uploads: 100
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("UPLOADR2_STORAGE_BUCKET", "from-env")

	path := writeConfigFile(t, `
storage:
  endpoint: https://abc123.r2.cloudflarestorage.com
  access_key: ak
  secret_key: sk
  bucket: from-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Storage.Bucket)
}

func TestMaxFileSizeBytes(t *testing.T) {
	cfg := FileConfig{MaxFileSizeMB: 2}
	assert.Equal(t, int64(2*1024*1024), cfg.MaxFileSizeBytes())
}
