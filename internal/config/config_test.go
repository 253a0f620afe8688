package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ExcelFolders", cfg.InputDir)
	assert.Equal(t, "cleanedBook.xlsx", cfg.Ingest.MasterKey)
	assert.Equal(t, "numericBook.xlsx", cfg.Reshape.NumericKey)
	assert.Equal(t, "log.txt", cfg.Ledger.Path)
	d, err := cfg.WatchDebounce()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Blob, cfg.Blob)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "clinicflow.yaml", `
input_dir: incoming
ingest:
  on_error: skip
ledger:
  driver: sqlite
  path: state/ledger.db
watch:
  debounce: 500ms
  reshape: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "incoming", cfg.InputDir)
	assert.Equal(t, OnErrorSkip, cfg.Ingest.OnError)
	assert.Equal(t, "cleanedBook.xlsx", cfg.Ingest.MasterKey)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.True(t, cfg.Watch.Reshape)
	d, _ := cfg.WatchDebounce()
	assert.Equal(t, 500*time.Millisecond, d)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLINICFLOW_INPUT_DIR", "from-env")
	t.Setenv("CLINICFLOW_BLOB_DRIVER", "s3")
	t.Setenv("CLINICFLOW_BLOB_S3_BUCKET", "clinic")
	t.Setenv("CLINICFLOW_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("CLINICFLOW_LEDGER_DRIVER", "postgres")
	t.Setenv("CLINICFLOW_POSTGRES_DSN", "postgres://db/clinic")
	t.Setenv("CLINICFLOW_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.InputDir)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.Equal(t, "clinic", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "postgres://db/clinic", cfg.Ledger.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"policy":        func(c *Config) { c.Ingest.OnError = "retry" },
		"blob driver":   func(c *Config) { c.Blob.Driver = "ftp" },
		"s3 bucket":     func(c *Config) { c.Blob.Driver = "s3" },
		"ledger driver": func(c *Config) { c.Ledger.Driver = "redis" },
		"same keys":     func(c *Config) { c.Reshape.NumericKey = c.Ingest.MasterKey },
		"debounce":      func(c *Config) { c.Watch.Debounce = "soon" },
		"input dir":     func(c *Config) { c.InputDir = " " },
		"log format":    func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "input_dir: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "CLINICFLOW_TEST_DOTENV=loaded\n")
	t.Setenv("CLINICFLOW_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("CLINICFLOW_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CLINICFLOW_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "none.env")))
}
