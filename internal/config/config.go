// Package config loads clinicflow settings from YAML, a .env file and
// CLINICFLOW_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Failure policies for malformed input files.
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// Config is the top-level configuration.
type Config struct {
	InputDir string        `yaml:"input_dir"`
	Ingest   IngestConfig  `yaml:"ingest"`
	Reshape  ReshapeConfig `yaml:"reshape"`
	Blob     BlobConfig    `yaml:"blob"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Logging  LoggingConfig `yaml:"logging"`
	Watch    WatchConfig   `yaml:"watch"`
}

// IngestConfig configures the ingestion/merge stage.
type IngestConfig struct {
	OnError   string `yaml:"on_error"`   // abort, skip
	MasterKey string `yaml:"master_key"` // artifact key of the master table
}

// ReshapeConfig configures the reshape/encode stage.
type ReshapeConfig struct {
	NumericKey string `yaml:"numeric_key"`
}

// BlobConfig selects the artifact store.
type BlobConfig struct {
	Driver string   `yaml:"driver"` // fs, s3, memory
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config configures the s3 artifact store.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// LedgerConfig selects the processed-file ledger.
type LedgerConfig struct {
	Driver string `yaml:"driver"` // text, sqlite, postgres, memory
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// MetricsConfig configures the metrics textfile.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// WatchConfig configures the folder watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
	Reshape  bool   `yaml:"reshape"` // also rebuild the numeric table after each ingest
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		InputDir: "ExcelFolders",
		Ingest: IngestConfig{
			OnError:   OnErrorAbort,
			MasterKey: "cleanedBook.xlsx",
		},
		Reshape: ReshapeConfig{NumericKey: "numericBook.xlsx"},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "cleanExcel",
			S3:     S3Config{Region: "us-east-1"},
		},
		Ledger: LedgerConfig{
			Driver: "text",
			Path:   "log.txt",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Watch: WatchConfig{Debounce: "2s"},
	}
}

// Load reads path over the defaults, then applies the environment. A missing
// file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ./.env)
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.InputDir, "CLINICFLOW_INPUT_DIR")
	setString(&c.Ingest.OnError, "CLINICFLOW_ON_ERROR")
	setString(&c.Blob.Driver, "CLINICFLOW_BLOB_DRIVER")
	setString(&c.Blob.FSRoot, "CLINICFLOW_BLOB_FS_ROOT")
	setString(&c.Blob.S3.Bucket, "CLINICFLOW_BLOB_S3_BUCKET")
	setString(&c.Blob.S3.Region, "CLINICFLOW_BLOB_S3_REGION")
	setString(&c.Blob.S3.Prefix, "CLINICFLOW_BLOB_S3_PREFIX")
	setString(&c.Blob.S3.Endpoint, "CLINICFLOW_BLOB_S3_ENDPOINT")
	setString(&c.Blob.S3.AccessKeyID, "CLINICFLOW_BLOB_S3_ACCESS_KEY_ID")
	setString(&c.Blob.S3.SecretAccessKey, "CLINICFLOW_BLOB_S3_SECRET_ACCESS_KEY")
	setString(&c.Blob.S3.SessionToken, "CLINICFLOW_BLOB_S3_SESSION_TOKEN")
	if v := os.Getenv("CLINICFLOW_BLOB_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Blob.S3.PathStyle = b
		}
	}
	setString(&c.Ledger.Driver, "CLINICFLOW_LEDGER_DRIVER")
	setString(&c.Ledger.Path, "CLINICFLOW_LEDGER_PATH")
	setString(&c.Ledger.DSN, "CLINICFLOW_POSTGRES_DSN")
	setString(&c.Metrics.Textfile, "CLINICFLOW_METRICS_TEXTFILE")
	setString(&c.Logging.Level, "CLINICFLOW_LOG_LEVEL")
}

var (
	validBlobDrivers   = []string{"fs", "s3", "memory"}
	validLedgerDrivers = []string{"text", "sqlite", "postgres", "memory"}
	validPolicies      = []string{OnErrorAbort, OnErrorSkip}
	validLogFormats    = []string{"json", "console"}
)

// Validate rejects unknown drivers, policies and malformed durations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return fmt.Errorf("input_dir must be set")
	}
	if err := oneOf("ingest.on_error", c.Ingest.OnError, validPolicies); err != nil {
		return err
	}
	if err := oneOf("blob.driver", c.Blob.Driver, validBlobDrivers); err != nil {
		return err
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob.s3.bucket required for s3 driver (set CLINICFLOW_BLOB_S3_BUCKET)")
	}
	if err := oneOf("ledger.driver", c.Ledger.Driver, validLedgerDrivers); err != nil {
		return err
	}
	if err := oneOf("logging.format", c.Logging.Format, validLogFormats); err != nil {
		return err
	}
	if c.Ingest.MasterKey == "" || c.Reshape.NumericKey == "" {
		return fmt.Errorf("artifact keys must be set")
	}
	if c.Ingest.MasterKey == c.Reshape.NumericKey {
		return fmt.Errorf("master and numeric keys must differ: %s", c.Ingest.MasterKey)
	}
	if _, err := c.WatchDebounce(); err != nil {
		return err
	}
	return nil
}

// WatchDebounce parses watch.debounce.
func (c *Config) WatchDebounce() (time.Duration, error) {
	if c.Watch.Debounce == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid watch.debounce %q", c.Watch.Debounce)
	}
	return d, nil
}

func oneOf(field, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %s (valid: %v)", field, value, valid)
}
