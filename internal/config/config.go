// Package config loads the oksocial configuration: an optional YAML file,
// a .env file in the working directory and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAuthDir holds the credentials document for the file store.
	DefaultAuthDir = "~/.oksocial"
	// DefaultConfigPath is read when --config is not given.
	DefaultConfigPath = "~/.oksocial/config.yaml"

	StoreTypeFile     = "file"
	StoreTypePostgres = "postgres"
	StoreTypeObject   = "object"
	StoreTypeGit      = "git"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// AuthDir is the directory holding stored credentials.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// CallbackTimeout bounds how long an authorization waits for the browser redirect.
	CallbackTimeout time.Duration `yaml:"callback-timeout" json:"callback-timeout"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// LoggingToFile switches logs from stderr to a rotating file under LogDir.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir overrides the log directory. Defaults to <auth-dir>/logs.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// LogsMaxTotalSizeMB caps the log directory; the oldest files are removed first. 0 disables.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	// Debug enables debug level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// Store selects and configures the credential backend.
	Store StoreConfig `yaml:"store" json:"store"`
}

// StoreConfig selects the credential backend.
type StoreConfig struct {
	// Type is one of file, postgres, object or git. Empty means file.
	Type     string         `yaml:"type" json:"type"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Object   ObjectConfig   `yaml:"object" json:"object"`
	Git      GitConfig      `yaml:"git" json:"git"`
}

type PostgresConfig struct {
	DSN    string `yaml:"dsn" json:"dsn"`
	Schema string `yaml:"schema" json:"schema"`
	Table  string `yaml:"table" json:"table"`
}

type ObjectConfig struct {
	// Endpoint may carry an http:// or https:// scheme to select TLS.
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	AccessKey string `yaml:"access-key" json:"access-key"`
	SecretKey string `yaml:"secret-key" json:"secret-key"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
}

type GitConfig struct {
	// LocalPath is the working tree. Defaults to <auth-dir>/gitstore.
	LocalPath string `yaml:"local-path" json:"local-path"`
	Remote    string `yaml:"remote" json:"remote"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"password"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		AuthDir:         DefaultAuthDir,
		CallbackTimeout: 5 * time.Minute,
		Store:           StoreConfig{Type: StoreTypeFile},
	}
}

// LoadConfigOptional reads path when it exists, applies environment overrides
// and fills defaults. A missing file is not an error.
func LoadConfigOptional(path string) (*Config, error) {
	cfg := Default()
	if path = expandHome(strings.TrimSpace(path)); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Debugf("config file %s not found, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		case len(strings.TrimSpace(string(data))) > 0:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads dir/.env into the process environment when present.
func LoadDotEnv(dir string) {
	if errLoad := godotenv.Load(filepath.Join(dir, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}
}

// ApplyEnv overlays OKSOCIAL_* variables and the store variables shared with
// container deployments (PGSTORE_*, OBJECTSTORE_*, GITSTORE_*).
func (c *Config) ApplyEnv() {
	if value, ok := lookupEnv("OKSOCIAL_AUTH_DIR", "oksocial_auth_dir"); ok {
		c.AuthDir = value
	}
	if value, ok := lookupEnv("OKSOCIAL_PROXY_URL", "oksocial_proxy_url"); ok {
		c.ProxyURL = value
	}
	if value, ok := lookupEnv("OKSOCIAL_CALLBACK_TIMEOUT", "oksocial_callback_timeout"); ok {
		if d, err := time.ParseDuration(value); err == nil {
			c.CallbackTimeout = d
		} else {
			log.Warnf("ignoring invalid OKSOCIAL_CALLBACK_TIMEOUT %q: %v", value, err)
		}
	}

	if value, ok := lookupEnv("PGSTORE_DSN", "pgstore_dsn"); ok {
		c.Store.Type = StoreTypePostgres
		c.Store.Postgres.DSN = value
	}
	if value, ok := lookupEnv("PGSTORE_SCHEMA", "pgstore_schema"); ok {
		c.Store.Postgres.Schema = value
	}
	if value, ok := lookupEnv("OBJECTSTORE_ENDPOINT", "objectstore_endpoint"); ok {
		c.Store.Type = StoreTypeObject
		c.Store.Object.Endpoint = value
	}
	if value, ok := lookupEnv("OBJECTSTORE_ACCESS_KEY", "objectstore_access_key"); ok {
		c.Store.Object.AccessKey = value
	}
	if value, ok := lookupEnv("OBJECTSTORE_SECRET_KEY", "objectstore_secret_key"); ok {
		c.Store.Object.SecretKey = value
	}
	if value, ok := lookupEnv("OBJECTSTORE_BUCKET", "objectstore_bucket"); ok {
		c.Store.Object.Bucket = value
	}
	if value, ok := lookupEnv("GITSTORE_GIT_URL", "gitstore_git_url"); ok {
		c.Store.Type = StoreTypeGit
		c.Store.Git.Remote = value
	}
	if value, ok := lookupEnv("GITSTORE_GIT_USERNAME", "gitstore_git_username"); ok {
		c.Store.Git.Username = value
	}
	if value, ok := lookupEnv("GITSTORE_GIT_TOKEN", "gitstore_git_token"); ok {
		c.Store.Git.Password = value
	}
	if value, ok := lookupEnv("GITSTORE_LOCAL_PATH", "gitstore_local_path"); ok {
		c.Store.Git.LocalPath = value
	}
}

// Validate fills defaults and rejects unknown store types.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AuthDir) == "" {
		c.AuthDir = DefaultAuthDir
	}
	if c.CallbackTimeout <= 0 {
		c.CallbackTimeout = 5 * time.Minute
	}
	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	switch c.Store.Type {
	case "":
		c.Store.Type = StoreTypeFile
	case StoreTypeFile, StoreTypeGit:
	case StoreTypePostgres:
		if strings.TrimSpace(c.Store.Postgres.DSN) == "" {
			return fmt.Errorf("config: store.postgres.dsn is required for the postgres store")
		}
	case StoreTypeObject:
		if strings.TrimSpace(c.Store.Object.Endpoint) == "" || strings.TrimSpace(c.Store.Object.Bucket) == "" {
			return fmt.Errorf("config: store.object.endpoint and store.object.bucket are required for the object store")
		}
	default:
		return fmt.Errorf("config: unknown store type %q", c.Store.Type)
	}
	return nil
}

func lookupEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimLeft(strings.TrimPrefix(path, "~"), "/\\"))
}
