// Package config provides configuration loading and structs for the tagsearch server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/tagsearch/internal/tagquery"
)

// EnvPrefix prefixes environment overrides, e.g. TAGSEARCH_SERVER_PORT.
const EnvPrefix = "TAGSEARCH"

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug" envconfig:"debug"`
	Server  ServerConfig  `yaml:"server" envconfig:"server"`
	Storage StorageConfig `yaml:"storage" envconfig:"storage"`
	Query   QueryConfig   `yaml:"query" envconfig:"query"`
	Search  SearchConfig  `yaml:"search" envconfig:"search"`
	Seed    SeedConfig    `yaml:"seed" envconfig:"seed"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"host"`
	Port int    `yaml:"port" envconfig:"port"`
}

// StorageConfig holds paths for the tag database and post index, and the optional
// postgres connection used to run compiled SQL.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path" envconfig:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path" envconfig:"bleve_index_path"`
	PostgresDSN    string `yaml:"postgres_dsn" envconfig:"postgres_dsn"`
}

// QueryConfig holds tag query parsing limits and the tag categories.
type QueryConfig struct {
	TagQueryLimit     int                 `yaml:"tag_query_limit" envconfig:"tag_query_limit"`
	WildcardLimit     int                 `yaml:"wildcard_limit" envconfig:"wildcard_limit"`
	MD5Limit          int                 `yaml:"md5_limit" envconfig:"md5_limit"`
	AlwaysShowDeleted bool                `yaml:"always_show_deleted" envconfig:"always_show_deleted"`
	Categories        []tagquery.Category `yaml:"categories" ignored:"true"`
}

// Limits converts the query settings to parser limits.
func (q QueryConfig) Limits() tagquery.Limits {
	return tagquery.Limits{TagQueryLimit: q.TagQueryLimit, WildcardLimit: q.WildcardLimit, MD5Limit: q.MD5Limit}
}

// SearchConfig holds paging and compiled query cache settings.
type SearchConfig struct {
	DefaultLimit int           `yaml:"default_limit" envconfig:"default_limit"`
	MaxLimit     int           `yaml:"max_limit" envconfig:"max_limit"`
	CacheSize    int           `yaml:"cache_size" envconfig:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl" envconfig:"cache_ttl"`
}

// SeedConfig holds the seed directory and whether it is watched for changes.
type SeedConfig struct {
	Directory string `yaml:"directory" envconfig:"directory"`
	Watch     bool   `yaml:"watch" envconfig:"watch"`
}

// Load reads and parses the config file at path, applies environment overrides, expands
// paths, and applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Seed.Directory != "" {
		cfg.Seed.Directory = expandPath(cfg.Seed.Directory, configDir)
	}

	if _, err := tagquery.NewVocabulary(cfg.Query.Categories); err != nil {
		return nil, fmt.Errorf("invalid tag categories: %w", err)
	}
	return &cfg, nil
}

// FromEnv builds a config from defaults and environment variables only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
