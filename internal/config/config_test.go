package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/tagsearch/internal/tagquery"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
query:
  tag_query_limit: 10
search:
  cache_ttl: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if got := cfg.Query.Limits(); got.TagQueryLimit != 10 || got.WildcardLimit != 100 || got.MD5Limit != 100 {
		t.Errorf("limits = %+v", got)
	}
	if cfg.Search.CacheTTL != 30*time.Second {
		t.Errorf("cache_ttl = %v, want 30s", cfg.Search.CacheTTL)
	}
	if len(cfg.Query.Categories) != len(tagquery.DefaultCategories) {
		t.Errorf("categories should default, got %v", cfg.Query.Categories)
	}
}

func TestLoad_envOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
query:
  tag_query_limit: 10
`)
	t.Setenv("TAGSEARCH_SERVER_PORT", "9100")
	t.Setenv("TAGSEARCH_QUERY_TAG_QUERY_LIMIT", "55")
	t.Setenv("TAGSEARCH_DEBUG", "true")
	t.Setenv("TAGSEARCH_STORAGE_POSTGRES_DSN", "postgres://localhost/booru")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Query.TagQueryLimit != 55 {
		t.Errorf("tag_query_limit = %d, want 55", cfg.Query.TagQueryLimit)
	}
	if !cfg.Debug {
		t.Error("debug should be set from the environment")
	}
	if cfg.Storage.PostgresDSN != "postgres://localhost/booru" {
		t.Errorf("postgres_dsn = %q", cfg.Storage.PostgresDSN)
	}
}

func TestLoad_badEnv(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("TAGSEARCH_SERVER_PORT", "not-a-port")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed environment value")
	}
}

func TestLoad_customCategories(t *testing.T) {
	path := writeConfig(t, `
query:
  categories:
    - name: general
      short_names: [gen]
    - name: artist
      short_names: [art, creator]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Query.Categories) != 2 || cfg.Query.Categories[1].Name != "artist" {
		t.Errorf("categories = %+v", cfg.Query.Categories)
	}

	bad := writeConfig(t, `
query:
  categories:
    - name: general
      short_names: [gen]
    - name: genre
      short_names: [gen]
`)
	if _, err := Load(bad); err == nil {
		t.Error("expected error for duplicate short names")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/tags.db"
seed:
  directory: "./seeds"
  watch: true
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "tags.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantSeeds := filepath.Join(dir, "seeds")
	if cfg.Seed.Directory != wantSeeds {
		t.Errorf("seed directory = %s, want %s", cfg.Seed.Directory, wantSeeds)
	}
	if !cfg.Seed.Watch {
		t.Error("seed watch should be true")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Search.DefaultLimit != 75 || cfg.Search.MaxLimit != 320 {
		t.Errorf("default limits: got %d/%d", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Query.TagQueryLimit != 40 {
		t.Errorf("default tag_query_limit: got %d", cfg.Query.TagQueryLimit)
	}
	if cfg.Search.CacheSize != 1000 || cfg.Search.CacheTTL != time.Minute {
		t.Errorf("default cache: got %d/%v", cfg.Search.CacheSize, cfg.Search.CacheTTL)
	}
	if cfg.Query.AlwaysShowDeleted {
		t.Error("always_show_deleted should default to false")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TAGSEARCH_SEARCH_MAX_LIMIT", "50")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.MaxLimit != 50 {
		t.Errorf("max_limit = %d, want 50", cfg.Search.MaxLimit)
	}
	if cfg.Search.DefaultLimit != 75 {
		t.Errorf("default_limit = %d, want 75", cfg.Search.DefaultLimit)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Search:  SearchConfig{CacheTTL: 5 * time.Minute},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Search.CacheTTL != 5*time.Minute {
		t.Errorf("loaded cache_ttl: got %v", loaded.Search.CacheTTL)
	}
}
