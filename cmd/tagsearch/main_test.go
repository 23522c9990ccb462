package main

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/tagsearch/internal/config"
	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/internal/seed"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"fox", "-wolf", "--limit", "20"},
			expected: []string{"--limit", "20", "--", "fox", "-wolf"},
		},
		{
			name:     "flags only",
			args:     []string{"-limit", "5", "-debug"},
			expected: []string{"-limit", "5", "-debug"},
		},
		{
			name:     "inline value",
			args:     []string{"fox", "-limit=5", "rating:s"},
			expected: []string{"-limit=5", "--", "fox", "rating:s"},
		},
		{
			name:     "flags interleaved with terms",
			args:     []string{"fox", "-aliases", "-wolf", "-page", "2", "solo"},
			expected: []string{"-aliases", "-page", "2", "--", "fox", "-wolf", "solo"},
		},
		{
			name:     "double dash passes the rest through",
			args:     []string{"-debug", "--", "-limit", "fox"},
			expected: []string{"-debug", "--", "-limit", "fox"},
		},
		{
			name:     "query only",
			args:     []string{"fox", "-wolf"},
			expected: []string{"--", "fox", "-wolf"},
		},
		{
			name:     "empty args",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFlagName(t *testing.T) {
	tests := []struct {
		arg       string
		name      string
		withValue bool
	}{
		{"-limit", "limit", false},
		{"--limit", "limit", false},
		{"-limit=5", "limit", true},
		{"fox", "", false},
		{"-", "", false},
		{"-wolf", "wolf", false},
	}
	for _, tt := range tests {
		name, withValue := flagName(tt.arg)
		if name != tt.name || withValue != tt.withValue {
			t.Errorf("flagName(%q) = %q, %v; want %q, %v", tt.arg, name, withValue, tt.name, tt.withValue)
		}
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single tag", []string{"fox"}, "fox"},
		{"multiple tags", []string{"fox", "-wolf", "rating:s"}, "fox -wolf rating:s"},
		{"single quoted query", []string{"fox ~wolf ~dragon"}, "fox ~wolf ~dragon"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSearchURL(t *testing.T) {
	resolve := false
	got := searchURL("http://localhost:8080/", &models.SearchRequest{
		Query:             "fox -wolf",
		Limit:             10,
		Page:              3,
		Backend:           models.BackendSQL,
		ResolveAliases:    &resolve,
		AlwaysShowDeleted: true,
	})
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/api/v1/posts" {
		t.Errorf("path = %q", u.Path)
	}
	want := url.Values{
		"tags":                {"fox -wolf"},
		"limit":               {"10"},
		"page":                {"3"},
		"backend":             {"sql"},
		"resolve_aliases":     {"false"},
		"always_show_deleted": {"true"},
	}
	if !reflect.DeepEqual(u.Query(), want) {
		t.Errorf("query = %v, want %v", u.Query(), want)
	}

	got = searchURL("http://localhost:8080", &models.SearchRequest{Query: "fox", Page: 1})
	if got != "http://localhost:8080/api/v1/posts?tags=fox" {
		t.Errorf("minimal url = %q", got)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "tags.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// t.TempDir() may sit behind a symlink (macOS /var -> /private/var).
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
query:
  tag_query_limit: 20
storage:
  database_path: "tags.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Query.TagQueryLimit != 20 {
		t.Errorf("tag query limit = %d, want 20", cfg.Query.TagQueryLimit)
	}
}

func TestReloadSeeds(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "tags.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "posts.bleve")

	logger := zap.NewNop()
	c, err := initializeComponents(cfg, logger, true)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resp, err := c.Engine.Search(ctx, &models.SearchRequest{Query: "fox"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Fatalf("empty index returned %d posts", resp.Total)
	}

	seedPath := filepath.Join(dir, "posts.yaml")
	content := `
tags:
  - name: fox
    category: species
posts:
  - id: 7
    rating: s
    tags: [fox, solo]
    created_at: 2024-06-01T10:00:00Z
`
	if err := os.WriteFile(seedPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "gone.yaml")
	reloadSeeds(ctx, seed.NewImporter(c.Storage, logger), c, logger, []string{missing, seedPath})

	resp, err = c.Engine.Search(ctx, &models.SearchRequest{Query: "fox"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(resp.PostIDs, []int64{7}) {
		t.Errorf("post ids after reload = %v, want [7]", resp.PostIDs)
	}
}
