// Package seed imports tags, aliases, pools and posts from YAML files into storage.
package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/internal/storage"
)

// File is the layout of one seed file. Every section is optional.
type File struct {
	Tags    []models.Tag      `yaml:"tags"`
	Aliases []models.TagAlias `yaml:"aliases"`
	Pools   []models.Pool     `yaml:"pools"`
	Posts   []models.Post     `yaml:"posts"`
}

// Stats counts imported rows.
type Stats struct {
	Files   int `json:"files"`
	Tags    int `json:"tags"`
	Aliases int `json:"aliases"`
	Pools   int `json:"pools"`
	Posts   int `json:"posts"`
	// PostIDs lists the imported posts so callers can reindex them.
	PostIDs []int64 `json:"-"`
}

func (s *Stats) add(o Stats) {
	s.Files += o.Files
	s.Tags += o.Tags
	s.Aliases += o.Aliases
	s.Pools += o.Pools
	s.Posts += o.Posts
	s.PostIDs = append(s.PostIDs, o.PostIDs...)
}

// Importer writes seed files into storage.
type Importer struct {
	store  storage.Storage
	logger *zap.Logger
}

// NewImporter creates an importer. logger may be nil.
func NewImporter(store storage.Storage, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger}
}

// IsSeedFile reports whether path has a YAML extension.
func IsSeedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Parse decodes a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, p := range f.Posts {
		if p.ID <= 0 {
			return nil, fmt.Errorf("post %d: id must be positive", i)
		}
	}
	for i, t := range f.Tags {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("tag %d: name is required", i)
		}
	}
	return &f, nil
}

// ImportFile imports one seed file and recounts tag usage.
func (im *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	stats, err := im.importFile(ctx, path)
	if err != nil {
		return stats, err
	}
	if err := im.store.RecountTags(ctx); err != nil {
		return stats, fmt.Errorf("failed to recount tags: %w", err)
	}
	return stats, nil
}

// ImportDir imports every seed file in dir in name order and recounts tag usage once.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Stats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read seed directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && IsSeedFile(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	var total Stats
	for _, p := range paths {
		stats, err := im.importFile(ctx, p)
		if err != nil {
			return total, err
		}
		total.add(stats)
	}
	if err := im.store.RecountTags(ctx); err != nil {
		return total, fmt.Errorf("failed to recount tags: %w", err)
	}
	im.logger.Info("seed import complete",
		zap.String("dir", dir),
		zap.Int("files", total.Files),
		zap.Int("posts", total.Posts),
		zap.Int("tags", total.Tags),
	)
	return total, nil
}

func (im *Importer) importFile(ctx context.Context, path string) (Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return Stats{}, fmt.Errorf("%s: %w", path, err)
	}
	stats := Stats{Files: 1}

	// tags first so post category counts see them
	for i := range f.Tags {
		t := &f.Tags[i]
		t.Name = strings.ToLower(strings.TrimSpace(t.Name))
		if err := im.store.UpsertTag(ctx, t); err != nil {
			return stats, fmt.Errorf("failed to store tag %s: %w", t.Name, err)
		}
		stats.Tags++
	}
	for i := range f.Aliases {
		a := &f.Aliases[i]
		if err := im.store.UpsertAlias(ctx, a); err != nil {
			return stats, fmt.Errorf("failed to store alias %s: %w", a.AntecedentName, err)
		}
		stats.Aliases++
	}
	for i := range f.Pools {
		if err := im.store.UpsertPool(ctx, &f.Pools[i]); err != nil {
			return stats, fmt.Errorf("failed to store pool %d: %w", f.Pools[i].ID, err)
		}
		stats.Pools++
	}
	for i := range f.Posts {
		p := &f.Posts[i]
		for j, t := range p.Tags {
			p.Tags[j] = strings.ToLower(t)
		}
		if err := im.store.UpsertPost(ctx, p); err != nil {
			return stats, fmt.Errorf("failed to store post %d: %w", p.ID, err)
		}
		stats.Posts++
		stats.PostIDs = append(stats.PostIDs, p.ID)
	}
	im.logger.Debug("seed file imported", zap.String("path", path), zap.Int("posts", stats.Posts))
	return stats, nil
}
