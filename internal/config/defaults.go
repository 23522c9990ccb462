package config

import (
	"time"

	"github.com/hyperjump/tagsearch/internal/tagquery"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tagsearch/data/db/tags.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/tagsearch/data/indices/posts.bleve"
	}
	if cfg.Query.TagQueryLimit == 0 {
		cfg.Query.TagQueryLimit = tagquery.DefaultLimits.TagQueryLimit
	}
	if cfg.Query.WildcardLimit == 0 {
		cfg.Query.WildcardLimit = tagquery.DefaultLimits.WildcardLimit
	}
	if cfg.Query.MD5Limit == 0 {
		cfg.Query.MD5Limit = tagquery.DefaultLimits.MD5Limit
	}
	if cfg.Query.Categories == nil {
		cfg.Query.Categories = append([]tagquery.Category(nil), tagquery.DefaultCategories...)
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 75
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 320
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = 1000
	}
	if cfg.Search.CacheTTL == 0 {
		cfg.Search.CacheTTL = time.Minute
	}
}
