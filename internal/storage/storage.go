// Package storage defines the persistence interface for posts, tags, aliases and pools.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/internal/tagquery"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines post and tag persistence operations. It also serves the tag query
// parser as its repository.
type Storage interface {
	tagquery.Repository

	// Tag operations
	UpsertTag(ctx context.Context, tag *models.Tag) error
	GetTag(ctx context.Context, name string) (*models.Tag, error)
	TagNamesWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
	RecountTags(ctx context.Context) error
	UpsertAlias(ctx context.Context, alias *models.TagAlias) error

	// Pool operations
	UpsertPool(ctx context.Context, pool *models.Pool) error

	// Post operations
	UpsertPost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	ListPosts(ctx context.Context, afterID int64, limit int) ([]*models.Post, error)
	ChildIDs(ctx context.Context, parentID int64) ([]int64, error)
	DeletePost(ctx context.Context, id int64) error

	// Stats
	CountPosts(ctx context.Context) (int64, error)
	CountTags(ctx context.Context) (int64, error)

	Close() error
}
