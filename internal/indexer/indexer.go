// Package indexer copies posts from storage into the post search index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/internal/postindex"
	"github.com/hyperjump/tagsearch/internal/storage"
)

// DefaultBatchSize is the number of posts read and indexed per batch.
const DefaultBatchSize = 500

// PostIndex is the write side of the post search index.
type PostIndex interface {
	Index(ctx context.Context, doc postindex.Document) error
	IndexBatch(ctx context.Context, docs []postindex.Document) error
	Delete(ctx context.Context, postID int64) error
}

// Indexer denormalizes posts from storage into the search index.
type Indexer struct {
	storage   storage.Storage
	index     PostIndex
	batchSize int
	logger    *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (post indexed, post removed, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithBatchSize sets how many posts are indexed per batch.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// NewIndexer creates an indexer reading from store and writing to index.
func NewIndexer(store storage.Storage, index PostIndex, opts ...IndexerOption) *Indexer {
	idx := &Indexer{storage: store, index: index, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Reindex indexes every stored post and returns how many were indexed.
func (idx *Indexer) Reindex(ctx context.Context) (int, error) {
	var (
		afterID int64
		total   int
	)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		posts, err := idx.storage.ListPosts(ctx, afterID, idx.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list posts: %w", err)
		}
		if len(posts) == 0 {
			break
		}
		docs := make([]postindex.Document, 0, len(posts))
		for _, p := range posts {
			doc, err := idx.document(ctx, p)
			if err != nil {
				return total, err
			}
			docs = append(docs, doc)
		}
		if err := idx.index.IndexBatch(ctx, docs); err != nil {
			return total, fmt.Errorf("failed to index batch: %w", err)
		}
		total += len(docs)
		afterID = posts[len(posts)-1].ID
		if idx.logger != nil {
			idx.logger.Debug("indexer indexed batch", zap.Int("posts", len(docs)), zap.Int64("last_id", afterID))
		}
	}
	if idx.logger != nil {
		idx.logger.Info("reindex complete", zap.Int("posts", total))
	}
	return total, nil
}

// IndexPost indexes one post. A post missing from storage is removed from the index.
// Its parent is reindexed too, since the parent's children list may have changed.
func (idx *Indexer) IndexPost(ctx context.Context, id int64) error {
	post, err := idx.indexOne(ctx, id)
	if err != nil || post == nil || post.ParentID == nil || *post.ParentID == id {
		return err
	}
	_, err = idx.indexOne(ctx, *post.ParentID)
	return err
}

func (idx *Indexer) indexOne(ctx context.Context, id int64) (*models.Post, error) {
	post, err := idx.storage.GetPost(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		if idx.logger != nil {
			idx.logger.Debug("indexer removing post", zap.Int64("id", id))
		}
		return nil, idx.index.Delete(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	doc, err := idx.document(ctx, post)
	if err != nil {
		return nil, err
	}
	if err := idx.index.Index(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to index post %d: %w", id, err)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer indexed post", zap.Int64("id", id))
	}
	return post, nil
}

func (idx *Indexer) document(ctx context.Context, p *models.Post) (postindex.Document, error) {
	children, err := idx.storage.ChildIDs(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load children of post %d: %w", p.ID, err)
	}
	p.Description = normalizeDescription(p.Description)
	return postindex.NewDocument(p, children), nil
}

// normalizeDescription collapses whitespace runs so phrase prefixes match across line breaks.
func normalizeDescription(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
