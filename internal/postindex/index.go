// Package postindex stores denormalized posts in a Bleve index and executes compiled
// index documents against it.
package postindex

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"
)

// Field kinds decide how a compiled clause value is turned into a Bleve query.
type fieldKind int

const (
	numericField fieldKind = iota
	keywordField
	textField
	boolField
	dateField
)

var fieldKinds = map[string]fieldKind{
	"tags":                     keywordField,
	"md5":                      keywordField,
	"rating":                   keywordField,
	"file_ext":                 keywordField,
	"source":                   keywordField,
	"del_reason":               keywordField,
	"pools":                    keywordField,
	"parent":                   keywordField,
	"children":                 keywordField,
	"description":              textField,
	"deleted":                  boolField,
	"pending":                  boolField,
	"flagged":                  boolField,
	"appealed":                 boolField,
	"has_children":             boolField,
	"has_pending_replacements": boolField,
	"fav":                      boolField,
	"created_at":               dateField,
	"updated_at":               dateField,
}

func kindOf(field string) fieldKind {
	if k, ok := fieldKinds[field]; ok {
		return k
	}
	return numericField
}

// BleveIndex is the post search index.
type BleveIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// IndexOption configures a BleveIndex.
type IndexOption func(*BleveIndex)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexOption {
	return func(b *BleveIndex) { b.logger = l }
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	post := bleve.NewDocumentMapping()
	for field, kind := range fieldKinds {
		var fm *mapping.FieldMapping
		switch kind {
		case keywordField:
			fm = bleve.NewKeywordFieldMapping()
		case textField:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = standard.Name
		case boolField:
			fm = bleve.NewBooleanFieldMapping()
		case dateField:
			fm = bleve.NewDateTimeFieldMapping()
		}
		post.AddFieldMappingsAt(field, fm)
	}
	// ids, counts and the per-category tag_count_<name> fields are numeric; dynamic
	// mapping picks up the category fields.
	for _, field := range []string{"id", "score", "width", "height", "mpixels", "aspect_ratio",
		"duration", "framecount", "file_size", "change_seq", "tag_count"} {
		post.AddFieldMappingsAt(field, bleve.NewNumericFieldMapping())
	}
	im.AddDocumentMapping("post", post)
	im.DefaultType = "post"
	im.DefaultMapping = post
	return im
}

// NewBleveIndex creates or opens the post index at path.
// If you change the mapping in code, remove the index directory and reindex.
func NewBleveIndex(path string, opts ...IndexOption) (*BleveIndex, error) {
	b := &BleveIndex{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return b, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// NewMemoryIndex creates an in-memory post index.
func NewMemoryIndex(opts ...IndexOption) (*BleveIndex, error) {
	b := &BleveIndex{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// Index adds or replaces one document.
func (b *BleveIndex) Index(ctx context.Context, doc Document) error {
	return b.index.Index(doc.ID(), doc)
}

// IndexBatch adds or replaces documents in one batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, docs []Document) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID(), doc); err != nil {
			return fmt.Errorf("failed to batch post %s: %w", doc.ID(), err)
		}
	}
	return b.index.Batch(batch)
}

// Delete removes a post from the index.
func (b *BleveIndex) Delete(ctx context.Context, postID int64) error {
	return b.index.Delete(strconv.FormatInt(postID, 10))
}

// DocCount returns the number of indexed posts.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
