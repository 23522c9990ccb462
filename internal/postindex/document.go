package postindex

import (
	"strconv"
	"strings"

	"github.com/hyperjump/tagsearch/internal/models"
)

// Document is the flattened form of a post stored in the index. Field names match the
// ones the index compiler emits.
type Document map[string]any

// ID is the Bleve document id.
func (d Document) ID() string {
	switch id := d["id"].(type) {
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	return ""
}

// NewDocument denormalizes a post and the ids of its children. Empty values are left out
// so exists clauses only match posts that carry the field.
func NewDocument(p *models.Post, children []int64) Document {
	d := Document{
		"id":                       p.ID,
		"score":                    p.Score,
		"width":                    p.Width,
		"height":                   p.Height,
		"mpixels":                  p.Mpixels(),
		"aspect_ratio":             p.AspectRatio(),
		"framecount":               p.Framecount,
		"file_size":                p.FileSize,
		"change_seq":               p.ChangeSeq,
		"tag_count":                len(p.Tags),
		"tags":                     p.Tags,
		"md5":                      strings.ToLower(p.MD5),
		"rating":                   p.Rating,
		"file_ext":                 p.FileExt,
		"deleted":                  p.IsDeleted,
		"pending":                  p.IsPending,
		"flagged":                  p.IsFlagged,
		"appealed":                 p.IsAppealed,
		"has_children":             len(children) > 0,
		"has_pending_replacements": p.HasPendingReplacements,
		"fav":                      p.Fav,
		"created_at":               p.CreatedAt,
		"updated_at":               p.UpdatedAt,
	}
	for category, n := range p.TagCounts {
		d["tag_count_"+category] = n
	}
	if p.Duration != nil {
		d["duration"] = *p.Duration
	}
	if len(p.Sources) > 0 {
		sources := make([]string, len(p.Sources))
		for i, s := range p.Sources {
			sources[i] = strings.ToLower(s)
		}
		d["source"] = sources
	}
	if p.Description != "" {
		d["description"] = p.Description
	}
	if p.ParentID != nil {
		d["parent"] = strconv.FormatInt(*p.ParentID, 10)
	}
	if len(children) > 0 {
		d["children"] = idStrings(children)
	}
	if len(p.PoolIDs) > 0 {
		d["pools"] = idStrings(p.PoolIDs)
	}
	// the reason only matters while the post is deleted
	if p.IsDeleted && p.DelReason != "" {
		d["del_reason"] = p.DelReason
	}
	return d
}

func idStrings(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
