// Package models defines core data structures for posts, tags, search requests and results.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Post is one uploaded file with its searchable metadata.
type Post struct {
	ID                     int64          `json:"id" yaml:"id"`
	MD5                    string         `json:"md5" yaml:"md5"`
	Rating                 string         `json:"rating" yaml:"rating"`
	FileExt                string         `json:"file_ext" yaml:"file_ext"`
	FileSize               int64          `json:"file_size" yaml:"file_size"`
	Width                  int            `json:"image_width" yaml:"width"`
	Height                 int            `json:"image_height" yaml:"height"`
	Duration               *float64       `json:"duration,omitempty" yaml:"duration"`
	Framecount             int            `json:"framecount" yaml:"framecount"`
	ChangeSeq              int64          `json:"change_seq" yaml:"change_seq"`
	Score                  int            `json:"score" yaml:"score"`
	Fav                    bool           `json:"fav" yaml:"fav"`
	Tags                   []string       `json:"tags" yaml:"tags"`
	TagCounts              map[string]int `json:"tag_counts,omitempty" yaml:"-"`
	Sources                []string       `json:"sources,omitempty" yaml:"sources"`
	Description            string         `json:"description,omitempty" yaml:"description"`
	ParentID               *int64         `json:"parent_id,omitempty" yaml:"parent_id"`
	PoolIDs                []int64        `json:"pool_ids,omitempty" yaml:"pool_ids"`
	IsDeleted              bool           `json:"is_deleted" yaml:"is_deleted"`
	IsPending              bool           `json:"is_pending" yaml:"is_pending"`
	IsFlagged              bool           `json:"is_flagged" yaml:"is_flagged"`
	IsAppealed             bool           `json:"is_appealed" yaml:"is_appealed"`
	HasPendingReplacements bool           `json:"has_pending_replacements" yaml:"has_pending_replacements"`
	DelReason              string         `json:"del_reason,omitempty" yaml:"del_reason"`
	CreatedAt              time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at" yaml:"updated_at"`
}

// TagString is the space separated tag list stored on the post row.
func (p *Post) TagString() string {
	return strings.Join(p.Tags, " ")
}

// PoolString lists the post's pools as "pool:<id>" tokens.
func (p *Post) PoolString() string {
	parts := make([]string, len(p.PoolIDs))
	for i, id := range p.PoolIDs {
		parts[i] = fmt.Sprintf("pool:%d", id)
	}
	return strings.Join(parts, " ")
}

// Mpixels is the image area in megapixels.
func (p *Post) Mpixels() float64 {
	return float64(p.Width) * float64(p.Height) / 1000000.0
}

// AspectRatio is width over height rounded to two places.
func (p *Post) AspectRatio() float64 {
	return math.Round(float64(p.Width)/math.Max(1, float64(p.Height))*100) / 100
}

// Tag is a tag name with its category and usage count.
type Tag struct {
	Name      string `json:"name" yaml:"name"`
	Category  string `json:"category" yaml:"category"`
	PostCount int    `json:"post_count" yaml:"post_count"`
}

// TagAlias rewrites AntecedentName to ConsequentName while active.
type TagAlias struct {
	AntecedentName string `json:"antecedent_name" yaml:"antecedent"`
	ConsequentName string `json:"consequent_name" yaml:"consequent"`
	Status         string `json:"status" yaml:"status"`
}

// Pool is a named, ordered collection of posts.
type Pool struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}
