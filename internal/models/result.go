package models

import "encoding/json"

// SearchResponse is the response for a post search.
type SearchResponse struct {
	RequestID string  `json:"request_id"`
	Query     string  `json:"query"`
	PostIDs   []int64 `json:"post_ids"`
	Total     uint64  `json:"total"`
	Page      int     `json:"page"`
	Limit     int     `json:"limit"`
	QueryTime int64   `json:"query_time_ms"`
	// Suggestions holds "did you mean" tag names for required tags that do not exist.
	// Only populated when the search found nothing.
	Suggestions []string `json:"suggestions,omitempty"`
}

// CompileResponse carries the compiled forms of a query.
type CompileResponse struct {
	RequestID string          `json:"request_id,omitempty"`
	Query     string          `json:"query"`
	SQL       json.Marshaler  `json:"sql,omitempty"`
	Index     json.Marshaler  `json:"index,omitempty"`
	Model     json.RawMessage `json:"model,omitempty"`
}

// StatusResponse describes the service's data.
type StatusResponse struct {
	Posts          int64  `json:"posts"`
	Tags           int64  `json:"tags"`
	IndexedPosts   uint64 `json:"indexed_posts"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	Version        string `json:"version"`
}
