package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is wrapped by request validation errors.
var ErrInvalidRequest = errors.New("invalid request")

// SearchRequest is a post search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	// Page is 1-based.
	Page              int   `json:"page,omitempty"`
	ResolveAliases    *bool `json:"resolve_aliases,omitempty"`
	AlwaysShowDeleted bool  `json:"always_show_deleted,omitempty"`
	// Backend is sql or index; it defaults to index.
	Backend Backend `json:"backend,omitempty"`
}

// Validate normalizes limit, page and backend. A limit written in the query ("limit:20")
// is used when the request has none.
func (r *SearchRequest) Validate(defaultLimit, maxLimit int) error {
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit cannot be negative", ErrInvalidRequest)
	}
	r.Backend = Backend(strings.ToLower(string(r.Backend)))
	switch r.Backend {
	case "":
		r.Backend = BackendIndex
	case BackendSQL, BackendIndex:
	default:
		return fmt.Errorf("%w: unknown search backend %q", ErrInvalidRequest, r.Backend)
	}
	if r.Limit == 0 {
		r.Limit = defaultLimit
	}
	if r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	if r.Page <= 0 {
		r.Page = 1
	}
	return nil
}

// Offset is the number of posts skipped before the page.
func (r *SearchRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

// ShouldResolveAliases defaults to true.
func (r *SearchRequest) ShouldResolveAliases() bool {
	return r.ResolveAliases == nil || *r.ResolveAliases
}

// Backend selects which compiled representation a compile request wants.
type Backend string

const (
	BackendSQL   Backend = "sql"
	BackendIndex Backend = "index"
	BackendBoth  Backend = "both"
)

// CompileRequest asks for the compiled form of a query.
type CompileRequest struct {
	Query             string  `json:"query"`
	Backend           Backend `json:"backend,omitempty"`
	ResolveAliases    *bool   `json:"resolve_aliases,omitempty"`
	AlwaysShowDeleted bool    `json:"always_show_deleted,omitempty"`
}

// Validate defaults the backend to both and rejects unknown backends.
func (r *CompileRequest) Validate() error {
	r.Backend = Backend(strings.ToLower(string(r.Backend)))
	switch r.Backend {
	case "":
		r.Backend = BackendBoth
	case BackendSQL, BackendIndex, BackendBoth:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidRequest, r.Backend)
	}
	return nil
}

// ShouldResolveAliases defaults to true.
func (r *CompileRequest) ShouldResolveAliases() bool {
	return r.ResolveAliases == nil || *r.ResolveAliases
}
