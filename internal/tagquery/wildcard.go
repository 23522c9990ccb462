package tagquery

import (
	"context"
	"fmt"
)

// WildcardExpander turns a "*" pattern into the concrete tag names it matches.
type WildcardExpander struct {
	tags  TagMatcher
	limit int
}

// NewWildcardExpander returns an expander that asks tags for at most limit names.
func NewWildcardExpander(tags TagMatcher, limit int) *WildcardExpander {
	if limit <= 0 {
		limit = DefaultLimits.WildcardLimit
	}
	return &WildcardExpander{tags: tags, limit: limit}
}

// Expand returns the names matching pattern, most used first. A pattern matching nothing
// expands to NotFoundTag; one matching more than the limit is a *CountExceededError.
func (w *WildcardExpander) Expand(ctx context.Context, pattern string) ([]string, error) {
	names, err := w.tags.NameMatches(ctx, pattern, w.limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to expand wildcard %q: %w", pattern, err)
	}
	if len(names) > w.limit {
		return nil, &CountExceededError{Limit: w.limit, Count: len(names), Pattern: pattern}
	}
	if len(names) == 0 {
		return []string{NotFoundTag}, nil
	}
	return names, nil
}
