package tagquery

import "context"

// TagMatcher finds existing tags matching a wildcard pattern ("*" matches any run).
// Results are ordered by descending post count.
type TagMatcher interface {
	NameMatches(ctx context.Context, pattern string, limit int) ([]string, error)
}

// AliasResolver maps tag names to their alias consequents. Names without an active alias
// map to themselves; a missing key is treated the same way.
type AliasResolver interface {
	ToAliased(ctx context.Context, names []string) (map[string]string, error)
}

// PoolLookup resolves a pool name, or a numeric id string, to a pool id. Unknown pools
// resolve to 0.
type PoolLookup interface {
	PoolNameToID(ctx context.Context, name string) (int64, error)
}

// Repository bundles the collaborators the parser needs.
type Repository interface {
	TagMatcher
	AliasResolver
	PoolLookup
}
