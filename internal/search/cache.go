package search

import (
	"context"

	"github.com/hyperjump/tagsearch/internal/indexquery"
	"github.com/hyperjump/tagsearch/internal/sqlquery"
	"github.com/hyperjump/tagsearch/internal/tagquery"
)

type cacheKey struct {
	query             string
	resolveAliases    bool
	alwaysShowDeleted bool
}

// compiled is a parsed query with both compiled forms. Entries are read-only once cached.
type compiled struct {
	query    *tagquery.Query
	relation *sqlquery.Relation
	document *indexquery.Document
}

func (e *Engine) compiled(ctx context.Context, query string, resolveAliases, alwaysShowDeleted bool) (*compiled, error) {
	key := cacheKey{
		query:             query,
		resolveAliases:    resolveAliases,
		alwaysShowDeleted: e.alwaysShowDeleted || alwaysShowDeleted,
	}
	if c, ok := e.cache.Get(key); ok {
		e.metrics.CacheHitsTotal.Inc()
		return c, nil
	}
	e.metrics.CacheMissesTotal.Inc()

	q, err := e.Parse(ctx, query, resolveAliases)
	if err != nil {
		return nil, err
	}
	rel, doc, err := e.CompileBoth(ctx, q, key.alwaysShowDeleted)
	if err != nil {
		return nil, err
	}
	c := &compiled{query: q, relation: rel, document: doc}
	e.cache.Add(key, c)
	return c, nil
}

// PurgeCache drops every compiled query, e.g. after tags or aliases change.
func (e *Engine) PurgeCache() {
	e.cache.Purge()
}
