// Package search parses, compiles and executes tag queries.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/tagsearch/internal/config"
	"github.com/hyperjump/tagsearch/internal/indexquery"
	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/internal/parsevalue"
	"github.com/hyperjump/tagsearch/internal/postindex"
	"github.com/hyperjump/tagsearch/internal/sqlquery"
	"github.com/hyperjump/tagsearch/internal/storage"
	"github.com/hyperjump/tagsearch/internal/suggest"
	"github.com/hyperjump/tagsearch/internal/tagquery"
)

// ErrNoSQLBackend is returned for sql searches when no database is configured.
var ErrNoSQLBackend = errors.New("sql search backend is not configured")

// PostIndex executes compiled index documents.
type PostIndex interface {
	Search(ctx context.Context, doc *indexquery.Document, page postindex.Page) (*postindex.Result, error)
}

// Engine runs the query pipeline: parse once, compile for one or both backends, execute.
type Engine struct {
	parser            *tagquery.Parser
	sqlCompiler       *sqlquery.Compiler
	indexCompiler     *indexquery.Compiler
	index             PostIndex
	executor          *sqlquery.Executor
	suggester         *suggest.Suggester
	cache             *expirable.LRU[cacheKey, *compiled]
	config            config.SearchConfig
	alwaysShowDeleted bool
	metrics           *Metrics
	logger            *zap.Logger
}

type engineOptions struct {
	logger   *zap.Logger
	metrics  *Metrics
	executor *sqlquery.Executor
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithMetrics records parse, compile and search metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithExecutor enables sql searches against a posts database.
func WithExecutor(e *sqlquery.Executor) Option {
	return func(o *engineOptions) { o.executor = e }
}

// WithClock sets the time source for relative dates and the rank order.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// NewEngine creates a search engine over the tag repository and post index.
func NewEngine(store storage.Storage, index PostIndex, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := engineOptions{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}

	vocab, err := tagquery.NewVocabulary(cfg.Query.Categories)
	if err != nil {
		return nil, fmt.Errorf("invalid tag categories: %w", err)
	}
	cacheSize := cfg.Search.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1
	}

	return &Engine{
		parser: tagquery.NewParser(store,
			tagquery.WithVocabulary(vocab),
			tagquery.WithLimits(cfg.Query.Limits()),
			tagquery.WithClock(o.now),
			tagquery.WithLogger(o.logger),
		),
		sqlCompiler: sqlquery.NewCompiler(vocab, sqlquery.WithLogger(o.logger)),
		indexCompiler: indexquery.NewCompiler(vocab,
			indexquery.WithClock(o.now),
			indexquery.WithLogger(o.logger),
		),
		index:             index,
		executor:          o.executor,
		suggester:         suggest.NewSuggester(store),
		cache:             expirable.NewLRU[cacheKey, *compiled](cacheSize, nil, cfg.Search.CacheTTL),
		config:            cfg.Search,
		alwaysShowDeleted: cfg.Query.AlwaysShowDeleted,
		metrics:           o.metrics,
		logger:            o.logger,
	}, nil
}

// Vocabulary returns the metatag vocabulary queries are parsed with.
func (e *Engine) Vocabulary() *tagquery.Vocabulary {
	return e.parser.Vocabulary()
}

// Parse builds the query model for a search string.
func (e *Engine) Parse(ctx context.Context, query string, resolveAliases bool) (*tagquery.Query, error) {
	q, err := e.parser.Parse(ctx, query, tagquery.WithResolveAliases(resolveAliases))
	if err != nil {
		e.metrics.ParseTotal.WithLabelValues("error").Inc()
		e.metrics.ParseErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return nil, err
	}
	e.metrics.ParseTotal.WithLabelValues("ok").Inc()
	return q, nil
}

// CompileSQL renders the query model as a posts relation.
func (e *Engine) CompileSQL(q *tagquery.Query) *sqlquery.Relation {
	start := time.Now()
	rel := e.sqlCompiler.Compile(q)
	e.observeCompile(models.BackendSQL, start)
	return rel
}

// CompileIndex renders the query model as a search-index document.
func (e *Engine) CompileIndex(q *tagquery.Query, alwaysShowDeleted bool) *indexquery.Document {
	start := time.Now()
	doc := e.indexCompiler.Compile(q, indexquery.WithAlwaysShowDeleted(e.alwaysShowDeleted || alwaysShowDeleted))
	e.observeCompile(models.BackendIndex, start)
	return doc
}

// CompileBoth compiles one finished model for both backends concurrently.
func (e *Engine) CompileBoth(ctx context.Context, q *tagquery.Query, alwaysShowDeleted bool) (*sqlquery.Relation, *indexquery.Document, error) {
	var (
		rel *sqlquery.Relation
		doc *indexquery.Document
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel = e.CompileSQL(q)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc = e.CompileIndex(q, alwaysShowDeleted)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return rel, doc, nil
}

// Compile parses a request's query and compiles it for the requested backends.
func (e *Engine) Compile(ctx context.Context, req *models.CompileRequest) (*models.CompileResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	q, err := e.Parse(ctx, req.Query, req.ShouldResolveAliases())
	if err != nil {
		return nil, err
	}

	model, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query model: %w", err)
	}
	resp := &models.CompileResponse{Query: req.Query, Model: model}
	switch req.Backend {
	case models.BackendSQL:
		resp.SQL = e.CompileSQL(q)
	case models.BackendIndex:
		resp.Index = e.CompileIndex(q, req.AlwaysShowDeleted)
	default:
		rel, doc, err := e.CompileBoth(ctx, q, req.AlwaysShowDeleted)
		if err != nil {
			return nil, err
		}
		resp.SQL, resp.Index = rel, doc
	}
	e.logger.Debug("compiled query",
		zap.String("query", req.Query),
		zap.String("backend", string(req.Backend)),
	)
	return resp, nil
}

// Search finds the ids of posts matching the request. When nothing matches, required tags
// that do not exist get "did you mean" suggestions.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()
	if req.Limit == 0 {
		req.Limit = queryLimit(req.Query)
	}
	if err := req.Validate(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}

	resp, err := e.search(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.SearchTotal.WithLabelValues(string(req.Backend), status).Inc()
	e.metrics.SearchDuration.WithLabelValues(string(req.Backend)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

func (e *Engine) search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	c, err := e.compiled(ctx, req.Query, req.ShouldResolveAliases(), req.AlwaysShowDeleted)
	if err != nil {
		return nil, err
	}

	resp := &models.SearchResponse{
		Query:   req.Query,
		PostIDs: []int64{},
		Page:    req.Page,
		Limit:   req.Limit,
	}
	switch req.Backend {
	case models.BackendSQL:
		if e.executor == nil {
			return nil, ErrNoSQLBackend
		}
		if err := c.relation.Err(); err != nil {
			return nil, err
		}
		ids, err := e.executor.PostIDs(ctx, c.relation, sqlquery.Page{
			Order:  sqlOrder(c.query.Order()),
			Limit:  req.Limit,
			Offset: req.Offset(),
		})
		if err != nil {
			return nil, err
		}
		total, err := e.executor.Count(ctx, c.relation)
		if err != nil {
			return nil, err
		}
		resp.PostIDs = append(resp.PostIDs, ids...)
		resp.Total = uint64(total)
	default:
		res, err := e.index.Search(ctx, c.document, postindex.Page{Limit: req.Limit, Offset: req.Offset()})
		if err != nil {
			return nil, fmt.Errorf("index search failed: %w", err)
		}
		resp.PostIDs = append(resp.PostIDs, res.IDs...)
		resp.Total = res.Total
	}

	if resp.Total == 0 {
		resp.Suggestions = e.suggestions(ctx, c.query)
	}
	e.logger.Debug("search",
		zap.String("query", req.Query),
		zap.String("backend", string(req.Backend)),
		zap.Uint64("total", resp.Total),
	)
	return resp, nil
}

func (e *Engine) suggestions(ctx context.Context, q *tagquery.Query) []string {
	var names []string
	for _, name := range q.Tags().Must {
		if strings.HasPrefix(name, "~~") || strings.Contains(name, "*") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	out, err := e.suggester.SuggestAll(ctx, names)
	if err != nil {
		e.logger.Warn("failed to suggest tags", zap.Strings("tags", names), zap.Error(err))
		return nil
	}
	return out
}

func (e *Engine) observeCompile(backend models.Backend, start time.Time) {
	e.metrics.CompilationTotal.WithLabelValues(string(backend)).Inc()
	e.metrics.CompilationDuration.WithLabelValues(string(backend)).Observe(time.Since(start).Seconds())
}

// queryLimit reads a "limit:N" metatag from the raw query; 0 when absent or invalid.
func queryLimit(query string) int {
	v, ok := tagquery.FetchMetatag(strings.ToLower(query), "limit")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var sqlOrders = map[string][]sqlquery.OrderTerm{
	"id":            {{Column: "posts.id"}},
	"id_asc":        {{Column: "posts.id"}},
	"id_desc":       {{Column: "posts.id", Desc: true}},
	"score":         {{Column: "posts.score", Desc: true}, {Column: "posts.id", Desc: true}},
	"score_desc":    {{Column: "posts.score", Desc: true}, {Column: "posts.id", Desc: true}},
	"score_asc":     {{Column: "posts.score"}, {Column: "posts.id"}},
	"change":        {{Column: "posts.change_seq", Desc: true}},
	"change_desc":   {{Column: "posts.change_seq", Desc: true}},
	"change_asc":    {{Column: "posts.change_seq"}},
	"filesize":      {{Column: "posts.file_size", Desc: true}},
	"filesize_desc": {{Column: "posts.file_size", Desc: true}},
	"filesize_asc":  {{Column: "posts.file_size"}},
}

// sqlOrder maps an order value to columns of the posts table. Orders the table cannot
// express fall back to newest first.
func sqlOrder(order string) []sqlquery.OrderTerm {
	return sqlOrders[order]
}

// ErrorKind classifies a pipeline error for metrics and HTTP status codes.
func ErrorKind(err error) string {
	var rangeErr *parsevalue.Error
	switch {
	case errors.Is(err, tagquery.ErrCountExceeded):
		return "count_exceeded"
	case errors.As(err, &rangeErr):
		return "invalid_range"
	case errors.Is(err, models.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNoSQLBackend):
		return "unavailable"
	case errors.Is(err, sqlquery.ErrUnsupported):
		return "unsupported"
	}
	return "internal"
}
