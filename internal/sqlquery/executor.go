package sqlquery

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Open connects to PostgreSQL with the lib/pq driver.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return db, nil
}

// OrderTerm is one ORDER BY column chosen by the caller.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Page selects the window and ordering of a query.
type Page struct {
	Order  []OrderTerm
	Limit  int
	Offset int
}

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Executor runs compiled relations against the posts table.
type Executor struct {
	db     *sqlx.DB
	logger *zap.Logger // optional
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets a logger for debug output.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor wraps db.
func NewExecutor(db *sqlx.DB, opts ...ExecutorOption) *Executor {
	e := &Executor{db: db}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PostIDs returns the ids of posts matching rel within page. Without an explicit order the
// newest posts come first.
func (e *Executor) PostIDs(ctx context.Context, rel *Relation, page Page) ([]int64, error) {
	where, args, err := rel.ToSQL()
	if err != nil {
		return nil, err
	}
	orderBy, err := orderClause(page.Order)
	if err != nil {
		return nil, err
	}
	query := "SELECT posts.id FROM posts WHERE " + where + " ORDER BY " + orderBy
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", page.Limit)
	}
	if page.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", page.Offset)
	}
	if e.logger != nil {
		e.logger.Debug("executing sql search", zap.String("query", query), zap.Int("args", len(args)))
	}

	var ids []int64
	if err := e.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}
	return ids, nil
}

// Count returns the number of posts matching rel.
func (e *Executor) Count(ctx context.Context, rel *Relation) (int64, error) {
	where, args, err := rel.ToSQL()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := e.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM posts WHERE "+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func orderClause(terms []OrderTerm) (string, error) {
	if len(terms) == 0 {
		return "posts.id DESC", nil
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		if !columnPattern.MatchString(t.Column) {
			return "", fmt.Errorf("invalid order column %q", t.Column)
		}
		table, column, found := strings.Cut(t.Column, ".")
		col := pq.QuoteIdentifier(table)
		if found {
			col += "." + pq.QuoteIdentifier(column)
		}
		if t.Desc {
			col += " DESC"
		} else {
			col += " ASC"
		}
		parts[i] = col
	}
	return strings.Join(parts, ", "), nil
}
