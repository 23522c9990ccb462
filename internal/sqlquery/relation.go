// Package sqlquery compiles a parsed tag query into parameterized WHERE predicates over the
// posts table, and runs them against PostgreSQL.
package sqlquery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Predicate is one WHERE fragment using "?" placeholders. A slice argument binds to a single
// "?" and is expanded into a list.
type Predicate struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// ErrUnsupported marks a query using metatags the posts table has no column for.
var ErrUnsupported = errors.New("query is not expressible in sql")

// UnsupportedError lists the metatags a Relation could not compile.
type UnsupportedError struct {
	Metatags []string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnsupported, strings.Join(e.Metatags, ", "))
}

// Is reports whether target is ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// Relation is an ordered conjunction of predicates.
type Relation struct {
	predicates  []Predicate
	unsupported []string
}

// Where appends a predicate.
func (r *Relation) Where(sql string, args ...any) *Relation {
	r.predicates = append(r.predicates, Predicate{SQL: sql, Args: args})
	return r
}

// WhereNot appends the negation of a predicate.
func (r *Relation) WhereNot(sql string, args ...any) *Relation {
	return r.Where("NOT ("+sql+")", args...)
}

// WhereAny appends the disjunction of ps. Nothing is added for an empty list.
func (r *Relation) WhereAny(ps []Predicate) *Relation {
	switch len(ps) {
	case 0:
		return r
	case 1:
		return r.Where(ps[0].SQL, ps[0].Args...)
	}
	parts := make([]string, len(ps))
	var args []any
	for i, p := range ps {
		parts[i] = "(" + p.SQL + ")"
		args = append(args, p.Args...)
	}
	return r.Where(strings.Join(parts, " OR "), args...)
}

// Predicates returns the predicates in the order they were added.
func (r *Relation) Predicates() []Predicate {
	return append([]Predicate(nil), r.predicates...)
}

// Unsupported returns the metatags that were left out of the relation.
func (r *Relation) Unsupported() []string {
	return append([]string(nil), r.unsupported...)
}

// Err is an *UnsupportedError when the relation would match more posts than the query asks for.
func (r *Relation) Err() error {
	if len(r.unsupported) == 0 {
		return nil
	}
	return &UnsupportedError{Metatags: r.Unsupported()}
}

// Len returns the number of predicates.
func (r *Relation) Len() int { return len(r.predicates) }

// ToSQL joins the predicates with AND, expands list arguments and rebinds placeholders to
// PostgreSQL's $n form. An empty relation yields "TRUE".
func (r *Relation) ToSQL() (string, []any, error) {
	if len(r.predicates) == 0 {
		return "TRUE", nil, nil
	}
	parts := make([]string, len(r.predicates))
	var args []any
	for i, p := range r.predicates {
		parts[i] = "(" + p.SQL + ")"
		args = append(args, p.Args...)
	}
	where := strings.Join(parts, " AND ")
	if len(args) > 0 {
		var err error
		where, args, err = sqlx.In(where, args...)
		if err != nil {
			return "", nil, fmt.Errorf("failed to expand query arguments: %w", err)
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, where), args, nil
}

// MarshalJSON renders the relation as {"where": ..., "args": [...], "unsupported": [...]}.
func (r *Relation) MarshalJSON() ([]byte, error) {
	where, args, err := r.ToSQL()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []any{}
	}
	return json.Marshal(struct {
		Where       string   `json:"where"`
		Args        []any    `json:"args"`
		Unsupported []string `json:"unsupported,omitempty"`
	}{where, args, r.unsupported})
}
