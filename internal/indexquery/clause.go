// Package indexquery compiles a parsed tag query into a boolean search-index document
// (must, must_not, should, sort and an optional function score) shaped like an
// Elasticsearch request.
package indexquery

import "encoding/json"

// Clause is one node of a boolean index query.
type Clause interface {
	json.Marshaler
	clause()
}

// Term matches documents whose field equals Value exactly.
type Term struct {
	Field string
	Value any
}

// Terms matches documents whose field equals any of Values.
type Terms struct {
	Field  string
	Values []any
}

// Range bounds a numeric or date field. Nil bounds are omitted.
type Range struct {
	Field string
	Gt    any
	Gte   any
	Lt    any
	Lte   any
}

// Exists matches documents that have a value for Field.
type Exists struct {
	Field string
}

// Wildcard matches a keyword field against a "*" pattern.
type Wildcard struct {
	Field string
	Value string
}

// MatchPhrasePrefix matches a text field starting with the phrase.
type MatchPhrasePrefix struct {
	Field string
	Value string
}

// MatchAll matches every document.
type MatchAll struct{}

// Bool combines clauses. A non-empty Should list requires MinimumShouldMatch of them.
type Bool struct {
	Must               []Clause
	MustNot            []Clause
	Should             []Clause
	MinimumShouldMatch int
}

func (Term) clause()              {}
func (Terms) clause()             {}
func (Range) clause()             {}
func (Exists) clause()            {}
func (Wildcard) clause()          {}
func (MatchPhrasePrefix) clause() {}
func (MatchAll) clause()          {}
func (Bool) clause()              {}

func (c Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"term": map[string]any{c.Field: c.Value}})
}

func (c Terms) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"terms": map[string]any{c.Field: c.Values}})
}

func (c Range) MarshalJSON() ([]byte, error) {
	bounds := make(map[string]any, 2)
	for name, v := range map[string]any{"gt": c.Gt, "gte": c.Gte, "lt": c.Lt, "lte": c.Lte} {
		if v != nil {
			bounds[name] = v
		}
	}
	return json.Marshal(map[string]any{"range": map[string]any{c.Field: bounds}})
}

func (c Exists) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"exists": map[string]any{"field": c.Field}})
}

func (c Wildcard) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"wildcard": map[string]any{c.Field: c.Value}})
}

func (c MatchPhrasePrefix) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"match_phrase_prefix": map[string]any{c.Field: c.Value}})
}

func (MatchAll) MarshalJSON() ([]byte, error) {
	return []byte(`{"match_all":{}}`), nil
}

func (c Bool) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 4)
	if len(c.Must) > 0 {
		body["must"] = c.Must
	}
	if len(c.MustNot) > 0 {
		body["must_not"] = c.MustNot
	}
	if len(c.Should) > 0 {
		body["should"] = c.Should
		if c.MinimumShouldMatch > 0 {
			body["minimum_should_match"] = c.MinimumShouldMatch
		}
	}
	return json.Marshal(map[string]any{"bool": body})
}

// MatchAny is satisfied when at least one of clauses matches.
func MatchAny(clauses ...Clause) Bool {
	return Bool{Should: clauses, MinimumShouldMatch: 1}
}

// Not negates a clause.
func Not(c Clause) Bool {
	return Bool{MustNot: []Clause{c}}
}
