package indexquery

import "encoding/json"

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortField is one (field, direction) sort pair.
type SortField struct {
	Field     string
	Direction Direction
}

func (s SortField) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Direction{s.Field: s.Direction})
}

// ScoreField is the pseudo-field sorting by relevance score.
const ScoreField = "_score"

// RandomScore scores documents randomly. A nil Seed is unseeded.
type RandomScore struct {
	Seed  *int64
	Field string
}

func (r RandomScore) MarshalJSON() ([]byte, error) {
	if r.Seed == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(map[string]any{"seed": *r.Seed, "field": r.Field})
}

// ScriptScore scores documents with a script.
type ScriptScore struct {
	Source string
	Params map[string]any
}

func (s ScriptScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"script": map[string]any{"source": s.Source, "params": s.Params},
	})
}

// FunctionScore replaces the relevance score of matching documents.
type FunctionScore struct {
	RandomScore *RandomScore
	ScriptScore *ScriptScore
	BoostMode   string
}

func (f FunctionScore) fields() map[string]any {
	out := make(map[string]any, 2)
	if f.RandomScore != nil {
		out["random_score"] = f.RandomScore
	}
	if f.ScriptScore != nil {
		out["script_score"] = f.ScriptScore
	}
	if f.BoostMode != "" {
		out["boost_mode"] = f.BoostMode
	}
	return out
}

func (f FunctionScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.fields())
}

// Document is a compiled index query.
type Document struct {
	Must          []Clause
	MustNot       []Clause
	Should        []Clause
	Sort          []SortField
	FunctionScore *FunctionScore
}

// Bool returns the boolean query. An empty must list matches everything, and a non-empty
// should list requires one match.
func (d *Document) Bool() Bool {
	b := Bool{Must: d.Must, MustNot: d.MustNot, Should: d.Should}
	if len(b.Must) == 0 {
		b.Must = []Clause{MatchAll{}}
	}
	if len(b.Should) > 0 {
		b.MinimumShouldMatch = 1
	}
	return b
}

// MarshalJSON renders {query: {bool}, sort, function_score?}.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"query": d.Bool(),
		"sort":  d.sort(),
	}
	if d.FunctionScore != nil {
		out["function_score"] = d.FunctionScore
	}
	return json.Marshal(out)
}

// Body renders the request body an Elasticsearch-compatible engine accepts, with the
// function score wrapping the boolean query.
func (d *Document) Body() map[string]any {
	var query any = d.Bool()
	if d.FunctionScore != nil {
		fs := d.FunctionScore.fields()
		fs["query"] = query
		query = map[string]any{"function_score": fs}
	}
	return map[string]any{
		"query":   query,
		"sort":    d.sort(),
		"_source": false,
	}
}

func (d *Document) sort() []SortField {
	if d.Sort == nil {
		return []SortField{}
	}
	return d.Sort
}
