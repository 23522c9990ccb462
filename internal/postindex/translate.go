package postindex

import (
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/tagsearch/internal/indexquery"
)

// translate converts a compiled clause into a Bleve query.
func translate(c indexquery.Clause) (blevequery.Query, error) {
	switch c := c.(type) {
	case indexquery.MatchAll:
		return bleve.NewMatchAllQuery(), nil
	case indexquery.Term:
		return termQuery(c.Field, c.Value)
	case indexquery.Terms:
		if len(c.Values) == 0 {
			return bleve.NewMatchNoneQuery(), nil
		}
		qs := make([]blevequery.Query, 0, len(c.Values))
		for _, v := range c.Values {
			q, err := termQuery(c.Field, v)
			if err != nil {
				return nil, err
			}
			qs = append(qs, q)
		}
		return bleve.NewDisjunctionQuery(qs...), nil
	case indexquery.Range:
		return rangeQuery(c)
	case indexquery.Exists:
		q := bleve.NewWildcardQuery("*")
		q.SetField(c.Field)
		return q, nil
	case indexquery.Wildcard:
		q := bleve.NewWildcardQuery(c.Value)
		q.SetField(c.Field)
		return q, nil
	case indexquery.MatchPhrasePrefix:
		return phrasePrefixQuery(c.Field, c.Value), nil
	case indexquery.Bool:
		return boolQuery(c)
	}
	return nil, fmt.Errorf("unsupported clause %T", c)
}

func translateAll(clauses []indexquery.Clause) ([]blevequery.Query, error) {
	out := make([]blevequery.Query, 0, len(clauses))
	for _, c := range clauses {
		q, err := translate(c)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func boolQuery(b indexquery.Bool) (blevequery.Query, error) {
	must, err := translateAll(b.Must)
	if err != nil {
		return nil, err
	}
	mustNot, err := translateAll(b.MustNot)
	if err != nil {
		return nil, err
	}
	should, err := translateAll(b.Should)
	if err != nil {
		return nil, err
	}
	q := bleve.NewBooleanQuery()
	if len(must) > 0 {
		q.AddMust(must...)
	}
	if len(mustNot) > 0 {
		q.AddMustNot(mustNot...)
	}
	if len(should) > 0 {
		q.AddShould(should...)
		if b.MinimumShouldMatch > 0 {
			q.SetMinShould(float64(b.MinimumShouldMatch))
		}
	}
	return q, nil
}

func termQuery(field string, value any) (blevequery.Query, error) {
	switch kindOf(field) {
	case boolField:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("field %s: expected bool, got %T", field, value)
		}
		q := bleve.NewBoolFieldQuery(v)
		q.SetField(field)
		return q, nil
	case keywordField, textField:
		q := bleve.NewTermQuery(fmt.Sprint(value))
		q.SetField(field)
		return q, nil
	case dateField:
		t, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("field %s: expected time, got %T", field, value)
		}
		inclusive := true
		q := bleve.NewDateRangeInclusiveQuery(t, t, &inclusive, &inclusive)
		q.SetField(field)
		return q, nil
	}
	f, ok := toFloat(value)
	if !ok {
		return nil, fmt.Errorf("field %s: expected number, got %T", field, value)
	}
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(&f, &f, &inclusive, &inclusive)
	q.SetField(field)
	return q, nil
}

func rangeQuery(r indexquery.Range) (blevequery.Query, error) {
	lower, lowerInclusive := r.Gt, false
	if r.Gte != nil {
		lower, lowerInclusive = r.Gte, true
	}
	upper, upperInclusive := r.Lt, false
	if r.Lte != nil {
		upper, upperInclusive = r.Lte, true
	}

	if kindOf(r.Field) == dateField {
		var start, end time.Time
		if lower != nil {
			t, ok := lower.(time.Time)
			if !ok {
				return nil, fmt.Errorf("field %s: expected time, got %T", r.Field, lower)
			}
			start = t
		}
		if upper != nil {
			t, ok := upper.(time.Time)
			if !ok {
				return nil, fmt.Errorf("field %s: expected time, got %T", r.Field, upper)
			}
			end = t
		}
		q := bleve.NewDateRangeInclusiveQuery(start, end, &lowerInclusive, &upperInclusive)
		q.SetField(r.Field)
		return q, nil
	}

	var min, max *float64
	if lower != nil {
		f, ok := toFloat(lower)
		if !ok {
			return nil, fmt.Errorf("field %s: expected number, got %T", r.Field, lower)
		}
		min = &f
	}
	if upper != nil {
		f, ok := toFloat(upper)
		if !ok {
			return nil, fmt.Errorf("field %s: expected number, got %T", r.Field, upper)
		}
		max = &f
	}
	q := bleve.NewNumericRangeInclusiveQuery(min, max, &lowerInclusive, &upperInclusive)
	q.SetField(r.Field)
	return q, nil
}

// phrasePrefixQuery approximates match_phrase_prefix: a single word is a prefix match,
// longer input must appear as a phrase with the last word completed by prefix.
func phrasePrefixQuery(field, value string) blevequery.Query {
	words := strings.Fields(strings.ToLower(value))
	if len(words) == 0 {
		return bleve.NewMatchNoneQuery()
	}
	last := bleve.NewPrefixQuery(words[len(words)-1])
	last.SetField(field)
	if len(words) == 1 {
		return last
	}
	phrase := bleve.NewMatchPhraseQuery(strings.Join(words[:len(words)-1], " "))
	phrase.SetField(field)
	return bleve.NewConjunctionQuery(phrase, last)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
