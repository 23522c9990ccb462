package indexquery

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/tagsearch/internal/tagquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct{}

func (stubRepo) NameMatches(context.Context, string, int) ([]string, error) { return nil, nil }

func (stubRepo) ToAliased(context.Context, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (stubRepo) PoolNameToID(context.Context, string) (int64, error) { return 3, nil }

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

var notDeleted = Term{Field: "deleted", Value: false}

func compile(t *testing.T, query string, opts ...CompileOption) *Document {
	t.Helper()
	clock := func() time.Time { return testNow }
	p := tagquery.NewParser(stubRepo{}, tagquery.WithClock(clock))
	q, err := p.Parse(context.Background(), query)
	require.NoError(t, err)
	return NewCompiler(p.Vocabulary(), WithClock(clock)).Compile(q, opts...)
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestCompile_Tags(t *testing.T) {
	d := compile(t, "fox -canine ~wolf")
	assert.JSONEq(t, `{
		"query": {"bool": {
			"must": [{"term": {"deleted": false}}, {"term": {"tags": "fox"}}],
			"must_not": [{"term": {"tags": "canine"}}],
			"should": [{"term": {"tags": "wolf"}}],
			"minimum_should_match": 1
		}},
		"sort": [{"id": "desc"}]
	}`, marshal(t, d))
}

func TestCompile_EmptyQueryMatchesAll(t *testing.T) {
	d := compile(t, "", WithAlwaysShowDeleted(true))
	assert.JSONEq(t, `{"query": {"bool": {"must": [{"match_all": {}}]}}, "sort": [{"id": "desc"}]}`, marshal(t, d))
}

func TestCompile_Ranges(t *testing.T) {
	d := compile(t, "width:>500 id:5 tagcount:1,2 -height:<10 ~framecount:1..3 date:2024-01-02 gentags:>=4", WithAlwaysShowDeleted(true))

	assert.Equal(t, []Clause{
		Term{Field: "id", Value: int64(5)},
		Range{Field: "width", Gt: int64(500)},
		Range{
			Field: "created_at",
			Gte:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Lte:   time.Date(2024, 1, 2, 23, 59, 59, 999999999, time.UTC),
		},
		Range{Field: "tag_count_general", Gte: int64(4)},
		Terms{Field: "tag_count", Values: []any{int64(1), int64(2)}},
	}, d.Must)
	assert.Equal(t, []Clause{Range{Field: "height", Lt: int64(10)}}, d.MustNot)
	assert.Equal(t, []Clause{Range{Field: "framecount", Gte: int64(1), Lte: int64(3)}}, d.Should)
}

func TestCompile_RatioAndFilesizeFields(t *testing.T) {
	d := compile(t, "ratio:>1 filesize:>1kb", WithAlwaysShowDeleted(true))
	assert.Equal(t, []Clause{
		Range{Field: "aspect_ratio", Gt: 1.0},
		Range{Field: "file_size", Gt: int64(1024)},
	}, d.Must)
}

func TestCompile_MD5(t *testing.T) {
	d := compile(t, "md5:abc,def", WithAlwaysShowDeleted(true))
	assert.Equal(t, []Clause{MatchAny(Term{Field: "md5", Value: "abc"}, Term{Field: "md5", Value: "def"})}, d.Must)
	assert.JSONEq(t, `{"bool": {"should": [{"term": {"md5": "abc"}}, {"term": {"md5": "def"}}], "minimum_should_match": 1}}`, marshal(t, d.Must[0]))
}

func TestCompile_Status(t *testing.T) {
	flag := func(f string) Clause { return Term{Field: f, Value: true} }
	tests := []struct {
		query   string
		must    []Clause
		mustNot []Clause
	}{
		{"status:deleted", []Clause{Term{Field: "deleted", Value: true}}, nil},
		{"status:active", []Clause{Term{Field: "deleted", Value: false}}, nil},
		{"status:any", nil, []Clause{MatchAny(flag("pending"), flag("flagged"), flag("appealed"))}},
		{"status:all", nil, []Clause{MatchAny(flag("pending"), flag("flagged"), flag("appealed"))}},
		{"status:modqueue", []Clause{MatchAny(flag("pending"), flag("flagged"))}, nil},
		{"status:appealed", []Clause{flag("appealed")}, nil},
		{"status:pending", []Clause{flag("pending"), notDeleted}, nil},
		{"-status:deleted", nil, []Clause{Term{Field: "deleted", Value: true}}},
		{"-status:active", []Clause{MatchAny(Term{Field: "deleted", Value: true})}, nil},
		{"-status:flagged", []Clause{notDeleted}, []Clause{flag("flagged")}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			d := compile(t, tt.query)
			assert.Equal(t, tt.must, d.Must)
			assert.Equal(t, tt.mustNot, d.MustNot)
		})
	}
}

func TestCompile_HidesDeletedPosts(t *testing.T) {
	assert.Contains(t, compile(t, "fox").Must, Clause(notDeleted))
	assert.NotContains(t, compile(t, "fox", WithAlwaysShowDeleted(true)).Must, Clause(notDeleted))
	assert.Contains(t, compile(t, "delreason:spam").MustNot, Clause(MatchAny(
		Term{Field: "pending", Value: true}, Term{Field: "flagged", Value: true}, Term{Field: "appealed", Value: true},
	)))
	assert.NotContains(t, compile(t, "delreason:spam").Must, Clause(notDeleted))
}

func TestCompile_AnyNone(t *testing.T) {
	d := compile(t, "pool:any -source:any parent:none ~pool:none", WithAlwaysShowDeleted(true))
	assert.Equal(t, []Clause{Exists{Field: "pools"}}, d.Must)
	assert.Equal(t, []Clause{Exists{Field: "parent"}, Exists{Field: "source"}}, d.MustNot)
	assert.Equal(t, []Clause{Not(Exists{Field: "pools"})}, d.Should)
}

func TestCompile_ArrayRelations(t *testing.T) {
	d := compile(t, `pool:best parent:9 rating:s -filetype:webm delreason:dup* description:"hello wor" source:HTTP://Example.com/`, WithAlwaysShowDeleted(true))
	assert.Equal(t, []Clause{
		Term{Field: "pools", Value: int64(3)},
		Term{Field: "parent", Value: int64(9)},
		Term{Field: "rating", Value: "s"},
		Wildcard{Field: "del_reason", Value: "dup*"},
		MatchPhrasePrefix{Field: "description", Value: "hello wor"},
		Wildcard{Field: "source", Value: "http://example.com/*"},
	}, d.Must)
	assert.Equal(t, []Clause{
		MatchAny(Term{Field: "pending", Value: true}, Term{Field: "flagged", Value: true}, Term{Field: "appealed", Value: true}),
		Term{Field: "file_ext", Value: "webm"},
	}, d.MustNot)
}

func TestCompile_Child(t *testing.T) {
	d := compile(t, "child:any", WithAlwaysShowDeleted(true))
	assert.Equal(t, []Clause{Term{Field: "has_children", Value: true}}, d.Must)
}

func TestCompile_Flags(t *testing.T) {
	d := compile(t, "hassource:true -inpool:true ~ischild:false fav:false isparent:false -pending_replacements:true", WithAlwaysShowDeleted(true))
	assert.Equal(t, []Clause{
		Exists{Field: "source"},
		Term{Field: "fav", Value: false},
	}, d.Must)
	assert.Equal(t, []Clause{
		Exists{Field: "children"},
		Exists{Field: "pools"},
		Term{Field: "has_pending_replacements", Value: true},
	}, d.MustNot)
	assert.Equal(t, []Clause{Not(Exists{Field: "parent"})}, d.Should)
}

func TestCompile_RandomOrder(t *testing.T) {
	d := compile(t, "order:random randseed:42")
	assert.Equal(t, []SortField{{Field: ScoreField, Direction: Desc}}, d.Sort)
	require.NotNil(t, d.FunctionScore)
	assert.JSONEq(t, `{"random_score": {"seed": 42, "field": "id"}, "boost_mode": "replace"}`, marshal(t, d.FunctionScore))

	d = compile(t, "order:random")
	assert.JSONEq(t, `{"random_score": {}, "boost_mode": "replace"}`, marshal(t, d.FunctionScore))
}

func TestCompile_RankOrder(t *testing.T) {
	d := compile(t, "order:rank", WithAlwaysShowDeleted(true))
	require.NotNil(t, d.FunctionScore)
	require.NotNil(t, d.FunctionScore.ScriptScore)
	assert.Equal(t, []Clause{
		Range{Field: "score", Gt: 0},
		Range{Field: "created_at", Gte: testNow.AddDate(0, 0, -2)},
	}, d.Must)
	assert.Equal(t, ScoreField, d.Sort[0].Field)
}

func TestCompile_OrderCompleteness(t *testing.T) {
	vocab := tagquery.MustVocabulary(nil)
	for _, order := range vocab.OrderMetatags() {
		t.Run(order, func(t *testing.T) {
			d := compile(t, "order:"+order)
			require.NotEmpty(t, d.Sort)
			last := d.Sort[len(d.Sort)-1]
			switch {
			case order == "random":
				assert.Equal(t, []SortField{{Field: ScoreField, Direction: Desc}}, d.Sort)
			case strings.HasPrefix(order, "id"):
				assert.Len(t, d.Sort, 1)
				assert.Equal(t, "id", last.Field)
			default:
				assert.Len(t, d.Sort, 2)
				assert.Equal(t, "id", last.Field)
			}
		})
	}
}

func TestSortFor(t *testing.T) {
	vocab := tagquery.MustVocabulary(nil)
	tests := []struct {
		order string
		want  []SortField
	}{
		{"", []SortField{{"id", Desc}}},
		{"bogus", []SortField{{"id", Desc}}},
		{"id", []SortField{{"id", Asc}}},
		{"id_desc", []SortField{{"id", Desc}}},
		{"portrait", []SortField{{"aspect_ratio", Asc}, {"id", Asc}}},
		{"landscape", []SortField{{"aspect_ratio", Desc}, {"id", Desc}}},
		{"updated", []SortField{{"updated_at", Desc}, {"id", Desc}}},
		{"change_asc", []SortField{{"change_seq", Asc}, {"id", Asc}}},
		{"filesize", []SortField{{"file_size", Desc}, {"id", Desc}}},
		{"arttags", []SortField{{"tag_count_creator", Desc}, {"id", Desc}}},
		{"chartags_asc", []SortField{{"tag_count_character", Asc}, {"id", Asc}}},
		{"generaltags_desc", []SortField{{"tag_count_general", Desc}, {"id", Desc}}},
	}
	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			assert.Equal(t, tt.want, SortFor(vocab, tt.order))
		})
	}
}

func TestDocument_Body(t *testing.T) {
	d := compile(t, "fox order:random randseed:7", WithAlwaysShowDeleted(true))
	assert.JSONEq(t, `{
		"query": {"function_score": {
			"query": {"bool": {"must": [{"term": {"tags": "fox"}}]}},
			"random_score": {"seed": 7, "field": "id"},
			"boost_mode": "replace"
		}},
		"sort": [{"_score": "desc"}],
		"_source": false
	}`, marshal(t, d.Body()))

	d = compile(t, "fox", WithAlwaysShowDeleted(true))
	assert.JSONEq(t, `{
		"query": {"bool": {"must": [{"term": {"tags": "fox"}}]}},
		"sort": [{"id": "desc"}],
		"_source": false
	}`, marshal(t, d.Body()))
}

func TestRangeClause_JSON(t *testing.T) {
	assert.JSONEq(t, `{"range": {"width": {"gte": 1, "lte": 5}}}`, marshal(t, Range{Field: "width", Gte: 1, Lte: 5}))
	assert.JSONEq(t, `{"exists": {"field": "source"}}`, marshal(t, Exists{Field: "source"}))
	assert.JSONEq(t, `{"terms": {"id": [1, 2]}}`, marshal(t, Terms{Field: "id", Values: []any{1, 2}}))
}
