package sqlquery

import (
	"context"
	"testing"
	"time"

	"github.com/hyperjump/tagsearch/internal/tagquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct{}

func (stubRepo) NameMatches(context.Context, string, int) ([]string, error) { return nil, nil }

func (stubRepo) ToAliased(_ context.Context, names []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (stubRepo) PoolNameToID(context.Context, string) (int64, error) { return 7, nil }

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func compile(t *testing.T, query string) (string, []any) {
	t.Helper()
	p := tagquery.NewParser(stubRepo{}, tagquery.WithClock(func() time.Time { return testNow }))
	q, err := p.Parse(context.Background(), query)
	require.NoError(t, err)
	where, args, err := NewCompiler(p.Vocabulary()).Compile(q).ToSQL()
	require.NoError(t, err)
	return where, args
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name  string
		query string
		where string
		args  []any
	}{
		{
			name:  "empty",
			query: "",
			where: "TRUE",
		},
		{
			name:  "tags by polarity",
			query: "fox -canine ~wolf",
			where: "(string_to_array(posts.tag_string, ' ') @> ARRAY[$1]) AND " +
				"(NOT(string_to_array(posts.tag_string, ' ') && ARRAY[$2])) AND " +
				"(string_to_array(posts.tag_string, ' ') && ARRAY[$3])",
			args: []any{"fox", "canine", "wolf"},
		},
		{
			name:  "several must tags",
			query: "fox wolf",
			where: "(string_to_array(posts.tag_string, ' ') @> ARRAY[$1, $2])",
			args:  []any{"fox", "wolf"},
		},
		{
			name:  "ranges",
			query: "width:>500 id:1..10 tagcount:1,2 -height:<=100",
			where: "(posts.id BETWEEN $1 AND $2) AND (posts.image_width > $3) AND (NOT (posts.image_height <= $4)) AND (posts.tag_count IN ($5, $6))",
			args:  []any{int64(1), int64(10), int64(500), int64(100), int64(1), int64(2)},
		},
		{
			name:  "computed columns",
			query: "ratio:>1 mpixels:>2",
			where: "(posts.image_width * posts.image_height / 1000000.0 > $1) AND (ROUND(1.0 * posts.image_width / GREATEST(1, posts.image_height), 2) > $2)",
			args:  []any{2.0, 1.0},
		},
		{
			name:  "category count",
			query: "arttags:>=2",
			where: "(posts.tag_count_creator >= $1)",
			args:  []any{int64(2)},
		},
		{
			name:  "exact date covers the day",
			query: "date:2024-01-02",
			where: "(posts.created_at BETWEEN $1 AND $2)",
			args: []any{
				time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 2, 23, 59, 59, 999999999, time.UTC),
			},
		},
		{
			name:  "age",
			query: "age:<1d",
			where: "(posts.created_at > $1)",
			args:  []any{testNow.AddDate(0, 0, -1)},
		},
		{
			name:  "age span runs oldest first",
			query: "age:1d..3d",
			where: "(posts.created_at BETWEEN $1 AND $2)",
			args:  []any{testNow.AddDate(0, 0, -3), testNow.AddDate(0, 0, -1)},
		},
		{
			name:  "md5",
			query: "md5:ABC,def",
			where: "(posts.md5 IN ($1, $2))",
			args:  []any{"abc", "def"},
		},
		{
			name:  "status deleted",
			query: "status:deleted",
			where: "(posts.is_deleted = TRUE)",
		},
		{
			name:  "not active",
			query: "-status:active",
			where: "(posts.is_deleted = TRUE)",
		},
		{
			name:  "not deleted",
			query: "-status:deleted",
			where: "(posts.is_deleted = FALSE)",
		},
		{
			name:  "status any",
			query: "status:any",
			where: "TRUE",
		},
		{
			name:  "filetype",
			query: "filetype:png -type:gif",
			where: "(posts.file_ext = $1) AND (NOT (posts.file_ext = $2))",
			args:  []any{"png", "gif"},
		},
		{
			name:  "pool and parent literals",
			query: "pool:none parent:any child:none",
			where: "(posts.pool_string = '') AND (posts.parent_id IS NOT NULL) AND (posts.has_children = FALSE)",
		},
		{
			name:  "inverted literals",
			query: "-pool:none -parent:any child:any",
			where: "(posts.pool_string != '') AND (posts.parent_id IS NULL) AND (posts.has_children = TRUE)",
		},
		{
			name:  "pool and parent ids",
			query: "pool:favorites parent:12 -parent:13",
			where: "($1 = ANY(string_to_array(posts.pool_string, ' '))) AND (posts.parent_id = $2) AND (NOT (posts.parent_id = $3))",
			args:  []any{"pool:7", int64(12), int64(13)},
		},
		{
			name:  "rating",
			query: "rating:s -rating:e",
			where: "(posts.rating = $1) AND (posts.rating <> $2)",
			args:  []any{"s", "e"},
		},
		{
			name:  "source",
			query: "source:Pixiv*",
			where: "(EXISTS (SELECT 1 FROM unnest(string_to_array(lower(posts.source), E'\\n')) AS src WHERE src LIKE $1))",
			args:  []any{"pixiv%"},
		},
		{
			name:  "source literals",
			query: "source:none",
			where: "(posts.source = '')",
		},
		{
			name:  "negated source literal",
			query: "-source:none",
			where: "(posts.source <> '')",
		},
		{
			name:  "description",
			query: "description:red_fox -description:wip",
			where: "(posts.description ILIKE $1) AND (NOT (posts.description ILIKE $2))",
			args:  []any{"%red\\_fox%", "%wip%"},
		},
		{
			name:  "delreason shows deleted posts",
			query: "delreason:spam*",
			where: "(posts.deletion_reason ILIKE $1)",
			args:  []any{"spam%"},
		},
		{
			name:  "boolean metatags",
			query: "hassource:true -ischild:true inpool:false hasdescription:TRUE",
			where: "(posts.source <> '') AND (posts.description <> '') AND (NOT (posts.parent_id IS NOT NULL)) AND (NOT (posts.pool_string <> ''))",
		},
		{
			name:  "negated false flag",
			query: "-isparent:false",
			where: "(posts.has_children = TRUE)",
		},
		{
			name:  "should flag",
			query: "~isparent:true ~wolf",
			where: "((posts.has_children = TRUE) OR (string_to_array(posts.tag_string, ' ') && ARRAY[$1]))",
			args:  []any{"wolf"},
		},
		{
			name:  "should terms are one disjunction",
			query: "~wolf ~rating:s ~width:5",
			where: "((posts.image_width = $1) OR (posts.rating = $2) OR (string_to_array(posts.tag_string, ' ') && ARRAY[$3]))",
			args:  []any{int64(5), "s", "wolf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := compile(t, tt.query)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestCompile_Unsupported(t *testing.T) {
	p := tagquery.NewParser(stubRepo{}, tagquery.WithClock(func() time.Time { return testNow }))
	c := NewCompiler(p.Vocabulary())
	tests := []struct {
		query string
		want  []string
	}{
		{"fox hassource:true", nil},
		{"status:pending fav:true fox", []string{"status:pending", "fav"}},
		{"-status:modqueue", []string{"-status:modqueue"}},
		{"~pending_replacements:false", []string{"pending_replacements"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := p.Parse(context.Background(), tt.query)
			require.NoError(t, err)
			rel := c.Compile(q)
			assert.Equal(t, tt.want, rel.Unsupported())
			if tt.want == nil {
				assert.NoError(t, rel.Err())
				return
			}
			assert.ErrorIs(t, rel.Err(), ErrUnsupported)
			var uerr *UnsupportedError
			require.ErrorAs(t, rel.Err(), &uerr)
			assert.Equal(t, tt.want, uerr.Metatags)
		})
	}
}

func TestCompile_IgnoresOrder(t *testing.T) {
	where, args := compile(t, "order:score")
	assert.Equal(t, "TRUE", where)
	assert.Empty(t, args)
}

func TestRelation_MarshalJSON(t *testing.T) {
	rel := (&Relation{}).Where("posts.id = ?", int64(5))
	data, err := rel.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"where": "(posts.id = $1)", "args": [5]}`, string(data))

	data, err = (&Relation{}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"where": "TRUE", "args": []}`, string(data))

	data, err = (&Relation{unsupported: []string{"fav"}}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"where": "TRUE", "args": [], "unsupported": ["fav"]}`, string(data))
}
