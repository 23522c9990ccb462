package sqlquery

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/tagsearch/internal/parsevalue"
	"github.com/hyperjump/tagsearch/internal/tagquery"
	"go.uber.org/zap"
)

const tagArray = "string_to_array(posts.tag_string, ' ')"

// rangeColumns maps range keys to the column expression they compare.
var rangeColumns = []struct {
	key    tagquery.Key
	column string
}{
	{tagquery.KeyPostID, "posts.id"},
	{tagquery.KeyMpixels, "posts.image_width * posts.image_height / 1000000.0"},
	{tagquery.KeyRatio, "ROUND(1.0 * posts.image_width / GREATEST(1, posts.image_height), 2)"},
	{tagquery.KeyWidth, "posts.image_width"},
	{tagquery.KeyHeight, "posts.image_height"},
	{tagquery.KeyDuration, "posts.duration"},
	{tagquery.KeyFramecount, "posts.framecount"},
	{tagquery.KeyFilesize, "posts.file_size"},
	{tagquery.KeyChangeSeq, "posts.change_seq"},
	{tagquery.KeyDate, "posts.created_at"},
	{tagquery.KeyAge, "posts.created_at"},
}

// Compiler turns Query values into Relations. It never adds ordering; callers order the
// relation themselves.
type Compiler struct {
	vocab  *tagquery.Vocabulary
	logger *zap.Logger // optional
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = l }
}

// NewCompiler creates a compiler for the categories in vocab.
func NewCompiler(vocab *tagquery.Vocabulary, opts ...CompilerOption) *Compiler {
	c := &Compiler{vocab: vocab}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile builds the relation for q. Must values become predicates, must_not values
// negated predicates, and all should values are OR'ed into one predicate. Metatags the
// posts table cannot express are listed by Relation.Unsupported.
func (c *Compiler) Compile(q *tagquery.Query) *Relation {
	rel := &Relation{}
	var should []Predicate

	addRanges := func(key tagquery.Key, column string) {
		for _, r := range q.Ranges(key) {
			if p, ok := rangePredicate(r, column); ok {
				rel.Where(p.SQL, p.Args...)
			}
		}
		for _, r := range q.Ranges(key.With(tagquery.MustNot)) {
			if p, ok := rangePredicate(r, column); ok {
				rel.WhereNot(p.SQL, p.Args...)
			}
		}
		for _, r := range q.Ranges(key.With(tagquery.Should)) {
			if p, ok := rangePredicate(r, column); ok {
				should = append(should, p)
			}
		}
	}

	for _, rc := range rangeColumns {
		addRanges(rc.key, rc.column)
	}
	for _, category := range c.vocab.CategoryNames() {
		addRanges(tagquery.CategoryCountKey(category), "posts.tag_count_"+category)
	}
	addRanges(tagquery.KeyPostTagCount, "posts.tag_count")

	if md5 := q.Values(tagquery.KeyMD5); len(md5) > 0 {
		rel.Where("posts.md5 IN (?)", md5)
	}

	status, _ := q.Scalar(tagquery.KeyStatus)
	notStatus, _ := q.Scalar(tagquery.KeyStatus.With(tagquery.MustNot))
	if flagStatuses[status] {
		rel.unsupported = append(rel.unsupported, "status:"+status)
	}
	if flagStatuses[notStatus] {
		rel.unsupported = append(rel.unsupported, "-status:"+notStatus)
	}
	switch {
	case status == "deleted" || notStatus == "active":
		rel.Where("posts.is_deleted = TRUE")
	case status == "active" || notStatus == "deleted":
		rel.Where("posts.is_deleted = FALSE")
	}

	for _, ext := range q.Values(tagquery.KeyFiletype) {
		rel.Where("posts.file_ext = ?", ext)
	}
	for _, ext := range q.Values(tagquery.KeyFiletype.With(tagquery.MustNot)) {
		rel.WhereNot("posts.file_ext = ?", ext)
	}
	for _, ext := range q.Values(tagquery.KeyFiletype.With(tagquery.Should)) {
		should = append(should, Predicate{SQL: "posts.file_ext = ?", Args: []any{ext}})
	}

	switch v, _ := q.Scalar(tagquery.KeyPool); v {
	case "none":
		rel.Where("posts.pool_string = ''")
	case "any":
		rel.Where("posts.pool_string != ''")
	}
	for _, id := range q.IDs(tagquery.KeyPoolIDs) {
		rel.Where("? = ANY("+poolArray+")", poolToken(id))
	}
	for _, id := range q.IDs(tagquery.KeyPoolIDs.With(tagquery.MustNot)) {
		rel.WhereNot("? = ANY("+poolArray+")", poolToken(id))
	}
	for _, id := range q.IDs(tagquery.KeyPoolIDs.With(tagquery.Should)) {
		should = append(should, Predicate{SQL: "? = ANY(" + poolArray + ")", Args: []any{poolToken(id)}})
	}

	switch v, _ := q.Scalar(tagquery.KeyParent); v {
	case "none":
		rel.Where("posts.parent_id IS NULL")
	case "any":
		rel.Where("posts.parent_id IS NOT NULL")
	}
	for _, id := range q.IDs(tagquery.KeyParentIDs) {
		rel.Where("posts.parent_id = ?", id)
	}
	for _, id := range q.IDs(tagquery.KeyParentIDs.With(tagquery.MustNot)) {
		rel.WhereNot("posts.parent_id = ?", id)
	}
	for _, id := range q.IDs(tagquery.KeyParentIDs.With(tagquery.Should)) {
		should = append(should, Predicate{SQL: "posts.parent_id = ?", Args: []any{id}})
	}

	addValues := func(key tagquery.Key, pred func(string) Predicate) {
		for _, v := range q.Values(key) {
			p := pred(v)
			rel.Where(p.SQL, p.Args...)
		}
		for _, v := range q.Values(key.With(tagquery.MustNot)) {
			p := pred(v)
			rel.WhereNot(p.SQL, p.Args...)
		}
		for _, v := range q.Values(key.With(tagquery.Should)) {
			should = append(should, pred(v))
		}
	}
	addValues(tagquery.KeySources, func(v string) Predicate {
		return Predicate{SQL: sourceMatch, Args: []any{likePattern(strings.ToLower(v))}}
	})
	addValues(tagquery.KeyDescription, func(v string) Predicate {
		return Predicate{SQL: "posts.description ILIKE ?", Args: []any{"%" + likeEscaper.Replace(v) + "%"}}
	})
	addValues(tagquery.KeyDelreason, func(v string) Predicate {
		return Predicate{SQL: "posts.deletion_reason ILIKE ?", Args: []any{likePattern(v)}}
	})

	switch v, _ := q.Scalar(tagquery.KeySource); v {
	case "none":
		rel.Where("posts.source = ''")
	case "any":
		rel.Where("posts.source <> ''")
	}
	switch v, _ := q.Scalar(tagquery.KeySource.With(tagquery.Should)); v {
	case "none":
		should = append(should, Predicate{SQL: "posts.source = ''"})
	case "any":
		should = append(should, Predicate{SQL: "posts.source <> ''"})
	}

	for _, f := range flagColumns {
		should = addFlag(rel, q, f.key, f.sql, should)
	}
	for _, key := range []tagquery.Key{"pending_replacements", tagquery.KeyFav} {
		for _, p := range []tagquery.Polarity{tagquery.Must, tagquery.MustNot, tagquery.Should} {
			if _, ok := q.Flag(key.With(p)); ok {
				rel.unsupported = append(rel.unsupported, string(key))
				break
			}
		}
	}

	switch v, _ := q.Scalar(tagquery.KeyChild); v {
	case "none":
		rel.Where("posts.has_children = FALSE")
	case "any":
		rel.Where("posts.has_children = TRUE")
	}

	for _, rating := range q.Values(tagquery.KeyRating) {
		rel.Where("posts.rating = ?", rating)
	}
	for _, rating := range q.Values(tagquery.KeyRating.With(tagquery.MustNot)) {
		rel.Where("posts.rating <> ?", rating)
	}
	for _, rating := range q.Values(tagquery.KeyRating.With(tagquery.Should)) {
		should = append(should, Predicate{SQL: "posts.rating = ?", Args: []any{rating}})
	}

	tags := q.Tags()
	if len(tags.Must) > 0 {
		rel.Where(tagArray+" @> ARRAY[?]", tags.Must)
	}
	if len(tags.MustNot) > 0 {
		rel.Where("NOT("+tagArray+" && ARRAY[?])", tags.MustNot)
	}
	if len(tags.Should) > 0 {
		should = append(should, Predicate{SQL: tagArray + " && ARRAY[?]", Args: []any{tags.Should}})
	}
	rel.WhereAny(should)

	if c.logger != nil {
		c.logger.Debug("compiled sql relation", zap.Int("predicates", rel.Len()))
	}
	return rel
}

const poolArray = "string_to_array(posts.pool_string, ' ')"

// sourceMatch matches any one line of the newline separated source column.
const sourceMatch = "EXISTS (SELECT 1 FROM unnest(string_to_array(lower(posts.source), E'\\n')) AS src WHERE src LIKE ?)"

// flagColumns maps boolean metatags to the predicate a true value selects.
var flagColumns = []struct {
	key tagquery.Key
	sql string
}{
	{"hassource", "posts.source <> ''"},
	{"hasdescription", "posts.description <> ''"},
	{"ischild", "posts.parent_id IS NOT NULL"},
	{"isparent", "posts.has_children = TRUE"},
	{"inpool", "posts.pool_string <> ''"},
}

// flagStatuses have no column on the posts table.
var flagStatuses = map[string]bool{"pending": true, "flagged": true, "appealed": true, "modqueue": true}

// likeEscaper escapes LIKE metacharacters so only "*" acts as a wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(v string) string {
	return strings.ReplaceAll(likeEscaper.Replace(v), "*", "%")
}

// addFlag compiles a boolean metatag; a false value selects the negation of sql.
func addFlag(rel *Relation, q *tagquery.Query, key tagquery.Key, sql string, should []Predicate) []Predicate {
	if v, ok := q.Flag(key); ok {
		if v {
			rel.Where(sql)
		} else {
			rel.WhereNot(sql)
		}
	}
	if v, ok := q.Flag(key.With(tagquery.MustNot)); ok {
		if v {
			rel.WhereNot(sql)
		} else {
			rel.Where(sql)
		}
	}
	if v, ok := q.Flag(key.With(tagquery.Should)); ok {
		if v {
			should = append(should, Predicate{SQL: sql})
		} else {
			should = append(should, Predicate{SQL: "NOT (" + sql + ")"})
		}
	}
	return should
}

func poolToken(id int64) string {
	return fmt.Sprintf("pool:%d", id)
}

// rangePredicate renders one parsed range against column. An exact time match covers the
// whole day.
func rangePredicate(r parsevalue.Range, column string) (Predicate, bool) {
	one := func(op string) (Predicate, bool) {
		return Predicate{SQL: column + " " + op + " ?", Args: []any{r.Value()}}, true
	}
	switch r.Op {
	case parsevalue.Eq:
		if t, ok := r.Value().(time.Time); ok {
			start, end := parsevalue.DayBounds(t)
			return Predicate{SQL: column + " BETWEEN ? AND ?", Args: []any{start, end}}, true
		}
		return one("=")
	case parsevalue.Gt:
		return one(">")
	case parsevalue.Gte:
		return one(">=")
	case parsevalue.Lt:
		return one("<")
	case parsevalue.Lte:
		return one("<=")
	case parsevalue.In:
		if len(r.Values) == 0 {
			return Predicate{}, false
		}
		return Predicate{SQL: column + " IN (?)", Args: []any{r.Values}}, true
	case parsevalue.Between:
		if len(r.Values) != 2 {
			return Predicate{}, false
		}
		return Predicate{SQL: column + " BETWEEN ? AND ?", Args: []any{r.Values[0], r.Values[1]}}, true
	}
	return Predicate{}, false
}
