package indexquery

import (
	"math"
	"strings"
	"time"

	"github.com/hyperjump/tagsearch/internal/parsevalue"
	"github.com/hyperjump/tagsearch/internal/tagquery"
	"go.uber.org/zap"
)

// rankEpoch is 2005-05-24, the zero point of the rank decay.
const rankEpoch = 1116936000

var rangeFields = []struct {
	key   tagquery.Key
	field string
}{
	{tagquery.KeyPostID, "id"},
	{tagquery.KeyMpixels, "mpixels"},
	{tagquery.KeyRatio, "aspect_ratio"},
	{tagquery.KeyWidth, "width"},
	{tagquery.KeyHeight, "height"},
	{tagquery.KeyDuration, "duration"},
	{tagquery.KeyFramecount, "framecount"},
	{tagquery.KeyFilesize, "file_size"},
	{tagquery.KeyChangeSeq, "change_seq"},
	{tagquery.KeyDate, "created_at"},
	{tagquery.KeyAge, "created_at"},
}

// Status values that already say whether deleted posts are wanted.
var (
	visibleStatuses    = map[string]bool{"deleted": true, "active": true, "any": true, "all": true, "modqueue": true, "appealed": true}
	visibleNotStatuses = map[string]bool{"deleted": true, "active": true, "any": true, "all": true}
)

// Compiler turns Query values into index Documents.
type Compiler struct {
	vocab  *tagquery.Vocabulary
	now    func() time.Time
	logger *zap.Logger // optional
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = l }
}

// WithClock sets the clock used by the rank order.
func WithClock(now func() time.Time) CompilerOption {
	return func(c *Compiler) { c.now = now }
}

// NewCompiler creates a compiler for the categories in vocab.
func NewCompiler(vocab *tagquery.Vocabulary, opts ...CompilerOption) *Compiler {
	c := &Compiler{vocab: vocab, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type compileOptions struct {
	alwaysShowDeleted bool
}

// CompileOption configures a single Compile call.
type CompileOption func(*compileOptions)

// WithAlwaysShowDeleted stops the compiler from hiding deleted posts.
func WithAlwaysShowDeleted(show bool) CompileOption {
	return func(o *compileOptions) { o.alwaysShowDeleted = show }
}

// Compile builds the index document for q.
func (c *Compiler) Compile(q *tagquery.Query, opts ...CompileOption) *Document {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}
	d := &Document{}

	for _, rf := range rangeFields {
		c.addRanges(d, q, rf.key, rf.field)
	}
	for _, category := range c.vocab.CategoryNames() {
		c.addRanges(d, q, tagquery.CategoryCountKey(category), "tag_count_"+category)
	}
	c.addRanges(d, q, tagquery.KeyPostTagCount, "tag_count")

	if md5 := q.Values(tagquery.KeyMD5); len(md5) > 0 {
		terms := make([]Clause, len(md5))
		for i, m := range md5 {
			terms[i] = Term{Field: "md5", Value: m}
		}
		d.Must = append(d.Must, MatchAny(terms...))
	}

	addStatus(d, q)
	if hideDeleted(q, o.alwaysShowDeleted) {
		d.Must = append(d.Must, Term{Field: "deleted", Value: false})
	}

	addIDs(d, q, tagquery.KeyPoolIDs, "pools")
	addAnyNone(d, q, tagquery.KeyPool, "pools")
	addIDs(d, q, tagquery.KeyParentIDs, "parent")
	addAnyNone(d, q, tagquery.KeyParent, "parent")

	addValues(d, q, tagquery.KeyRating, func(v string) Clause { return Term{Field: "rating", Value: v} })
	addValues(d, q, tagquery.KeyFiletype, func(v string) Clause { return Term{Field: "file_ext", Value: v} })
	addValues(d, q, tagquery.KeyDelreason, func(v string) Clause { return Wildcard{Field: "del_reason", Value: v} })
	addValues(d, q, tagquery.KeyDescription, func(v string) Clause { return MatchPhrasePrefix{Field: "description", Value: v} })
	addValues(d, q, tagquery.KeySources, func(v string) Clause { return Wildcard{Field: "source", Value: strings.ToLower(v)} })
	addAnyNone(d, q, tagquery.KeySource, "source")

	switch v, _ := q.Scalar(tagquery.KeyChild); v {
	case "none":
		d.Must = append(d.Must, Term{Field: "has_children", Value: false})
	case "any":
		d.Must = append(d.Must, Term{Field: "has_children", Value: true})
	}

	addFlag(d, q, "hassource", Exists{Field: "source"}, nil)
	addFlag(d, q, "hasdescription", Exists{Field: "description"}, nil)
	addFlag(d, q, "ischild", Exists{Field: "parent"}, nil)
	addFlag(d, q, "isparent", Exists{Field: "children"}, nil)
	addFlag(d, q, "inpool", Exists{Field: "pools"}, nil)
	addFlag(d, q, "pending_replacements",
		Term{Field: "has_pending_replacements", Value: true}, Term{Field: "has_pending_replacements", Value: false})
	addFlag(d, q, tagquery.KeyFav, Term{Field: "fav", Value: true}, Term{Field: "fav", Value: false})

	tags := q.Tags()
	for _, t := range tags.Must {
		d.Must = append(d.Must, Term{Field: "tags", Value: t})
	}
	for _, t := range tags.MustNot {
		d.MustNot = append(d.MustNot, Term{Field: "tags", Value: t})
	}
	for _, t := range tags.Should {
		d.Should = append(d.Should, Term{Field: "tags", Value: t})
	}

	c.addOrder(d, q)

	if c.logger != nil {
		c.logger.Debug("compiled index document",
			zap.Int("must", len(d.Must)),
			zap.Int("must_not", len(d.MustNot)),
			zap.Int("should", len(d.Should)),
			zap.String("order", q.Order()),
		)
	}
	return d
}

func (c *Compiler) addRanges(d *Document, q *tagquery.Query, key tagquery.Key, field string) {
	for _, r := range q.Ranges(key) {
		if cl := rangeClause(r, field); cl != nil {
			d.Must = append(d.Must, cl)
		}
	}
	for _, r := range q.Ranges(key.With(tagquery.MustNot)) {
		if cl := rangeClause(r, field); cl != nil {
			d.MustNot = append(d.MustNot, cl)
		}
	}
	for _, r := range q.Ranges(key.With(tagquery.Should)) {
		if cl := rangeClause(r, field); cl != nil {
			d.Should = append(d.Should, cl)
		}
	}
}

func rangeClause(r parsevalue.Range, field string) Clause {
	if len(r.Values) == 0 {
		return nil
	}
	switch r.Op {
	case parsevalue.Eq:
		if t, ok := r.Value().(time.Time); ok {
			start, end := parsevalue.DayBounds(t)
			return Range{Field: field, Gte: start, Lte: end}
		}
		return Term{Field: field, Value: r.Value()}
	case parsevalue.Gt:
		return Range{Field: field, Gt: r.Value()}
	case parsevalue.Gte:
		return Range{Field: field, Gte: r.Value()}
	case parsevalue.Lt:
		return Range{Field: field, Lt: r.Value()}
	case parsevalue.Lte:
		return Range{Field: field, Lte: r.Value()}
	case parsevalue.In:
		return Terms{Field: field, Values: r.Values}
	case parsevalue.Between:
		if len(r.Values) != 2 {
			return nil
		}
		return Range{Field: field, Gte: r.Values[0], Lte: r.Values[1]}
	}
	return nil
}

func addStatus(d *Document, q *tagquery.Query) {
	status, _ := q.Scalar(tagquery.KeyStatus)
	notStatus, _ := q.Scalar(tagquery.KeyStatus.With(tagquery.MustNot))
	flag := func(field string) Clause { return Term{Field: field, Value: true} }

	switch status {
	case "deleted":
		d.Must = append(d.Must, Term{Field: "deleted", Value: true})
		return
	case "active":
		d.Must = append(d.Must, Term{Field: "deleted", Value: false})
		return
	case "all", "any":
		d.MustNot = append(d.MustNot, MatchAny(flag("pending"), flag("flagged"), flag("appealed")))
		return
	case "pending", "flagged", "appealed":
		d.Must = append(d.Must, flag(status))
		return
	case "modqueue":
		d.Must = append(d.Must, MatchAny(flag("pending"), flag("flagged")))
		return
	}

	switch notStatus {
	case "deleted":
		d.MustNot = append(d.MustNot, Term{Field: "deleted", Value: true})
	case "active":
		d.Must = append(d.Must, MatchAny(Term{Field: "deleted", Value: true}))
	case "pending", "flagged", "appealed":
		d.MustNot = append(d.MustNot, flag(notStatus))
	case "modqueue":
		d.MustNot = append(d.MustNot, MatchAny(flag("pending"), flag("flagged")))
	}
}

func hideDeleted(q *tagquery.Query, alwaysShow bool) bool {
	if alwaysShow {
		return false
	}
	if status, ok := q.Scalar(tagquery.KeyStatus); ok && visibleStatuses[status] {
		return false
	}
	if status, ok := q.Scalar(tagquery.KeyStatus.With(tagquery.MustNot)); ok && visibleNotStatuses[status] {
		return false
	}
	return true
}

func addValues(d *Document, q *tagquery.Query, key tagquery.Key, clause func(string) Clause) {
	for _, v := range q.Values(key) {
		d.Must = append(d.Must, clause(v))
	}
	for _, v := range q.Values(key.With(tagquery.MustNot)) {
		d.MustNot = append(d.MustNot, clause(v))
	}
	for _, v := range q.Values(key.With(tagquery.Should)) {
		d.Should = append(d.Should, clause(v))
	}
}

func addIDs(d *Document, q *tagquery.Query, key tagquery.Key, field string) {
	for _, id := range q.IDs(key) {
		d.Must = append(d.Must, Term{Field: field, Value: id})
	}
	for _, id := range q.IDs(key.With(tagquery.MustNot)) {
		d.MustNot = append(d.MustNot, Term{Field: field, Value: id})
	}
	for _, id := range q.IDs(key.With(tagquery.Should)) {
		d.Should = append(d.Should, Term{Field: field, Value: id})
	}
}

// addAnyNone turns an any/none literal into an exists check on field.
func addAnyNone(d *Document, q *tagquery.Query, key tagquery.Key, field string) {
	exists := Exists{Field: field}
	switch v, _ := q.Scalar(key); v {
	case "any":
		d.Must = append(d.Must, exists)
	case "none":
		d.MustNot = append(d.MustNot, exists)
	}
	switch v, _ := q.Scalar(key.With(tagquery.Should)); v {
	case "any":
		d.Should = append(d.Should, exists)
	case "none":
		d.Should = append(d.Should, Not(exists))
	}
}

// addFlag compiles a boolean metatag. onTrue is the clause for a true value; a false value
// uses onFalse, or the negation of onTrue when onFalse is nil.
func addFlag(d *Document, q *tagquery.Query, key tagquery.Key, onTrue, onFalse Clause) {
	positive := func(v bool) Clause {
		if v {
			return onTrue
		}
		if onFalse != nil {
			return onFalse
		}
		return Not(onTrue)
	}
	if v, ok := q.Flag(key); ok {
		if !v && onFalse == nil {
			d.MustNot = append(d.MustNot, onTrue)
		} else {
			d.Must = append(d.Must, positive(v))
		}
	}
	if v, ok := q.Flag(key.With(tagquery.MustNot)); ok {
		if !v && onFalse == nil {
			d.Must = append(d.Must, onTrue)
		} else {
			d.MustNot = append(d.MustNot, positive(v))
		}
	}
	if v, ok := q.Flag(key.With(tagquery.Should)); ok {
		d.Should = append(d.Should, positive(v))
	}
}

func (c *Compiler) addOrder(d *Document, q *tagquery.Query) {
	order := q.Order()
	if order == "random" {
		rs := &RandomScore{}
		if seed, ok := q.RandomSeed(); ok {
			rs = &RandomScore{Seed: &seed, Field: "id"}
		}
		d.FunctionScore = &FunctionScore{RandomScore: rs, BoostMode: "replace"}
		d.Sort = []SortField{{Field: ScoreField, Direction: Desc}}
		return
	}
	if order == "rank" {
		d.FunctionScore = &FunctionScore{
			ScriptScore: &ScriptScore{
				Source: "Math.log(doc['score'].value) / params.log3 + (doc['created_at'].value.millis / 1000 - params.date2005_05_24) / 35000",
				Params: map[string]any{"log3": math.Log(3), "date2005_05_24": rankEpoch},
			},
		}
		d.Must = append(d.Must,
			Range{Field: "score", Gt: 0},
			Range{Field: "created_at", Gte: c.now().AddDate(0, 0, -2)},
		)
		d.Sort = []SortField{{Field: ScoreField, Direction: Desc}, {Field: "id", Direction: Desc}}
		return
	}
	d.Sort = SortFor(c.vocab, order)
}

type orderRule struct {
	field string
	dir   Direction
}

var orderTable = map[string]orderRule{
	"id":              {"id", Asc},
	"id_asc":          {"id", Asc},
	"id_desc":         {"id", Desc},
	"score":           {"score", Desc},
	"score_desc":      {"score", Desc},
	"score_asc":       {"score", Asc},
	"change":          {"change_seq", Desc},
	"change_desc":     {"change_seq", Desc},
	"change_asc":      {"change_seq", Asc},
	"md5":             {"md5", Desc},
	"md5_asc":         {"md5", Asc},
	"duration":        {"duration", Desc},
	"duration_desc":   {"duration", Desc},
	"duration_asc":    {"duration", Asc},
	"framecount":      {"framecount", Desc},
	"framecount_desc": {"framecount", Desc},
	"framecount_asc":  {"framecount", Asc},
	"created_at":      {"created_at", Desc},
	"created_at_desc": {"created_at", Desc},
	"created_at_asc":  {"created_at", Asc},
	"updated":         {"updated_at", Desc},
	"updated_desc":    {"updated_at", Desc},
	"updated_asc":     {"updated_at", Asc},
	"mpixels":         {"mpixels", Desc},
	"mpixels_desc":    {"mpixels", Desc},
	"mpixels_asc":     {"mpixels", Asc},
	"portrait":        {"aspect_ratio", Asc},
	"landscape":       {"aspect_ratio", Desc},
	"filesize":        {"file_size", Desc},
	"filesize_desc":   {"file_size", Desc},
	"filesize_asc":    {"file_size", Asc},
	"tagcount":        {"tag_count", Desc},
	"tagcount_desc":   {"tag_count", Desc},
	"tagcount_asc":    {"tag_count", Asc},
}

// SortFor maps a non-random order value to its sort pairs. Every order except the pure id
// orders ends with an id tiebreaker in the same direction; unknown values sort by id desc.
func SortFor(vocab *tagquery.Vocabulary, order string) []SortField {
	rule, ok := orderTable[order]
	if !ok {
		if category, isCategory := vocab.OrderCategory(order); isCategory {
			dir := Desc
			if strings.HasSuffix(order, "_asc") {
				dir = Asc
			}
			rule, ok = orderRule{"tag_count_" + category, dir}, true
		}
	}
	if !ok {
		return []SortField{{Field: "id", Direction: Desc}}
	}
	sort := []SortField{{Field: rule.field, Direction: rule.dir}}
	if rule.field != "id" {
		sort = append(sort, SortField{Field: "id", Direction: rule.dir})
	}
	return sort
}
