package tagquery

import (
	"encoding/json"
	"slices"
	"sort"

	"github.com/hyperjump/tagsearch/internal/parsevalue"
)

// Polarity is the sign a term carries in the query text.
type Polarity int

const (
	Must Polarity = iota
	MustNot
	Should
)

func (p Polarity) String() string {
	switch p {
	case MustNot:
		return "must_not"
	case Should:
		return "should"
	default:
		return "must"
	}
}

// Suffix is the storage key suffix for the polarity.
func (p Polarity) Suffix() string {
	switch p {
	case MustNot:
		return "_must_not"
	case Should:
		return "_should"
	default:
		return ""
	}
}

// Key names a metatag value slot in the query model.
type Key string

const (
	KeyPostID       Key = "post_id"
	KeyWidth        Key = "width"
	KeyHeight       Key = "height"
	KeyMpixels      Key = "mpixels"
	KeyRatio        Key = "ratio"
	KeyFilesize     Key = "filesize"
	KeyDuration     Key = "duration"
	KeyFramecount   Key = "framecount"
	KeyChangeSeq    Key = "change_seq"
	KeyPostTagCount Key = "post_tag_count"
	KeyDate         Key = "date"
	KeyAge          Key = "age"

	KeyMD5         Key = "md5"
	KeyRating      Key = "rating"
	KeyFiletype    Key = "filetype"
	KeyDescription Key = "description"
	KeyDelreason   Key = "delreason"
	KeySources     Key = "sources"
	KeySource      Key = "source"
	KeyPoolIDs     Key = "pool_ids"
	KeyPool        Key = "pool"
	KeyParentIDs   Key = "parent_ids"
	KeyParent      Key = "parent"
	KeyChild       Key = "child"
	KeyStatus      Key = "status"
	KeyOrder       Key = "order"
	KeyRandomSeed  Key = "random_seed"
	KeyFav         Key = "fav"
)

// CategoryCountKey is the range key for a category's tag count, e.g. "general_tag_count".
func CategoryCountKey(category string) Key {
	return Key(category + "_tag_count")
}

// With returns the polarity variant of the key.
func (k Key) With(p Polarity) Key {
	return Key(string(k) + p.Suffix())
}

// anyNoneKeys maps a list key to the key holding its any/none literal.
var anyNoneKeys = map[Key]Key{
	KeyPoolIDs:   KeyPool,
	KeyParentIDs: KeyParent,
	KeySources:   KeySource,
}

// Tags holds the plain tag sets by polarity.
type Tags struct {
	Must    []string `json:"must"`
	MustNot []string `json:"must_not"`
	Should  []string `json:"should"`
}

// Get returns the set for a polarity.
func (t Tags) Get(p Polarity) []string {
	switch p {
	case MustNot:
		return t.MustNot
	case Should:
		return t.Should
	default:
		return t.Must
	}
}

// Empty reports whether no plain tag was given.
func (t Tags) Empty() bool {
	return len(t.Must) == 0 && len(t.MustNot) == 0 && len(t.Should) == 0
}

// Query is the finalized, read-only result of parsing a search string. It is safe for
// concurrent use by several compilers.
type Query struct {
	tags           Tags
	ranges         map[Key][]parsevalue.Range
	values         map[Key][]string
	ids            map[Key][]int64
	scalars        map[Key]string
	flags          map[Key]bool
	randomSeed     *int64
	resolveAliases bool
}

// Tags returns a copy of the plain tag sets.
func (q *Query) Tags() Tags {
	return Tags{
		Must:    slices.Clone(q.tags.Must),
		MustNot: slices.Clone(q.tags.MustNot),
		Should:  slices.Clone(q.tags.Should),
	}
}

// Ranges returns the parsed ranges stored under key.
func (q *Query) Ranges(key Key) []parsevalue.Range {
	return slices.Clone(q.ranges[key])
}

// Values returns the string list stored under key (md5, rating, filetype, sources, ...).
func (q *Query) Values(key Key) []string {
	return slices.Clone(q.values[key])
}

// IDs returns the id list stored under key (pool_ids, parent_ids).
func (q *Query) IDs(key Key) []int64 {
	return slices.Clone(q.ids[key])
}

// Scalar returns a single-valued metatag such as status, order, child or an any/none key.
func (q *Query) Scalar(key Key) (string, bool) {
	v, ok := q.scalars[key]
	return v, ok
}

// Flag returns a boolean metatag value.
func (q *Query) Flag(key Key) (bool, bool) {
	v, ok := q.flags[key]
	return v, ok
}

// Order returns the requested order, or "" for the default.
func (q *Query) Order() string {
	return q.scalars[KeyOrder]
}

// RandomSeed returns the randseed value if one was given.
func (q *Query) RandomSeed() (int64, bool) {
	if q.randomSeed == nil {
		return 0, false
	}
	return *q.randomSeed, true
}

// ResolveAliases reports whether alias resolution ran for this query.
func (q *Query) ResolveAliases() bool { return q.resolveAliases }

// RangeKeys lists the keys with ranges, sorted.
func (q *Query) RangeKeys() []Key { return sortedKeys(q.ranges) }

// ValueKeys lists the keys with string lists, sorted.
func (q *Query) ValueKeys() []Key { return sortedKeys(q.values) }

// FlagKeys lists the boolean keys, sorted.
func (q *Query) FlagKeys() []Key { return sortedKeys(q.flags) }

func sortedKeys[V any](m map[Key]V) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// MarshalJSON renders the model as a flat object keyed by storage key.
func (q *Query) MarshalJSON() ([]byte, error) {
	out := map[string]any{"tags": q.tags}
	for k, v := range q.ranges {
		out[string(k)] = v
	}
	for k, v := range q.values {
		out[string(k)] = v
	}
	for k, v := range q.ids {
		out[string(k)] = v
	}
	for k, v := range q.scalars {
		out[string(k)] = v
	}
	for k, v := range q.flags {
		out[string(k)] = v
	}
	if q.randomSeed != nil {
		out[string(KeyRandomSeed)] = *q.randomSeed
	}
	out["resolve_aliases"] = q.resolveAliases
	return json.Marshal(out)
}

// builder accumulates dispatcher output before the alias pass.
type builder struct {
	tags       Tags
	ranges     map[Key][]parsevalue.Range
	values     map[Key][]string
	ids        map[Key][]int64
	scalars    map[Key]string
	flags      map[Key]bool
	randomSeed *int64
}

func newBuilder() *builder {
	return &builder{
		ranges:  make(map[Key][]parsevalue.Range),
		values:  make(map[Key][]string),
		ids:     make(map[Key][]int64),
		scalars: make(map[Key]string),
		flags:   make(map[Key]bool),
	}
}

func (b *builder) addTags(p Polarity, names ...string) {
	switch p {
	case MustNot:
		b.tags.MustNot = append(b.tags.MustNot, names...)
	case Should:
		b.tags.Should = append(b.tags.Should, names...)
	default:
		b.tags.Must = append(b.tags.Must, names...)
	}
}

func (b *builder) addRange(key Key, p Polarity, r parsevalue.Range) {
	k := key.With(p)
	b.ranges[k] = append(b.ranges[k], r)
}

func (b *builder) addValue(key Key, p Polarity, v string) {
	k := key.With(p)
	b.values[k] = append(b.values[k], v)
}

func (b *builder) addID(key Key, p Polarity, id int64) {
	k := key.With(p)
	b.ids[k] = append(b.ids[k], id)
}

// setAnyNone records an any/none literal: must keeps it, must_not stores the inverse under
// the plain key, should stores it under the _should key.
func (b *builder) setAnyNone(key Key, p Polarity, literal string) {
	switch p {
	case MustNot:
		if literal == "none" {
			b.scalars[key] = "any"
		} else {
			b.scalars[key] = "none"
		}
	case Should:
		b.scalars[key.With(Should)] = literal
	default:
		b.scalars[key] = literal
	}
}

func (b *builder) build(resolveAliases bool) *Query {
	q := &Query{
		tags: Tags{
			Must:    dedupe(b.tags.Must),
			MustNot: dedupe(b.tags.MustNot),
			Should:  dedupe(b.tags.Should),
		},
		ranges:         b.ranges,
		values:         b.values,
		ids:            b.ids,
		scalars:        b.scalars,
		flags:          b.flags,
		randomSeed:     b.randomSeed,
		resolveAliases: resolveAliases,
	}
	return q
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
