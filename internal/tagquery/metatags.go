package tagquery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/tagsearch/internal/parsevalue"
)

// Kind identifies how a metatag value is coerced and stored.
type Kind int

const (
	KindPool Kind = iota + 1
	KindMD5
	KindRating
	KindRange
	KindDate
	KindAge
	KindSource
	KindParent
	KindChild
	KindRandseed
	KindOrder
	KindLimit
	KindStatus
	KindFiletype
	KindDescription
	KindDelreason
	KindBoolean
)

// Set is the metatag table a definition belongs to.
type Set int

const (
	// SetPlain metatags accept no polarity sigil; "-md5:x" is a plain tag.
	SetPlain Set = iota + 1
	// SetNegatable metatags accept "-" and "~".
	SetNegatable
	// SetBoolean metatags take true/false and accept "-" and "~".
	SetBoolean
)

// Definition describes one recognized metatag name.
type Definition struct {
	Name      string
	Kind      Kind
	Set       Set
	Key       Key
	RangeType parsevalue.Type
	Fudged    bool
}

// Category is a tag category with the short names usable in "<short>tags" metatags.
type Category struct {
	Name       string   `yaml:"name" json:"name"`
	ShortNames []string `yaml:"short_names" json:"short_names"`
}

// DefaultCategories mirrors the tag_count_* columns of the posts table.
var DefaultCategories = []Category{
	{Name: "general", ShortNames: []string{"gen"}},
	{Name: "creator", ShortNames: []string{"art", "artist"}},
	{Name: "character", ShortNames: []string{"char"}},
	{Name: "copyright", ShortNames: []string{"copy"}},
	{Name: "meta"},
	{Name: "species", ShortNames: []string{"spec"}},
	{Name: "invalid", ShortNames: []string{"inv"}},
	{Name: "lore"},
	{Name: "fetish"},
	{Name: "gender"},
}

// NotFoundTag is substituted for a wildcard that matches nothing, so the tag predicate
// stays well formed but matches no post.
const NotFoundTag = "~~not_found~~"

var baseDefinitions = []Definition{
	{Name: "md5", Kind: KindMD5, Set: SetPlain, Key: KeyMD5},
	{Name: "order", Kind: KindOrder, Set: SetPlain, Key: KeyOrder},
	{Name: "limit", Kind: KindLimit, Set: SetPlain},
	{Name: "child", Kind: KindChild, Set: SetPlain, Key: KeyChild},
	{Name: "randseed", Kind: KindRandseed, Set: SetPlain, Key: KeyRandomSeed},

	{Name: "id", Kind: KindRange, Set: SetNegatable, Key: KeyPostID, RangeType: parsevalue.Integer},
	{Name: "filetype", Kind: KindFiletype, Set: SetNegatable, Key: KeyFiletype},
	{Name: "type", Kind: KindFiletype, Set: SetNegatable, Key: KeyFiletype},
	{Name: "rating", Kind: KindRating, Set: SetNegatable, Key: KeyRating},
	{Name: "description", Kind: KindDescription, Set: SetNegatable, Key: KeyDescription},
	{Name: "parent", Kind: KindParent, Set: SetNegatable, Key: KeyParentIDs},
	{Name: "delreason", Kind: KindDelreason, Set: SetNegatable, Key: KeyDelreason},
	{Name: "source", Kind: KindSource, Set: SetNegatable, Key: KeySources},
	{Name: "status", Kind: KindStatus, Set: SetNegatable, Key: KeyStatus},
	{Name: "pool", Kind: KindPool, Set: SetNegatable, Key: KeyPoolIDs},
	{Name: "width", Kind: KindRange, Set: SetNegatable, Key: KeyWidth, RangeType: parsevalue.Integer},
	{Name: "height", Kind: KindRange, Set: SetNegatable, Key: KeyHeight, RangeType: parsevalue.Integer},
	{Name: "mpixels", Kind: KindRange, Set: SetNegatable, Key: KeyMpixels, RangeType: parsevalue.Float, Fudged: true},
	{Name: "ratio", Kind: KindRange, Set: SetNegatable, Key: KeyRatio, RangeType: parsevalue.Ratio},
	{Name: "filesize", Kind: KindRange, Set: SetNegatable, Key: KeyFilesize, RangeType: parsevalue.Filesize, Fudged: true},
	{Name: "duration", Kind: KindRange, Set: SetNegatable, Key: KeyDuration, RangeType: parsevalue.Float},
	{Name: "framecount", Kind: KindRange, Set: SetNegatable, Key: KeyFramecount, RangeType: parsevalue.Integer},
	{Name: "date", Kind: KindDate, Set: SetNegatable, Key: KeyDate},
	{Name: "age", Kind: KindAge, Set: SetNegatable, Key: KeyAge},
	{Name: "change", Kind: KindRange, Set: SetNegatable, Key: KeyChangeSeq, RangeType: parsevalue.Integer},
	{Name: "tagcount", Kind: KindRange, Set: SetNegatable, Key: KeyPostTagCount, RangeType: parsevalue.Integer},

	{Name: "hassource", Kind: KindBoolean, Set: SetBoolean, Key: "hassource"},
	{Name: "hasdescription", Kind: KindBoolean, Set: SetBoolean, Key: "hasdescription"},
	{Name: "isparent", Kind: KindBoolean, Set: SetBoolean, Key: "isparent"},
	{Name: "ischild", Kind: KindBoolean, Set: SetBoolean, Key: "ischild"},
	{Name: "inpool", Kind: KindBoolean, Set: SetBoolean, Key: "inpool"},
	{Name: "pending_replacements", Kind: KindBoolean, Set: SetBoolean, Key: "pending_replacements"},
	{Name: "fav", Kind: KindBoolean, Set: SetBoolean, Key: KeyFav},
	// favoritedby has always been stored under the fav flag.
	{Name: "favoritedby", Kind: KindBoolean, Set: SetBoolean, Key: KeyFav},
}

var baseOrders = []string{
	"id", "id_desc",
	"score", "score_asc",
	"created_at", "created_at_asc",
	"updated", "updated_desc", "updated_asc",
	"mpixels", "mpixels_asc",
	"portrait", "landscape",
	"filesize", "filesize_asc",
	"tagcount", "tagcount_asc",
	"change", "change_desc", "change_asc",
	"duration", "duration_desc", "duration_asc",
	"framecount", "framecount_desc", "framecount_asc",
	"rank",
	"random",
}

// Vocabulary is the immutable set of recognized metatags and order values, built once
// from the configured tag categories.
type Vocabulary struct {
	defs        map[string]Definition
	categories  []Category
	shortToName map[string]string
	boolean     []string
	negatable   []string
	metatags    []string
	orders      []string
}

// NewVocabulary builds the metatag tables for the given categories. It returns an error if
// two metatags collide or a table entry has no definition.
func NewVocabulary(categories []Category) (*Vocabulary, error) {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	v := &Vocabulary{
		defs:        make(map[string]Definition),
		categories:  append([]Category(nil), categories...),
		shortToName: make(map[string]string),
	}
	for _, def := range baseDefinitions {
		if err := v.add(def); err != nil {
			return nil, err
		}
	}
	v.orders = append(v.orders, baseOrders...)

	for _, c := range categories {
		name := strings.ToLower(c.Name)
		if name == "" {
			return nil, fmt.Errorf("tag category with empty name")
		}
		for _, short := range append([]string{name}, c.ShortNames...) {
			short = strings.ToLower(short)
			if prev, ok := v.shortToName[short]; ok {
				return nil, fmt.Errorf("category short name %q used by %s and %s", short, prev, name)
			}
			v.shortToName[short] = name
			def := Definition{
				Name:      short + "tags",
				Kind:      KindRange,
				Set:       SetNegatable,
				Key:       CategoryCountKey(name),
				RangeType: parsevalue.Integer,
			}
			if err := v.add(def); err != nil {
				return nil, err
			}
			v.orders = append(v.orders, short+"tags", short+"tags_asc")
		}
	}

	for _, def := range v.defs {
		switch def.Set {
		case SetBoolean:
			v.boolean = append(v.boolean, def.Name)
		case SetNegatable:
			v.negatable = append(v.negatable, def.Name)
		}
		v.metatags = append(v.metatags, def.Name)
	}
	sort.Strings(v.boolean)
	sort.Strings(v.negatable)
	sort.Strings(v.metatags)
	return v, v.validate()
}

// MustVocabulary is NewVocabulary for static category lists; it panics on error.
func MustVocabulary(categories []Category) *Vocabulary {
	v, err := NewVocabulary(categories)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Vocabulary) add(def Definition) error {
	if _, ok := v.defs[def.Name]; ok {
		return fmt.Errorf("duplicate metatag %q", def.Name)
	}
	v.defs[def.Name] = def
	return nil
}

func (v *Vocabulary) validate() error {
	seen := make(map[string]bool, len(v.metatags))
	for _, name := range v.metatags {
		seen[name] = true
	}
	for _, name := range append(append([]string(nil), v.boolean...), v.negatable...) {
		if !seen[name] {
			return fmt.Errorf("metatag %q missing from combined vocabulary", name)
		}
	}
	for _, order := range v.orders {
		if _, ok := v.OrderCategory(order); ok {
			continue
		}
		if !isBaseOrder(order) {
			return fmt.Errorf("order %q has no definition", order)
		}
	}
	return nil
}

func isBaseOrder(order string) bool {
	for _, o := range baseOrders {
		if o == order {
			return true
		}
	}
	return false
}

// Lookup returns the definition for a metatag name (without sigil, any case).
func (v *Vocabulary) Lookup(name string) (Definition, bool) {
	def, ok := v.defs[strings.ToLower(name)]
	return def, ok
}

// CategoryForShortName maps a short name (or full name) to its category name.
func (v *Vocabulary) CategoryForShortName(short string) (string, bool) {
	name, ok := v.shortToName[strings.ToLower(short)]
	return name, ok
}

// OrderCategory reports the category of a "<short>tags", "<short>tags_desc" or
// "<short>tags_asc" order value.
func (v *Vocabulary) OrderCategory(order string) (string, bool) {
	base := strings.TrimSuffix(strings.TrimSuffix(order, "_asc"), "_desc")
	short, ok := strings.CutSuffix(base, "tags")
	if !ok || short == "" {
		return "", false
	}
	return v.CategoryForShortName(short)
}

// Categories returns the configured categories.
func (v *Vocabulary) Categories() []Category {
	return append([]Category(nil), v.categories...)
}

// CategoryNames returns the category names in configuration order.
func (v *Vocabulary) CategoryNames() []string {
	names := make([]string, len(v.categories))
	for i, c := range v.categories {
		names[i] = strings.ToLower(c.Name)
	}
	return names
}

// BooleanMetatags returns the names of the true/false metatags.
func (v *Vocabulary) BooleanMetatags() []string { return append([]string(nil), v.boolean...) }

// NegatableMetatags returns the metatags that accept "-" and "~".
func (v *Vocabulary) NegatableMetatags() []string { return append([]string(nil), v.negatable...) }

// Metatags returns every metatag name the parser recognizes.
func (v *Vocabulary) Metatags() []string { return append([]string(nil), v.metatags...) }

// OrderMetatags returns every accepted order: value.
func (v *Vocabulary) OrderMetatags() []string { return append([]string(nil), v.orders...) }
