// Package tagquery parses booru search strings ("fox -canine order:score width:>500") into
// an immutable query model shared by the SQL and search-index compilers.
package tagquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/tagsearch/internal/parsevalue"
	"go.uber.org/zap"
)

// Limits bounds the work a single query can cause.
type Limits struct {
	// TagQueryLimit is the maximum number of plain tag terms; 0 disables the check.
	TagQueryLimit int
	// WildcardLimit is the most names one wildcard may expand to; a wider match is a
	// CountExceededError.
	WildcardLimit int
	// MD5Limit caps the md5 list.
	MD5Limit int
}

// DefaultLimits are the limits used when none are configured.
var DefaultLimits = Limits{TagQueryLimit: 40, WildcardLimit: 100, MD5Limit: 100}

// Parser turns search strings into Query values. It holds no per-query state and is safe
// for concurrent use.
type Parser struct {
	repo     Repository
	vocab    *Vocabulary
	ranges   *parsevalue.Parser
	wildcard *WildcardExpander
	limits   Limits
	logger   *zap.Logger // optional
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

// WithVocabulary replaces the default metatag vocabulary.
func WithVocabulary(v *Vocabulary) ParserOption {
	return func(p *Parser) { p.vocab = v }
}

// WithClock sets the clock used for date and age ranges.
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) { p.ranges = parsevalue.NewParser(now) }
}

// WithLimits overrides DefaultLimits. Zero wildcard and md5 limits keep their defaults.
func WithLimits(l Limits) ParserOption {
	return func(p *Parser) {
		if l.WildcardLimit <= 0 {
			l.WildcardLimit = DefaultLimits.WildcardLimit
		}
		if l.MD5Limit <= 0 {
			l.MD5Limit = DefaultLimits.MD5Limit
		}
		p.limits = l
	}
}

// NewParser creates a parser backed by repo.
func NewParser(repo Repository, opts ...ParserOption) *Parser {
	p := &Parser{
		repo:   repo,
		ranges: parsevalue.NewParser(nil),
		limits: DefaultLimits,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.vocab == nil {
		p.vocab = MustVocabulary(DefaultCategories)
	}
	p.wildcard = NewWildcardExpander(repo, p.limits.WildcardLimit)
	return p
}

// Vocabulary returns the metatag vocabulary in use.
func (p *Parser) Vocabulary() *Vocabulary { return p.vocab }

// Now returns the parser clock's current time.
func (p *Parser) Now() time.Time { return p.ranges.Now() }

type parseOptions struct {
	resolveAliases bool
}

// ParseOption configures a single Parse call.
type ParseOption func(*parseOptions)

// WithResolveAliases controls the alias pass. It is on by default.
func WithResolveAliases(resolve bool) ParseOption {
	return func(o *parseOptions) { o.resolveAliases = resolve }
}

// parseState is the per-call mutable state.
type parseState struct {
	b         *builder
	tagTokens int
}

// Parse scans query, dispatches every token and resolves aliases. Malformed ranges return
// a *parsevalue.Error, too many tags a *CountExceededError, and repository failures are
// wrapped.
func (p *Parser) Parse(ctx context.Context, query string, opts ...ParseOption) (*Query, error) {
	o := parseOptions{resolveAliases: true}
	for _, opt := range opts {
		opt(&o)
	}

	st := &parseState{b: newBuilder()}
	for _, tok := range Scan(query) {
		if err := p.dispatch(ctx, st, tok.Text); err != nil {
			return nil, err
		}
	}

	if o.resolveAliases {
		if err := p.resolveAliases(ctx, &st.b.tags); err != nil {
			return nil, err
		}
	}

	q := st.b.build(o.resolveAliases)
	if p.logger != nil {
		p.logger.Debug("parsed query",
			zap.String("query", query),
			zap.Strings("tags", q.tags.Must),
			zap.String("order", q.Order()),
		)
	}
	return q, nil
}

func splitPolarity(name string) (Polarity, string) {
	switch {
	case strings.HasPrefix(name, "-"):
		return MustNot, name[1:]
	case strings.HasPrefix(name, "~"):
		return Should, name[1:]
	}
	return Must, name
}

func (p *Parser) dispatch(ctx context.Context, st *parseState, token string) error {
	name, value, found := strings.Cut(token, ":")
	if !found || strings.TrimSpace(value) == "" {
		return p.addTag(ctx, st, token)
	}
	value = strings.TrimSuffix(strings.TrimPrefix(value, `"`), `"`)

	polarity, bare := splitPolarity(name)
	def, ok := p.vocab.Lookup(bare)
	if !ok || (polarity != Must && def.Set == SetPlain) {
		return p.addTag(ctx, st, token)
	}

	b := st.b
	switch def.Kind {
	case KindPool:
		if b.anyNone(def.Key, polarity, value) {
			return nil
		}
		id, err := p.repo.PoolNameToID(ctx, value)
		if err != nil {
			return fmt.Errorf("failed to look up pool %q: %w", value, err)
		}
		b.addID(def.Key, polarity, id)

	case KindMD5:
		b.values[KeyMD5] = splitMD5(value, p.limits.MD5Limit)

	case KindRating:
		rating := "miss"
		if r := []rune(value); len(r) > 0 {
			rating = strings.ToLower(string(r[0]))
		}
		b.addValue(def.Key, polarity, rating)

	case KindRange:
		var (
			r   parsevalue.Range
			err error
		)
		if def.Fudged {
			r, err = p.ranges.RangeFudged(value, def.RangeType)
		} else {
			r, err = p.ranges.Range(value, def.RangeType)
		}
		if err != nil {
			return err
		}
		b.addRange(def.Key, polarity, r)

	case KindDate:
		r, err := p.ranges.DateRange(value)
		if err != nil {
			return err
		}
		b.addRange(def.Key, polarity, r)

	case KindAge:
		r, err := p.ranges.Range(value, parsevalue.Age)
		if err != nil {
			return err
		}
		b.addRange(def.Key, polarity, parsevalue.InvertRange(r))

	case KindSource:
		if b.anyNone(def.Key, polarity, value) {
			return nil
		}
		b.addValue(def.Key, polarity, squeezeStars(value+"*"))

	case KindParent:
		if b.anyNone(def.Key, polarity, value) {
			return nil
		}
		b.addID(def.Key, polarity, leadingInt(value))

	case KindChild, KindOrder:
		b.scalars[def.Key] = strings.ToLower(value)

	case KindRandseed:
		seed := leadingInt(value)
		b.randomSeed = &seed

	case KindLimit:
		// paging is handled by the caller

	case KindStatus:
		switch polarity {
		case Must:
			b.scalars[KeyStatus] = strings.ToLower(value)
		case MustNot:
			b.scalars[KeyStatus.With(MustNot)] = strings.ToLower(value)
		default:
			return p.addTag(ctx, st, token)
		}

	case KindFiletype:
		b.addValue(def.Key, polarity, strings.ToLower(value))

	case KindDescription:
		b.addValue(def.Key, polarity, value)

	case KindDelreason:
		if _, ok := b.scalars[KeyStatus]; !ok {
			b.scalars[KeyStatus] = "any"
		}
		b.addValue(def.Key, polarity, squeezeStars(value))

	case KindBoolean:
		b.flags[def.Key.With(polarity)] = strings.EqualFold(value, "true")

	default:
		return p.addTag(ctx, st, token)
	}
	return nil
}

// anyNone stores an any/none literal for list keys that accept one and reports whether it
// did.
func (b *builder) anyNone(key Key, p Polarity, value string) bool {
	literal := strings.ToLower(value)
	if literal != "any" && literal != "none" {
		return false
	}
	b.setAnyNone(anyNoneKeys[key], p, literal)
	return true
}

func splitMD5(value string, limit int) []string {
	parts := strings.Split(strings.ToLower(value), ",")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) > limit {
		parts = parts[:limit]
	}
	return parts
}

func squeezeStars(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	prevStar := false
	for _, r := range s {
		if r == '*' && prevStar {
			continue
		}
		prevStar = r == '*'
		sb.WriteRune(r)
	}
	return sb.String()
}

// leadingInt parses an optional sign and the leading digits of s; anything else yields 0.
func leadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

func (p *Parser) addTag(ctx context.Context, st *parseState, token string) error {
	st.tagTokens++
	if limit := p.limits.TagQueryLimit; limit > 0 && st.tagTokens > limit {
		return &CountExceededError{Limit: limit, Count: st.tagTokens}
	}

	tag := strings.ToLower(token)
	switch {
	case strings.HasPrefix(tag, "-") && len(tag) > 1:
		name := tag[1:]
		if !strings.Contains(name, "*") {
			st.b.addTags(MustNot, name)
			return nil
		}
		names, err := p.wildcard.Expand(ctx, name)
		if err != nil {
			return err
		}
		st.b.addTags(MustNot, names...)

	case strings.HasPrefix(tag, "~") && len(tag) > 1:
		st.b.addTags(Should, tag[1:])

	case strings.Contains(tag, "*"):
		names, err := p.wildcard.Expand(ctx, tag)
		if err != nil {
			return err
		}
		st.b.addTags(Should, names...)

	default:
		st.b.addTags(Must, tag)
	}
	return nil
}

// resolveAliases replaces every name with its consequent, one repository call per set.
func (p *Parser) resolveAliases(ctx context.Context, tags *Tags) error {
	for _, set := range []*[]string{&tags.Must, &tags.MustNot, &tags.Should} {
		if len(*set) == 0 {
			continue
		}
		aliased, err := p.repo.ToAliased(ctx, dedupe(*set))
		if err != nil {
			return fmt.Errorf("failed to resolve tag aliases: %w", err)
		}
		out := make([]string, len(*set))
		for i, name := range *set {
			if to, ok := aliased[name]; ok && to != "" {
				out[i] = to
			} else {
				out[i] = name
			}
		}
		*set = out
	}
	return nil
}
