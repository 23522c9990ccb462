package tagquery

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var nameSeparators = regexp.MustCompile(`[_\s]+`)

// NormalizeName lowercases a tag name, collapses whitespace and underscore runs to "_" and
// trims leading and trailing underscores.
func NormalizeName(name string) string {
	name = nameSeparators.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(name, "_")
}

// Normalize returns the canonical form of a query: scanned, names normalized, aliased,
// sorted and deduplicated, joined by spaces.
func Normalize(ctx context.Context, query string, aliases AliasResolver) (string, error) {
	tokens := ScanStrings(query)
	names := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if n := NormalizeName(t); n != "" {
			names = append(names, n)
		}
	}
	if aliases != nil && len(names) > 0 {
		aliased, err := aliases.ToAliased(ctx, names)
		if err != nil {
			return "", fmt.Errorf("failed to normalize query: %w", err)
		}
		for i, n := range names {
			if to, ok := aliased[n]; ok && to != "" {
				names[i] = to
			}
		}
	}
	sort.Strings(names)
	return strings.Join(dedupe(names), " "), nil
}

// FetchMetatag returns the value of the first token named by one of metatags. The name
// must match exactly, sigil included.
func FetchMetatag(query string, metatags ...string) (string, bool) {
	return FetchMetatagTokens(ScanStrings(query), metatags...)
}

// FetchMetatagTokens is FetchMetatag over already scanned tokens.
func FetchMetatagTokens(tokens []string, metatags ...string) (string, bool) {
	for _, tok := range tokens {
		name, value, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}
		for _, m := range metatags {
			if name == m {
				return value, true
			}
		}
	}
	return "", false
}

// HasMetatag reports whether query names one of metatags with a non-empty value.
func HasMetatag(query string, metatags ...string) bool {
	v, ok := FetchMetatag(query, metatags...)
	return ok && v != ""
}

// FetchTags returns the members of want present in tags, in want order.
func FetchTags(tags []string, want ...string) []string {
	present := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		present[t] = struct{}{}
	}
	var out []string
	for _, w := range want {
		if _, ok := present[w]; ok {
			out = append(out, w)
		}
	}
	return out
}

// HasTag reports whether any of want is present in tags.
func HasTag(tags []string, want ...string) bool {
	return len(FetchTags(tags, want...)) > 0
}
