// Package suggest proposes existing tag names for misspelled ones.
package suggest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// TagSource lists tag names by prefix, most used first.
type TagSource interface {
	TagNamesWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Suggester finds tags close to a name by edit distance among tags sharing its first letter.
type Suggester struct {
	tags           TagSource
	maxDistance    int
	maxSuggestions int
	candidates     int
}

// Option configures a Suggester.
type Option func(*Suggester)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) Option {
	return func(s *Suggester) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMaxSuggestions sets the maximum number of suggestions returned per tag.
func WithMaxSuggestions(n int) Option {
	return func(s *Suggester) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSuggester creates a suggester over tags.
func NewSuggester(tags TagSource, opts ...Option) *Suggester {
	s := &Suggester{tags: tags, maxDistance: 2, maxSuggestions: 3, candidates: 1000}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type candidate struct {
	name     string
	distance int
	rank     int
}

// Suggest returns up to maxSuggestions existing tags close to name, nearest first and
// more popular first among equals. An existing tag gets no suggestions.
func (s *Suggester) Suggest(ctx context.Context, name string) ([]string, error) {
	name = strings.ToLower(name)
	first, _ := utf8.DecodeRuneInString(name)
	if first == utf8.RuneError {
		return nil, nil
	}
	names, err := s.tags.TagNamesWithPrefix(ctx, string(first), s.candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate tags: %w", err)
	}

	var found []candidate
	nameLen := utf8.RuneCountInString(name)
	for rank, n := range names {
		if n == name {
			return nil, nil
		}
		if abs(utf8.RuneCountInString(n)-nameLen) > s.maxDistance {
			continue
		}
		if d := Distance(name, n); d <= s.maxDistance {
			found = append(found, candidate{name: n, distance: d, rank: rank})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].rank < found[j].rank
	})
	if len(found) > s.maxSuggestions {
		found = found[:s.maxSuggestions]
	}
	out := make([]string, len(found))
	for i, c := range found {
		out[i] = c.name
	}
	return out, nil
}

// SuggestAll suggests for every name and returns the distinct suggestions in order.
func (s *Suggester) SuggestAll(ctx context.Context, names []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range names {
		got, err := s.Suggest(ctx, n)
		if err != nil {
			return nil, err
		}
		for _, g := range got {
			if _, ok := seen[g]; !ok {
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
