package tagquery

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []Token
	}{
		{"empty", "   ", nil},
		{"split and dedupe", " fox  wolf fox ", []Token{{Text: "fox"}, {Text: "wolf"}}},
		{
			"quoted first",
			`fox description:"a b" -delreason:"x y" wolf`,
			[]Token{
				{Text: `description:"a b"`, Quoted: true},
				{Text: `-delreason:"x y"`, Quoted: true},
				{Text: "fox"},
				{Text: "wolf"},
			},
		},
		{"quoted not deduped", `a:"x" a:"x"`, []Token{{Text: `a:"x"`, Quoted: true}, {Text: `a:"x"`, Quoted: true}}},
		{"nfc", "cafe\u0301", []Token{{Text: "caf\u00e9"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scan(tt.query))
		})
	}
}

func TestScan_Deterministic(t *testing.T) {
	query := `~wolf fox description:"hello there" -canine fox order:score`
	first := Scan(query)
	assert.Equal(t, first, Scan(query))

	rejoined := strings.Join(ScanStrings(query), " ")
	assert.ElementsMatch(t, ScanStrings(query), ScanStrings(rejoined))
}

func TestVocabulary_Defaults(t *testing.T) {
	v := MustVocabulary(nil)

	for _, name := range []string{"gentags", "generaltags", "arttags", "artisttags", "creatortags", "chartags", "loretags"} {
		def, ok := v.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, KindRange, def.Kind)
	}
	def, _ := v.Lookup("arttags")
	assert.Equal(t, CategoryCountKey("creator"), def.Key)

	assert.Contains(t, v.OrderMetatags(), "chartags_asc")
	assert.Contains(t, v.OrderMetatags(), "random")
	assert.Contains(t, v.BooleanMetatags(), "favoritedby")
	assert.NotContains(t, v.NegatableMetatags(), "md5")

	all := v.Metatags()
	for _, name := range append(v.BooleanMetatags(), v.NegatableMetatags()...) {
		assert.Contains(t, all, name)
	}
	for _, name := range []string{"md5", "order", "limit", "child", "randseed"} {
		assert.Contains(t, all, name)
	}

	cat, ok := v.OrderCategory("arttags_asc")
	require.True(t, ok)
	assert.Equal(t, "creator", cat)
	_, ok = v.OrderCategory("tags")
	assert.False(t, ok)
}

func TestVocabulary_Invalid(t *testing.T) {
	_, err := NewVocabulary([]Category{{Name: "general", ShortNames: []string{"gen"}}, {Name: "genre", ShortNames: []string{"gen"}}})
	assert.Error(t, err)

	_, err = NewVocabulary([]Category{{Name: ""}})
	assert.Error(t, err)

	_, err = NewVocabulary([]Category{{Name: "post"}})
	assert.NoError(t, err)
}

func TestNormalize(t *testing.T) {
	repo := &fakeRepo{aliases: map[string]string{"kitty": "cat"}}
	got, err := Normalize(context.Background(), "Kitty  dog __big__eyes cat", repo)
	require.NoError(t, err)
	assert.Equal(t, "big_eyes cat dog", got)

	got, err = Normalize(context.Background(), "b a", nil)
	require.NoError(t, err)
	assert.Equal(t, "a b", got)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "long_hair", NormalizeName("  Long   Hair_ "))
	assert.Equal(t, "a_b", NormalizeName("__a__b__"))
}

func TestFetchMetatag(t *testing.T) {
	query := `fox order:score rating:s -status:deleted`

	v, ok := FetchMetatag(query, "order")
	assert.True(t, ok)
	assert.Equal(t, "score", v)

	v, ok = FetchMetatag(query, "status", "-status")
	assert.True(t, ok)
	assert.Equal(t, "deleted", v)

	_, ok = FetchMetatag(query, "md5")
	assert.False(t, ok)

	assert.True(t, HasMetatag(query, "rating"))
	assert.False(t, HasMetatag("order:", "order"))
}

func TestFetchTags(t *testing.T) {
	tags := []string{"fox", "wolf", "cat"}
	assert.Equal(t, []string{"cat", "fox"}, FetchTags(tags, "cat", "dog", "fox"))
	assert.True(t, HasTag(tags, "wolf"))
	assert.False(t, HasTag(tags, "dog"))
}
