package tagquery

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Token is one search term as written by the user.
type Token struct {
	Text string
	// Quoted is set for name:"value with spaces" terms.
	Quoted bool
}

var quotedPattern = regexp.MustCompile(`[-~]?\w*?:".*?"`)

// Scan splits a query into tokens. Quoted metatag values are pulled out first, in the order
// they appear; the remainder is split on whitespace and deduplicated.
func Scan(query string) []Token {
	query = strings.TrimSpace(norm.NFC.String(query))

	var tokens []Token
	for _, m := range quotedPattern.FindAllString(query, -1) {
		tokens = append(tokens, Token{Text: m, Quoted: true})
	}
	rest := quotedPattern.ReplaceAllString(query, "")

	seen := make(map[string]struct{})
	for _, field := range strings.Fields(rest) {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		tokens = append(tokens, Token{Text: field})
	}
	return tokens
}

// ScanStrings is Scan returning only the token text.
func ScanStrings(query string) []string {
	tokens := Scan(query)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}
