// Package utils provides shared text and logging helpers.
package utils

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Truncate returns s cut to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen]) + "..."
}

// JoinIDs formats ids as a space separated list, showing at most max of them.
func JoinIDs(ids []int64, max int) string {
	shown := ids
	if max > 0 && len(ids) > max {
		shown = ids[:max]
	}
	parts := make([]string, len(shown))
	for i, id := range shown {
		parts[i] = strconv.FormatInt(id, 10)
	}
	out := strings.Join(parts, " ")
	if len(shown) < len(ids) {
		out += " ... (" + strconv.Itoa(len(ids)-len(shown)) + " more)"
	}
	return out
}
