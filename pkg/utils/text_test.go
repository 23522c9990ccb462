package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("きつねきつね", 3); got != "きつね..." {
		t.Errorf("multibyte: got %s", got)
	}
}

func TestJoinIDs(t *testing.T) {
	tests := []struct {
		ids  []int64
		max  int
		want string
	}{
		{nil, 5, ""},
		{[]int64{3, 2, 1}, 0, "3 2 1"},
		{[]int64{3, 2, 1}, 3, "3 2 1"},
		{[]int64{5, 4, 3, 2, 1}, 2, "5 4 ... (3 more)"},
	}
	for _, tt := range tests {
		if got := JoinIDs(tt.ids, tt.max); got != tt.want {
			t.Errorf("JoinIDs(%v, %d) = %q, want %q", tt.ids, tt.max, got, tt.want)
		}
	}
}
