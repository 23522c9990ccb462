package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func isYAML(path string) bool {
	return strings.HasSuffix(path, ".yaml")
}

type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) onChange(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func TestWatcher_DebouncesIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(dir, isYAML, rec.onChange, WithDebounce(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for _, name := range []string{"a.yaml", "b.yaml", "notes.txt"} {
		if err := writeFile(filepath.Join(dir, name), "tags: []"); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(filepath.Join(dir, "a.yaml"), "tags: [] # again"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(700 * time.Millisecond)

	batches := rec.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected one debounced batch, got %v", batches)
	}
	got := batches[0]
	if len(got) != 2 || !strings.HasSuffix(got[0], "a.yaml") || !strings.HasSuffix(got[1], "b.yaml") {
		t.Errorf("batch = %v, want [a.yaml b.yaml]", got)
	}
}

func TestWatcher_StopDropsPending(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(dir, nil, rec.onChange, WithDebounce(300*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "a.yaml"), "posts: []"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()
	w.Stop()
	time.Sleep(500 * time.Millisecond)
	if batches := rec.snapshot(); len(batches) != 0 {
		t.Errorf("expected no callbacks after Stop, got %v", batches)
	}
}

func TestWatcher_Start_createsMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seeds", "live")
	w := NewWatcher(dir, isYAML, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory should exist after Start: %v", err)
	}
	if w.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", w.Dir(), dir)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
