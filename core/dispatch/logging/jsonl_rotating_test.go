package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/tasks.jsonl"
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	rec := sampleRecord("t", "S1", time.Now())
	for i := 0; i < 100; i++ {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	files, _ := filepath.Glob(path + "*")
	if len(files) == 0 {
		t.Fatalf("expected log files")
	}
}

func TestRotatingJSONLStore_Query(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/tasks.jsonl"
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	_ = store.Append(context.Background(), sampleRecord("a", "S1", time.Now()))
	_ = store.Append(context.Background(), sampleRecord("b", "S2", time.Now()))
	out, err := store.Query(context.Background(), TaskQuery{SiteNo: "S2"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].TaskID != "b" {
		t.Fatalf("unexpected records %+v", out)
	}
	// the active file is never pruned
	if n, err := store.Prune(context.Background(), time.Now().Add(time.Hour)); err != nil || n != 0 {
		t.Fatalf("prune: %d %v", n, err)
	}
}
