package io

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestIOTextLoaderRelative(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("microgravity"), 0o600); err != nil {
		t.Fatal(err)
	}
	l := NewIOTextLoader(dir)
	got, err := l.LoadText(context.Background(), "a.txt")
	if err != nil || string(got) != "microgravity" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
	if !l.Exists("a.txt") || l.Exists("b.txt") {
		t.Fatal("unexpected Exists result")
	}
	if _, err := l.LoadText(context.Background(), "b.txt"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
