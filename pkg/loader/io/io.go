package io

import (
	"context"
	"os"
	"path/filepath"
)

// IOTextLoader reads text files from the local filesystem, optionally
// relative to a base directory.
type IOTextLoader struct {
	baseDir string
}

func NewIOTextLoader(baseDir string) *IOTextLoader {
	return &IOTextLoader{baseDir: baseDir}
}

func (l *IOTextLoader) resolve(location string) string {
	if l.baseDir == "" || filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(l.baseDir, location)
}

func (l *IOTextLoader) LoadText(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(l.resolve(location))
}

// Exists reports whether location is a readable regular file.
func (l *IOTextLoader) Exists(location string) bool {
	info, err := os.Stat(l.resolve(location))
	return err == nil && info.Mode().IsRegular()
}
