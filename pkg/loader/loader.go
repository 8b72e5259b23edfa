package loader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"

	"golang.org/x/sync/singleflight"
)

// TextLoader returns the plain text stored at location. Locations are local
// paths, http(s) URLs or s3://bucket/key references.
type TextLoader interface {
	LoadText(ctx context.Context, location string) ([]byte, error)
}

// LoaderFunc adapts a function to TextLoader.
type LoaderFunc func(ctx context.Context, location string) ([]byte, error)

func (f LoaderFunc) LoadText(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}

// Cache memoizes successful loads and collapses concurrent loads of the same
// location into one call.
type Cache struct {
	next TextLoader

	mu    sync.RWMutex
	items map[string][]byte
	group singleflight.Group
}

func NewCache(next TextLoader) *Cache {
	return &Cache{next: next, items: make(map[string][]byte)}
}

func (c *Cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.items[key]
	return b, ok
}

func (c *Cache) LoadText(ctx context.Context, location string) ([]byte, error) {
	if b, ok := c.get(location); ok {
		return b, nil
	}
	result, err, _ := c.group.Do(location, func() (any, error) {
		if b, ok := c.get(location); ok {
			return b, nil
		}
		b, err := c.next.LoadText(ctx, location)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[location] = b
		c.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Router dispatches a location to the loader responsible for it. Nil
// loaders are reported as unsupported.
type Router struct {
	Local TextLoader
	PDF   TextLoader
	Web   TextLoader
	S3    TextLoader
}

var ErrUnsupportedLocation = errors.New("unsupported location")

func (r *Router) pick(location string) (TextLoader, string) {
	if u, err := url.Parse(location); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return r.Web, "web"
		case "s3":
			return r.S3, "s3"
		}
	}
	if strings.EqualFold(filepath.Ext(location), ".pdf") {
		return r.PDF, "pdf"
	}
	return r.Local, "local"
}

func (r *Router) LoadText(ctx context.Context, location string) ([]byte, error) {
	l, kind := r.pick(location)
	if l == nil {
		return nil, fmt.Errorf("%w: no %s loader for %q", ErrUnsupportedLocation, kind, location)
	}
	return l.LoadText(ctx, location)
}

// DocumentText resolves the text of doc. Pre-extracted text wins over the
// local copy, which wins over the source URL. Failures are reported as
// common.ErrSourceUnavailable.
func DocumentText(ctx context.Context, l TextLoader, doc common.Document) (string, error) {
	if doc.Text != "" {
		return doc.Text, nil
	}
	var lastErr error
	for _, location := range []string{doc.TextPath, doc.LocalPath, doc.SourceURL} {
		if location == "" {
			continue
		}
		b, err := l.LoadText(ctx, location)
		if err == nil {
			return string(b), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = fmt.Errorf("%s: %w", location, err)
	}
	if lastErr == nil {
		lastErr = errors.New("document has no location")
	}
	return "", fmt.Errorf("%w: %q: %w", common.ErrSourceUnavailable, doc.Title, lastErr)
}
