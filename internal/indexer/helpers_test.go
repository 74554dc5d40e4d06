package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"media-catalog/internal/database"
	"media-catalog/internal/media"
	"media-catalog/internal/mediatypes"
)

func newTestDB(t *testing.T, root string) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), database.Options{MediaRoot: root})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func touch(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// memoryCatalog is an in-memory Catalog and Session.
type memoryCatalog struct {
	mu        sync.Mutex
	items     map[string]database.NewMediaItem
	insertErr error
	forceLose bool
	closed    int
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{items: map[string]database.NewMediaItem{}}
}

func (c *memoryCatalog) MediaExists(_ context.Context, path string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[path]
	return ok, nil
}

func (c *memoryCatalog) InsertIfAbsent(_ context.Context, item database.NewMediaItem) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return false, c.insertErr
	}
	if c.forceLose {
		return false, nil
	}
	if _, ok := c.items[item.SourcePath]; ok {
		return false, nil
	}
	c.items[item.SourcePath] = item
	return true, nil
}

func (c *memoryCatalog) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *memoryCatalog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *memoryCatalog) sessions() SessionFunc {
	return func(context.Context) (Session, error) { return c, nil }
}

// stubGenerator fails every path containing "bad" and optionally writes real
// derivative files into dir.
type stubGenerator struct {
	mu    sync.Mutex
	dir   string
	calls map[string]int
	total int
	hook  func(ctx context.Context, src string)
}

func (g *stubGenerator) Process(ctx context.Context, src string) (*media.Result, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = map[string]int{}
	}
	g.calls[src]++
	seq := g.total
	g.total++
	g.mu.Unlock()

	if g.hook != nil {
		g.hook(ctx, src)
	}
	if strings.Contains(src, "bad") {
		return nil, &media.GenerationError{Kind: media.ErrGenerationFailed, Path: src, Err: errors.New("cannot decode")}
	}

	thumb := "/thumbnails/" + filepath.Base(src) + "_thumb.jpg"
	if g.dir != "" {
		thumb = filepath.Join(g.dir, fmt.Sprintf("%s_%d_thumb.jpg", filepath.Base(src), seq))
		if err := os.WriteFile(thumb, []byte("jpeg"), 0o644); err != nil {
			return nil, err
		}
	}
	return &media.Result{
		Kind:          mediatypes.KindStill,
		MimeType:      "image/jpeg",
		ThumbnailPath: thumb,
		Metadata:      map[string]string{},
	}, nil
}

func (g *stubGenerator) callsFor(src string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[src]
}
