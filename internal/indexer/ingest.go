package indexer

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/media"
)

// Outcome is how one ingested item ended.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeInserted
	OutcomeExisting
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeExisting:
		return "existing"
	default:
		return "failed"
	}
}

// Catalog is the write surface an ingest needs. *database.Session and
// *database.Database both satisfy it.
type Catalog interface {
	MediaExists(ctx context.Context, sourcePath string) (bool, error)
	InsertIfAbsent(ctx context.Context, item database.NewMediaItem) (bool, error)
}

// Generator produces derivatives for one source file.
type Generator interface {
	Process(ctx context.Context, src string) (*media.Result, error)
}

const lockStripes = 64

// Ingester runs lookup, generation and insert for one path at a time. It is
// shared by the scan pool and the watcher so both serialize on the same
// per-path locks.
type Ingester struct {
	generator Generator
	locks     [lockStripes]sync.Mutex
}

// NewIngester creates an ingester around generator.
func NewIngester(generator Generator) *Ingester {
	return &Ingester{generator: generator}
}

// Ingest catalogs item.Path through catalog unless it is already present.
// Derivatives generated for a path that another writer inserted first are
// deleted again.
func (in *Ingester) Ingest(ctx context.Context, catalog Catalog, item WorkItem) (Outcome, error) {
	mu := in.lockFor(item.Path)
	mu.Lock()
	defer mu.Unlock()

	exists, err := catalog.MediaExists(ctx, item.Path)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("catalog lookup failed: %w", err)
	}
	if exists {
		return OutcomeExisting, nil
	}

	result, err := in.generator.Process(ctx, item.Path)
	if err != nil {
		return OutcomeFailed, err
	}

	inserted, err := catalog.InsertIfAbsent(ctx, database.NewMediaItem{
		SourcePath:    item.Path,
		FolderID:      item.FolderID,
		Type:          result.Kind,
		MimeType:      result.MimeType,
		ThumbnailPath: result.ThumbnailPath,
		ConvertedPath: result.ConvertedPath,
		Metadata:      result.Metadata,
	})
	if err != nil {
		result.Discard()
		return OutcomeFailed, fmt.Errorf("catalog insert failed: %w", err)
	}
	if !inserted {
		logging.Debug("Lost insert race for %s, discarding derivatives", item.Path)
		result.Discard()
		return OutcomeExisting, nil
	}
	return OutcomeInserted, nil
}

func (in *Ingester) lockFor(path string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(path))
	return &in.locks[h.Sum32()%lockStripes]
}
