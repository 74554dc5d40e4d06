package handlers

import (
	"context"

	"media-catalog/internal/database"
	"media-catalog/internal/indexer"
	"media-catalog/internal/metrics"
)

// Catalog is the read side of the database the API serves from.
type Catalog interface {
	ListFolders(ctx context.Context) ([]database.Folder, error)
	ListSubfolders(ctx context.Context, parentID int64, page, pageSize int) (*database.Page[database.Folder], error)
	ListFolderMedia(ctx context.Context, folderID int64, page, pageSize int) (*database.Page[database.MediaItem], error)
	GetMediaItem(ctx context.Context, id int64) (*database.MediaItem, error)
	FullResolutionPath(ctx context.Context, id int64) (string, error)
	CatalogStats(ctx context.Context) (metrics.Stats, error)
}

// Scanner is the part of the indexer the API drives.
type Scanner interface {
	FullScan(ctx context.Context) (*indexer.ScanResult, error)
	TriggerScan() error
	GetHealthStatus() indexer.HealthStatus
	LastResult() *indexer.ScanResult
}

// WatchStatus reports on the file watcher, if one is running.
type WatchStatus interface {
	IsWatching() bool
	Pending() int
}

type Handlers struct {
	catalog  Catalog
	scanner  Scanner
	watcher  WatchStatus
	pageSize int
}

// New wires the handlers. watcher may be nil when watching is disabled; a
// pageSize below 1 falls back to database.DefaultPageSize.
func New(catalog Catalog, scanner Scanner, watcher WatchStatus, pageSize int) *Handlers {
	if pageSize < 1 {
		pageSize = database.DefaultPageSize
	}
	return &Handlers{
		catalog:  catalog,
		scanner:  scanner,
		watcher:  watcher,
		pageSize: pageSize,
	}
}
