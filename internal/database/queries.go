package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// ErrMediaNotFound is returned for an unknown media item id.
var ErrMediaNotFound = errors.New("media item not found")

// DefaultPageSize applies when a listing is requested without a page size.
const (
	DefaultPageSize = 50
	maxPageSize     = 500
)

const mediaColumns = `i.id, i.source_path, i.folder_id, i.kind, i.media_type, i.mime_type,
	i.thumbnail_path, i.converted_path, i.metadata, i.parent_id, i.created_at, i.updated_at`

// ListFolders returns every folder ordered by path, root first.
func (c *Catalog) ListFolders(ctx context.Context) ([]Folder, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_folders", start, err) }()

	rows, err := c.q.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("folder query failed: %w", err)
	}
	defer rows.Close()

	folders := []Folder{}
	for rows.Next() {
		f, scanErr := scanFolder(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		folders = append(folders, *f)
	}
	err = rows.Err()
	return folders, err
}

// ListSubfolders pages through the children of parentID. A parentID of 0
// addresses the root.
func (c *Catalog) ListSubfolders(ctx context.Context, parentID int64, page, pageSize int) (*Page[Folder], error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_subfolders", start, err) }()

	page, pageSize = normalizePage(page, pageSize)

	where := `parent_id = ?`
	args := []any{parentID}
	if parentID == 0 {
		where = `parent_id = (SELECT id FROM folders WHERE path = '')`
		args = nil
	}

	var total int
	if err = c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}

	rows, err := c.q.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE `+where+` ORDER BY name COLLATE NOCASE LIMIT ? OFFSET ?`,
		append(args, pageSize, (page-1)*pageSize)...,
	)
	if err != nil {
		return nil, fmt.Errorf("select query failed: %w", err)
	}
	defer rows.Close()

	result := newPage[Folder](total, page, pageSize)
	for rows.Next() {
		f, scanErr := scanFolder(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		result.Items = append(result.Items, *f)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListFolderMedia pages through the originals of a folder. An original that
// has a derived_thumbnail row is represented by that row instead.
func (c *Catalog) ListFolderMedia(ctx context.Context, folderID int64, page, pageSize int) (*Page[MediaItem], error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_folder_media", start, err) }()

	page, pageSize = normalizePage(page, pageSize)

	var total int
	err = c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE folder_id = ? AND kind = ?`, folderID, ItemOriginal,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}

	rows, err := c.q.QueryContext(ctx, `
		WITH listed AS (
			SELECT m.id AS original_id,
				(SELECT MIN(d.id) FROM media_items d
					WHERE d.parent_id = m.id AND d.kind = ?) AS derived_id,
				m.source_path
			FROM media_items m
			WHERE m.folder_id = ? AND m.kind = ?
			ORDER BY m.source_path
			LIMIT ? OFFSET ?
		)
		SELECT `+mediaColumns+`
		FROM listed l
		JOIN media_items i ON i.id = COALESCE(l.derived_id, l.original_id)
		ORDER BY l.source_path`,
		ItemDerivedThumbnail, folderID, ItemOriginal, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("select query failed: %w", err)
	}
	defer rows.Close()

	result := newPage[MediaItem](total, page, pageSize)
	for rows.Next() {
		item, scanErr := scanMediaItem(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		result.Items = append(result.Items, *item)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMediaItem fetches one item by id.
func (c *Catalog) GetMediaItem(ctx context.Context, id int64) (*MediaItem, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_media_item", start, err) }()

	row := c.q.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_items i WHERE i.id = ?`, id)
	item, err := scanMediaItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrMediaNotFound, id)
	}
	return item, err
}

// FullResolutionPath returns the file to serve at full size: the converted
// copy for originals that needed conversion, otherwise the source itself. A
// derived row, as listed in place of its original, resolves to that
// original; a derived row whose original is gone has no full resolution.
func (c *Catalog) FullResolutionPath(ctx context.Context, id int64) (string, error) {
	item, err := c.GetMediaItem(ctx, id)
	if err != nil {
		return "", err
	}
	if item.Kind != ItemOriginal {
		if item.ParentID == nil {
			return "", fmt.Errorf("%w: %d has no original", ErrMediaNotFound, id)
		}
		if item, err = c.GetMediaItem(ctx, *item.ParentID); err != nil {
			return "", err
		}
		if item.Kind != ItemOriginal {
			return "", fmt.Errorf("%w: %d has no original", ErrMediaNotFound, id)
		}
	}
	if item.ConvertedPath != "" {
		return item.ConvertedPath, nil
	}
	return item.SourcePath, nil
}

// CountFolders returns the number of cataloged folders, root included.
func (c *Catalog) CountFolders(ctx context.Context) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders`).Scan(&n)
	return n, err
}

// CatalogStats implements metrics.StatsProvider.
func (d *Database) CatalogStats(ctx context.Context) (metrics.Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("catalog_stats", start, err) }()

	d.UpdateDBMetrics()

	stats := metrics.Stats{MediaByType: map[string]int{}}
	if stats.Folders, err = d.CountFolders(ctx); err != nil {
		return stats, err
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT media_type, COUNT(*) FROM media_items WHERE kind = ? GROUP BY media_type`, ItemOriginal)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var mediaType string
		var n int
		if err = rows.Scan(&mediaType, &n); err != nil {
			return stats, err
		}
		stats.MediaByType[mediaType] = n
	}
	err = rows.Err()
	return stats, err
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func newPage[T any](total, page, pageSize int) *Page[T] {
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	if totalPages < 1 {
		totalPages = 1
	}
	return &Page[T]{
		Items:      []T{},
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
		PageSize:   pageSize,
	}
}

func scanMediaItem(row rowScanner) (*MediaItem, error) {
	var (
		item                 MediaItem
		kind                 string
		converted            sql.NullString
		metadata             string
		parentID             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&item.ID, &item.SourcePath, &item.FolderID, &kind, &item.MediaType, &item.MimeType,
		&item.ThumbnailPath, &converted, &metadata, &parentID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	item.Kind = ItemKind(kind)
	item.ConvertedPath = converted.String
	if parentID.Valid {
		id := parentID.Int64
		item.ParentID = &id
	}
	item.CreatedAt = time.Unix(createdAt, 0)
	item.UpdatedAt = time.Unix(updatedAt, 0)

	item.Metadata = map[string]string{}
	if err := json.Unmarshal([]byte(metadata), &item.Metadata); err != nil {
		logging.Warn("Ignoring malformed metadata on media item %d: %v", item.ID, err)
		item.Metadata = map[string]string{}
	}
	return &item, nil
}
