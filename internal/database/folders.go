package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

var (
	// ErrFolderResolution means a directory cannot be mapped onto the tree,
	// usually because it lies outside the media root.
	ErrFolderResolution = errors.New("folder resolution failed")

	// ErrFolderNotFound is returned by FindFolder for uncataloged directories.
	ErrFolderNotFound = errors.New("folder not found")
)

const folderColumns = `id, path, name, parent_id, created_at, updated_at`

// GetOrCreateFolder returns the folder row for absDir, creating it and any
// missing ancestors first. Every ancestor is committed before its child, so a
// returned folder always has a complete chain up to the root.
func (c *Catalog) GetOrCreateFolder(ctx context.Context, absDir string) (*Folder, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_or_create_folder", start, err) }()

	rel, err := c.relativePath(absDir)
	if err != nil {
		return nil, err
	}

	folder, err := c.ensureFolder(ctx, rel)
	return folder, err
}

// FindFolder looks up the folder for absDir without creating anything.
func (c *Catalog) FindFolder(ctx context.Context, absDir string) (*Folder, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_folder", start, err) }()

	rel, err := c.relativePath(absDir)
	if err != nil {
		return nil, err
	}

	folder, err := c.folderByPath(ctx, rel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrFolderNotFound, rel)
	}
	if err != nil {
		return nil, err
	}

	if err := c.backfillParent(ctx, folder, false); err != nil {
		logging.Warn("Failed to backfill parent of folder %q: %v", folder.Path, err)
	}
	return folder, nil
}

func (c *Catalog) ensureFolder(ctx context.Context, rel string) (*Folder, error) {
	folder, err := c.folderByPath(ctx, rel)
	if err == nil {
		if err := c.backfillParent(ctx, folder, true); err != nil {
			return nil, err
		}
		return folder, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up folder %q: %w", rel, err)
	}

	name := "root"
	var parentID sql.NullInt64
	if rel != "" {
		parent, err := c.ensureFolder(ctx, parentOf(rel))
		if err != nil {
			return nil, err
		}
		parentID = sql.NullInt64{Int64: parent.ID, Valid: true}
		name = path.Base(rel)
	}

	_, err = c.q.ExecContext(ctx,
		`INSERT INTO folders (path, name, parent_id) VALUES (?, ?, ?)`,
		rel, name, parentID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Another worker created it first.
			metrics.DBConflictsResolved.WithLabelValues("folders").Inc()
			return c.folderByPath(ctx, rel)
		}
		return nil, fmt.Errorf("failed to insert folder %q: %w", rel, err)
	}

	logging.Debug("Cataloged folder %q", rel)
	return c.folderByPath(ctx, rel)
}

// backfillParent links a non-root folder that was stored without a parent.
// Unless create is set, a missing parent leaves the folder untouched.
func (c *Catalog) backfillParent(ctx context.Context, folder *Folder, create bool) error {
	if folder.IsRoot() || folder.ParentID != nil {
		return nil
	}

	var parent *Folder
	var err error
	if create {
		parent, err = c.ensureFolder(ctx, parentOf(folder.Path))
	} else {
		parent, err = c.folderByPath(ctx, parentOf(folder.Path))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
	}
	if err != nil {
		return err
	}

	_, err = c.q.ExecContext(ctx,
		`UPDATE folders SET parent_id = ?, updated_at = strftime('%s', 'now') WHERE id = ? AND parent_id IS NULL`,
		parent.ID, folder.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to backfill parent of %q: %w", folder.Path, err)
	}

	folder.ParentID = &parent.ID
	logging.Debug("Backfilled parent of folder %q", folder.Path)
	return nil
}

func (c *Catalog) folderByPath(ctx context.Context, rel string) (*Folder, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE path = ?`, rel)
	return scanFolder(row)
}

// relativePath maps an absolute directory onto the slash-separated key used
// in the folders table.
func (c *Catalog) relativePath(absDir string) (string, error) {
	if !filepath.IsAbs(absDir) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrFolderResolution, absDir)
	}

	rel, err := filepath.Rel(c.root, filepath.Clean(absDir))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrFolderResolution, absDir, err)
	}
	if rel == "." {
		return "", nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside %q", ErrFolderResolution, absDir, c.root)
	}
	return filepath.ToSlash(rel), nil
}

func parentOf(rel string) string {
	parent := path.Dir(rel)
	if parent == "." {
		return ""
	}
	return parent
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner) (*Folder, error) {
	var (
		f                    Folder
		parentID             sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&f.ID, &f.Path, &f.Name, &parentID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		id := parentID.Int64
		f.ParentID = &id
	}
	f.CreatedAt = time.Unix(createdAt, 0)
	f.UpdatedAt = time.Unix(updatedAt, 0)
	return &f, nil
}
