package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

// MediaExists reports whether sourcePath is already cataloged.
func (c *Catalog) MediaExists(ctx context.Context, sourcePath string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("media_exists", start, err) }()

	var exists bool
	err = c.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM media_items WHERE source_path = ?)`, sourcePath,
	).Scan(&exists)
	return exists, err
}

// InsertIfAbsent catalogs item as an original. It returns false, and changes
// nothing, when the source path is already present; the UNIQUE constraint
// makes that decision atomic across connections.
func (c *Catalog) InsertIfAbsent(ctx context.Context, item NewMediaItem) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_if_absent", start, err) }()

	metadata := item.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return false, fmt.Errorf("failed to encode metadata for %s: %w", item.SourcePath, err)
	}

	inserted := false
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO media_items (source_path, folder_id, kind, media_type, mime_type, thumbnail_path, converted_path, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_path) DO NOTHING`,
			item.SourcePath, item.FolderID, ItemOriginal, item.Type.String(), item.MimeType,
			item.ThumbnailPath, nullString(item.ConvertedPath), string(metaJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", item.SourcePath, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			metrics.DBConflictsResolved.WithLabelValues("media_items").Inc()
			return nil
		}
		inserted = true

		if !c.recordDerivatives {
			return nil
		}

		originalID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO media_items (source_path, folder_id, kind, media_type, mime_type, thumbnail_path, parent_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_path) DO NOTHING`,
			item.ThumbnailPath, item.FolderID, ItemDerivedThumbnail, mediatypes.KindStill.String(),
			mediatypes.MimeType(".jpg"), item.ThumbnailPath, originalID,
		)
		if err != nil {
			return fmt.Errorf("failed to record thumbnail of %s: %w", item.SourcePath, err)
		}
		return nil
	})
	if err != nil {
		inserted = false
	}
	return inserted, err
}

// RemoveByPath deletes the row for sourcePath, and only that row. Rows
// derived from it keep existing with their parent link cleared. Removing an
// uncataloged path is a no-op.
func (c *Catalog) RemoveByPath(ctx context.Context, sourcePath string) (*Removal, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove_by_path", start, err) }()

	removal := &Removal{}
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		var thumbnail string
		var converted sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT id, thumbnail_path, converted_path FROM media_items WHERE source_path = ?`, sourcePath,
		).Scan(&removal.ItemID, &thumbnail, &converted)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM media_items WHERE id = ?`, removal.ItemID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", sourcePath, err)
		}
		removal.Removed = true

		for _, p := range []string{thumbnail, converted.String} {
			if p == "" {
				continue
			}
			var referenced bool
			err := tx.QueryRowContext(ctx, `
				SELECT EXISTS(SELECT 1 FROM media_items
					WHERE thumbnail_path = ?1 OR converted_path = ?1 OR source_path = ?1)`, p,
			).Scan(&referenced)
			if err != nil {
				return err
			}
			if !referenced {
				removal.OrphanedFiles = append(removal.OrphanedFiles, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if removal.Removed {
		logging.Debug("Removed %s from catalog (id %d)", sourcePath, removal.ItemID)
	}
	return removal, nil
}

// Reset deletes every media item and folder in one transaction and returns
// the derivative files the deleted rows referred to. Deleting those files is
// left to the caller.
func (c *Catalog) Reset(ctx context.Context) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("reset", start, err) }()

	var orphans []string
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT thumbnail_path FROM media_items
			UNION
			SELECT converted_path FROM media_items WHERE converted_path IS NOT NULL`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			if p != "" {
				orphans = append(orphans, p)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM media_items`); err != nil {
			return fmt.Errorf("failed to clear media items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM folders`); err != nil {
			return fmt.Errorf("failed to clear folders: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info("Catalog reset, %d derivative files orphaned", len(orphans))
	return orphans, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
