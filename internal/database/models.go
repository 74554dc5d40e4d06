package database

import (
	"time"

	"media-catalog/internal/mediatypes"
)

// ItemKind distinguishes real source files from generated artifacts that are
// cataloged in their own right.
type ItemKind string

const (
	ItemOriginal         ItemKind = "original"
	ItemDerivedThumbnail ItemKind = "derived_thumbnail"
	ItemDerivedConverted ItemKind = "derived_converted"
)

// Folder is one directory of the media tree. The root has Path "" and no
// parent.
type Folder struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsRoot reports whether f is the root sentinel.
func (f *Folder) IsRoot() bool {
	return f.Path == ""
}

// MediaItem is one cataloged file.
type MediaItem struct {
	ID            int64             `json:"id"`
	SourcePath    string            `json:"sourcePath"`
	FolderID      int64             `json:"folderId"`
	Kind          ItemKind          `json:"kind"`
	MediaType     string            `json:"mediaType"`
	MimeType      string            `json:"mimeType"`
	ThumbnailPath string            `json:"thumbnailPath"`
	ConvertedPath string            `json:"convertedPath,omitempty"`
	Metadata      map[string]string `json:"metadata"`
	ParentID      *int64            `json:"parentId,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// NewMediaItem is what ingestion hands to InsertIfAbsent once derivative
// generation has succeeded.
type NewMediaItem struct {
	SourcePath    string
	FolderID      int64
	Type          mediatypes.Kind
	MimeType      string
	ThumbnailPath string
	ConvertedPath string
	Metadata      map[string]string
}

// Removal describes the outcome of RemoveByPath.
type Removal struct {
	Removed bool
	ItemID  int64

	// OrphanedFiles are derivative files no remaining row refers to.
	OrphanedFiles []string
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	PageSize   int `json:"pageSize"`
}
