package handlers

import (
	"errors"
	"net/http"
	"os"

	"media-catalog/internal/database"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
)

// ListFolders returns every cataloged folder.
func (h *Handlers) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.catalog.ListFolders(r.Context())
	if err != nil {
		logging.Error("ListFolders failed: %v", err)
		writeJSONError(w, "failed to list folders", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, folders)
}

// ListSubfolders pages through the children of a folder. Folder id 0 lists
// the children of the root.
func (h *Handlers) ListSubfolders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid folder id", http.StatusBadRequest)
		return
	}

	page, pageSize := h.pageParams(r)
	result, err := h.catalog.ListSubfolders(r.Context(), id, page, pageSize)
	if err != nil {
		logging.Error("ListSubfolders(%d) failed: %v", id, err)
		writeJSONError(w, "failed to list subfolders", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, result)
}

// ListFolderMedia pages through the media of a folder.
func (h *Handlers) ListFolderMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid folder id", http.StatusBadRequest)
		return
	}

	page, pageSize := h.pageParams(r)
	result, err := h.catalog.ListFolderMedia(r.Context(), id, page, pageSize)
	if err != nil {
		logging.Error("ListFolderMedia(%d) failed: %v", id, err)
		writeJSONError(w, "failed to list media", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, result)
}

// GetMediaItem returns one item with its metadata.
func (h *Handlers) GetMediaItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid media id", http.StatusBadRequest)
		return
	}

	item, err := h.catalog.GetMediaItem(r.Context(), id)
	if errors.Is(err, database.ErrMediaNotFound) {
		writeJSONError(w, "media item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("GetMediaItem(%d) failed: %v", id, err)
		writeJSONError(w, "failed to load media item", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, item)
}

// GetFullResolution serves the full-size file of an item: the converted
// copy for raw originals, the source otherwise.
func (h *Handlers) GetFullResolution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid media id", http.StatusBadRequest)
		return
	}

	path, err := h.catalog.FullResolutionPath(r.Context(), id)
	if errors.Is(err, database.ErrMediaNotFound) {
		writeJSONError(w, "media item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("FullResolutionPath(%d) failed: %v", id, err)
		writeJSONError(w, "failed to load media item", http.StatusInternalServerError)
		return
	}
	h.serveFile(w, r, path)
}

// GetThumbnail serves the thumbnail of an item.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid media id", http.StatusBadRequest)
		return
	}

	item, err := h.catalog.GetMediaItem(r.Context(), id)
	if errors.Is(err, database.ErrMediaNotFound) {
		writeJSONError(w, "media item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("GetThumbnail(%d) failed: %v", id, err)
		writeJSONError(w, "failed to load media item", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	h.serveFile(w, r, item.ThumbnailPath)
}

// serveFile streams a cataloged file. A file that vanished since it was
// cataloged is a 404, not a server error.
func (h *Handlers) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if errors.Is(err, os.ErrNotExist) {
		writeJSONError(w, "file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to open %s: %v", path, err)
		writeJSONError(w, "failed to open file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSONError(w, "file not found", http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
