package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

// ErrRootUnreadable fails a whole scan.
var ErrRootUnreadable = errors.New("media root unreadable")

// WorkItem is one file to ingest together with its cataloged folder.
type WorkItem struct {
	Path     string
	FolderID int64
}

// WalkStats summarizes one Walk.
type WalkStats struct {
	Folders            int `json:"folders"`
	Files              int `json:"files"`
	SkippedDirectories int `json:"skippedDirectories"`
}

// FolderResolver maps directories onto folder rows.
type FolderResolver interface {
	GetOrCreateFolder(ctx context.Context, absDir string) (*database.Folder, error)
}

// Scanner enumerates supported files below a root directory.
type Scanner struct {
	root       string
	extensions mediatypes.ExtensionSet
	folders    FolderResolver

	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
}

// NewScanner creates a scanner for root. Only files whose extension is in
// extensions are emitted.
func NewScanner(root string, extensions mediatypes.ExtensionSet, folders FolderResolver) *Scanner {
	return &Scanner{root: root, extensions: extensions, folders: folders}
}

// Walk sends every supported file under the root to out, leaving out dotfiles
// and dot-directories when SkipHidden is set. A directory's folder row exists
// before any of its files is sent. Symlinked directories are followed once
// per real path; a link to a directory the walk reaches on its own is not
// followed, so those files stay cataloged under their real folder. Walk does
// not close out.
func (s *Scanner) Walk(ctx context.Context, out chan<- WorkItem) (WalkStats, error) {
	var stats WalkStats

	resolved, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}

	w := &walk{Scanner: s, out: out, stats: &stats, realRoot: resolved, visited: map[string]bool{resolved: true}}
	if err := w.dir(ctx, s.root, entries); err != nil {
		return stats, err
	}

	logging.Info("Walk complete: %d folders, %d files, %d directories skipped",
		stats.Folders, stats.Files, stats.SkippedDirectories)
	return stats, nil
}

type walk struct {
	*Scanner
	out      chan<- WorkItem
	stats    *WalkStats
	realRoot string
	visited  map[string]bool
}

type subdir struct {
	path string
	link bool
}

func (w *walk) dir(ctx context.Context, dir string, entries []os.DirEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	folder, err := w.folders.GetOrCreateFolder(ctx, dir)
	if err != nil {
		if dir == w.root {
			return fmt.Errorf("failed to catalog root folder: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn("Skipping %s: %v", dir, err)
		w.skip("unresolvable")
		return nil
	}
	w.stats.Folders++
	metrics.ScanFoldersDiscovered.Inc()

	var subdirs []subdir
	for _, entry := range entries {
		name := entry.Name()
		if w.SkipHidden && strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		isDir := entry.IsDir()
		isLink := entry.Type()&os.ModeSymlink != 0
		if isLink {
			info, err := os.Stat(path)
			if err != nil {
				logging.Debug("Ignoring broken symlink %s: %v", path, err)
				continue
			}
			isDir = info.IsDir()
		}

		if isDir {
			subdirs = append(subdirs, subdir{path: path, link: isLink})
			continue
		}
		if !w.extensions.Matches(name) {
			continue
		}

		select {
		case w.out <- WorkItem{Path: path, FolderID: folder.ID}:
			w.stats.Files++
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, sub := range subdirs {
		if err := w.enter(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

// enter descends into sub unless its real path was already walked or, for a
// symlink, will be walked through its real location.
func (w *walk) enter(ctx context.Context, sub subdir) error {
	resolved, err := filepath.EvalSymlinks(sub.path)
	if err != nil {
		logging.Warn("Skipping unresolvable directory %s: %v", sub.path, err)
		w.skip("unreadable")
		return nil
	}
	if w.visited[resolved] {
		logging.Warn("Skipping %s: symlink loop or duplicate of %s", sub.path, resolved)
		w.skip("symlink_loop")
		return nil
	}
	if sub.link && w.reachable(resolved) {
		logging.Warn("Skipping %s: links to %s, which is walked in place", sub.path, resolved)
		w.skip("symlink_loop")
		return nil
	}
	w.visited[resolved] = true

	entries, err := os.ReadDir(sub.path)
	if err != nil {
		logging.Warn("Skipping unreadable directory %s: %v", sub.path, err)
		w.skip("unreadable")
		return nil
	}
	return w.dir(ctx, sub.path, entries)
}

// reachable reports whether the real directory resolved lies inside the
// root where the walk enters it on its own. resolved has no symlinks left,
// so only hidden components can keep the walk out.
func (w *walk) reachable(resolved string) bool {
	rel, err := filepath.Rel(w.realRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if !w.SkipHidden || rel == "." {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

func (w *walk) skip(reason string) {
	w.stats.SkippedDirectories++
	metrics.ScanDirectoriesSkipped.WithLabelValues(reason).Inc()
}
