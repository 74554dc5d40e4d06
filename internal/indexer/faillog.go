package indexer

import (
	"errors"
	"sync"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/media"
)

// maxFailures bounds the entries a FailLog keeps. Counts stay exact beyond it.
const maxFailures = 1000

// Failure is one item that could not be cataloged.
type Failure struct {
	Path   string    `json:"path"`
	Kind   string    `json:"kind"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// FailLog collects per-item failures of a scan.
type FailLog struct {
	mu      sync.Mutex
	entries []Failure
	count   int
}

// NewFailLog returns an empty log.
func NewFailLog() *FailLog {
	return &FailLog{}
}

// Add records err against path.
func (l *FailLog) Add(path string, err error) {
	f := Failure{Path: path, Kind: failureKind(err), Reason: err.Error(), At: time.Now()}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	if len(l.entries) < maxFailures {
		l.entries = append(l.entries, f)
	}
}

// Entries returns a copy of the recorded failures.
func (l *FailLog) Entries() []Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Failure(nil), l.entries...)
}

// Count returns the number of failures added, including any not retained.
func (l *FailLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func failureKind(err error) string {
	var genErr *media.GenerationError
	switch {
	case errors.As(err, &genErr):
		return genErr.Reason()
	case errors.Is(err, database.ErrFolderResolution):
		return "folder"
	default:
		return "catalog"
	}
}
