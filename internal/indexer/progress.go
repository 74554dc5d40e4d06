package indexer

import (
	"context"
	"sync"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Progress is the shared counter set of one scan. Workers update it through
// its methods; readers take snapshots. It is advisory and never drives
// control flow.
type Progress struct {
	mu        sync.Mutex
	total     int
	processed int
	succeeded int
	failed    int
	existing  int
	skipped   int
	folders   int
	startedAt time.Time
	running   bool
}

// ProgressSnapshot is a point-in-time copy of Progress.
type ProgressSnapshot struct {
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Existing  int       `json:"existing"`
	Skipped   int       `json:"skipped"`
	Folders   int       `json:"folders"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Elapsed   string    `json:"elapsed,omitempty"`
}

// NewProgress returns a running Progress started now.
func NewProgress() *Progress {
	return &Progress{startedAt: time.Now(), running: true}
}

// Submitted counts one item handed to the pool.
func (p *Progress) Submitted() {
	p.mu.Lock()
	p.total++
	p.mu.Unlock()
}

// Record counts one processed item. Existing items count as succeeded.
func (p *Progress) Record(o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	switch o {
	case OutcomeInserted:
		p.succeeded++
	case OutcomeExisting:
		p.succeeded++
		p.existing++
	default:
		p.failed++
	}
}

// Skip counts n submitted items that were abandoned by a stop.
func (p *Progress) Skip(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	p.skipped += n
	p.mu.Unlock()
}

// SetFolders records how many folders the walk has resolved.
func (p *Progress) SetFolders(n int) {
	p.mu.Lock()
	p.folders = n
	p.mu.Unlock()
}

// Finish marks the scan as no longer running.
func (p *Progress) Finish() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// Snapshot returns a consistent copy of the counters.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := ProgressSnapshot{
		Total:     p.total,
		Processed: p.processed,
		Succeeded: p.succeeded,
		Failed:    p.failed,
		Existing:  p.existing,
		Skipped:   p.skipped,
		Folders:   p.folders,
		Running:   p.running,
		StartedAt: p.startedAt,
	}
	if !p.startedAt.IsZero() {
		s.Elapsed = time.Since(p.startedAt).Round(time.Millisecond).String()
	}
	return s
}

func (s ProgressSnapshot) publish() {
	metrics.ScanProgress.WithLabelValues("total").Set(float64(s.Total))
	metrics.ScanProgress.WithLabelValues("processed").Set(float64(s.Processed))
	metrics.ScanProgress.WithLabelValues("succeeded").Set(float64(s.Succeeded))
	metrics.ScanProgress.WithLabelValues("failed").Set(float64(s.Failed))
	metrics.ScanProgress.WithLabelValues("existing").Set(float64(s.Existing))
	metrics.ScanProgress.WithLabelValues("skipped").Set(float64(s.Skipped))
}

// reportProgress logs and publishes p every interval until ctx is done, then
// publishes once more.
func reportProgress(ctx context.Context, p *Progress, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		p.Snapshot().publish()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := p.Snapshot()
			s.publish()
			logging.Info("Scan progress: %d/%d processed (%d succeeded, %d failed), %d folders, %s elapsed",
				s.Processed, s.Total, s.Succeeded, s.Failed, s.Folders, s.Elapsed)
		case <-ctx.Done():
			p.Snapshot().publish()
			return
		}
	}
}
