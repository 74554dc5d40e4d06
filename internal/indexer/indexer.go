package indexer

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
	"media-catalog/internal/workers"

	"golang.org/x/sync/errgroup"
)

// ErrScanInProgress is returned when a full scan is requested while one runs.
var ErrScanInProgress = errors.New("scan already in progress")

// Config controls full scans.
type Config struct {
	Root       string
	Extensions mediatypes.ExtensionSet
	Workers    int
	ChunkSize  int

	// SkipHidden leaves dotfiles and dot-directories out of the walk.
	SkipHidden bool

	// ScanInterval schedules periodic full scans; 0 disables them.
	ScanInterval time.Duration

	// ProgressInterval is how often a running scan logs its counters; 0
	// disables the log lines.
	ProgressInterval time.Duration
}

// Indexer runs full scans of the media root: reset the catalog, walk the
// tree, and ingest every supported file through the worker pool.
type Indexer struct {
	db       *database.Database
	config   Config
	ingester *Ingester
	memory   Pauser

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	scanMu           sync.Mutex
	isScanning       bool
	progress         *Progress
	lastResult       *ScanResult
	lastScanTime     time.Time
	initialScanError error
	startTime        time.Time
}

// ScanResult is the outcome of one full scan.
type ScanResult struct {
	Status           string    `json:"status"`
	FoldersProcessed int       `json:"foldersProcessed"`
	ImagesProcessed  int       `json:"imagesProcessed"`
	Submitted        int       `json:"submitted"`
	Failed           int       `json:"failed"`
	Existing         int       `json:"existing"`
	Skipped          int       `json:"skipped"`
	SkippedDirs      int       `json:"skippedDirectories"`
	Failures         []Failure `json:"failures,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	Duration         string    `json:"duration"`
	Error            string    `json:"error,omitempty"`
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready            bool              `json:"ready"`
	Scanning         bool              `json:"scanning"`
	StartTime        time.Time         `json:"startTime"`
	Uptime           string            `json:"uptime"`
	LastScanned      time.Time         `json:"lastScanned,omitempty"`
	InitialScanError string            `json:"initialScanError,omitempty"`
	Progress         *ProgressSnapshot `json:"progress,omitempty"`
}

// New creates an Indexer. ingester is shared with the watcher.
func New(db *database.Database, ingester *Ingester, config Config) *Indexer {
	if config.Workers < 1 {
		config.Workers = workers.ForCPU(0)
	}
	if config.ChunkSize < 1 {
		config.ChunkSize = DefaultChunkSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Indexer{
		db:        db,
		config:    config,
		ingester:  ingester,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// SetMemoryMonitor makes workers wait while memory is critical.
func (idx *Indexer) SetMemoryMonitor(m Pauser) {
	idx.memory = m
}

// Start runs an initial scan in the background when the catalog is empty
// and schedules periodic scans if configured.
func (idx *Indexer) Start() error {
	folders, err := idx.db.CountFolders(idx.ctx)
	if err != nil {
		return err
	}

	if folders == 0 {
		idx.wg.Add(1)
		go func() {
			defer idx.wg.Done()
			logging.Info("Catalog is empty, starting initial scan in background...")
			if _, err := idx.FullScan(idx.ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("Initial scan error: %v", err)
				idx.scanMu.Lock()
				idx.initialScanError = err
				idx.scanMu.Unlock()
			}
		}()
	} else {
		logging.Info("Catalog holds %d folders, skipping initial scan", folders)
	}

	if idx.config.ScanInterval > 0 {
		idx.wg.Add(1)
		go func() {
			defer idx.wg.Done()
			idx.periodicScan()
		}()
	}
	return nil
}

// Stop cancels any running scan and waits for background work, including
// orphan sweeps, to finish. It is safe to call more than once.
func (idx *Indexer) Stop() {
	idx.once.Do(idx.cancel)
	idx.wg.Wait()
}

func (idx *Indexer) periodicScan() {
	logging.Info("Periodic scans enabled (interval: %v)", idx.config.ScanInterval)
	ticker := time.NewTicker(idx.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic scan triggered")
			if _, err := idx.FullScan(idx.ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
				logging.Error("Periodic scan failed: %v", err)
			}
		case <-idx.ctx.Done():
			return
		}
	}
}

// TriggerScan starts a full scan in the background.
func (idx *Indexer) TriggerScan() error {
	if idx.IsScanning() {
		return ErrScanInProgress
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		if _, err := idx.FullScan(idx.ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
			logging.Error("Manually triggered scan failed: %v", err)
		}
	}()
	return nil
}

// FullScan rebuilds the catalog from disk. Rows are reset first, so after a
// completed scan the catalog holds exactly the files the walk observed minus
// those that failed. The derivative files of the old rows are swept in the
// background. Cancelling ctx, or Stop, ends the scan after in-flight items.
func (idx *Indexer) FullScan(ctx context.Context) (*ScanResult, error) {
	if !idx.tryStartScan() {
		return nil, ErrScanInProgress
	}
	defer idx.finishScan()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnShutdown := context.AfterFunc(idx.ctx, cancel)
	defer stopOnShutdown()

	metrics.ScanRunning.Set(1)
	defer metrics.ScanRunning.Set(0)

	startTime := time.Now()
	logging.Info("Starting full scan of %s...", idx.config.Root)

	progress := NewProgress()
	failLog := NewFailLog()
	idx.scanMu.Lock()
	idx.progress = progress
	idx.scanMu.Unlock()

	var stats WalkStats
	var run RunResult
	err := idx.scan(ctx, progress, failLog, &stats, &run)

	progress.SetFolders(stats.Folders)
	progress.Finish()

	result := &ScanResult{
		Status:           "completed",
		FoldersProcessed: stats.Folders,
		ImagesProcessed:  run.Succeeded,
		Submitted:        run.Submitted,
		Failed:           run.Failed,
		Existing:         run.Existing,
		Skipped:          run.Skipped,
		SkippedDirs:      stats.SkippedDirectories,
		Failures:         failLog.Entries(),
		StartedAt:        startTime,
		Duration:         time.Since(startTime).Round(time.Millisecond).String(),
	}
	switch {
	case err == nil && run.Stopped:
		err = ctx.Err()
		fallthrough
	case errors.Is(err, context.Canceled):
		result.Status = "cancelled"
	case err != nil:
		result.Status = "error"
	}
	if err != nil {
		result.Error = err.Error()
	}
	metrics.ScanRunsTotal.WithLabelValues(result.Status).Inc()

	idx.scanMu.Lock()
	idx.lastResult = result
	if err == nil {
		idx.lastScanTime = time.Now()
	}
	idx.scanMu.Unlock()

	if err != nil {
		logging.Error("Full scan %s after %s: %v", result.Status, result.Duration, err)
		return result, err
	}

	metrics.ScanLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.ScanLastRunDuration.Set(time.Since(startTime).Seconds())
	logging.Info("Full scan complete: %d folders, %d images, %d failed in %s",
		result.FoldersProcessed, result.ImagesProcessed, result.Failed, result.Duration)
	return result, nil
}

func (idx *Indexer) scan(ctx context.Context, progress *Progress, failLog *FailLog, stats *WalkStats, run *RunResult) error {
	if info, err := os.Stat(idx.config.Root); err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return errors.Join(ErrRootUnreadable, err)
	}

	orphans, err := idx.db.Reset(ctx)
	if err != nil {
		return err
	}
	idx.sweepOrphans(orphans)

	session, err := idx.db.Session(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	pool, err := NewPool(PoolConfig{
		Workers:   idx.config.Workers,
		ChunkSize: idx.config.ChunkSize,
		Sessions: func(ctx context.Context) (Session, error) {
			return idx.db.Session(ctx)
		},
		Ingester: idx.ingester,
		Memory:   idx.memory,
		Progress: progress,
		FailLog:  failLog,
		Source:   "scan",
	})
	if err != nil {
		return err
	}
	scanner := NewScanner(idx.config.Root, idx.config.Extensions, session)
	scanner.SkipHidden = idx.config.SkipHidden

	reportCtx, stopReport := context.WithCancel(context.Background())
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		reportProgress(reportCtx, progress, idx.config.ProgressInterval)
	}()
	defer func() {
		stopReport()
		<-reported
	}()

	items := make(chan WorkItem, idx.config.Workers*idx.config.ChunkSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(items)
		var err error
		*stats, err = scanner.Walk(gctx, items)
		return err
	})
	g.Go(func() error {
		var err error
		*run, err = pool.Run(gctx, items)
		return err
	})
	return g.Wait()
}

// sweepOrphans deletes derivative files of reset rows in the background.
// Failures are logged and counted, never returned.
func (idx *Indexer) sweepOrphans(paths []string) {
	if len(paths) == 0 {
		return
	}

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()

		var g errgroup.Group
		g.SetLimit(workers.ForIO(8))
		for _, p := range paths {
			g.Go(func() error {
				err := os.Remove(p)
				switch {
				case err == nil:
					metrics.OrphanFilesRemoved.WithLabelValues("removed").Inc()
				case errors.Is(err, os.ErrNotExist):
					metrics.OrphanFilesRemoved.WithLabelValues("missing").Inc()
				default:
					metrics.OrphanFilesRemoved.WithLabelValues("error").Inc()
					logging.Warn("Failed to remove orphaned derivative %s: %v", p, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		logging.Debug("Orphan sweep finished for %d files", len(paths))
	}()
}

func (idx *Indexer) tryStartScan() bool {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()

	if idx.isScanning {
		return false
	}
	idx.isScanning = true
	return true
}

func (idx *Indexer) finishScan() {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()
	idx.isScanning = false
}

// IsScanning returns whether a full scan is currently running.
func (idx *Indexer) IsScanning() bool {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()
	return idx.isScanning
}

// GetProgress returns the counters of the running or most recent scan.
func (idx *Indexer) GetProgress() ProgressSnapshot {
	idx.scanMu.Lock()
	p := idx.progress
	idx.scanMu.Unlock()
	if p == nil {
		return ProgressSnapshot{}
	}
	return p.Snapshot()
}

// LastResult returns the result of the most recent scan, or nil.
func (idx *Indexer) LastResult() *ScanResult {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()
	return idx.lastResult
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()

	status := HealthStatus{
		Ready:       !idx.isScanning || idx.lastResult != nil,
		Scanning:    idx.isScanning,
		StartTime:   idx.startTime,
		Uptime:      time.Since(idx.startTime).Round(time.Second).String(),
		LastScanned: idx.lastScanTime,
	}
	if idx.isScanning && idx.progress != nil {
		snap := idx.progress.Snapshot()
		status.Progress = &snap
	}
	if idx.initialScanError != nil {
		status.InitialScanError = idx.initialScanError.Error()
	}
	return status
}
