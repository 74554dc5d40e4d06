package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/media"
	"media-catalog/internal/memory"
	"media-catalog/internal/startup"

	"golang.org/x/term"
)

const (
	// Timeout for the status queries
	defaultTimeout = 30 * time.Second

	progressRefresh = 500 * time.Millisecond

	// maxListedFailures bounds the failure list printed after a scan.
	maxListedFailures = 20
)

type cli struct {
	stdout, stderr io.Writer

	// interactive enables the redrawn progress line.
	interactive bool

	// useVips starts libvips for raw conversion.
	useVips bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
		useVips:     true,
	}
	os.Exit(c.run(ctx, os.Args[1:]))
}

func (c *cli) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("rescan", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	verbose := fs.Bool("v", false, "log at debug level")
	fs.Usage = c.printUsage
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		c.printUsage()
		return 2
	}
	if *verbose {
		logging.SetLevel(logging.LevelDebug)
	}

	switch command := fs.Arg(0); command {
	case "scan":
		return c.scan(ctx)
	case "status":
		return c.status(ctx)
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", sanitizeCommand(command))
		c.printUsage()
		return 2
	}
}

// sanitizeCommand replaces anything outside [a-zA-Z0-9_-] with '_' so an
// unknown command can be echoed safely.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (c *cli) printUsage() {
	fmt.Fprintln(c.stderr, "Usage: rescan [-v] <command>")
	fmt.Fprintln(c.stderr, "")
	fmt.Fprintln(c.stderr, "Commands:")
	fmt.Fprintln(c.stderr, "  scan    - Rebuild the catalog from MEDIA_DIR")
	fmt.Fprintln(c.stderr, "  status  - Show catalog totals")
	fmt.Fprintln(c.stderr, "")
	fmt.Fprintln(c.stderr, "Environment: MEDIA_DIR, CACHE_DIR, DATABASE_DIR and the other server settings")
}

// open loads the configuration and opens the catalog.
func (c *cli) open(ctx context.Context) (*startup.Config, *database.Database, error) {
	config, err := startup.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	if err := config.Prepare(); err != nil {
		return nil, nil, err
	}

	db, err := database.New(ctx, config.DatabasePath, database.Options{
		MediaRoot:         config.MediaDir,
		RecordDerivatives: config.RecordDerivatives,
		MaxOpenConns:      config.ScanWorkers + 4,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database (DATABASE_DIR=%s): %w", config.DatabaseDir, err)
	}
	return config, db, nil
}

func (c *cli) scan(ctx context.Context) int {
	config, db, err := c.open(ctx)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(c.stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	if c.useVips {
		if err := media.InitVips(); err != nil {
			logging.Warn("libvips unavailable: %v", err)
		}
		defer media.ShutdownVips()
	}

	gen, err := media.NewGenerator(media.Config{
		ThumbnailDir: config.ThumbnailDir,
		ConvertedDir: config.ConvertedDir,
		Width:        config.ThumbnailWidth,
		Height:       config.ThumbnailHeight,
	})
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}

	progressInterval := config.ProgressInterval
	if c.interactive {
		progressInterval = 0
	}
	idx := indexer.New(db, indexer.NewIngester(gen), indexer.Config{
		Root:             config.MediaDir,
		Extensions:       config.Extensions,
		SkipHidden:       config.SkipHidden,
		Workers:          config.ScanWorkers,
		ChunkSize:        config.ScanChunkSize,
		ProgressInterval: progressInterval,
	})
	// Stop waits for the sweep of the previous scan's derivative files.
	defer idx.Stop()

	mem := memory.NewMonitor(memory.DefaultConfig())
	mem.Start()
	defer mem.Stop()
	idx.SetMemoryMonitor(mem)

	var stopProgress func()
	if c.interactive {
		stopProgress = c.showProgress(idx)
	}
	result, err := idx.FullScan(ctx)
	if stopProgress != nil {
		stopProgress()
	}

	if result != nil {
		c.printResult(result)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(c.stderr, "Scan interrupted.")
		} else {
			fmt.Fprintf(c.stderr, "Error: scan failed: %v\n", err)
		}
		return 1
	}
	return 0
}

// showProgress redraws one status line until the returned func is called.
func (c *cli) showProgress(idx *indexer.Indexer) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(progressRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Fprintf(c.stdout, "\r%s\n", formatProgress(idx.GetProgress()))
				return
			case <-ticker.C:
				fmt.Fprintf(c.stdout, "\r%s", formatProgress(idx.GetProgress()))
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func formatProgress(p indexer.ProgressSnapshot) string {
	return fmt.Sprintf("Scanning: %d/%d processed, %d failed, %d folders, %s elapsed   ",
		p.Processed, p.Total, p.Failed, p.Folders, p.Elapsed)
}

func (c *cli) printResult(r *indexer.ScanResult) {
	fmt.Fprintf(c.stdout, "Scan %s in %s\n", r.Status, r.Duration)
	fmt.Fprintf(c.stdout, "  Folders:  %d\n", r.FoldersProcessed)
	fmt.Fprintf(c.stdout, "  Images:   %d\n", r.ImagesProcessed)
	fmt.Fprintf(c.stdout, "  Failed:   %d\n", r.Failed)
	if r.Skipped > 0 {
		fmt.Fprintf(c.stdout, "  Skipped:  %d\n", r.Skipped)
	}
	if r.SkippedDirs > 0 {
		fmt.Fprintf(c.stdout, "  Skipped directories: %d\n", r.SkippedDirs)
	}

	for i, f := range r.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(c.stdout, "  ... and %d more\n", len(r.Failures)-i)
			break
		}
		fmt.Fprintf(c.stdout, "  [%s] %s: %s\n", f.Kind, f.Path, f.Reason)
	}
}

func (c *cli) status(ctx context.Context) int {
	_, db, err := c.open(ctx)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats, err := db.CatalogStats(ctx)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: failed to read catalog: %v\n", err)
		return 1
	}

	fmt.Fprintf(c.stdout, "Folders: %d\n", stats.Folders)
	types := make([]string, 0, len(stats.MediaByType))
	for t := range stats.MediaByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(c.stdout, "Media (%s): %d\n", t, stats.MediaByType[t])
	}
	return 0
}
