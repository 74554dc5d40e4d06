package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// DefaultChunkSize is the number of items a worker takes at once.
const DefaultChunkSize = 10

// Session is a private catalog connection owned by one worker.
type Session interface {
	Catalog
	Close() error
}

// SessionFunc opens a new Session.
type SessionFunc func(ctx context.Context) (Session, error)

// Pauser holds workers back while memory is critical. *memory.Monitor
// implements it.
type Pauser interface {
	WaitIfPaused(ctx context.Context) bool
}

// PoolConfig configures a Pool. Progress and FailLog are required; Memory
// may be nil.
type PoolConfig struct {
	Workers   int
	ChunkSize int
	Sessions  SessionFunc
	Ingester  *Ingester
	Memory    Pauser
	Progress  *Progress
	FailLog   *FailLog

	// Source labels the ingest metrics, e.g. "scan".
	Source string
}

// RunResult summarizes one Pool.Run. For a run that was not stopped,
// Submitted == Processed == Succeeded + Failed.
type RunResult struct {
	Submitted int  `json:"submitted"`
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Existing  int  `json:"existing"`
	Skipped   int  `json:"skipped"`
	Stopped   bool `json:"stopped"`
}

// Pool ingests work items with a fixed number of workers.
type Pool struct {
	config PoolConfig
}

// NewPool validates config and fills in defaults.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.Sessions == nil || config.Ingester == nil || config.Progress == nil || config.FailLog == nil {
		return nil, errors.New("pool requires sessions, ingester, progress and fail log")
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.ChunkSize < 1 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.Source == "" {
		config.Source = "scan"
	}
	return &Pool{config: config}, nil
}

// Run consumes items until the channel is closed or ctx is cancelled. On
// cancellation each worker finishes its current item; everything else
// already received is counted as skipped. The producer must stop sending
// once ctx is done.
func (p *Pool) Run(ctx context.Context, items <-chan WorkItem) (RunResult, error) {
	cfg := p.config

	sessions := make([]Session, 0, cfg.Workers)
	defer func() {
		for _, s := range sessions {
			if err := s.Close(); err != nil {
				logging.Warn("Failed to close worker session: %v", err)
			}
		}
	}()
	for i := 0; i < cfg.Workers; i++ {
		s, err := cfg.Sessions(ctx)
		if err != nil {
			return RunResult{}, fmt.Errorf("failed to open session for worker %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}

	metrics.PoolWorkers.Set(float64(cfg.Workers))
	defer metrics.PoolWorkers.Set(0)
	logging.Info("Starting ingestion pool with %d workers, chunk size %d", cfg.Workers, cfg.ChunkSize)

	chunks := make(chan []WorkItem, cfg.Workers)

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(id int, s Session) {
			defer wg.Done()
			p.worker(ctx, id, s, chunks)
		}(i, s)
	}

	p.dispatch(ctx, items, chunks)
	close(chunks)
	wg.Wait()

	snap := cfg.Progress.Snapshot()
	result := RunResult{
		Submitted: snap.Total,
		Processed: snap.Processed,
		Succeeded: snap.Succeeded,
		Failed:    snap.Failed,
		Existing:  snap.Existing,
		Skipped:   snap.Skipped,
		Stopped:   ctx.Err() != nil,
	}
	logging.Info("Ingestion pool finished: %d submitted, %d succeeded, %d failed, %d skipped",
		result.Submitted, result.Succeeded, result.Failed, result.Skipped)
	return result, nil
}

// dispatch groups items into chunks for the workers.
func (p *Pool) dispatch(ctx context.Context, items <-chan WorkItem, chunks chan<- []WorkItem) {
	size := p.config.ChunkSize
	chunk := make([]WorkItem, 0, size)

	send := func() bool {
		select {
		case chunks <- chunk:
			chunk = make([]WorkItem, 0, size)
			return true
		case <-ctx.Done():
			p.config.Progress.Skip(len(chunk))
			return false
		}
	}

	for {
		select {
		case item, ok := <-items:
			if !ok {
				if len(chunk) > 0 {
					send()
				}
				return
			}
			p.config.Progress.Submitted()
			chunk = append(chunk, item)
			if len(chunk) == size && !send() {
				return
			}
		case <-ctx.Done():
			p.config.Progress.Skip(len(chunk))
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int, session Session, chunks <-chan []WorkItem) {
	cfg := p.config
	logging.Debug("Worker %d started", id)

	for chunk := range chunks {
		for i, item := range chunk {
			if !p.ready(ctx) {
				cfg.Progress.Skip(len(chunk) - i)
				break
			}

			// The item runs to completion even if a stop arrives meanwhile.
			outcome, err := cfg.Ingester.Ingest(context.WithoutCancel(ctx), session, item)
			if err != nil {
				cfg.FailLog.Add(item.Path, err)
				logging.Warn("Failed to ingest %s: %v", item.Path, err)
			}
			cfg.Progress.Record(outcome)
			metrics.IngestItemsTotal.WithLabelValues(cfg.Source, outcome.String()).Inc()
		}
	}

	logging.Debug("Worker %d finished", id)
}

// ready reports whether the next item may start, waiting out memory pauses.
func (p *Pool) ready(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.config.Memory != nil && !p.config.Memory.WaitIfPaused(ctx) {
		return ctx.Err() == nil
	}
	return true
}
