package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func feed(items []WorkItem) <-chan WorkItem {
	ch := make(chan WorkItem, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}

func numberedItems(n int, bad func(i int) bool) []WorkItem {
	items := make([]WorkItem, n)
	for i := range items {
		name := fmt.Sprintf("/media/item%03d.jpg", i)
		if bad != nil && bad(i) {
			name = fmt.Sprintf("/media/bad%03d.jpg", i)
		}
		items[i] = WorkItem{Path: name, FolderID: 1}
	}
	return items
}

func newTestPool(t *testing.T, catalog *memoryCatalog, gen Generator, workers, chunk int) (*Pool, *Progress, *FailLog) {
	t.Helper()
	progress, failLog := NewProgress(), NewFailLog()
	pool, err := NewPool(PoolConfig{
		Workers:   workers,
		ChunkSize: chunk,
		Sessions:  catalog.sessions(),
		Ingester:  NewIngester(gen),
		Progress:  progress,
		FailLog:   failLog,
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	return pool, progress, failLog
}

func TestNewPoolValidation(t *testing.T) {
	if _, err := NewPool(PoolConfig{}); err == nil {
		t.Error("NewPool() without collaborators should fail")
	}

	pool, _, _ := newTestPool(t, newMemoryCatalog(), &stubGenerator{}, 0, 0)
	if pool.config.Workers != 1 || pool.config.ChunkSize != DefaultChunkSize || pool.config.Source != "scan" {
		t.Errorf("defaults not applied: %+v", pool.config)
	}
}

func TestPoolAccounting(t *testing.T) {
	bad := func(i int) bool { return i%23 == 0 }
	failures := 0
	for i := 0; i < 237; i++ {
		if bad(i) {
			failures++
		}
	}

	for _, tt := range []struct{ workers, chunk int }{
		{4, 10}, {1, 10}, {7, 10}, {4, 1}, {3, 64}, {16, 500},
	} {
		t.Run(fmt.Sprintf("W=%d/chunk=%d", tt.workers, tt.chunk), func(t *testing.T) {
			t.Parallel()
			catalog := newMemoryCatalog()
			pool, _, failLog := newTestPool(t, catalog, &stubGenerator{}, tt.workers, tt.chunk)

			result, err := pool.Run(context.Background(), feed(numberedItems(237, bad)))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if result.Submitted != 237 || result.Processed != 237 {
				t.Errorf("submitted=%d processed=%d, want 237", result.Submitted, result.Processed)
			}
			if result.Succeeded+result.Failed != 237 {
				t.Errorf("succeeded+failed = %d", result.Succeeded+result.Failed)
			}
			if result.Failed != failures || failLog.Count() != failures {
				t.Errorf("failed=%d logged=%d, want %d", result.Failed, failLog.Count(), failures)
			}
			if result.Skipped != 0 || result.Stopped {
				t.Errorf("unexpected stop: %+v", result)
			}
			if catalog.count() != 237-failures {
				t.Errorf("catalog has %d items, want %d", catalog.count(), 237-failures)
			}
			if catalog.closed != tt.workers {
				t.Errorf("closed %d sessions, want %d", catalog.closed, tt.workers)
			}
		})
	}
}

func TestPoolEmptyInput(t *testing.T) {
	pool, _, _ := newTestPool(t, newMemoryCatalog(), &stubGenerator{}, 3, 10)
	result, err := pool.Run(context.Background(), feed(nil))
	if err != nil || result.Submitted != 0 || result.Processed != 0 {
		t.Errorf("Run() = %+v, %v", result, err)
	}
}

func TestPoolSessionFailure(t *testing.T) {
	progress, failLog := NewProgress(), NewFailLog()
	opened := 0
	catalog := newMemoryCatalog()
	pool, err := NewPool(PoolConfig{
		Workers: 3,
		Sessions: func(ctx context.Context) (Session, error) {
			opened++
			if opened == 3 {
				return nil, errors.New("too many connections")
			}
			return catalog, nil
		},
		Ingester: NewIngester(&stubGenerator{}),
		Progress: progress,
		FailLog:  failLog,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := pool.Run(context.Background(), feed(numberedItems(5, nil))); err == nil {
		t.Fatal("Run() should fail when a session cannot be opened")
	}
	if catalog.closed != 2 {
		t.Errorf("closed %d sessions, want the 2 that were opened", catalog.closed)
	}
}

func TestPoolStopFinishesCurrentItem(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	var itemCtxErr atomic.Value

	gen := &stubGenerator{hook: func(ctx context.Context, src string) {
		if first.CompareAndSwap(false, true) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				itemCtxErr.Store(err)
			}
		}
	}}
	catalog := newMemoryCatalog()
	pool, _, _ := newTestPool(t, catalog, gen, 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	type runOut struct {
		result RunResult
		err    error
	}
	done := make(chan runOut, 1)
	go func() {
		r, err := pool.Run(ctx, feed(numberedItems(50, nil)))
		done <- runOut{r, err}
	}()

	<-started
	cancel()
	close(release)

	var out runOut
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if out.err != nil {
		t.Fatalf("Run() error = %v", out.err)
	}

	r := out.result
	if !r.Stopped {
		t.Error("result should be marked stopped")
	}
	if r.Processed != 1 || r.Succeeded != 1 {
		t.Errorf("processed=%d succeeded=%d, want the in-flight item only", r.Processed, r.Succeeded)
	}
	if r.Submitted != r.Processed+r.Skipped {
		t.Errorf("submitted=%d != processed=%d + skipped=%d", r.Submitted, r.Processed, r.Skipped)
	}
	if itemCtxErr.Load() != nil {
		t.Errorf("in-flight item saw a cancelled context: %v", itemCtxErr.Load())
	}
	if catalog.count() != 1 {
		t.Errorf("catalog has %d items, want 1", catalog.count())
	}
}

type countingPauser struct{ calls atomic.Int32 }

func (p *countingPauser) WaitIfPaused(context.Context) bool {
	p.calls.Add(1)
	return true
}

func TestPoolConsultsMemoryMonitor(t *testing.T) {
	pauser := &countingPauser{}
	progress, failLog := NewProgress(), NewFailLog()
	pool, err := NewPool(PoolConfig{
		Workers:  2,
		Sessions: newMemoryCatalog().sessions(),
		Ingester: NewIngester(&stubGenerator{}),
		Memory:   pauser,
		Progress: progress,
		FailLog:  failLog,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := pool.Run(context.Background(), feed(numberedItems(12, nil))); err != nil {
		t.Fatal(err)
	}
	if pauser.calls.Load() != 12 {
		t.Errorf("WaitIfPaused called %d times, want once per item", pauser.calls.Load())
	}
}
