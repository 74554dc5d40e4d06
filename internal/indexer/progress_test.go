package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/media"
)

func TestProgressCounts(t *testing.T) {
	p := NewProgress()
	for i := 0; i < 5; i++ {
		p.Submitted()
	}
	p.Record(OutcomeInserted)
	p.Record(OutcomeExisting)
	p.Record(OutcomeFailed)
	p.Skip(2)
	p.Skip(0)
	p.SetFolders(4)

	s := p.Snapshot()
	if s.Total != 5 || s.Processed != 3 || s.Succeeded != 2 || s.Failed != 1 || s.Existing != 1 || s.Skipped != 2 || s.Folders != 4 {
		t.Errorf("snapshot = %+v", s)
	}
	if !s.Running {
		t.Error("new progress should be running")
	}
	p.Finish()
	if p.Snapshot().Running {
		t.Error("Finish() should clear Running")
	}
}

func TestProgressConcurrentUpdates(t *testing.T) {
	p := NewProgress()
	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				p.Submitted()
				p.Record(OutcomeInserted)
				_ = p.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := p.Snapshot()
	if s.Total != 1000 || s.Processed != 1000 || s.Succeeded != 1000 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestReportProgressStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reportProgress(ctx, NewProgress(), 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reportProgress did not return after cancel")
	}
}

func TestFailLog(t *testing.T) {
	log := NewFailLog()
	log.Add("/a.jpg", &media.GenerationError{Kind: media.ErrFileUnavailable, Path: "/a.jpg", Err: errors.New("empty")})
	log.Add("/b.xyz", fmt.Errorf("wrapped: %w", &media.GenerationError{Kind: media.ErrUnsupportedType, Path: "/b.xyz", Err: errors.New("?")}))
	log.Add("/c.jpg", fmt.Errorf("lookup: %w", database.ErrFolderResolution))
	log.Add("/d.jpg", errors.New("database is locked"))

	want := []string{"unavailable", "unsupported", "folder", "catalog"}
	entries := log.Entries()
	if len(entries) != len(want) {
		t.Fatalf("got %d entries", len(entries))
	}
	for i, e := range entries {
		if e.Kind != want[i] {
			t.Errorf("entries[%d].Kind = %q, want %q", i, e.Kind, want[i])
		}
		if e.Reason == "" || e.Path == "" || e.At.IsZero() {
			t.Errorf("entries[%d] incomplete: %+v", i, e)
		}
	}
}

func TestFailLogBounded(t *testing.T) {
	log := NewFailLog()
	for i := 0; i < maxFailures+25; i++ {
		log.Add(fmt.Sprintf("/f%d.jpg", i), errors.New("x"))
	}
	if log.Count() != maxFailures+25 {
		t.Errorf("Count() = %d", log.Count())
	}
	if len(log.Entries()) != maxFailures {
		t.Errorf("kept %d entries, want %d", len(log.Entries()), maxFailures)
	}
}
