package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStatsProvider struct {
	stats Stats
	err   error
	calls atomic.Int32
}

func (f *fakeStatsProvider) CatalogStats(context.Context) (Stats, error) {
	f.calls.Add(1)
	return f.stats, f.err
}

func TestCollectorCopiesStatsIntoGauges(t *testing.T) {
	provider := &fakeStatsProvider{stats: Stats{
		Folders:     7,
		MediaByType: map[string]int{"still": 12, "video": 3},
	}}

	c := NewCollector(provider, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(CatalogFoldersTotal); got != 7 {
		t.Errorf("folders gauge = %v, want 7", got)
	}
	if got := testutil.ToFloat64(CatalogMediaTotal.WithLabelValues("still")); got != 12 {
		t.Errorf("still gauge = %v, want 12", got)
	}
	if got := testutil.ToFloat64(CatalogMediaTotal.WithLabelValues("video")); got != 3 {
		t.Errorf("video gauge = %v, want 3", got)
	}
}

func TestCollectorKeepsGaugesOnError(t *testing.T) {
	CatalogFoldersTotal.Set(42)
	provider := &fakeStatsProvider{err: errors.New("database is locked")}

	c := NewCollector(provider, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(CatalogFoldersTotal); got != 42 {
		t.Errorf("folders gauge changed on error: %v", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.collect()
}

func TestCollectorStartStop(t *testing.T) {
	provider := &fakeStatsProvider{stats: Stats{MediaByType: map[string]int{}}}
	c := NewCollector(provider, 10*time.Millisecond)
	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for provider.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()

	if provider.calls.Load() < 2 {
		t.Fatalf("expected at least 2 collections, got %d", provider.calls.Load())
	}

	after := provider.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if provider.calls.Load() != after {
		t.Error("collector kept running after Stop")
	}
}
