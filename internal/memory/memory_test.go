package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMonitor(limit int64, alloc *atomic.Uint64) *Monitor {
	m := NewMonitor(Config{
		MemoryLimitBytes:  limit,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     time.Hour,
	})
	m.readAlloc = alloc.Load
	return m
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.HighWaterMark >= c.CriticalWaterMark {
		t.Errorf("high watermark %v should be below critical %v", c.HighWaterMark, c.CriticalWaterMark)
	}
	if c.CheckInterval <= 0 {
		t.Error("CheckInterval must be positive")
	}
}

func TestMonitorPausesAndResumes(t *testing.T) {
	var alloc atomic.Uint64
	m := newTestMonitor(1000, &alloc)
	defer m.Stop()

	alloc.Store(900)
	m.checkMemory()
	if !m.IsPaused() {
		t.Fatal("expected pause at 90% usage")
	}

	released := make(chan bool, 1)
	go func() { released <- m.WaitIfPaused(context.Background()) }()

	select {
	case <-released:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	// Between the watermarks nothing changes.
	alloc.Store(800)
	m.checkMemory()
	if !m.IsPaused() {
		t.Fatal("resumed above high watermark")
	}

	alloc.Store(100)
	m.checkMemory()

	select {
	case ok := <-released:
		if !ok {
			t.Error("WaitIfPaused returned false after recovery")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released after recovery")
	}

	current, limit, usage := m.GetStats()
	if current != 100 || limit != 1000 || usage != 0.1 {
		t.Errorf("GetStats = (%d, %d, %v)", current, limit, usage)
	}
}

func TestWaitIfPausedHonorsContext(t *testing.T) {
	var alloc atomic.Uint64
	m := newTestMonitor(1000, &alloc)
	defer m.Stop()

	alloc.Store(999)
	m.checkMemory()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m.WaitIfPaused(ctx) {
		t.Error("WaitIfPaused = true with cancelled context")
	}
}

func TestWaitIfPausedReleasedByStop(t *testing.T) {
	var alloc atomic.Uint64
	m := newTestMonitor(1000, &alloc)

	alloc.Store(999)
	m.checkMemory()
	m.Stop()
	m.Stop()

	if m.WaitIfPaused(context.Background()) {
		t.Error("WaitIfPaused = true after Stop")
	}
}

func TestMonitorNotPausedWhenIdle(t *testing.T) {
	var alloc atomic.Uint64
	m := newTestMonitor(1000, &alloc)
	defer m.Stop()

	if !m.WaitIfPaused(context.Background()) {
		t.Error("WaitIfPaused = false on a fresh monitor")
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", DefaultMemoryRatio},
		{"0.5", 0.5},
		{"1", 1},
		{"0", DefaultMemoryRatio},
		{"1.5", DefaultMemoryRatio},
		{"half", DefaultMemoryRatio},
	}
	for _, tt := range tests {
		if got := parseRatio(tt.in); got != tt.want {
			t.Errorf("parseRatio(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigureFromEnvWithoutLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")

	if r := ConfigureFromEnv(); r.Configured || r.Source != "none" {
		t.Errorf("ConfigureFromEnv() = %+v, want unconfigured", r)
	}
}

func TestConfigureFromEnvInvalidLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "lots")

	if r := ConfigureFromEnv(); r.Configured {
		t.Errorf("ConfigureFromEnv() = %+v, want unconfigured", r)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KiB",
		5 * 1024 * 1024: "5.0 MiB",
		3 << 30:         "3.0 GiB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
