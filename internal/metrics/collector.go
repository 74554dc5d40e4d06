package metrics

import (
	"context"
	"time"

	"media-catalog/internal/logging"
)

// StatsProvider reports catalog totals.
type StatsProvider interface {
	CatalogStats(ctx context.Context) (Stats, error)
}

// Stats is a point-in-time count of catalog rows.
type Stats struct {
	Folders     int
	MediaByType map[string]int
}

// Collector periodically copies catalog totals into gauges.
type Collector struct {
	provider StatsProvider
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

// NewCollector creates a collector polling provider every interval.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop ends the loop and waits for it to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.provider.CatalogStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	CatalogFoldersTotal.Set(float64(stats.Folders))
	total := 0
	for mediaType, n := range stats.MediaByType {
		CatalogMediaTotal.WithLabelValues(mediaType).Set(float64(n))
		total += n
	}

	logging.Debug("Metrics collected: folders=%d, media=%d", stats.Folders, total)
}
