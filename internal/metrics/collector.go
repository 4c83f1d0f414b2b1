package metrics

import (
	"context"
	"time"

	"github.com/kbrauss/FMM2D/internal/cache"
	"github.com/kbrauss/FMM2D/internal/logger"
)

// StatsSource is anything that reports cache statistics.
type StatsSource interface {
	Stats() cache.Stats
}

// Collector periodically copies cache statistics into gauges.
type Collector struct {
	source   StatsSource
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a collector polling source every interval.
func NewCollector(source StatsSource, interval time.Duration) *Collector {
	return &Collector{
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	close(c.stop)
}

// Collect takes one sample. A nil source marks the gauges stale with -1.
func (c *Collector) Collect() {
	if c.source == nil {
		MetricsCollectionErrors.WithLabelValues("cache").Inc()
		APICacheSize.Set(-1)
		APICacheItems.Set(-1)
		return
	}
	s := c.source.Stats()
	APICacheSize.Set(float64(s.Size))
	APICacheItems.Set(float64(s.Items))
	APICacheEvictions.Set(float64(s.Evictions))
	logger.Debug("cache stats collected", "component", "metrics", "items", s.Items, "bytes", s.Size, "hits", s.Hits, "misses", s.Misses)
}
