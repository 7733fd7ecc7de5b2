package metrics

import (
	"context"
	"time"
)

// DomainCounts supplies the aggregate counts the collector exports. The
// functions are injected to keep this package free of domain imports.
type DomainCounts struct {
	InspectionsByStatus func(ctx context.Context) (map[string]int, error)
	ComponentsByStatus  func(ctx context.Context) (map[string]int, error)
	Customers           func(ctx context.Context) (int, error)
}

// Collector periodically refreshes the domain gauges from the store.
type Collector struct {
	counts   DomainCounts
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCollector creates a collector. interval <= 0 selects 15s.
func NewCollector(counts DomainCounts, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		counts:   counts,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins collecting. The first collection runs immediately.
func (c *Collector) Start() {
	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.Collect(context.Background())
		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// Collect refreshes every configured gauge once. Failed sources keep
// their previous values.
func (c *Collector) Collect(ctx context.Context) {
	if c.counts.InspectionsByStatus != nil {
		if byStatus, err := c.counts.InspectionsByStatus(ctx); err == nil {
			InspectionsTotal.Reset()
			for status, n := range byStatus {
				InspectionsTotal.WithLabelValues(status).Set(float64(n))
			}
		}
	}
	if c.counts.ComponentsByStatus != nil {
		if byStatus, err := c.counts.ComponentsByStatus(ctx); err == nil {
			ComponentsTotal.Reset()
			for status, n := range byStatus {
				ComponentsTotal.WithLabelValues(status).Set(float64(n))
			}
		}
	}
	if c.counts.Customers != nil {
		if n, err := c.counts.Customers(ctx); err == nil {
			CustomersTotal.Set(float64(n))
		}
	}
}
