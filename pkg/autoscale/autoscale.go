package autoscale

import (
	"context"
	"time"

	"github.com/aerosuite/platform/pkg/config"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
)

// Sample is one observation of cluster load, aggregated over the
// sampling interval.
type Sample struct {
	RPS float64
	P95 time.Duration
}

// Source supplies load samples, typically fed by the worker control
// pipes.
type Source interface {
	Sample(ctx context.Context) (Sample, error)
}

// Direction of a scaling intent.
type Direction string

const (
	DirectionOut Direction = "out"
	DirectionIn  Direction = "in"
)

// Intent is a single-step scaling decision. The controller only decides;
// execution belongs to the cluster supervisor or an external
// orchestrator.
type Intent struct {
	Direction Direction `json:"direction"`
	Delta     int       `json:"delta"`
	Workers   int       `json:"workers"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Controller samples load on a fixed interval and emits scale intents
// when thresholds are breached for long enough. Worker count never
// leaves [Min, Max].
type Controller struct {
	cfg     config.AutoscaleConfig
	source  Source
	workers func() int
	bus     *events.Bus

	overSince  time.Time
	underSince time.Time

	stop chan struct{}
	done chan struct{}
}

// New creates a controller. workers reports the current worker count.
func New(cfg config.AutoscaleConfig, source Source, workers func() int, bus *events.Bus) *Controller {
	return &Controller{
		cfg:     cfg,
		source:  source,
		workers: workers,
		bus:     bus,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the sampling loop until Stop.
func (c *Controller) Start() {
	go c.run()
}

// Stop terminates the sampling loop.
func (c *Controller) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Controller) run() {
	defer close(c.done)
	logger := log.WithComponent("autoscale")
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Interval)
			sample, err := c.source.Sample(ctx)
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("load sample failed")
				continue
			}
			if intent := c.evaluate(time.Now(), sample); intent != nil {
				c.emit(intent)
			}
		}
	}
}

// evaluate applies the threshold rules to one sample. Scale out when RPS
// or p95 stays above the upper thresholds for SustainDuration; scale in
// when both stay under the lower thresholds for CoolDown.
func (c *Controller) evaluate(now time.Time, s Sample) *Intent {
	workers := c.workers()
	overUpper := s.RPS > c.cfg.UpperRPS || s.P95 > c.cfg.UpperP95
	underLower := s.RPS < c.cfg.LowerRPS && s.P95 < c.cfg.LowerP95

	if overUpper {
		c.underSince = time.Time{}
		if c.overSince.IsZero() {
			c.overSince = now
			return nil
		}
		if now.Sub(c.overSince) >= c.cfg.SustainDuration {
			c.overSince = time.Time{}
			if workers >= c.cfg.Max {
				return nil
			}
			return &Intent{
				Direction: DirectionOut,
				Delta:     1,
				Workers:   workers,
				Reason:    "load above upper thresholds",
				At:        now,
			}
		}
		return nil
	}
	c.overSince = time.Time{}

	if underLower {
		if c.underSince.IsZero() {
			c.underSince = now
			return nil
		}
		if now.Sub(c.underSince) >= c.cfg.CoolDown {
			c.underSince = time.Time{}
			if workers <= c.cfg.Min {
				return nil
			}
			return &Intent{
				Direction: DirectionIn,
				Delta:     -1,
				Workers:   workers,
				Reason:    "load below lower thresholds",
				At:        now,
			}
		}
		return nil
	}
	c.underSince = time.Time{}
	return nil
}

func (c *Controller) emit(intent *Intent) {
	metrics.AutoscaleIntents.WithLabelValues(string(intent.Direction)).Inc()
	log.WithComponent("autoscale").Info().
		Str("direction", string(intent.Direction)).
		Int("workers", intent.Workers).
		Str("reason", intent.Reason).
		Msg("scaling intent")

	if c.bus == nil {
		return
	}
	eventType := events.EventScaleOut
	if intent.Direction == DirectionIn {
		eventType = events.EventScaleIn
	}
	c.bus.Publish(&events.Event{
		Type:    eventType,
		Message: intent.Reason,
		Metadata: map[string]string{
			"direction": string(intent.Direction),
		},
	})
}
