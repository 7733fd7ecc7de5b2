package perf

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aerosuite/platform/pkg/log"
)

// windowSpec defines one sliding window as a ring of fixed buckets.
type windowSpec struct {
	name      string
	bucketDur time.Duration
	buckets   int
}

// Window names exposed by Snapshot.
var windowSpecs = []windowSpec{
	{"1m", time.Second, 60},
	{"5m", 5 * time.Second, 60},
	{"1h", time.Minute, 60},
	{"24h", 15 * time.Minute, 96},
}

// MetricLatency is the metric name recorded by TrackInference.
const MetricLatency = "latencyMs"

type bucket struct {
	epoch      int64
	count      uint64
	failures   uint64
	sum        float64
	sumSquares float64
}

type series struct {
	rings [][]bucket // one ring per windowSpec
}

func newSeries() *series {
	s := &series{rings: make([][]bucket, len(windowSpecs))}
	for i, spec := range windowSpecs {
		s.rings[i] = make([]bucket, spec.buckets)
	}
	return s
}

// Aggregate is the on-demand rollup of one window.
type Aggregate struct {
	Count      uint64  `json:"count"`
	Failures   uint64  `json:"failures"`
	Sum        float64 `json:"sum"`
	SumSquares float64 `json:"sumSquares"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stdDev"`
	ErrorRate  float64 `json:"errorRate"`
}

type sample struct {
	model   string
	metric  string
	value   float64
	success bool
	at      time.Time
}

// Tracker maintains sliding-window counters per (model, metric). Samples
// are applied by a single consumer goroutine; recording is O(1) and
// non-blocking. A full intake buffer never drops silently: the overflow
// counter accounts for every sample that could not be buffered.
type Tracker struct {
	mu     sync.RWMutex
	series map[string]*series

	intake   chan sample
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	overflow atomic.Uint64
}

// NewTracker creates and starts a tracker. bufferSize <= 0 selects 4096.
func NewTracker(bufferSize int) *Tracker {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	t := &Tracker{
		series: make(map[string]*series),
		intake: make(chan sample, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

// TrackInference records one inference outcome for the model.
func (t *Tracker) TrackInference(modelID string, latencyMs float64, success bool) {
	t.Track(modelID, MetricLatency, latencyMs, success)
}

// Track records one sample. When the intake buffer is full the sample is
// counted in the overflow counter instead of blocking the caller.
func (t *Tracker) Track(modelID, metric string, value float64, success bool) {
	s := sample{model: modelID, metric: metric, value: value, success: success, at: time.Now()}
	select {
	case t.intake <- s:
	default:
		if t.overflow.Add(1) == 1 {
			log.WithComponent("perf").Warn().Msg("tracker intake buffer full, counting overflow")
		}
	}
}

// Overflow returns the number of samples lost to a full intake buffer.
func (t *Tracker) Overflow() uint64 {
	return t.overflow.Load()
}

// Snapshot returns per-window aggregates for the (model, metric) series.
// Unknown series yield zero aggregates.
func (t *Tracker) Snapshot(modelID, metric string) map[string]Aggregate {
	return t.snapshotAt(modelID, metric, time.Now())
}

// Models returns the model ids with recorded samples.
func (t *Tracker) Models() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for key := range t.series {
		model, _, ok := splitKey(key)
		if !ok {
			continue
		}
		if _, dup := seen[model]; !dup {
			seen[model] = struct{}{}
			out = append(out, model)
		}
	}
	return out
}

// Stop drains the intake buffer and stops the consumer.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.done
	})
}

func (t *Tracker) run() {
	defer close(t.done)
	for {
		select {
		case s := <-t.intake:
			t.apply(s)
		case <-t.stop:
			for {
				select {
				case s := <-t.intake:
					t.apply(s)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracker) apply(s sample) {
	key := s.model + "\x00" + s.metric
	t.mu.Lock()
	defer t.mu.Unlock()

	ser, ok := t.series[key]
	if !ok {
		ser = newSeries()
		t.series[key] = ser
	}

	for i, spec := range windowSpecs {
		epoch := s.at.UnixNano() / int64(spec.bucketDur)
		b := &ser.rings[i][epoch%int64(spec.buckets)]
		if b.epoch != epoch {
			*b = bucket{epoch: epoch}
		}
		b.count++
		if !s.success {
			b.failures++
		}
		b.sum += s.value
		b.sumSquares += s.value * s.value
	}
}

func (t *Tracker) snapshotAt(modelID, metric string, now time.Time) map[string]Aggregate {
	key := modelID + "\x00" + metric
	out := make(map[string]Aggregate, len(windowSpecs))

	t.mu.RLock()
	defer t.mu.RUnlock()

	ser, ok := t.series[key]
	for i, spec := range windowSpecs {
		var agg Aggregate
		if ok {
			nowEpoch := now.UnixNano() / int64(spec.bucketDur)
			oldest := nowEpoch - int64(spec.buckets) + 1
			for _, b := range ser.rings[i] {
				if b.epoch < oldest || b.epoch > nowEpoch {
					continue
				}
				agg.Count += b.count
				agg.Failures += b.failures
				agg.Sum += b.sum
				agg.SumSquares += b.sumSquares
			}
			if agg.Count > 0 {
				n := float64(agg.Count)
				agg.Mean = agg.Sum / n
				variance := agg.SumSquares/n - agg.Mean*agg.Mean
				if variance > 0 {
					agg.StdDev = math.Sqrt(variance)
				}
				agg.ErrorRate = float64(agg.Failures) / n
			}
		}
		out[spec.name] = agg
	}
	return out
}

func splitKey(key string) (model, metric string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '\x00' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
