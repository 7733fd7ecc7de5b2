package cluster

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aerosuite/platform/pkg/autoscale"
	"github.com/aerosuite/platform/pkg/log"
)

// Heartbeat is one control-pipe report from a worker: the requests it
// served since the previous beat and its current p95 latency.
type Heartbeat struct {
	Slot     int     `json:"slot"`
	Requests uint64  `json:"requests"`
	P95Ms    float64 `json:"p95Ms"`
}

// Telemetry aggregates worker heartbeats into load samples for the
// autoscaling controller. The cluster p95 is the worst worker's p95.
type Telemetry struct {
	mu       sync.Mutex
	requests uint64
	p95      map[int]float64
	lastAt   time.Time
}

// NewTelemetry creates an empty aggregator.
func NewTelemetry() *Telemetry {
	return &Telemetry{p95: make(map[int]float64), lastAt: time.Now()}
}

// Record folds one heartbeat into the pending sample.
func (t *Telemetry) Record(hb Heartbeat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests += hb.Requests
	t.p95[hb.Slot] = hb.P95Ms
}

// Forget drops a worker's latency contribution after it exits.
func (t *Telemetry) Forget(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.p95, slot)
}

// Sample drains the pending counters into one load observation.
func (t *Telemetry) Sample(ctx context.Context) (autoscale.Sample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(t.lastAt).Seconds()
	t.lastAt = now

	var s autoscale.Sample
	if elapsed > 0 {
		s.RPS = float64(t.requests) / elapsed
	}
	t.requests = 0

	var worst float64
	for _, p := range t.p95 {
		if p > worst {
			worst = p
		}
	}
	s.P95 = time.Duration(worst * float64(time.Millisecond))
	return s, nil
}

// readHeartbeats consumes newline-delimited heartbeat JSON from a
// worker's control pipe until it closes.
func readHeartbeats(r io.Reader, slot int, t *Telemetry) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var hb Heartbeat
		if err := json.Unmarshal(scanner.Bytes(), &hb); err != nil {
			log.WithWorkerID(workerID(slot)).Warn().Err(err).Msg("malformed heartbeat")
			continue
		}
		hb.Slot = slot
		t.Record(hb)
	}
	t.Forget(slot)
}

// latencyRing keeps the most recent request latencies for on-demand p95.
const latencyRingSize = 2048

// loadRecorder counts served requests and tracks recent latencies. It
// wraps the worker's HTTP handler and feeds the heartbeat loop.
type loadRecorder struct {
	next     http.Handler
	requests atomic.Uint64

	mu        sync.Mutex
	latencies []time.Duration
	cursor    int
	filled    bool
}

func newLoadRecorder(next http.Handler) *loadRecorder {
	return &loadRecorder{next: next, latencies: make([]time.Duration, latencyRingSize)}
}

func (l *loadRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	l.next.ServeHTTP(w, r)
	l.requests.Add(1)

	l.mu.Lock()
	l.latencies[l.cursor] = time.Since(start)
	l.cursor = (l.cursor + 1) % latencyRingSize
	if l.cursor == 0 {
		l.filled = true
	}
	l.mu.Unlock()
}

// TakeRequests returns and resets the served-request counter.
func (l *loadRecorder) TakeRequests() uint64 {
	return l.requests.Swap(0)
}

// P95 computes the 95th-percentile latency over the retained window.
func (l *loadRecorder) P95() time.Duration {
	l.mu.Lock()
	n := l.cursor
	if l.filled {
		n = latencyRingSize
	}
	window := make([]time.Duration, n)
	copy(window, l.latencies[:n])
	l.mu.Unlock()

	if n == 0 {
		return 0
	}
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
	idx := (n * 95) / 100
	if idx >= n {
		idx = n - 1
	}
	return window[idx]
}
