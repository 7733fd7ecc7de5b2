package cluster

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotDBPathKeepsWorkersApart(t *testing.T) {
	// Slot 0 keeps the configured path, empty or not
	assert.Equal(t, "", slotDBPath("", "/var/lib/aerosuite", 0))
	assert.Equal(t, "/opt/custom.db", slotDBPath("/opt/custom.db", "/var/lib/aerosuite", 0))

	// Higher slots never share a database file, even with an explicit path
	assert.Equal(t, filepath.Join("/var/lib/aerosuite", "aerosuite-1.db"),
		slotDBPath("", "/var/lib/aerosuite", 1))
	assert.Equal(t, "/opt/custom-2.db", slotDBPath("/opt/custom.db", "/var/lib/aerosuite", 2))
	assert.Equal(t, "/opt/state-3", slotDBPath("/opt/state", "/var/lib/aerosuite", 3))
}

func TestCrashTrackerEscalatesInsideWindow(t *testing.T) {
	tr := newCrashTracker(time.Minute, 5)
	now := time.Now()

	for i := 0; i < 4; i++ {
		assert.False(t, tr.record(now.Add(time.Duration(i)*time.Second)))
	}
	assert.True(t, tr.record(now.Add(5*time.Second)))
}

func TestCrashTrackerForgetsOldCrashes(t *testing.T) {
	tr := newCrashTracker(time.Minute, 5)
	now := time.Now()

	for i := 0; i < 4; i++ {
		tr.record(now.Add(time.Duration(i) * time.Second))
	}
	// The earlier crashes age out of the window
	assert.False(t, tr.record(now.Add(90*time.Second)))
	assert.False(t, tr.record(now.Add(91*time.Second)))
}

func TestTelemetrySampleComputesRPSAndWorstP95(t *testing.T) {
	tel := NewTelemetry()
	tel.lastAt = time.Now().Add(-2 * time.Second)

	tel.Record(Heartbeat{Slot: 0, Requests: 100, P95Ms: 40})
	tel.Record(Heartbeat{Slot: 1, Requests: 100, P95Ms: 250})

	s, err := tel.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100, s.RPS, 15)
	assert.Equal(t, 250*time.Millisecond, s.P95)

	// Counters reset after the sample; the latest p95 sticks
	tel.lastAt = time.Now().Add(-time.Second)
	s, err = tel.Sample(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.RPS)
	assert.Equal(t, 250*time.Millisecond, s.P95)
}

func TestTelemetryForgetDropsWorkerLatency(t *testing.T) {
	tel := NewTelemetry()
	tel.Record(Heartbeat{Slot: 0, Requests: 1, P95Ms: 10})
	tel.Record(Heartbeat{Slot: 1, Requests: 1, P95Ms: 500})
	tel.Forget(1)

	s, err := tel.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, s.P95)
}

func TestReadHeartbeatsFeedsTelemetry(t *testing.T) {
	tel := NewTelemetry()
	r, w := io.Pipe()

	done := make(chan struct{})
	go func() {
		readHeartbeats(r, 3, tel)
		close(done)
	}()

	_, err := w.Write([]byte(`{"requests":7,"p95Ms":12.5}` + "\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("not json\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"requests":3,"p95Ms":20}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	<-done

	tel.mu.Lock()
	requests := tel.requests
	tel.mu.Unlock()
	assert.Equal(t, uint64(10), requests)

	// Pipe closure forgets the worker's latency contribution
	s, err := tel.Sample(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.P95)
}

func TestLoadRecorderCountsAndPercentile(t *testing.T) {
	rec := newLoadRecorder(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 20; i++ {
		rr := httptest.NewRecorder()
		rec.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	assert.Equal(t, uint64(20), rec.TakeRequests())
	assert.Zero(t, rec.TakeRequests())
	assert.GreaterOrEqual(t, rec.P95(), time.Duration(0))
}

func TestLoadRecorderP95Ordering(t *testing.T) {
	rec := newLoadRecorder(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	// Seed the ring directly: 95 fast, 5 slow
	for i := 0; i < 95; i++ {
		rec.latencies[i] = time.Millisecond
	}
	for i := 95; i < 100; i++ {
		rec.latencies[i] = time.Second
	}
	rec.cursor = 100

	p95 := rec.P95()
	assert.GreaterOrEqual(t, p95, time.Millisecond)
	assert.Equal(t, time.Second, p95)
}
