package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/aerosuite/platform/pkg/health"
)

type systemInfo struct {
	Uptime      string `json:"uptime"`
	MemoryBytes uint64 `json:"memoryBytes"`
	Goroutines  int    `json:"goroutines"`
}

func (s *Server) systemInfo() systemInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return systemInfo{
		Uptime:      time.Since(s.started).Truncate(time.Second).String(),
		MemoryBytes: ms.Alloc,
		Goroutines:  runtime.NumGoroutine(),
	}
}

// handleHealth serves the liveness summary. Degraded still serves
// traffic, so it answers 200; only unhealthy yields 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.StatusHealthy
	if s.probe != nil {
		status = s.probe.Run(r.Context()).Status
	}

	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"system":    s.systemInfo(),
		"timestamp": time.Now().UTC(),
	})
}

// handleHealthDetailed adds per-check results, pool stats and worker
// state for operators.
func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"system":    s.systemInfo(),
		"timestamp": time.Now().UTC(),
	}

	status := health.StatusHealthy
	if s.probe != nil {
		report := s.probe.Run(r.Context())
		status = report.Status
		body["checks"] = report.Checks
	}
	body["status"] = status

	if s.pool != nil {
		body["pool"] = s.pool.Stats()
	}
	if s.workerStats != nil {
		body["cluster"] = s.workerStats()
	}
	if s.tracker != nil {
		body["trackedModels"] = s.tracker.Models()
	}

	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}
