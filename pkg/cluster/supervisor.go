package cluster

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/aerosuite/platform/pkg/config"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
)

const (
	// reforkDelay is the pause before replacing a crashed worker.
	reforkDelay = 2 * time.Second

	// crashWindow and crashLimit bound the refork loop: crashLimit
	// abnormal exits inside crashWindow escalate the slot.
	crashWindow = time.Minute
	crashLimit  = 5
)

// envWorkerSlot tells a spawned process which slot it occupies.
const envWorkerSlot = "AEROSUITE_WORKER_SLOT"

func workerID(slot int) string {
	return fmt.Sprintf("worker-%d", slot)
}

// crashTracker counts abnormal exits inside a sliding window.
type crashTracker struct {
	window  time.Duration
	limit   int
	crashes []time.Time
}

func newCrashTracker(window time.Duration, limit int) *crashTracker {
	return &crashTracker{window: window, limit: limit}
}

// record notes one crash and reports whether the slot must escalate.
func (c *crashTracker) record(now time.Time) bool {
	cutoff := now.Add(-c.window)
	kept := c.crashes[:0]
	for _, at := range c.crashes {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	c.crashes = append(kept, now)
	return len(c.crashes) >= c.limit
}

type slot struct {
	id   int
	port int
	cmd  *exec.Cmd

	crashes   *crashTracker
	escalated bool
	draining  bool
	startedAt time.Time
}

// Supervisor forks and supervises worker processes. Each worker is this
// binary re-executed with the worker subcommand, owning its own HTTP
// listener on port+slot. Crashed workers are reforked after a short
// delay; a slot crashing repeatedly is escalated and left down.
type Supervisor struct {
	cfg       *config.Config
	bus       *events.Bus
	telemetry *Telemetry
	binary    string

	mu      sync.Mutex
	slots   map[int]*slot
	stopped bool
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor for the configured worker count.
func NewSupervisor(cfg *config.Config, bus *events.Bus) (*Supervisor, error) {
	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve own binary: %w", err)
	}
	return &Supervisor{
		cfg:       cfg,
		bus:       bus,
		telemetry: NewTelemetry(),
		binary:    binary,
		slots:     make(map[int]*slot),
	}, nil
}

// Telemetry returns the load aggregator fed by worker heartbeats.
func (s *Supervisor) Telemetry() *Telemetry {
	return s.telemetry
}

// WorkerCount returns the number of live, non-escalated workers.
func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots {
		if sl.cmd != nil && !sl.escalated {
			n++
		}
	}
	return n
}

// Stats reports per-slot state for the detailed health endpoint.
func (s *Supervisor) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	workers := make([]map[string]any, 0, len(s.slots))
	running, escalated := 0, 0
	for _, sl := range s.slots {
		state := "running"
		switch {
		case sl.escalated:
			state = "escalated"
			escalated++
		case sl.cmd == nil:
			state = "down"
		default:
			running++
		}
		w := map[string]any{
			"slot":  sl.id,
			"port":  sl.port,
			"state": state,
		}
		if sl.cmd != nil && sl.cmd.Process != nil {
			w["pid"] = sl.cmd.Process.Pid
			w["uptime"] = time.Since(sl.startedAt).Truncate(time.Second).String()
		}
		workers = append(workers, w)
	}
	return map[string]any{
		"running":   running,
		"escalated": escalated,
		"workers":   workers,
	}
}

// Run starts the workers and supervises them until ctx is cancelled or a
// termination signal arrives. SIGUSR2 is forwarded to every worker for
// pool resizing.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := log.WithComponent("cluster")
	logger.Info().Int("workers", s.cfg.WorkerCount).Msg("starting worker processes")

	for i := 0; i < s.cfg.WorkerCount; i++ {
		if err := s.spawn(i); err != nil {
			s.shutdown()
			return err
		}
	}

	scaleSub := s.bus.Subscribe(events.EventScaleOut, events.EventScaleIn)
	defer s.bus.Unsubscribe(scaleSub)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case sig := <-sigs:
			if sig == syscall.SIGUSR2 {
				s.forward(syscall.SIGUSR2)
				continue
			}
			logger.Info().Str("signal", sig.String()).Msg("draining workers")
			s.shutdown()
			return nil
		case ev := <-scaleSub:
			switch ev.Type {
			case events.EventScaleOut:
				s.scaleOut()
			case events.EventScaleIn:
				s.scaleIn()
			}
		}
	}
}

// spawn starts the worker for the slot with its control pipe attached as
// fd 3.
func (s *Supervisor) spawn(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}

	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{
			id:      id,
			port:    s.cfg.Port + id,
			crashes: newCrashTracker(crashWindow, crashLimit),
		}
		s.slots[id] = sl
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create control pipe: %w", err)
	}

	cmd := exec.Command(s.binary, "worker")
	cmd.Env = append(os.Environ(),
		envWorkerSlot+"="+strconv.Itoa(id),
		"PORT="+strconv.Itoa(sl.port),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return fmt.Errorf("failed to start worker %d: %w", id, err)
	}
	_ = w.Close() // the child holds the write end now

	sl.cmd = cmd
	sl.draining = false
	sl.startedAt = time.Now()

	go readHeartbeats(r, id, s.telemetry)
	s.wg.Add(1)
	go s.monitor(sl, cmd, r)

	metrics.ClusterWorkers.WithLabelValues("running").Inc()
	log.WithWorkerID(workerID(id)).Info().
		Int("pid", cmd.Process.Pid).Int("port", sl.port).
		Msg("worker started")
	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:     events.EventWorkerStarted,
			EntityID: workerID(id),
			Message:  fmt.Sprintf("worker %d started on port %d", id, sl.port),
		})
	}
	return nil
}

// monitor waits for the worker to exit and applies the restart policy.
func (s *Supervisor) monitor(sl *slot, cmd *exec.Cmd, control *os.File) {
	defer s.wg.Done()
	err := cmd.Wait()
	_ = control.Close()
	metrics.ClusterWorkers.WithLabelValues("running").Dec()

	s.mu.Lock()
	intentional := s.stopped || sl.draining
	if sl.cmd == cmd {
		sl.cmd = nil
	}
	s.mu.Unlock()

	logger := log.WithWorkerID(workerID(sl.id))
	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:     events.EventWorkerExited,
			EntityID: workerID(sl.id),
			Message:  fmt.Sprintf("worker %d exited", sl.id),
		})
	}
	if intentional || err == nil {
		logger.Info().Msg("worker exited")
		return
	}

	logger.Warn().Err(err).Msg("worker exited abnormally")
	metrics.ClusterWorkerRestarts.Inc()

	if sl.crashes.record(time.Now()) {
		s.escalate(sl)
		return
	}

	time.Sleep(reforkDelay)
	if err := s.spawn(sl.id); err != nil {
		logger.Error().Err(err).Msg("failed to refork worker")
	}
}

// escalate stops reforking a slot that keeps crashing and alerts.
func (s *Supervisor) escalate(sl *slot) {
	s.mu.Lock()
	sl.escalated = true
	s.mu.Unlock()

	metrics.ClusterWorkers.WithLabelValues("escalated").Inc()
	log.WithWorkerID(workerID(sl.id)).Error().
		Int("crashes", crashLimit).Dur("window", crashWindow).
		Msg("worker escalated, not reforking")
	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:     events.EventWorkerEscalated,
			EntityID: workerID(sl.id),
			Message:  fmt.Sprintf("worker %d crashed %d times within %s", sl.id, crashLimit, crashWindow),
		})
	}
}

// scaleOut starts one more worker in the lowest free slot.
func (s *Supervisor) scaleOut() {
	s.mu.Lock()
	if len(s.activeSlotsLocked()) >= s.cfg.Autoscale.Max {
		s.mu.Unlock()
		return
	}
	id := 0
	for {
		if sl, ok := s.slots[id]; !ok || (sl.cmd == nil && !sl.escalated) {
			break
		}
		id++
	}
	s.mu.Unlock()

	if err := s.spawn(id); err != nil {
		log.WithComponent("cluster").Error().Err(err).Msg("scale-out spawn failed")
	}
}

// scaleIn drains the highest occupied slot.
func (s *Supervisor) scaleIn() {
	s.mu.Lock()
	active := s.activeSlotsLocked()
	if len(active) <= s.cfg.Autoscale.Min {
		s.mu.Unlock()
		return
	}
	victim := active[len(active)-1]
	victim.draining = true
	cmd := victim.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		log.WithWorkerID(workerID(victim.id)).Info().Msg("worker drained for scale-in")
	}
}

// activeSlotsLocked returns running slots ordered by id.
func (s *Supervisor) activeSlotsLocked() []*slot {
	var active []*slot
	for _, sl := range s.slots {
		if sl.cmd != nil {
			active = append(active, sl)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].id < active[j].id })
	return active
}

// forward relays a signal to every running worker.
func (s *Supervisor) forward(sig syscall.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots {
		if sl.cmd != nil && sl.cmd.Process != nil {
			_ = sl.cmd.Process.Signal(sig)
		}
	}
}

// shutdown drains every worker, force-killing stragglers after the
// configured drain timeout.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	var procs []*os.Process
	for _, sl := range s.slots {
		if sl.cmd != nil && sl.cmd.Process != nil {
			procs = append(procs, sl.cmd.Process)
		}
	}
	s.mu.Unlock()

	for _, p := range procs {
		_ = p.Signal(syscall.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.Cluster.DrainTimeout):
		log.WithComponent("cluster").Warn().
			Dur("timeout", s.cfg.Cluster.DrainTimeout).
			Msg("drain timed out, killing stragglers")
		for _, p := range procs {
			_ = p.Kill()
		}
		<-done
	}
	log.WithComponent("cluster").Info().Msg("all workers stopped")
}
