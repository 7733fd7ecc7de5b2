package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aerosuite/platform/pkg/api"
	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/cache"
	"github.com/aerosuite/platform/pkg/config"
	"github.com/aerosuite/platform/pkg/drift"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/health"
	"github.com/aerosuite/platform/pkg/inference"
	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
	"github.com/aerosuite/platform/pkg/perf"
	"github.com/aerosuite/platform/pkg/registry"
	"github.com/aerosuite/platform/pkg/service"
	"github.com/aerosuite/platform/pkg/session"
	"github.com/aerosuite/platform/pkg/storage"
	"github.com/aerosuite/platform/pkg/workerpool"
)

const heartbeatInterval = 5 * time.Second

// ErrRuntime marks failures that happen after startup completed, so the
// process can exit with a distinct code from startup failures.
var ErrRuntime = errors.New("runtime failure")

// WorkerOptions injects the pieces a worker cannot construct itself.
type WorkerOptions struct {
	// Loader materializes model instances for the inference runtime.
	// Without one the model-serving routes are not mounted.
	Loader inference.Loader
}

// Worker is one serving process: its own HTTP listener plus the full
// service assembly. Workers share nothing in-process; cross-worker state
// lives in Redis (sessions, shared cache tier) and on disk.
type Worker struct {
	cfg  *config.Config
	opts WorkerOptions
	slot int
}

// NewWorker builds a worker from the environment the supervisor set up.
func NewWorker(cfg *config.Config, opts WorkerOptions) *Worker {
	slot, _ := strconv.Atoi(os.Getenv(envWorkerSlot))
	return &Worker{cfg: cfg, opts: opts, slot: slot}
}

// slotDBPath derives the database path for a worker slot. The embedded
// store allows one writer process, so slots above 0 get a slot-suffixed
// file even when an explicit path is configured; workers share only the
// session and cache backends. Slot 0 keeps the configured path.
func slotDBPath(base, dataDir string, slot int) string {
	if slot == 0 {
		return base
	}
	if base == "" {
		return filepath.Join(dataDir, fmt.Sprintf("aerosuite-%d.db", slot))
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), slot, ext)
}

// Run assembles the worker and serves until ctx is cancelled or a
// termination signal arrives. The startup gate refuses to serve in
// production when the database is unreachable.
func (w *Worker) Run(ctx context.Context) error {
	logger := log.WithWorkerID(workerID(w.slot))

	store, err := storage.Open(w.cfg.DataDir, slotDBPath(w.cfg.DBPath, w.cfg.DataDir, w.slot))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	shared := cache.NewRedisStore(w.cfg.CacheURL)
	defer shared.Close()
	engine := cache.NewEngine(shared)

	sessions := session.NewStore(w.cfg.CacheURL, session.Config{
		TTL:  w.cfg.Session.TTL,
		Idle: w.cfg.Session.Idle,
	})
	defer sessions.Close()

	probe := health.NewProbe(
		health.NewDatabaseCheck(store.Ping),
		health.NewCacheCheck(shared.Ping),
		health.NewDiskCheck(w.cfg.DataDir, uint64(w.cfg.Health.DiskFreeMinBytes)),
		health.NewBackupCheck(w.cfg.DataDir+"/backups", w.cfg.Health.BackupMaxAge),
	)
	if !probe.Gate(ctx, w.cfg.IsProduction()) {
		return apperr.New(apperr.KindDependencyUnavailable, "startup gate failed")
	}

	bus := events.NewBus()
	bus.Start()
	defer bus.Stop()

	inspections := storage.NewCachedRepository(store.Inspections, engine)
	customers := storage.NewCachedRepository(store.Customers, engine)
	components := storage.NewCachedRepository(store.Components, engine)
	suppliers := storage.NewCachedRepository(store.Suppliers, engine)

	reg, err := registry.New(store.DB(), bus)
	if err != nil {
		return err
	}
	detector, err := drift.New(store.DB(), bus, drift.Thresholds{}, drift.Method(w.cfg.Drift.DefaultMethod))
	if err != nil {
		return err
	}

	tracker := perf.NewTracker(0)
	defer tracker.Stop()

	pool := workerpool.NewPool(0, 0)
	pool.Start()

	var runtime *inference.Runtime
	if w.opts.Loader != nil {
		runtime = inference.NewRuntime(w.opts.Loader, inference.Options{}, bus)
	}

	inspectionSvc := service.NewInspectionService(inspections, customers, suppliers, components, bus)
	componentSvc := service.NewComponentService(components, bus)
	customerSvc := service.NewCustomerService(customers, bus)

	collector := metrics.NewCollector(metrics.DomainCounts{
		InspectionsByStatus: inspectionSvc.CountByStatus,
		ComponentsByStatus:  componentSvc.CountByStatus,
		Customers:           customerSvc.Count,
	}, 0)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(api.Deps{
		Inspections: inspectionSvc,
		Components:  componentSvc,
		Customers:   customerSvc,
		Suppliers:   service.NewSupplierService(suppliers, bus),
		Sessions:    sessions,
		Probe:       probe,
		Pool:        pool,
		Registry:    reg,
		Runtime:     runtime,
		Tracker:     tracker,
		Drift:       detector,
	})

	recorder := newLoadRecorder(server.Handler())
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", w.cfg.Port),
		Handler:           recorder,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopBeat := w.startHeartbeat(recorder)
	defer stopBeat()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", w.cfg.Port).Msg("worker serving")
		errCh <- httpServer.ListenAndServe()
	}()

	for {
		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("%w: listener failed: %v", ErrRuntime, err)
			}
			return nil
		case <-ctx.Done():
			return w.drain(httpServer, pool)
		case sig := <-sigs:
			if sig == syscall.SIGUSR2 {
				w.resizePool(pool)
				continue
			}
			logger.Info().Str("signal", sig.String()).Msg("worker draining")
			return w.drain(httpServer, pool)
		}
	}
}

// drain shuts the listener and the pool down inside the drain timeout.
func (w *Worker) drain(httpServer *http.Server, pool *workerpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Cluster.DrainTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithWorkerID(workerID(w.slot)).Warn().Err(err).Msg("listener drain incomplete")
	}
	return pool.Stop(ctx)
}

// resizePool applies the POOL_SIZE environment value, falling back to
// the default sizing.
func (w *Worker) resizePool(pool *workerpool.Pool) {
	size := workerpool.DefaultSize()
	if v := os.Getenv("POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	pool.Resize(size)
}

// startHeartbeat reports request counts and p95 latency to the
// supervisor over the control pipe (fd 3). Without the pipe, as when a
// worker runs standalone, no heartbeats are sent.
func (w *Worker) startHeartbeat(recorder *loadRecorder) func() {
	control := os.NewFile(3, "control")
	if control == nil {
		return func() {}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer control.Close()
		enc := json.NewEncoder(control)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hb := Heartbeat{
					Slot:     w.slot,
					Requests: recorder.TakeRequests(),
					P95Ms:    float64(recorder.P95().Microseconds()) / 1000,
				}
				if err := enc.Encode(&hb); err != nil {
					// Supervisor is gone; stop reporting
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}
