package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/drift"
	"github.com/aerosuite/platform/pkg/health"
	"github.com/aerosuite/platform/pkg/inference"
	"github.com/aerosuite/platform/pkg/metrics"
	"github.com/aerosuite/platform/pkg/perf"
	"github.com/aerosuite/platform/pkg/registry"
	"github.com/aerosuite/platform/pkg/service"
	"github.com/aerosuite/platform/pkg/session"
	"github.com/aerosuite/platform/pkg/workerpool"
)

// Deps collects everything the HTTP surface serves. The domain services,
// Probe, Pool, and Tracker are required. Sessions, Registry, Runtime, and
// Drift may be nil; their routes are then not mounted and requests fall
// through to the notFound envelope.
type Deps struct {
	Inspections *service.InspectionService
	Components  *service.ComponentService
	Customers   *service.CustomerService
	Suppliers   *service.SupplierService

	Sessions *session.Store
	Probe    *health.Probe
	Pool     *workerpool.Pool
	Registry *registry.Registry
	Runtime  *inference.Runtime
	Tracker  *perf.Tracker
	Drift    *drift.Detector

	// WorkerStats reports cluster worker state for /health/detailed.
	WorkerStats func() map[string]any
}

// Server is the HTTP API of one worker process.
type Server struct {
	router   chi.Router
	validate *validator.Validate
	started  time.Time

	inspections *service.InspectionService
	components  *service.ComponentService
	customers   *service.CustomerService
	suppliers   *service.SupplierService
	sessions    *session.Store
	probe       *health.Probe
	pool        *workerpool.Pool
	registry    *registry.Registry
	runtime     *inference.Runtime
	tracker     *perf.Tracker
	drift       *drift.Detector
	workerStats func() map[string]any
}

// NewServer builds the router with all middleware and routes mounted.
func NewServer(deps Deps) *Server {
	s := &Server{
		validate:    validator.New(),
		started:     time.Now(),
		inspections: deps.Inspections,
		components:  deps.Components,
		customers:   deps.Customers,
		suppliers:   deps.Suppliers,
		sessions:    deps.Sessions,
		probe:       deps.Probe,
		pool:        deps.Pool,
		registry:    deps.Registry,
		runtime:     deps.Runtime,
		tracker:     deps.Tracker,
		drift:       deps.Drift,
		workerStats: deps.WorkerStats,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recovererMiddleware)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleHealthDetailed)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		if s.sessions != nil {
			r.Post("/sessions", s.handleCreateSession)
			r.Post("/sessions/rotate", s.handleRotateSession)
			r.Delete("/sessions", s.handleRevokeSession)
		}

		r.Route("/inspections", s.inspectionRoutes)
		r.Route("/components", s.componentRoutes)
		r.Route("/customers", s.customerRoutes)
		r.Route("/suppliers", s.supplierRoutes)

		if s.registry != nil {
			r.Route("/models", s.modelRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound("no route for %s %s", r.Method, r.URL.Path))
	})

	s.router = r
	return s
}

// Handler returns the mounted router.
func (s *Server) Handler() http.Handler {
	return s.router
}
