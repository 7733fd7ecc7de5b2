package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/drift"
	"github.com/aerosuite/platform/pkg/perf"
	"github.com/aerosuite/platform/pkg/registry"
)

func (s *Server) modelRoutes(r chi.Router) {
	r.Get("/", s.handleListModels)
	r.Post("/", s.handleRegisterModel)
	r.Route("/{name}", func(r chi.Router) {
		r.Get("/versions", s.handleListVersions)
		r.Post("/versions", s.handleAddVersion)
		r.Put("/versions/{version}/stage", s.handleTransitionVersion)
		r.Get("/production", s.handleGetProduction)
		r.Get("/staging", s.handleGetStaging)

		if s.drift != nil {
			r.Post("/drift/baseline", s.handleCreateBaseline)
			r.Post("/drift/check", s.handleDetectDrift)
		}
		if s.runtime != nil {
			r.Route("/runtime/{modelID}", s.runtimeRoutes)
		}
	})
}

func (s *Server) runtimeRoutes(r chi.Router) {
	r.Post("/load", s.handleLoadModel)
	r.Delete("/", s.handleUnloadModel)
	r.Post("/infer", s.handleInfer)
	r.Post("/infer/batch", s.handleInferBatch)
	r.Post("/infer/queue", s.handleQueueInfer)
	r.Post("/health/clear", s.handleClearUnhealthy)
	r.Get("/stats", s.handleModelStats)
}

type registerModelRequest struct {
	Name     string            `json:"name" validate:"required"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleRegisterModel(w http.ResponseWriter, r *http.Request) {
	var req registerModelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid model"))
		return
	}
	model, err := s.registry.Register(req.Name, req.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, model)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	names, err := s.registry.ListModels()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": names})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.registry.ListVersions(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

type addVersionRequest struct {
	ModelID  string            `json:"modelId" validate:"required"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleAddVersion(w http.ResponseWriter, r *http.Request) {
	var req addVersionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid version"))
		return
	}
	version, err := s.registry.AddVersion(chi.URLParam(r, "name"), req.ModelID, req.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"version": version})
}

type transitionVersionRequest struct {
	Stage string `json:"stage" validate:"required"`
}

func (s *Server) handleTransitionVersion(w http.ResponseWriter, r *http.Request) {
	var req transitionVersionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, r, apperr.Validation("version must be a number"))
		return
	}
	if err := s.registry.Transition(chi.URLParam(r, "name"), version, registry.Stage(req.Stage)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProduction(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.GetProduction(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetStaging(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.GetStaging(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type baselineRequest struct {
	Samples []drift.Sample      `json:"samples"`
	Schema  drift.FeatureSchema `json:"schema"`
	Method  drift.Method        `json:"method"`
}

func (s *Server) handleCreateBaseline(w http.ResponseWriter, r *http.Request) {
	var req baselineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	baseline, err := s.drift.CreateBaseline(chi.URLParam(r, "name"), req.Samples, req.Schema, req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, baseline)
}

type driftCheckRequest struct {
	Samples []drift.Sample `json:"samples"`
}

func (s *Server) handleDetectDrift(w http.ResponseWriter, r *http.Request) {
	var req driftCheckRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.drift.DetectDrift(chi.URLParam(r, "name"), req.Samples)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.LoadModel(r.Context(), chi.URLParam(r, "modelID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.UnloadModel(chi.URLParam(r, "modelID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inferRequest struct {
	Input any `json:"input"`
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	modelID := chi.URLParam(r, "modelID")
	timer := perfTimer()
	output, err := s.runtime.Infer(r.Context(), modelID, req.Input)
	s.trackInference(modelID, timer(), err == nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": output})
}

type inferBatchRequest struct {
	Inputs []any `json:"inputs"`
}

func (s *Server) handleInferBatch(w http.ResponseWriter, r *http.Request) {
	var req inferBatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	modelID := chi.URLParam(r, "modelID")
	timer := perfTimer()
	outputs, err := s.runtime.InferBatch(r.Context(), modelID, req.Inputs)
	s.trackInference(modelID, timer(), err == nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
}

func (s *Server) handleQueueInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	modelID := chi.URLParam(r, "modelID")
	future, err := s.runtime.QueueInfer(r.Context(), modelID, req.Input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	timer := perfTimer()
	output, err := future.Wait(r.Context())
	s.trackInference(modelID, timer(), err == nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": output})
}

func (s *Server) handleClearUnhealthy(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.ClearUnhealthy(chi.URLParam(r, "modelID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModelStats(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")
	body := map[string]any{
		"loaded":    s.runtime.IsLoaded(modelID),
		"unhealthy": s.runtime.IsUnhealthy(modelID),
	}
	if s.tracker != nil {
		body["windows"] = s.tracker.Snapshot(modelID, perf.MetricLatency)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) trackInference(modelID string, latencyMs float64, success bool) {
	if s.tracker != nil {
		s.tracker.TrackInference(modelID, latencyMs, success)
	}
}

// perfTimer returns a closure reporting elapsed milliseconds.
func perfTimer() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
