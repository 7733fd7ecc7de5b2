package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
)

func (s *Server) componentRoutes(r chi.Router) {
	r.Get("/", s.handleListComponents)
	r.Post("/", s.handleCreateComponent)
	r.Get("/stats", s.handleComponentStats)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetComponent)
		r.Delete("/", s.handleDeleteComponent)
		r.Put("/status", s.handleSetComponentStatus)
		r.Post("/specifications", s.handleAddSpecification)
		r.Post("/revisions", s.handleAddRevision)
		r.Put("/revisions/{revisionID}/status", s.handleTransitionRevision)
		r.Put("/revisions/{revisionID}/notes", s.handleUpdateRevisionNotes)
		r.Post("/relations", s.handleAddRelation)
		r.Delete("/relations", s.handleRemoveRelation)
		r.Post("/documents", s.handleAddDocument)
	})
}

type createComponentRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleCreateComponent(w http.ResponseWriter, r *http.Request) {
	var req createComponentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid component"))
		return
	}
	comp, err := s.components.Create(r.Context(), req.Code, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comp)
}

func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	query, page := parseQuery(r)
	items, total, err := s.components.List(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, items, total, page)
}

func (s *Server) handleGetComponent(w http.ResponseWriter, r *http.Request) {
	comp, err := s.components.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (s *Server) handleDeleteComponent(w http.ResponseWriter, r *http.Request) {
	if err := s.components.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetComponentStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	comp, err := s.components.SetStatus(r.Context(), chi.URLParam(r, "id"), domain.ComponentStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (s *Server) handleAddSpecification(w http.ResponseWriter, r *http.Request) {
	var spec domain.Specification
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, r, err)
		return
	}
	comp, err := s.components.AddSpecification(r.Context(), chi.URLParam(r, "id"), &spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

type addRevisionRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleAddRevision(w http.ResponseWriter, r *http.Request) {
	var req addRevisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	comp, err := s.components.AddRevision(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

type transitionRevisionRequest struct {
	Status     string `json:"status" validate:"required"`
	ApproverID string `json:"approverId"`
}

func (s *Server) handleTransitionRevision(w http.ResponseWriter, r *http.Request) {
	var req transitionRevisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	comp, err := s.components.TransitionRevision(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "revisionID"),
		domain.RevisionStatus(req.Status), req.ApproverID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

type revisionNotesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleUpdateRevisionNotes(w http.ResponseWriter, r *http.Request) {
	var req revisionNotesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	comp, err := s.components.UpdateRevisionNotes(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "revisionID"), req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

type relationRequest struct {
	ComponentID string `json:"componentId" validate:"required"`
	Type        string `json:"type" validate:"required"`
}

func (s *Server) handleAddRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid relation"))
		return
	}
	comp, err := s.components.AddRelation(r.Context(), chi.URLParam(r, "id"),
		req.ComponentID, domain.RelationType(req.Type))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (s *Server) handleRemoveRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	comp, err := s.components.RemoveRelation(r.Context(), chi.URLParam(r, "id"),
		req.ComponentID, domain.RelationType(req.Type))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

type addDocumentRequest struct {
	Ref string `json:"ref" validate:"required"`
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	comp, err := s.components.AddDocument(r.Context(), chi.URLParam(r, "id"), req.Ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (s *Server) handleComponentStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.components.CountByStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"byStatus": counts})
}
