package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
)

func (s *Server) supplierRoutes(r chi.Router) {
	r.Get("/", s.handleListSuppliers)
	r.Post("/", s.handleCreateSupplier)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSupplier)
		r.Delete("/", s.handleDeleteSupplier)
		r.Put("/status", s.handleSetSupplierStatus)
	})
}

type createSupplierRequest struct {
	Name  string `json:"name" validate:"required"`
	Code  string `json:"code" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (s *Server) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req createSupplierRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid supplier"))
		return
	}
	sup, err := s.suppliers.Create(r.Context(), req.Name, req.Code, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sup)
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	query, page := parseQuery(r)
	items, total, err := s.suppliers.List(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, items, total, page)
}

func (s *Server) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	sup, err := s.suppliers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

func (s *Server) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := s.suppliers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetSupplierStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sup, err := s.suppliers.SetStatus(r.Context(), chi.URLParam(r, "id"), domain.SupplierStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}
