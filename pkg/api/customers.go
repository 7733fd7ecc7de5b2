package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
)

func (s *Server) customerRoutes(r chi.Router) {
	r.Get("/", s.handleListCustomers)
	r.Post("/", s.handleCreateCustomer)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetCustomer)
		r.Delete("/", s.handleDeleteCustomer)
		r.Put("/email", s.handleSetCustomerEmail)
		r.Put("/status", s.handleSetCustomerStatus)
		r.Post("/contacts", s.handleAddContact)
		r.Delete("/contacts/{contactID}", s.handleRemoveContact)
	})
}

type createCustomerRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid customer"))
		return
	}
	cust, err := s.customers.Create(r.Context(), req.Name, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cust)
}

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	query, page := parseQuery(r)
	items, total, err := s.customers.List(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, items, total, page)
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	cust, err := s.customers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := s.customers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handleSetCustomerEmail(w http.ResponseWriter, r *http.Request) {
	var req setEmailRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid email"))
		return
	}
	cust, err := s.customers.SetEmail(r.Context(), chi.URLParam(r, "id"), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

func (s *Server) handleSetCustomerStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cust, err := s.customers.SetStatus(r.Context(), chi.URLParam(r, "id"), domain.CustomerStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

type addContactRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid contact"))
		return
	}
	cust, err := s.customers.AddContact(r.Context(), chi.URLParam(r, "id"), req.Name, req.Email, req.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	cust, err := s.customers.RemoveContact(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "contactID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}
