package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/service"
)

func (s *Server) inspectionRoutes(r chi.Router) {
	r.Get("/", s.handleListInspections)
	r.Post("/", s.handleCreateInspection)
	r.Get("/stats", s.handleInspectionStats)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetInspection)
		r.Patch("/", s.handleUpdateInspection)
		r.Delete("/", s.handleDeleteInspection)
		r.Post("/transition", s.handleTransitionInspection)
		r.Post("/items", s.handleAddInspectionItem)
		r.Put("/items/{itemID}/status", s.handleSetItemStatus)
		r.Put("/items/{itemID}/measurement", s.handleRecordMeasurement)
		r.Post("/defects", s.handleAddDefect)
		r.Put("/defects/{defectID}/status", s.handleTransitionDefect)
		r.Post("/attachments", s.handleAddAttachment)
	})
}

type createInspectionRequest struct {
	Title          string    `json:"title" validate:"required"`
	Description    string    `json:"description"`
	ScheduledDate  time.Time `json:"scheduledDate" validate:"required"`
	CustomerID     string    `json:"customerId"`
	SupplierID     string    `json:"supplierId"`
	ComponentID    string    `json:"componentId"`
	InspectorID    string    `json:"inspectorId"`
	Location       string    `json:"location"`
	InspectionType string    `json:"inspectionType"`
}

func (s *Server) handleCreateInspection(w http.ResponseWriter, r *http.Request) {
	var req createInspectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid inspection"))
		return
	}

	insp, err := s.inspections.Create(r.Context(), service.CreateInspectionInput{
		Title:          req.Title,
		Description:    req.Description,
		ScheduledDate:  req.ScheduledDate,
		CustomerID:     req.CustomerID,
		SupplierID:     req.SupplierID,
		ComponentID:    req.ComponentID,
		InspectorID:    req.InspectorID,
		Location:       req.Location,
		InspectionType: req.InspectionType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, insp)
}

func (s *Server) handleListInspections(w http.ResponseWriter, r *http.Request) {
	query, page := parseQuery(r)
	items, total, err := s.inspections.List(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, items, total, page)
}

func (s *Server) handleGetInspection(w http.ResponseWriter, r *http.Request) {
	insp, err := s.inspections.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

type updateInspectionRequest struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	ScheduledDate  *time.Time `json:"scheduledDate"`
	InspectorID    *string    `json:"inspectorId"`
	Location       *string    `json:"location"`
	InspectionType *string    `json:"inspectionType"`
}

func (s *Server) handleUpdateInspection(w http.ResponseWriter, r *http.Request) {
	var req updateInspectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	insp, err := s.inspections.Update(r.Context(), chi.URLParam(r, "id"), service.UpdateInspectionInput{
		Title:          req.Title,
		Description:    req.Description,
		ScheduledDate:  req.ScheduledDate,
		InspectorID:    req.InspectorID,
		Location:       req.Location,
		InspectionType: req.InspectionType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

func (s *Server) handleDeleteInspection(w http.ResponseWriter, r *http.Request) {
	if err := s.inspections.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *Server) handleTransitionInspection(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	insp, err := s.inspections.Transition(r.Context(), chi.URLParam(r, "id"), domain.InspectionStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

type addItemRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleAddInspectionItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	insp, err := s.inspections.AddItem(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

func (s *Server) handleSetItemStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	insp, err := s.inspections.SetItemStatus(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), domain.ItemStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

type measurementRequest struct {
	Value     float64 `json:"value"`
	Expected  float64 `json:"expected"`
	Tolerance float64 `json:"tolerance" validate:"gte=0"`
	Unit      string  `json:"unit"`
}

func (s *Server) handleRecordMeasurement(w http.ResponseWriter, r *http.Request) {
	var req measurementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid measurement"))
		return
	}
	insp, err := s.inspections.RecordMeasurement(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "itemID"),
		req.Value, req.Expected, req.Tolerance, req.Unit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

type addDefectRequest struct {
	Description string `json:"description" validate:"required"`
	Severity    string `json:"severity" validate:"required"`
}

func (s *Server) handleAddDefect(w http.ResponseWriter, r *http.Request) {
	var req addDefectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid defect"))
		return
	}
	insp, err := s.inspections.AddDefect(r.Context(), chi.URLParam(r, "id"),
		req.Description, domain.DefectSeverity(req.Severity))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

func (s *Server) handleTransitionDefect(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	insp, err := s.inspections.TransitionDefect(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "defectID"), domain.DefectStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

type addAttachmentRequest struct {
	Ref string `json:"ref" validate:"required"`
}

func (s *Server) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	var req addAttachmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	insp, err := s.inspections.AddAttachment(r.Context(), chi.URLParam(r, "id"), req.Ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

func (s *Server) handleInspectionStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.inspections.CountByStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"byStatus": counts})
}
