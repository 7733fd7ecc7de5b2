package service

import (
	"context"
	"time"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/storage"
)

// InspectionService coordinates inspection use cases: it validates
// cross-aggregate references, drives the aggregate, persists it and
// publishes the resulting domain events.
type InspectionService struct {
	inspections *storage.CachedRepository[domain.Inspection]
	customers   *storage.CachedRepository[domain.Customer]
	suppliers   *storage.CachedRepository[domain.Supplier]
	components  *storage.CachedRepository[domain.Component]
	bus         *events.Bus
}

// NewInspectionService creates an inspection service.
func NewInspectionService(
	inspections *storage.CachedRepository[domain.Inspection],
	customers *storage.CachedRepository[domain.Customer],
	suppliers *storage.CachedRepository[domain.Supplier],
	components *storage.CachedRepository[domain.Component],
	bus *events.Bus,
) *InspectionService {
	return &InspectionService{
		inspections: inspections,
		customers:   customers,
		suppliers:   suppliers,
		components:  components,
		bus:         bus,
	}
}

// CreateInspectionInput carries the fields accepted at creation.
type CreateInspectionInput struct {
	Title          string
	Description    string
	ScheduledDate  time.Time
	CustomerID     string
	SupplierID     string
	ComponentID    string
	InspectorID    string
	Location       string
	InspectionType string
}

// Create validates references, constructs the aggregate and persists it.
func (s *InspectionService) Create(ctx context.Context, in CreateInspectionInput) (*domain.Inspection, error) {
	if err := s.checkReferences(ctx, in.CustomerID, in.SupplierID, in.ComponentID); err != nil {
		return nil, err
	}

	insp, err := domain.NewInspection(in.Title, in.ScheduledDate, in.CustomerID, in.SupplierID)
	if err != nil {
		return nil, err
	}
	insp.Description = in.Description
	insp.ComponentID = in.ComponentID
	insp.InspectorID = in.InspectorID
	insp.Location = in.Location
	insp.InspectionType = in.InspectionType

	if err := s.inspections.Save(ctx, insp, &insp.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &insp.Root)
	return insp, nil
}

func (s *InspectionService) checkReferences(ctx context.Context, customerID, supplierID, componentID string) error {
	if customerID != "" {
		ok, err := s.customers.ExistsID(ctx, customerID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("customer %s does not exist", customerID)
		}
	}
	if supplierID != "" {
		ok, err := s.suppliers.ExistsID(ctx, supplierID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("supplier %s does not exist", supplierID)
		}
	}
	if componentID != "" {
		ok, err := s.components.ExistsID(ctx, componentID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("component %s does not exist", componentID)
		}
	}
	return nil
}

// Get returns one inspection.
func (s *InspectionService) Get(ctx context.Context, id string) (*domain.Inspection, error) {
	return s.inspections.FindByID(ctx, id)
}

// List returns a page of inspections and the total match count.
func (s *InspectionService) List(ctx context.Context, q storage.Query) ([]*domain.Inspection, int, error) {
	items, err := s.inspections.FindAll(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.inspections.Count(ctx, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateInspectionInput carries the mutable header fields; nil pointers
// leave the field unchanged.
type UpdateInspectionInput struct {
	Title          *string
	Description    *string
	ScheduledDate  *time.Time
	InspectorID    *string
	Location       *string
	InspectionType *string
}

// Update applies header changes to an inspection.
func (s *InspectionService) Update(ctx context.Context, id string, in UpdateInspectionInput) (*domain.Inspection, error) {
	insp, err := s.inspections.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if *in.Title == "" {
			return nil, apperr.Validation("inspection title is required")
		}
		insp.Title = *in.Title
	}
	if in.Description != nil {
		insp.Description = *in.Description
	}
	if in.ScheduledDate != nil {
		if in.ScheduledDate.IsZero() {
			return nil, apperr.Validation("inspection scheduled date is required")
		}
		insp.ScheduledDate = *in.ScheduledDate
	}
	if in.InspectorID != nil {
		insp.InspectorID = *in.InspectorID
	}
	if in.Location != nil {
		insp.Location = *in.Location
	}
	if in.InspectionType != nil {
		insp.InspectionType = *in.InspectionType
	}
	insp.Record(events.EventInspectionUpdated, "inspection updated")
	insp.Touch()

	if err := s.inspections.Save(ctx, insp, &insp.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &insp.Root)
	return insp, nil
}

// Transition moves the inspection through its lifecycle.
func (s *InspectionService) Transition(ctx context.Context, id string, to domain.InspectionStatus) (*domain.Inspection, error) {
	return s.mutate(ctx, id, func(insp *domain.Inspection) error {
		return insp.Transition(to)
	})
}

// AddItem appends a checklist item.
func (s *InspectionService) AddItem(ctx context.Context, id, name string) (*domain.Inspection, error) {
	return s.mutate(ctx, id, func(insp *domain.Inspection) error {
		_, err := insp.AddItem(name)
		return err
	})
}

// SetItemStatus updates one item's status.
func (s *InspectionService) SetItemStatus(ctx context.Context, id, itemID string, status domain.ItemStatus) (*domain.Inspection, error) {
	return s.mutate(ctx, id, func(insp *domain.Inspection) error {
		return insp.SetItemStatus(itemID, status)
	})
}

// RecordMeasurement records a measured value against an item.
func (s *InspectionService) RecordMeasurement(ctx context.Context, id, itemID string, value, expected, tolerance float64, unit string) (*domain.Inspection, error) {
	return s.mutate(ctx, id, func(insp *domain.Inspection) error {
		return insp.RecordMeasurement(itemID, value, expected, tolerance, unit)
	})
}

// AddDefect raises a defect on the inspection.
func (s *InspectionService) AddDefect(ctx context.Context, id, description string, severity domain.DefectSeverity) (*domain.Inspection, error) {
	return s.mutate(ctx, id, func(insp *domain.Inspection) error {
		_, err := insp.AddDefect(description, severity)
		return err
	})
}

// TransitionDefect moves a defect through its workflow.
func (s *InspectionService) TransitionDefect(ctx context.Context, id, defectID string, to domain.DefectStatus) (*domain.Inspection, error) {
	return s.mutate(ctx, id, func(insp *domain.Inspection) error {
		return insp.TransitionDefect(defectID, to)
	})
}

// AddAttachment links an attachment reference.
func (s *InspectionService) AddAttachment(ctx context.Context, id, ref string) (*domain.Inspection, error) {
	return s.mutate(ctx, id, func(insp *domain.Inspection) error {
		return insp.AddAttachment(ref)
	})
}

// Delete removes an inspection.
func (s *InspectionService) Delete(ctx context.Context, id string) error {
	if err := s.inspections.Delete(ctx, id); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:     events.EventInspectionDeleted,
			EntityID: id,
			Message:  "inspection deleted",
		})
	}
	return nil
}

// CountByStatus returns inspection counts grouped by status.
func (s *InspectionService) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.inspections.GroupCount(ctx, "status")
}

// mutate runs op against a loaded inspection and persists the result.
func (s *InspectionService) mutate(ctx context.Context, id string, op func(*domain.Inspection) error) (*domain.Inspection, error) {
	insp, err := s.inspections.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := op(insp); err != nil {
		return nil, err
	}
	if !insp.Modified() {
		return insp, nil
	}
	if err := s.inspections.Save(ctx, insp, &insp.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &insp.Root)
	return insp, nil
}
