package service

import (
	"context"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/storage"
)

// SupplierService coordinates supplier use cases.
type SupplierService struct {
	suppliers *storage.CachedRepository[domain.Supplier]
	bus       *events.Bus
}

// NewSupplierService creates a supplier service.
func NewSupplierService(suppliers *storage.CachedRepository[domain.Supplier], bus *events.Bus) *SupplierService {
	return &SupplierService{suppliers: suppliers, bus: bus}
}

// Create constructs and persists a supplier, rejecting duplicate codes.
func (s *SupplierService) Create(ctx context.Context, name, code, email string) (*domain.Supplier, error) {
	sup, err := domain.NewSupplier(name, code, email)
	if err != nil {
		return nil, err
	}
	exists, err := s.suppliers.Exists(ctx, storage.Filter{"code": sup.Code})
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("supplier code %s is already in use", sup.Code)
	}
	if err := s.suppliers.Save(ctx, sup, &sup.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &sup.Root)
	return sup, nil
}

// Get returns one supplier.
func (s *SupplierService) Get(ctx context.Context, id string) (*domain.Supplier, error) {
	return s.suppliers.FindByID(ctx, id)
}

// List returns a page of suppliers and the total match count.
func (s *SupplierService) List(ctx context.Context, q storage.Query) ([]*domain.Supplier, int, error) {
	items, err := s.suppliers.FindAll(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.suppliers.Count(ctx, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SetStatus moves the supplier between active, inactive and suspended.
func (s *SupplierService) SetStatus(ctx context.Context, id string, status domain.SupplierStatus) (*domain.Supplier, error) {
	sup, err := s.suppliers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sup.SetStatus(status); err != nil {
		return nil, err
	}
	if !sup.Modified() {
		return sup, nil
	}
	if err := s.suppliers.Save(ctx, sup, &sup.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &sup.Root)
	return sup, nil
}

// Delete removes a supplier.
func (s *SupplierService) Delete(ctx context.Context, id string) error {
	if err := s.suppliers.Delete(ctx, id); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:     events.EventSupplierDeleted,
			EntityID: id,
			Message:  "supplier deleted",
		})
	}
	return nil
}
