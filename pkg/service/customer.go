package service

import (
	"context"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/storage"
)

// CustomerService coordinates customer use cases. Email uniqueness across
// customers is enforced here on create and on email change.
type CustomerService struct {
	customers *storage.CachedRepository[domain.Customer]
	bus       *events.Bus
}

// NewCustomerService creates a customer service.
func NewCustomerService(customers *storage.CachedRepository[domain.Customer], bus *events.Bus) *CustomerService {
	return &CustomerService{customers: customers, bus: bus}
}

// Create constructs and persists a customer, rejecting duplicate emails.
func (s *CustomerService) Create(ctx context.Context, name, email string) (*domain.Customer, error) {
	cust, err := domain.NewCustomer(name, email)
	if err != nil {
		return nil, err
	}
	if err := s.checkEmailUnique(ctx, cust.Email, ""); err != nil {
		return nil, err
	}
	if err := s.customers.Save(ctx, cust, &cust.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &cust.Root)
	return cust, nil
}

// checkEmailUnique rejects an email already held by a customer other than
// selfID. The check races with concurrent creates; the window is accepted
// since writes funnel through one process per node.
func (s *CustomerService) checkEmailUnique(ctx context.Context, email, selfID string) error {
	existing, err := s.customers.FindAll(ctx, storage.Query{Filter: storage.Filter{"email": email}})
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.ID != selfID {
			return apperr.Conflict("customer email %s is already in use", email)
		}
	}
	return nil
}

// Get returns one customer.
func (s *CustomerService) Get(ctx context.Context, id string) (*domain.Customer, error) {
	return s.customers.FindByID(ctx, id)
}

// List returns a page of customers and the total match count.
func (s *CustomerService) List(ctx context.Context, q storage.Query) ([]*domain.Customer, int, error) {
	items, err := s.customers.FindAll(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.customers.Count(ctx, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SetEmail changes the customer email, re-checking uniqueness.
func (s *CustomerService) SetEmail(ctx context.Context, id, email string) (*domain.Customer, error) {
	if err := s.checkEmailUnique(ctx, domain.NormalizeEmail(email), id); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(c *domain.Customer) error {
		return c.SetEmail(email)
	})
}

// SetStatus activates or deactivates the customer.
func (s *CustomerService) SetStatus(ctx context.Context, id string, status domain.CustomerStatus) (*domain.Customer, error) {
	return s.mutate(ctx, id, func(c *domain.Customer) error {
		return c.SetStatus(status)
	})
}

// AddContact appends a contact.
func (s *CustomerService) AddContact(ctx context.Context, id, name, email, phone string) (*domain.Customer, error) {
	return s.mutate(ctx, id, func(c *domain.Customer) error {
		_, err := c.AddContact(name, email, phone)
		return err
	})
}

// RemoveContact deletes a contact by id.
func (s *CustomerService) RemoveContact(ctx context.Context, id, contactID string) (*domain.Customer, error) {
	return s.mutate(ctx, id, func(c *domain.Customer) error {
		if !c.RemoveContact(contactID) {
			return apperr.NotFound("contact %s not found", contactID)
		}
		return nil
	})
}

// Delete removes a customer.
func (s *CustomerService) Delete(ctx context.Context, id string) error {
	if err := s.customers.Delete(ctx, id); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:     events.EventCustomerDeleted,
			EntityID: id,
			Message:  "customer deleted",
		})
	}
	return nil
}

// Count returns the total number of customers.
func (s *CustomerService) Count(ctx context.Context) (int, error) {
	return s.customers.Count(ctx, nil)
}

func (s *CustomerService) mutate(ctx context.Context, id string, op func(*domain.Customer) error) (*domain.Customer, error) {
	cust, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := op(cust); err != nil {
		return nil, err
	}
	if !cust.Modified() {
		return cust, nil
	}
	if err := s.customers.Save(ctx, cust, &cust.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &cust.Root)
	return cust, nil
}
