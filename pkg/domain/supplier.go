package domain

import (
	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/events"
)

// SupplierStatus represents the state of a supplier account
type SupplierStatus string

const (
	SupplierActive    SupplierStatus = "active"
	SupplierInactive  SupplierStatus = "inactive"
	SupplierSuspended SupplierStatus = "suspended"
)

// Supplier is the aggregate root for a supplier. Inspections reference
// suppliers by id; the inspection service verifies the reference exists.
type Supplier struct {
	Root

	Name   string         `json:"name"`
	Code   string         `json:"code"`
	Email  string         `json:"email,omitempty"`
	Status SupplierStatus `json:"status"`
}

// NewSupplier constructs an active supplier.
func NewSupplier(name, code, email string) (*Supplier, error) {
	if name == "" {
		return nil, apperr.Validation("supplier name is required")
	}
	if code == "" {
		return nil, apperr.Validation("supplier code is required")
	}
	s := &Supplier{
		Root:   NewRoot(),
		Name:   name,
		Code:   code,
		Email:  NormalizeEmail(email),
		Status: SupplierActive,
	}
	s.Record(events.EventSupplierCreated, "supplier created: "+code)
	return s, nil
}

// SetStatus moves the supplier between active, inactive and suspended.
func (s *Supplier) SetStatus(status SupplierStatus) error {
	switch status {
	case SupplierActive, SupplierInactive, SupplierSuspended:
	default:
		return apperr.Validation("unknown supplier status: %s", status)
	}
	if s.Status == status {
		return nil
	}
	s.Status = status
	s.Record(events.EventSupplierUpdated, "supplier status changed to "+string(status))
	s.Touch()
	return nil
}
