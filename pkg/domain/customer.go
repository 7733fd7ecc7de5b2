package domain

import (
	"strings"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/google/uuid"
)

// CustomerStatus represents the state of a customer account
type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "active"
	CustomerInactive CustomerStatus = "inactive"
)

// Customer is the aggregate root for a customer account. Email uniqueness
// across customers is enforced by the customer service at create/update.
type Customer struct {
	Root

	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Status   CustomerStatus `json:"status"`
	Contacts []*Contact     `json:"contacts"`
}

// Contact is a person attached to a customer. A contact must carry an
// email or a phone number.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// NewCustomer constructs an active customer.
func NewCustomer(name, email string) (*Customer, error) {
	if name == "" {
		return nil, apperr.Validation("customer name is required")
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("customer email is required")
	}
	c := &Customer{
		Root:     NewRoot(),
		Name:     name,
		Email:    email,
		Status:   CustomerActive,
		Contacts: []*Contact{},
	}
	c.Record(events.EventCustomerCreated, "customer created: "+email)
	return c, nil
}

// NormalizeEmail lowercases and trims an email for uniqueness comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetEmail changes the customer email. The service layer re-checks
// uniqueness before persisting.
func (c *Customer) SetEmail(email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return apperr.Validation("customer email is required")
	}
	if email == c.Email {
		return nil
	}
	c.Email = email
	c.Record(events.EventCustomerUpdated, "customer email changed")
	c.Touch()
	return nil
}

// SetStatus activates or deactivates the customer.
func (c *Customer) SetStatus(status CustomerStatus) error {
	switch status {
	case CustomerActive, CustomerInactive:
	default:
		return apperr.Validation("unknown customer status: %s", status)
	}
	if c.Status == status {
		return nil
	}
	c.Status = status
	c.Record(events.EventCustomerUpdated, "customer status changed to "+string(status))
	c.Touch()
	return nil
}

// AddContact appends a contact, requiring an email or phone.
func (c *Customer) AddContact(name, email, phone string) (*Contact, error) {
	if name == "" {
		return nil, apperr.Validation("contact name is required")
	}
	if email == "" && phone == "" {
		return nil, apperr.Validation("contact requires an email or phone")
	}
	contact := &Contact{
		ID:    uuid.New().String(),
		Name:  name,
		Email: NormalizeEmail(email),
		Phone: phone,
	}
	c.Contacts = append(c.Contacts, contact)
	c.Touch()
	return contact, nil
}

// RemoveContact deletes a contact by id.
func (c *Customer) RemoveContact(contactID string) bool {
	for idx, contact := range c.Contacts {
		if contact.ID == contactID {
			c.Contacts = append(c.Contacts[:idx], c.Contacts[idx+1:]...)
			c.Touch()
			return true
		}
	}
	return false
}
