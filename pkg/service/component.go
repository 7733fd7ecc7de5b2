package service

import (
	"context"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/storage"
)

// ComponentService coordinates component use cases: specifications,
// revisions, relations and documents.
type ComponentService struct {
	components *storage.CachedRepository[domain.Component]
	bus        *events.Bus
}

// NewComponentService creates a component service.
func NewComponentService(components *storage.CachedRepository[domain.Component], bus *events.Bus) *ComponentService {
	return &ComponentService{components: components, bus: bus}
}

// Create constructs and persists a component, rejecting duplicate codes.
func (s *ComponentService) Create(ctx context.Context, code, name string) (*domain.Component, error) {
	comp, err := domain.NewComponent(code, name)
	if err != nil {
		return nil, err
	}
	exists, err := s.components.Exists(ctx, storage.Filter{"code": comp.Code})
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("component code %s is already in use", comp.Code)
	}
	if err := s.components.Save(ctx, comp, &comp.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &comp.Root)
	return comp, nil
}

// Get returns one component.
func (s *ComponentService) Get(ctx context.Context, id string) (*domain.Component, error) {
	return s.components.FindByID(ctx, id)
}

// List returns a page of components and the total match count.
func (s *ComponentService) List(ctx context.Context, q storage.Query) ([]*domain.Component, int, error) {
	items, err := s.components.FindAll(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.components.Count(ctx, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SetStatus moves the component through its lifecycle.
func (s *ComponentService) SetStatus(ctx context.Context, id string, status domain.ComponentStatus) (*domain.Component, error) {
	return s.mutate(ctx, id, func(c *domain.Component) error {
		return c.SetStatus(status)
	})
}

// AddSpecification attaches a specification.
func (s *ComponentService) AddSpecification(ctx context.Context, id string, spec *domain.Specification) (*domain.Component, error) {
	return s.mutate(ctx, id, func(c *domain.Component) error {
		return c.AddSpecification(spec)
	})
}

// AddRevision appends a revision with the next semantic version.
func (s *ComponentService) AddRevision(ctx context.Context, id, notes string) (*domain.Component, error) {
	return s.mutate(ctx, id, func(c *domain.Component) error {
		_, err := c.AddRevision(notes)
		return err
	})
}

// TransitionRevision moves a revision through its workflow. Approval
// requires an approver.
func (s *ComponentService) TransitionRevision(ctx context.Context, id, revisionID string, to domain.RevisionStatus, approverID string) (*domain.Component, error) {
	return s.mutate(ctx, id, func(c *domain.Component) error {
		return c.TransitionRevision(revisionID, to, approverID)
	})
}

// UpdateRevisionNotes edits a revision's notes while it is still mutable.
func (s *ComponentService) UpdateRevisionNotes(ctx context.Context, id, revisionID, notes string) (*domain.Component, error) {
	return s.mutate(ctx, id, func(c *domain.Component) error {
		return c.UpdateRevisionNotes(revisionID, notes)
	})
}

// AddRelation links this component to another. The target must exist.
func (s *ComponentService) AddRelation(ctx context.Context, id, targetID string, relType domain.RelationType) (*domain.Component, error) {
	ok, err := s.components.ExistsID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validation("component %s does not exist", targetID)
	}
	return s.mutate(ctx, id, func(c *domain.Component) error {
		return c.AddRelation(targetID, relType)
	})
}

// RemoveRelation unlinks a related component.
func (s *ComponentService) RemoveRelation(ctx context.Context, id, targetID string, relType domain.RelationType) (*domain.Component, error) {
	return s.mutate(ctx, id, func(c *domain.Component) error {
		if !c.RemoveRelation(targetID, relType) {
			return apperr.NotFound("relation to %s not found", targetID)
		}
		return nil
	})
}

// AddDocument links a document reference.
func (s *ComponentService) AddDocument(ctx context.Context, id, ref string) (*domain.Component, error) {
	return s.mutate(ctx, id, func(c *domain.Component) error {
		return c.AddDocument(ref)
	})
}

// Delete removes a component.
func (s *ComponentService) Delete(ctx context.Context, id string) error {
	if err := s.components.Delete(ctx, id); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:     events.EventComponentDeleted,
			EntityID: id,
			Message:  "component deleted",
		})
	}
	return nil
}

// CountByStatus returns component counts grouped by status.
func (s *ComponentService) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.components.GroupCount(ctx, "status")
}

func (s *ComponentService) mutate(ctx context.Context, id string, op func(*domain.Component) error) (*domain.Component, error) {
	comp, err := s.components.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := op(comp); err != nil {
		return nil, err
	}
	if !comp.Modified() {
		return comp, nil
	}
	if err := s.components.Save(ctx, comp, &comp.Root); err != nil {
		return nil, err
	}
	publish(s.bus, &comp.Root)
	return comp, nil
}
