package domain

import (
	"fmt"
	"time"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/google/uuid"
)

// ComponentStatus represents the lifecycle state of a component
type ComponentStatus string

const (
	ComponentActive       ComponentStatus = "active"
	ComponentObsolete     ComponentStatus = "obsolete"
	ComponentDevelopment  ComponentStatus = "development"
	ComponentDiscontinued ComponentStatus = "discontinued"
)

// RelationType classifies a link between components
type RelationType string

const (
	RelationParent   RelationType = "parent"
	RelationChild    RelationType = "child"
	RelationSibling  RelationType = "sibling"
	RelationAssembly RelationType = "assembly"
	RelationPart     RelationType = "part"
)

// RevisionStatus represents the review state of a revision
type RevisionStatus string

const (
	RevisionDraft    RevisionStatus = "draft"
	RevisionReview   RevisionStatus = "review"
	RevisionApproved RevisionStatus = "approved"
	RevisionObsolete RevisionStatus = "obsolete"
)

// Component is the aggregate root for a manufactured part or assembly.
type Component struct {
	Root

	Code           string           `json:"code"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Category       string           `json:"category,omitempty"`
	Status         ComponentStatus  `json:"status"`
	Specifications []*Specification `json:"specifications"`
	Revisions      []*Revision      `json:"revisions"`
	Documents      []string         `json:"documents"`
	Related        []*Relation      `json:"relatedComponents"`
}

// Specification is a named, optionally numeric, requirement on a component.
type Specification struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Unit          string   `json:"unit,omitempty"`
	ExpectedValue *float64 `json:"expectedValue,omitempty"`
	Tolerance     *float64 `json:"tolerance,omitempty"`
	MinValue      *float64 `json:"minValue,omitempty"`
	MaxValue      *float64 `json:"maxValue,omitempty"`
}

// Revision is an immutable-once-approved design revision with a semantic
// version.
type Revision struct {
	ID         string         `json:"id"`
	Version    string         `json:"version"`
	Status     RevisionStatus `json:"status"`
	Notes      string         `json:"notes,omitempty"`
	ApproverID string         `json:"approverId,omitempty"`
	ApprovedAt *time.Time     `json:"approvedAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Relation is a typed link to another component.
type Relation struct {
	ComponentID string       `json:"componentId"`
	Type        RelationType `json:"type"`
}

// NewComponent constructs a component in development state. Code and name
// are required.
func NewComponent(code, name string) (*Component, error) {
	if code == "" {
		return nil, apperr.Validation("component code is required")
	}
	if name == "" {
		return nil, apperr.Validation("component name is required")
	}
	c := &Component{
		Root:           NewRoot(),
		Code:           code,
		Name:           name,
		Status:         ComponentDevelopment,
		Specifications: []*Specification{},
		Revisions:      []*Revision{},
		Documents:      []string{},
		Related:        []*Relation{},
	}
	c.Record(events.EventComponentCreated, "component created: "+code)
	return c, nil
}

// SetStatus updates the component lifecycle state.
func (c *Component) SetStatus(status ComponentStatus) error {
	switch status {
	case ComponentActive, ComponentObsolete, ComponentDevelopment, ComponentDiscontinued:
	default:
		return apperr.Validation("unknown component status: %s", status)
	}
	if c.Status == status {
		return nil
	}
	c.Status = status
	c.Record(events.EventComponentUpdated, "component status changed to "+string(status))
	c.Touch()
	return nil
}

// AddSpecification validates and appends a specification. Numeric bounds
// must be consistent: min <= max, tolerance >= 0, and when all numeric
// fields are present the expected value must fall within [min, max].
func (c *Component) AddSpecification(spec *Specification) error {
	if spec.Name == "" {
		return apperr.Validation("specification name is required")
	}
	if spec.Tolerance != nil && *spec.Tolerance < 0 {
		return apperr.Validation("specification tolerance must be non-negative")
	}
	if spec.MinValue != nil && spec.MaxValue != nil && *spec.MinValue > *spec.MaxValue {
		return apperr.Validation("specification min %v exceeds max %v", *spec.MinValue, *spec.MaxValue)
	}
	if spec.ExpectedValue != nil && spec.MinValue != nil && spec.MaxValue != nil {
		if *spec.ExpectedValue < *spec.MinValue || *spec.ExpectedValue > *spec.MaxValue {
			return apperr.Validation("specification value %v outside [%v, %v]",
				*spec.ExpectedValue, *spec.MinValue, *spec.MaxValue)
		}
	}
	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}
	c.Specifications = append(c.Specifications, spec)
	c.Touch()
	return nil
}

// AddRevision creates the next revision. Versions follow X.Y.Z with the
// patch auto-incremented; a patch reaching 10 rolls over into the minor.
func (c *Component) AddRevision(notes string) (*Revision, error) {
	version := c.nextVersion()
	rev := &Revision{
		ID:        uuid.New().String(),
		Version:   version,
		Status:    RevisionDraft,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
	c.Revisions = append(c.Revisions, rev)
	c.Touch()
	return rev, nil
}

func (c *Component) nextVersion() string {
	if len(c.Revisions) == 0 {
		return "1.0.0"
	}
	last := c.Revisions[len(c.Revisions)-1]
	var major, minor, patch int
	if _, err := fmt.Sscanf(last.Version, "%d.%d.%d", &major, &minor, &patch); err != nil {
		return "1.0.0"
	}
	patch++
	if patch >= 10 {
		patch = 0
		minor++
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// TransitionRevision moves a revision through its review workflow:
// draft <-> review, review -> approved, any -> obsolete. Approval requires
// an approver and freezes further edits.
func (c *Component) TransitionRevision(revisionID string, to RevisionStatus, approverID string) error {
	rev := c.findRevision(revisionID)
	if rev == nil {
		return apperr.NotFound("revision not found: %s", revisionID)
	}

	if to == RevisionObsolete {
		rev.Status = RevisionObsolete
		c.Touch()
		return nil
	}

	switch {
	case rev.Status == RevisionDraft && to == RevisionReview:
		rev.Status = RevisionReview
	case rev.Status == RevisionReview && to == RevisionDraft:
		rev.Status = RevisionDraft
	case rev.Status == RevisionReview && to == RevisionApproved:
		if approverID == "" {
			return apperr.Validation("revision approval requires an approver")
		}
		now := time.Now().UTC()
		rev.Status = RevisionApproved
		rev.ApproverID = approverID
		rev.ApprovedAt = &now
	default:
		return apperr.Validation("invalid revision transition from %s to %s", rev.Status, to)
	}
	c.Touch()
	return nil
}

// UpdateRevisionNotes edits a revision's notes. Approved revisions are
// frozen.
func (c *Component) UpdateRevisionNotes(revisionID, notes string) error {
	rev := c.findRevision(revisionID)
	if rev == nil {
		return apperr.NotFound("revision not found: %s", revisionID)
	}
	if rev.Status == RevisionApproved {
		return apperr.Validation("approved revision %s is frozen", rev.Version)
	}
	rev.Notes = notes
	c.Touch()
	return nil
}

func (c *Component) findRevision(revisionID string) *Revision {
	for _, rev := range c.Revisions {
		if rev.ID == revisionID {
			return rev
		}
	}
	return nil
}

// AddRelation links another component. Duplicate links (same target and
// type) are rejected.
func (c *Component) AddRelation(componentID string, relType RelationType) error {
	switch relType {
	case RelationParent, RelationChild, RelationSibling, RelationAssembly, RelationPart:
	default:
		return apperr.Validation("unknown relation type: %s", relType)
	}
	if componentID == "" {
		return apperr.Validation("related component id is required")
	}
	if componentID == c.ID {
		return apperr.Validation("component cannot relate to itself")
	}
	for _, rel := range c.Related {
		if rel.ComponentID == componentID && rel.Type == relType {
			return apperr.Validation("duplicate relation %s to component %s", relType, componentID)
		}
	}
	c.Related = append(c.Related, &Relation{ComponentID: componentID, Type: relType})
	c.Touch()
	return nil
}

// RemoveRelation removes a typed link if present.
func (c *Component) RemoveRelation(componentID string, relType RelationType) bool {
	for idx, rel := range c.Related {
		if rel.ComponentID == componentID && rel.Type == relType {
			c.Related = append(c.Related[:idx], c.Related[idx+1:]...)
			c.Touch()
			return true
		}
	}
	return false
}

// AddDocument records a document reference.
func (c *Component) AddDocument(ref string) error {
	if ref == "" {
		return apperr.Validation("document reference is required")
	}
	c.Documents = append(c.Documents, ref)
	c.Touch()
	return nil
}
