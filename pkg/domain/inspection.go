package domain

import (
	"math"
	"time"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/google/uuid"
)

// InspectionStatus represents the lifecycle state of an inspection
type InspectionStatus string

const (
	InspectionScheduled  InspectionStatus = "scheduled"
	InspectionInProgress InspectionStatus = "in-progress"
	InspectionCompleted  InspectionStatus = "completed"
	InspectionCancelled  InspectionStatus = "cancelled"
)

// inspectionTransitions defines the allowed status transitions.
// completed is terminal; cancelled may only return to scheduled.
var inspectionTransitions = map[InspectionStatus][]InspectionStatus{
	InspectionScheduled:  {InspectionInProgress, InspectionCancelled},
	InspectionInProgress: {InspectionScheduled, InspectionCompleted, InspectionCancelled},
	InspectionCompleted:  {},
	InspectionCancelled:  {InspectionScheduled},
}

// ItemStatus represents the state of a single inspection item
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemPassed  ItemStatus = "passed"
	ItemFailed  ItemStatus = "failed"
	ItemNA      ItemStatus = "na"
)

// DefectSeverity classifies a defect
type DefectSeverity string

const (
	DefectCritical DefectSeverity = "critical"
	DefectMajor    DefectSeverity = "major"
	DefectMinor    DefectSeverity = "minor"
	DefectCosmetic DefectSeverity = "cosmetic"
)

// DefectStatus represents the workflow state of a defect
type DefectStatus string

const (
	DefectOpen       DefectStatus = "open"
	DefectInProgress DefectStatus = "in-progress"
	DefectResolved   DefectStatus = "resolved"
	DefectClosed     DefectStatus = "closed"
	DefectRejected   DefectStatus = "rejected"
)

// Inspection is the aggregate root for a quality inspection.
type Inspection struct {
	Root

	Title          string           `json:"title"`
	Description    string           `json:"description,omitempty"`
	CustomerID     string           `json:"customerId,omitempty"`
	SupplierID     string           `json:"supplierId,omitempty"`
	ComponentID    string           `json:"componentId,omitempty"`
	Status         InspectionStatus `json:"status"`
	ScheduledDate  time.Time        `json:"scheduledDate"`
	CompletedDate  *time.Time       `json:"completedDate,omitempty"`
	InspectorID    string           `json:"inspectorId,omitempty"`
	Location       string           `json:"location,omitempty"`
	InspectionType string           `json:"inspectionType,omitempty"`
	Items          []*InspectionItem `json:"items"`
	Defects        []*Defect         `json:"defects"`
	Attachments    []string          `json:"attachments"`
}

// InspectionItem is a single measured or verified item within an inspection.
type InspectionItem struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    ItemStatus `json:"status"`
	Value     *float64   `json:"value,omitempty"`
	Expected  *float64   `json:"expected,omitempty"`
	Tolerance *float64   `json:"tolerance,omitempty"`
	Unit      string     `json:"unit,omitempty"`
}

// Defect records a finding raised during an inspection.
type Defect struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Severity    DefectSeverity `json:"severity"`
	Status      DefectStatus   `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
}

// NewInspection constructs a scheduled inspection, enforcing creation
// invariants: title and scheduled date are required, and at least one of
// customer or supplier must be referenced.
func NewInspection(title string, scheduledDate time.Time, customerID, supplierID string) (*Inspection, error) {
	if title == "" {
		return nil, apperr.Validation("inspection title is required")
	}
	if scheduledDate.IsZero() {
		return nil, apperr.Validation("inspection scheduled date is required")
	}
	if customerID == "" && supplierID == "" {
		return nil, apperr.Validation("inspection requires a customer or a supplier")
	}

	insp := &Inspection{
		Root:          NewRoot(),
		Title:         title,
		CustomerID:    customerID,
		SupplierID:    supplierID,
		Status:        InspectionScheduled,
		ScheduledDate: scheduledDate,
		Items:         []*InspectionItem{},
		Defects:       []*Defect{},
		Attachments:   []string{},
	}
	insp.Record(events.EventInspectionCreated, "inspection created: "+title)
	return insp, nil
}

// Transition moves the inspection to a new status, enforcing the
// transition table. Completing requires every item to have left pending.
func (i *Inspection) Transition(to InspectionStatus) error {
	if i.Status == to {
		return nil
	}
	if !transitionAllowed(i.Status, to) {
		return apperr.Validation("invalid inspection transition from %s to %s", i.Status, to)
	}

	if to == InspectionCompleted {
		for _, item := range i.Items {
			if item.Status == ItemPending {
				return apperr.Validation("cannot complete inspection with pending item %q", item.Name)
			}
		}
		now := time.Now().UTC()
		i.CompletedDate = &now
		i.Record(events.EventInspectionCompleted, "inspection completed")
	} else {
		i.Record(events.EventInspectionUpdated, "inspection status changed to "+string(to))
	}

	i.Status = to
	i.Touch()
	return nil
}

func transitionAllowed(from, to InspectionStatus) bool {
	for _, allowed := range inspectionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AddItem appends an inspection item in pending state.
func (i *Inspection) AddItem(name string) (*InspectionItem, error) {
	if i.Status == InspectionCompleted {
		return nil, apperr.Validation("cannot add items to a completed inspection")
	}
	if name == "" {
		return nil, apperr.Validation("item name is required")
	}
	item := &InspectionItem{
		ID:     uuid.New().String(),
		Name:   name,
		Status: ItemPending,
	}
	i.Items = append(i.Items, item)
	i.Touch()
	return item, nil
}

// SetItemStatus updates the status of an item by id.
func (i *Inspection) SetItemStatus(itemID string, status ItemStatus) error {
	if i.Status == InspectionCompleted {
		return apperr.Validation("cannot modify items of a completed inspection")
	}
	switch status {
	case ItemPending, ItemPassed, ItemFailed, ItemNA:
	default:
		return apperr.Validation("unknown item status: %s", status)
	}
	item := i.findItem(itemID)
	if item == nil {
		return apperr.NotFound("inspection item not found: %s", itemID)
	}
	item.Status = status
	i.Touch()
	return nil
}

// RecordMeasurement stores a measured value on an item.
func (i *Inspection) RecordMeasurement(itemID string, value, expected, tolerance float64, unit string) error {
	if tolerance < 0 {
		return apperr.Validation("tolerance must be non-negative")
	}
	item := i.findItem(itemID)
	if item == nil {
		return apperr.NotFound("inspection item not found: %s", itemID)
	}
	item.Value = &value
	item.Expected = &expected
	item.Tolerance = &tolerance
	item.Unit = unit
	i.Touch()
	return nil
}

func (i *Inspection) findItem(itemID string) *InspectionItem {
	for _, item := range i.Items {
		if item.ID == itemID {
			return item
		}
	}
	return nil
}

// IsWithinTolerance reports whether the measured value lies within the
// allowed deviation from the expected value. Items without a full set of
// numeric fields are considered in tolerance.
func (it *InspectionItem) IsWithinTolerance() bool {
	if it.Value == nil || it.Expected == nil || it.Tolerance == nil {
		return true
	}
	return math.Abs(*it.Expected-*it.Value) <= *it.Tolerance
}

// CompletionPercentage is the share of items that have left pending state.
func (i *Inspection) CompletionPercentage() float64 {
	if len(i.Items) == 0 {
		return 0
	}
	done := 0
	for _, item := range i.Items {
		if item.Status != ItemPending {
			done++
		}
	}
	return float64(done) / float64(len(i.Items)) * 100
}

// AddDefect raises a new open defect on the inspection.
func (i *Inspection) AddDefect(description string, severity DefectSeverity) (*Defect, error) {
	switch severity {
	case DefectCritical, DefectMajor, DefectMinor, DefectCosmetic:
	default:
		return nil, apperr.Validation("unknown defect severity: %s", severity)
	}
	if description == "" {
		return nil, apperr.Validation("defect description is required")
	}
	defect := &Defect{
		ID:          uuid.New().String(),
		Description: description,
		Severity:    severity,
		Status:      DefectOpen,
		CreatedAt:   time.Now().UTC(),
	}
	i.Defects = append(i.Defects, defect)
	i.Touch()
	return defect, nil
}

// TransitionDefect moves a defect through its workflow. Closing requires a
// prior resolved state; reopening is permitted from resolved, closed, or
// rejected.
func (i *Inspection) TransitionDefect(defectID string, to DefectStatus) error {
	var defect *Defect
	for _, d := range i.Defects {
		if d.ID == defectID {
			defect = d
			break
		}
	}
	if defect == nil {
		return apperr.NotFound("defect not found: %s", defectID)
	}

	if !defectTransitionAllowed(defect.Status, to) {
		return apperr.Validation("invalid defect transition from %s to %s", defect.Status, to)
	}

	if to == DefectResolved {
		now := time.Now().UTC()
		defect.ResolvedAt = &now
	}
	defect.Status = to
	i.Touch()
	return nil
}

func defectTransitionAllowed(from, to DefectStatus) bool {
	switch to {
	case DefectInProgress:
		return from == DefectOpen
	case DefectResolved:
		return from == DefectOpen || from == DefectInProgress
	case DefectClosed:
		return from == DefectResolved
	case DefectRejected:
		return from == DefectOpen || from == DefectInProgress
	case DefectOpen:
		// Reopen
		return from == DefectResolved || from == DefectClosed || from == DefectRejected
	default:
		return false
	}
}

// OpenDefectCount returns the number of defects not yet closed or rejected.
func (i *Inspection) OpenDefectCount() int {
	n := 0
	for _, d := range i.Defects {
		if d.Status == DefectOpen || d.Status == DefectInProgress {
			n++
		}
	}
	return n
}

// AddAttachment records an attachment reference.
func (i *Inspection) AddAttachment(ref string) error {
	if ref == "" {
		return apperr.Validation("attachment reference is required")
	}
	i.Attachments = append(i.Attachments, ref)
	i.Touch()
	return nil
}
