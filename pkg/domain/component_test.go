package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/pkg/apperr"
)

func newTestComponent(t *testing.T) *Component {
	t.Helper()
	c, err := NewComponent("CMP-100", "Wing spar")
	require.NoError(t, err)
	return c
}

func TestNewComponentValidation(t *testing.T) {
	_, err := NewComponent("", "Wing spar")
	require.Error(t, err)
	_, err = NewComponent("CMP-100", "")
	require.Error(t, err)

	c, err := NewComponent("CMP-100", "Wing spar")
	require.NoError(t, err)
	assert.Equal(t, ComponentDevelopment, c.Status)
}

func TestSpecificationValidation(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		spec    *Specification
		wantErr bool
	}{
		{"name only", &Specification{Name: "surface finish"}, false},
		{"full numeric", &Specification{Name: "length", ExpectedValue: f(100), Tolerance: f(0.5), MinValue: f(99), MaxValue: f(101)}, false},
		{"missing name", &Specification{}, true},
		{"negative tolerance", &Specification{Name: "length", Tolerance: f(-1)}, true},
		{"min above max", &Specification{Name: "length", MinValue: f(10), MaxValue: f(5)}, true},
		{"value outside range", &Specification{Name: "length", ExpectedValue: f(200), MinValue: f(99), MaxValue: f(101)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestComponent(t)
			err := c.AddSpecification(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, tt.spec.ID)
			}
		})
	}
}

func TestRevisionVersioning(t *testing.T) {
	c := newTestComponent(t)

	rev, err := c.AddRevision("initial")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rev.Version)

	// Patch auto-increments and rolls over into the minor at 10
	var last *Revision
	for i := 0; i < 10; i++ {
		last, err = c.AddRevision("tweak")
		require.NoError(t, err)
	}
	assert.Equal(t, "1.1.0", last.Version)
}

func TestRevisionWorkflow(t *testing.T) {
	c := newTestComponent(t)
	rev, err := c.AddRevision("initial")
	require.NoError(t, err)

	// draft -> approved is not allowed
	err = c.TransitionRevision(rev.ID, RevisionApproved, "QA1")
	require.Error(t, err)

	require.NoError(t, c.TransitionRevision(rev.ID, RevisionReview, ""))
	// review -> draft allowed
	require.NoError(t, c.TransitionRevision(rev.ID, RevisionDraft, ""))
	require.NoError(t, c.TransitionRevision(rev.ID, RevisionReview, ""))

	// Approval requires an approver
	err = c.TransitionRevision(rev.ID, RevisionApproved, "")
	require.Error(t, err)

	require.NoError(t, c.TransitionRevision(rev.ID, RevisionApproved, "QA1"))
	assert.Equal(t, "QA1", rev.ApproverID)
	require.NotNil(t, rev.ApprovedAt)

	// Approved revisions are frozen
	err = c.UpdateRevisionNotes(rev.ID, "sneaky edit")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Any state may go obsolete
	require.NoError(t, c.TransitionRevision(rev.ID, RevisionObsolete, ""))
}

func TestRelations(t *testing.T) {
	c := newTestComponent(t)

	require.NoError(t, c.AddRelation("CMP-200", RelationChild))
	require.NoError(t, c.AddRelation("CMP-200", RelationSibling))

	// Duplicate target+type rejected
	err := c.AddRelation("CMP-200", RelationChild)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Self reference rejected
	err = c.AddRelation(c.ID, RelationParent)
	require.Error(t, err)

	// Unknown type rejected
	err = c.AddRelation("CMP-300", RelationType("cousin"))
	require.Error(t, err)

	assert.True(t, c.RemoveRelation("CMP-200", RelationChild))
	assert.False(t, c.RemoveRelation("CMP-200", RelationChild))
}
