package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-resolution-service/internal/identity"
	"entity-resolution-service/internal/models"
	"entity-resolution-service/pkg/errors"
)

func TestReviewReport(t *testing.T) {
	report := NewReviewReport("run-1")

	report.AddIssue(ReviewMalformedField, "crunch:1", errors.MalformedFieldError("investors", "X", "too short"))
	report.AddIssue(ReviewRecordFailure, "crunch:2",
		errors.IdentityError(errors.CodeAliasConflict, "Supercell", nil))

	paradox := &models.CanonicalEntity{ID: 1, Name: "Paradox Interactive AB"}
	report.AddAmbiguous("crunch:3", models.RoleSubject, &identity.Resolution{
		Name:    "Paradox Interactive",
		Outcome: identity.OutcomeAmbiguous,
		Candidates: []identity.Candidate{
			{Entity: paradox, Score: 1},
			{Entity: &models.CanonicalEntity{ID: 2, Name: "Paradox Interactive SA"}, Score: 1},
		},
	})
	report.AddConfirmation("crunch:4", models.RolePrimary, &identity.Resolution{
		Name:       "Rockaway Venture",
		Outcome:    identity.OutcomeResolved,
		Entity:     &models.CanonicalEntity{ID: 7, Name: "Rockaway Ventures"},
		Candidates: []identity.Candidate{{Entity: &models.CanonicalEntity{ID: 7, Name: "Rockaway Ventures"}, Score: 0.9375}},
	}, &models.CanonicalEntity{ID: 9, Name: "Rockaway Venture"})

	assert.Equal(t, 4, report.Len())
	assert.Equal(t, 1, report.Count(ReviewMalformedField))
	assert.Equal(t, 1, report.Count(ReviewRecordFailure))
	assert.Equal(t, 1, report.Count(ReviewAmbiguousIdentity))
	assert.Equal(t, 1, report.Count(ReviewConfirmation))

	failure := report.Items[1]
	assert.Equal(t, "Supercell", failure.Name)
	assert.Equal(t, errors.CodeAliasConflict, failure.Code)

	ambiguous := report.Items[2]
	assert.Equal(t, models.CategorySubject, ambiguous.Category)
	require.Len(t, ambiguous.Candidates, 2)
	assert.Equal(t, ReviewCandidate{EntityID: 1, Name: "Paradox Interactive AB", Score: 1}, ambiguous.Candidates[0])

	confirmation := report.Items[3]
	assert.Equal(t, models.CategoryParty, confirmation.Category)
	assert.Equal(t, int64(9), confirmation.EntityID)

	report.Finalize()
	require.NotNil(t, report.Issues)
	assert.Equal(t, 2, report.Issues.Total)
	assert.True(t, report.Issues.HasCode(errors.CodeMalformedField))
}

func TestReviewReportFinalizeEmpty(t *testing.T) {
	report := NewReviewReport("run-2")
	report.Finalize()

	assert.Equal(t, 0, report.Len())
	assert.Equal(t, 0, report.Issues.Total)
	assert.NotNil(t, report.Items)
}
