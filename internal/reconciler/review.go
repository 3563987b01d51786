package reconciler

import (
	"sync"

	"entity-resolution-service/internal/identity"
	"entity-resolution-service/internal/models"
	"entity-resolution-service/pkg/errors"
)

// ReviewKind classifies an item in the review report
type ReviewKind string

const (
	// ReviewMalformedField is a discarded party name or otherwise unusable value
	ReviewMalformedField ReviewKind = "malformed_field"
	// ReviewAmbiguousIdentity is a name that fuzzy-matched several entities
	ReviewAmbiguousIdentity ReviewKind = "ambiguous_identity"
	// ReviewConfirmation is a single fuzzy match held back pending confirmation
	ReviewConfirmation ReviewKind = "confirmation_required"
	// ReviewRecordFailure is a record whose processing was aborted
	ReviewRecordFailure ReviewKind = "record_failure"
)

// ReviewCandidate is one entity offered to the reviewer
type ReviewCandidate struct {
	EntityID int64   `json:"entity_id" yaml:"entity_id"`
	Name     string  `json:"name" yaml:"name"`
	Score    float64 `json:"score" yaml:"score"`
}

// ReviewItem is one condition needing human attention
type ReviewItem struct {
	Kind       ReviewKind        `json:"kind" yaml:"kind"`
	Origin     string            `json:"origin,omitempty" yaml:"origin,omitempty"`
	Category   models.Category   `json:"category,omitempty" yaml:"category,omitempty"`
	Role       models.Role       `json:"role,omitempty" yaml:"role,omitempty"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Code       errors.ErrorCode  `json:"code,omitempty" yaml:"code,omitempty"`
	Message    string            `json:"message" yaml:"message"`
	Candidates []ReviewCandidate `json:"candidates,omitempty" yaml:"candidates,omitempty"`

	// EntityID is the entity proposed in place of an unconfirmed match
	EntityID int64 `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
}

// ReviewReport accumulates everything a run could not decide on its own
type ReviewReport struct {
	RunID  string               `json:"run_id" yaml:"run_id"`
	Items  []ReviewItem         `json:"items" yaml:"items"`
	Issues *errors.ErrorSummary `json:"issues" yaml:"issues"`

	mu     sync.Mutex
	issues []*errors.ReconcilerError
}

// NewReviewReport creates an empty report for a run
func NewReviewReport(runID string) *ReviewReport {
	return &ReviewReport{RunID: runID, Items: []ReviewItem{}}
}

// Count returns the number of items of kind
func (r *ReviewReport) Count(kind ReviewKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, item := range r.Items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the number of items
func (r *ReviewReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Items)
}

// AddIssue records err as an item of kind
func (r *ReviewReport) AddIssue(kind ReviewKind, origin string, err *errors.ReconcilerError) {
	item := ReviewItem{
		Kind:    kind,
		Origin:  origin,
		Code:    err.Code,
		Message: err.Error(),
	}
	if name, ok := err.Context["name"].(string); ok {
		item.Name = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Items = append(r.Items, item)
	r.issues = append(r.issues, err)
}

// AddAmbiguous records a name the resolver refused to guess on
func (r *ReviewReport) AddAmbiguous(origin string, role models.Role, res *identity.Resolution) {
	r.add(ReviewItem{
		Kind:       ReviewAmbiguousIdentity,
		Origin:     origin,
		Category:   role.Category(),
		Role:       role,
		Name:       res.Name,
		Message:    "name matches several entities; choose one and add a confirmation",
		Candidates: reviewCandidates(res.Candidates),
	})
}

// AddConfirmation records a single fuzzy match that was not merged
func (r *ReviewReport) AddConfirmation(origin string, role models.Role, res *identity.Resolution, proposed *models.CanonicalEntity) {
	item := ReviewItem{
		Kind:       ReviewConfirmation,
		Origin:     origin,
		Category:   role.Category(),
		Role:       role,
		Name:       res.Name,
		Message:    "name resembles an existing entity; confirm to merge it as an alias",
		Candidates: reviewCandidates(res.Candidates),
	}
	if proposed != nil {
		item.EntityID = proposed.ID
	}
	r.add(item)
}

// Finalize computes the issue summary. The report must not change afterwards.
func (r *ReviewReport) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Issues = errors.NewErrorSummary(r.issues)
}

func (r *ReviewReport) add(item ReviewItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Items = append(r.Items, item)
}

func reviewCandidates(candidates []identity.Candidate) []ReviewCandidate {
	out := make([]ReviewCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, ReviewCandidate{EntityID: c.Entity.ID, Name: c.Entity.Name, Score: c.Score})
	}
	return out
}
