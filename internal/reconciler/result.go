package reconciler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"entity-resolution-service/internal/matcher"
	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/parties"
)

// Batch is the complete input of one run. Both ledgers and the registry are
// known before processing starts.
type Batch struct {
	Left     []*models.RawRecord     `json:"left"`
	Right    []*models.RawRecord     `json:"right"`
	Registry []*models.RegistryEntry `json:"registry"`
}

// Validate validates the batch
func (b *Batch) Validate() error {
	if b == nil {
		return fmt.Errorf("batch is required")
	}
	if len(b.Left) == 0 && len(b.Right) == 0 {
		return fmt.Errorf("at least one ledger must contain records")
	}
	return nil
}

// Result contains the complete results of one run
type Result struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	ProcessedAt time.Time `json:"processed_at" yaml:"processed_at"`
	Summary     *Summary  `json:"summary" yaml:"summary"`

	// Matches is the cross-ledger audit trail
	Matches *matcher.MatchResult `json:"matches" yaml:"matches"`

	DuplicateGroups []matcher.DuplicateGroup  `json:"duplicate_groups,omitempty" yaml:"duplicate_groups,omitempty"`
	Contested       []matcher.ContestedRecord `json:"contested,omitempty" yaml:"contested,omitempty"`

	// Transactions is the resolved transaction set: merged duplicate pairs
	// plus every unpaired record, in encounter order
	Transactions []*models.RawRecord `json:"transactions" yaml:"transactions"`

	// Records are the consolidated entities touched by this run, subjects
	// first, each category ordered by entity ID
	Records []*models.CanonicalRecord `json:"records" yaml:"records"`

	Review *ReviewReport `json:"review" yaml:"review"`

	// Registry is the updated registry for write-back
	Registry []*models.RegistryEntry `json:"-" yaml:"-"`
}

// Summary provides a high-level overview of a run
type Summary struct {
	LeftRecords     int `json:"left_records" yaml:"left_records"`
	RightRecords    int `json:"right_records" yaml:"right_records"`
	RecordsRejected int `json:"records_rejected" yaml:"records_rejected"`

	ParseRules map[parties.Rule]int `json:"parse_rules" yaml:"parse_rules"`

	Matching        matcher.MatchSummary `json:"matching" yaml:"matching"`
	DuplicateGroups int                  `json:"duplicate_groups" yaml:"duplicate_groups"`

	ResolvedTransactions int             `json:"resolved_transactions" yaml:"resolved_transactions"`
	MergedTransactions   int             `json:"merged_transactions" yaml:"merged_transactions"`
	TotalAmount          decimal.Decimal `json:"total_amount" yaml:"total_amount"`

	ExistingEntities  int `json:"existing_entities" yaml:"existing_entities"`
	ProposedEntities  int `json:"proposed_entities" yaml:"proposed_entities"`
	ConfirmedAliases  int `json:"confirmed_aliases" yaml:"confirmed_aliases"`
	AmbiguousMentions int `json:"ambiguous_mentions" yaml:"ambiguous_mentions"`
	CanonicalRecords  int `json:"canonical_records" yaml:"canonical_records"`

	RecordFailures int `json:"record_failures" yaml:"record_failures"`
	Warnings       int `json:"warnings" yaml:"warnings"`

	ProcessingDuration time.Duration `json:"processing_duration" yaml:"processing_duration"`
}

// String returns a one-line rendition of the summary
func (s *Summary) String() string {
	return fmt.Sprintf("records %d/%d, duplicates %d, resolved %d, entities %d existing + %d proposed, %d warnings, %d failures",
		s.LeftRecords, s.RightRecords, s.Matching.Duplicates, s.ResolvedTransactions,
		s.ExistingEntities, s.ProposedEntities, s.Warnings, s.RecordFailures)
}

// Progress tracks the progress of a run
type Progress struct {
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	CurrentStep        string        `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
}

// ProgressCallback is called to report run progress
type ProgressCallback func(*Progress)
