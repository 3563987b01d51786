package models

import "fmt"

// Label is the audit classification of a candidate pair
type Label string

const (
	// LabelDuplicate marks the winning pair for both of its records
	LabelDuplicate Label = "duplicate"
	// LabelPossibleMatch marks a pair above threshold that lost the ranking
	// to a higher-scoring competitor for one of its records
	LabelPossibleMatch Label = "possible-match"
	// LabelDistinct marks a near miss kept for review
	LabelDistinct Label = "distinct"
)

// ComponentScores holds the per-component similarities behind a score
type ComponentScores struct {
	Subject float64 `json:"subject" yaml:"subject"`
	Date    float64 `json:"date" yaml:"date"`
	Party   float64 `json:"party" yaml:"party"`
}

// MatchCandidatePair is one scored pair in the audit trail
type MatchCandidatePair struct {
	Left       RecordKey       `json:"left" yaml:"left"`
	Right      RecordKey       `json:"right" yaml:"right"`
	Score      float64         `json:"score" yaml:"score"`
	Relation   string          `json:"relation" yaml:"relation"`
	Components ComponentScores `json:"components" yaml:"components"`
	Label      Label           `json:"label" yaml:"label"`
}

// String returns a string representation of the pair
func (p *MatchCandidatePair) String() string {
	return fmt.Sprintf("Pair{%s <-> %s, score: %.4f, label: %s}", p.Left, p.Right, p.Score, p.Label)
}
