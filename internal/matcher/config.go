// Package matcher scores transaction signatures against each other and flags
// duplicate pairs across two ledgers.
//
// Scoring is temporally weighted: the weights applied to the subject, date
// and party components depend on how far apart the two records are in time.
// Pairs from the same month lean on the subject name; pairs from the same
// year balance subject and party; pairs from different years are discounted
// across the board so they fall below the duplicate threshold even when the
// names coincide.
//
// The engine works in three stages:
//  1. Candidate selection, optionally pruned to the same year bucket
//  2. Parallel scoring of every candidate pair
//  3. Greedy one-to-one ranking of pairs at or above the threshold
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DuplicateThreshold = 0.75
//
//	engine := matcher.NewMatchingEngine(config)
//	engine.Load(leftSignatures, rightSignatures)
//
//	result, err := engine.Match(ctx)
package matcher

import (
	"fmt"
	"runtime"
)

// TemporalRelation describes how close two records are in time
type TemporalRelation int

const (
	// RelationSameMonth means same year and same month
	RelationSameMonth TemporalRelation = iota

	// RelationSameYear means same year, different month
	RelationSameYear

	// RelationDifferentYear covers different years and unknown dates
	RelationDifferentYear
)

// String returns the string representation of TemporalRelation
func (tr TemporalRelation) String() string {
	switch tr {
	case RelationSameMonth:
		return "same_month"
	case RelationSameYear:
		return "same_year"
	case RelationDifferentYear:
		return "different_year"
	default:
		return "unknown"
	}
}

// Algorithm selects the string similarity metric
type Algorithm string

const (
	// AlgorithmOSA is optimal string alignment, Damerau-Levenshtein restricted
	// to non-overlapping transpositions
	AlgorithmOSA Algorithm = "osa"

	// AlgorithmDamerau is unrestricted Damerau-Levenshtein
	AlgorithmDamerau Algorithm = "damerau"

	// AlgorithmJaroWinkler favours shared prefixes
	AlgorithmJaroWinkler Algorithm = "jaro_winkler"

	// AlgorithmLevenshtein is plain edit distance without transpositions
	AlgorithmLevenshtein Algorithm = "levenshtein"

	// AlgorithmRatio is the insert/delete ratio with substitutions costing two
	AlgorithmRatio Algorithm = "ratio"
)

// IsValid checks if the algorithm is supported
func (a Algorithm) IsValid() bool {
	switch a {
	case AlgorithmOSA, AlgorithmDamerau, AlgorithmJaroWinkler, AlgorithmLevenshtein, AlgorithmRatio:
		return true
	}
	return false
}

// ComponentWeights are the weights applied to the three signature components
type ComponentWeights struct {
	Subject float64 `json:"subject" mapstructure:"subject"`
	Date    float64 `json:"date" mapstructure:"date"`
	Party   float64 `json:"party" mapstructure:"party"`
}

// Sum returns the highest score the weights can produce
func (cw ComponentWeights) Sum() float64 {
	return cw.Subject + cw.Date + cw.Party
}

// Validate checks that every weight is within [0,1] and the sum does not
// exceed 1. The weights are not required to sum to 1.
func (cw ComponentWeights) Validate() error {
	for name, w := range map[string]float64{"subject": cw.Subject, "date": cw.Date, "party": cw.Party} {
		if w < 0.0 || w > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, w)
		}
	}
	if cw.Sum() > 1.0+1e-9 {
		return fmt.Errorf("weights must not sum above 1.0, got %f", cw.Sum())
	}
	return nil
}

// TemporalWeights is the weight table keyed by temporal relation
type TemporalWeights struct {
	SameMonth     ComponentWeights `json:"same_month" mapstructure:"same_month"`
	SameYear      ComponentWeights `json:"same_year" mapstructure:"same_year"`
	DifferentYear ComponentWeights `json:"different_year" mapstructure:"different_year"`
}

// For returns the weights for a relation
func (tw TemporalWeights) For(relation TemporalRelation) ComponentWeights {
	switch relation {
	case RelationSameMonth:
		return tw.SameMonth
	case RelationSameYear:
		return tw.SameYear
	default:
		return tw.DifferentYear
	}
}

// DefaultTemporalWeights returns the standard weight table
func DefaultTemporalWeights() TemporalWeights {
	return TemporalWeights{
		SameMonth:     ComponentWeights{Subject: 0.55, Date: 0.15, Party: 0.30},
		SameYear:      ComponentWeights{Subject: 0.40, Date: 0.20, Party: 0.40},
		DifferentYear: ComponentWeights{Subject: 0.10, Date: 0.10, Party: 0.10},
	}
}

// MatchingConfig holds configuration parameters for signature matching.
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): the standard 0.70 threshold
//   - StrictMatchingConfig(): fewer, surer duplicates
//   - RelaxedMatchingConfig(): exploratory runs with a wider audit trail
type MatchingConfig struct {
	// DuplicateThreshold is the score at or above which a pair is a
	// duplicate candidate
	DuplicateThreshold float64 `json:"duplicate_threshold" mapstructure:"duplicate_threshold"`

	// AuditFloor is the lowest score recorded in the audit trail as a
	// near-miss distinct pair
	AuditFloor float64 `json:"audit_floor" mapstructure:"audit_floor"`

	// Algorithm is the string similarity metric for the subject and party
	// components
	Algorithm Algorithm `json:"algorithm" mapstructure:"algorithm"`

	// Weights is the temporal weight table
	Weights TemporalWeights `json:"weights" mapstructure:"weights"`

	// Workers bounds the number of goroutines scoring pairs
	Workers int `json:"workers" mapstructure:"workers"`

	// PruneByYear skips pairs in different year buckets when no such pair
	// could reach the audit floor
	PruneByYear bool `json:"prune_by_year" mapstructure:"prune_by_year"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DuplicateThreshold: 0.70,
		AuditFloor:         0.50,
		Algorithm:          AlgorithmOSA,
		Weights:            DefaultTemporalWeights(),
		Workers:            runtime.NumCPU(),
		PruneByYear:        true,
	}
}

// StrictMatchingConfig returns a configuration for strict matching
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.DuplicateThreshold = 0.85
	config.AuditFloor = 0.70
	return config
}

// RelaxedMatchingConfig returns a configuration for relaxed matching
func RelaxedMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.DuplicateThreshold = 0.60
	config.AuditFloor = 0.30
	config.Algorithm = AlgorithmJaroWinkler
	config.PruneByYear = false
	return config
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.DuplicateThreshold <= 0.0 || mc.DuplicateThreshold > 1.0 {
		return fmt.Errorf("duplicate threshold must be in (0.0, 1.0]: %f", mc.DuplicateThreshold)
	}

	if mc.AuditFloor < 0.0 || mc.AuditFloor > mc.DuplicateThreshold {
		return fmt.Errorf("audit floor must be between 0.0 and the duplicate threshold: %f", mc.AuditFloor)
	}

	if !mc.Algorithm.IsValid() {
		return fmt.Errorf("unsupported similarity algorithm '%s'", mc.Algorithm)
	}

	if mc.Workers < 1 {
		return fmt.Errorf("workers must be positive: %d", mc.Workers)
	}

	for _, relation := range []TemporalRelation{RelationSameMonth, RelationSameYear, RelationDifferentYear} {
		if err := mc.Weights.For(relation).Validate(); err != nil {
			return fmt.Errorf("invalid %s weights: %w", relation, err)
		}
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// CanPruneDifferentYear reports whether pairs from different years can be
// skipped without losing anything the audit trail would record
func (mc *MatchingConfig) CanPruneDifferentYear() bool {
	return mc.PruneByYear && mc.Weights.DifferentYear.Sum() < mc.AuditFloor
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Threshold: %.2f, AuditFloor: %.2f, Algorithm: %s, Workers: %d, PruneByYear: %t}",
		mc.DuplicateThreshold, mc.AuditFloor, mc.Algorithm, mc.Workers, mc.PruneByYear)
}
