package identity

import (
	"fmt"

	"entity-resolution-service/internal/matcher"
	"entity-resolution-service/internal/normalize"
)

// ResolverConfig holds the thresholds and vocabulary of the identity resolver
type ResolverConfig struct {
	// FuzzyThreshold is the overall similarity a multi-word candidate needs
	FuzzyThreshold float64 `json:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`

	// SingleWordThreshold is the stricter similarity a single-word candidate
	// needs against an entity's significant core
	SingleWordThreshold float64 `json:"single_word_threshold" mapstructure:"single_word_threshold"`

	// SingleWordCoverage is the share of an entity name's compact length a
	// single-word candidate must cover, so a bare generic word does not match
	// a longer name through its significant core alone
	SingleWordCoverage float64 `json:"single_word_coverage" mapstructure:"single_word_coverage"`

	// FirstWordThreshold is the similarity the first significant words of
	// candidate and entity must reach before overall similarity is considered
	FirstWordThreshold float64 `json:"first_word_threshold" mapstructure:"first_word_threshold"`

	// MinFuzzyLength disables fuzzy matching for names whose compact form is
	// shorter than this
	MinFuzzyLength int `json:"min_fuzzy_length" mapstructure:"min_fuzzy_length"`

	// StopWords are generic business words skipped when finding the first
	// significant word
	StopWords []string `json:"stop_words" mapstructure:"stop_words"`

	// Algorithm is the string similarity metric
	Algorithm matcher.Algorithm `json:"algorithm" mapstructure:"algorithm"`

	// AutoConfirm merges single fuzzy matches as aliases without review
	AutoConfirm bool `json:"auto_confirm" mapstructure:"auto_confirm"`

	// Confirmations are reviewed merges: candidate name to entity ID
	Confirmations map[string]int64 `json:"confirmations" mapstructure:"confirmations"`
}

// DefaultResolverConfig returns the resolver configuration used unless overridden
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{
		FuzzyThreshold:      0.89,
		SingleWordThreshold: 0.95,
		SingleWordCoverage:  0.6,
		FirstWordThreshold:  0.89,
		MinFuzzyLength:      4,
		StopWords: []string{
			"the", "a", "an", "and", "of",
			"ventures", "venture", "capital", "partners", "group", "holdings", "holding",
			"games", "game", "studio", "studios", "entertainment", "interactive",
			"fund", "investments", "investment", "ltd", "limited", "inc", "llc", "ab", "oy",
			"gmbh", "sa", "plc", "co", "corp", "corporation", "company",
		},
		Algorithm:     matcher.AlgorithmOSA,
		Confirmations: map[string]int64{},
	}
}

// Validate checks if the resolver configuration is valid
func (c *ResolverConfig) Validate() error {
	for name, v := range map[string]float64{
		"fuzzy threshold":       c.FuzzyThreshold,
		"single word threshold": c.SingleWordThreshold,
		"first word threshold":  c.FirstWordThreshold,
		"single word coverage":  c.SingleWordCoverage,
	} {
		if v <= 0.0 || v > 1.0 {
			return fmt.Errorf("%s must be in (0.0, 1.0]: %f", name, v)
		}
	}
	if c.SingleWordThreshold < c.FuzzyThreshold {
		return fmt.Errorf("single word threshold %.2f must not be below fuzzy threshold %.2f",
			c.SingleWordThreshold, c.FuzzyThreshold)
	}
	if c.MinFuzzyLength < 0 {
		return fmt.Errorf("minimum fuzzy length cannot be negative: %d", c.MinFuzzyLength)
	}
	if !c.Algorithm.IsValid() {
		return fmt.Errorf("unsupported similarity algorithm '%s'", c.Algorithm)
	}
	if _, err := confirmationIndex(c.Confirmations); err != nil {
		return err
	}
	return nil
}

// confirmationIndex keys confirmations by normalized name. Two spellings of
// one name must confirm the same entity.
func confirmationIndex(confirmations map[string]int64) (map[string]int64, error) {
	index := make(map[string]int64, len(confirmations))
	for name, id := range confirmations {
		key := normalize.Key(name)
		if key == "" {
			return nil, fmt.Errorf("confirmation name cannot be empty: %q", name)
		}
		if id <= 0 {
			return nil, fmt.Errorf("confirmation for %q needs a positive entity ID: %d", name, id)
		}
		if other, ok := index[key]; ok && other != id {
			return nil, fmt.Errorf("conflicting confirmations for %q: entities %d and %d", key, min(id, other), max(id, other))
		}
		index[key] = id
	}
	return index, nil
}

// Clone creates a deep copy of the resolver configuration
func (c *ResolverConfig) Clone() *ResolverConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.StopWords = append([]string(nil), c.StopWords...)
	clone.Confirmations = make(map[string]int64, len(c.Confirmations))
	for name, id := range c.Confirmations {
		clone.Confirmations[name] = id
	}
	return &clone
}
