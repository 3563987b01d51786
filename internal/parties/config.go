package parties

import (
	"fmt"
	"strings"
)

// DefaultSentinel is the canonical name standing in for an undisclosed lead
const DefaultSentinel = "Undisclosed"

// ParserConfig controls the party parser's rule cascade
type ParserConfig struct {
	// CoLeadCutoff is the largest unmarked comma list treated as jointly leading.
	// Longer lists get a synthetic sentinel lead.
	CoLeadCutoff int `json:"co_lead_cutoff" mapstructure:"co_lead_cutoff"`

	// MinNameLength discards split names shorter than this, with a warning
	MinNameLength int `json:"min_name_length" mapstructure:"min_name_length"`

	// Sentinel is the name given to placeholder and synthetic lead mentions
	Sentinel string `json:"sentinel" mapstructure:"sentinel"`

	// Placeholders are field values, compared case-insensitively, that mean
	// "no disclosed party"
	Placeholders []string `json:"placeholders" mapstructure:"placeholders"`
}

// DefaultParserConfig returns the parser configuration used unless overridden
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		CoLeadCutoff:  3,
		MinNameLength: 2,
		Sentinel:      DefaultSentinel,
		Placeholders: []string{
			"undisclosed", "not disclosed", "undisclosed investors", "n/a", "na",
			"none", "unknown", "tbd", "tba", "-",
		},
	}
}

// Validate checks if the parser configuration is valid
func (c *ParserConfig) Validate() error {
	if c.CoLeadCutoff < 1 {
		return fmt.Errorf("co-lead cutoff must be at least 1: %d", c.CoLeadCutoff)
	}
	if c.MinNameLength < 1 {
		return fmt.Errorf("minimum name length must be at least 1: %d", c.MinNameLength)
	}
	if strings.TrimSpace(c.Sentinel) == "" {
		return fmt.Errorf("sentinel name cannot be empty")
	}
	return nil
}

// Clone creates a deep copy of the parser configuration
func (c *ParserConfig) Clone() *ParserConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Placeholders = append([]string(nil), c.Placeholders...)
	return &clone
}
