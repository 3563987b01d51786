package reconciler

import (
	"fmt"
	"runtime"

	"entity-resolution-service/internal/consolidate"
	"entity-resolution-service/internal/identity"
	"entity-resolution-service/internal/matcher"
	"entity-resolution-service/internal/parties"
	"entity-resolution-service/internal/signature"
)

// Config holds configuration for one batch run
type Config struct {
	Matching      *matcher.MatchingConfig  `mapstructure:"matching"`
	Identity      *identity.ResolverConfig `mapstructure:"identity"`
	Parties       *parties.ParserConfig    `mapstructure:"parties"`
	Signature     signature.BuilderConfig  `mapstructure:"signature"`
	Consolidation *consolidate.Config      `mapstructure:"consolidation"`
	Preprocessing *PreprocessingConfig     `mapstructure:"preprocessing"`

	// AuthoritativeSource is the ledger whose values win when a cross-ledger
	// duplicate pair is merged. Empty selects the left ledger.
	AuthoritativeSource string `mapstructure:"authoritative_source"`

	// DetectWithinLedger groups duplicates inside each ledger for review
	DetectWithinLedger bool `mapstructure:"detect_within_ledger"`

	// Workers bounds parallel party parsing and signature derivation
	Workers int `mapstructure:"workers"`
}

// DefaultConfig returns a default configuration for a batch run
func DefaultConfig() *Config {
	return &Config{
		Matching:           matcher.DefaultMatchingConfig(),
		Identity:           identity.DefaultResolverConfig(),
		Parties:            parties.DefaultParserConfig(),
		Consolidation:      consolidate.DefaultConfig(),
		Preprocessing:      DefaultPreprocessingConfig(),
		DetectWithinLedger: true,
		Workers:            runtime.NumCPU(),
	}
}

// Validate validates the configuration and every section in it
func (c *Config) Validate() error {
	if c.Matching == nil || c.Identity == nil || c.Parties == nil || c.Consolidation == nil {
		return fmt.Errorf("matching, identity, parties and consolidation sections are required")
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := c.Parties.Validate(); err != nil {
		return fmt.Errorf("parties: %w", err)
	}
	if err := c.Consolidation.Validate(); err != nil {
		return fmt.Errorf("consolidation: %w", err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Matching = c.Matching.Clone()
	clone.Identity = c.Identity.Clone()
	clone.Parties = c.Parties.Clone()
	clone.Consolidation = c.Consolidation.Clone()
	if c.Preprocessing != nil {
		preprocessing := *c.Preprocessing
		clone.Preprocessing = &preprocessing
	}
	return &clone
}
