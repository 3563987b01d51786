package consolidate

import (
	"fmt"
	"strings"
)

// Tier names the priority level a consolidated field value came from
type Tier string

const (
	TierExisting  Tier = "existing"
	TierEnriched  Tier = "enriched"
	TierRaw       Tier = "raw"
	TierFirstSeen Tier = "first_seen"
	TierDefault   Tier = "default"
)

// FieldRule names the source columns that feed one consolidated field
type FieldRule struct {
	// Name is the consolidated field name. A record column of the same name
	// feeds the first-seen tier.
	Name string `json:"name" mapstructure:"name"`

	// Enriched columns are authoritative and always win over raw columns
	Enriched []string `json:"enriched" mapstructure:"enriched"`

	// Raw columns are the unprocessed source values
	Raw []string `json:"raw" mapstructure:"raw"`
}

// Config controls field selection during consolidation
type Config struct {
	Fields   []FieldRule       `json:"fields" mapstructure:"fields"`
	Defaults map[string]string `json:"defaults" mapstructure:"defaults"`

	// AuthoritativeSource is the ledger whose own values count as enriched
	AuthoritativeSource string `json:"authoritative_source" mapstructure:"authoritative_source"`
}

// DefaultConfig returns the consolidation configuration used unless overridden
func DefaultConfig() *Config {
	return &Config{
		Fields: []FieldRule{
			{Name: "country", Enriched: []string{"country_enriched"}, Raw: []string{"country_raw"}},
			{Name: "website", Enriched: []string{"website_enriched"}, Raw: []string{"website_raw"}},
			{Name: "ownership", Enriched: []string{"ownership_enriched"}},
		},
		Defaults: map[string]string{
			"ownership": "Private",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Fields))
	for _, rule := range c.Fields {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return fmt.Errorf("consolidation field rule has no name")
		}
		if seen[name] {
			return fmt.Errorf("consolidation field '%s' is configured twice", name)
		}
		seen[name] = true
	}
	for name := range c.Defaults {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("consolidation default has an empty field name")
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := &Config{
		Fields:              make([]FieldRule, len(c.Fields)),
		Defaults:            make(map[string]string, len(c.Defaults)),
		AuthoritativeSource: c.AuthoritativeSource,
	}
	for i, rule := range c.Fields {
		clone.Fields[i] = FieldRule{
			Name:     rule.Name,
			Enriched: append([]string(nil), rule.Enriched...),
			Raw:      append([]string(nil), rule.Raw...),
		}
	}
	for k, v := range c.Defaults {
		clone.Defaults[k] = v
	}
	return clone
}
