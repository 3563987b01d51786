package models

import (
	"fmt"
	"strings"
)

// Role is the part a named entity plays in a transaction
type Role string

const (
	// RolePrimary is a lead party
	RolePrimary Role = "lead"
	// RoleSecondary is a participating, non-lead party
	RoleSecondary Role = "participant"
	// RoleSubject is the transaction's subject (the target)
	RoleSubject Role = "target"
)

// String returns the string representation of Role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the known roles
func (r Role) IsValid() bool {
	return r == RolePrimary || r == RoleSecondary || r == RoleSubject
}

// Category returns the identity scope the role resolves in
func (r Role) Category() Category {
	if r == RoleSubject {
		return CategorySubject
	}
	return CategoryParty
}

// ParseRole parses a role string case-insensitively
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lead", "primary":
		return RolePrimary, nil
	case "participant", "secondary":
		return RoleSecondary, nil
	case "target", "subject":
		return RoleSubject, nil
	default:
		return "", fmt.Errorf("invalid role '%s': must be lead, participant or target", s)
	}
}

// Category scopes identity resolution. The same name seen as a subject and as
// a party resolves to two separate entities.
type Category string

const (
	CategorySubject Category = "subject"
	CategoryParty   Category = "party"
)

// IsValid checks if the category is known
func (c Category) IsValid() bool {
	return c == CategorySubject || c == CategoryParty
}

// PartyMention is one name parsed out of a party field
type PartyMention struct {
	Name      string `json:"name" yaml:"name"`
	Role      Role   `json:"role" yaml:"role"`
	Ordinal   int    `json:"ordinal" yaml:"ordinal"`
	Synthetic bool   `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
}

// Reference ties an entity back to the record that mentioned it and the role
// it played there. Identifier and role travel together so the two can never
// drift apart.
type Reference struct {
	Origin string `json:"origin" yaml:"origin"`
	Role   Role   `json:"role" yaml:"role"`
}

// EntityStatus distinguishes registry-known identities from new proposals
type EntityStatus string

const (
	StatusExisting EntityStatus = "resolved_existing"
	StatusProposed EntityStatus = "newly_proposed"
)

// CanonicalEntity is a resolved company identity
type CanonicalEntity struct {
	ID         int64             `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Aliases    []string          `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Category   Category          `json:"category" yaml:"category"`
	Status     EntityStatus      `json:"status" yaml:"status"`
	Retired    bool              `json:"retired,omitempty" yaml:"retired,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	References []Reference       `json:"references,omitempty" yaml:"references,omitempty"`
}

// Names returns the primary name followed by every alias
func (e *CanonicalEntity) Names() []string {
	names := make([]string, 0, len(e.Aliases)+1)
	names = append(names, e.Name)
	return append(names, e.Aliases...)
}

// Clone returns a deep copy of the entity
func (e *CanonicalEntity) Clone() *CanonicalEntity {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Aliases = append([]string(nil), e.Aliases...)
	clone.References = append([]Reference(nil), e.References...)
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// FieldSource names where a consolidated field value came from
type FieldSource struct {
	Tier   string `json:"tier" yaml:"tier"`
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
}

// CanonicalRecord is the consolidated output for one entity. OriginIDs and
// Roles are the boundary serialization of References.
type CanonicalRecord struct {
	EntityID   int64                  `json:"entity_id" yaml:"entity_id"`
	Name       string                 `json:"name" yaml:"name"`
	Aliases    []string               `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Category   Category               `json:"category" yaml:"category"`
	Status     EntityStatus           `json:"status" yaml:"status"`
	Fields     map[string]string      `json:"fields,omitempty" yaml:"fields,omitempty"`
	Provenance map[string]FieldSource `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	References []Reference            `json:"-" yaml:"-"`
	OriginIDs  string                 `json:"origin_ids" yaml:"origin_ids"`
	Roles      string                 `json:"roles" yaml:"roles"`
}

// RegistryEntry is the persisted shape of a CanonicalEntity. Prior references
// arrive as the two order-correlated strings written by a previous run.
type RegistryEntry struct {
	ID        int64             `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Aliases   []string          `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Category  Category          `json:"category" yaml:"category"`
	Retired   bool              `json:"retired,omitempty" yaml:"retired,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	OriginIDs string            `json:"origin_ids,omitempty" yaml:"origin_ids,omitempty"`
	Roles     string            `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// Validate performs basic validation on the entry
func (e *RegistryEntry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("registry entry %d has no name", e.ID)
	}
	if e.ID < 0 {
		return fmt.Errorf("registry entry '%s' has negative id %d", e.Name, e.ID)
	}
	if e.Category != "" && !e.Category.IsValid() {
		return fmt.Errorf("registry entry '%s' has invalid category '%s'", e.Name, e.Category)
	}
	return nil
}
