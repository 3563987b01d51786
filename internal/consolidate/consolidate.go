// Package consolidate merges every mention of one canonical entity into a
// single output record.
//
// Origin identifiers and roles are carried as one list of models.Reference
// pairs until the boundary, where SerializeReferences writes them as two
// order-correlated strings. Field values follow a fixed priority: the
// registry's existing value, then enriched columns, then raw columns, then
// the first value seen, then the configured default. A populated field is
// never overwritten by an empty one.
package consolidate

import (
	"sort"
	"strings"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/pkg/errors"
)

// Mention is one contribution to an entity: the record it came from and the
// role the entity played there
type Mention struct {
	Origin string
	Role   models.Role
	Record *models.RawRecord
}

// NewMention builds a mention from a record, using the record key as origin
func NewMention(record *models.RawRecord, role models.Role) Mention {
	return Mention{Origin: record.Key.String(), Role: role, Record: record}
}

// Consolidator merges mentions and transactions
type Consolidator struct {
	config *Config
}

// New creates a consolidator
func New(config *Config) *Consolidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Consolidator{config: config}
}

// Config returns the consolidator configuration
func (c *Consolidator) Config() *Config {
	return c.config
}

// Consolidate merges the mentions of entity, given in encounter order, into
// one canonical record. The entity's prior references come first. Every
// mention must belong to the entity's category; a subject mention never
// lands on a party entity.
func (c *Consolidator) Consolidate(entity *models.CanonicalEntity, mentions []Mention) (*models.CanonicalRecord, error) {
	if entity == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "consolidate", nil)
	}

	refs := make([]models.Reference, 0, len(entity.References)+len(mentions))
	refs = append(refs, entity.References...)

	for i, mention := range mentions {
		if !mention.Role.IsValid() {
			return nil, errors.ValidationError(errors.CodeOutOfRange, "role", mention.Role, nil).
				WithContext("entity", entity.Name).
				WithContext("position", i)
		}
		if mention.Role.Category() != entity.Category {
			return nil, errors.ValidationError(errors.CodeOutOfRange, "role", mention.Role, nil).
				WithContext("entity", entity.Name).
				WithContext("category", string(entity.Category)).
				WithSuggestion("subject and party mentions of the same name resolve to separate entities")
		}
		origin := strings.TrimSpace(mention.Origin)
		if origin == "" || strings.Contains(origin, strings.TrimSpace(Separator)) {
			return nil, errors.MalformedFieldError("origin", mention.Origin, "origin identifier is empty or contains the list separator").
				WithContext("entity", entity.Name)
		}
		refs = append(refs, models.Reference{Origin: origin, Role: mention.Role})
	}
	refs = dedupe(refs)

	originIDs, roles := SerializeReferences(refs)
	if n, m := len(splitList(originIDs)), len(splitList(roles)); n != m {
		return nil, errors.SequenceMismatchError(entity.Name, n, m)
	}

	fields, provenance := c.selectFields(entity, mentions)

	return &models.CanonicalRecord{
		EntityID:   entity.ID,
		Name:       entity.Name,
		Aliases:    append([]string(nil), entity.Aliases...),
		Category:   entity.Category,
		Status:     entity.Status,
		Fields:     fields,
		Provenance: provenance,
		References: refs,
		OriginIDs:  originIDs,
		Roles:      roles,
	}, nil
}

func (c *Consolidator) selectFields(entity *models.CanonicalEntity, mentions []Mention) (map[string]string, map[string]models.FieldSource) {
	fields := make(map[string]string)
	provenance := make(map[string]models.FieldSource)

	for _, name := range c.fieldNames(entity) {
		value, source := c.selectField(name, entity, mentions)
		if value == "" {
			continue
		}
		fields[name] = value
		provenance[name] = source
	}

	if len(fields) == 0 {
		return nil, nil
	}
	return fields, provenance
}

// selectField walks the priority tiers and returns the first non-empty value
func (c *Consolidator) selectField(name string, entity *models.CanonicalEntity, mentions []Mention) (string, models.FieldSource) {
	if v := strings.TrimSpace(entity.Metadata[name]); v != "" {
		return v, models.FieldSource{Tier: string(TierExisting)}
	}

	rule := c.rule(name)

	for _, m := range mentions {
		if m.Record == nil {
			continue
		}
		for _, column := range rule.Enriched {
			if v := strings.TrimSpace(m.Record.Field(column)); v != "" {
				return v, models.FieldSource{Tier: string(TierEnriched), Origin: m.Origin, Column: column}
			}
		}
		if c.config.AuthoritativeSource != "" && m.Record.Key.Source == c.config.AuthoritativeSource {
			if v := strings.TrimSpace(m.Record.Field(name)); v != "" {
				return v, models.FieldSource{Tier: string(TierEnriched), Origin: m.Origin, Column: name}
			}
		}
	}

	for _, m := range mentions {
		if m.Record == nil {
			continue
		}
		for _, column := range rule.Raw {
			if v := strings.TrimSpace(m.Record.Field(column)); v != "" {
				return v, models.FieldSource{Tier: string(TierRaw), Origin: m.Origin, Column: column}
			}
		}
	}

	for _, m := range mentions {
		if m.Record == nil {
			continue
		}
		if v := strings.TrimSpace(m.Record.Field(name)); v != "" {
			return v, models.FieldSource{Tier: string(TierFirstSeen), Origin: m.Origin, Column: name}
		}
	}

	if v := strings.TrimSpace(c.config.Defaults[name]); v != "" {
		return v, models.FieldSource{Tier: string(TierDefault)}
	}
	return "", models.FieldSource{}
}

func (c *Consolidator) rule(name string) FieldRule {
	for _, rule := range c.config.Fields {
		if rule.Name == name {
			return rule
		}
	}
	return FieldRule{Name: name}
}

// fieldNames returns every field a record may carry: configured rules,
// defaults and the entity's existing metadata, sorted
func (c *Consolidator) fieldNames(entity *models.CanonicalEntity) []string {
	set := make(map[string]bool)
	for _, rule := range c.config.Fields {
		set[rule.Name] = true
	}
	for name := range c.config.Defaults {
		set[name] = true
	}
	for name := range entity.Metadata {
		set[name] = true
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dedupe drops repeated (origin, role) pairs, keeping the first occurrence
func dedupe(refs []models.Reference) []models.Reference {
	seen := make(map[models.Reference]bool, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}
