// Package identity resolves free-text company names to canonical entities.
//
// A Registry is the append-only store of entities for one category. Reads run
// concurrently; creation and alias registration take the write lock, so two
// goroutines can never both create an entity for the same new name. Entities
// are retired, never deleted; only a proposal nothing references yet can be
// withdrawn.
//
// A Resolver matches a candidate name against a Registry: exact matches on
// any primary name or alias always win; otherwise fuzzy matching yields no
// match, a single match that needs confirmation, or an ambiguous set that is
// escalated for review.
package identity

import (
	"sort"
	"strings"
	"sync"

	"entity-resolution-service/internal/consolidate"
	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/normalize"
	"entity-resolution-service/pkg/errors"
)

// Registry is a concurrency-safe, append-only set of canonical entities
type Registry struct {
	category models.Category

	mu       sync.RWMutex
	entities map[int64]*models.CanonicalEntity
	names    map[string]int64
	version  uint64
	nextID   int64
}

// NewRegistry creates an empty registry for one category
func NewRegistry(category models.Category) *Registry {
	return &Registry{
		category: category,
		entities: make(map[int64]*models.CanonicalEntity),
		names:    make(map[string]int64),
		nextID:   1,
	}
}

// Category returns the category the registry scopes
func (r *Registry) Category() models.Category {
	return r.category
}

// Seed loads a known entity with its prior references. Entries without an ID
// are assigned the next free one. Every name must be unclaimed by other
// entities.
func (r *Registry) Seed(entry *models.RegistryEntry, refs []models.Reference) (*models.CanonicalEntity, error) {
	if err := entry.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "registry.name", entry.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := entry.ID
	if id == 0 {
		id = r.nextID
	}
	if _, exists := r.entities[id]; exists {
		return nil, errors.ValidationError(errors.CodeDuplicateRecord, "registry.id", id, nil)
	}

	entity := &models.CanonicalEntity{
		ID:       id,
		Name:     normalize.Clean(entry.Name),
		Category: r.category,
		Status:   models.StatusExisting,
		Retired:  entry.Retired,
		Metadata: copyMetadata(entry.Metadata),
	}
	for _, alias := range entry.Aliases {
		if clean := normalize.Clean(alias); clean != "" {
			entity.Aliases = append(entity.Aliases, clean)
		}
	}
	if err := r.claimNames(id, entity.Names()); err != nil {
		return nil, err
	}

	entity.References = dedupeReferences(nil, refs)
	r.entities[id] = entity
	if id >= r.nextID {
		r.nextID = id + 1
	}
	r.version++
	return entity.Clone(), nil
}

// Create registers a new proposed entity named name
func (r *Registry) Create(name string) (*models.CanonicalEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(name)
}

// CreateIfUnchanged registers a new entity only if the registry is still at
// version. Any intervening mutation yields a RegistryConflict error.
func (r *Registry) CreateIfUnchanged(name string, version uint64) (*models.CanonicalEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.version != version {
		return nil, errors.IdentityError(errors.CodeRegistryConflict, name, nil).
			WithContext("expected_version", version).
			WithContext("actual_version", r.version)
	}
	return r.create(name)
}

func (r *Registry) create(name string) (*models.CanonicalEntity, error) {
	clean := normalize.Clean(name)
	if normalize.Key(clean) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "name", name, nil)
	}

	id := r.nextID
	if err := r.claimNames(id, []string{clean}); err != nil {
		return nil, err
	}

	entity := &models.CanonicalEntity{
		ID:       id,
		Name:     clean,
		Category: r.category,
		Status:   models.StatusProposed,
	}
	r.entities[id] = entity
	r.nextID++
	r.version++
	return entity.Clone(), nil
}

// AddAlias records alias as another name of entity id. Adding a name the
// entity already carries is a no-op.
func (r *Registry) AddAlias(id int64, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return errors.IdentityError(errors.CodeUnknownEntity, alias, nil).WithContext("entity_id", id)
	}

	clean := normalize.Clean(alias)
	key := normalize.Key(clean)
	if key == "" {
		return errors.ValidationError(errors.CodeMissingField, "alias", alias, nil)
	}
	if owner, taken := r.names[key]; taken {
		if owner == id {
			return nil
		}
		return errors.IdentityError(errors.CodeAliasConflict, alias, nil).
			WithContext("entity_id", id).
			WithContext("owner_id", owner)
	}

	r.names[key] = id
	entity.Aliases = append(entity.Aliases, clean)
	r.version++
	return nil
}

// RemoveAlias drops alias from entity id and releases the name. The primary
// name cannot be removed.
func (r *Registry) RemoveAlias(id int64, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return errors.IdentityError(errors.CodeUnknownEntity, alias, nil).WithContext("entity_id", id)
	}

	key := normalize.Key(alias)
	for i, existing := range entity.Aliases {
		if normalize.Key(existing) != key {
			continue
		}
		entity.Aliases = append(entity.Aliases[:i:i], entity.Aliases[i+1:]...)
		if r.names[key] == id && normalize.Key(entity.Name) != key {
			delete(r.names, key)
		}
		r.version++
		return nil
	}
	return errors.IdentityError(errors.CodeUnknownEntity, alias, nil).
		WithContext("entity_id", id).
		WithSuggestion("the name is not an alias of this entity")
}

// Withdraw removes a proposed entity that has no references and releases its
// names. It undoes a Create whose record could not be completed.
func (r *Registry) Withdraw(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return errors.IdentityError(errors.CodeUnknownEntity, "", nil).WithContext("entity_id", id)
	}
	if entity.Status != models.StatusProposed || len(entity.References) > 0 {
		return errors.IdentityError(errors.CodeRegistryConflict, entity.Name, nil).
			WithContext("entity_id", id).
			WithSuggestion("retire entities that are existing or referenced")
	}

	for _, name := range entity.Names() {
		if key := normalize.Key(name); r.names[key] == id {
			delete(r.names, key)
		}
	}
	delete(r.entities, id)
	if id == r.nextID-1 {
		r.nextID = id
	}
	r.version++
	return nil
}

// AppendReferences adds refs to entity id in order. A pair identical to one
// already recorded is skipped.
func (r *Registry) AppendReferences(id int64, refs []models.Reference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return errors.IdentityError(errors.CodeUnknownEntity, "", nil).WithContext("entity_id", id)
	}
	entity.References = dedupeReferences(entity.References, refs)
	return nil
}

// Retire marks entity id as retired. Retired entities keep their names and
// still resolve exactly, but are no longer fuzzy candidates.
func (r *Registry) Retire(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return errors.IdentityError(errors.CodeUnknownEntity, "", nil).WithContext("entity_id", id)
	}
	if !entity.Retired {
		entity.Retired = true
		r.version++
	}
	return nil
}

// Get returns a copy of entity id
func (r *Registry) Get(id int64) (*models.CanonicalEntity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, ok := r.entities[id]
	if !ok {
		return nil, false
	}
	return entity.Clone(), true
}

// Lookup returns the entity whose primary name or alias equals name
// case-insensitively
func (r *Registry) Lookup(name string) (*models.CanonicalEntity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.names[normalize.Key(name)]
	if !ok {
		return nil, false
	}
	return r.entities[id].Clone(), true
}

// Entities returns copies of every entity ordered by ID
func (r *Registry) Entities() []*models.CanonicalEntity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entities := make([]*models.CanonicalEntity, 0, len(r.entities))
	for _, entity := range r.entities {
		entities = append(entities, entity.Clone())
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
	return entities
}

// Len returns the number of entities, retired ones included
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Version returns the mutation counter
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Entries returns the persisted form of every entity, references serialized
// to the two order-correlated strings
func (r *Registry) Entries() []*models.RegistryEntry {
	entities := r.Entities()
	entries := make([]*models.RegistryEntry, 0, len(entities))
	for _, entity := range entities {
		originIDs, roles := consolidate.SerializeReferences(entity.References)
		entries = append(entries, &models.RegistryEntry{
			ID:        entity.ID,
			Name:      entity.Name,
			Aliases:   append([]string(nil), entity.Aliases...),
			Category:  entity.Category,
			Retired:   entity.Retired,
			Metadata:  copyMetadata(entity.Metadata),
			OriginIDs: originIDs,
			Roles:     roles,
		})
	}
	return entries
}

// scan runs visit over every active entity under the read lock and reports
// the exact match for key, if any, together with the version observed.
// visit must not retain or modify the entity.
func (r *Registry) scan(key string, visit func(entity *models.CanonicalEntity)) (*models.CanonicalEntity, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.names[key]; ok {
		return r.entities[id].Clone(), r.version
	}
	if visit != nil {
		for _, entity := range r.entities {
			if !entity.Retired {
				visit(entity)
			}
		}
	}
	return nil, r.version
}

// claimNames reserves every name for id. Nothing is claimed if any name
// belongs to another entity. Callers hold the write lock.
func (r *Registry) claimNames(id int64, names []string) error {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := normalize.Key(name)
		if key == "" {
			continue
		}
		if owner, taken := r.names[key]; taken && owner != id {
			return errors.IdentityError(errors.CodeAliasConflict, name, nil).
				WithContext("entity_id", id).
				WithContext("owner_id", owner)
		}
		keys = append(keys, key)
	}
	for _, key := range keys {
		r.names[key] = id
	}
	return nil
}

func dedupeReferences(existing, refs []models.Reference) []models.Reference {
	seen := make(map[models.Reference]bool, len(existing)+len(refs))
	for _, ref := range existing {
		seen[ref] = true
	}
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		existing = append(existing, ref)
	}
	return existing
}

func copyMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(metadata))
	for k, v := range metadata {
		clone[strings.TrimSpace(k)] = v
	}
	return clone
}
