package identity

import (
	"sort"

	"entity-resolution-service/internal/matcher"
	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/normalize"
	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

// proposeAttempts bounds how often Propose re-resolves after a concurrent
// registry change
const proposeAttempts = 2

// Outcome is the result class of a resolution
type Outcome int

const (
	OutcomeNoMatch Outcome = iota
	OutcomeResolved
	OutcomeAmbiguous
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// Candidate is one entity a fuzzy match found, with its best score over all
// of the entity's names
type Candidate struct {
	Entity *models.CanonicalEntity `json:"entity"`
	Score  float64                 `json:"score"`
}

// Resolution is the outcome of resolving one candidate name
type Resolution struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"-"`

	// Entity is set when Outcome is OutcomeResolved
	Entity *models.CanonicalEntity `json:"entity,omitempty"`
	Score  float64                 `json:"score"`

	// Exact reports a case-insensitive match on a primary name or alias
	Exact bool `json:"exact"`

	// RequiresConfirmation is set on single fuzzy matches. The name must be
	// confirmed before it is merged as an alias.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// Candidates lists every fuzzy match, best first
	Candidates []Candidate `json:"candidates,omitempty"`

	// Version is the registry version the resolution was computed against
	Version uint64 `json:"-"`
}

// Resolver resolves names against one registry
type Resolver struct {
	registry      *Registry
	config        *ResolverConfig
	stop          map[string]bool
	confirmations map[string]int64
	log           logger.Logger
}

// NewResolver creates a resolver over registry. Conflicting confirmations
// are rejected by ResolverConfig.Validate; a resolver built from an
// unvalidated config ignores every confirmed name that conflicts.
func NewResolver(registry *Registry, config *ResolverConfig) *Resolver {
	if config == nil {
		config = DefaultResolverConfig()
	}

	stop := make(map[string]bool, len(config.StopWords))
	for _, word := range config.StopWords {
		stop[normalize.Key(word)] = true
	}

	log := logger.GetGlobalLogger().WithComponent("identity").
		WithField("category", string(registry.Category()))

	confirmations, err := confirmationIndex(config.Confirmations)
	if err != nil {
		log.WithError(err).Warn("Ignoring invalid confirmations")
		confirmations = consistentConfirmations(config.Confirmations)
	}

	return &Resolver{
		registry:      registry,
		config:        config,
		stop:          stop,
		confirmations: confirmations,
		log:           log,
	}
}

// Registry returns the registry the resolver reads and writes
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolve matches name against the registry. An exact match always wins.
// Otherwise every active entity is scored and the outcome depends on how many
// pass the thresholds: none, exactly one (which needs confirmation), or
// several (which are never guessed between).
func (r *Resolver) Resolve(name string) *Resolution {
	res := &Resolution{Name: name}

	key := normalize.Key(name)
	if key == "" {
		res.Version = r.registry.Version()
		return res
	}

	form := r.newNameForm(name)
	var candidates []Candidate

	var visit func(*models.CanonicalEntity)
	if form.fuzzy {
		visit = func(entity *models.CanonicalEntity) {
			if score, ok := r.scoreEntity(form, entity); ok {
				candidates = append(candidates, Candidate{Entity: entity.Clone(), Score: score})
			}
		}
	}

	exact, version := r.registry.scan(key, visit)
	res.Version = version

	if exact != nil {
		res.Outcome = OutcomeResolved
		res.Entity = exact
		res.Score = 1.0
		res.Exact = true
		return res
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Entity.ID < candidates[j].Entity.ID
	})
	res.Candidates = candidates

	switch len(candidates) {
	case 0:
		res.Outcome = OutcomeNoMatch
	case 1:
		res.Outcome = OutcomeResolved
		res.Entity = candidates[0].Entity
		res.Score = candidates[0].Score
		res.RequiresConfirmation = true
	default:
		res.Outcome = OutcomeAmbiguous
		r.log.WithFields(logger.Fields{
			"name":       name,
			"candidates": len(candidates),
		}).Debug("Ambiguous identity escalated")
	}
	return res
}

// Propose returns the entity name exactly resolves to, or creates one. A
// creation that races with another registry change is re-resolved once; a
// second conflict is returned as a RegistryConflict error.
func (r *Resolver) Propose(name string) (*models.CanonicalEntity, bool, error) {
	for attempt := 1; attempt <= proposeAttempts; attempt++ {
		res := r.Resolve(name)
		if res.Exact {
			return res.Entity, false, nil
		}

		entity, err := r.registry.CreateIfUnchanged(name, res.Version)
		if err == nil {
			r.log.WithFields(logger.Fields{
				"entity_id": entity.ID,
				"name":      entity.Name,
			}).Debug("Proposed new entity")
			return entity, true, nil
		}
		if !errors.HasCode(err, errors.CodeRegistryConflict) {
			return nil, false, err
		}
		r.log.WithField("name", name).WithField("attempt", attempt).Debug("Registry changed during proposal")
	}
	return nil, false, errors.IdentityError(errors.CodeRegistryConflict, name, nil).
		WithContext("attempts", proposeAttempts)
}

// IsConfirmed reports whether merging name into the resolved entity has been
// approved, either by a configured confirmation or by auto-confirm
func (r *Resolver) IsConfirmed(res *Resolution) bool {
	if res == nil || res.Outcome != OutcomeResolved || res.Entity == nil {
		return false
	}
	if res.Exact {
		return true
	}
	if id, ok := r.lookupConfirmation(res.Name); ok {
		return id == res.Entity.ID
	}
	return r.config.AutoConfirm
}

// Confirm merges name into the entity of a single fuzzy resolution as a new
// alias and returns the updated entity
func (r *Resolver) Confirm(res *Resolution, name string) (*models.CanonicalEntity, error) {
	if res == nil || res.Outcome != OutcomeResolved || res.Entity == nil {
		return nil, errors.IdentityError(errors.CodeUnknownEntity, name, nil).
			WithSuggestion("only a resolution with exactly one match can be confirmed")
	}
	if !res.Exact {
		if err := r.registry.AddAlias(res.Entity.ID, name); err != nil {
			return nil, err
		}
		r.log.WithFields(logger.Fields{
			"entity_id": res.Entity.ID,
			"alias":     name,
			"score":     res.Score,
		}).Info("Confirmed alias")
	}

	entity, ok := r.registry.Get(res.Entity.ID)
	if !ok {
		return nil, errors.IdentityError(errors.CodeUnknownEntity, name, nil).WithContext("entity_id", res.Entity.ID)
	}
	return entity, nil
}

func (r *Resolver) lookupConfirmation(name string) (int64, bool) {
	id, ok := r.confirmations[normalize.Key(name)]
	return id, ok
}

// consistentConfirmations keeps the confirmed names whose spellings all
// agree on one entity
func consistentConfirmations(confirmations map[string]int64) map[string]int64 {
	index := make(map[string]int64, len(confirmations))
	conflicted := make(map[string]bool)
	for name, id := range confirmations {
		key := normalize.Key(name)
		if key == "" || id <= 0 {
			continue
		}
		if other, ok := index[key]; ok && other != id {
			conflicted[key] = true
		}
		index[key] = id
	}
	for key := range conflicted {
		delete(index, key)
	}
	return index
}

// nameForm is the precomputed comparison form of a candidate name
type nameForm struct {
	compact string
	first   string
	single  bool
	fuzzy   bool
}

func (r *Resolver) newNameForm(name string) nameForm {
	tokens := normalize.Tokens(name)
	compact := normalize.Compact(name)
	return nameForm{
		compact: compact,
		first:   r.firstSignificant(tokens),
		single:  len(tokens) == 1,
		fuzzy:   len(compact) >= r.config.MinFuzzyLength && len(tokens) > 0,
	}
}

// scoreEntity returns the best score of candidate against any of the entity's
// names that passes the thresholds
func (r *Resolver) scoreEntity(p nameForm, entity *models.CanonicalEntity) (float64, bool) {
	best, matched := 0.0, false
	for _, name := range entity.Names() {
		tokens := normalize.Tokens(name)
		if len(tokens) == 0 {
			continue
		}

		first := r.firstSignificant(tokens)
		if matcher.Similarity(p.first, first, r.config.Algorithm) < r.config.FirstWordThreshold {
			continue
		}

		var score float64
		if p.single {
			compact := normalize.Compact(name)
			if float64(len(p.compact)) < r.config.SingleWordCoverage*float64(len(compact)) {
				continue
			}
			score = matcher.Similarity(p.compact, r.core(tokens), r.config.Algorithm)
			if score < r.config.SingleWordThreshold {
				continue
			}
		} else {
			score = matcher.Similarity(p.compact, normalize.Compact(name), r.config.Algorithm)
			if score < r.config.FuzzyThreshold {
				continue
			}
		}

		if score > best {
			best = score
		}
		matched = true
	}
	return best, matched
}

// firstSignificant returns the first token not on the stop list, or the first
// token when all are stop words
func (r *Resolver) firstSignificant(tokens []string) string {
	for _, token := range tokens {
		if !r.stop[token] {
			return token
		}
	}
	if len(tokens) > 0 {
		return tokens[0]
	}
	return ""
}

// core joins the significant tokens of a name, falling back to all of them
func (r *Resolver) core(tokens []string) string {
	var core string
	for _, token := range tokens {
		if !r.stop[token] {
			core += token
		}
	}
	if core == "" {
		for _, token := range tokens {
			core += token
		}
	}
	return core
}
