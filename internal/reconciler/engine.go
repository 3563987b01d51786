// Package reconciler drives one batch run over two ledgers and a registry.
//
// A run is a fixed sequence of steps:
//
//  1. validate the batch and preprocess both ledgers
//  2. parse party fields and derive signatures, in parallel across records
//  3. group duplicates inside each ledger (report only)
//  4. score and rank cross-ledger pairs
//  5. merge duplicate pairs into the resolved transaction set
//  6. seed the subject and party registries
//  7. resolve every subject and party name
//  8. consolidate the mentions of every touched entity
//  9. summarize
//
// Malformed fields and ambiguous names accumulate in the review report. A
// record whose resolution or consolidation fails is skipped and reported;
// the batch continues over the remainder.
//
// Example usage:
//
//	engine, err := reconciler.NewEngine(reconciler.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	engine.AddProgressCallback(func(p *reconciler.Progress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	result, err := engine.Process(ctx, &reconciler.Batch{Left: left, Right: right, Registry: entries})
package reconciler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"entity-resolution-service/internal/consolidate"
	"entity-resolution-service/internal/identity"
	"entity-resolution-service/internal/matcher"
	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/normalize"
	"entity-resolution-service/internal/parties"
	"entity-resolution-service/internal/signature"
	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

const totalSteps = 9

// Engine runs batches. It holds no per-run state and may process several
// batches one after another.
type Engine struct {
	config       *Config
	parser       *parties.Parser
	builder      *signature.Builder
	detector     *matcher.DuplicateDetector
	consolidator *consolidate.Consolidator
	preprocessor *DataPreprocessor
	logger       logger.Logger

	// Progress tracking
	progressCallbacks []ProgressCallback
	currentProgress   *Progress
	progressMutex     sync.RWMutex
}

// NewEngine creates an engine for config
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err).
			WithSuggestion("check the configuration file sections")
	}

	consolidation := config.Consolidation.Clone()
	if config.AuthoritativeSource != "" {
		consolidation.AuthoritativeSource = config.AuthoritativeSource
	}

	parser := parties.NewParser(config.Parties)
	engine := &Engine{
		config:          config,
		parser:          parser,
		builder:         signature.NewBuilder(parser, config.Signature),
		detector:        matcher.NewDuplicateDetector(config.Matching),
		consolidator:    consolidate.New(consolidation),
		preprocessor:    NewDataPreprocessor(config.Preprocessing),
		logger:          logger.GetGlobalLogger().WithComponent("reconciler"),
		currentProgress: &Progress{TotalSteps: totalSteps},
	}
	return engine, nil
}

// Config returns the engine configuration
func (e *Engine) Config() *Config {
	return e.config
}

// AddProgressCallback adds a progress callback function
func (e *Engine) AddProgressCallback(callback ProgressCallback) {
	e.progressCallbacks = append(e.progressCallbacks, callback)
}

// derived is the side table of one record: its parsed party fields, aligned
// with record.Parties, and its signature
type derived struct {
	record    *models.RawRecord
	parsed    []*parties.Result
	signature *signature.Signature
}

// run is the state of one batch
type run struct {
	id      string
	start   time.Time
	log     logger.Logger
	review  *ReviewReport
	summary *Summary

	left, right []*derived
	byKey       map[models.RecordKey]*derived

	registries map[models.Category]*identity.Registry
	resolvers  map[models.Category]*identity.Resolver

	// rejected holds entries whose prior references could not be parsed.
	// They are written back unchanged and never consolidated.
	rejected map[models.Category]map[int64]rejectedEntry

	mentions map[models.Category]map[int64][]consolidate.Mention
}

// Process runs every step over batch
func (e *Engine) Process(ctx context.Context, batch *Batch) (*Result, error) {
	r := &run{
		id:      uuid.NewString(),
		start:   time.Now(),
		summary: &Summary{ParseRules: make(map[parties.Rule]int)},
	}
	r.log = e.logger.WithField("run_id", r.id)
	r.review = NewReviewReport(r.id)

	e.initializeProgress(r.start)
	defer func() {
		e.updateProgress("Completed", totalSteps, time.Since(r.start))
	}()

	// Step 1: validate and preprocess
	e.updateProgress("Preprocessing records", 0, 0)
	if err := batch.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "batch", nil, err).
			WithSuggestion("provide at least one non-empty ledger")
	}
	r.log.WithFields(logger.Fields{
		"left_records":     len(batch.Left),
		"right_records":    len(batch.Right),
		"registry_entries": len(batch.Registry),
	}).Info("Starting batch run")

	left := e.preprocess(r, batch.Left)
	right := e.preprocess(r, batch.Right)
	r.summary.LeftRecords = len(left)
	r.summary.RightRecords = len(right)

	// Step 2: derive
	e.updateProgress("Parsing party fields", 1, time.Since(r.start))
	var err error
	if r.left, err = e.derive(ctx, left); err != nil {
		return nil, cancelled(err)
	}
	if r.right, err = e.derive(ctx, right); err != nil {
		return nil, cancelled(err)
	}
	r.byKey = make(map[models.RecordKey]*derived, len(r.left)+len(r.right))
	for _, d := range append(append([]*derived(nil), r.left...), r.right...) {
		r.byKey[d.record.Key] = d
		e.collectParseWarnings(r, d)
	}

	// Step 3: within-ledger duplicates
	e.updateProgress("Detecting duplicates within ledgers", 2, time.Since(r.start))
	var groups []matcher.DuplicateGroup
	if e.config.DetectWithinLedger {
		groups = append(groups, e.detector.DetectDuplicates(signatures(r.left)).Groups...)
		groups = append(groups, e.detector.DetectDuplicates(signatures(r.right)).Groups...)
	}
	r.summary.DuplicateGroups = len(groups)

	// Step 4: cross-ledger matching
	e.updateProgress("Matching ledgers", 3, time.Since(r.start))
	engine := matcher.NewMatchingEngine(e.config.Matching)
	engine.Load(signatures(r.left), signatures(r.right))
	matches, err := engine.Match(ctx)
	if err != nil {
		return nil, cancelled(err)
	}
	r.summary.Matching = matches.Summary
	contested := e.detector.FindContested(matches.Pairs)

	// Step 5: merge
	e.updateProgress("Merging duplicate transactions", 4, time.Since(r.start))
	transactions := e.mergeTransactions(r, matches)
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	// Step 6: registries
	e.updateProgress("Loading registry", 5, time.Since(r.start))
	e.seedRegistries(r, batch.Registry)

	// Step 7: resolve
	e.updateProgress("Resolving identities", 6, time.Since(r.start))
	for _, d := range transactions {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		e.resolveRecord(r, d)
	}

	// Step 8: consolidate
	e.updateProgress("Consolidating entities", 7, time.Since(r.start))
	records := e.consolidateAll(r)

	// Step 9: summarize
	e.updateProgress("Summarizing", 8, time.Since(r.start))
	result := &Result{
		RunID:           r.id,
		ProcessedAt:     r.start,
		Summary:         r.summary,
		Matches:         matches,
		DuplicateGroups: groups,
		Contested:       contested,
		Transactions:    make([]*models.RawRecord, 0, len(transactions)),
		Records:         records,
		Review:          r.review,
		Registry:        e.registryEntries(r),
	}
	for _, d := range transactions {
		result.Transactions = append(result.Transactions, d.record)
		if d.record.Amount.Valid {
			r.summary.TotalAmount = r.summary.TotalAmount.Add(d.record.Amount.Decimal)
		}
	}
	r.summary.ResolvedTransactions = len(transactions)
	r.summary.CanonicalRecords = len(records)
	r.review.Finalize()
	for _, issue := range r.review.issues {
		if issue.IsWarning() {
			r.summary.Warnings++
		}
	}
	r.summary.ProcessingDuration = time.Since(r.start)

	r.log.WithFields(logger.Fields{
		"duplicates":        matches.Summary.Duplicates,
		"canonical_records": len(records),
		"review_items":      r.review.Len(),
		"elapsed_time":      r.summary.ProcessingDuration,
	}).Info("Batch run completed")

	return result, nil
}

func (e *Engine) preprocess(r *run, records []*models.RawRecord) []*models.RawRecord {
	processed, issues, stats := e.preprocessor.PreprocessRecords(records)
	r.summary.RecordsRejected += stats.RecordsRemoved
	for _, issue := range issues {
		origin, _ := issue.Context["origin"].(string)
		kind := ReviewMalformedField
		if !issue.IsWarning() {
			kind = ReviewRecordFailure
		}
		r.review.AddIssue(kind, origin, issue)
	}
	return processed
}

// derive parses every party field and builds every signature. Records are
// independent, so they are spread over the configured workers; the output
// keeps input order.
func (e *Engine) derive(ctx context.Context, records []*models.RawRecord) ([]*derived, error) {
	out := make([]*derived, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, record := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.deriveRecord(record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) deriveRecord(record *models.RawRecord) *derived {
	d := &derived{record: record, parsed: make([]*parties.Result, len(record.Parties))}
	for i, field := range record.Parties {
		d.parsed[i] = e.parser.Parse(field.Value)
	}

	// A blank party field has no primary party, not the sentinel
	var sigParsed *parties.Result
	if field := e.builder.PartyField(record); strings.TrimSpace(field) != "" {
		for i, f := range record.Parties {
			if f.Value == field {
				sigParsed = d.parsed[i]
				break
			}
		}
	}
	d.signature = e.builder.BuildWithParties(record, sigParsed)
	return d
}

func (e *Engine) collectParseWarnings(r *run, d *derived) {
	origin := d.record.Key.String()
	for i, parsed := range d.parsed {
		r.summary.ParseRules[parsed.Rule]++
		for _, warning := range parsed.Warnings {
			r.review.AddIssue(ReviewMalformedField, origin, warning.WithContext("party_field", d.record.Parties[i].Name))
		}
	}
}

// mergeTransactions builds the resolved transaction set. Each duplicate pair
// becomes one record led by the authoritative ledger; unpaired records pass
// through. The set is returned in key order.
func (e *Engine) mergeTransactions(r *run, matches *matcher.MatchResult) []*derived {
	paired := make(map[models.RecordKey]bool, 2*len(matches.Duplicates))
	var resolved []*derived

	for _, pair := range matches.Duplicates {
		left, right := r.byKey[pair.Left], r.byKey[pair.Right]
		if left == nil || right == nil {
			continue
		}
		authoritative, other := left, right
		if e.config.AuthoritativeSource != "" && pair.Right.Source == e.config.AuthoritativeSource &&
			pair.Left.Source != e.config.AuthoritativeSource {
			authoritative, other = right, left
		}

		merged := e.consolidator.MergeTransactions(authoritative.record, other.record)
		resolved = append(resolved, e.deriveRecord(merged))
		paired[pair.Left] = true
		paired[pair.Right] = true
	}
	r.summary.MergedTransactions = len(resolved)

	for _, d := range append(append([]*derived(nil), r.left...), r.right...) {
		if !paired[d.record.Key] {
			resolved = append(resolved, d)
		}
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].record.Key.Less(resolved[j].record.Key)
	})
	return resolved
}

// seedRegistries loads the registry entries and makes sure the party
// registry knows the sentinel entity
func (e *Engine) seedRegistries(r *run, entries []*models.RegistryEntry) {
	r.registries = map[models.Category]*identity.Registry{
		models.CategorySubject: identity.NewRegistry(models.CategorySubject),
		models.CategoryParty:   identity.NewRegistry(models.CategoryParty),
	}
	r.rejected = map[models.Category]map[int64]rejectedEntry{}
	r.mentions = map[models.Category]map[int64][]consolidate.Mention{
		models.CategorySubject: {},
		models.CategoryParty:   {},
	}

	for _, entry := range entries {
		category := entry.Category
		if category == "" {
			category = models.CategoryParty
		}
		registry := r.registries[category]
		if registry == nil {
			r.review.AddIssue(ReviewRecordFailure, "registry",
				errors.ValidationError(errors.CodeOutOfRange, "category", entry.Category, nil).WithContext("name", entry.Name))
			continue
		}

		refs, refErr := consolidate.ParseReferences(entry.Name, entry.OriginIDs, entry.Roles)
		entity, err := registry.Seed(entry, refs)
		if err != nil {
			issue := errors.WrapIfNeeded(err, errors.CategoryIdentity, errors.CodeAliasConflict, "registry entry rejected")
			r.review.AddIssue(ReviewRecordFailure, "registry", issue.WithContext("name", entry.Name))
			continue
		}
		if refErr != nil {
			issue := errors.WrapIfNeeded(refErr, errors.CategoryConsolidation, errors.CodeSequenceMismatch, "prior references rejected")
			r.review.AddIssue(ReviewRecordFailure, "registry", issue.WithContext("name", entry.Name))
			if r.rejected[category] == nil {
				r.rejected[category] = map[int64]rejectedEntry{}
			}
			r.rejected[category][entity.ID] = rejectedEntry{entry: entry, err: issue}
		}
	}

	sentinel := e.parser.Sentinel()
	party := r.registries[models.CategoryParty]
	if _, ok := party.Lookup(sentinel); !ok {
		if _, err := party.Seed(&models.RegistryEntry{Name: sentinel, Category: models.CategoryParty}, nil); err != nil {
			r.log.WithError(err).Warn("Could not seed sentinel entity")
		}
	}

	r.resolvers = map[models.Category]*identity.Resolver{
		models.CategorySubject: identity.NewResolver(r.registries[models.CategorySubject], e.config.Identity),
		models.CategoryParty:   identity.NewResolver(party, e.config.Identity),
	}

	r.log.WithFields(logger.Fields{
		"subjects": r.registries[models.CategorySubject].Len(),
		"parties":  party.Len(),
	}).Info("Registry loaded")
}

type rejectedEntry struct {
	entry *models.RegistryEntry
	err   *errors.ReconcilerError
}

// pendingMention is a resolved mention not yet committed to its entity
type pendingMention struct {
	category models.Category
	entityID int64
	mention  consolidate.Mention
}

// recordScope collects the effects of resolving one record. Registry changes
// are undone and review items dropped when the record fails.
type recordScope struct {
	pending []pendingMention
	undo    []func() error
	commit  []func()
}

func (s *recordScope) rollback(r *run) {
	for i := len(s.undo) - 1; i >= 0; i-- {
		if err := s.undo[i](); err != nil {
			r.log.WithError(err).Warn("Could not undo registry change")
		}
	}
}

// resolveRecord resolves the subject and every party mention of one
// transaction. A party name without letters or digits is discarded with a
// warning. Any other failure rejects the whole record and leaves the
// registries as they were.
func (e *Engine) resolveRecord(r *run, d *derived) {
	origin := d.record.Key.String()

	if normalize.Alnum(d.record.Subject) == "" {
		e.recordFailure(r, origin, errors.ValidationError(errors.CodeMissingField, "subject", d.record.Subject, nil))
		return
	}

	scope := &recordScope{}
	resolve := func(name string, role models.Role) error {
		entity, err := e.resolveName(r, scope, origin, name, role)
		if err != nil || entity == nil {
			return err
		}
		// Record columns describe the subject; party mentions contribute
		// references only
		mention := consolidate.NewMention(d.record, role)
		if role != models.RoleSubject {
			mention.Record = nil
		}
		scope.pending = append(scope.pending, pendingMention{
			category: role.Category(),
			entityID: entity.ID,
			mention:  mention,
		})
		return nil
	}

	err := resolve(d.record.Subject, models.RoleSubject)
	for _, parsed := range d.parsed {
		for _, mention := range parsed.Mentions {
			if err != nil {
				break
			}
			if normalize.Alnum(mention.Name) == "" {
				issue := errors.MalformedFieldError("parties", mention.Name, "name has no letters or digits")
				scope.commit = append(scope.commit, func() {
					r.review.AddIssue(ReviewMalformedField, origin, issue.WithContext("party_field", parsed.Field))
				})
				continue
			}
			err = resolve(mention.Name, mention.Role)
		}
	}
	if err != nil {
		scope.rollback(r)
		e.recordFailure(r, origin, err)
		return
	}

	for _, apply := range scope.commit {
		apply()
	}
	for _, p := range scope.pending {
		r.mentions[p.category][p.entityID] = append(r.mentions[p.category][p.entityID], p.mention)
	}
}

// resolveName returns the entity a name belongs to. Ambiguous names return
// nil without error; they are left for review. Registry changes are recorded
// on scope so they can be undone.
func (e *Engine) resolveName(r *run, scope *recordScope, origin, name string, role models.Role) (*models.CanonicalEntity, error) {
	resolver := r.resolvers[role.Category()]
	registry := resolver.Registry()
	res := resolver.Resolve(name)

	propose := func() (*models.CanonicalEntity, error) {
		entity, created, err := resolver.Propose(name)
		if err != nil {
			return nil, err
		}
		if created {
			scope.undo = append(scope.undo, func() error { return registry.Withdraw(entity.ID) })
		}
		return entity, nil
	}

	switch res.Outcome {
	case identity.OutcomeAmbiguous:
		scope.commit = append(scope.commit, func() {
			r.summary.AmbiguousMentions++
			r.review.AddAmbiguous(origin, role, res)
		})
		return nil, nil

	case identity.OutcomeResolved:
		if res.Exact {
			return res.Entity, nil
		}
		if resolver.IsConfirmed(res) {
			entity, err := resolver.Confirm(res, name)
			if err != nil {
				return nil, err
			}
			scope.undo = append(scope.undo, func() error { return registry.RemoveAlias(entity.ID, name) })
			scope.commit = append(scope.commit, func() { r.summary.ConfirmedAliases++ })
			return entity, nil
		}
		entity, err := propose()
		if err != nil {
			return nil, err
		}
		scope.commit = append(scope.commit, func() { r.review.AddConfirmation(origin, role, res, entity) })
		return entity, nil

	default:
		return propose()
	}
}

func (e *Engine) recordFailure(r *run, origin string, err error) {
	issue := errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "record processing failed")
	r.summary.RecordFailures++
	r.review.AddIssue(ReviewRecordFailure, origin, issue)
	r.log.WithError(issue).WithField("origin", origin).Warn("Record skipped")
}

// consolidateAll merges the mentions of every touched entity and appends the
// new references to the registry
func (e *Engine) consolidateAll(r *run) []*models.CanonicalRecord {
	var records []*models.CanonicalRecord

	for _, category := range []models.Category{models.CategorySubject, models.CategoryParty} {
		registry := r.registries[category]
		byEntity := r.mentions[category]

		ids := make([]int64, 0, len(byEntity))
		for id := range byEntity {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			mentions := byEntity[id]
			if rejected, ok := r.rejected[category][id]; ok {
				e.recordFailure(r, mentions[0].Origin, rejected.err)
				continue
			}

			entity, ok := registry.Get(id)
			if !ok {
				continue
			}
			record, err := e.consolidator.Consolidate(entity, mentions)
			if err != nil {
				e.recordFailure(r, mentions[0].Origin, err)
				continue
			}

			refs := make([]models.Reference, 0, len(mentions))
			for _, m := range mentions {
				refs = append(refs, models.Reference{Origin: m.Origin, Role: m.Role})
			}
			if err := registry.AppendReferences(id, refs); err != nil {
				e.recordFailure(r, mentions[0].Origin, err)
				continue
			}

			if record.Status == models.StatusExisting {
				r.summary.ExistingEntities++
			} else {
				r.summary.ProposedEntities++
			}
			records = append(records, record)
		}
	}
	return records
}

// registryEntries renders both registries for write-back. Rejected entries
// keep their original reference strings.
func (e *Engine) registryEntries(r *run) []*models.RegistryEntry {
	var entries []*models.RegistryEntry
	for _, category := range []models.Category{models.CategorySubject, models.CategoryParty} {
		for _, entry := range r.registries[category].Entries() {
			if rejected, ok := r.rejected[category][entry.ID]; ok {
				entry.OriginIDs = rejected.entry.OriginIDs
				entry.Roles = rejected.entry.Roles
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

func signatures(records []*derived) []*signature.Signature {
	sigs := make([]*signature.Signature, len(records))
	for i, d := range records {
		sigs[i] = d.signature
	}
	return sigs
}

func cancelled(err error) error {
	if errors.IsReconcilerError(err) {
		return err
	}
	return errors.InternalError(errors.CodeCancelled, "batch run", err)
}

// Helper methods for progress tracking

func (e *Engine) initializeProgress(start time.Time) {
	e.progressMutex.Lock()
	defer e.progressMutex.Unlock()

	e.currentProgress = &Progress{
		TotalSteps: totalSteps,
		StartTime:  start,
	}
}

func (e *Engine) updateProgress(step string, completed int, elapsed time.Duration) {
	e.progressMutex.Lock()
	defer e.progressMutex.Unlock()

	e.currentProgress.CurrentStep = step
	e.currentProgress.CompletedSteps = completed
	e.currentProgress.ElapsedTime = elapsed
	e.currentProgress.PercentComplete = float64(completed) / float64(e.currentProgress.TotalSteps) * 100

	// Estimate remaining time
	if completed > 0 && completed < e.currentProgress.TotalSteps {
		avgTimePerStep := elapsed / time.Duration(completed)
		remainingSteps := e.currentProgress.TotalSteps - completed
		e.currentProgress.EstimatedRemaining = avgTimePerStep * time.Duration(remainingSteps)
	}

	snapshot := *e.currentProgress
	for _, callback := range e.progressCallbacks {
		callback(&snapshot)
	}
}
