package reconciler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-resolution-service/internal/consolidate"
	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/parties"
	"entity-resolution-service/pkg/errors"
)

func record(source, id, subject, date, investors string) *models.RawRecord {
	r := &models.RawRecord{
		Key:     models.RecordKey{Source: source, ID: id},
		Subject: subject,
	}
	if date != "" {
		r.Date, _ = time.Parse("2006-01-02", date)
	}
	if investors != "" {
		r.Parties = []models.PartyField{{Name: "investors", Value: investors}}
	}
	return r
}

func testBatch() *Batch {
	c1 := record("crunch", "c1", "Remedy Entertainment", "2021-03-10", "Tencent (lead), Accel")
	c1.Amount = decimal.NewNullDecimal(decimal.NewFromInt(100))
	c1.Fields = map[string]string{"country_raw": "Finland"}

	p1 := record("pitch", "p1", "Remedy Entertainment", "2021-03-15", "Tencent (lead), Accel")
	p1.Fields = map[string]string{"website_enriched": "remedygames.com"}

	return &Batch{
		Left: []*models.RawRecord{
			record("crunch", "c2", "Supercell", "2020-05-01", "Undisclosed"),
			c1,
		},
		Right: []*models.RawRecord{
			p1,
			record("pitch", "p2", "Rovio", "2019-01-01", "unknown"),
		},
		Registry: []*models.RegistryEntry{
			{ID: 1, Name: "Remedy Entertainment", Category: models.CategorySubject, OriginIDs: "old:1", Roles: "target"},
			{ID: 10, Name: "Tencent Holdings", Aliases: []string{"Tencent"}, Category: models.CategoryParty},
		},
	}
}

func newTestEngine(t *testing.T, configure ...func(*Config)) *Engine {
	t.Helper()
	config := DefaultConfig()
	config.Workers = 2
	for _, fn := range configure {
		fn(config)
	}
	engine, err := NewEngine(config)
	require.NoError(t, err)
	return engine
}

func recordByID(records []*models.CanonicalRecord, category models.Category, id int64) *models.CanonicalRecord {
	for _, r := range records {
		if r.Category == category && r.EntityID == id {
			return r
		}
	}
	return nil
}

func TestEngineProcess(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Process(context.Background(), testBatch())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, result.RunID, result.Review.RunID)

	// one cross-ledger duplicate, merged under the left key
	require.Len(t, result.Matches.Duplicates, 1)
	assert.Equal(t, models.RecordKey{Source: "crunch", ID: "c1"}, result.Matches.Duplicates[0].Left)
	assert.Equal(t, models.RecordKey{Source: "pitch", ID: "p1"}, result.Matches.Duplicates[0].Right)

	require.Len(t, result.Transactions, 3)
	assert.Equal(t, "crunch:c1", result.Transactions[0].Key.String())
	assert.Equal(t, "pitch:p1", result.Transactions[0].Fields["merged_from"])
	assert.Equal(t, "crunch:c2", result.Transactions[1].Key.String())
	assert.Equal(t, "pitch:p2", result.Transactions[2].Key.String())

	summary := result.Summary
	assert.Equal(t, 2, summary.LeftRecords)
	assert.Equal(t, 2, summary.RightRecords)
	assert.Equal(t, 1, summary.MergedTransactions)
	assert.Equal(t, 3, summary.ResolvedTransactions)
	assert.Equal(t, 3, summary.ExistingEntities)
	assert.Equal(t, 3, summary.ProposedEntities)
	assert.Equal(t, 6, summary.CanonicalRecords)
	assert.Equal(t, 0, summary.RecordFailures)
	assert.True(t, decimal.NewFromInt(100).Equal(summary.TotalAmount))
	assert.Equal(t, 2, summary.ParseRules[parties.RuleLeadMarker])
	assert.Equal(t, 2, summary.ParseRules[parties.RulePlaceholder])

	// subjects first, each category by entity ID
	var order []string
	for _, r := range result.Records {
		order = append(order, string(r.Category)+":"+r.Name)
	}
	assert.Equal(t, []string{
		"subject:Remedy Entertainment", "subject:Supercell", "subject:Rovio",
		"party:Tencent Holdings", "party:Undisclosed", "party:Accel",
	}, order)

	remedy := recordByID(result.Records, models.CategorySubject, 1)
	require.NotNil(t, remedy)
	assert.Equal(t, models.StatusExisting, remedy.Status)
	assert.Equal(t, "old:1, crunch:c1", remedy.OriginIDs)
	assert.Equal(t, "target, target", remedy.Roles)
	assert.Equal(t, "Finland", remedy.Fields["country"])
	assert.Equal(t, string(consolidate.TierRaw), remedy.Provenance["country"].Tier)
	assert.Equal(t, "remedygames.com", remedy.Fields["website"])
	assert.Equal(t, string(consolidate.TierEnriched), remedy.Provenance["website"].Tier)
	assert.Equal(t, "Private", remedy.Fields["ownership"])

	supercell := recordByID(result.Records, models.CategorySubject, 2)
	require.NotNil(t, supercell)
	assert.Equal(t, models.StatusProposed, supercell.Status)

	sentinel := recordByID(result.Records, models.CategoryParty, 11)
	require.NotNil(t, sentinel)
	assert.Equal(t, "crunch:c2, pitch:p2", sentinel.OriginIDs)
	assert.Equal(t, "lead, lead", sentinel.Roles)

	tencent := recordByID(result.Records, models.CategoryParty, 10)
	require.NotNil(t, tencent)
	assert.Equal(t, "crunch:c1", tencent.OriginIDs)
	assert.Equal(t, "lead", tencent.Roles)
	assert.Empty(t, tencent.Fields["country"])

	accel := recordByID(result.Records, models.CategoryParty, 12)
	require.NotNil(t, accel)
	assert.Equal(t, "participant", accel.Roles)

	// the registry carries the new references for write-back
	var written *models.RegistryEntry
	for _, entry := range result.Registry {
		if entry.Category == models.CategorySubject && entry.ID == 1 {
			written = entry
		}
	}
	require.NotNil(t, written)
	assert.Equal(t, "old:1, crunch:c1", written.OriginIDs)
}

func TestEngineProcessIsDeterministic(t *testing.T) {
	first, err := newTestEngine(t).Process(context.Background(), testBatch())
	require.NoError(t, err)

	second, err := newTestEngine(t, func(c *Config) { c.Workers = 8 }).Process(context.Background(), testBatch())
	require.NoError(t, err)

	require.Len(t, second.Records, len(first.Records))
	for i := range first.Records {
		assert.Equal(t, first.Records[i].EntityID, second.Records[i].EntityID)
		assert.Equal(t, first.Records[i].OriginIDs, second.Records[i].OriginIDs)
		assert.Equal(t, first.Records[i].Roles, second.Records[i].Roles)
	}
}

func TestEngineOrderInvariant(t *testing.T) {
	batch := testBatch()
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		batch.Left = append(batch.Left,
			record("crunch", "x"+id, "Studio "+strings.Repeat(id, 6), "2018-02-01", "Accel, Konami (lead), Sega"))
	}

	result, err := newTestEngine(t).Process(context.Background(), batch)
	require.NoError(t, err)

	for _, r := range result.Records {
		ids := strings.Split(r.OriginIDs, consolidate.Separator)
		roles := strings.Split(r.Roles, consolidate.Separator)
		require.Len(t, roles, len(ids), r.Name)
		for i, ref := range r.References {
			assert.Equal(t, ref.Origin, ids[i])
			assert.Equal(t, string(ref.Role), roles[i])
		}
	}
}

func TestEngineAmbiguousAndUnconfirmed(t *testing.T) {
	batch := &Batch{
		Left: []*models.RawRecord{
			record("crunch", "c1", "Paradox Interactive", "2021-01-05", "Sega"),
			record("crunch", "c2", "Rockaway Venture", "2021-02-05", ""),
		},
		Registry: []*models.RegistryEntry{
			{ID: 1, Name: "Paradox Interactive AB", Category: models.CategorySubject},
			{ID: 2, Name: "Paradox Interactive SA", Category: models.CategorySubject},
			{ID: 3, Name: "Rockaway Ventures", Category: models.CategorySubject},
		},
	}

	result, err := newTestEngine(t).Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Summary.AmbiguousMentions)
	assert.Equal(t, 1, result.Review.Count(ReviewAmbiguousIdentity))
	assert.Equal(t, 1, result.Review.Count(ReviewConfirmation))

	for _, item := range result.Review.Items {
		switch item.Kind {
		case ReviewAmbiguousIdentity:
			assert.Equal(t, "Paradox Interactive", item.Name)
			assert.Equal(t, "crunch:c1", item.Origin)
			assert.Len(t, item.Candidates, 2)
		case ReviewConfirmation:
			assert.Equal(t, "Rockaway Venture", item.Name)
			assert.Equal(t, int64(4), item.EntityID)
			require.Len(t, item.Candidates, 1)
			assert.Equal(t, int64(3), item.Candidates[0].EntityID)
		}
	}

	// the ambiguous subject is left unresolved; its party still resolves
	assert.Nil(t, recordByID(result.Records, models.CategorySubject, 1))
	assert.Nil(t, recordByID(result.Records, models.CategorySubject, 2))
	proposed := recordByID(result.Records, models.CategorySubject, 4)
	require.NotNil(t, proposed)
	assert.Equal(t, models.StatusProposed, proposed.Status)
	assert.NotNil(t, findRecordNamed(result.Records, models.CategoryParty, "Sega"))
}

func TestEngineConfirmedAlias(t *testing.T) {
	engine := newTestEngine(t, func(c *Config) {
		c.Identity.Confirmations = map[string]int64{"Rockaway Venture": 3}
	})
	batch := &Batch{
		Left: []*models.RawRecord{record("crunch", "c2", "Rockaway Venture", "2021-02-05", "")},
		Registry: []*models.RegistryEntry{
			{ID: 3, Name: "Rockaway Ventures", Category: models.CategorySubject},
		},
	}

	result, err := engine.Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Summary.ConfirmedAliases)
	assert.Equal(t, 0, result.Review.Count(ReviewConfirmation))
	rockaway := recordByID(result.Records, models.CategorySubject, 3)
	require.NotNil(t, rockaway)
	assert.Equal(t, []string{"Rockaway Venture"}, rockaway.Aliases)
	assert.Equal(t, "crunch:c2", rockaway.OriginIDs)
}

func TestEngineMisalignedRegistryEntry(t *testing.T) {
	batch := &Batch{
		Left: []*models.RawRecord{
			record("crunch", "c1", "Housemarque", "2021-01-05", ""),
			record("crunch", "c2", "Supercell", "2021-06-05", ""),
		},
		Registry: []*models.RegistryEntry{
			{ID: 5, Name: "Housemarque", Category: models.CategorySubject, OriginIDs: "a:1, a:2", Roles: "target"},
		},
	}

	result, err := newTestEngine(t).Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Nil(t, recordByID(result.Records, models.CategorySubject, 5))
	assert.NotNil(t, recordByID(result.Records, models.CategorySubject, 6))
	assert.Equal(t, 1, result.Summary.RecordFailures)
	assert.Equal(t, 2, result.Review.Count(ReviewRecordFailure))
	assert.True(t, result.Review.Issues.HasCode(errors.CodeSequenceMismatch))

	for _, entry := range result.Registry {
		if entry.ID == 5 && entry.Category == models.CategorySubject {
			assert.Equal(t, "a:1, a:2", entry.OriginIDs)
			assert.Equal(t, "target", entry.Roles)
		}
	}
}

func TestEngineDiscardsMalformedPartyNames(t *testing.T) {
	batch := &Batch{
		Left: []*models.RawRecord{
			record("crunch", "c1", "Remedy Entertainment", "2021-03-10", "Sony, ***"),
			record("crunch", "c2", "Housemarque", "2021-06-01", "Sony, (--), Tencent"),
		},
	}

	result, err := newTestEngine(t).Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Summary.RecordFailures)
	assert.Equal(t, 2, result.Review.Count(ReviewMalformedField))

	remedy := findRecordNamed(result.Records, models.CategorySubject, "Remedy Entertainment")
	require.NotNil(t, remedy)
	assert.Equal(t, "crunch:c1", remedy.OriginIDs)

	sony := findRecordNamed(result.Records, models.CategoryParty, "Sony")
	require.NotNil(t, sony)
	assert.Equal(t, "crunch:c1, crunch:c2", sony.OriginIDs)
	assert.Equal(t, "lead, lead", sony.Roles)

	tencent := findRecordNamed(result.Records, models.CategoryParty, "Tencent")
	require.NotNil(t, tencent)
	assert.Equal(t, "crunch:c2", tencent.OriginIDs)

	// nothing but the seeded sentinel is written back without references
	for _, entry := range result.Registry {
		if entry.Name == parties.DefaultSentinel {
			continue
		}
		assert.NotEmpty(t, entry.OriginIDs, entry.Name)
	}
}

func TestEngineDualRoleYieldsTwoRecords(t *testing.T) {
	batch := &Batch{
		Left: []*models.RawRecord{
			record("crunch", "c1", "Remedy Entertainment", "2021-03-10", "Tencent (lead)"),
			record("crunch", "c2", "Tencent", "2021-09-01", "Sony"),
		},
	}

	result, err := newTestEngine(t).Process(context.Background(), batch)
	require.NoError(t, err)

	subject := findRecordNamed(result.Records, models.CategorySubject, "Tencent")
	require.NotNil(t, subject)
	assert.Equal(t, "crunch:c2", subject.OriginIDs)
	assert.Equal(t, "target", subject.Roles)

	party := findRecordNamed(result.Records, models.CategoryParty, "Tencent")
	require.NotNil(t, party)
	assert.Equal(t, "crunch:c1", party.OriginIDs)
	assert.Equal(t, "lead", party.Roles)
}

func TestRecordScopeRollback(t *testing.T) {
	engine := newTestEngine(t, func(c *Config) {
		c.Identity.Confirmations = map[string]int64{"Rockaway Venture": 3}
	})
	r := &run{id: "test", log: engine.logger, summary: &Summary{ParseRules: map[parties.Rule]int{}}}
	r.review = NewReviewReport(r.id)
	engine.seedRegistries(r, []*models.RegistryEntry{
		{ID: 3, Name: "Rockaway Ventures", Category: models.CategorySubject},
	})
	subjects := r.registries[models.CategorySubject]
	before := subjects.Len()

	scope := &recordScope{}
	created, err := engine.resolveName(r, scope, "crunch:c1", "Housemarque", models.RoleSubject)
	require.NoError(t, err)
	require.NotNil(t, created)
	confirmed, err := engine.resolveName(r, scope, "crunch:c1", "Rockaway Venture", models.RoleSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(3), confirmed.ID)
	require.Len(t, scope.undo, 2)

	scope.rollback(r)

	assert.Equal(t, before, subjects.Len())
	_, ok := subjects.Lookup("Housemarque")
	assert.False(t, ok)
	_, ok = subjects.Lookup("Rockaway Venture")
	assert.False(t, ok)
	assert.Equal(t, 0, r.summary.ConfirmedAliases)
	assert.Equal(t, 0, r.review.Len())
}

func TestEngineRejectsInvalidRecords(t *testing.T) {
	batch := testBatch()
	batch.Left = append(batch.Left,
		record("crunch", "c9", "   ", "2021-01-01", ""),
		record("crunch", "c1", "Remedy Entertainment", "2021-03-10", ""),
		record("crunch", "c3", "Housemarque", "2021-04-01", "Konami, X"),
	)

	result, err := newTestEngine(t).Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Summary.LeftRecords)
	assert.Equal(t, 2, result.Summary.RecordsRejected)
	assert.Equal(t, 1, result.Review.Count(ReviewRecordFailure))
	// duplicate key plus the discarded one-letter name
	assert.Equal(t, 2, result.Review.Count(ReviewMalformedField))
	assert.Equal(t, 2, result.Summary.Warnings)
	assert.True(t, result.Review.Issues.HasCode(errors.CodeMalformedField))
}

func TestEngineAuthoritativeSource(t *testing.T) {
	engine := newTestEngine(t, func(c *Config) { c.AuthoritativeSource = "pitch" })

	result, err := engine.Process(context.Background(), testBatch())
	require.NoError(t, err)

	require.Equal(t, 1, result.Summary.MergedTransactions)
	var merged *models.RawRecord
	for _, tx := range result.Transactions {
		if tx.Fields["merged_from"] != "" {
			merged = tx
		}
	}
	require.NotNil(t, merged)
	assert.Equal(t, "pitch:p1", merged.Key.String())
	assert.Equal(t, "crunch:c1", merged.Fields["merged_from"])
	assert.True(t, merged.Amount.Valid)
}

func TestEngineProgressCallbacks(t *testing.T) {
	engine := newTestEngine(t)

	var steps []string
	var last Progress
	engine.AddProgressCallback(func(p *Progress) {
		steps = append(steps, p.CurrentStep)
		last = *p
	})

	_, err := engine.Process(context.Background(), testBatch())
	require.NoError(t, err)

	assert.Len(t, steps, totalSteps+1)
	assert.Equal(t, "Preprocessing records", steps[0])
	assert.Equal(t, "Completed", last.CurrentStep)
	assert.InDelta(t, 100.0, last.PercentComplete, 1e-9)
}

func TestEngineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(t).Process(ctx, testBatch())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCancelled))
}

func TestEngineEmptyBatch(t *testing.T) {
	_, err := newTestEngine(t).Process(context.Background(), &Batch{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMissingField))

	_, err = newTestEngine(t).Process(context.Background(), nil)
	require.Error(t, err)
}

func TestNewEngineInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.Workers = 0

	_, err := NewEngine(config)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

func findRecordNamed(records []*models.CanonicalRecord, category models.Category, name string) *models.CanonicalRecord {
	for _, r := range records {
		if r.Category == category && r.Name == name {
			return r
		}
	}
	return nil
}
