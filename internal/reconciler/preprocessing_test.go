package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/pkg/errors"
)

func TestPreprocessRecords(t *testing.T) {
	preprocessor := NewDataPreprocessor(nil)

	input := []*models.RawRecord{
		{
			Key:     models.RecordKey{Source: " crunch ", ID: "b2"},
			Subject: "  CafÃ© Studios  ",
			Parties: []models.PartyField{{Name: " investors ", Value: " Tencent (lead) "}},
			Fields:  map[string]string{" country_raw ": " Finland "},
		},
		{Key: models.RecordKey{Source: "crunch", ID: "a1"}, Subject: "Remedy"},
	}

	records, issues, stats := preprocessor.PreprocessRecords(input)
	require.Len(t, records, 2)
	assert.Empty(t, issues)
	assert.Equal(t, 2, stats.TotalRecordsProcessed)
	assert.Equal(t, 0, stats.RecordsRemoved)

	// sorted by key
	assert.Equal(t, "crunch:a1", records[0].Key.String())
	cleaned := records[1]
	assert.Equal(t, "crunch:b2", cleaned.Key.String())
	assert.Equal(t, "Café Studios", cleaned.Subject)
	assert.Equal(t, models.PartyField{Name: "investors", Value: "Tencent (lead)"}, cleaned.Parties[0])
	assert.Equal(t, "Finland", cleaned.Fields["country_raw"])

	// input untouched
	assert.Equal(t, " crunch ", input[0].Key.Source)
	assert.Equal(t, " Tencent (lead) ", input[0].Parties[0].Value)
}

func TestPreprocessRecordsRejectsInvalid(t *testing.T) {
	preprocessor := NewDataPreprocessor(nil)

	records, issues, stats := preprocessor.PreprocessRecords([]*models.RawRecord{
		{Key: models.RecordKey{ID: "1"}, Subject: "Rovio"},
		{Key: models.RecordKey{ID: "2"}, Subject: " "},
		{Key: models.RecordKey{}, Subject: "Supercell"},
		nil,
		{Key: models.RecordKey{ID: "1"}, Subject: "Rovio Mobile"},
	})

	require.Len(t, records, 1)
	assert.Equal(t, "Rovio", records[0].Subject)
	assert.Equal(t, 4, stats.RecordsRemoved)
	assert.Equal(t, 2, stats.ValidationErrors)
	assert.Equal(t, 1, stats.DuplicateKeys)

	require.Len(t, issues, 3)
	assert.Equal(t, errors.CodeMissingField, issues[0].Code)
	assert.False(t, issues[0].IsWarning())
	assert.Equal(t, errors.CodeDuplicateRecord, issues[2].Code)
	assert.True(t, issues[2].IsWarning())
	assert.Equal(t, "1", issues[2].Context["origin"])
}

func TestPreprocessRecordsKeepsDuplicatesWhenDisabled(t *testing.T) {
	config := DefaultPreprocessingConfig()
	config.RemoveDuplicates = false

	records, issues, _ := NewDataPreprocessor(config).PreprocessRecords([]*models.RawRecord{
		{Key: models.RecordKey{ID: "1"}, Subject: "Rovio"},
		{Key: models.RecordKey{ID: "1"}, Subject: "Rovio Mobile"},
	})
	assert.Len(t, records, 2)
	assert.Empty(t, issues)
}

func TestPreprocessRecordsDateWarnings(t *testing.T) {
	preprocessor := NewDataPreprocessor(nil)

	records, issues, stats := preprocessor.PreprocessRecords([]*models.RawRecord{
		{Key: models.RecordKey{ID: "1"}, Subject: "Rovio", Date: time.Now().AddDate(1, 0, 0)},
		{Key: models.RecordKey{ID: "2"}, Subject: "Sega", Date: time.Date(1850, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Key: models.RecordKey{ID: "3"}, Subject: "Konami"},
	})

	assert.Len(t, records, 3)
	assert.Equal(t, 2, stats.DateWarnings)
	require.Len(t, issues, 2)
	for _, issue := range issues {
		assert.Equal(t, errors.CodeInvalidDate, issue.Code)
		assert.True(t, issue.IsWarning())
	}
}

func TestPreprocessRecordsTimezone(t *testing.T) {
	helsinki := time.FixedZone("EET", 2*60*60)
	records, _, _ := NewDataPreprocessor(nil).PreprocessRecords([]*models.RawRecord{
		{Key: models.RecordKey{ID: "1"}, Subject: "Rovio", Date: time.Date(2021, 3, 1, 1, 0, 0, 0, helsinki)},
	})

	require.Len(t, records, 1)
	assert.Equal(t, time.UTC, records[0].Date.Location())
	assert.Equal(t, time.February, records[0].Date.Month())
}
