package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKey(t *testing.T) {
	key := RecordKey{Source: "crm", ID: "42"}
	assert.Equal(t, "crm:42", key.String())
	assert.Equal(t, key, ParseRecordKey("crm:42"))
	assert.Equal(t, "IG7", RecordKey{ID: "IG7"}.String())
	assert.Equal(t, RecordKey{ID: "IG7"}, ParseRecordKey(" IG7 "))
	assert.True(t, RecordKey{ID: "  "}.IsZero())

	assert.True(t, RecordKey{Source: "a", ID: "9"}.Less(RecordKey{Source: "b", ID: "1"}))
	assert.True(t, RecordKey{Source: "a", ID: "1"}.Less(RecordKey{Source: "a", ID: "2"}))
}

func TestSortRecordsIsStable(t *testing.T) {
	records := []*RawRecord{
		{Key: RecordKey{Source: "b", ID: "1"}, Subject: "first b"},
		{Key: RecordKey{Source: "a", ID: "2"}, Subject: "a2"},
		{Key: RecordKey{Source: "a", ID: "1"}, Subject: "a1"},
		{Key: RecordKey{Source: "b", ID: "1"}, Subject: "second b"},
	}

	SortRecords(records)

	got := make([]string, 0, len(records))
	for _, r := range records {
		got = append(got, r.Subject)
	}
	assert.Equal(t, []string{"a1", "a2", "first b", "second b"}, got)
}

func TestRawRecordValidate(t *testing.T) {
	valid := &RawRecord{Key: RecordKey{Source: "crm", ID: "1"}, Subject: "Supercell"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&RawRecord{Subject: "Supercell"}).Validate())
	assert.Error(t, (&RawRecord{Key: RecordKey{ID: "1"}, Subject: "  "}).Validate())
}

func TestRawRecordAccessors(t *testing.T) {
	record := &RawRecord{
		Key:     RecordKey{ID: "1"},
		Subject: "Supercell",
		Parties: []PartyField{{Name: "investors", Value: "Tencent"}},
		Fields:  map[string]string{"sector": "Games", "country": "Finland"},
	}

	value, ok := record.PartyField("investors")
	assert.True(t, ok)
	assert.Equal(t, "Tencent", value)

	_, ok = record.PartyField("advisors")
	assert.False(t, ok)

	assert.Equal(t, "Games", record.Field("sector"))
	assert.Equal(t, "", (&RawRecord{}).Field("sector"))
	assert.Equal(t, []string{"country", "sector"}, record.FieldNames())
	assert.False(t, record.HasDate())
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"12.50", "12.5", false},
		{"$1,250.00", "1250", false},
		{"€3.5M", "3500000", false},
		{"750k", "750000", false},
		{"1.5B", "1500000000", false},
		{"USD 2 b", "2000000000", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseTimeWithFormats(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-03", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"March 2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"Mar 15, 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeWithFormats(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTimeWithFormats("someday")
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	role, err := ParseRole("Lead")
	require.NoError(t, err)
	assert.Equal(t, RolePrimary, role)

	role, err = ParseRole("TARGET")
	require.NoError(t, err)
	assert.Equal(t, CategorySubject, role.Category())
	assert.Equal(t, CategoryParty, RoleSecondary.Category())

	_, err = ParseRole("advisor")
	assert.Error(t, err)
	assert.False(t, Role("advisor").IsValid())
}

func TestCanonicalEntityClone(t *testing.T) {
	entity := &CanonicalEntity{
		ID:         1,
		Name:       "Tencent",
		Aliases:    []string{"Tencent Holdings"},
		Metadata:   map[string]string{"hq_country": "China"},
		References: []Reference{{Origin: "IG1", Role: RolePrimary}},
	}

	clone := entity.Clone()
	clone.Aliases[0] = "changed"
	clone.Metadata["hq_country"] = "changed"
	clone.References[0].Role = RoleSecondary

	assert.Equal(t, "Tencent Holdings", entity.Aliases[0])
	assert.Equal(t, "China", entity.Metadata["hq_country"])
	assert.Equal(t, RolePrimary, entity.References[0].Role)
	assert.Equal(t, []string{"Tencent", "Tencent Holdings"}, entity.Names())
}

func TestRegistryEntryValidate(t *testing.T) {
	assert.NoError(t, (&RegistryEntry{ID: 1, Name: "Tencent", Category: CategoryParty}).Validate())
	assert.NoError(t, (&RegistryEntry{Name: "Tencent"}).Validate())
	assert.Error(t, (&RegistryEntry{ID: 1}).Validate())
	assert.Error(t, (&RegistryEntry{ID: -1, Name: "x"}).Validate())
	assert.Error(t, (&RegistryEntry{Name: "x", Category: "vendor"}).Validate())
}
