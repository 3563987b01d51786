package parties

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/pkg/errors"
)

func TestParse(t *testing.T) {
	parser := NewParser(nil)

	tests := []struct {
		name      string
		field     string
		rule      Rule
		primary   []string
		secondary []string
	}{
		{
			name:    "single name keeps ticker annotation",
			field:   "Tencent (SEHK: 700)",
			rule:    RuleSingle,
			primary: []string{"Tencent (SEHK: 700)"},
		},
		{
			name:      "lead marker",
			field:     "Rockaway Ventures (lead) / Tarpan Capital, Lion Beat Capital",
			rule:      RuleLeadMarker,
			primary:   []string{"Rockaway Ventures"},
			secondary: []string{"Tarpan Capital", "Lion Beat Capital"},
		},
		{
			name:      "large syndicate",
			field:     "Cape Capital, Investinor, Myrlid, Tine Pensjonskasse",
			rule:      RuleSyndicate,
			primary:   []string{DefaultSentinel},
			secondary: []string{"Cape Capital", "Investinor", "Myrlid", "Tine Pensjonskasse"},
		},
		{
			name:      "last lead marker wins",
			field:     "Makers Fund (Lead), Bitkraft (lead), Galaxy Interactive",
			rule:      RuleLeadMarker,
			primary:   []string{"Makers Fund", "Bitkraft"},
			secondary: []string{"Galaxy Interactive"},
		},
		{
			name:    "square bracket marker with nothing after",
			field:   "a16z [lead]",
			rule:    RuleLeadMarker,
			primary: []string{"a16z"},
		},
		{
			name:      "first slash splits",
			field:     "Play Ventures, Sisu Game Ventures / Supercell / Initial Capital",
			rule:      RuleSlash,
			primary:   []string{"Play Ventures", "Sisu Game Ventures"},
			secondary: []string{"Supercell / Initial Capital"},
		},
		{
			name:    "co-lead pair",
			field:   "Tencent, NetEase",
			rule:    RuleCoLead,
			primary: []string{"Tencent", "NetEase"},
		},
		{
			name:    "co-lead triple",
			field:   "Tencent, NetEase, Krafton",
			rule:    RuleCoLead,
			primary: []string{"Tencent", "NetEase", "Krafton"},
		},
		{
			name:    "placeholder",
			field:   "Undisclosed",
			rule:    RulePlaceholder,
			primary: []string{DefaultSentinel},
		},
		{
			name:    "n/a is a placeholder not a slash split",
			field:   "N/A",
			rule:    RulePlaceholder,
			primary: []string{DefaultSentinel},
		},
		{
			name:    "dash run",
			field:   " ---- ",
			rule:    RulePlaceholder,
			primary: []string{DefaultSentinel},
		},
		{
			name:    "empty",
			field:   "",
			rule:    RulePlaceholder,
			primary: []string{DefaultSentinel},
		},
		{
			name:    "short garbage",
			field:   "x.",
			rule:    RulePlaceholder,
			primary: []string{DefaultSentinel},
		},
		{
			name:    "diacritics folded",
			field:   "Björn Capital",
			rule:    RuleSingle,
			primary: []string{"Bjorn Capital"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parser.Parse(tt.field)
			assert.Equal(t, tt.rule, res.Rule)
			assert.Equal(t, tt.primary, res.Primary())
			assert.Equal(t, tt.secondary, res.Secondary())
		})
	}
}

func TestParseSyndicateSentinelIsSynthetic(t *testing.T) {
	res := NewParser(nil).Parse("Cape Capital, Investinor, Myrlid, Tine Pensjonskasse")
	require.Len(t, res.Mentions, 5)
	assert.True(t, res.Mentions[0].Synthetic)
	for _, m := range res.Mentions[1:] {
		assert.False(t, m.Synthetic)
	}
}

func TestParseOrdinalsFollowTextOrderPerRole(t *testing.T) {
	res := NewParser(nil).Parse("A1 Games, B2 Games (lead) / C3 Fund, D4 Fund, E5 Fund")

	var layout []string
	for _, m := range res.Mentions {
		layout = append(layout, string(m.Role)+":"+m.Name)
	}
	assert.Equal(t, []string{
		"lead:A1 Games", "lead:B2 Games",
		"participant:C3 Fund", "participant:D4 Fund", "participant:E5 Fund",
	}, layout)

	counters := map[models.Role]int{}
	for _, m := range res.Mentions {
		assert.Equal(t, counters[m.Role], m.Ordinal, m.Name)
		counters[m.Role]++
	}
}

func TestParseDiscardsShortNamesWithWarning(t *testing.T) {
	res := NewParser(nil).Parse("Tencent, X, NetEase")

	assert.Equal(t, RuleCoLead, res.Rule)
	assert.Equal(t, []string{"Tencent", "NetEase"}, res.Primary())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, errors.CodeMalformedField, res.Warnings[0].Code)
	assert.True(t, res.Warnings[0].IsWarning())
	assert.Equal(t, 1, res.Mentions[1].Ordinal)
}

func TestParseDiscardsPunctuationOnlyNames(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		primary []string
	}{
		{name: "asterisks", field: "Sony, ***", primary: []string{"Sony"}},
		{name: "bracketed dashes", field: "Sony, (--), Tencent", primary: []string{"Sony", "Tencent"}},
		{name: "only punctuation", field: "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewParser(nil).Parse(tt.field)
			assert.Equal(t, tt.primary, res.Primary())
			require.NotEmpty(t, res.Warnings)
			assert.Equal(t, errors.CodeMalformedField, res.Warnings[0].Code)
		})
	}
}

func TestParseWarnsOnBlankListEntries(t *testing.T) {
	res := NewParser(nil).Parse("Alpha Games, , Gamma Fund")

	assert.Equal(t, []string{"Alpha Games", "Gamma Fund"}, res.Primary())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, errors.CodeMalformedField, res.Warnings[0].Code)
	assert.Equal(t, 1, res.Warnings[0].Context["position"])

	res = NewParser(nil).Parse("a16z [lead]")
	assert.Empty(t, res.Warnings)
}

func TestParseEmptyAfterSplitting(t *testing.T) {
	res := NewParser(nil).Parse("a, b, c")

	assert.Equal(t, RuleEmpty, res.Rule)
	assert.Empty(t, res.Mentions)
	assert.Len(t, res.Warnings, 4)
}

func TestCoLeadCutoffIsConfigurable(t *testing.T) {
	config := DefaultParserConfig()
	config.CoLeadCutoff = 4
	res := NewParser(config).Parse("Cape Capital, Investinor, Myrlid, Tine Pensjonskasse")

	assert.Equal(t, RuleCoLead, res.Rule)
	assert.Len(t, res.Primary(), 4)
	assert.Empty(t, res.Secondary())
}

func TestParserConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultParserConfig().Validate())

	config := DefaultParserConfig()
	config.CoLeadCutoff = 0
	assert.Error(t, config.Validate())

	config = DefaultParserConfig()
	config.Sentinel = " "
	assert.Error(t, config.Validate())

	clone := DefaultParserConfig()
	copied := clone.Clone()
	copied.Placeholders[0] = "changed"
	assert.Equal(t, "undisclosed", clone.Placeholders[0])
}
