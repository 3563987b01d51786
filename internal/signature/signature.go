// Package signature derives the three-part fingerprint used to compare
// transactions across ledgers.
package signature

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/normalize"
	"entity-resolution-service/internal/parties"
)

// NoPrimaryParty is the party signature of a record without primary parties
const NoPrimaryParty = "no-primary-party"

var monthTokens = [...]string{
	time.January:   "jan",
	time.February:  "feb",
	time.March:     "mar",
	time.April:     "apr",
	time.May:       "may",
	time.June:      "june",
	time.July:      "july",
	time.August:    "aug",
	time.September: "sept",
	time.October:   "oct",
	time.November:  "nov",
	time.December:  "dec",
}

// Temporal is the coarse year+month bucket of a record's date. A record
// without a date has a zero Temporal and an empty Token.
type Temporal struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Token string     `json:"token"`
}

// NewTemporal buckets t. The zero time yields the unknown bucket.
func NewTemporal(t time.Time) Temporal {
	if t.IsZero() {
		return Temporal{}
	}
	return Temporal{
		Year:  t.Year(),
		Month: t.Month(),
		Token: fmt.Sprintf("%02d%s", t.Year()%100, monthTokens[t.Month()]),
	}
}

// Known reports whether the bucket carries a date
func (t Temporal) Known() bool {
	return t.Token != ""
}

// Signature is the read-only fingerprint of exactly one record
type Signature struct {
	Key      models.RecordKey `json:"key"`
	Subject  string           `json:"subject"`
	Temporal Temporal         `json:"temporal"`
	Party    string           `json:"party"`
}

// String returns a string representation of the Signature
func (s *Signature) String() string {
	return fmt.Sprintf("%s|%s|%s", s.Subject, s.Temporal.Token, s.Party)
}

// BuilderConfig selects which party field feeds the party signature
type BuilderConfig struct {
	// PartyField names the party field to fingerprint. Empty selects the
	// record's first party field.
	PartyField string `json:"party_field" mapstructure:"party_field"`
}

// Builder derives signatures from records
type Builder struct {
	parser *parties.Parser
	config BuilderConfig
}

// NewBuilder creates a signature builder using parser for the party field
func NewBuilder(parser *parties.Parser, config BuilderConfig) *Builder {
	if parser == nil {
		parser = parties.NewParser(nil)
	}
	return &Builder{parser: parser, config: config}
}

// Build derives the signature of record, parsing its party field. A record
// with a blank party field gets the NoPrimaryParty signature.
func (b *Builder) Build(record *models.RawRecord) *Signature {
	field := b.partyField(record)
	if strings.TrimSpace(field) == "" {
		return b.BuildWithParties(record, nil)
	}
	return b.BuildWithParties(record, b.parser.Parse(field))
}

// BuildWithParties derives the signature from an already parsed party field
func (b *Builder) BuildWithParties(record *models.RawRecord, parsed *parties.Result) *Signature {
	return &Signature{
		Key:      record.Key,
		Subject:  normalize.Compact(record.Subject),
		Temporal: NewTemporal(record.Date),
		Party:    PartySignature(parsed),
	}
}

// PartyField returns the value of the party field used for signatures
func (b *Builder) PartyField(record *models.RawRecord) string {
	return b.partyField(record)
}

func (b *Builder) partyField(record *models.RawRecord) string {
	if b.config.PartyField != "" {
		value, _ := record.PartyField(b.config.PartyField)
		return value
	}
	if len(record.Parties) > 0 {
		return record.Parties[0].Value
	}
	return ""
}

// PartySignature joins the compacted primary names. The names are sorted so
// the signature does not depend on the order leads were listed in.
func PartySignature(parsed *parties.Result) string {
	if parsed == nil {
		return NoPrimaryParty
	}
	var names []string
	for _, name := range parsed.Primary() {
		if compact := normalize.Compact(name); compact != "" {
			names = append(names, compact)
		}
	}
	if len(names) == 0 {
		return NoPrimaryParty
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}
