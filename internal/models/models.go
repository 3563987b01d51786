package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKey identifies a RawRecord: the ledger it came from plus its native
// identifier, which is unique within that ledger.
type RecordKey struct {
	Source string `json:"source" yaml:"source"`
	ID     string `json:"id" yaml:"id"`
}

// String returns the origin identifier used in reference lists. Records
// without a source tag render as their bare identifier.
func (k RecordKey) String() string {
	if k.Source == "" {
		return k.ID
	}
	return k.Source + ":" + k.ID
}

// Less orders keys by source, then identifier
func (k RecordKey) Less(other RecordKey) bool {
	if k.Source != other.Source {
		return k.Source < other.Source
	}
	return k.ID < other.ID
}

// IsZero reports whether the key carries no identifier
func (k RecordKey) IsZero() bool {
	return strings.TrimSpace(k.ID) == ""
}

// ParseRecordKey parses the String form of a key
func ParseRecordKey(s string) RecordKey {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i > 0 {
		return RecordKey{Source: s[:i], ID: s[i+1:]}
	}
	return RecordKey{ID: s}
}

// PartyField is one named free-text field listing the parties of a transaction
type PartyField struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// RawRecord is one row from one source ledger. It is never mutated after
// ingestion; derived values live in side tables keyed by Key.
type RawRecord struct {
	Key      RecordKey           `json:"key" yaml:"key"`
	Subject  string              `json:"subject" yaml:"subject"`
	Date     time.Time           `json:"date" yaml:"date"`
	Parties  []PartyField        `json:"parties,omitempty" yaml:"parties,omitempty"`
	Amount   decimal.NullDecimal `json:"amount" yaml:"-"`
	Type     string              `json:"type,omitempty" yaml:"type,omitempty"`
	Category string              `json:"category,omitempty" yaml:"category,omitempty"`
	Fields   map[string]string   `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Validate performs basic validation on the RawRecord
func (r *RawRecord) Validate() error {
	if r.Key.IsZero() {
		return fmt.Errorf("record identifier cannot be empty")
	}
	if strings.TrimSpace(r.Subject) == "" {
		return fmt.Errorf("record %s has no subject name", r.Key)
	}
	return nil
}

// HasDate reports whether the occurrence date is known
func (r *RawRecord) HasDate() bool {
	return !r.Date.IsZero()
}

// Field returns a metadata value, or "" when absent
func (r *RawRecord) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// PartyField returns the named party field value and whether it exists
func (r *RawRecord) PartyField(name string) (string, bool) {
	for _, field := range r.Parties {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// FieldNames returns the metadata keys in sorted order
func (r *RawRecord) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a string representation of the RawRecord
func (r *RawRecord) String() string {
	date := "unknown"
	if r.HasDate() {
		date = r.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("RawRecord{Key: %s, Subject: %s, Date: %s}", r.Key, r.Subject, date)
}

// SortRecords stable-sorts records by key. Encounter order for consolidation
// is defined by this order.
func SortRecords(records []*RawRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Key.Less(records[j].Key)
	})
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	for _, symbol := range []string{"$", "€", "£", "USD", "EUR", ","} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.TrimSpace(s)

	multiplier := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(strings.ToUpper(s), "B"):
		multiplier = decimal.NewFromInt(1_000_000_000)
		s = strings.TrimSpace(s[:len(s)-1])
	case strings.HasSuffix(strings.ToUpper(s), "M"):
		multiplier = decimal.NewFromInt(1_000_000)
		s = strings.TrimSpace(s[:len(s)-1])
	case strings.HasSuffix(strings.ToUpper(s), "K"):
		multiplier = decimal.NewFromInt(1_000)
		s = strings.TrimSpace(s[:len(s)-1])
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d.Mul(multiplier), nil
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,          // "2006-01-02T15:04:05Z07:00"
		"2006-01-02 15:04:05", // "2006-01-02 15:04:05"
		"2006-01-02T15:04:05", // "2006-01-02T15:04:05"
		"2006-01-02",          // "2006-01-02"
		"01/02/2006",          // "01/02/2006"
		"2006/01/02",          // "2006/01/02"
		"2006-01",             // "2006-01"
		"Jan 2, 2006",         // "Jan 2, 2006"
		"January 2, 2006",     // "January 2, 2006"
		"Jan 2006",            // "Jan 2006"
		"January 2006",        // "January 2006"
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}
