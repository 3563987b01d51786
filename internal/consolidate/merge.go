package consolidate

import (
	"strings"

	"entity-resolution-service/internal/models"
)

// MergeTransactions merges a cross-ledger duplicate pair into one resolved
// transaction. Every attribute comes from the authoritative record when it is
// populated there and from the other record otherwise. The result keeps the
// authoritative key; the other key is recorded in the merged_from field.
func (c *Consolidator) MergeTransactions(authoritative, other *models.RawRecord) *models.RawRecord {
	if other == nil {
		return authoritative
	}
	if authoritative == nil {
		return other
	}

	merged := &models.RawRecord{
		Key:      authoritative.Key,
		Subject:  firstNonEmpty(authoritative.Subject, other.Subject),
		Date:     authoritative.Date,
		Amount:   authoritative.Amount,
		Type:     firstNonEmpty(authoritative.Type, other.Type),
		Category: firstNonEmpty(authoritative.Category, other.Category),
		Fields:   make(map[string]string, len(authoritative.Fields)+len(other.Fields)+1),
	}
	if !authoritative.HasDate() {
		merged.Date = other.Date
	}
	if !authoritative.Amount.Valid {
		merged.Amount = other.Amount
	}

	merged.Parties = mergeParties(authoritative.Parties, other.Parties)

	for name, value := range other.Fields {
		if strings.TrimSpace(value) != "" {
			merged.Fields[name] = value
		}
	}
	for name, value := range authoritative.Fields {
		if strings.TrimSpace(value) != "" {
			merged.Fields[name] = value
		}
	}
	merged.Fields["merged_from"] = other.Key.String()

	return merged
}

// mergeParties keeps the authoritative field order, filling blank or missing
// fields from the other record and appending fields only it has
func mergeParties(authoritative, other []models.PartyField) []models.PartyField {
	otherValues := make(map[string]string, len(other))
	for _, field := range other {
		otherValues[field.Name] = field.Value
	}

	merged := make([]models.PartyField, 0, len(authoritative)+len(other))
	seen := make(map[string]bool, len(authoritative))
	for _, field := range authoritative {
		value := field.Value
		if strings.TrimSpace(value) == "" {
			value = otherValues[field.Name]
		}
		merged = append(merged, models.PartyField{Name: field.Name, Value: value})
		seen[field.Name] = true
	}
	for _, field := range other {
		if !seen[field.Name] {
			merged = append(merged, field)
			seen[field.Name] = true
		}
	}
	return merged
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
