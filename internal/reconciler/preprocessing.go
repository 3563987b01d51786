package reconciler

import (
	"strings"
	"time"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/normalize"
	"entity-resolution-service/pkg/errors"
)

// DataPreprocessor cleans and validates records before they are ingested.
// It returns new records; its input is never modified.
type DataPreprocessor struct {
	config *PreprocessingConfig
}

// PreprocessingConfig contains configuration for data preprocessing
type PreprocessingConfig struct {
	// Date normalization options
	NormalizeTimezone bool           `mapstructure:"normalize_timezone"`
	DefaultTimezone   *time.Location `mapstructure:"-"`

	// String normalization options
	TrimWhitespace bool `mapstructure:"trim_whitespace"`
	RepairEncoding bool `mapstructure:"repair_encoding"`

	// Validation options
	ValidateDates bool `mapstructure:"validate_dates"`

	// Data cleaning options
	RemoveDuplicates bool `mapstructure:"remove_duplicates"`
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		NormalizeTimezone: true,
		DefaultTimezone:   time.UTC,
		TrimWhitespace:    true,
		RepairEncoding:    true,
		ValidateDates:     true,
		RemoveDuplicates:  true,
	}
}

// PreprocessingStats contains statistics about preprocessing operations
type PreprocessingStats struct {
	TotalRecordsProcessed int           `json:"total_records_processed" yaml:"total_records_processed"`
	RecordsRemoved        int           `json:"records_removed" yaml:"records_removed"`
	DuplicateKeys         int           `json:"duplicate_keys" yaml:"duplicate_keys"`
	ValidationErrors      int           `json:"validation_errors" yaml:"validation_errors"`
	DateWarnings          int           `json:"date_warnings" yaml:"date_warnings"`
	ProcessingTime        time.Duration `json:"processing_time" yaml:"processing_time"`
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}

	return &DataPreprocessor{
		config: config,
	}
}

// PreprocessRecords normalizes and validates one ledger. Invalid records are
// dropped with a validation error; a repeated key keeps its first record and
// yields a warning. The result is stable-sorted by key, which fixes the
// encounter order for everything downstream.
func (dp *DataPreprocessor) PreprocessRecords(records []*models.RawRecord) ([]*models.RawRecord, []*errors.ReconcilerError, *PreprocessingStats) {
	start := time.Now()
	stats := &PreprocessingStats{TotalRecordsProcessed: len(records)}

	var issues []*errors.ReconcilerError
	processed := make([]*models.RawRecord, 0, len(records))
	seen := make(map[models.RecordKey]bool, len(records))

	for i, record := range records {
		if record == nil {
			stats.RecordsRemoved++
			continue
		}

		clean := dp.preprocessRecord(record)
		if err := clean.Validate(); err != nil {
			stats.ValidationErrors++
			stats.RecordsRemoved++
			issues = append(issues, errors.ValidationError(errors.CodeMissingField, "record", clean.Key.String(), err).
				WithContext("origin", clean.Key.String()).
				WithContext("position", i))
			continue
		}

		if dp.config.RemoveDuplicates {
			if seen[clean.Key] {
				stats.DuplicateKeys++
				stats.RecordsRemoved++
				issues = append(issues, errors.ValidationError(errors.CodeDuplicateRecord, "key", clean.Key.String(), nil).
					WithContext("origin", clean.Key.String()).
					WithSuggestion("origin identifiers must be unique within a ledger; the first record was kept"))
				continue
			}
			seen[clean.Key] = true
		}

		if dp.config.ValidateDates {
			if err := dp.validateDate(clean); err != nil {
				stats.DateWarnings++
				issues = append(issues, err)
			}
		}

		processed = append(processed, clean)
	}

	models.SortRecords(processed)
	stats.ProcessingTime = time.Since(start)
	return processed, issues, stats
}

// preprocessRecord returns a cleaned copy of record
func (dp *DataPreprocessor) preprocessRecord(record *models.RawRecord) *models.RawRecord {
	processed := &models.RawRecord{
		Key: models.RecordKey{
			Source: dp.normalizeString(record.Key.Source),
			ID:     dp.normalizeString(record.Key.ID),
		},
		Subject:  dp.normalizeText(record.Subject),
		Date:     dp.normalizeDateTime(record.Date),
		Amount:   record.Amount,
		Type:     dp.normalizeString(record.Type),
		Category: dp.normalizeString(record.Category),
	}

	if len(record.Parties) > 0 {
		processed.Parties = make([]models.PartyField, len(record.Parties))
		for i, field := range record.Parties {
			processed.Parties[i] = models.PartyField{
				Name:  dp.normalizeString(field.Name),
				Value: dp.normalizeText(field.Value),
			}
		}
	}

	if len(record.Fields) > 0 {
		processed.Fields = make(map[string]string, len(record.Fields))
		for name, value := range record.Fields {
			processed.Fields[dp.normalizeString(name)] = dp.normalizeString(value)
		}
	}

	return processed
}

// normalizeString applies string normalization rules
func (dp *DataPreprocessor) normalizeString(s string) string {
	if dp.config.TrimWhitespace {
		return strings.TrimSpace(s)
	}
	return s
}

// normalizeText repairs mis-decoded names. Case and separators are kept for
// the party parser.
func (dp *DataPreprocessor) normalizeText(s string) string {
	if dp.config.RepairEncoding {
		s = normalize.Repair(s)
	}
	return dp.normalizeString(s)
}

// normalizeDateTime applies date/time normalization rules
func (dp *DataPreprocessor) normalizeDateTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	if dp.config.NormalizeTimezone && dp.config.DefaultTimezone != nil {
		return t.In(dp.config.DefaultTimezone)
	}
	return t
}

// validateDate flags implausible dates. The record is kept.
func (dp *DataPreprocessor) validateDate(record *models.RawRecord) *errors.ReconcilerError {
	if !record.HasDate() {
		return nil
	}

	// more than one day ahead
	if record.Date.After(time.Now().Add(24 * time.Hour)) {
		return errors.ValidationError(errors.CodeInvalidDate, "date", record.Date.Format(time.RFC3339), nil).
			WithContext("origin", record.Key.String()).
			WithSuggestion("the date lies in the future; check the source ledger")
	}

	if record.Date.Year() < 1900 {
		return errors.ValidationError(errors.CodeInvalidDate, "date", record.Date.Format(time.RFC3339), nil).
			WithContext("origin", record.Key.String()).
			WithSuggestion("the date is implausibly old; check the source ledger")
	}

	return nil
}
