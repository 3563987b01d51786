package parsers

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/pkg/logger"
)

// Value is a scalar that may be written as a string or a number
type Value string

// UnmarshalJSON accepts strings, numbers and null
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = Value(n.String())
	return nil
}

// RecordDocument is the on-disk shape of one ledger
type RecordDocument struct {
	Source  string        `json:"source" yaml:"source"`
	Records []RecordEntry `json:"records" yaml:"records"`
}

// RecordEntry is the on-disk shape of one record. Party fields are a list so
// their order survives decoding.
type RecordEntry struct {
	ID       string            `json:"id" yaml:"id"`
	Subject  string            `json:"subject" yaml:"subject"`
	Date     Value             `json:"date" yaml:"date"`
	Amount   Value             `json:"amount" yaml:"amount"`
	Type     string            `json:"type" yaml:"type"`
	Category string            `json:"category" yaml:"category"`
	Parties  []PartyEntry      `json:"parties" yaml:"parties"`
	Fields   map[string]string `json:"fields" yaml:"fields"`
}

// PartyEntry is one named party field
type PartyEntry struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// RecordParser loads ledger files
type RecordParser struct {
	*BaseParser
}

// NewRecordParser creates a new RecordParser with the given configuration
func NewRecordParser(config *ParseConfig) *RecordParser {
	return &RecordParser{BaseParser: NewBaseParser(config, "record_parser")}
}

// LoadRecords loads one ledger file with the default configuration. Values
// that could not be parsed are logged and left unknown.
func LoadRecords(path string) ([]*models.RawRecord, error) {
	parser := NewRecordParser(nil)
	records, stats, err := parser.ParseRecords(path)
	if err != nil {
		return nil, err
	}
	if stats.HasErrors() {
		parser.logger.WithFields(logger.Fields{
			"file_path":     path,
			"error_count":   stats.ErrorCount,
			"sample_errors": stats.GetSampleErrors(5),
		}).Warn("Some values could not be parsed")
	}
	return records, nil
}

// ParseRecords loads the ledger at path. The ledger tag comes from the
// configuration, then the document, then the file name.
func (rp *RecordParser) ParseRecords(path string) ([]*models.RawRecord, *ParseStats, error) {
	data, err := rp.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var doc RecordDocument
	if err := rp.Decode(path, data, FormatFromPath(path), &doc); err != nil {
		return nil, nil, err
	}

	source := strings.TrimSpace(rp.config.Source)
	if source == "" {
		source = strings.TrimSpace(doc.Source)
	}
	if source == "" {
		source = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	stats := NewParseStats(path)
	records := make([]*models.RawRecord, 0, len(doc.Records))
	for i, entry := range doc.Records {
		stats.RecordsParsed++
		record := rp.convert(source, i, entry, stats)
		if record.Validate() == nil {
			stats.RecordsValid++
		}
		records = append(records, record)
	}

	rp.logger.WithFields(logger.Fields{
		"file_path": path,
		"source":    source,
		"records":   stats.RecordsParsed,
		"valid":     stats.RecordsValid,
		"errors":    stats.ErrorCount,
	}).Info("Loaded ledger")

	return records, stats, nil
}

func (rp *RecordParser) convert(source string, position int, entry RecordEntry, stats *ParseStats) *models.RawRecord {
	record := &models.RawRecord{
		Key:      models.RecordKey{Source: source, ID: strings.TrimSpace(entry.ID)},
		Subject:  entry.Subject,
		Type:     entry.Type,
		Category: entry.Category,
	}

	if date := strings.TrimSpace(string(entry.Date)); date != "" {
		t, err := models.ParseTimeWithFormats(date)
		if err != nil {
			stats.AddError(&ParseError{Position: position, Field: "date", Value: date, Message: "date left unknown", Err: err})
		} else {
			record.Date = t
		}
	}

	if amount := strings.TrimSpace(string(entry.Amount)); amount != "" {
		d, err := models.ParseDecimalFromString(amount)
		if err != nil {
			stats.AddError(&ParseError{Position: position, Field: "amount", Value: amount, Message: "amount left unknown", Err: err})
		} else {
			record.Amount = decimal.NewNullDecimal(d)
		}
	}

	for _, party := range entry.Parties {
		record.Parties = append(record.Parties, models.PartyField{Name: party.Name, Value: party.Value})
	}
	if len(entry.Fields) > 0 {
		record.Fields = make(map[string]string, len(entry.Fields))
		for name, value := range entry.Fields {
			record.Fields[name] = value
		}
	}
	return record
}
