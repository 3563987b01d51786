// Package parsers loads batch input documents: ledger record files and
// registry files.
//
// Ledgers are JSON documents (YAML is accepted as well) holding one source
// tag and a list of records. Registries are YAML or JSON documents holding
// the known entities with their prior references. The format is chosen by
// file extension.
//
// Example usage:
//
//	left, err := parsers.LoadRecords("crunchbase.json")
//	registry, err := parsers.LoadRegistry("registry.yaml")
//
// Values that cannot be parsed inside an otherwise valid document, such as an
// unreadable date or amount, do not fail the load. The value is left unknown
// and the problem is reported in ParseStats.
package parsers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

// Format is the encoding of an input document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension. Unknown
// extensions are read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseError represents a value that could not be parsed
type ParseError struct {
	Position int
	Field    string
	Value    string
	Message  string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at entry %d (%s='%s'): %s: %v",
			e.Position, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at entry %d (%s='%s'): %s",
		e.Position, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for loading documents
type ParseConfig struct {
	// Source overrides the ledger tag of record files
	Source string

	// MaxFileSize rejects larger documents; zero disables the check
	MaxFileSize int64

	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		MaxFileSize:      256 << 20,
		ValidateEncoding: true,
	}
}

// BaseParser provides file access and decoding shared by the loaders
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent(component),
	}
}

// ReadFile reads a whole document, mapping failures to file errors
func (bp *BaseParser) ReadFile(path string) ([]byte, error) {
	bp.logger.WithField("file_path", path).Debug("Opening input file")

	info, err := os.Stat(path)
	if err != nil {
		return nil, fileError(path, err)
	}
	if info.IsDir() {
		return nil, errors.FileError(errors.CodeDirectoryError, path, fmt.Errorf("%s is a directory", path))
	}
	if bp.config.MaxFileSize > 0 && info.Size() > bp.config.MaxFileSize {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "file_size", info.Size(), nil).
			WithContext("file_path", path).
			WithSuggestion(fmt.Sprintf("split the input into files under %d bytes", bp.config.MaxFileSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to read input file")
		return nil, fileError(path, err)
	}

	if bp.config.ValidateEncoding && !utf8.Valid(data) {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, "", fmt.Errorf("invalid UTF-8 encoding detected")).
			WithSuggestion("save the file in UTF-8 encoding and try again")
	}
	return data, nil
}

// Decode unmarshals data in format into v
func (bp *BaseParser) Decode(path string, data []byte, format Format, v interface{}) error {
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to decode input file")
		return errors.ParseError(errors.CodeInvalidFormat, path, "", err)
	}
	return nil
}

func fileError(path string, err error) error {
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return errors.FileError(errors.CodeDirectoryError, path, err)
}

// ParseStats holds statistics about a load
type ParseStats struct {
	File          string
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(file string) *ParseStats {
	return &ParseStats{
		File:   file,
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d records (%d valid), %d errors",
		ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
