package parsers

import (
	"fmt"
	"strings"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

// RegistryDocument is the on-disk shape of a registry. It is also the shape
// written back by the reporter.
type RegistryDocument struct {
	Entities []*models.RegistryEntry `json:"entities" yaml:"entities"`
}

// RegistryParser loads registry files
type RegistryParser struct {
	*BaseParser
}

// NewRegistryParser creates a new RegistryParser with the given configuration
func NewRegistryParser(config *ParseConfig) *RegistryParser {
	return &RegistryParser{BaseParser: NewBaseParser(config, "registry_parser")}
}

// LoadRegistry loads a registry file with the default configuration
func LoadRegistry(path string) ([]*models.RegistryEntry, error) {
	return NewRegistryParser(nil).ParseRegistry(path)
}

// ParseRegistry loads the registry at path. An unknown category fails the
// load; an empty one is left for the engine to default.
func (rp *RegistryParser) ParseRegistry(path string) ([]*models.RegistryEntry, error) {
	data, err := rp.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc RegistryDocument
	if err := rp.Decode(path, data, FormatFromPath(path), &doc); err != nil {
		return nil, err
	}

	entries := make([]*models.RegistryEntry, 0, len(doc.Entities))
	for i, entry := range doc.Entities {
		if entry == nil {
			continue
		}
		entry.Category = models.Category(strings.ToLower(strings.TrimSpace(string(entry.Category))))
		if entry.Category != "" && !entry.Category.IsValid() {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, string(entry.Category),
				fmt.Errorf("entity %d has unknown category", i)).
				WithContext("name", entry.Name)
		}
		entries = append(entries, entry)
	}

	rp.logger.WithFields(logger.Fields{
		"file_path": path,
		"entities":  len(entries),
	}).Info("Loaded registry")

	return entries, nil
}
