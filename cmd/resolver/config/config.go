// Package config maps the resolver's configuration file, environment and
// flags onto the configuration types of the packages that run a batch.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"entity-resolution-service/internal/reconciler"
	"entity-resolution-service/internal/reporter"
	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

// AppConfig holds every setting of one resolver invocation
type AppConfig struct {
	Engine  *reconciler.Config
	Logging *logger.Config
	Output  *reporter.ReportConfig
}

// ambient are the sections that do not belong to the batch engine
type ambient struct {
	Logging *logger.Config         `mapstructure:"logging"`
	Output  *reporter.ReportConfig `mapstructure:"output"`
}

// Load builds the application configuration from v. Settings absent from v
// keep their package defaults.
func Load(v *viper.Viper) (*AppConfig, error) {
	engine := reconciler.DefaultConfig()
	if err := v.Unmarshal(engine); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "engine", nil, err)
	}

	sections := ambient{
		Logging: logger.DefaultConfig(),
		Output:  reporter.DefaultReportConfig(),
	}
	if err := v.Unmarshal(&sections); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output", nil, err)
	}

	config := &AppConfig{
		Engine:  engine,
		Logging: sections.Logging,
		Output:  sections.Output,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate validates every section
func (c *AppConfig) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "engine", nil, err).
			WithSuggestion("check the matching, identity, parties and consolidation sections")
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", c.Logging, err)
	}
	if err := c.Output.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output.format", c.Output.Format, err).
			WithSuggestion("use one of: console, json, yaml")
	}
	return nil
}

// RegistryFormat resolves the write-back format: an explicit value wins,
// otherwise the extension of path decides and YAML is the fallback
func RegistryFormat(explicit, path string) (reporter.OutputFormat, error) {
	if explicit != "" {
		format := reporter.OutputFormat(strings.ToLower(explicit))
		if format != reporter.FormatJSON && format != reporter.FormatYAML {
			return "", errors.ConfigurationError(errors.CodeInvalidConfig, "registry-format", explicit,
				fmt.Errorf("registry can be written as json or yaml")).
				WithSuggestion("use --registry-format yaml or --registry-format json")
		}
		return format, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return reporter.FormatJSON, nil
	default:
		return reporter.FormatYAML, nil
	}
}
