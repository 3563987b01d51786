package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-resolution-service/internal/matcher"
	"entity-resolution-service/internal/reconciler"
	"entity-resolution-service/internal/reporter"
	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

func loadFile(t *testing.T, path string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resolver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load(viper.New())
	require.NoError(t, err)

	defaults := reconciler.DefaultConfig()
	assert.Equal(t, defaults.Matching, config.Engine.Matching)
	assert.Equal(t, defaults.Identity, config.Engine.Identity)
	assert.Equal(t, defaults.Parties, config.Engine.Parties)
	assert.Equal(t, defaults.Workers, config.Engine.Workers)
	assert.Equal(t, logger.DefaultConfig(), config.Logging)
	assert.Equal(t, reporter.DefaultReportConfig(), config.Output)
}

func TestLoadFixture(t *testing.T) {
	config, err := Load(loadFile(t, "../../../testdata/config.yaml"))
	require.NoError(t, err)

	engine := config.Engine
	assert.Equal(t, 0.70, engine.Matching.DuplicateThreshold)
	assert.Equal(t, 0.50, engine.Matching.AuditFloor)
	assert.Equal(t, matcher.AlgorithmOSA, engine.Matching.Algorithm)
	assert.True(t, engine.Matching.PruneByYear)

	assert.Equal(t, 0.89, engine.Identity.FuzzyThreshold)
	assert.Equal(t, 0.95, engine.Identity.SingleWordThreshold)
	assert.Equal(t, 0.6, engine.Identity.SingleWordCoverage)
	assert.Equal(t, 4, engine.Identity.MinFuzzyLength)
	assert.False(t, engine.Identity.AutoConfirm)
	// viper lower-cases map keys; confirmations are matched on normalized names
	assert.Equal(t, map[string]int64{"rockaway venture": 2}, engine.Identity.Confirmations)

	assert.Equal(t, 3, engine.Parties.CoLeadCutoff)
	assert.Equal(t, "Undisclosed", engine.Parties.Sentinel)
	assert.Equal(t, "Private", engine.Consolidation.Defaults["ownership"])

	assert.Equal(t, "pitchbook", engine.AuthoritativeSource)
	assert.True(t, engine.DetectWithinLedger)
	assert.Equal(t, 4, engine.Workers)

	assert.Equal(t, logger.TextFormat, config.Logging.Format)
	assert.Equal(t, logger.StderrOutput, config.Logging.Output)
	assert.Equal(t, reporter.FormatConsole, config.Output.Format)
	assert.Equal(t, 25, config.Output.MaxItems)
}

func TestLoadPartialSectionKeepsDefaults(t *testing.T) {
	config, err := Load(loadFile(t, writeConfig(t, `
matching:
  duplicate_threshold: 0.8
output:
  format: yaml
`)))
	require.NoError(t, err)

	defaults := matcher.DefaultMatchingConfig()
	assert.Equal(t, 0.8, config.Engine.Matching.DuplicateThreshold)
	assert.Equal(t, defaults.AuditFloor, config.Engine.Matching.AuditFloor)
	assert.Equal(t, defaults.Weights, config.Engine.Matching.Weights)
	assert.Equal(t, reporter.FormatYAML, config.Output.Format)
	assert.True(t, config.Output.IncludeRecords)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "threshold out of range", content: "matching:\n  duplicate_threshold: 1.5\n"},
		{name: "unknown algorithm", content: "matching:\n  algorithm: soundex\n"},
		{name: "zero workers", content: "workers: 0\n"},
		{name: "bad log level", content: "logging:\n  level: loud\n"},
		{name: "bad output format", content: "output:\n  format: csv\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(loadFile(t, writeConfig(t, tt.content)))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig), "got %v", err)
		})
	}
}

func TestRegistryFormat(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		path     string
		expected reporter.OutputFormat
		wantErr  bool
	}{
		{name: "from yaml extension", path: "registry.yaml", expected: reporter.FormatYAML},
		{name: "from json extension", path: "out/registry.JSON", expected: reporter.FormatJSON},
		{name: "unknown extension", path: "registry.next", expected: reporter.FormatYAML},
		{name: "explicit wins", explicit: "JSON", path: "registry.yaml", expected: reporter.FormatJSON},
		{name: "console is not a registry format", explicit: "console", path: "registry.yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, err := RegistryFormat(tt.explicit, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, format)
		})
	}
}
