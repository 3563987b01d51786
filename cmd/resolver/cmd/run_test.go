package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-resolution-service/internal/parsers"
	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

const testDataDir = "../../../testdata"

func fixture(name string) string {
	return filepath.Join(testDataDir, name)
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "ledger.json")
	require.NoError(t, os.WriteFile(validFile, []byte(`{"records": []}`), 0o644))

	tests := []struct {
		name     string
		filePath string
		code     errors.ErrorCode
	}{
		{name: "valid file", filePath: validFile},
		{name: "non-existent file", filePath: filepath.Join(tmpDir, "missing.json"), code: errors.CodeFileNotFound},
		{name: "directory instead of file", filePath: tmpDir, code: errors.CodeDirectoryError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "left ledger")
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestValidateRunFlags(t *testing.T) {
	left := fixture("crunchbase.json")
	right := fixture("pitchbook.json")

	tests := []struct {
		name       string
		setupFlags func()
		code       errors.ErrorCode
	}{
		{
			name: "valid flags",
			setupFlags: func() {
				viper.Set("left", left)
				viper.Set("right", right)
				viper.Set("registry", fixture("registry.yaml"))
				viper.Set("output.format", "yaml")
			},
		},
		{
			name: "single ledger",
			setupFlags: func() {
				viper.Set("right", right)
			},
		},
		{
			name:       "no ledgers",
			setupFlags: func() {},
			code:       errors.CodeMissingField,
		},
		{
			name: "missing registry file",
			setupFlags: func() {
				viper.Set("left", left)
				viper.Set("registry", fixture("nope.yaml"))
			},
			code: errors.CodeFileNotFound,
		},
		{
			name: "invalid output format",
			setupFlags: func() {
				viper.Set("left", left)
				viper.Set("output.format", "csv")
			},
			code: errors.CodeInvalidConfig,
		},
		{
			name: "invalid registry format",
			setupFlags: func() {
				viper.Set("left", left)
				viper.Set("registry-out", filepath.Join(t.TempDir(), "registry.out"))
				viper.Set("registry-format", "toml")
			},
			code: errors.CodeInvalidConfig,
		},
		{
			name: "missing output directory",
			setupFlags: func() {
				viper.Set("left", left)
				viper.Set("output-file", filepath.Join(t.TempDir(), "missing", "report.json"))
			},
			code: errors.CodeDirectoryError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			tt.setupFlags()

			err := validateRunFlags(&cobra.Command{}, []string{})
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestRunCommandHelp(t *testing.T) {
	for _, name := range []string{"left", "right", "registry", "output-format", "output-file", "registry-out", "workers", "progress"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "flag %s", name)
	}

	var helpOutput bytes.Buffer
	runCmd.SetOut(&helpOutput)
	t.Cleanup(func() { runCmd.SetOut(nil) })
	require.NoError(t, runCmd.Help())

	helpText := helpOutput.String()
	for _, section := range []string{"Usage:", "Examples:", "Flags:", "--left", "--registry-out", "--authoritative-source"} {
		assert.Contains(t, helpText, section)
	}
}

func TestRunResolve(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	registryOutPath := filepath.Join(t.TempDir(), "registry.next.yaml")
	viper.Set("left", fixture("crunchbase.json"))
	viper.Set("right", fixture("pitchbook.json"))
	viper.Set("registry", fixture("registry.yaml"))
	viper.Set("registry-out", registryOutPath)
	viper.Set("output.format", "json")
	viper.Set("output.include_transactions", true)
	viper.Set("logging.output", string(logger.DiscardOutput))
	viper.Set("workers", 2)

	cmd := &cobra.Command{}
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, validateRunFlags(cmd, nil))
	require.NoError(t, runResolve(cmd, nil))

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.NotEmpty(t, report["run_id"])
	assert.Contains(t, report, "transactions")
	assert.Contains(t, report, "records")

	summary, ok := report["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 4, summary["left_records"])
	assert.EqualValues(t, 3, summary["right_records"])

	entries, err := parsers.LoadRegistry(registryOutPath)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 4)

	ids := make(map[int64]string, len(entries))
	for _, entry := range entries {
		ids[entry.ID] = entry.Name
	}
	assert.Equal(t, "Remedy Entertainment", ids[1])
	assert.Equal(t, "Undisclosed", ids[366])
}

func TestRunResolveMissingInput(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	missing := filepath.Join(t.TempDir(), "missing.json")
	_, err := loadBatch(missing, "", "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeFileNotFound))
}

func TestCLIErrorHandler(t *testing.T) {
	var out bytes.Buffer
	handler := &CLIErrorHandler{
		logger: logger.NewWithWriter(&bytes.Buffer{}, logger.ErrorLevel),
		out:    &out,
	}

	assert.Equal(t, 0, handler.HandleError(nil))

	err := errors.FileError(errors.CodeFileNotFound, "ledger.json", os.ErrNotExist).
		WithContext("input", "left ledger")
	assert.Equal(t, 2, handler.HandleError(err))
	assert.Contains(t, out.String(), "Error: file not found: ledger.json")
	assert.Contains(t, out.String(), "input: left ledger")
	assert.Contains(t, out.String(), "File error help:")

	out.Reset()
	assert.Equal(t, 4, handler.HandleError(errors.ConfigurationError(errors.CodeInvalidConfig, "output.format", "csv", nil)))
	assert.Contains(t, out.String(), "Configuration error help:")

	out.Reset()
	assert.Equal(t, 5, handler.HandleError(errors.SequenceMismatchError("Housemarque", 2, 1)))
	assert.Contains(t, out.String(), "Registry error help:")

	out.Reset()
	assert.Equal(t, 2, handler.HandleError(fmt.Errorf("open report.json: %w", os.ErrPermission)))
	assert.Contains(t, out.String(), "Permission denied")

	out.Reset()
	assert.Equal(t, 1, handler.HandleError(fmt.Errorf("boom")))
	assert.Contains(t, out.String(), "Error: boom")
}
