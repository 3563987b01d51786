package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"entity-resolution-service/cmd/resolver/config"
	"entity-resolution-service/internal/parsers"
	"entity-resolution-service/internal/reconciler"
	"entity-resolution-service/internal/reporter"
	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

// Flags for the run command
var (
	leftFile       string
	rightFile      string
	registryFile   string
	outputFormat   string
	outputFile     string
	registryOut    string
	registryFormat string
	showProgress   bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve entities across two ledgers in one batch",
	Long: `Run loads two ledgers of investment records and an entity registry,
then performs the whole batch in one pass: cross-ledger deduplication,
company identity resolution and consolidation into canonical records.

Ledgers are JSON (or YAML) documents with a "records" list. The registry is a
YAML (or JSON) document with an "entities" list. Either ledger may be omitted,
and a run without a registry starts from an empty one.

Examples:
  # Basic run
  resolver run --left crunchbase.json --right pitchbook.json --registry registry.yaml

  # Structured output with the matching audit trail
  resolver run --left a.json --right b.json --registry registry.yaml \
    --output-format json --output-file result.json --audit-trail

  # Persist new entities, aliases and references for the next run
  resolver run --left a.json --right b.json --registry registry.yaml \
    --registry-out registry.next.yaml

  # Prefer the right ledger's values when merging duplicate deals
  resolver run --left a.json --right b.json --authoritative-source pitchbook`,

	PreRunE: validateRunFlags,
	RunE:    runResolve,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Input flags
	runCmd.Flags().StringVarP(&leftFile, "left", "l", "", "path to the left ledger file")
	runCmd.Flags().StringVarP(&rightFile, "right", "r", "", "path to the right ledger file")
	runCmd.Flags().StringVarP(&registryFile, "registry", "g", "", "path to the entity registry file")

	// Output flags
	runCmd.Flags().StringVarP(&outputFormat, "output-format", "f", string(reporter.FormatConsole), "output format: console, json, yaml")
	runCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	runCmd.Flags().Bool("audit-trail", false, "include scored pairs, duplicate groups and contested records")
	runCmd.Flags().Bool("transactions", false, "include the resolved transaction set")
	runCmd.Flags().StringVar(&registryOut, "registry-out", "", "write the updated registry to this path")
	runCmd.Flags().StringVar(&registryFormat, "registry-format", "", "registry output format: yaml, json (default: from extension)")

	// Engine flags
	runCmd.Flags().String("authoritative-source", "", "ledger whose values win when duplicate deals are merged")
	runCmd.Flags().Int("workers", runtime.NumCPU(), "parallel workers for parsing and signature derivation")

	// UI flags
	runCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	// Bind flags to viper
	viper.BindPFlag("left", runCmd.Flags().Lookup("left"))
	viper.BindPFlag("right", runCmd.Flags().Lookup("right"))
	viper.BindPFlag("registry", runCmd.Flags().Lookup("registry"))
	viper.BindPFlag("output.format", runCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", runCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("output.include_audit_trail", runCmd.Flags().Lookup("audit-trail"))
	viper.BindPFlag("output.include_transactions", runCmd.Flags().Lookup("transactions"))
	viper.BindPFlag("registry-out", runCmd.Flags().Lookup("registry-out"))
	viper.BindPFlag("registry-format", runCmd.Flags().Lookup("registry-format"))
	viper.BindPFlag("authoritative_source", runCmd.Flags().Lookup("authoritative-source"))
	viper.BindPFlag("workers", runCmd.Flags().Lookup("workers"))
	viper.BindPFlag("progress", runCmd.Flags().Lookup("progress"))
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	leftFile = viper.GetString("left")
	rightFile = viper.GetString("right")
	registryFile = viper.GetString("registry")
	outputFormat = viper.GetString("output.format")
	outputFile = viper.GetString("output-file")
	registryOut = viper.GetString("registry-out")
	registryFormat = viper.GetString("registry-format")
	showProgress = viper.GetBool("progress")

	if leftFile == "" && rightFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "left", nil,
			fmt.Errorf("at least one ledger file is required")).
			WithSuggestion("pass --left and/or --right")
	}

	inputs := []struct {
		path        string
		description string
	}{
		{leftFile, "left ledger"},
		{rightFile, "right ledger"},
		{registryFile, "registry"},
	}
	for _, input := range inputs {
		if input.path == "" {
			continue
		}
		if err := validateFileExists(input.path, input.description); err != nil {
			return err
		}
	}

	if outputFormat != "" && !reporter.OutputFormat(outputFormat).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", outputFormat,
			fmt.Errorf("invalid output format '%s'. Valid formats: console, json, yaml", outputFormat))
	}

	if registryOut != "" {
		if _, err := config.RegistryFormat(registryFormat, registryOut); err != nil {
			return err
		}
	}

	for _, path := range []string{outputFile, registryOut} {
		if path == "" {
			continue
		}
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeDirectoryError, dir, err).
					WithSuggestion("create the output directory first")
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).WithContext("input", description)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("input", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).WithContext("input", description)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := setupLogging(appConfig.Logging); err != nil {
		return err
	}
	log := logger.GetGlobalLogger().WithComponent("cli")

	log.WithFields(logger.Fields{
		"left":     leftFile,
		"right":    rightFile,
		"registry": registryFile,
		"format":   appConfig.Output.Format,
	}).Info("Starting batch run")

	batch, err := loadBatch(leftFile, rightFile, registryFile)
	if err != nil {
		return err
	}

	engine, err := reconciler.NewEngine(appConfig.Engine)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	if showProgress {
		engine.AddProgressCallback(func(progress *reconciler.Progress) {
			fmt.Fprintf(stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
	}

	result, err := engine.Process(ctx, batch)
	if showProgress {
		fmt.Fprintf(stderr, "\n")
	}
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(appConfig.Output, log)
	if err != nil {
		return err
	}
	if err := writeOutputs(generator, cmd.OutOrStdout(), result); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		summary := result.Summary
		fmt.Fprintf(stderr, "\nBatch run %s completed.\n", result.RunID)
		fmt.Fprintf(stderr, "Resolved %d transactions from %d left and %d right records (%d merged).\n",
			summary.ResolvedTransactions, summary.LeftRecords, summary.RightRecords, summary.MergedTransactions)
		fmt.Fprintf(stderr, "Consolidated %d records: %d existing and %d newly proposed entities.\n",
			summary.CanonicalRecords, summary.ExistingEntities, summary.ProposedEntities)
		if n := result.Review.Len(); n > 0 {
			fmt.Fprintf(stderr, "%d items need review.\n", n)
		}
		fmt.Fprintf(stderr, "Processing time: %v\n", summary.ProcessingDuration)
	}

	return nil
}

// loadBatch reads the input files of one run; empty paths are skipped
func loadBatch(left, right, registry string) (*reconciler.Batch, error) {
	batch := &reconciler.Batch{}

	var err error
	if left != "" {
		if batch.Left, err = parsers.LoadRecords(left); err != nil {
			return nil, err
		}
	}
	if right != "" {
		if batch.Right, err = parsers.LoadRecords(right); err != nil {
			return nil, err
		}
	}
	if registry != "" {
		if batch.Registry, err = parsers.LoadRegistry(registry); err != nil {
			return nil, err
		}
	}

	return batch, nil
}

func writeOutputs(generator *reporter.SafeReportGenerator, stdout io.Writer, result *reconciler.Result) error {
	var err error
	if outputFile != "" {
		err = generator.WriteReportFile(result, outputFile)
	} else {
		err = generator.GenerateReportSafely(result, stdout)
	}
	if err != nil {
		return err
	}

	if registryOut == "" {
		return nil
	}
	format, err := config.RegistryFormat(registryFormat, registryOut)
	if err != nil {
		return err
	}
	return generator.WriteRegistryFile(result.Registry, registryOut, format)
}
