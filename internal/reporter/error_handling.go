package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/reconciler"
	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with fallbacks for the two
// outputs of a run: a structured report that fails to encode is retried as a
// console report, and a file that cannot be written is replaced by a backup
// next to it.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output", config, err).
			WithSuggestion("check the output section of the configuration")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes the report for result to writer
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.Result, writer io.Writer) error {
	if result == nil || result.Summary == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("provide a completed batch result")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("provide a valid output writer")
	}

	log := srg.logger.WithFields(logger.Fields{
		"run_id": result.RunID,
		"format": srg.config.Format,
	})

	err := srg.GenerateReport(result, writer)
	if err == nil {
		log.Debug("Report generated")
		return nil
	}
	if srg.config.Format == FormatConsole {
		return wrapOutputError("report generation", err)
	}

	log.WithError(err).Warn("Structured report failed, falling back to console format")
	return srg.generateConsoleFallback(result, writer, err)
}

// WriteReportFile writes the report for result to path
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.Result, path string) error {
	return srg.writeWithBackup(path, func(w io.Writer) error {
		return srg.GenerateReportSafely(result, w)
	})
}

// WriteRegistryFile writes the updated registry to path in format
func (srg *SafeReportGenerator) WriteRegistryFile(entries []*models.RegistryEntry, path string, format OutputFormat) error {
	err := srg.writeWithBackup(path, func(w io.Writer) error {
		return WriteRegistry(entries, w, format)
	})
	if err != nil {
		return err
	}

	srg.logger.WithFields(logger.Fields{
		"path":     path,
		"entities": len(entries),
		"format":   format,
	}).Info("Registry written")
	return nil
}

func (srg *SafeReportGenerator) generateConsoleFallback(result *reconciler.Result, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallback := &ReportGenerator{config: &fallbackConfig}

	fmt.Fprintf(writer, "NOTE: %s output failed, showing the console report instead\n", srg.config.Format)
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallback.GenerateReport(result, writer); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err))
	}
	return nil
}

// writeWithBackup runs write against a new file at path. When the file
// cannot be created or written for a file-system reason, the output goes to
// a backup path in the same directory instead.
func (srg *SafeReportGenerator) writeWithBackup(path string, write func(io.Writer) error) error {
	err := writeFile(path, write)
	if err == nil || !isFileError(err) {
		return err
	}

	backupPath := generateBackupPath(path)
	srg.logger.WithFields(logger.Fields{
		"original_file": path,
		"backup_file":   backupPath,
	}).WithError(err).Warn("Output failed, writing backup")

	if backupErr := writeFile(backupPath, write); backupErr != nil {
		return errors.FileError(errors.CodeFilePermission, path,
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", err, backupErr))
	}

	srg.logger.WithField("backup_file", backupPath).Warn("Output saved to backup location")
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func wrapOutputError(operation string, err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, operation, err).
		WithSuggestion("check the output destination and report format settings")
}

func isFileError(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || isSpaceError(err)
}

func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
