package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryIdentity      ErrorCategory = "identity"
	CategoryConsolidation ErrorCategory = "consolidation"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeDirectoryError ErrorCode = "directory_error"

	// Parse errors
	CodeInvalidFormat  ErrorCode = "invalid_format"
	CodeMalformedField ErrorCode = "malformed_field"

	// Validation errors
	CodeInvalidAmount   ErrorCode = "invalid_amount"
	CodeInvalidDate     ErrorCode = "invalid_date"
	CodeMissingField    ErrorCode = "missing_field"
	CodeDuplicateRecord ErrorCode = "duplicate_record"
	CodeOutOfRange      ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Identity errors
	CodeRegistryConflict ErrorCode = "registry_conflict"
	CodeAliasConflict    ErrorCode = "alias_conflict"
	CodeUnknownEntity    ErrorCode = "unknown_entity"

	// Consolidation errors
	CodeSequenceMismatch ErrorCode = "sequence_mismatch"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeCancelled       ErrorCode = "cancelled"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category" yaml:"category"`
	Code       ErrorCode         `json:"code" yaml:"code"`
	Message    string            `json:"message" yaml:"message"`
	Suggestion string            `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty" yaml:"context,omitempty"`
	Cause      error             `json:"-" yaml:"-"`
	StackTrace errors.StackTrace `json:"-" yaml:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// IsWarning reports whether the error is recovered locally and only
// accumulates into the review report.
func (e *ReconcilerError) IsWarning() bool {
	return e.Code == CodeMalformedField || e.Code == CodeDuplicateRecord || e.Code == CodeInvalidDate
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryIdentity, CategoryConsolidation, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// Detailed returns a multi-line description suitable for review output.
func (e *ReconcilerError) Detailed() string {
	lines := []string{fmt.Sprintf("%s [%s/%s]", e.Message, e.Category, e.Code)}

	keys := make([]string, 0, len(e.Context))
	for key := range e.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %v", key, e.Context[key]))
	}

	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  suggestion: %s", e.Suggestion))
	}
	if e.Cause != nil {
		lines = append(lines, fmt.Sprintf("  cause: %v", e.Cause))
	}

	return strings.Join(lines, "\n")
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// Specific error constructors

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates an error for an input document that cannot be decoded
func ParseError(code ErrorCode, file string, value string, err error) *ReconcilerError {
	message := fmt.Sprintf("cannot decode %s", file)
	suggestion := "check the document syntax and field names"
	if value != "" {
		message = fmt.Sprintf("invalid value in %s: '%s'", file, value)
		suggestion = "correct the value or remove the entry"
	}

	return build(CategoryParse, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file", file)
}

// MalformedFieldError reports a party field entry that yields no valid name.
// It is a warning: the entry is discarded and processing continues.
func MalformedFieldError(field, value, reason string) *ReconcilerError {
	return New(CategoryParse, CodeMalformedField,
		fmt.Sprintf("discarded entry '%s' in field '%s': %s", value, field, reason)).
		WithSuggestion("fix the source text or add the name to the registry").
		WithContext("field", field).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD or YYYY-MM"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeDuplicateRecord:
		message = fmt.Sprintf("duplicate record identifier in field '%s': %v", field, value)
		suggestion = "origin identifiers must be unique within their source"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(CategoryValidation, code, message, err).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	case CodeConfigConflict:
		message = fmt.Sprintf("configuration conflict with setting '%s': %v", setting, value)
		suggestion = "resolve the conflicting settings or use default values"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// IdentityError creates a registry or resolution error for a name
func IdentityError(code ErrorCode, name string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeRegistryConflict:
		message = fmt.Sprintf("registry changed concurrently while proposing '%s'", name)
		suggestion = "rerun the batch; the record was skipped"
	case CodeAliasConflict:
		message = fmt.Sprintf("name '%s' is already registered to another entity", name)
		suggestion = "aliases are unique across entities; retire or rename one of them"
	case CodeUnknownEntity:
		message = fmt.Sprintf("no entity registered for '%s'", name)
		suggestion = "check the entity identifier"
	default:
		message = fmt.Sprintf("identity error for '%s'", name)
		suggestion = "review the registry contents"
	}

	return build(CategoryIdentity, code, message, err).
		WithSuggestion(suggestion).
		WithContext("name", name)
}

// SequenceMismatchError reports an identifier list and role list of different
// lengths. The affected record is rejected rather than misaligned.
func SequenceMismatchError(entity string, identifiers, roles int) *ReconcilerError {
	return New(CategoryConsolidation, CodeSequenceMismatch,
		fmt.Sprintf("reference lists for '%s' are misaligned: %d identifiers, %d roles", entity, identifiers, roles)).
		WithSuggestion("repair the reference lists so every identifier has exactly one role").
		WithContext("entity", entity).
		WithContext("identifiers", identifiers).
		WithContext("roles", roles)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	case CodeCancelled:
		message = fmt.Sprintf("%s was cancelled", operation)
		suggestion = "rerun the batch to completion"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	return build(CategoryInternal, code, message, err).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total" yaml:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category" yaml:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code" yaml:"by_code"`
	Errors       []*ReconcilerError    `json:"-" yaml:"-"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty" yaml:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*ReconcilerError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// Utility functions

// IsReconcilerError checks if an error is a ReconcilerError
func IsReconcilerError(err error) bool {
	_, ok := AsReconcilerError(err)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// HasCode reports whether err carries a ReconcilerError with the given code
func HasCode(err error, code ErrorCode) bool {
	reconcilerErr, ok := AsReconcilerError(err)
	return ok && reconcilerErr.Code == code
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
