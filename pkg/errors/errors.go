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
	CategoryInference     ErrorCategory = "inference"
	CategorySchema        ErrorCategory = "schema"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryPipeline      ErrorCategory = "pipeline"
	CategoryNetwork       ErrorCategory = "network"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeFileEmpty      ErrorCode = "file_empty"
	CodeDirectoryError ErrorCode = "directory_error"
	CodeWriteFailed    ErrorCode = "write_failed"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeEncodingError ErrorCode = "encoding_error"
	CodeNoDataRows    ErrorCode = "no_data_rows"

	// Inference errors
	CodeHeaderNotFound         ErrorCode = "header_not_found"
	CodeIndexColumnsUnresolved ErrorCode = "index_columns_unresolved"
	CodeAmountColumnsGapped    ErrorCode = "amount_columns_not_contiguous"

	// Schema errors
	CodeSchemaMismatch    ErrorCode = "schema_mismatch"
	CodeYearRangeMismatch ErrorCode = "year_range_mismatch"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Pipeline errors
	CodeNothingToCombine ErrorCode = "nothing_to_combine"
	CodeNoInputFiles     ErrorCode = "no_input_files"
	CodeProcessingError  ErrorCode = "processing_error"
	CodeNoListings       ErrorCode = "no_listings"

	// Network errors
	CodeConnectionFailed ErrorCode = "connection_failed"
	CodeTimeout          ErrorCode = "timeout"
	CodeUnexpectedStatus ErrorCode = "unexpected_status"
	CodePayloadNotFound  ErrorCode = "payload_not_found"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeCancelled       ErrorCode = "cancelled"
)

// NormalizerError is the base error type for all application errors
type NormalizerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *NormalizerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *NormalizerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *NormalizerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryInference, CategorySchema:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryPipeline, CategoryInternal:
		return 5
	case CategoryNetwork:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *NormalizerError) WithContext(key string, value interface{}) *NormalizerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *NormalizerError) WithSuggestion(suggestion string) *NormalizerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new NormalizerError
func New(category ErrorCategory, code ErrorCode, message string) *NormalizerError {
	return &NormalizerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with NormalizerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *NormalizerError {
	if err == nil {
		return nil
	}

	return &NormalizerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *NormalizerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *NormalizerError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "verify the file integrity and export it again"
	case CodeFileEmpty:
		message = fmt.Sprintf("file is empty: %s", path)
		suggestion = "re-export the regional table; the file contains no rows"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	case CodeWriteFailed:
		message = fmt.Sprintf("failed to write file: %s", path)
		suggestion = "check that the output directory is writable and has free space"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, line int, err error) *NormalizerError {
	var message, suggestion string

	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid CSV in file %s at line %d", file, line)
		suggestion = "check quoting and separators; the file must be comma separated"
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in file %s at line %d", file, line)
		suggestion = "ensure the file is saved in UTF-8 encoding"
	case CodeNoDataRows:
		message = fmt.Sprintf("no data rows in file %s after line %d", file, line)
		suggestion = "check that the file contains data below its header rows"
	default:
		message = fmt.Sprintf("parse error in file %s at line %d", file, line)
		suggestion = "check the file format and data integrity"
	}

	return build(CategoryParse, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line)
}

// InferenceError creates an error describing a failed layout heuristic.
// These are reported as warnings; the pipeline degrades instead of failing.
func InferenceError(code ErrorCode, file string, detail string) *NormalizerError {
	var message, suggestion string

	switch code {
	case CodeHeaderNotFound:
		message = fmt.Sprintf("could not determine year header or data start row in %s: %s", file, detail)
		suggestion = "the file is processed with generic column names; check its header rows"
	case CodeIndexColumnsUnresolved:
		message = fmt.Sprintf("could not determine index columns in %s: %s", file, detail)
		suggestion = "index values are left empty; amounts are still mapped"
	case CodeAmountColumnsGapped:
		message = fmt.Sprintf("amount columns are not contiguous in %s: %s", file, detail)
		suggestion = "amounts are read from the columns under each year; check the header for merged or hidden columns"
	default:
		message = fmt.Sprintf("layout inference problem in %s: %s", file, detail)
		suggestion = "check the header rows of the file"
	}

	return New(CategoryInference, code, message).
		WithSuggestion(suggestion).
		WithContext("file", file)
}

// SchemaError creates a schema-related error
func SchemaError(code ErrorCode, file string, expected, actual int) *NormalizerError {
	var message, suggestion string

	switch code {
	case CodeSchemaMismatch:
		message = fmt.Sprintf("more columns mapped (%d) than read (%d) in %s", expected, actual, file)
		suggestion = "check the header parsing; the year header does not match the data rows"
	case CodeYearRangeMismatch:
		message = fmt.Sprintf("table %s spans %d years, expected %d", file, actual, expected)
		suggestion = "align every table to the same canonical year range before combining"
	default:
		message = fmt.Sprintf("schema error in %s", file)
		suggestion = "check the file layout"
	}

	return New(CategorySchema, code, message).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("expected", expected).
		WithContext("actual", actual)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *NormalizerError {
	var message, suggestion string

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

// PipelineError creates a run-level error
func PipelineError(code ErrorCode, operation string, err error) *NormalizerError {
	var message, suggestion string

	switch code {
	case CodeNothingToCombine:
		message = fmt.Sprintf("no file was processed successfully during %s", operation)
		suggestion = "check the per-file errors above; nothing could be combined"
	case CodeNoInputFiles:
		message = fmt.Sprintf("no input files found for %s", operation)
		suggestion = "check the input directory and the file pattern"
	case CodeNoListings:
		message = fmt.Sprintf("no page could be scraped during %s", operation)
		suggestion = "check the URLs and the per-page errors above"
	case CodeProcessingError:
		message = fmt.Sprintf("processing error during %s", operation)
		suggestion = "check system resources and try again"
	default:
		message = fmt.Sprintf("pipeline error during %s", operation)
		suggestion = "review the input files and configuration"
	}

	return build(CategoryPipeline, code, message, err).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// NetworkError creates a network-related error
func NetworkError(code ErrorCode, endpoint string, err error) *NormalizerError {
	var message, suggestion string

	switch code {
	case CodeConnectionFailed:
		message = fmt.Sprintf("connection failed to %s", endpoint)
		suggestion = "check network connectivity and endpoint availability"
	case CodeTimeout:
		message = fmt.Sprintf("timeout fetching %s", endpoint)
		suggestion = "increase the timeout or check network speed"
	case CodeUnexpectedStatus:
		message = fmt.Sprintf("unexpected response status from %s", endpoint)
		suggestion = "the site may be blocking automated requests; try again later"
	case CodePayloadNotFound:
		message = fmt.Sprintf("price data not found in page %s", endpoint)
		suggestion = "the page structure may have changed; inspect the __NEXT_DATA__ content"
	default:
		message = fmt.Sprintf("network error: %s", endpoint)
		suggestion = "check network connection and try again"
	}

	return build(CategoryNetwork, code, message, err).
		WithSuggestion(suggestion).
		WithContext("endpoint", endpoint)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *NormalizerError {
	var message, suggestion string

	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	case CodeCancelled:
		message = fmt.Sprintf("%s was cancelled", operation)
		suggestion = "run the command again to process the remaining files"
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
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*NormalizerError    `json:"errors"`
	SampleErrors []*NormalizerError    `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*NormalizerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*NormalizerError{}
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

// IsNormalizerError checks if an error is a NormalizerError
func IsNormalizerError(err error) bool {
	_, ok := err.(*NormalizerError)
	return ok
}

// AsNormalizerError extracts a NormalizerError from an error chain
func AsNormalizerError(err error) (*NormalizerError, bool) {
	var normErr *NormalizerError
	if errors.As(err, &normErr) {
		return normErr, true
	}
	return nil, false
}

// HasCode reports whether any NormalizerError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	normErr, ok := AsNormalizerError(err)
	return ok && normErr.Code == code
}

// WrapIfNeeded wraps an error if it's not already a NormalizerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *NormalizerError {
	if err == nil {
		return nil
	}

	if normErr, ok := AsNormalizerError(err); ok {
		return normErr
	}

	return Wrap(err, category, code, message)
}
