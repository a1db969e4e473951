package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// CaseError is the structured error type for casesearch.
// It carries enough context for logging, CLI output and API error lists.
type CaseError struct {
	// Code is the unique error code (e.g., "ERR_201_INDEX_NOT_BUILT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *CaseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CaseError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works against sentinel values.
func (e *CaseError) Is(target error) bool {
	if t, ok := target.(*CaseError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CaseError) WithDetail(key, value string) *CaseError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *CaseError) WithSuggestion(suggestion string) *CaseError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CaseError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CaseError {
	return &CaseError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CaseError from an existing error.
func Wrap(code string, err error) *CaseError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CaseError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IndexNotBuiltError reports that no snapshot is loaded yet.
func IndexNotBuiltError(message string) *CaseError {
	return New(ErrCodeIndexNotBuilt, message, nil).
		WithSuggestion("Run 'casesearch index' to build the index")
}

// PersistenceError creates a snapshot save/load error.
func PersistenceError(code string, message string, cause error) *CaseError {
	return New(code, message, cause)
}

// EmbeddingError creates an embedding provider error.
func EmbeddingError(message string, cause error) *CaseError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *CaseError {
	return New(ErrCodeInvalidInput, message, cause)
}

// RankingError creates an internal fusion/ranking error.
func RankingError(message string, cause error) *CaseError {
	return New(ErrCodeRankingFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CaseError {
	return New(ErrCodeInternal, message, cause)
}

// ValidationErrors collects every validation failure of one request.
// Callers report all of them at once rather than the first.
type ValidationErrors []*CaseError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Messages returns the plain messages, for API error lists.
func (v ValidationErrors) Messages() []string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

// Codes returns the sorted distinct codes.
func (v ValidationErrors) Codes() []string {
	seen := make(map[string]bool, len(v))
	var codes []string
	for _, e := range v {
		if !seen[e.Code] {
			seen[e.Code] = true
			codes = append(codes, e.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

// OrNil returns nil for an empty list so callers can return it directly.
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// As finds the first CaseError in err's chain.
func As(err error) (*CaseError, bool) {
	var ce *CaseError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if ce, ok := As(err); ok {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ce, ok := As(err); ok {
		return ce.Severity == SeverityFatal
	}
	return false
}

// IsValidation reports whether err is a single or aggregated validation failure.
func IsValidation(err error) bool {
	var ve ValidationErrors
	if stderrors.As(err, &ve) {
		return true
	}
	if ce, ok := As(err); ok {
		return ce.Category == CategoryValidation
	}
	return false
}

// HasCode reports whether any CaseError in err's chain carries code.
func HasCode(err error, code string) bool {
	return stderrors.Is(err, &CaseError{Code: code})
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category, or "" for foreign errors.
func GetCategory(err error) Category {
	if ce, ok := As(err); ok {
		return ce.Category
	}
	return ""
}
