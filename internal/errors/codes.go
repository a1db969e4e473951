// Package errors provides structured error handling for casesearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index and snapshot persistence errors
//   - 3XX: Embedding provider errors
//   - 4XX: Request validation errors
//   - 5XX: Internal errors (ranking, build coordination)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIndex indicates index build, snapshot and persistence errors.
	CategoryIndex Category = "INDEX"
	// CategoryProvider indicates embedding provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates request validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid  = "ERR_101_INVALID_CONFIG"
	ErrCodeConfigNotFound = "ERR_102_CONFIG_NOT_FOUND"

	// Index errors (200-299)
	ErrCodeIndexNotBuilt     = "ERR_201_INDEX_NOT_BUILT"
	ErrCodeSnapshotSave      = "ERR_202_SNAPSHOT_SAVE"
	ErrCodeSnapshotLoad      = "ERR_203_SNAPSHOT_LOAD"
	ErrCodeCorruptSnapshot   = "ERR_204_CORRUPT_SNAPSHOT"
	ErrCodeSourceUnavailable = "ERR_205_SOURCE_UNAVAILABLE"

	// Provider errors (300-399)
	ErrCodeEmbeddingFailed     = "ERR_301_EMBEDDING_FAILED"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"
	ErrCodeProviderTimeout     = "ERR_303_PROVIDER_TIMEOUT"
	ErrCodeDimensionMismatch   = "ERR_304_DIMENSION_MISMATCH"

	// Validation errors (400-499)
	ErrCodeInvalidQuery  = "ERR_401_INVALID_QUERY"
	ErrCodeInvalidMode   = "ERR_402_INVALID_MODE"
	ErrCodeInvalidOffset = "ERR_403_INVALID_OFFSET"
	ErrCodeInvalidLimit  = "ERR_404_INVALID_LIMIT"
	ErrCodeInvalidPrefix = "ERR_405_INVALID_PREFIX"
	ErrCodeInvalidInput  = "ERR_406_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeRankingFailed   = "ERR_501_RANKING_FAILED"
	ErrCodeInternal        = "ERR_502_INTERNAL"
	ErrCodeBuildInProgress = "ERR_503_BUILD_IN_PROGRESS"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "201" from "ERR_201_INDEX_NOT_BUILT"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIndex
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexNotBuilt, ErrCodeProviderUnavailable, ErrCodeProviderTimeout, ErrCodeBuildInProgress:
		return true
	default:
		return false
	}
}
