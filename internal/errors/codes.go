// Package errors is the structured error model of ragindex. Every
// RagError carries a code of the form ERR_<nnn>_<NAME>; the hundreds digit
// gives the category:
//
//	1xx configuration
//	2xx local I/O and persisted state
//	3xx network (embedding provider, remote stores)
//	4xx input validation
//	5xx internal (embedding, search, index writes)
package errors

// Category groups codes by the hundreds digit.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells the caller whether to stop.
type Severity string

const (
	// SeverityFatal aborts the current run.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails one operation; the run can go on.
	SeverityError Severity = "ERROR"
	// SeverityWarning marks a transient, degraded condition.
	SeverityWarning Severity = "WARNING"
)

const (
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeFileTooLarge   = "ERR_204_FILE_TOO_LARGE"
	ErrCodeCorruptIndex   = "ERR_205_CORRUPT_INDEX"
	ErrCodeStateFailed    = "ERR_207_STATE_FAILED"
	ErrCodeLocked         = "ERR_208_PROJECT_LOCKED"

	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeRateLimited        = "ERR_304_RATE_LIMITED"

	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidPath       = "ERR_406_INVALID_PATH"
	ErrCodeUnknownSource     = "ERR_407_UNKNOWN_SOURCE"

	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeExtractFailed   = "ERR_504_EXTRACT_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
	ErrCodeFlushFailed     = "ERR_506_FLUSH_FAILED"
)

var categoryByDigit = map[byte]Category{
	'1': CategoryConfig,
	'2': CategoryIO,
	'3': CategoryNetwork,
	'4': CategoryValidation,
}

// fatalCodes leave the index in a state the run cannot build on.
var fatalCodes = map[string]bool{
	ErrCodeCorruptIndex: true,
	ErrCodeFlushFailed:  true,
}

// retryableCodes are transient and worth another attempt.
var retryableCodes = map[string]bool{
	ErrCodeNetworkTimeout:     true,
	ErrCodeNetworkUnavailable: true,
	ErrCodeRateLimited:        true,
}

// classify derives category, severity and retryability from a code.
// Malformed codes are internal errors.
func classify(code string) (Category, Severity, bool) {
	category := CategoryInternal
	if len(code) >= 7 && code[:4] == "ERR_" {
		if c, ok := categoryByDigit[code[4]]; ok {
			category = c
		}
	}

	retryable := retryableCodes[code]
	severity := SeverityError
	switch {
	case fatalCodes[code]:
		severity = SeverityFatal
	case retryable:
		severity = SeverityWarning
	}
	return category, severity, retryable
}
