package errors

import stderrors "errors"

// RagError carries a stable code plus the metadata derived from it. Two
// RagErrors are equal under errors.Is when their codes match, so
//
//	errors.Is(err, New(ErrCodeFlushFailed, "", nil))
//
// tests for a code anywhere in the chain.
type RagError struct {
	Code     string
	Message  string
	Category Category
	Severity Severity
	// Retryable marks transient failures such as timeouts and rate limits.
	Retryable bool

	Details    map[string]string
	Suggestion string
	Cause      error
}

func (e *RagError) Error() string { return "[" + e.Code + "] " + e.Message }

func (e *RagError) Unwrap() error { return e.Cause }

func (e *RagError) Is(target error) bool {
	t, ok := target.(*RagError)
	return ok && t.Code == e.Code
}

// WithDetail records key=value on e and returns it.
func (e *RagError) WithDetail(key, value string) *RagError {
	if e.Details == nil {
		e.Details = map[string]string{key: value}
		return e
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches the hint shown to users and returns e.
func (e *RagError) WithSuggestion(hint string) *RagError {
	e.Suggestion = hint
	return e
}

// New builds a RagError whose category, severity and retryability follow
// from code.
func New(code, message string, cause error) *RagError {
	e := &RagError{Code: code, Message: message, Cause: cause}
	e.Category, e.Severity, e.Retryable = classify(code)
	return e
}

// Wrap uses err's text as the message. A nil err yields nil.
func Wrap(code string, err error) *RagError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func ConfigError(message string, cause error) *RagError {
	return New(ErrCodeConfigInvalid, message, cause)
}

func ValidationError(message string, cause error) *RagError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NetworkError is retryable.
func NetworkError(message string, cause error) *RagError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// find returns the outermost RagError in err's chain, or nil.
func find(err error) *RagError {
	var re *RagError
	if stderrors.As(err, &re) {
		return re
	}
	return nil
}

func IsRetryable(err error) bool {
	re := find(err)
	return re != nil && re.Retryable
}

func IsFatal(err error) bool {
	re := find(err)
	return re != nil && re.Severity == SeverityFatal
}

// GetCode returns "" when err holds no RagError.
func GetCode(err error) string {
	if re := find(err); re != nil {
		return re.Code
	}
	return ""
}
