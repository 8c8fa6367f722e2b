package mailerrors

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateEntry indicates a unique constraint violation
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnectionLost indicates the IMAP session dropped; retryable with
	// backoff followed by a watermark resync
	ErrConnectionLost = errors.New("mailbox connection lost")

	// ErrMalformedMessage indicates a message that could not be normalized;
	// the message is skipped and logged, never fatal to the pipeline
	ErrMalformedMessage = errors.New("malformed message")

	// ErrClassifierUnavailable indicates a transient classifier failure
	// (timeout or service error); retryable with bounded attempts
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrClassifierRejected indicates the classifier refused the input;
	// non-retryable, the record stays unclassified
	ErrClassifierRejected = errors.New("classifier rejected input")

	// ErrIndexUnavailable indicates a transient search-index failure;
	// retryable, then the write is deferred to a later pass
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrRetrievalUnavailable indicates the vector store could not serve a
	// similarity query; surfaced as suggestion-unavailable
	ErrRetrievalUnavailable = errors.New("similarity retrieval unavailable")

	// ErrGenerationUnavailable indicates the generation model call failed;
	// surfaced as suggestion-unavailable
	ErrGenerationUnavailable = errors.New("reply generation unavailable")

	// ErrDeliveryExhausted indicates a notification exhausted its retry
	// budget; surfaced for operator visibility, never crashes the pipeline
	ErrDeliveryExhausted = errors.New("notification delivery exhausted")

	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal server error")
)

// Error codes for API responses
const (
	CodeNotFound              = "NOT_FOUND"
	CodeDuplicateEntry        = "DUPLICATE_ENTRY"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeConnectionLost        = "CONNECTION_LOST"
	CodeMalformedMessage      = "MALFORMED_MESSAGE"
	CodeClassifierUnavailable = "CLASSIFIER_UNAVAILABLE"
	CodeClassifierRejected    = "CLASSIFIER_REJECTED"
	CodeIndexUnavailable      = "INDEX_UNAVAILABLE"
	CodeSuggestionUnavailable = "SUGGESTION_UNAVAILABLE"
	CodeDeliveryExhausted     = "DELIVERY_EXHAUSTED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInternalError         = "INTERNAL_ERROR"
)

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// Wrap annotates err with a message while keeping it matchable by errors.Is
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Retryable reports whether the error is transient and worth retrying
// with backoff.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrConnectionLost),
		errors.Is(err, ErrClassifierUnavailable),
		errors.Is(err, ErrIndexUnavailable),
		errors.Is(err, ErrRetrievalUnavailable),
		errors.Is(err, ErrGenerationUnavailable):
		return true
	}
	return false
}

// GetErrorCode maps an error to its API error code
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicateEntry):
		return CodeDuplicateEntry
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrConnectionLost):
		return CodeConnectionLost
	case errors.Is(err, ErrMalformedMessage):
		return CodeMalformedMessage
	case errors.Is(err, ErrClassifierUnavailable):
		return CodeClassifierUnavailable
	case errors.Is(err, ErrClassifierRejected):
		return CodeClassifierRejected
	case errors.Is(err, ErrIndexUnavailable):
		return CodeIndexUnavailable
	case errors.Is(err, ErrRetrievalUnavailable), errors.Is(err, ErrGenerationUnavailable):
		return CodeSuggestionUnavailable
	case errors.Is(err, ErrDeliveryExhausted):
		return CodeDeliveryExhausted
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternalError
	}
}
