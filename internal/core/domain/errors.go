package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an extraction failure.
type ErrorKind string

const (
	KindValidation         ErrorKind = "VALIDATION_ERROR"
	KindInitialization     ErrorKind = "INITIALIZATION_ERROR"
	KindImageLoad          ErrorKind = "IMAGE_LOAD_ERROR"
	KindExtraction         ErrorKind = "EXTRACTION_ERROR"
	KindTimeout            ErrorKind = "TIMEOUT"
	KindServiceUnavailable ErrorKind = "SERVICE_UNAVAILABLE"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInitialization     = errors.New("engine initialization failed")
	ErrImageLoad          = errors.New("image load failed")
	ErrExtraction         = errors.New("text extraction failed")
	ErrTimeout            = errors.New("operation timed out")
	ErrServiceUnavailable = errors.New("service unavailable")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:         ErrValidation,
	KindInitialization:     ErrInitialization,
	KindImageLoad:          ErrImageLoad,
	KindExtraction:         ErrExtraction,
	KindTimeout:            ErrTimeout,
	KindServiceUnavailable: ErrServiceUnavailable,
}

// Validation failure reasons.
const (
	ReasonNotFound          = "not_found"
	ReasonNotRegular        = "not_regular"
	ReasonEmpty             = "empty"
	ReasonTooLarge          = "too_large"
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonFormatTooLarge    = "format_too_large"
	ReasonCorrupt           = "corrupt"
	ReasonMemoryExceeded    = "memory_exceeded"
	ReasonInvalidConfig     = "invalid_config"
)

// Error is the typed error returned by every extraction component.
type Error struct {
	Kind    ErrorKind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel, so errors.Is(err, ErrTimeout) works through
// any amount of wrapping.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// NewError creates a new Error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewValidationError creates a validation Error carrying a reason code.
func NewValidationError(reason, message string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindExtraction for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExtraction
}

// ReasonOf returns the reason code of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
