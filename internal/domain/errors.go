package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeOCR        ErrorType = "ocr"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeAssembly   ErrorType = "assembly"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeIO         ErrorType = "io"

	// ErrorTypeInternal is reported by KindOf for errors that were never classified.
	ErrorTypeInternal ErrorType = "internal"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func OCRError(message string, err error) *DomainError {
	return NewError(ErrorTypeOCR, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func AssemblyError(message string, err error) *DomainError {
	return NewError(ErrorTypeAssembly, message, err)
}

func CancelledError(message string, err error) *DomainError {
	return NewError(ErrorTypeCancelled, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// KindOf returns the classification of the outermost DomainError in err's
// chain. Context cancellation and deadline errors are reported as cancelled.
func KindOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeCancelled
	}
	return ErrorTypeInternal
}

// IsKind reports whether err is classified as t.
func IsKind(err error, t ErrorType) bool {
	return KindOf(err) == t
}

// UserMessage renders an error for display to an end user: the
// classification's headline followed by the underlying detail.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var headline string
	switch KindOf(err) {
	case ErrorTypeValidation:
		headline = "Invalid request"
	case ErrorTypeRender:
		headline = "Could not render the document"
	case ErrorTypeOCR:
		headline = "Text recognition failed"
	case ErrorTypeConfig:
		headline = "OCR engine is not configured correctly"
	case ErrorTypeAssembly:
		headline = "Could not build the output document"
	case ErrorTypeCancelled:
		headline = "Conversion was cancelled"
	default:
		headline = "Conversion failed"
	}
	return headline + ": " + err.Error()
}
