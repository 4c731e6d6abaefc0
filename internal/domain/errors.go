package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a batch failure.
type ErrorKind string

const (
	KindEmptyBatch      ErrorKind = "empty_batch"
	KindBatchTooLarge   ErrorKind = "batch_too_large"
	KindEmptyInput      ErrorKind = "empty_input"
	KindUnsupportedType ErrorKind = "unsupported_type"
	KindFileTooLarge    ErrorKind = "file_too_large"
	KindRemoteFetch     ErrorKind = "remote_fetch"
	KindConversion      ErrorKind = "conversion"
)

// Status maps the kind to the HTTP status surfaced to clients.
func (k ErrorKind) Status() int {
	switch k {
	case KindEmptyBatch, KindBatchTooLarge, KindEmptyInput, KindUnsupportedType, KindFileTooLarge:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a batch failure attributed to one source.
// Message is the human-readable detail returned to clients.
type Error struct {
	Kind    ErrorKind
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for this error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, source, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Source:  source,
		Message: message,
		Err:     err,
	}
}

func EmptyBatchError() *Error {
	return NewError(KindEmptyBatch, "", "Provide at least one file or drive_url.", nil)
}

func BatchTooLargeError(max int) *Error {
	return NewError(KindBatchTooLarge, "", fmt.Sprintf("A maximum of %s documents is allowed.", spellCount(max)), nil)
}

func EmptyInputError(name string) *Error {
	return NewError(KindEmptyInput, name, fmt.Sprintf("Empty file: %s", name), nil)
}

func UnsupportedTypeError(name, ext string, allowed []string) *Error {
	msg := fmt.Sprintf("Unsupported extension %s. Allowed: %s.", ext, strings.Join(allowed, ", "))
	return NewError(KindUnsupportedType, name, msg, nil)
}

func FileTooLargeError(name string, size, max int64) *Error {
	msg := fmt.Sprintf("File too large: %s (%d bytes, max %d)", name, size, max)
	return NewError(KindFileTooLarge, name, msg, nil)
}

func RemoteFetchError(name string, err error) *Error {
	return NewError(KindRemoteFetch, name, fmt.Sprintf("Failed to fetch %s: %v", name, err), err)
}

func ConversionError(name string, err error) *Error {
	return NewError(KindConversion, name, fmt.Sprintf("Failed to convert %s: %v", name, err), err)
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func spellCount(n int) string {
	words := []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}
	if n >= 0 && n < len(words) {
		return words[n]
	}
	return fmt.Sprint(n)
}
