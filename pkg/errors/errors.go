// Package errors provides coded errors for docdiff.
// It implements structured errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Comparison errors (1xx)
	CodeInsufficientSources Code = "E101"
	CodeComparisonFailed    Code = "E102"

	// Ingestion errors (2xx)
	CodeUnsupportedFormat Code = "E201"
	CodeIOFailed          Code = "E202"
	CodeParseFailed       Code = "E203"

	// Collaborator errors (3xx)
	CodeLLMFailed   Code = "E301"
	CodeVoiceFailed Code = "E302"

	// System errors (4xx)
	CodeCanceled Code = "E401"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all docdiff errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are sorted so the
// message is stable.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// Sentinels usable with errors.Is; matching is by code.
var (
	ErrInsufficientSources = &Error{Code: CodeInsufficientSources, Message: "insufficient sources"}
	ErrComparisonFailed    = &Error{Code: CodeComparisonFailed, Message: "comparison failed"}
	ErrUnsupportedFormat   = &Error{Code: CodeUnsupportedFormat, Message: "unsupported format"}
	ErrIO                  = &Error{Code: CodeIOFailed, Message: "i/o failure"}
	ErrParse               = &Error{Code: CodeParseFailed, Message: "parse failure"}
	ErrLLM                 = &Error{Code: CodeLLMFailed, Message: "llm request failed"}
	ErrVoice               = &Error{Code: CodeVoiceFailed, Message: "voice failure"}
)

// --- Convenience constructors ---

// InsufficientSources reports that a comparison received too few sources.
func InsufficientSources(got, want int) *Error {
	return New(CodeInsufficientSources, fmt.Sprintf("at least %d source(s) required", want)).
		WithContext("got", got)
}

// ComparisonFailed reports a recoverable failure of one pair.
func ComparisonFailed(left, right int, err error) *Error {
	return Wrap(err, CodeComparisonFailed, "comparison failed").
		WithContext("left", left).
		WithContext("right", right)
}

// UnsupportedFormat creates an unsupported format error.
func UnsupportedFormat(path string) *Error {
	return New(CodeUnsupportedFormat, "unsupported file type").WithContext("path", path)
}

// IOFailed wraps a read failure.
func IOFailed(path string, err error) *Error {
	return Wrap(err, CodeIOFailed, "read failed").WithContext("path", path)
}

// ParseFailed wraps a decode failure with its format.
func ParseFailed(format, path string, err error) *Error {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("path", path)
}

// Canceled creates a cancellation error.
func Canceled(operation string, err error) *Error {
	return Wrap(err, CodeCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return CodeUnknown
}

// IsRetryable returns true if the error is worth retrying.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeIOFailed, CodeLLMFailed:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
