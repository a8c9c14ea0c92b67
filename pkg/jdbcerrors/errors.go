// Package jdbcerrors provides the single error type surfaced by gluejdbc.
// Every failure that leaves a public package is a *Error carrying a Kind
// tag that names the failure category, the original cause, optional
// key-value details and the call stack captured where the error was made.
//
// # Kinds
//
// The taxonomy mirrors the resolution and read path:
//   - KindURLParse, KindUnsupportedDialect: malformed or unrecognized JDBC URLs
//   - KindConnectionNotFound, KindMalformedCatalogRecord, KindCatalog: catalog lookups
//   - KindThrottling: transient catalog rate limiting (the caller may retry)
//   - KindConnectionFailure: handshake, auth or transport failure against the database
//   - KindQueryExecution: server-side rejection of a statement
//   - KindValidation, KindConfig, KindData: caller input, configuration and conversion problems
//
// # Basic Usage
//
//	desc, err := jdbc.Parse(raw)
//	if jdbcerrors.IsKind(err, jdbcerrors.KindUnsupportedDialect) {
//	    // the URL is well formed but names a dialect with no driver
//	}
//
//	if errors.Is(err, jdbcerrors.ErrThrottling) {
//	    // somewhere in the chain the catalog asked us to slow down
//	}
//
// Error instances are not safe for concurrent modification. Finish adding
// details before sharing an error across goroutines.
package jdbcerrors

import (
	"errors"
	"runtime"

	stringpool "github.com/ajitpratap0/gluejdbc/pkg/strings"
)

// Kind tags the category of a failure.
type Kind string

const (
	// KindURLParse means the string is not a recognizable jdbc:<dialect>://... URL
	KindURLParse Kind = "url_parse"
	// KindUnsupportedDialect means the dialect token or connection type has no mapping
	KindUnsupportedDialect Kind = "unsupported_dialect"
	// KindConnectionNotFound means the catalog has no connection with the given name
	KindConnectionNotFound Kind = "connection_not_found"
	// KindMalformedCatalogRecord means the catalog record lacks a usable JDBC URL
	KindMalformedCatalogRecord Kind = "malformed_catalog_record"
	// KindThrottling means the catalog service signalled rate limiting
	KindThrottling Kind = "throttling"
	// KindCatalog covers any other catalog service failure
	KindCatalog Kind = "catalog"
	// KindConnectionFailure means the database handshake or transport failed
	KindConnectionFailure Kind = "connection_failure"
	// KindQueryExecution means the server rejected a statement
	KindQueryExecution Kind = "query_execution"
	// KindValidation means caller input was invalid
	KindValidation Kind = "validation"
	// KindConfig means configuration was invalid or unreadable
	KindConfig Kind = "config"
	// KindData means a result value could not be converted
	KindData Kind = "data"
)

// Sentinels for errors.Is. They match any *Error of the same kind anywhere
// in a chain.
var (
	ErrURLParse               = &Error{Kind: KindURLParse}
	ErrUnsupportedDialect     = &Error{Kind: KindUnsupportedDialect}
	ErrConnectionNotFound     = &Error{Kind: KindConnectionNotFound}
	ErrMalformedCatalogRecord = &Error{Kind: KindMalformedCatalogRecord}
	ErrThrottling             = &Error{Kind: KindThrottling}
	ErrCatalog                = &Error{Kind: KindCatalog}
	ErrConnectionFailure      = &Error{Kind: KindConnectionFailure}
	ErrQueryExecution         = &Error{Kind: KindQueryExecution}
)

// Error is the structured error returned by every gluejdbc package.
//
// Fields:
//   - Kind: the failure category
//   - Message: human-readable description
//   - Cause: the underlying error, if any
//   - Details: key-value context (connection name, dialect, statement...)
//   - Stack: call stack at the point of creation
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is one frame of a captured call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface as "<kind>: <message>[: <cause>]".
func (e *Error) Error() string {
	if e.Cause != nil {
		return stringpool.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return stringpool.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the cause so errors.Is and errors.As can walk the chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a kind sentinel matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Cause != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key-value detail and returns e for chaining.
//
// Example:
//
//	return jdbcerrors.New(jdbcerrors.KindValidation, "batch size must be positive").
//	    WithDetail("batch_size", spec.BatchSize)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind, capturing the caller's stack.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: stringpool.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err as the cause of a new error of the given kind. The stack of
// an already structured cause is preserved. Returns nil when err is nil.
//
// Example:
//
//	if err := db.PingContext(ctx); err != nil {
//	    return nil, jdbcerrors.Wrap(err, jdbcerrors.KindConnectionFailure, "ping failed").
//	        WithDetail("host", desc.Host)
//	}
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Kind:    kind,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsKind reports whether the outermost *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// IsRetryable reports whether a caller may retry the operation after a
// backoff. Only catalog throttling qualifies; nothing in gluejdbc retries
// on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottling)
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
