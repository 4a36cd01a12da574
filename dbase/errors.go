package dbase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEOF is returned when the end of the table is reached.
	ErrEOF = errors.New("EOF")
	// ErrNotFound is returned when the table file does not exist.
	ErrNotFound = errors.New("NOT_FOUND")
	// ErrUnsupportedVersion is returned when the version byte maps to no known dialect.
	ErrUnsupportedVersion = errors.New("UNSUPPORTED_VERSION")
	// ErrMissingMemo is returned when memo-backed columns exist but no memo file was found.
	ErrMissingMemo = errors.New("MISSING_MEMO")
	// ErrFieldParse is returned when a single field could not be decoded.
	ErrFieldParse = errors.New("FIELD_PARSE")
	// ErrMalformed is returned when the column table can not be recovered.
	ErrMalformed = errors.New("MALFORMED")
	// ErrIncomplete is returned when a read did not return the expected amount of bytes.
	ErrIncomplete = errors.New("INCOMPLETE")
	// ErrNotLoaded is returned by random access while the table is streaming.
	ErrNotLoaded = errors.New("NOT_LOADED")
	// ErrClosed is returned when operating on a closed table.
	ErrClosed = errors.New("CLOSED")
	// ErrInvalidPosition is returned for out of range row or column positions.
	ErrInvalidPosition = errors.New("INVALID_POSITION")
	// ErrInvalidEncoding is returned when an encoding name can not be resolved.
	ErrInvalidEncoding = errors.New("INVALID_ENCODING")
)

// Error wraps an error with the chain of contexts it passed on its way up.
type Error struct {
	context []string
	err     error
}

func newError(context string, err error) Error {
	var e Error
	if errors.As(err, &e) {
		e.context = append([]string{context}, e.context...)
		return e
	}
	return Error{
		context: []string{context},
		err:     err,
	}
}

func newErrorf(context string, format string, a ...interface{}) Error {
	return newError(context, fmt.Errorf(format, a...))
}

func (e Error) Error() string {
	return e.err.Error()
}

func (e Error) Unwrap() error {
	return e.err
}

// Context returns the contexts the error passed, outermost first.
func (e Error) Context() []string {
	return e.context
}

func (e Error) trace() string {
	return strings.Join(append(append([]string{}, e.context...), e.err.Error()), ":")
}

// GetErrorTrace renders the context chain of err as "ctx1:ctx2:message".
// Errors not produced by this package are returned unchanged.
func GetErrorTrace(err error) error {
	var e Error
	if errors.As(err, &e) {
		return errors.New(e.trace())
	}
	return err
}

// VersionError reports a version byte without a known dialect.
type VersionError struct {
	Version byte
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported file version 0x%02X", e.Version)
}

func (e *VersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// FieldError reports a field whose raw bytes could not be decoded.
type FieldError struct {
	Field string
	Type  FieldType
	Raw   []byte
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("parsing %s field %s from %q failed: %v", e.Type, e.Field, e.Raw, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func (e *FieldError) Is(target error) bool {
	return target == ErrFieldParse
}
