package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for state table operations.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// Caller/data errors.
	ErrCodeInvalidArgument       ErrorCode = 1000
	ErrCodeInvalidSequenceNumber ErrorCode = 1001
	ErrCodeReplicationFailure    ErrorCode = 1002
	ErrCodeKeyNotFound           ErrorCode = 1003

	// Defensive/fatal errors — table state becomes unspecified.
	ErrCodeOrderingViolation ErrorCode = 2000
	ErrCodeMissingContext    ErrorCode = 2001
	ErrCodeInternal          ErrorCode = 2002
)

// TableError is a structured error with a code, context and optional cause.
type TableError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *TableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TableError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts a TableError to a gRPC status, for embedders that
// expose the table (or its health) across a gRPC boundary.
func (e *TableError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *TableError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeInvalidSequenceNumber:
		return codes.InvalidArgument
	case ErrCodeKeyNotFound:
		return codes.NotFound
	case ErrCodeReplicationFailure:
		return codes.Aborted
	case ErrCodeOrderingViolation, ErrCodeMissingContext:
		return codes.Internal
	default:
		return codes.Internal
	}
}

func NewTableError(code ErrorCode, message string, cause error) *TableError {
	return &TableError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

func (e *TableError) WithDetail(key string, value interface{}) *TableError {
	e.Details[key] = value
	return e
}

// Convenience constructors for the error kinds named in the table's design.

// InvalidSequenceNumber is returned when Commit is called with seq == 0 and
// no caller-supplied failure. It is fatal to that call only.
func InvalidSequenceNumber() *TableError {
	return NewTableError(ErrCodeInvalidSequenceNumber, "invalid sequence number: 0 is reserved", nil)
}

// ReplicationFailure wraps a caller-supplied failure passed to Commit in a
// coded TableError. StateTable does not call it: a failed group's
// CommitAwaiter returns the caller's failure unwrapped, and the group's
// entries are discarded, never applied to the committed view.
func ReplicationFailure(seq uint64, cause error) *TableError {
	return NewTableError(ErrCodeReplicationFailure, fmt.Sprintf("replication failed for seq %d", seq), cause).
		WithDetail("seq", seq)
}

// OrderingViolation indicates Prepare was called with a seq not strictly
// greater than every seq previously passed to Prepare. Fatal; the caller
// broke the required precondition and table state is unspecified.
func OrderingViolation(lastPrepared, got uint64) *TableError {
	return NewTableError(ErrCodeOrderingViolation,
		fmt.Sprintf("prepare seq %d is not strictly greater than last prepared seq %d", got, lastPrepared), nil).
		WithDetail("last_prepared_seq", lastPrepared).
		WithDetail("seq", got)
}

// MissingContext indicates Commit was called for a seq that was never
// Prepared. Fatal to that call.
func MissingContext(seq uint64) *TableError {
	return NewTableError(ErrCodeMissingContext, fmt.Sprintf("commit for seq %d has no matching prepare", seq), nil).
		WithDetail("seq", seq)
}

// InvalidArgument reports a malformed batch or entry handed to Prepare.
func InvalidArgument(message string, cause error) *TableError {
	return NewTableError(ErrCodeInvalidArgument, message, cause)
}

// KeyNotFound is returned by read paths that choose to surface absence as
// an error rather than a boolean (TryGet itself never fails; this exists
// for embedders layering a stricter Get on top).
func KeyNotFound(typ, key string) *TableError {
	return NewTableError(ErrCodeKeyNotFound, fmt.Sprintf("key not found: %s/%s", typ, key), nil).
		WithDetail("type", typ).
		WithDetail("key", key)
}

// IsTableError checks if an error is a TableError.
func IsTableError(err error) bool {
	_, ok := err.(*TableError)
	return ok
}

// GetCode extracts the error code from an error, defaulting to internal.
func GetCode(err error) ErrorCode {
	if te, ok := err.(*TableError); ok {
		return te.Code
	}
	return ErrCodeInternal
}
