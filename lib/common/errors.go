package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                // 1: Operation failed due to an internal error.
	RetCConfig                       // 2: Invalid configuration (e.g. compression selector).
	RetCType                         // 3: Value does not match the codec its shape implies.
	RetCDecode                       // 4: Stored data or identifier could not be decoded.
	RetCGobNotAllowed                // 5: Gob codec used while it is disabled.
	RetCEncoding                     // 6: Compression library failure.
	RetCStorage                      // 7: Backing store failure.
	RetCNotFound                     // 8: Required key or namespace does not exist.
	RetCConflict                     // 9: Target key already exists.
	RetCClosed                       // 10: Store has been closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCConfig:
		return "ConfigError"
	case RetCType:
		return "TypeError"
	case RetCDecode:
		return "DecodeError"
	case RetCGobNotAllowed:
		return "GobNotAllowed"
	case RetCEncoding:
		return "EncodingError"
	case RetCStorage:
		return "StorageError"
	case RetCNotFound:
		return "NotFound"
	case RetCConflict:
		return "Conflict"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code (of type RetCode), a message and an optional cause.
// Two errors match with errors.Is when their codes are equal, so callers can test
// against the sentinel values below regardless of the message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The underlying cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sqkv error (%s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("sqkv error (%s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WrapError creates a new Error with the given code and message wrapping err.
func WrapError(code RetCode, err error, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// CodeOf returns the return code of err, RetCSuccess for nil and
// RetCInternalError for errors that are not an *Error.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Sentinels (for errors.Is)
// --------------------------------------------------------------------------

var (
	ErrConfig        = NewError(RetCConfig, "invalid configuration")
	ErrType          = NewError(RetCType, "unsupported value type")
	ErrDecode        = NewError(RetCDecode, "decode failed")
	ErrGobNotAllowed = NewError(RetCGobNotAllowed, "gob encoding not allowed")
	ErrEncoding      = NewError(RetCEncoding, "encoding failed")
	ErrStorage       = NewError(RetCStorage, "storage failure")
	ErrNotFound      = NewError(RetCNotFound, "not found")
	ErrConflict      = NewError(RetCConflict, "conflict")
	ErrClosed        = NewError(RetCClosed, "connection is closed")
)
