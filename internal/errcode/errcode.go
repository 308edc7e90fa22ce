// Package errcode defines the stable, machine-readable error codes surfaced by
// the add-on registry. Codes are part of the public contract: callers match on
// them with errors.Is and the CLI maps them to exit statuses.
package errcode

import (
	"errors"
	"fmt"
)

// Code is a stable error identifier. A Code is itself an error so it can be
// used as an errors.Is target.
type Code string

func (c Code) Error() string { return string(c) }

const (
	// NotInRegistry: the named add-on has no record in the registry store.
	NotInRegistry Code = "ADDON_DB_ENOENT"
	// LoadFailure: a record exists but its package cannot be loaded.
	LoadFailure Code = "ADDON_LOAD_FAIL"
	// SchemaMismatch: the loaded module does not provide its declared capabilities.
	SchemaMismatch Code = "ADDON_SCHEMA_MISMATCH"
	// DBLoadFailure: the registry store cannot be opened or initialised.
	DBLoadFailure Code = "ADDON_DB_LOAD_FAIL"
	// CapabilityExecution: add-on code failed while running through the gateway.
	CapabilityExecution Code = "ADDON_CAPABILITY_FAIL"
	// InvalidManifest: a package manifest is missing, unparseable, or fails validation.
	InvalidManifest Code = "ADDON_INVALID_MANIFEST"
	// AlreadyInstalled: an install targets an existing add-on without force.
	AlreadyInstalled Code = "ADDON_ALREADY_INSTALLED"
	// FetchFailure: a package could not be obtained from its source.
	FetchFailure Code = "ADDON_FETCH_FAIL"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Code.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

// New returns a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a coded error that wraps cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf returns the code of the outermost coded error in err's chain, or ""
// if err carries no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return ""
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch CodeOf(err) {
	case NotInRegistry:
		return 3
	case LoadFailure, SchemaMismatch:
		return 4
	case DBLoadFailure:
		return 5
	case CapabilityExecution:
		return 6
	case InvalidManifest, AlreadyInstalled:
		return 7
	case FetchFailure:
		return 8
	default:
		return 1
	}
}
