package debug

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a machine-readable error code for bridge failures.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"
	// CodeSessionNotFound means an explicit session id is not tracked.
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	// CodeNoActiveSession means no session id was given and none is active.
	CodeNoActiveSession Code = "NO_ACTIVE_SESSION"
	// CodeInvalidArguments means tool input failed validation before any RPC.
	CodeInvalidArguments Code = "INVALID_ARGUMENTS"
	// CodeNotHalted means the debuggee is running and cannot be inspected.
	// Status and WaitForStop treat this as expected; everywhere else it is a
	// genuine failure.
	CodeNotHalted Code = "NOT_HALTED"
	// CodeUpstreamRequestFailed covers any other host RPC failure.
	CodeUpstreamRequestFailed Code = "UPSTREAM_REQUEST_FAILED"
)

// Error is the bridge error type with a structured code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a bridge error with a code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a bridge error that wraps an underlying cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the bridge error code from an error chain.
func CodeOf(err error) Code {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Code
	}
	return CodeUnknown
}

// IsNotHalted reports whether err marks a running (not inspectable) debuggee.
func IsNotHalted(err error) bool {
	return CodeOf(err) == CodeNotHalted
}

// notHaltedMarkers are message fragments adapters use to say the debuggee is
// running. Delve reports "debuggee is running"; js-debug and the C++ tools
// use "not halted"/"not stopped"/"thread is not paused".
var notHaltedMarkers = []string{
	"is running",
	"not halted",
	"not stopped",
	"not paused",
	"process running",
}

// classifyUpstream normalizes a host RPC failure: running-debuggee markers
// map to CodeNotHalted, everything else passes through as
// CodeUpstreamRequestFailed with session and command context attached.
func classifyUpstream(sessionID, command string, err error) error {
	if err == nil {
		return nil
	}
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) && bridgeErr.Code != CodeUnknown {
		return err
	}
	message := strings.ToLower(err.Error())
	for _, marker := range notHaltedMarkers {
		if strings.Contains(message, marker) {
			return WrapError(CodeNotHalted, fmt.Sprintf("session %s: %s: debuggee is not halted", sessionID, command), err)
		}
	}
	return WrapError(CodeUpstreamRequestFailed, fmt.Sprintf("session %s: %s failed", sessionID, command), err)
}
