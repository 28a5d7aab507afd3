package peripheral

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is matched by every *ArgumentError via errors.Is
var ErrInvalidArgument = errors.New("invalid argument")

// ArgumentError reports caller-supplied configuration that failed validation.
// It is returned synchronously, before any command reaches the transport.
type ArgumentError struct {
	Param string
	Value any
	Msg   string
}

func (e *ArgumentError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid argument %q: %s", e.Param, e.Msg)
	}
	return fmt.Sprintf("invalid argument %q (%v): %s", e.Param, e.Value, e.Msg)
}

// Is allows errors.Is(err, ErrInvalidArgument)
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// NewArgumentError creates an ArgumentError
func NewArgumentError(param string, value any, format string, args ...any) *ArgumentError {
	return &ArgumentError{Param: param, Value: value, Msg: fmt.Sprintf(format, args...)}
}

// ConnectionState represents the reason a waiter or a command can no longer be served
type ConnectionState string

const (
	Closed   ConnectionState = "connection_closed"
	Released ConnectionState = "peripheral_released"
)

// ConnectionError represents a session or peripheral lifecycle failure
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for lifecycle states
var (
	ErrConnectionClosed = &ConnectionError{State: Closed}
	ErrReleased         = &ConnectionError{State: Released}
)

// ErrUnmatchedNotification describes a reply that arrived with no pending waiter.
// It is never returned to callers; the dispatcher only logs and counts it.
var ErrUnmatchedNotification = errors.New("unmatched notification")

// Severity classifies a device-reported problem
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// RemoteError is a warning or error the device reported against a peripheral
type RemoteError struct {
	Severity Severity
	Address  Address
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s: %s", e.Severity, e.Address, e.Message)
}

// UnclassifiedError reports a payload shape the classifier does not recognise
type UnclassifiedError struct {
	Payload any
}

func (e *UnclassifiedError) Error() string {
	return fmt.Sprintf("unclassified notification payload %T: %v", e.Payload, e.Payload)
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
