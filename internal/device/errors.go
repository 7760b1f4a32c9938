package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // e.g. [charUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
	}
}

// ErrorKind classifies every failure the core reports
type ErrorKind string

const (
	RadioUnavailable       ErrorKind = "radio_unavailable"
	DeviceUnreachable      ErrorKind = "device_unreachable"
	ServiceDiscoveryFailed ErrorKind = "service_discovery_failed"
	CharacteristicNotFound ErrorKind = "characteristic_not_found"
	EmptyPayload           ErrorKind = "empty_payload"
	WriteFailed            ErrorKind = "write_failed"
	NotConnected           ErrorKind = "not_connected"
)

func (k ErrorKind) String() string {
	return strings.ReplaceAll(string(k), "_", " ")
}

// Error carries a kind, an optional message and the underlying platform error
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes the underlying error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrRadioUnavailable       = &Error{Kind: RadioUnavailable}
	ErrDeviceUnreachable      = &Error{Kind: DeviceUnreachable}
	ErrServiceDiscoveryFailed = &Error{Kind: ServiceDiscoveryFailed}
	ErrCharacteristicNotFound = &Error{Kind: CharacteristicNotFound}
	ErrEmptyPayload           = &Error{Kind: EmptyPayload}
	ErrWriteFailed            = &Error{Kind: WriteFailed}
	ErrNotConnected           = &Error{Kind: NotConnected}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// NewError builds an *Error of the given kind. cause may be nil.
func NewError(kind ErrorKind, cause error, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// NormalizeError maps radio stack messages that mean "the adapter cannot be used"
// to RadioUnavailable. Other errors are returned unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "central manager has invalid state"),
		containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "adapter not enabled"),
		containsIgnoreCase(msg, "no such device"),
		containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "operation not permitted"),
		containsIgnoreCase(msg, "org.bluez.error.notready"):
		return &Error{Kind: RadioUnavailable, Err: err}
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
