package main

import (
	"errors"
	"fmt"

	"github.com/srg/bletx/internal/device"
)

// Command-level errors
var (
	// ErrScanTimeout indicates the scan window elapsed without the session reporting completion
	ErrScanTimeout = errors.New("scan did not complete")
	// ErrSendTimeout indicates no outcome was reported for a one-shot send in time
	ErrSendTimeout = errors.New("timed out waiting for the send to complete")
)

var kindHints = map[device.ErrorKind]string{
	device.RadioUnavailable:       "Bluetooth is unavailable, check that the adapter is powered on and accessible",
	device.DeviceUnreachable:      "could not connect to the device, check that it is powered on and in range",
	device.ServiceDiscoveryFailed: "service discovery failed",
	device.CharacteristicNotFound: "the device has no writable target characteristic",
	device.EmptyPayload:           "no text to send",
	device.WriteFailed:            "write failed",
	device.NotConnected:           "not connected",
}

// FormatUserError renders err for the terminal. Device errors get a plain
// description of their kind followed by the detail in parentheses.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var e *device.Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	hint, ok := kindHints[e.Kind]
	if !ok {
		return err.Error()
	}

	detail := e.Msg
	if e.Err != nil {
		if detail != "" {
			detail += ": "
		}
		detail += e.Err.Error()
	}
	if detail == "" {
		return hint
	}
	return fmt.Sprintf("%s (%s)", hint, detail)
}
