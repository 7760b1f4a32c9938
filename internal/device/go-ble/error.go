package goble

import (
	"context"
	"errors"

	"github.com/srg/bletx/internal/device"
)

// NormalizeError maps go-ble failures onto device error kinds.
// Context cancellation passes through untouched so callers can tell a normal stop apart.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return device.NormalizeError(err)
}
