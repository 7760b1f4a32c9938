//go:build !linux && !darwin

package goble

import (
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/bletx/internal/device"
)

func newPlatformDevice(_ Options) (ble.Device, error) {
	return nil, device.NewError(device.RadioUnavailable, device.ErrUnsupported, "go-ble has no %s backend", runtime.GOOS)
}
