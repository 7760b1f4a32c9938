//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// CoreBluetooth always scans actively and manages its own dial timeout.
func newPlatformDevice(_ Options) (ble.Device, error) {
	return darwin.NewDevice()
}
