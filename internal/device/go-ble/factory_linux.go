//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

func newPlatformDevice(opts Options) (ble.Device, error) {
	scanType := uint8(0x00) // passive
	if opts.ActiveScan {
		scanType = 0x01 // active, requests SCAN_RSP
	}

	params := cmd.LESetScanParameters{
		LEScanType:           scanType,
		LEScanInterval:       0x0010, // 10ms
		LEScanWindow:         0x0010, // 10ms
		OwnAddressType:       0x00,   // public
		ScanningFilterPolicy: 0x00,   // accept all
	}

	return linux.NewDevice(
		ble.OptDialerTimeout(opts.DialTimeout),
		ble.OptScanParams(params),
	)
}
