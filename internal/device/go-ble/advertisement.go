package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/bletx/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv  ble.Advertisement
	addr device.Address
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) *BLEAdvertisement {
	return &BLEAdvertisement{
		adv:  adv,
		addr: device.DeriveAddress(adv.Addr().String()),
	}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) Address() device.Address  { return a.addr }
func (a *BLEAdvertisement) PlatformAddress() string  { return a.adv.Addr().String() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }

// Unwrap returns the underlying ble.Advertisement for internal use within go-ble package
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}
