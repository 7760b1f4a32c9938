package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/bletx/internal/device"
)

var propertyBits = []struct {
	ble ble.Property
	dev device.Properties
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropSignedWrite},
	{ble.CharExtended, device.PropExtended},
}

// NewProperties converts ble.Property bit flags to device.Properties.
func NewProperties(p ble.Property) device.Properties {
	var props device.Properties
	for _, b := range propertyBits {
		if p&b.ble != 0 {
			props |= b.dev
		}
	}
	return props
}
