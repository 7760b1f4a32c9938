package device

import (
	"context"
	"time"
)

// ScanParams configures advertisement observation
type ScanParams struct {
	// Active requests scan-response data from advertisers
	Active bool
}

// Advertisement is a single received advertising report
type Advertisement interface {
	LocalName() string
	Address() Address
	// PlatformAddress is the address in the radio stack's native form (MAC or OS UUID)
	PlatformAddress() string
	RSSI() int
	Connectable() bool
}

// Radio is the platform BLE stack in the central role
type Radio interface {
	// Scan delivers advertisements to handler until ctx is done or the radio fails.
	// It returns ctx.Err() on a normal stop.
	Scan(ctx context.Context, params ScanParams, handler func(Advertisement)) error
	// Dial opens a link to the peripheral with the given address.
	Dial(ctx context.Context, addr Address) (Link, error)
}

// Link is an open connection to one peripheral
type Link interface {
	Address() Address
	// Services enumerates GATT services in platform order
	Services(ctx context.Context) ([]Service, error)
	Close() error
}

// Service represents a GATT service interface
type Service interface {
	UUID() string
	KnownName() string
	// Characteristics enumerates characteristics in platform order
	Characteristics(ctx context.Context) ([]Characteristic, error)
}

// CharacteristicInfo represents characteristic metadata
type CharacteristicInfo interface {
	UUID() string
	KnownName() string
	Properties() Properties
}

// CharacteristicWriter provides write operations
type CharacteristicWriter interface {
	Write(data []byte, withResponse bool, timeout time.Duration) error
}

// Characteristic combines info + operations
type Characteristic interface {
	CharacteristicInfo
	CharacteristicWriter
}

// DiscoveredDevice is a named peripheral seen during a scan
type DiscoveredDevice struct {
	Display string  `json:"display"`
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// DisplayName renders the identity a device is listed and selected by: "Tag1 (1122334455)"
func DisplayName(name string, addr Address) string {
	return name + " (" + addr.String() + ")"
}

// NewDiscoveredDevice builds a DiscoveredDevice from an advertised name and address
func NewDiscoveredDevice(name string, addr Address) DiscoveredDevice {
	return DiscoveredDevice{
		Display: DisplayName(name, addr),
		Name:    name,
		Address: addr,
	}
}
