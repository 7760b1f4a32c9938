package gatt

import (
	"time"

	"github.com/srg/bletx/internal/device"
)

// Handle is one live connection owned by a Resolver.
// It is revoked when the resolver connects elsewhere or disconnects.
type Handle struct {
	generation uint64
	link       device.Link
	resolver   *Resolver
}

// Generation increases with every Connect of the owning resolver
func (h *Handle) Generation() uint64 {
	return h.generation
}

// Address returns the peripheral address
func (h *Handle) Address() device.Address {
	return h.link.Address()
}

// Valid reports whether the handle is still the resolver's current connection
func (h *Handle) Valid() bool {
	if h == nil {
		return false
	}
	return h.resolver.isCurrent(h)
}

// WritableCharacteristic is the write target resolved for one connection
type WritableCharacteristic struct {
	UUID        string
	ServiceUUID string
	Properties  device.Properties
	Mode        device.WriteMode

	handle *Handle
	char   device.CharacteristicWriter
}

// Handle returns the connection the characteristic belongs to
func (w *WritableCharacteristic) Handle() *Handle {
	return w.handle
}

// Address returns the peripheral address
func (w *WritableCharacteristic) Address() device.Address {
	return w.handle.Address()
}

// Valid reports whether the owning connection is still current
func (w *WritableCharacteristic) Valid() bool {
	return w != nil && w.handle.Valid()
}

// Write performs one write in the resolved mode
func (w *WritableCharacteristic) Write(data []byte, timeout time.Duration) error {
	if !w.Valid() {
		return device.ErrNotConnected
	}
	return w.char.Write(data, w.Mode.WithResponse(), timeout)
}
