package goble

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/bletx/internal/bledb"
	"github.com/srg/bletx/internal/device"
)

// BLEService represents a GATT service discovered over a BLEConnection
type BLEService struct {
	uuid      string
	knownName string
	svc       *ble.Service
	conn      *BLEConnection
}

func newService(conn *BLEConnection, s *ble.Service) *BLEService {
	raw := s.UUID.String()
	return &BLEService{
		uuid:      device.NormalizeUUID(raw),
		knownName: bledb.LookupService(raw),
		svc:       s,
		conn:      conn,
	}
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) KnownName() string {
	return s.knownName
}

// Characteristics discovers the service's characteristics in platform order
func (s *BLEService) Characteristics(ctx context.Context) ([]device.Characteristic, error) {
	var chars []*ble.Characteristic
	err := callWithContext(ctx, func() error {
		var err error
		chars, err = s.conn.client.DiscoverCharacteristics(nil, s.svc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics of service %s: %w", s.uuid, NormalizeError(err))
	}

	result := make([]device.Characteristic, 0, len(chars))
	for _, c := range chars {
		raw := c.UUID.String()
		result = append(result, &BLECharacteristic{
			uuid:       device.NormalizeUUID(raw),
			knownName:  bledb.LookupCharacteristic(raw),
			properties: NewProperties(c.Property),
			BLEChar:    c,
			conn:       s.conn,
		})
	}
	return result, nil
}

// BLECharacteristic is a characteristic handle bound to its connection
type BLECharacteristic struct {
	uuid       string
	knownName  string
	properties device.Properties
	BLEChar    *ble.Characteristic
	conn       *BLEConnection
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) KnownName() string {
	return c.knownName
}

func (c *BLECharacteristic) Properties() device.Properties {
	return c.properties
}

// Write sends data in a single ATT write. Writes on one connection are serialized.
func (c *BLECharacteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	if c.conn.closed.Load() {
		return device.ErrNotConnected
	}

	c.conn.writeMutex.Lock()
	defer c.conn.writeMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.conn.client.WriteCharacteristic(c.BLEChar, data, !withResponse)
	}()

	if timeout <= 0 {
		return NormalizeError(<-errCh)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return NormalizeError(err)
	case <-timer.C:
		return fmt.Errorf("write to characteristic %s: %w", c.uuid, device.ErrTimeout)
	}
}
