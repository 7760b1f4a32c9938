package goble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/internal/groutine"
)

// BLEConnection is a live go-ble client link to one peripheral
type BLEConnection struct {
	addr   device.Address
	client ble.Client
	logger *logrus.Logger

	writeMutex sync.Mutex
	closed     atomic.Bool
	closeOnce  sync.Once
	done       chan struct{}
}

func newLink(addr device.Address, client ble.Client, logger *logrus.Logger) *BLEConnection {
	c := &BLEConnection{
		addr:   addr,
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	notifier, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		logger.Debug("Client does not report disconnection")
		return c
	}

	groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
		select {
		case <-notifier.Disconnected():
			if !c.closed.Swap(true) {
				c.logger.WithField("address", addr.String()).Warn("Peripheral disconnected")
			}
		case <-c.done:
		}
	})

	return c
}

// Address returns the peripheral address
func (c *BLEConnection) Address() device.Address {
	return c.addr
}

// Services discovers all primary services in the order the peripheral reports them
func (c *BLEConnection) Services(ctx context.Context) ([]device.Service, error) {
	if c.closed.Load() {
		return nil, device.ErrNotConnected
	}

	var svcs []*ble.Service
	err := callWithContext(ctx, func() error {
		var err error
		svcs, err = c.client.DiscoverServices(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", NormalizeError(err))
	}

	result := make([]device.Service, 0, len(svcs))
	for _, s := range svcs {
		result = append(result, newService(c, s))
	}

	c.logger.WithFields(logrus.Fields{
		"address":  c.addr.String(),
		"services": len(result),
	}).Debug("Services discovered")
	return result, nil
}

// Close cancels the connection. Safe to call more than once.
func (c *BLEConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.client.CancelConnection()
		c.logger.WithField("address", c.addr.String()).Debug("Connection cancelled")
	})
	return err
}

// callWithContext runs a blocking go-ble call and gives up waiting when ctx ends.
// The call itself keeps running until the stack returns.
func callWithContext(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
