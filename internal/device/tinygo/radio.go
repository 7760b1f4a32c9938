// Package tinygo implements device.Radio on tinygo.org/x/bluetooth.
//
// Only write-without-response is exposed: it is the one write operation
// every platform port of the library provides.
package tinygo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/internal/bledb"
	"github.com/srg/bletx/internal/device"
	"tinygo.org/x/bluetooth"
)

// Radio drives the default bluetooth adapter
type Radio struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger

	enableOnce sync.Once
	enableErr  error

	// addrs maps derived addresses back to the adapter's native form
	addrs *hashmap.Map[uint64, bluetooth.Address]
}

// NewRadio creates a radio over bluetooth.DefaultAdapter
func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		addrs:   hashmap.New[uint64, bluetooth.Address](),
	}
}

func (r *Radio) enable() error {
	r.enableOnce.Do(func() {
		if err := r.adapter.Enable(); err != nil {
			r.enableErr = device.NewError(device.RadioUnavailable, device.NormalizeError(err), "enable adapter")
			r.logger.WithError(err).Error("Failed to enable bluetooth adapter")
			return
		}
		r.logger.Debug("Bluetooth adapter enabled")
	})
	return r.enableErr
}

// Scan runs until ctx is done. The adapter decides active or passive scanning.
func (r *Radio) Scan(ctx context.Context, _ device.ScanParams, handler func(device.Advertisement)) error {
	if err := r.enable(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := r.adapter.StopScan(); err != nil {
				r.logger.WithError(err).Debug("StopScan failed")
			}
		case <-done:
		}
	}()

	err := r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		adv := newAdvertisement(result)
		r.addrs.Set(uint64(adv.Address()), result.Address)
		handler(adv)
	})
	close(done)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return device.NewError(device.RadioUnavailable, device.NormalizeError(err), "scan")
	}
	return nil
}

type connectResult struct {
	dev bluetooth.Device
	err error
}

// Dial connects to addr. The library's Connect cannot be cancelled, so a
// connection that completes after ctx ends is dropped.
func (r *Radio) Dial(ctx context.Context, addr device.Address) (device.Link, error) {
	if err := r.enable(); err != nil {
		return nil, err
	}

	target, ok := r.addrs.Get(uint64(addr))
	if !ok {
		target.Set(addr.MAC())
	}

	r.logger.WithFields(logrus.Fields{
		"address": addr.String(),
		"native":  target.String(),
	}).Debug("Connecting to BLE device...")

	ch := make(chan connectResult, 1)
	go func() {
		dev, err := r.adapter.Connect(target, bluetooth.ConnectionParams{})
		ch <- connectResult{dev: dev, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.err == nil {
				_ = res.dev.Disconnect()
			}
		}()
		return nil, device.NewError(device.DeviceUnreachable, ctx.Err(), "connect %s", addr)
	case res := <-ch:
		if res.err != nil {
			return nil, device.NewError(device.DeviceUnreachable, device.NormalizeError(res.err), "connect %s", addr)
		}
		return &link{addr: addr, dev: &res.dev, logger: r.logger}, nil
	}
}

// Close is a no-op; the default adapter lives for the process
func (r *Radio) Close() error {
	return nil
}

type advertisement struct {
	result bluetooth.ScanResult
	addr   device.Address
}

func newAdvertisement(result bluetooth.ScanResult) *advertisement {
	return &advertisement{
		result: result,
		addr:   device.DeriveAddress(result.Address.String()),
	}
}

func (a *advertisement) LocalName() string       { return a.result.LocalName() }
func (a *advertisement) Address() device.Address { return a.addr }
func (a *advertisement) PlatformAddress() string { return a.result.Address.String() }
func (a *advertisement) RSSI() int               { return int(a.result.RSSI) }

// Connectable is not reported by every port; treat advertisers as connectable
func (a *advertisement) Connectable() bool { return true }

type link struct {
	addr   device.Address
	dev    *bluetooth.Device
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

func (l *link) Address() device.Address {
	return l.addr
}

func (l *link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *link) Services(ctx context.Context) ([]device.Service, error) {
	if l.isClosed() {
		return nil, device.ErrNotConnected
	}

	var svcs []bluetooth.DeviceService
	err := callWithContext(ctx, func() error {
		var err error
		svcs, err = l.dev.DiscoverServices(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	result := make([]device.Service, 0, len(svcs))
	for i := range svcs {
		result = append(result, newService(l, &svcs[i]))
	}
	return result, nil
}

func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.dev.Disconnect()
}

type service struct {
	uuid      string
	knownName string
	svc       *bluetooth.DeviceService
	link      *link
}

func newService(l *link, s *bluetooth.DeviceService) *service {
	raw := s.UUID().String()
	return &service{
		uuid:      device.NormalizeUUID(raw),
		knownName: bledb.LookupService(raw),
		svc:       s,
		link:      l,
	}
}

func (s *service) UUID() string      { return s.uuid }
func (s *service) KnownName() string { return s.knownName }

func (s *service) Characteristics(ctx context.Context) ([]device.Characteristic, error) {
	var chars []bluetooth.DeviceCharacteristic
	err := callWithContext(ctx, func() error {
		var err error
		chars, err = s.svc.DiscoverCharacteristics(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics of service %s: %w", s.uuid, err)
	}

	result := make([]device.Characteristic, 0, len(chars))
	for i := range chars {
		c := &chars[i]
		raw := c.UUID().String()
		result = append(result, &characteristic{
			uuid:      device.NormalizeUUID(raw),
			knownName: bledb.LookupCharacteristic(raw),
			char:      c,
			link:      s.link,
		})
	}
	return result, nil
}

type characteristic struct {
	uuid      string
	knownName string
	char      *bluetooth.DeviceCharacteristic
	link      *link
}

func (c *characteristic) UUID() string      { return c.uuid }
func (c *characteristic) KnownName() string { return c.knownName }

func (c *characteristic) Properties() device.Properties {
	return device.PropWriteWithoutResponse
}

func (c *characteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	if withResponse {
		return fmt.Errorf("write with response: %w", device.ErrUnsupported)
	}
	if c.link.isClosed() {
		return device.ErrNotConnected
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := callWithContext(ctx, func() error {
		_, err := c.char.WriteWithoutResponse(data)
		return err
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("write to characteristic %s: %w", c.uuid, device.ErrTimeout)
	}
	return err
}

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
