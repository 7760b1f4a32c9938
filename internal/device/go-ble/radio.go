package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/internal/device"
)

// DefaultDialTimeout bounds a single connection attempt
const DefaultDialTimeout = 30 * time.Second

// Options configures the go-ble radio
type Options struct {
	ActiveScan  bool
	DialTimeout time.Duration
}

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Radio implements device.Radio on top of a go-ble host device.
// The host device is opened lazily on first use and shared by scans and dials.
type Radio struct {
	opts   Options
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device

	// addrs remembers the native address of every advertiser so Dial can
	// reach peripherals whose platform address is not a MAC.
	addrs *hashmap.Map[uint64, ble.Addr]
}

// NewRadio creates a go-ble backed radio
func NewRadio(opts Options, logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	return &Radio{
		opts:   opts,
		logger: logger,
		addrs:  hashmap.New[uint64, ble.Addr](),
	}
}

func (r *Radio) device() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}

	dev, err := DeviceFactory(r.opts)
	if err != nil {
		r.logger.WithError(err).Error("Failed to open BLE host device")
		if device.KindOf(err) != "" {
			return nil, err
		}
		return nil, &device.Error{Kind: device.RadioUnavailable, Err: NormalizeError(err)}
	}

	r.logger.WithField("active_scan", r.opts.ActiveScan).Debug("BLE host device opened")
	r.dev = dev
	return dev, nil
}

// Scan observes advertisements until ctx is done.
// Duplicates are delivered; filtering is the caller's concern.
func (r *Radio) Scan(ctx context.Context, params device.ScanParams, handler func(device.Advertisement)) error {
	if params.Active != r.opts.ActiveScan {
		r.logger.WithField("active", params.Active).Debug("Scan mode is fixed when the host device opens; using configured mode")
	}

	dev, err := r.device()
	if err != nil {
		return err
	}

	err = dev.Scan(ctx, true, func(a ble.Advertisement) {
		adv := NewBLEAdvertisement(a)
		r.addrs.Set(uint64(adv.Address()), a.Addr())
		handler(adv)
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return NormalizeError(err)
}

// Dial connects to addr. Addresses seen while scanning are dialed by their native form.
func (r *Radio) Dial(ctx context.Context, addr device.Address) (device.Link, error) {
	dev, err := r.device()
	if err != nil {
		return nil, err
	}

	target, ok := r.addrs.Get(uint64(addr))
	if !ok {
		target = ble.NewAddr(addr.MAC())
	}

	r.logger.WithFields(logrus.Fields{
		"address": addr.String(),
		"native":  target.String(),
	}).Debug("Dialing BLE device...")

	dialCtx, cancel := context.WithTimeout(ctx, r.opts.DialTimeout)
	defer cancel()

	client, err := dev.Dial(dialCtx, target)
	if err != nil {
		return nil, device.NewError(device.DeviceUnreachable, NormalizeError(err), "dial %s", addr)
	}

	return newLink(addr, client, r.logger), nil
}

// Close stops the host device
func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev == nil {
		return nil
	}
	err := r.dev.Stop()
	r.dev = nil
	return err
}
