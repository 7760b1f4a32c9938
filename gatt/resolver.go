// Package gatt connects to a peripheral and resolves the characteristic text is written to.
package gatt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/internal/device"
)

// DefaultTargetUUID is the Nordic UART TX characteristic
const DefaultTargetUUID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"

// ErrSuperseded is the cause reported when a newer Connect replaced an attempt in flight
var ErrSuperseded = errors.New("connection superseded")

// Options configures characteristic resolution
type Options struct {
	TargetUUID     string
	Policy         WritePolicy
	ConnectTimeout time.Duration
}

// DefaultOptions targets the Nordic UART TX characteristic
func DefaultOptions() *Options {
	return &Options{
		TargetUUID:     DefaultTargetUUID,
		Policy:         PreferWithoutResponse,
		ConnectTimeout: 30 * time.Second,
	}
}

// Resolver owns at most one connection and the writable characteristic found on it
type Resolver struct {
	radio  device.Radio
	opts   Options
	target string
	logger *logrus.Logger

	mu         sync.Mutex
	generation uint64
	handle     *Handle
	current    *WritableCharacteristic
}

// NewResolver creates a resolver. A nil opts uses DefaultOptions.
func NewResolver(radio device.Radio, opts *Options, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}

	o := *DefaultOptions()
	if opts != nil {
		if opts.TargetUUID != "" {
			o.TargetUUID = opts.TargetUUID
		}
		if opts.Policy != "" {
			o.Policy = opts.Policy
		}
		if opts.ConnectTimeout > 0 {
			o.ConnectTimeout = opts.ConnectTimeout
		}
	}

	return &Resolver{
		radio:  radio,
		opts:   o,
		target: device.NormalizeUUID(o.TargetUUID),
		logger: logger,
	}
}

// Connect drops the current connection, dials addr and locates the target
// characteristic. The first writable match in service order wins. There is no retry.
func (r *Resolver) Connect(ctx context.Context, addr device.Address) (*WritableCharacteristic, error) {
	return r.ConnectAs(ctx, r.Begin(), addr)
}

// Begin revokes the current connection and reserves the generation of the
// next attempt. Callers that dispatch ConnectAs to another goroutine call Begin
// first, so the order of Begin calls decides which attempt is the latest.
func (r *Resolver) Begin() uint64 {
	return r.revoke()
}

// ConnectAs runs a connect attempt under a generation returned by Begin.
// An attempt whose generation is no longer the latest fails with ErrSuperseded
// and leaves no link open.
func (r *Resolver) ConnectAs(ctx context.Context, gen uint64, addr device.Address) (*WritableCharacteristic, error) {
	log := r.logger.WithFields(logrus.Fields{
		"address":    addr.String(),
		"generation": gen,
		"target":     r.target,
	})
	log.Info("Connecting to device...")

	if r.radio == nil {
		return nil, device.NewError(device.DeviceUnreachable, device.ErrRadioUnavailable, "no radio configured")
	}
	if r.Generation() != gen {
		log.Debug("Connect superseded before dial")
		return nil, device.NewError(device.DeviceUnreachable, ErrSuperseded, "connect %s", addr)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	link, err := r.radio.Dial(ctx, addr)
	if err != nil {
		log.WithError(err).Warn("Dial failed")
		return nil, device.NewError(device.DeviceUnreachable, err, "connect %s", addr)
	}

	handle := &Handle{generation: gen, link: link, resolver: r}
	wc, err := r.resolve(ctx, log, handle)
	if err != nil {
		closeLink(log, link)
		return nil, err
	}

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		log.Debug("Connect superseded, closing link")
		closeLink(log, link)
		return nil, device.NewError(device.DeviceUnreachable, ErrSuperseded, "connect %s", addr)
	}
	r.handle = handle
	r.current = wc
	r.mu.Unlock()

	log.WithFields(logrus.Fields{
		"service":    wc.ServiceUUID,
		"properties": wc.Properties.String(),
		"mode":       wc.Mode.String(),
	}).Info("Writable characteristic resolved")
	return wc, nil
}

func (r *Resolver) resolve(ctx context.Context, log *logrus.Entry, handle *Handle) (*WritableCharacteristic, error) {
	addr := handle.link.Address()

	services, err := handle.link.Services(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, device.NewError(device.DeviceUnreachable, ctx.Err(), "connect %s", addr)
		}
		log.WithError(err).Warn("Service discovery failed")
		return nil, device.NewError(device.ServiceDiscoveryFailed, err, "")
	}

	for _, svc := range services {
		chars, err := svc.Characteristics(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, device.NewError(device.DeviceUnreachable, ctx.Err(), "connect %s", addr)
			}
			log.WithError(err).WithField("service", svc.UUID()).Warn("Skipping service: characteristic discovery failed")
			continue
		}

		for _, c := range chars {
			if device.NormalizeUUID(c.UUID()) != r.target || !c.Properties().CanWrite() {
				continue
			}
			return &WritableCharacteristic{
				UUID:        r.target,
				ServiceUUID: device.NormalizeUUID(svc.UUID()),
				Properties:  c.Properties(),
				Mode:        r.opts.Policy.Select(c.Properties()),
				handle:      handle,
				char:        c,
			}, nil
		}
	}

	return nil, device.NewError(device.CharacteristicNotFound,
		&device.NotFoundError{Resource: "characteristic", UUIDs: []string{r.target}}, "")
}

// revoke invalidates the current connection and returns the next generation
func (r *Resolver) revoke() uint64 {
	r.mu.Lock()
	prev := r.handle
	r.generation++
	gen := r.generation
	r.handle = nil
	r.current = nil
	r.mu.Unlock()

	if prev != nil {
		log := r.logger.WithFields(logrus.Fields{
			"address":    prev.Address().String(),
			"generation": prev.generation,
		})
		log.Debug("Revoking previous connection")
		closeLink(log, prev.link)
	}
	return gen
}

// Disconnect revokes and closes the current connection. Safe to call repeatedly.
func (r *Resolver) Disconnect() error {
	r.mu.Lock()
	prev := r.handle
	r.handle = nil
	r.current = nil
	r.generation++
	r.mu.Unlock()

	if prev == nil {
		return nil
	}
	r.logger.WithField("address", prev.Address().String()).Info("Disconnecting")
	return prev.link.Close()
}

// Release closes h if it is still the current connection. A revoked handle is left alone.
func (r *Resolver) Release(h *Handle) error {
	if h == nil {
		return nil
	}

	r.mu.Lock()
	if r.handle != h {
		r.mu.Unlock()
		return nil
	}
	r.handle = nil
	r.current = nil
	r.generation++
	r.mu.Unlock()

	r.logger.WithField("address", h.Address().String()).Debug("Releasing connection")
	return h.link.Close()
}

// Current returns the resolved characteristic of the live connection, or nil
func (r *Resolver) Current() *WritableCharacteristic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Generation returns the generation of the latest Connect or Disconnect
func (r *Resolver) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *Resolver) isCurrent(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle == h
}

func closeLink(log *logrus.Entry, link device.Link) {
	if err := link.Close(); err != nil {
		log.WithError(err).Debug("Link close failed")
	}
}
