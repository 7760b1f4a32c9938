// Package inspector dumps the GATT profile of one peripheral so the target
// characteristic can be found before transmitting to it.
package inspector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/internal/bledb"
	"github.com/srg/bletx/internal/device"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// Options defines options for inspecting a BLE device profile
type Options struct {
	ConnectTimeout time.Duration
	// TargetUUID marks matching writable characteristics in the result
	TargetUUID string
}

// CharacteristicInfo describes one characteristic of the profile
type CharacteristicInfo struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name,omitempty"`
	Properties string `json:"properties"`
	// Target is set when this characteristic would be chosen for writes
	Target bool `json:"target,omitempty"`
}

// ServiceInfo describes one service and its characteristics
type ServiceInfo struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name,omitempty"`
	Characteristics []CharacteristicInfo `json:"characteristics"`
	// Error is set when characteristic enumeration failed for this service
	Error string `json:"error,omitempty"`
}

// Profile is the discovered GATT layout of a peripheral, in platform order
type Profile struct {
	Address  device.Address `json:"address"`
	Services []ServiceInfo  `json:"services"`
}

// HasTarget reports whether any characteristic is marked as the write target
func (p *Profile) HasTarget() bool {
	for _, s := range p.Services {
		for _, c := range s.Characteristics {
			if c.Target {
				return true
			}
		}
	}
	return false
}

// Inspect connects to addr, walks its services and characteristics and
// disconnects. Only the first writable match of TargetUUID is marked, the same
// one a transmitter would pick.
func Inspect(ctx context.Context, radio device.Radio, addr device.Address, opts *Options, logger *logrus.Logger, progress ProgressCallback) (*Profile, error) {
	if opts == nil {
		opts = &Options{ConnectTimeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progress == nil {
		progress = func(string) {}
	}
	if radio == nil {
		return nil, device.NewError(device.DeviceUnreachable, device.ErrRadioUnavailable, "no radio configured")
	}

	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	progress("Connecting")
	link, err := radio.Dial(ctx, addr)
	if err != nil {
		progress("Failed")
		return nil, device.NewError(device.DeviceUnreachable, err, "address %s", addr)
	}
	defer func() {
		if err := link.Close(); err != nil {
			logger.WithError(err).Error("failed to disconnect device")
		}
	}()

	progress("Discovering services")
	services, err := link.Services(ctx)
	if err != nil {
		progress("Failed")
		return nil, device.NewError(device.ServiceDiscoveryFailed, err, "address %s", addr)
	}

	profile := &Profile{Address: addr, Services: make([]ServiceInfo, 0, len(services))}
	targetFound := false
	for _, svc := range services {
		info := ServiceInfo{
			UUID: svc.UUID(),
			Name: knownName(svc.KnownName(), bledb.LookupService(svc.UUID())),
		}

		chars, err := svc.Characteristics(ctx)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"address": addr.String(),
				"service": svc.UUID(),
			}).WithError(err).Warn("Characteristic discovery failed")
			info.Error = err.Error()
			profile.Services = append(profile.Services, info)
			continue
		}

		info.Characteristics = make([]CharacteristicInfo, 0, len(chars))
		for _, c := range chars {
			ci := CharacteristicInfo{
				UUID:       c.UUID(),
				Name:       knownName(c.KnownName(), bledb.LookupCharacteristic(c.UUID())),
				Properties: c.Properties().String(),
			}
			if !targetFound && opts.TargetUUID != "" && bledb.Equal(c.UUID(), opts.TargetUUID) && c.Properties().CanWrite() {
				ci.Target = true
				targetFound = true
			}
			info.Characteristics = append(info.Characteristics, ci)
		}
		profile.Services = append(profile.Services, info)
	}

	progress("Done")
	return profile, nil
}

func knownName(reported, fallback string) string {
	if reported != "" {
		return reported
	}
	return fallback
}
