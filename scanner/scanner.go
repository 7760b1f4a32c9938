package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/internal/groutine"
	"github.com/srg/bletx/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EventType distinguishes scanner events
type EventType int

const (
	// EventDeviceDiscovered is emitted once per display name per session
	EventDeviceDiscovered EventType = iota
	// EventScanComplete is emitted once when a session ends normally
	EventScanComplete
	// EventScanFailed replaces EventScanComplete when the radio fails
	EventScanFailed
)

func (t EventType) String() string {
	switch t {
	case EventDeviceDiscovered:
		return "device-discovered"
	case EventScanComplete:
		return "scan-complete"
	case EventScanFailed:
		return "scan-failed"
	default:
		return "unknown"
	}
}

// Event is a scanner notification. Session identifies the scan that produced it.
type Event struct {
	Type    EventType
	Session uint64
	Device  device.DiscoveredDevice
	Err     error
}

// Options configures scanning behavior
type Options struct {
	Window      time.Duration
	ActiveScan  bool
	EventBuffer int
}

// DefaultOptions returns the default scan options: a 5 second active scan
func DefaultOptions() *Options {
	return &Options{
		Window:      5 * time.Second,
		ActiveScan:  true,
		EventBuffer: 256,
	}
}

type scanSession struct {
	id         uint64
	cancel     context.CancelFunc
	done       chan struct{}
	suppressed atomic.Bool
}

// Scanner handles BLE device discovery.
// At most one scan session runs at a time; every Start rebuilds the device set.
type Scanner struct {
	radio  device.Radio
	opts   Options
	logger *logrus.Logger
	events *ringchan.RingChannel[Event]

	// control serializes Start and Stop
	control sync.Mutex

	mu      sync.Mutex
	devices *orderedmap.OrderedMap[string, device.DiscoveredDevice]
	session *scanSession
	lastID  uint64
}

// New creates a scanner over radio. A nil opts uses DefaultOptions.
func New(radio device.Radio, opts *Options, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}

	o := *DefaultOptions()
	if opts != nil {
		o.ActiveScan = opts.ActiveScan
		if opts.Window > 0 {
			o.Window = opts.Window
		}
		if opts.EventBuffer > 0 {
			o.EventBuffer = opts.EventBuffer
		}
	}

	return &Scanner{
		radio:   radio,
		opts:    o,
		logger:  logger,
		events:  ringchan.New[Event](o.EventBuffer),
		devices: orderedmap.New[string, device.DiscoveredDevice](),
	}
}

// Start begins a new scan session, first stopping any active one without
// reporting its completion. It returns immediately, without waiting for the old
// radio scan to wind down; results arrive on Events.
func (s *Scanner) Start(ctx context.Context) error {
	if s.radio == nil {
		return device.NewError(device.RadioUnavailable, nil, "no radio configured")
	}

	s.control.Lock()
	defer s.control.Unlock()

	old := s.detach()
	if old != nil {
		old.suppressed.Store(true)
		old.cancel()
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.opts.Window)

	s.mu.Lock()
	s.lastID++
	sess := &scanSession{
		id:     s.lastID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.session = sess
	s.devices = orderedmap.New[string, device.DiscoveredDevice]()
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"session": sess.id,
		"window":  s.opts.Window,
		"active":  s.opts.ActiveScan,
	}).Info("Starting BLE scan...")

	groutine.Go(ctx, "scan-session", func(context.Context) {
		defer close(sess.done)
		defer cancel()

		// One radio scan at a time
		if old != nil {
			<-old.done
			s.logger.WithField("session", old.id).Debug("Previous scan session stopped")
		}

		err := s.radio.Scan(scanCtx, device.ScanParams{Active: s.opts.ActiveScan}, func(adv device.Advertisement) {
			s.handleAdvertisement(sess, adv)
		})
		s.finish(sess, err)
	})

	return nil
}

// Stop ends the active session, which then reports ScanComplete.
// Safe to call without an active session.
func (s *Scanner) Stop() {
	s.control.Lock()
	defer s.control.Unlock()

	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return
	}

	sess.cancel()
	<-sess.done
}

// Close stops scanning and closes the event channel
func (s *Scanner) Close() {
	s.Stop()
	s.events.Close()
}

// detach removes the active session so its late advertisements are dropped
func (s *Scanner) detach() *scanSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session
	s.session = nil
	return sess
}

func (s *Scanner) finish(sess *scanSession, err error) {
	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	count := s.devices.Len()
	s.mu.Unlock()

	log := s.logger.WithField("session", sess.id)
	if sess.suppressed.Load() {
		log.Debug("Scan session superseded")
		return
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		if device.KindOf(err) == "" {
			err = &device.Error{Kind: device.RadioUnavailable, Err: err}
		}
		log.WithError(err).Warn("BLE scan failed")
		s.events.Send(Event{Type: EventScanFailed, Session: sess.id, Err: err})
		return
	}

	log.WithField("device_count", count).Info("BLE scan completed")
	s.events.Send(Event{Type: EventScanComplete, Session: sess.id})
}

// handleAdvertisement records the first advertisement of each named device
func (s *Scanner) handleAdvertisement(sess *scanSession, adv device.Advertisement) {
	name := adv.LocalName()
	if name == "" {
		return
	}
	dev := device.NewDiscoveredDevice(name, adv.Address())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != sess {
		return
	}
	if _, seen := s.devices.Get(dev.Display); seen {
		return
	}
	s.devices.Set(dev.Display, dev)

	s.logger.WithFields(logrus.Fields{
		"device":  dev.Name,
		"address": dev.Address.String(),
		"rssi":    adv.RSSI(),
	}).Info("Discovered new device")

	// Sent under mu so event order matches discovery order
	s.events.Send(Event{Type: EventDeviceDiscovered, Session: sess.id, Device: dev})
}

// Devices returns the devices of the current or last session in discovery order
func (s *Scanner) Devices() []device.DiscoveredDevice {
	s.mu.Lock()
	defer s.mu.Unlock()

	devs := make([]device.DiscoveredDevice, 0, s.devices.Len())
	for pair := s.devices.Oldest(); pair != nil; pair = pair.Next() {
		devs = append(devs, pair.Value)
	}
	return devs
}

// Lookup finds a discovered device by its display name
func (s *Scanner) Lookup(display string) (device.DiscoveredDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices.Get(display)
}

// Scanning reports whether a session is active
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Events returns a read-only channel of scanner events
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}
