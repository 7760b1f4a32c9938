// Package session owns the scan, connect and transmit state of one BLE central.
//
// All state lives on a single loop goroutine. The entry points post commands
// to it; connects and writes run on their own goroutines and report back as
// messages, so the loop never blocks on the radio.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/gatt"
	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/internal/groutine"
	"github.com/srg/bletx/internal/ringchan"
	"github.com/srg/bletx/pkg/config"
	"github.com/srg/bletx/scanner"
	"github.com/srg/bletx/schedule"
	"github.com/srg/bletx/transmit"
)

// Status messages shown to the user
const (
	StatusNotConnected       = "Not connected"
	StatusScanning           = "Scanning..."
	StatusScanComplete       = "Scan complete"
	StatusSelectDevice       = "Select a device first."
	StatusConnecting         = "Connecting..."
	StatusConnectFailed      = "Device connection failed."
	StatusDiscoveryFailed    = "Service discovery failed."
	StatusCharNotFound       = "Write characteristic not found."
	StatusConnected          = "Connected and ready!"
	StatusSendNotConnected   = "Not connected."
	StatusNoText             = "No text to send."
	StatusManualModeRequired = "Switch to manual mode to send custom text."
)

// Prefixes of status messages that carry a detail
const (
	StatusRadioUnavailablePrefix = "Bluetooth unavailable: "
	StatusSendFailedPrefix       = "Send failed: "
	StatusSentPrefix             = "Sent: "
)

// EventKind distinguishes outbound session events
type EventKind int

const (
	// StatusChanged carries a status line for the user in Message
	StatusChanged EventKind = iota
	// DeviceDiscovered carries a newly seen device in Device and its display name in Message
	DeviceDiscovered
	// ScanComplete marks the end of the current scan window
	ScanComplete
	// Sent carries the display form of a completed write in Message
	Sent
)

func (k EventKind) String() string {
	switch k {
	case StatusChanged:
		return "status"
	case DeviceDiscovered:
		return "device"
	case ScanComplete:
		return "scan-complete"
	case Sent:
		return "sent"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification for the UI
type Event struct {
	Kind    EventKind
	Message string
	// Device is set for DeviceDiscovered
	Device device.DiscoveredDevice
}

type (
	startScanCmd struct{}
	connectCmd   struct {
		display string
		addr    device.Address
		byAddr  bool
	}
	modeCmd struct{ mode schedule.Mode }
	sendCmd struct{ text string }

	connectResult struct {
		generation uint64
		char       *gatt.WritableCharacteristic
		err        error
	}
	writeResult struct {
		auto    bool
		char    *gatt.WritableCharacteristic
		receipt transmit.Receipt
		err     error
	}
	tickMsg struct{ tick schedule.Tick }
)

const inboxSize = 64

// Session is the core facade used by the UI shell
type Session struct {
	cfg    *config.Config
	logger *logrus.Logger

	scanner  *scanner.Scanner
	resolver *gatt.Resolver
	tx       *transmit.Transmitter
	sched    *schedule.Scheduler

	inbox  chan any
	events *ringchan.RingChannel[Event]

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once

	// loop-owned
	current      *gatt.WritableCharacteristic
	connectGen   uint64
	autoInFlight bool
}

// New wires the components for radio. A nil cfg uses config.DefaultConfig.
func New(radio device.Radio, cfg *config.Config, logger *logrus.Logger) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		scanner: scanner.New(radio, &scanner.Options{
			Window:      cfg.ScanWindow,
			ActiveScan:  cfg.ActiveScan,
			EventBuffer: cfg.EventBuffer,
		}, logger),
		resolver: gatt.NewResolver(radio, &gatt.Options{
			TargetUUID:     cfg.TargetCharacteristic,
			Policy:         cfg.Policy(),
			ConnectTimeout: cfg.ConnectTimeout,
		}, logger),
		tx:     transmit.New(&transmit.Options{WriteTimeout: cfg.WriteTimeout}, logger),
		inbox:  make(chan any, inboxSize),
		events: ringchan.New[Event](max(cfg.EventBuffer, 1)),
	}
	s.sched = schedule.New(cfg.SendInterval, s.onTick, logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start runs the session loop until ctx is done or Close is called.
// It reports the initial status and applies the configured initial mode.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		stop := context.AfterFunc(ctx, s.cancel)
		s.emitStatus(StatusNotConnected)
		s.inbox <- modeCmd{mode: s.cfg.Mode()}

		groutine.GoWait(s.ctx, &s.wg, "session-loop", func(ctx context.Context) {
			defer stop()
			s.loop(ctx)
		})
	})
}

// Close stops the loop, the ticker and any scan, drops the connection and
// closes the event channel.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.sched.Stop()
		s.scanner.Close()
		if err := s.resolver.Disconnect(); err != nil {
			s.logger.WithError(err).Debug("Disconnect on close failed")
		}
		s.events.Close()
	})
}

// Events returns the outbound event stream. Oldest events are dropped if the
// consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events.C()
}

// Devices returns the devices of the current or last scan in discovery order
func (s *Session) Devices() []device.DiscoveredDevice {
	return s.scanner.Devices()
}

// Mode returns the current transmission mode
func (s *Session) Mode() schedule.Mode {
	return s.sched.Mode()
}

// StartScan begins a new scan, replacing any scan in progress
func (s *Session) StartScan() { s.post(startScanCmd{}) }

// Connect connects to the discovered device with the given display name
func (s *Session) Connect(display string) { s.post(connectCmd{display: display}) }

// ConnectAddress connects to addr without a prior scan
func (s *Session) ConnectAddress(addr device.Address) {
	s.post(connectCmd{addr: addr, byAddr: true})
}

// SetMode switches between automatic and manual transmission
func (s *Session) SetMode(m schedule.Mode) { s.post(modeCmd{mode: m}) }

// SendManual sends text once. Only allowed in Manual mode.
func (s *Session) SendManual(text string) { s.post(sendCmd{text: text}) }

func (s *Session) post(m any) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

// onTick runs on the ticker goroutine and must not block: SetMode on the
// loop waits for that goroutine to exit.
func (s *Session) onTick(t schedule.Tick) {
	select {
	case s.inbox <- tickMsg{tick: t}:
	default:
		s.logger.WithField("generation", t.Generation).Debug("Session busy, tick dropped")
	}
}

func (s *Session) loop(ctx context.Context) {
	scanEvents := s.scanner.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-scanEvents:
			if !ok {
				scanEvents = nil
				continue
			}
			s.handleScanEvent(ev)
		case m := <-s.inbox:
			s.handle(m)
		}
	}
}

func (s *Session) handle(m any) {
	switch m := m.(type) {
	case startScanCmd:
		s.handleStartScan()
	case connectCmd:
		s.handleConnect(m)
	case connectResult:
		s.handleConnectResult(m)
	case modeCmd:
		s.sched.SetMode(m.mode)
	case sendCmd:
		s.handleSend(m.text)
	case tickMsg:
		s.handleTick(m.tick)
	case writeResult:
		s.handleWriteResult(m)
	default:
		s.logger.WithField("message", fmt.Sprintf("%T", m)).Error("Unknown session message")
	}
}

func (s *Session) handleStartScan() {
	s.emitStatus(StatusScanning)
	if err := s.scanner.Start(s.ctx); err != nil {
		s.emitStatus(StatusRadioUnavailablePrefix + err.Error())
	}
}

func (s *Session) handleScanEvent(ev scanner.Event) {
	switch ev.Type {
	case scanner.EventDeviceDiscovered:
		s.emit(Event{Kind: DeviceDiscovered, Message: ev.Device.Display, Device: ev.Device})
	case scanner.EventScanComplete:
		s.emit(Event{Kind: ScanComplete, Message: StatusScanComplete})
		s.emitStatus(StatusScanComplete)
	case scanner.EventScanFailed:
		s.emitStatus(StatusRadioUnavailablePrefix + errorText(ev.Err))
	}
}

func (s *Session) handleConnect(cmd connectCmd) {
	addr := cmd.addr
	if !cmd.byAddr {
		dev, ok := s.scanner.Lookup(cmd.display)
		if !ok {
			s.emitStatus(StatusSelectDevice)
			return
		}
		addr = dev.Address
	}

	// The generation is reserved here, on the loop, so the last selection is
	// the one the resolver keeps however the connect goroutines are scheduled.
	gen := s.resolver.Begin()
	s.connectGen = gen
	s.current = nil
	s.emitStatus(StatusConnecting)

	s.logger.WithFields(logrus.Fields{
		"address":    addr.String(),
		"display":    cmd.display,
		"generation": gen,
	}).Debug("Dispatching connect")

	groutine.Go(s.ctx, "session-connect", func(context.Context) {
		// Connect is not cancelled mid-flight; the session context only
		// matters for delivering the result.
		wc, err := s.resolver.ConnectAs(context.Background(), gen, addr)
		s.deliver(connectResult{generation: gen, char: wc, err: err}, wc)
	})
}

// deliver posts a result from a worker goroutine. If the session is gone the
// link the result carries is released.
func (s *Session) deliver(m any, wc *gatt.WritableCharacteristic) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
		if wc != nil {
			_ = s.resolver.Release(wc.Handle())
		}
	}
}

func (s *Session) handleConnectResult(r connectResult) {
	if r.generation != s.connectGen {
		s.logger.WithFields(logrus.Fields{
			"generation": r.generation,
			"latest":     s.connectGen,
		}).Debug("Discarding stale connect result")
		if r.char != nil {
			_ = s.resolver.Release(r.char.Handle())
		}
		return
	}

	if r.err != nil {
		s.current = nil
		switch device.KindOf(r.err) {
		case device.ServiceDiscoveryFailed:
			s.emitStatus(StatusDiscoveryFailed)
		case device.CharacteristicNotFound:
			s.emitStatus(StatusCharNotFound)
		default:
			s.emitStatus(StatusConnectFailed)
		}
		return
	}

	s.current = r.char
	s.emitStatus(StatusConnected)
}

func (s *Session) handleSend(text string) {
	if s.sched.Mode() != schedule.Manual {
		s.emitStatus(StatusManualModeRequired)
		return
	}
	if !s.current.Valid() {
		s.emitStatus(StatusSendNotConnected)
		return
	}
	if strings.TrimSpace(text) == "" {
		s.emitStatus(StatusNoText)
		return
	}
	s.dispatchWrite(s.current, text, false)
}

func (s *Session) handleTick(t schedule.Tick) {
	if !s.sched.Accept(t) {
		return
	}
	if !s.current.Valid() {
		return
	}
	if s.autoInFlight {
		s.logger.WithField("generation", t.Generation).Debug("Previous automatic write in flight, tick skipped")
		return
	}
	s.autoInFlight = true
	s.dispatchWrite(s.current, schedule.Token(), true)
}

func (s *Session) dispatchWrite(wc *gatt.WritableCharacteristic, text string, auto bool) {
	groutine.Go(s.ctx, "session-write", func(context.Context) {
		receipt, err := s.tx.Send(wc, text)
		s.deliver(writeResult{auto: auto, char: wc, receipt: receipt, err: err}, nil)
	})
}

func (s *Session) handleWriteResult(r writeResult) {
	if r.auto {
		s.autoInFlight = false
	}

	if r.err != nil {
		if r.char != s.current || !r.char.Valid() {
			s.logger.WithError(r.err).Debug("Write on revoked connection failed")
			return
		}
		switch device.KindOf(r.err) {
		case device.EmptyPayload:
			s.emitStatus(StatusNoText)
		case device.NotConnected:
			s.emitStatus(StatusSendNotConnected)
		default:
			s.emitStatus(StatusSendFailedPrefix + errorText(r.err))
		}
		return
	}

	s.emit(Event{Kind: Sent, Message: r.receipt.Display})
	s.emitStatus(StatusSentPrefix + r.receipt.Display)
}

func (s *Session) emitStatus(msg string) {
	s.logger.WithField("status", msg).Debug("Status changed")
	s.emit(Event{Kind: StatusChanged, Message: msg})
}

func (s *Session) emit(ev Event) {
	if s.events.Send(ev) {
		s.logger.WithField("kind", ev.Kind.String()).Debug("Event consumer behind, oldest event dropped")
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
