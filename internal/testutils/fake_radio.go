package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/srg/bletx/internal/device"
)

// FakeAdvertisement is a device.Advertisement with fixed fields
type FakeAdvertisement struct {
	Name           string
	Addr           device.Address
	AddrText       string
	Signal         int
	NotConnectable bool
}

func (a *FakeAdvertisement) LocalName() string       { return a.Name }
func (a *FakeAdvertisement) Address() device.Address { return a.Addr }
func (a *FakeAdvertisement) PlatformAddress() string { return a.AddrText }
func (a *FakeAdvertisement) RSSI() int               { return a.Signal }
func (a *FakeAdvertisement) Connectable() bool       { return !a.NotConnectable }

// NewAdvertisement creates an advertisement from a name and a MAC or hex address
func NewAdvertisement(name, addr string) *FakeAdvertisement {
	a, err := device.ParseAddress(addr)
	if err != nil {
		a = device.DeriveAddress(addr)
	}
	return &FakeAdvertisement{Name: name, Addr: a, AddrText: addr, Signal: -60}
}

// CharacteristicConfig describes a characteristic of a fake peripheral
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "write,write-without-response"
}

// ServiceConfig describes a service of a fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
	// FailCharacteristics makes characteristic enumeration of this service fail
	FailCharacteristics bool `json:"fail_characteristics,omitempty"`
}

// PeripheralConfig is the GATT profile of a fake peripheral
type PeripheralConfig struct {
	Address  string          `json:"address"`
	Services []ServiceConfig `json:"services"`
	// FailServices makes service enumeration fail
	FailServices bool `json:"fail_services,omitempty"`
}

// WriteRecord is one write received by a FakeCharacteristic
type WriteRecord struct {
	Data         []byte
	WithResponse bool
}

// FakeRadio is an in-memory device.Radio.
//
// Scan delivers the configured advertisements in order and then blocks until
// ctx is done, unless ScanErr is set. Dial finds peripherals by address.
type FakeRadio struct {
	mu          sync.Mutex
	advs        []device.Advertisement
	scanErr     error
	peripherals map[device.Address]*FakePeripheral
	handler     func(device.Advertisement)
	scans       int
	dials       []device.Address
	closes      int

	// DialHook runs before Dial returns; a non-nil error fails the dial
	DialHook func(ctx context.Context, addr device.Address) error
}

// NewFakeRadio creates an empty fake radio
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{peripherals: make(map[device.Address]*FakePeripheral)}
}

// WithAdvertisements appends advertisements delivered by every Scan
func (r *FakeRadio) WithAdvertisements(advs ...device.Advertisement) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advs = append(r.advs, advs...)
	return r
}

// WithScanError makes every Scan fail with err after delivering advertisements
func (r *FakeRadio) WithScanError(err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanErr = err
	return r
}

// WithPeripheral registers a connectable peripheral
func (r *FakeRadio) WithPeripheral(p *FakePeripheral) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peripherals[p.Address] = p
	return r
}

// WithPeripheralJSON registers a peripheral built from a PeripheralConfig JSON document
func (r *FakeRadio) WithPeripheralJSON(jsonStrFmt string, args ...interface{}) *FakeRadio {
	return r.WithPeripheral(NewPeripheralFromJSON(jsonStrFmt, args...))
}

// Close counts calls; the fake owns no resources
func (r *FakeRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

// Closes reports how many times Close was called
func (r *FakeRadio) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// Scan implements device.Radio
func (r *FakeRadio) Scan(ctx context.Context, _ device.ScanParams, handler func(device.Advertisement)) error {
	r.mu.Lock()
	r.scans++
	advs := append([]device.Advertisement(nil), r.advs...)
	scanErr := r.scanErr
	r.handler = handler
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.handler = nil
		r.mu.Unlock()
	}()

	for _, a := range advs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(a)
	}
	if scanErr != nil {
		return scanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

// Emit delivers adv to the running scan. It reports false when no scan is running.
func (r *FakeRadio) Emit(adv device.Advertisement) bool {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h == nil {
		return false
	}
	h(adv)
	return true
}

// Scanning reports whether a Scan call is in progress
func (r *FakeRadio) Scanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler != nil
}

// Scans returns how many times Scan was called
func (r *FakeRadio) Scans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

// Dials returns dialed addresses in call order
func (r *FakeRadio) Dials() []device.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.Address(nil), r.dials...)
}

// Dial implements device.Radio
func (r *FakeRadio) Dial(ctx context.Context, addr device.Address) (device.Link, error) {
	r.mu.Lock()
	r.dials = append(r.dials, addr)
	p, ok := r.peripherals[addr]
	hook := r.DialHook
	r.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, addr); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("peripheral %s not in range", addr)
	}
	return p.connect(), nil
}

// FakePeripheral holds the GATT profile and every link opened to it
type FakePeripheral struct {
	Address device.Address
	config  PeripheralConfig

	mu    sync.Mutex
	links []*FakeLink
	chars map[string]*FakeCharacteristic
	order []*FakeCharacteristic
}

// NewPeripheralFromJSON builds a peripheral from a PeripheralConfig JSON document.
// Panics on invalid input as this is intended for test data setup.
func NewPeripheralFromJSON(jsonStrFmt string, args ...interface{}) *FakePeripheral {
	jsonStr := jsonStrFmt
	if len(args) > 0 {
		jsonStr = fmt.Sprintf(jsonStrFmt, args...)
	}

	var cfg PeripheralConfig
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		panic(fmt.Sprintf("NewPeripheralFromJSON: failed to unmarshal: %v", err))
	}
	return NewPeripheral(cfg)
}

// NewPeripheral builds a peripheral from cfg
func NewPeripheral(cfg PeripheralConfig) *FakePeripheral {
	addr, err := device.ParseAddress(cfg.Address)
	if err != nil {
		panic(fmt.Sprintf("NewPeripheral: %v", err))
	}

	p := &FakePeripheral{
		Address: addr,
		config:  cfg,
		chars:   make(map[string]*FakeCharacteristic),
	}
	for _, s := range cfg.Services {
		for _, c := range s.Characteristics {
			props, err := device.ParseProperties(c.Properties)
			if err != nil {
				panic(fmt.Sprintf("NewPeripheral: characteristic %s: %v", c.UUID, err))
			}
			fc := &FakeCharacteristic{
				uuid:  device.NormalizeUUID(c.UUID),
				props: props,
				owner: p,
			}
			p.chars[device.NormalizeUUID(s.UUID)+"/"+fc.uuid] = fc
			p.order = append(p.order, fc)
		}
	}
	return p
}

// Characteristic returns the characteristic with the given service and characteristic UUIDs
func (p *FakePeripheral) Characteristic(serviceUUID, charUUID string) *FakeCharacteristic {
	return p.chars[device.NormalizeUUID(serviceUUID)+"/"+device.NormalizeUUID(charUUID)]
}

// Writes returns every write received by any characteristic, in characteristic order
func (p *FakePeripheral) Writes() []WriteRecord {
	var all []WriteRecord
	for _, c := range p.order {
		all = append(all, c.Writes()...)
	}
	return all
}

// Links returns every link opened to the peripheral
func (p *FakePeripheral) Links() []*FakeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeLink(nil), p.links...)
}

// OpenLinks counts links that have not been closed
func (p *FakePeripheral) OpenLinks() int {
	n := 0
	for _, l := range p.Links() {
		if !l.Closed() {
			n++
		}
	}
	return n
}

func (p *FakePeripheral) connect() *FakeLink {
	l := &FakeLink{peripheral: p}
	p.mu.Lock()
	p.links = append(p.links, l)
	p.mu.Unlock()
	return l
}

// FakeLink is a device.Link to a FakePeripheral
type FakeLink struct {
	peripheral *FakePeripheral

	mu     sync.Mutex
	closed bool
	closes int
}

func (l *FakeLink) Address() device.Address {
	return l.peripheral.Address
}

// Closed reports whether Close was called
func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Closes returns how many times Close was called
func (l *FakeLink) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.closes++
	return nil
}

func (l *FakeLink) Services(ctx context.Context) ([]device.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Closed() {
		return nil, device.ErrNotConnected
	}
	cfg := l.peripheral.config
	if cfg.FailServices {
		return nil, errors.New("att: request timed out")
	}

	svcs := make([]device.Service, 0, len(cfg.Services))
	for _, s := range cfg.Services {
		svcs = append(svcs, &fakeService{link: l, cfg: s})
	}
	return svcs, nil
}

type fakeService struct {
	link *FakeLink
	cfg  ServiceConfig
}

func (s *fakeService) UUID() string      { return device.NormalizeUUID(s.cfg.UUID) }
func (s *fakeService) KnownName() string { return "" }

func (s *fakeService) Characteristics(context.Context) ([]device.Characteristic, error) {
	if s.cfg.FailCharacteristics {
		return nil, fmt.Errorf("characteristic discovery of %s failed", s.cfg.UUID)
	}
	chars := make([]device.Characteristic, 0, len(s.cfg.Characteristics))
	for _, c := range s.cfg.Characteristics {
		fc := s.link.peripheral.Characteristic(s.cfg.UUID, c.UUID)
		chars = append(chars, &linkCharacteristic{FakeCharacteristic: fc, link: s.link})
	}
	return chars, nil
}

// FakeCharacteristic records the writes it receives across all links
type FakeCharacteristic struct {
	uuid  string
	props device.Properties
	owner *FakePeripheral

	mu       sync.Mutex
	writes   []WriteRecord
	writeErr error
	hook     func(data []byte)
}

func (c *FakeCharacteristic) UUID() string                  { return c.uuid }
func (c *FakeCharacteristic) KnownName() string             { return "" }
func (c *FakeCharacteristic) Properties() device.Properties { return c.props }

// FailWrites makes subsequent writes fail with err (nil restores success)
func (c *FakeCharacteristic) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// OnWrite installs fn to run before each write is recorded; fn may block
func (c *FakeCharacteristic) OnWrite(fn func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = fn
}

// Writes returns the recorded writes
func (c *FakeCharacteristic) Writes() []WriteRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WriteRecord(nil), c.writes...)
}

// linkCharacteristic binds a characteristic to the link it was discovered on
type linkCharacteristic struct {
	*FakeCharacteristic
	link *FakeLink
}

func (c *linkCharacteristic) Write(data []byte, withResponse bool, _ time.Duration) error {
	if c.link.Closed() {
		return device.ErrNotConnected
	}

	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, WriteRecord{Data: append([]byte(nil), data...), WithResponse: withResponse})
	return nil
}

// UARTPeripheralJSON is a peripheral exposing the Nordic UART service, addressed
// by the first format argument.
const UARTPeripheralJSON = `{
	"address": %q,
	"services": [
		{ "uuid": "1800", "characteristics": [ { "uuid": "2a00", "properties": "read" } ] },
		{
			"uuid": "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			"characteristics": [
				{ "uuid": "6e400003-b5a3-f393-e0a9-e50e24dcca9e", "properties": "notify" },
				{ "uuid": "6e400002-b5a3-f393-e0a9-e50e24dcca9e", "properties": "write,write-without-response" }
			]
		}
	]
}`

// UARTService and UARTTX identify the Nordic UART service and its TX characteristic
const (
	UARTService = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	UARTTX      = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
)
