package devicefactory

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/internal/device/go-ble"
	"github.com/srg/bletx/internal/device/tinygo"
)

// Backend names accepted by NewRadio
const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
)

// Backends lists every supported backend name
var Backends = []string{BackendGoBLE, BackendTinyGo}

// Radio is a device.Radio that owns platform resources
type Radio interface {
	device.Radio
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend     string
	ActiveScan  bool
	DialTimeout time.Duration
}

// RadioFactory creates the radio for the configured backend.
// This is a variable so that it can be overridden in tests.
var RadioFactory = NewRadio

// NewRadio builds the named backend. Platform resources are acquired lazily,
// so an unavailable adapter is reported by the first Scan or Dial.
func NewRadio(opts Options, logger *logrus.Logger) (Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}

	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendGoBLE:
		return goble.NewRadio(goble.Options{
			ActiveScan:  opts.ActiveScan,
			DialTimeout: opts.DialTimeout,
		}, logger), nil
	case BackendTinyGo:
		return tinygo.NewRadio(logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (supported: %s)", opts.Backend, strings.Join(Backends, ", "))
	}
}
