// Package transmit writes text payloads to a resolved characteristic.
package transmit

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/gatt"
	"github.com/srg/bletx/internal/device"
)

// DefaultWriteTimeout bounds a single characteristic write
const DefaultWriteTimeout = 5 * time.Second

// Options configures the transmitter
type Options struct {
	WriteTimeout time.Duration
}

// Receipt describes a completed write
type Receipt struct {
	Payload []byte
	// Display is the payload rendered for a one-line status
	Display string
	Mode    device.WriteMode
}

// Transmitter sends one message per write. It never retries.
type Transmitter struct {
	opts   Options
	logger *logrus.Logger
}

// New creates a transmitter. A nil opts uses DefaultWriteTimeout.
func New(opts *Options, logger *logrus.Logger) *Transmitter {
	if logger == nil {
		logger = logrus.New()
	}
	o := Options{WriteTimeout: DefaultWriteTimeout}
	if opts != nil && opts.WriteTimeout > 0 {
		o.WriteTimeout = opts.WriteTimeout
	}
	return &Transmitter{opts: o, logger: logger}
}

// Send trims text and writes its UTF-8 bytes to ch in ch's write mode
func (t *Transmitter) Send(ch *gatt.WritableCharacteristic, text string) (Receipt, error) {
	payload := strings.TrimSpace(text)
	if payload == "" {
		return Receipt{}, device.NewError(device.EmptyPayload, nil, "")
	}
	if !ch.Valid() {
		return Receipt{}, device.NewError(device.NotConnected, nil, "")
	}

	data := []byte(payload)
	log := t.logger.WithFields(logrus.Fields{
		"address": ch.Address().String(),
		"uuid":    ch.UUID,
		"mode":    ch.Mode.String(),
		"bytes":   len(data),
	})

	if err := ch.Write(data, t.opts.WriteTimeout); err != nil {
		log.WithError(err).Warn("Write failed")
		return Receipt{}, device.NewError(device.WriteFailed, err, "")
	}

	log.Debug("Payload written")
	return Receipt{
		Payload: data,
		Display: DisplayText(payload),
		Mode:    ch.Mode,
	}, nil
}

var displayReplacer = strings.NewReplacer("\n", " ", "\r", "")

// DisplayText renders text on one line: "\n" becomes a space and "\r" is removed
func DisplayText(text string) string {
	return displayReplacer.Replace(text)
}
