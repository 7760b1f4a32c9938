package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/session"
)

type tone int

const (
	toneInfo tone = iota
	toneSuccess
	toneFailure
)

var failureStatuses = map[string]struct{}{
	session.StatusSelectDevice:       {},
	session.StatusConnectFailed:      {},
	session.StatusDiscoveryFailed:    {},
	session.StatusCharNotFound:       {},
	session.StatusSendNotConnected:   {},
	session.StatusNoText:             {},
	session.StatusManualModeRequired: {},
}

// statusTone classifies a status message for colouring
func statusTone(msg string) tone {
	switch {
	case msg == session.StatusConnected, msg == session.StatusScanComplete,
		strings.HasPrefix(msg, session.StatusSentPrefix):
		return toneSuccess
	case strings.HasPrefix(msg, session.StatusRadioUnavailablePrefix),
		strings.HasPrefix(msg, session.StatusSendFailedPrefix):
		return toneFailure
	}
	if _, ok := failureStatuses[msg]; ok {
		return toneFailure
	}
	return toneInfo
}

// renderer prints session events and device lists. Safe for concurrent use.
type renderer struct {
	mu      sync.Mutex
	w       io.Writer
	success *color.Color
	failure *color.Color
	info    *color.Color
	dim     *color.Color
}

func newRenderer(w io.Writer, colors bool) *renderer {
	r := &renderer{
		w:       w,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		info:    color.New(color.FgCyan),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.success, r.failure, r.info, r.dim} {
		if colors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *renderer) paint(t tone) *color.Color {
	switch t {
	case toneSuccess:
		return r.success
	case toneFailure:
		return r.failure
	default:
		return r.info
	}
}

// Line prints a plain line
func (r *renderer) Line(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format+"\n", args...)
}

// Event prints one session event. ScanComplete is covered by the status that follows it.
func (r *renderer) Event(ev session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case session.StatusChanged:
		fmt.Fprintln(r.w, r.paint(statusTone(ev.Message)).Sprint(ev.Message))
	case session.DeviceDiscovered:
		fmt.Fprintf(r.w, "%s %s\n", r.info.Sprint("+"), ev.Device.Display)
	case session.Sent:
		fmt.Fprintln(r.w, r.dim.Sprint("> "+ev.Message))
	}
}

// Devices prints devs as a numbered table, in discovery order
func (r *renderer) Devices(devs []device.DiscoveredDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(devs) == 0 {
		fmt.Fprintln(r.w, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tADDRESS")
	for i, d := range devs {
		name := d.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, name, d.Address)
	}
	return w.Flush()
}
