package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/pkg/config"
	"github.com/srg/bletx/schedule"
	"github.com/srg/bletx/session"
)

// scanCompletionGrace is how long past the window the command waits for the completion event
const scanCompletionGrace = 2 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for named BLE devices",
	Long: `Runs one scan window and lists every named device in the order it was discovered.

Devices are identified by "Name (ADDRESS)"; ADDRESS is the value accepted by "bletx send --address".`,
	Example: `  bletx scan
  bletx scan --duration 10s --format json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationP("duration", "d", 0, "Scan window (default from config, 5s)")
	scanCmd.Flags().StringP("format", "f", "table", "Output format: table, json")
}

func runScan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format %q (must be table or json)", format)
	}
	duration, _ := cmd.Flags().GetDuration("duration")
	if duration < 0 {
		return fmt.Errorf("invalid duration %s (must be positive)", duration)
	}

	env, err := newCommandEnv(cmd, func(cfg *config.Config) {
		if duration > 0 {
			cfg.ScanWindow = duration
		}
		cfg.InitialMode = schedule.Manual.String()
	})
	if err != nil {
		return err
	}
	defer env.Close()

	// Arguments are valid from here on; runtime failures need no usage text
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := env.newSession()
	sess.Start(ctx)
	defer sess.Close()

	var progress *ProgressPrinter
	if isTerminal(env.out) {
		progress = NewCountdownProgressPrinter(env.out, "Scanning for BLE devices", "Scanning", env.cfg.ScanWindow)
		progress.Start()
		defer progress.Stop()
	}

	sess.StartScan()
	err = awaitScan(ctx, sess, env.cfg.ScanWindow+scanCompletionGrace)
	if progress != nil {
		progress.Stop()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		env.logger.WithError(err).Error("Scan failed")
		return err
	}

	devs := sess.Devices()
	if format == "json" {
		return writeDevicesJSON(env.out, devs)
	}
	return newRenderer(env.out, env.colors).Devices(devs)
}

// awaitScan waits for the session to report the end of the scan
func awaitScan(ctx context.Context, sess *session.Session, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-timer.C:
			return ErrScanTimeout
		case ev, ok := <-sess.Events():
			if !ok {
				return context.Canceled
			}
			switch {
			case ev.Kind == session.ScanComplete:
				return nil
			case ev.Kind == session.StatusChanged && strings.HasPrefix(ev.Message, session.StatusRadioUnavailablePrefix):
				return device.NewError(device.RadioUnavailable, nil, "%s", strings.TrimPrefix(ev.Message, session.StatusRadioUnavailablePrefix))
			}
		}
	}
}

func writeDevicesJSON(w io.Writer, devs []device.DiscoveredDevice) error {
	if devs == nil {
		devs = []device.DiscoveredDevice{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devs)
}
