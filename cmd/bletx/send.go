package main

import (
	"context"
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

// sendGrace pads the connect and write timeouts when waiting for the outcome
const sendGrace = 2 * time.Second

var sendCmd = &cobra.Command{
	Use:   "send --address <address> <text>",
	Short: "Connect to a device and send one message",
	Long: `Connects to the device at --address, locates the target characteristic, writes the text once and exits.

The address is the hex form shown by "bletx scan" (e.g. 1122334455) or a colon-separated MAC.
Leading and trailing whitespace is trimmed; "\n" sequences in the text become newlines.`,
	Example: `  bletx send --address 1122334455 hello
  bletx send --address 11:22:33:44:55:66 "line one\nline two"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringP("address", "a", "", "Device address (required)")
	_ = sendCmd.MarkFlagRequired("address")
}

func runSend(cmd *cobra.Command, args []string) error {
	addrStr, _ := cmd.Flags().GetString("address")
	addr, err := device.ParseAddress(addrStr)
	if err != nil {
		return err
	}
	text := expandEscapes(strings.Join(args, " "))
	if strings.TrimSpace(text) == "" {
		return device.ErrEmptyPayload
	}

	env, err := newCommandEnv(cmd, func(cfg *config.Config) {
		cfg.InitialMode = schedule.Manual.String()
	})
	if err != nil {
		return err
	}
	defer env.Close()

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := env.newSession()
	sess.Start(ctx)
	defer sess.Close()

	render := newRenderer(env.out, env.colors)
	sess.ConnectAddress(addr)

	timeout := env.cfg.ConnectTimeout + env.cfg.WriteTimeout + sendGrace
	return awaitSend(ctx, sess, render, text, addr, env.cfg.TargetCharacteristic, timeout)
}

// awaitSend drives one connect-then-send exchange from the event stream and
// maps the failure statuses back to device errors
func awaitSend(ctx context.Context, sess *session.Session, render *renderer, text string, addr device.Address, target string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-timer.C:
			return ErrSendTimeout
		case ev, ok := <-sess.Events():
			if !ok {
				return context.Canceled
			}
			if ev.Kind != session.StatusChanged {
				continue
			}

			msg := ev.Message
			switch {
			case msg == session.StatusConnected:
				render.Event(ev)
				sess.SendManual(text)
			case msg == session.StatusConnectFailed:
				return device.NewError(device.DeviceUnreachable, nil, "address %s", addr)
			case msg == session.StatusDiscoveryFailed:
				return device.NewError(device.ServiceDiscoveryFailed, nil, "address %s", addr)
			case msg == session.StatusCharNotFound:
				return device.NewError(device.CharacteristicNotFound, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{target}}, "")
			case msg == session.StatusSendNotConnected:
				return device.ErrNotConnected
			case msg == session.StatusNoText:
				return device.ErrEmptyPayload
			case strings.HasPrefix(msg, session.StatusSendFailedPrefix):
				return device.NewError(device.WriteFailed, nil, "%s", strings.TrimPrefix(msg, session.StatusSendFailedPrefix))
			case strings.HasPrefix(msg, session.StatusSentPrefix):
				render.Event(ev)
				return nil
			default:
				render.Event(ev)
			}
		}
	}
}

var escapeReplacer = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\t`, "\t")

// expandEscapes turns the two-character sequences \n, \t and \\ into the characters they name
func expandEscapes(s string) string {
	return escapeReplacer.Replace(s)
}
