package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/bletx/inspector"
	"github.com/srg/bletx/internal/device"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect --address <address>",
	Short: "List the GATT services and characteristics of a device",
	Long: `Connects to the device, lists every service and characteristic with its properties and disconnects.

The characteristic that "bletx send" and "bletx run" would write to is marked with "*".`,
	Example: `  bletx inspect --address 1122334455
  bletx inspect -a 11:22:33:44:55:66 --format json`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringP("address", "a", "", "Device address (required)")
	inspectCmd.Flags().StringP("format", "f", "table", "Output format: table, json")
	_ = inspectCmd.MarkFlagRequired("address")
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format %q (must be table or json)", format)
	}
	addrStr, _ := cmd.Flags().GetString("address")
	addr, err := device.ParseAddress(addrStr)
	if err != nil {
		return err
	}

	env, err := newCommandEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress *ProgressPrinter
	onPhase := func(string) {}
	if isTerminal(env.out) {
		progress = NewCountdownProgressPrinter(env.out, "Inspecting "+addr.String(), "Connecting", env.cfg.ConnectTimeout)
		progress.Start()
		defer progress.Stop()
		onPhase = progress.SetPhase
	}

	profile, err := inspector.Inspect(ctx, env.radio, addr, &inspector.Options{
		ConnectTimeout: env.cfg.ConnectTimeout,
		TargetUUID:     env.cfg.TargetCharacteristic,
	}, env.logger, onPhase)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return err
	}

	if format == "json" {
		encoder := json.NewEncoder(env.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(profile)
	}
	return writeProfileTable(env.out, profile)
}

func writeProfileTable(out io.Writer, profile *inspector.Profile) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, svc := range profile.Services {
		fmt.Fprintf(w, "Service %s\t%s\t\n", svc.UUID, svc.Name)
		if svc.Error != "" {
			fmt.Fprintf(w, "  ! %s\t\t\n", svc.Error)
			continue
		}
		for _, c := range svc.Characteristics {
			mark := " "
			if c.Target {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %s\t%s\t%s\n", mark, c.UUID, c.Name, c.Properties)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !profile.HasTarget() {
		fmt.Fprintln(out, "No writable target characteristic found")
	}
	return nil
}
