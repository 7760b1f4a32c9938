package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/bletx/pkg/config"
	"github.com/srg/bletx/schedule"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive shell",
	Long: `Starts a session and reads commands from standard input.

In auto mode a random 8-character token is sent every second while connected.
In manual mode "send <text>" writes your text instead.`,
	Example: `  bletx run
  bletx run --mode manual --config bletx.yaml`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	runCmd.Flags().String("mode", "", "Initial transmission mode: auto, manual (default from config, auto)")
}

func runShell(cmd *cobra.Command, args []string) error {
	modeStr, _ := cmd.Flags().GetString("mode")
	if modeStr != "" {
		m, err := schedule.ParseMode(modeStr)
		if err != nil {
			return err
		}
		if m == schedule.Idle {
			return errors.New("invalid mode \"idle\" (expected auto or manual)")
		}
		modeStr = m.String()
	}

	env, err := newCommandEnv(cmd, func(cfg *config.Config) {
		if modeStr != "" {
			cfg.InitialMode = modeStr
		}
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
	render.Line("bletx %s, type help for commands", formatVersion(version))
	return newShell(sess, render).Run(ctx, cmd.InOrStdin())
}
