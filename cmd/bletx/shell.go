package main

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/srg/bletx/schedule"
	"github.com/srg/bletx/session"
)

const shellHelp = `Commands:
  scan                     scan for devices
  list                     list discovered devices
  connect <n|display>      connect by list number or "Name (ADDRESS)"
  mode auto|manual         switch transmission mode
  send <text>              send text in manual mode (\n for newline)
  help                     show this help
  quit                     exit`

// shellCommand is one parsed input line
type shellCommand struct {
	Name string
	Arg  string
}

// parseShellCommand splits a line into a lower-cased command name and the
// rest of the line. ok is false for blank lines.
func parseShellCommand(line string) (cmd shellCommand, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return shellCommand{}, false
	}
	name, arg, _ := strings.Cut(line, " ")
	return shellCommand{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}, true
}

// shell is the line-oriented UI over a Session
type shell struct {
	sess   *session.Session
	render *renderer
}

func newShell(sess *session.Session, render *renderer) *shell {
	return &shell{sess: sess, render: render}
}

// Run prints session events and executes commands read from in until quit,
// EOF or ctx is done
func (sh *shell) Run(ctx context.Context, in io.Reader) error {
	events := sh.sess.Events()
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			sh.render.Event(ev)
		case line := <-lines:
			cmd, ok := parseShellCommand(line)
			if !ok {
				continue
			}
			if sh.execute(cmd) {
				return nil
			}
		}
	}
}

// execute runs one command and reports whether the shell should exit
func (sh *shell) execute(cmd shellCommand) (quit bool) {
	switch cmd.Name {
	case "scan":
		sh.sess.StartScan()
	case "list", "ls":
		_ = sh.render.Devices(sh.sess.Devices())
	case "connect":
		if cmd.Arg == "" {
			sh.render.Line("usage: connect <n|display>")
			return false
		}
		sh.sess.Connect(sh.resolveDisplay(cmd.Arg))
	case "mode":
		m, err := schedule.ParseMode(cmd.Arg)
		if err != nil || m == schedule.Idle {
			sh.render.Line("usage: mode auto|manual")
			return false
		}
		sh.sess.SetMode(m)
		sh.render.Line("Mode: %s", m)
	case "send":
		sh.sess.SendManual(expandEscapes(cmd.Arg))
	case "help", "?":
		sh.render.Line(shellHelp)
	case "quit", "exit", "q":
		return true
	default:
		sh.render.Line("unknown command %q, type help for a list", cmd.Name)
	}
	return false
}

// resolveDisplay maps a 1-based list number to its display string.
// Anything else is passed through for the session to look up.
func (sh *shell) resolveDisplay(arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg
	}
	devs := sh.sess.Devices()
	if n < 1 || n > len(devs) {
		return arg
	}
	return devs[n-1].Display
}
