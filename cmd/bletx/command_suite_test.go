package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/bletx/internal/devicefactory"
	"github.com/srg/bletx/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	tagAddr    = "00:11:22:33:44:55"
	tagHexAddr = "1122334455"
	tagDisplay = "Tag1 (1122334455)"
)

// testConfigYAML keeps scans short and logging silent
const testConfigYAML = `
scan_window: 30ms
send_interval: 10ms
connect_timeout: 1s
write_timeout: 1s
initial_mode: manual
log_level: panic
`

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a polling reader
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs the real command tree against a fake radio
type CommandTestSuite struct {
	suite.Suite
	radio       *testutils.FakeRadio
	peripheral  *testutils.FakePeripheral
	factoryOpts []devicefactory.Options
	configPath  string

	restoreFactory func()
}

func (s *CommandTestSuite) SetupTest() {
	s.peripheral = testutils.NewPeripheralFromJSON(testutils.UARTPeripheralJSON, tagAddr)
	s.radio = testutils.NewFakeRadio().
		WithAdvertisements(testutils.NewAdvertisement("Tag1", tagAddr)).
		WithPeripheral(s.peripheral)
	s.factoryOpts = nil

	original := devicefactory.RadioFactory
	devicefactory.RadioFactory = func(opts devicefactory.Options, _ *logrus.Logger) (devicefactory.Radio, error) {
		s.factoryOpts = append(s.factoryOpts, opts)
		return s.radio, nil
	}
	s.restoreFactory = func() { devicefactory.RadioFactory = original }

	s.configPath = s.WriteConfig(testConfigYAML)
	resetFlags(rootCmd)
}

func (s *CommandTestSuite) TearDownTest() {
	s.restoreFactory()
}

// WriteConfig stores yaml in a temp file and returns its path
func (s *CommandTestSuite) WriteConfig(yaml string) string {
	path := filepath.Join(s.T().TempDir(), "bletx.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(yaml), 0o600), "config file MUST be written")
	return path
}

// ExecuteCommand runs the root command with args, returns output and error
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(syncBuffer)
	err := s.ExecuteCommandWithInput(buf, strings.NewReader(""), args...)
	return buf.String(), err
}

// ExecuteCommandWithInput runs the root command reading stdin from in
func (s *CommandTestSuite) ExecuteCommandWithInput(out io.Writer, in io.Reader, args ...string) error {
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(in)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// resetFlags restores every flag of cmd and its children to its default,
// since the command tree is package state shared by all tests
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	cmd.SilenceUsage = false
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
