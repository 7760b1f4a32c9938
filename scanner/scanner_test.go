package scanner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/internal/testutils"
	"github.com/srg/bletx/scanner"
	"github.com/stretchr/testify/suite"
)

const waitTimeout = 2 * time.Second

type ScannerTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	radio  *testutils.FakeRadio
}

func (s *ScannerTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.radio = testutils.NewFakeRadio()
}

func (s *ScannerTestSuite) newScanner(window time.Duration) *scanner.Scanner {
	sc := scanner.New(s.radio, &scanner.Options{Window: window, ActiveScan: true}, s.helper.Logger)
	s.T().Cleanup(sc.Close)
	return sc
}

func (s *ScannerTestSuite) waitComplete(sc *scanner.Scanner) []scanner.Event {
	return testutils.ReceiveUntil(s.T(), sc.Events(), waitTimeout, func(e scanner.Event) bool {
		return e.Type == scanner.EventScanComplete || e.Type == scanner.EventScanFailed
	})
}

func (s *ScannerTestSuite) TestDiscoveryIsDedupedByDisplayInOrder() {
	// GOAL: unnamed advertisers MUST be ignored and each display name recorded once
	s.radio.WithAdvertisements(
		testutils.NewAdvertisement("Tag1", "00:11:22:33:44:55"),
		testutils.NewAdvertisement("", "00:11:22:33:44:56"),
		testutils.NewAdvertisement("Tag1", "00:11:22:33:44:55"),
		testutils.NewAdvertisement("Tag2", "00:11:22:33:44:57"),
		testutils.NewAdvertisement("Tag1", "00:11:22:33:44:58"),
	)
	sc := s.newScanner(50 * time.Millisecond)

	s.Require().NoError(sc.Start(context.Background()))
	events := s.waitComplete(sc)

	var displays []string
	for _, e := range events {
		if e.Type == scanner.EventDeviceDiscovered {
			displays = append(displays, e.Device.Display)
		}
	}
	s.Equal([]string{"Tag1 (1122334455)", "Tag2 (1122334457)", "Tag1 (1122334458)"}, displays)
	s.Equal(scanner.EventScanComplete, events[len(events)-1].Type)

	devs := sc.Devices()
	s.Require().Len(devs, 3)
	s.Equal(device.Address(0x1122334457), devs[1].Address)
	s.Equal("Tag2", devs[1].Name)

	d, ok := sc.Lookup("Tag2 (1122334457)")
	s.True(ok)
	s.Equal(devs[1], d)
	_, ok = sc.Lookup("Tag9 (1)")
	s.False(ok)
	s.False(sc.Scanning())
}

func (s *ScannerTestSuite) TestWindowElapsesWithExactlyOneCompletion() {
	sc := s.newScanner(30 * time.Millisecond)

	s.Require().NoError(sc.Start(context.Background()))
	s.True(sc.Scanning())

	events := s.waitComplete(sc)
	s.Len(events, 1)
	testutils.NoReceive(s.T(), sc.Events(), 100*time.Millisecond)
	s.False(s.radio.Scanning(), "radio scan MUST stop when the window elapses")
}

func (s *ScannerTestSuite) TestRestartSuppressesPreviousCompletion() {
	sc := s.newScanner(time.Hour)

	s.Require().NoError(sc.Start(context.Background()))
	first := testutils.ReceiveUntil(s.T(), scanRunning(s.radio), waitTimeout, func(b bool) bool { return b })
	s.NotEmpty(first)
	s.True(s.radio.Emit(testutils.NewAdvertisement("Old", "00:00:00:00:00:01")))
	ev := testutils.Receive(s.T(), sc.Events(), waitTimeout)
	s.Equal("Old (1)", ev.Device.Display)

	s.Require().NoError(sc.Start(context.Background()))
	s.Empty(sc.Devices(), "restart MUST clear the device set")
	s.Eventually(func() bool { return s.radio.Scans() == 2 }, waitTimeout, 5*time.Millisecond,
		"restart MUST open a second radio scan")

	sc.Stop()
	ev = testutils.Receive(s.T(), sc.Events(), waitTimeout)
	s.Equal(scanner.EventScanComplete, ev.Type)
	s.Equal(uint64(2), ev.Session, "only the second session MUST report completion")
	testutils.NoReceive(s.T(), sc.Events(), 50*time.Millisecond)
}

// lingeringRadio keeps each scan running after its context ends until release
// is closed, the way an asynchronous StopScan does
type lingeringRadio struct {
	release chan struct{}

	mu      sync.Mutex
	active  int
	maxSeen int
	scans   int
}

func (r *lingeringRadio) Scan(ctx context.Context, _ device.ScanParams, _ func(device.Advertisement)) error {
	r.mu.Lock()
	r.scans++
	r.active++
	r.maxSeen = max(r.maxSeen, r.active)
	r.mu.Unlock()

	<-ctx.Done()
	<-r.release

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return ctx.Err()
}

func (r *lingeringRadio) Dial(context.Context, device.Address) (device.Link, error) {
	return nil, errors.New("not supported")
}

func (r *lingeringRadio) stats() (scans, maxSeen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans, r.maxSeen
}

func (s *ScannerTestSuite) TestRestartDoesNotWaitForSlowStop() {
	// GOAL: Verify Start returns while the previous radio scan is still winding down,
	// and the radio never runs two scans at once
	//
	// TEST SCENARIO: scan → restart with the stop held → Start returns → release → one completion

	radio := &lingeringRadio{release: make(chan struct{})}
	sc := scanner.New(radio, &scanner.Options{Window: time.Hour, ActiveScan: true}, s.helper.Logger)
	s.T().Cleanup(sc.Close)

	s.Require().NoError(sc.Start(context.Background()))
	s.Eventually(func() bool { n, _ := radio.stats(); return n == 1 }, waitTimeout, time.Millisecond)

	started := make(chan error, 1)
	go func() { started <- sc.Start(context.Background()) }()
	s.Require().NoError(testutils.Receive(s.T(), started, waitTimeout), "restart MUST NOT block on the old scan")
	s.True(sc.Scanning())

	scans, _ := radio.stats()
	s.Equal(1, scans, "second radio scan MUST wait for the first to return")

	close(radio.release)
	s.Eventually(func() bool { n, _ := radio.stats(); return n == 2 }, waitTimeout, time.Millisecond)

	sc.Stop()
	events := s.waitComplete(sc)
	s.Require().Len(events, 1)
	s.Equal(uint64(2), events[0].Session, "only the restarted session MUST report completion")

	_, maxSeen := radio.stats()
	s.Equal(1, maxSeen, "scans MUST NOT overlap")
}

func (s *ScannerTestSuite) TestStopIsIdempotent() {
	sc := s.newScanner(time.Hour)

	s.NotPanics(sc.Stop)

	s.Require().NoError(sc.Start(context.Background()))
	sc.Stop()
	sc.Stop()

	events := s.waitComplete(sc)
	s.Len(events, 1)
	testutils.NoReceive(s.T(), sc.Events(), 50*time.Millisecond)
}

func (s *ScannerTestSuite) TestRadioFailureIsReportedNotFatal() {
	s.radio.WithScanError(errors.New("bluetooth is turned off"))
	sc := s.newScanner(time.Second)

	s.Require().NoError(sc.Start(context.Background()))
	ev := testutils.Receive(s.T(), sc.Events(), waitTimeout)
	s.Equal(scanner.EventScanFailed, ev.Type)
	s.ErrorIs(ev.Err, device.ErrRadioUnavailable)

	// scanning can be retried
	s.radio.WithScanError(nil)
	s.Require().NoError(sc.Start(context.Background()))
	sc.Stop()
	ev = testutils.Receive(s.T(), sc.Events(), waitTimeout)
	s.Equal(scanner.EventScanComplete, ev.Type)
}

func (s *ScannerTestSuite) TestNoRadio() {
	sc := scanner.New(nil, nil, s.helper.Logger)
	s.ErrorIs(sc.Start(context.Background()), device.ErrRadioUnavailable)
}

func (s *ScannerTestSuite) TestDefaultOptions() {
	opts := scanner.DefaultOptions()
	s.Equal(5*time.Second, opts.Window)
	s.True(opts.ActiveScan)
	s.Equal(256, opts.EventBuffer)
}

// scanRunning fires once the fake radio scan is running
func scanRunning(r *testutils.FakeRadio) <-chan bool {
	ch := make(chan bool, 1)
	go func() {
		for !r.Scanning() {
			time.Sleep(time.Millisecond)
		}
		ch <- true
	}()
	return ch
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}
