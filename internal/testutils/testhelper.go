package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestHelper bundles a debug logger with small polling helpers
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// Receive waits for one value from ch or fails the test after timeout
func Receive[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(timeout):
		require.FailNow(t, "timed out waiting for value")
	}
	var zero T
	return zero
}

// ReceiveUntil reads from ch until match returns true, returning every value read
func ReceiveUntil[T any](t testing.TB, ch <-chan T, timeout time.Duration, match func(T) bool) []T {
	t.Helper()
	deadline := time.After(timeout)
	var seen []T
	for {
		select {
		case v, ok := <-ch:
			require.True(t, ok, "channel closed")
			seen = append(seen, v)
			if match(v) {
				return seen
			}
		case <-deadline:
			require.FailNowf(t, "timed out", "values seen so far: %v", seen)
			return seen
		}
	}
}

// NoReceive asserts that nothing arrives on ch within d
func NoReceive[T any](t testing.TB, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			require.FailNowf(t, "unexpected value", "%v", v)
		}
	case <-time.After(d):
	}
}
