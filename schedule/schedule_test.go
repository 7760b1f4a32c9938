package schedule

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickRecorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func (r *tickRecorder) record(t Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
}

func (r *tickRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func (r *tickRecorder) last() Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks[len(r.ticks)-1]
}

func newTestScheduler(interval time.Duration) (*Scheduler, *tickRecorder) {
	rec := &tickRecorder{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return New(interval, rec.record, logger), rec
}

func TestAutomaticTicksAreAccepted(t *testing.T) {
	s, rec := newTestScheduler(5 * time.Millisecond)
	defer s.Stop()

	require.True(t, s.SetMode(Automatic))
	assert.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, s.Accept(rec.last()))
	assert.Equal(t, Automatic, s.Mode())
}

func TestSetModeIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(time.Hour)
	defer s.Stop()

	assert.False(t, s.SetMode(Idle), "initial mode is Idle")
	assert.True(t, s.SetMode(Automatic))
	gen := s.generation
	assert.False(t, s.SetMode(Automatic))
	assert.Equal(t, gen, s.generation, "re-entering a mode MUST NOT restart the ticker")
}

func TestManualStopsTickerBeforeNextTick(t *testing.T) {
	// GOAL: after SetMode(Manual) returns, no tick fires and no earlier tick is accepted
	s, rec := newTestScheduler(2 * time.Millisecond)
	defer s.Stop()

	s.SetMode(Automatic)
	assert.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, time.Millisecond)
	s.SetMode(Manual)

	stale := rec.last()
	n := rec.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, rec.count(), "ticker MUST be stopped")
	assert.False(t, s.Accept(stale))
}

func TestAutomaticThenManualImmediately(t *testing.T) {
	s, rec := newTestScheduler(10 * time.Millisecond)
	defer s.Stop()

	s.SetMode(Automatic)
	s.SetMode(Manual)
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestTickFromEarlierPeriodIsRejected(t *testing.T) {
	s, _ := newTestScheduler(time.Hour)
	defer s.Stop()

	s.SetMode(Automatic)
	old := Tick{Generation: s.generation}
	s.SetMode(Manual)
	s.SetMode(Automatic)

	assert.False(t, s.Accept(old))
	assert.True(t, s.Accept(Tick{Generation: s.generation}))
}

func TestToken(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok := Token()
		assert.Regexp(t, re, tok)
		seen[tok] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"auto": Automatic, "Automatic": Automatic, " manual ": Manual, "idle": Idle} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("turbo")
	assert.Error(t, err)
	assert.Equal(t, "auto", Automatic.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}
