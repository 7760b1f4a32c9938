// Package schedule drives periodic automatic transmissions.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/internal/groutine"
)

// DefaultInterval is the automatic send period
const DefaultInterval = time.Second

// TokenLength is the length of a random token
const TokenLength = 8

// Mode is the active transmission mode
type Mode int

const (
	Idle Mode = iota
	Automatic
	Manual
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Automatic:
		return "auto"
	case Manual:
		return "manual"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "auto", "automatic", "manual" and "idle"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "automatic":
		return Automatic, nil
	case "manual":
		return Manual, nil
	case "idle":
		return Idle, nil
	default:
		return Idle, fmt.Errorf("unknown mode %q (expected auto or manual)", s)
	}
}

// Tick is one firing of the automatic timer
type Tick struct {
	// Generation identifies the Automatic period that produced the tick
	Generation uint64
	At         time.Time
}

// Scheduler owns the mode flag and the automatic ticker
type Scheduler struct {
	interval time.Duration
	onTick   func(Tick)
	logger   *logrus.Logger

	mu         sync.Mutex
	mode       Mode
	generation uint64
	stop       context.CancelFunc
	done       chan struct{}
}

// New creates a scheduler in Idle mode. onTick runs on the ticker goroutine
// and should hand the tick off rather than block.
func New(interval time.Duration, onTick func(Tick), logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if onTick == nil {
		onTick = func(Tick) {}
	}
	return &Scheduler{
		interval: interval,
		onTick:   onTick,
		logger:   logger,
	}
}

// Mode returns the current mode
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches mode. Re-entering the current mode has no effect and returns false.
// When SetMode returns, ticks of a stopped Automatic period are no longer accepted.
func (s *Scheduler) SetMode(m Mode) bool {
	s.mu.Lock()
	if s.mode == m {
		s.mu.Unlock()
		return false
	}
	prev := s.mode
	s.mode = m
	s.generation++
	gen := s.generation
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil

	if m == Automatic {
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		s.done = make(chan struct{})
		s.startTicker(ctx, gen, s.done)
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	s.logger.WithFields(logrus.Fields{
		"from":       prev.String(),
		"mode":       m.String(),
		"generation": gen,
		"interval":   s.interval,
	}).Info("Transmission mode changed")
	return true
}

func (s *Scheduler) startTicker(ctx context.Context, gen uint64, done chan struct{}) {
	groutine.Go(ctx, "send-ticker", func(ctx context.Context) {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case at := <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				s.onTick(Tick{Generation: gen, At: at})
			}
		}
	})
}

// Accept reports whether t belongs to the current Automatic period
func (s *Scheduler) Accept(t Tick) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == Automatic && t.Generation == s.generation
}

// Stop halts the ticker and returns to Idle
func (s *Scheduler) Stop() {
	s.SetMode(Idle)
}

// Token returns the first 8 characters of a random UUID, e.g. "a1b2c3d4"
func Token() string {
	return uuid.NewString()[:TokenLength]
}
