package gc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/dittobin/internal/logger"
)

// Scheduler runs collection cycles periodically in the background.
// Cycles never overlap.
type Scheduler struct {
	collector *Collector
	interval  time.Duration

	trigger   chan struct{}
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool // tracks whether Start() was called
	stopped   bool

	mu       sync.Mutex
	runs     int
	failures int
	lastErr  error
}

// NewScheduler creates a scheduler running a cycle every interval. A
// non-positive interval disables the timer; cycles then only run on Trigger.
func NewScheduler(c *Collector, interval time.Duration) *Scheduler {
	return &Scheduler{
		collector: c,
		interval:  interval,
		trigger:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins the background loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	logger.Info("Starting GC scheduler", "interval", s.interval.String())

	s.wg.Add(1)
	go s.loop(ctx)

	go func() {
		s.wg.Wait()
		close(s.stoppedCh)
	}()
}

// Stop stops the loop, waiting up to timeout for a running cycle to finish.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	logger.Info("Stopping GC scheduler")
	close(s.stopCh)

	select {
	case <-s.stoppedCh:
		logger.Info("GC scheduler stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("GC scheduler stop timed out")
	}
}

// Trigger requests an immediate cycle. It never blocks; a request made
// while one is already pending is merged with it.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// LastReport returns the report of the last completed cycle.
func (s *Scheduler) LastReport() *Report {
	return s.collector.LastReport()
}

// Stats returns the number of cycles run and failed, and the last error.
func (s *Scheduler) Stats() (runs, failures int, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.failures, s.lastErr
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-tick:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	_, err := s.collector.RunCycle(ctx)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	if err != nil {
		s.failures++
	}
	s.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidPhase):
		logger.Warn("GC: cycle skipped, a run is already in progress", logger.Err(err))
	case errors.Is(err, context.Canceled):
		logger.Debug("GC: cycle canceled")
	default:
		logger.Error("GC: cycle failed", logger.Err(err))
	}
}
