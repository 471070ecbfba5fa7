package analysis

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cycler runs one sync cycle.
type Cycler interface {
	RunSyncCycle(ctx context.Context) (*CycleResult, error)
}

// Scheduler triggers sync cycles on a ticker. Every worker may run one; the
// fleet-wide lock keeps cycles single-flight.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	jitter   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler returns a scheduler firing roughly every interval, offset by up
// to ±5% so workers started together do not race for the lock.
func NewScheduler(cycler Cycler, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{cycler: cycler, interval: interval, jitter: interval / 20}
}

func (s *Scheduler) nextInterval() time.Duration {
	if s.jitter <= 0 {
		return s.interval
	}
	//nolint:gosec // jitter does not need a cryptographic source
	offset := time.Duration(rand.Int64N(int64(2*s.jitter))) - s.jitter
	return s.interval + offset
}

// Start runs until ctx is cancelled or Stop is called. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	defer func() {
		close(done)
		log.Info().Msg("Analysis scheduler stopped")
	}()

	interval := s.nextInterval()
	log.Info().Dur("interval", interval).Msg("Analysis scheduler started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
			ticker.Reset(s.nextInterval())
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop cancels Start and waits for the running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.cycler.RunSyncCycle(ctx)
	switch {
	case errors.Is(err, ErrLockContention):
		// logged by the coordinator
	case err != nil:
		log.Error().Err(err).Msg("Analysis sync cycle failed")
	}
}
