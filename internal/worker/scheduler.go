package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one scheduled run. Errors are logged and the next tick retries.
type Job func(ctx context.Context) error

// Scheduler runs a job on a fixed interval, independent of request traffic.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	logger   zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewScheduler(name string, interval time.Duration, job Job, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs the job once immediately, then on every tick until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.run(ctx)
		for {
			select {
			case <-ticker.C:
				s.run(ctx)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info().Str("job", s.name).Dur("interval", s.interval).Msg("scheduler started")
}

func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.job(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", s.name).Msg("scheduled run failed")
	}
}
