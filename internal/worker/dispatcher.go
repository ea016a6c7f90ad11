package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/lending/internal/port"
)

// Dispatcher runs fire-and-forget tasks on a fixed pool of workers fed by a
// bounded queue. Enqueue never blocks; a full queue drops the task.
type Dispatcher struct {
	queue   chan port.Task
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ port.TaskQueue = (*Dispatcher)(nil)

func NewDispatcher(queueSize int, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   make(chan port.Task, queueSize),
		timeout: timeout,
		logger:  logger,
	}
}

// Start launches workers that run until Close drains the queue.
func (d *Dispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.logger.Info().Int("workers", workers).Msg("dispatcher started")
}

func (d *Dispatcher) Enqueue(task port.Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- task:
		return true
	default:
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info().Msg("dispatcher stopped")
}

func (d *Dispatcher) workerLoop(id int) {
	for task := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)

		if err := task.Run(ctx); err != nil {
			d.logger.Warn().Err(err).Int("worker", id).Str("task", task.Name).Msg("task failed")
		} else {
			d.logger.Debug().Int("worker", id).Str("task", task.Name).Msg("task done")
		}

		cancel()
	}
}
