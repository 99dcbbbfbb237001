package pipeline

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"listingpilot/internal/infra"
)

// ErrQueueFull is returned when the dispatch queue cannot accept another job.
var ErrQueueFull = errors.New("pipeline queue full")

// Dispatcher fans jobs out to a fixed worker pool. Enqueue never blocks: the
// API layer hands a job over and returns to the client immediately.
type Dispatcher struct {
	orc     *Orchestrator
	queue   chan string
	workers int
	logger  infra.Logger
}

// NewDispatcher sizes the pool and its buffered queue.
func NewDispatcher(orc *Orchestrator, workers, queueSize int, logger infra.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		orc:     orc,
		queue:   make(chan string, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Enqueue hands a job to the pool without blocking.
func (d *Dispatcher) Enqueue(jobID string) error {
	select {
	case d.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the worker pool until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case jobID := <-d.queue:
					if err := d.orc.Run(ctx, jobID); err != nil {
						d.logger.Error().Err(err).Str("job_id", jobID).Msg("dispatcher: pipeline run failed")
					}
				}
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
