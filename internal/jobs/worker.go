package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/metrics"
)

const dequeueTimeout = 5 * time.Second

// Pool drains the job queue with a fixed set of workers. Each worker blocks
// on the queue and executes jobs one at a time; slow scans on one worker do
// not stall the others.
type Pool struct {
	queue   *Queue
	service *Service
	workers int
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewPool builds a worker pool.
func NewPool(queue *Queue, service *Service, workers int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:   queue,
		service: service,
		workers: workers,
		logger:  logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the workers. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info().Int("workers", p.workers).Msg("starting workers")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()

	for {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("worker stopping")
				return
			}
			logger.Error().Err(err).Msg("dequeue failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		if job == nil {
			continue
		}

		p.execute(ctx, logger, job)
	}
}

func (p *Pool) execute(ctx context.Context, logger zerolog.Logger, job *Job) {
	logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int64("room_id", job.RoomID).
		Msg("executing job")
	start := time.Now()

	var err error
	switch job.Kind {
	case KindRoomScan:
		err = p.service.RoomScan(ctx, job.RoomID, job.TriggerStatus)
	case KindGlobalScan:
		err = p.service.GlobalScan(ctx)
	default:
		logger.Warn().Str("kind", string(job.Kind)).Msg("unknown job kind")
		metrics.JobsProcessed.WithLabelValues(string(job.Kind), "error").Inc()
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.Error().Err(err).
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Msg("job failed")
	}
	metrics.JobsProcessed.WithLabelValues(string(job.Kind), outcome).Inc()

	logger.Info().
		Str("job_id", job.ID).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("job finished")
}
