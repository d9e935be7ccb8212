package worker

import (
	"context"
	"sync"

	"github.com/24ep/studio-sub000/internal/logger"

	"github.com/rs/zerolog"
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines. Submit blocks
// while the buffer is full, so a slow pool slows the queue consumer down
// instead of dropping work.
type Pool struct {
	workerCount int
	tasks       chan Task
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewPool(workerCount, queueSize int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workerCount: workerCount,
		tasks:       make(chan Task, queueSize),
		log:         logger.Component("worker_pool"),
	}
}

// Start launches the workers. Tasks receive ctx; Stop, not ctx, ends the
// workers so that buffered tasks still run.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("worker_count", p.workerCount).Msg("Starting worker pool")

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for every submitted task. Submit must not be called afterwards.
func (p *Pool) Stop() {
	p.log.Info().Msg("Stopping worker pool")
	close(p.tasks)
	p.wg.Wait()
	p.log.Info().Msg("Worker pool stopped")
}

func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for task := range p.tasks {
		if err := task(ctx); err != nil {
			log.Error().Err(err).Msg("Task failed")
		}
	}
	log.Debug().Msg("Worker stopping due to closed task channel")
}
