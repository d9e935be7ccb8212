// Package worker runs queued import jobs outside the API process.
package worker

import (
	"context"
	"errors"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/model"
	"github.com/24ep/studio-sub000/internal/queue"

	"github.com/rs/zerolog"
)

// JobRunner carries one queued job to a terminal state.
type JobRunner interface {
	RunJob(ctx context.Context, jobID string) error
}

type ImportWorker struct {
	runner   JobRunner
	consumer *queue.Consumer
	pool     *Pool
	log      zerolog.Logger
}

func NewImportWorker(cfg *config.Config, runner JobRunner, redisClient *queue.RedisClient) *ImportWorker {
	return &ImportWorker{
		runner:   runner,
		consumer: queue.NewConsumer(redisClient, cfg),
		pool:     NewPool(cfg.Workers.Import.Count, cfg.Workers.Import.QueueSize),
		log:      logger.Component("import_worker"),
	}
}

// Run consumes the import queue until ctx is done, then waits for the jobs
// already handed to the pool.
func (w *ImportWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting import worker")

	w.pool.Start(context.WithoutCancel(ctx))
	err := w.consumer.ConsumeImportQueue(ctx, w.handleMessage)
	w.pool.Stop()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *ImportWorker) handleMessage(ctx context.Context, msg model.ImportMessage) error {
	w.log.Debug().Str("job_id", msg.JobID).Msg("Import message received")

	return w.pool.Submit(ctx, func(ctx context.Context) error {
		if err := w.runner.RunJob(ctx, msg.JobID); err != nil {
			if dlqErr := w.consumer.DeadLetterImport(ctx, msg); dlqErr != nil {
				w.log.Error().Err(dlqErr).Str("job_id", msg.JobID).Msg("Failed to move message to DLQ")
			}
			return err
		}
		return nil
	})
}
