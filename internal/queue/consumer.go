package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type Consumer struct {
	client *redis.Client
	cfg    *config.Config
	log    zerolog.Logger
}

type MessageHandler func(ctx context.Context, data []byte) error

// ImportHandler processes one decoded import message.
type ImportHandler func(ctx context.Context, msg model.ImportMessage) error

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	return &Consumer{
		client: redisClient.Client(),
		cfg:    cfg,
		log:    logger.Component("queue"),
	}
}

func (c *Consumer) ConsumeImportQueue(ctx context.Context, handler ImportHandler) error {
	return c.consume(ctx, c.cfg.Redis.ImportQueue, func(ctx context.Context, data []byte) error {
		var msg model.ImportMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		if msg.JobID == "" {
			return errors.New("import message without job id")
		}
		return handler(ctx, msg)
	})
}

// consume pops messages until ctx is done. A message whose handler fails is
// pushed to the queue's dead-letter list.
func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	timeout := c.cfg.Workers.Import.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.BRPop(ctx, timeout, queueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return err
			}
			c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to consume message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if len(result) < 2 {
			continue
		}

		message := result[1]
		if err := handler(ctx, []byte(message)); err != nil {
			if ctx.Err() != nil {
				// popped during shutdown; put it back at the consuming end
				if pushErr := c.client.RPush(context.WithoutCancel(ctx), queueName, message).Err(); pushErr != nil {
					c.log.Error().Err(pushErr).Str("queue", queueName).Msg("Failed to return message to queue")
				}
				return ctx.Err()
			}
			c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to process message")
			c.deadLetter(ctx, queueName, message)
		}
	}
}

// DeadLetterImport parks an import message whose job could not be run.
func (c *Consumer) DeadLetterImport(ctx context.Context, msg model.ImportMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.client.LPush(context.WithoutCancel(ctx), c.cfg.Redis.ImportQueue+c.cfg.Redis.DLQSuffix, data).Err()
}

func (c *Consumer) deadLetter(ctx context.Context, queueName, message string) {
	dlqName := queueName + c.cfg.Redis.DLQSuffix
	if err := c.client.LPush(context.WithoutCancel(ctx), dlqName, message).Err(); err != nil {
		c.log.Error().Err(err).Str("dlq", dlqName).Msg("Failed to move message to DLQ")
	}
}
