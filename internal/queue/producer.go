package queue

import (
	"context"
	"encoding/json"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/model"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/go-redis/redis/v8"
)

type Producer struct {
	client *redis.Client
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

// EnqueueImport hands a stored job to the import workers.
func (p *Producer) EnqueueImport(ctx context.Context, msg model.ImportMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := p.client.LPush(ctx, p.cfg.Redis.ImportQueue, data).Err(); err != nil {
		return apperrors.NewDependencyError("import queue", err)
	}
	return nil
}

// Depth reports pending and dead-lettered import messages.
func (p *Producer) Depth(ctx context.Context) (pending, dead int64, err error) {
	queueName := p.cfg.Redis.ImportQueue
	pipe := p.client.Pipeline()
	pendingCmd := pipe.LLen(ctx, queueName)
	deadCmd := pipe.LLen(ctx, queueName+p.cfg.Redis.DLQSuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return pendingCmd.Val(), deadCmd.Val(), nil
}
