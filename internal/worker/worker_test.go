package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/model"
	"github.com/24ep/studio-sub000/internal/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEveryTaskBeforeStop(t *testing.T) {
	p := NewPool(3, 2)
	p.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		}))
	}
	p.Stop()

	assert.Equal(t, int32(20), ran.Load())
}

func TestPoolSubmitBlocksUntilContextDone(t *testing.T) {
	p := NewPool(1, 0)
	p.Start(context.Background())
	defer p.Stop()

	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

type recordingRunner struct {
	mu   sync.Mutex
	ran  []string
	fail map[string]bool
	done chan struct{}
}

func (r *recordingRunner) RunJob(ctx context.Context, jobID string) error {
	r.mu.Lock()
	r.ran = append(r.ran, jobID)
	r.mu.Unlock()
	defer func() { r.done <- struct{}{} }()
	if r.fail[jobID] {
		return errors.New("database unavailable")
	}
	return nil
}

func TestImportWorkerRunsQueuedJobs(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.ImportQueue = "intake:imports"
	cfg.Redis.DLQSuffix = ":dlq"
	cfg.Workers.Import.Count = 2
	cfg.Workers.Import.QueueSize = 2
	cfg.Workers.Import.PollTimeout = 50 * time.Millisecond

	client, err := queue.NewRedisClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	producer := queue.NewProducer(client, cfg)
	runner := &recordingRunner{fail: map[string]bool{"job-2": true}, done: make(chan struct{}, 3)}
	w := NewImportWorker(cfg, runner, client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		require.NoError(t, producer.EnqueueImport(ctx, model.ImportMessage{JobID: id}))
	}

	result := make(chan error, 1)
	go func() { result <- w.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-runner.done:
		case <-ctx.Done():
			t.Fatal("jobs were not run")
		}
	}
	cancel()
	require.NoError(t, <-result)

	runner.mu.Lock()
	assert.ElementsMatch(t, []string{"job-1", "job-2", "job-3"}, runner.ran)
	runner.mu.Unlock()

	pending, dead, err := producer.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.Equal(t, int64(1), dead)
}
