package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/db"
	"github.com/24ep/studio-sub000/internal/intake"
	"github.com/24ep/studio-sub000/internal/jobs"
	"github.com/24ep/studio-sub000/internal/ledger"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/notify"
	"github.com/24ep/studio-sub000/internal/queue"
	"github.com/24ep/studio-sub000/internal/storage"
	"github.com/24ep/studio-sub000/internal/webhook"
	"github.com/24ep/studio-sub000/internal/worker"

	// registers the sqlite3 driver for local runs
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting import worker")

	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
	}

	publisher := notify.NewRedisPublisher(redisClient.Client(), cfg.Redis.EventsChannel)
	manager := jobs.NewManager(db.NewJobRepository(database), publisher, cfg.Intake)
	ldg := ledger.NewLedger(db.NewLedgerStore(database), db.NewStageStore(database), cfg.Intake)
	dispatcher := webhook.NewDispatcher(
		webhook.NewURLResolver(db.NewSettingsRepository(database), cfg.Webhook.URL),
		webhook.NewClient(cfg.Webhook),
		s3Storage,
		manager,
		cfg.Storage.S3.URLExpiry,
	)
	svc := intake.NewService(manager, ldg, s3Storage, queue.NewProducer(redisClient, cfg), dispatcher, cfg.Intake)

	importWorker := worker.NewImportWorker(cfg, svc, redisClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- importWorker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down import worker...")
		cancel()
		if err := <-done; err != nil {
			log.Error().Err(err).Msg("Import worker stopped with error")
		}
	case err := <-done:
		if err != nil {
			log.Fatal().Err(err).Msg("Import worker failed")
		}
	}

	log.Info().Msg("Import worker exited")
}
