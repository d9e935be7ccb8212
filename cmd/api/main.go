package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/24ep/studio-sub000/internal/api"
	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/db"
	"github.com/24ep/studio-sub000/internal/intake"
	"github.com/24ep/studio-sub000/internal/jobs"
	"github.com/24ep/studio-sub000/internal/ledger"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/notify"
	"github.com/24ep/studio-sub000/internal/queue"
	"github.com/24ep/studio-sub000/internal/stages"
	"github.com/24ep/studio-sub000/internal/storage"
	"github.com/24ep/studio-sub000/internal/webhook"

	"github.com/gin-gonic/gin"

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

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// every process publishes to Redis; the relay feeds this process's sockets
	hub := notify.NewHub(cfg.Server.AllowedOrigins)
	go hub.Run(ctx)
	relay := notify.NewRelay(redisClient.Client(), cfg.Redis.EventsChannel, hub)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Queue event relay stopped")
		}
	}()
	publisher := notify.NewRedisPublisher(redisClient.Client(), cfg.Redis.EventsChannel)

	producer := queue.NewProducer(redisClient, cfg)
	manager := jobs.NewManager(db.NewJobRepository(database), publisher, cfg.Intake)
	stageStore := db.NewStageStore(database)
	ldg := ledger.NewLedger(db.NewLedgerStore(database), stageStore, cfg.Intake)
	engine := stages.NewEngine(stageStore, cfg.Intake.DefaultPipeline)

	dispatcher := webhook.NewDispatcher(
		webhook.NewURLResolver(db.NewSettingsRepository(database), cfg.Webhook.URL),
		webhook.NewClient(cfg.Webhook),
		s3Storage,
		manager,
		cfg.Storage.S3.URLExpiry,
	)
	svc := intake.NewService(manager, ldg, s3Storage, producer, dispatcher, cfg.Intake)

	handler := api.NewHandler(manager, svc, ldg, engine, database, producer, hub, cfg)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Intake.MaxUploadSize
	router.Use(api.RecoveryMiddleware())
	router.Use(api.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(api.LoggingMiddleware())

	api.SetupRoutes(router, handler, hub)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	cancel()

	log.Info().Msg("Server exited")
}
