package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/classtream/classtream/internal/api"
	"github.com/classtream/classtream/internal/auth"
	"github.com/classtream/classtream/internal/config"
	"github.com/classtream/classtream/internal/health"
	"github.com/classtream/classtream/internal/logger"
	"github.com/classtream/classtream/internal/observability"
	"github.com/classtream/classtream/internal/queue"
	"github.com/classtream/classtream/internal/storage"
	"github.com/classtream/classtream/internal/upload"
)

const (
	ShutdownTimeout       = 30 * time.Second
	TracerShutdownTimeout = 5 * time.Second
	AWSConfigTimeout      = 10 * time.Second
)

func main() {
	// Initialize logger
	log := logger.New()
	slog.SetDefault(log)

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracer
	shutdownTracer, err := observability.InitTracer(context.Background(), "classtream-api", cfg)
	if err != nil {
		log.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), TracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	// Initialize AWS clients
	ctx, cancel := context.WithTimeout(context.Background(), AWSConfigTimeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	s3Client := s3.NewFromConfig(awsCfg)
	store := storage.NewS3Store(s3Client, cfg.AWS.Bucket)

	// Initialize video repository
	videoRepo, err := storage.NewVideoRepository(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Error("Failed to initialize video repository", "error", err)
		os.Exit(1)
	}
	defer videoRepo.Close()
	log.Info("Postgres video repository initialized")

	// Select the queue. An unset SQS_QUEUE_URL starts the API in degraded
	// mode: uploads succeed but processing jobs are dropped.
	var sqsClient *sqs.Client
	var enqueuer queue.Enqueuer
	if cfg.QueueEnabled() {
		sqsClient = sqs.NewFromConfig(awsCfg)
		broker := queue.NewSQSBroker(sqsClient, cfg.AWS.SQSQueueURL, log)
		enqueuer = queue.New(broker, cfg.Queue.MaxAttempts, log)
	} else {
		log.Warn("SQS_QUEUE_URL not set, starting with degraded no-op queue")
		enqueuer = queue.NewNoop(log)
	}

	// Upload coordinator
	coordinator := upload.NewCoordinator(store, videoRepo, enqueuer, log)

	// Initialize JWT service
	jwtSecret, err := cfg.GetJWTSecret()
	if err != nil {
		log.Error("Failed to get JWT secret", "error", err)
		os.Exit(1)
	}
	jwtService, err := auth.NewJWTService(jwtSecret)
	if err != nil {
		log.Error("Failed to create JWT service", "error", err)
		os.Exit(1)
	}

	// Initialize rate limiter
	rateLimiter := auth.NewRateLimiter(auth.DefaultRateLimiterConfig())

	// Initialize health checker
	healthConfig := health.DefaultConfig("classtream-api", log)
	healthConfig.S3Client = s3Client
	if sqsClient != nil {
		healthConfig.SQSClient = sqsClient
	}
	healthConfig.Database = videoRepo
	healthConfig.S3Bucket = cfg.AWS.Bucket
	healthConfig.SQSQueueURL = cfg.AWS.SQSQueueURL
	healthConfig.QueueDegraded = !cfg.QueueEnabled()
	healthChecker := health.NewChecker(healthConfig)

	// Create and start server
	server, err := api.NewServer(&api.ServerConfig{
		Config:        cfg,
		Logger:        log,
		Store:         store,
		Videos:        videoRepo,
		Coordinator:   coordinator,
		JWTService:    jwtService,
		RateLimiter:   rateLimiter,
		HealthChecker: healthChecker,
	})
	if err != nil {
		log.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
}
