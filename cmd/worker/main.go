package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/classtream/classtream/internal/config"
	"github.com/classtream/classtream/internal/logger"
	"github.com/classtream/classtream/internal/observability"
	"github.com/classtream/classtream/internal/queue"
	"github.com/classtream/classtream/internal/storage"
	"github.com/classtream/classtream/internal/transcoder"
	"github.com/classtream/classtream/internal/worker"
)

const (
	AWSConfigTimeout      = 10 * time.Second
	ShutdownTimeout       = 5 * time.Second
	TracerShutdownTimeout = 5 * time.Second
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		logger.Info(context.Background(), log, "No .env file found, relying on system ENV variables")
	}

	cfg, err := config.LoadWorker()
	if err != nil {
		logger.Error(context.Background(), log, "Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracing
	shutdownTracer, err := observability.InitTracer(context.Background(), "classtream-worker", cfg)
	if err != nil {
		logger.Error(context.Background(), log, "Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), TracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error(context.Background(), log, "Failed to shutdown tracer", "error", err)
		}
	}()

	// AWS config and clients
	awsCtx, awsCancel := context.WithTimeout(context.Background(), AWSConfigTimeout)
	defer awsCancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(awsCtx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error(context.Background(), log, "Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	store := storage.NewS3Store(s3.NewFromConfig(awsCfg), cfg.AWS.Bucket)

	videoRepo, err := storage.NewVideoRepository(context.Background(), cfg.Database.URL)
	if err != nil {
		logger.Error(context.Background(), log, "Failed to initialize video repository", "error", err)
		os.Exit(1)
	}
	defer videoRepo.Close()

	broker := queue.NewSQSBroker(sqs.NewFromConfig(awsCfg), cfg.AWS.SQSQueueURL, log)

	// Job processor
	scratch := worker.NewScratch(cfg.Worker.ScratchDir, cfg.Worker.ScratchMaxAge, log)
	processor := worker.New(&worker.Config{
		Store:      store,
		Metadata:   videoRepo,
		Transcoder: transcoder.NewTranscoder(log),
		Scratch:    scratch,
		Logger:     log,
	})

	consumer := queue.NewConsumer(&queue.ConsumerConfig{
		Broker:        broker,
		Handler:       processor,
		FailureSink:   videoRepo,
		Backoff:       queue.Backoff{Base: cfg.Queue.BackoffBase},
		MaxConcurrent: cfg.Worker.MaxConcurrentJobs,
		History:       queue.NewHistory(cfg.Queue.HistorySuccess, cfg.Queue.HistoryFailed),
		Logger:        log,
	})

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info(context.Background(), log, "Shutting down worker...")
		cancel()
	}()

	// Scheduled temp cleanup enqueues through the same queue as the API, so
	// sweeps run under the retry policy and show up in the job history.
	enqueuer := queue.New(broker, cfg.Queue.MaxAttempts, log)
	scheduler := worker.NewCleanupScheduler(enqueuer, cfg.Worker.CleanupInterval, log)
	go scheduler.Run(ctx)

	// Metrics server
	metricsServer := newMetricsServer(cfg.Worker.MetricsPort, consumer, log)
	go func() {
		logger.Info(context.Background(), log, "Starting metrics server", "port", cfg.Worker.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), log, "Metrics server error", "error", err)
		}
	}()

	// Start polling; blocks until shutdown
	consumer.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), log, "Failed to shutdown metrics server", "error", err)
	}
}

// newMetricsServer serves Prometheus metrics, liveness, and the bounded job
// history on the internal port.
func newMetricsServer(port int, consumer *queue.Consumer, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		if _, err := rw.Write([]byte(`{"status":"healthy"}`)); err != nil {
			logger.Error(r.Context(), log, "Failed to write health response", "error", err)
		}
	})
	mux.HandleFunc("/jobs", func(rw http.ResponseWriter, r *http.Request) {
		completed, failed := consumer.History().Snapshot()
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(map[string]any{
			"completed": completed,
			"failed":    failed,
		}); err != nil {
			logger.Error(r.Context(), log, "Failed to encode job history", "error", err)
		}
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
