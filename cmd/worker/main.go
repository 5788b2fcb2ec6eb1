package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/inbox-gateway/internal/config"
	"github.com/benvon/inbox-gateway/internal/logger"
	"github.com/benvon/inbox-gateway/internal/queue"
	"github.com/benvon/inbox-gateway/internal/services/ai"
	"github.com/benvon/inbox-gateway/internal/services/speech"
	"github.com/benvon/inbox-gateway/internal/services/transcription"
	"github.com/benvon/inbox-gateway/internal/workers"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dlqInterval  = time.Hour
	dlqRetention = 24 * time.Hour
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.DebugMode || *debugFlag

	// Initialize logger
	zapLogger, err := logger.NewProductionLogger("worker", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		// Ignore sync errors on stderr
		_ = logger.Sync(zapLogger)
	}()

	if !cfg.AsyncJobsEnabled() {
		zapLogger.Fatal("worker_requires_rabbitmq_and_redis")
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	// Job store
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("invalid_redis_url", zap.Error(err))
	}
	redisClient := redis.NewClient(opts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	store := transcription.NewRedisStore(redisClient, transcription.DefaultJobTTL)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		pingCancel()
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	pingCancel()
	zapLogger.Info("connected_to_redis")

	// Initialize RabbitMQ queue
	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	// Same engine chain as the synchronous endpoint
	speechOpts := []speech.GatewayOption{speech.WithEngineTimeout(cfg.UpstreamTimeout)}
	if cfg.OpenAIKey != "" {
		client := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.UpstreamTimeout)
		speechOpts = append(speechOpts, speech.WithEngine(speech.NewWhisperEngine(client)))
	}
	if cfg.GoogleSpeechAPIKey != "" {
		speechOpts = append(speechOpts, speech.WithEngine(speech.NewGoogleEngine(cfg.GoogleSpeechAPIKey)))
	}
	speechOpts = append(speechOpts, speech.WithEngine(speech.NewSphinxEngine(cfg.SphinxPath)))
	speechGateway := speech.NewGateway(speech.NewFFmpegDecoder(cfg.FFmpegPath, cfg.UpstreamTimeout), zapLogger, speechOpts...)

	worker := workers.NewTranscriptionWorker(speechGateway, store, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Dead-lettered transcriptions are dropped once the job record has expired
	dlqGC := queue.NewGarbageCollector(jobQueue, dlqInterval, dlqRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()
	zapLogger.Info("started_dlq_garbage_collector",
		zap.Duration("interval", dlqInterval),
		zap.Duration("retention", dlqRetention),
	)

	// Start consuming messages
	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming_messages", zap.Error(err))
	}

	zapLogger.Info("worker_started_consuming_messages")

	// Process messages
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("message_channel_closed")
					return
				}

				if err := worker.ProcessJob(ctx, msg); err != nil {
					zapLogger.Error("failed_to_process_job",
						zap.Error(err),
						zap.String("job_id", msg.GetJob().ID.String()),
						zap.String("job_type", string(msg.GetJob().Type)),
					)
				}
			}
		}
	}()

	// Handle errors
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	zapLogger.Info("shutdown_signal_received_stopping_worker")

	// Cancel context to stop processing
	cancel()

	zapLogger.Info("worker_stopped")
}
