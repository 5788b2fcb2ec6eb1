package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benvon/inbox-gateway/internal/config"
	"github.com/benvon/inbox-gateway/internal/database"
	"github.com/benvon/inbox-gateway/internal/handlers"
	"github.com/benvon/inbox-gateway/internal/logger"
	"github.com/benvon/inbox-gateway/internal/middleware"
	"github.com/benvon/inbox-gateway/internal/queue"
	"github.com/benvon/inbox-gateway/internal/services/ai"
	"github.com/benvon/inbox-gateway/internal/services/gmail"
	"github.com/benvon/inbox-gateway/internal/services/oidc"
	"github.com/benvon/inbox-gateway/internal/services/speech"
	"github.com/benvon/inbox-gateway/internal/services/transcription"
	"github.com/benvon/inbox-gateway/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug logging, including LLM prompt previews")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.DebugMode || *debugFlag

	// Initialize logger
	zapLogger, err := logger.NewProductionLogger("server", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		// Ignore sync errors on stderr
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("auth0_domain", cfg.Auth0Domain),
		zap.Bool("mail_enabled", cfg.MailEnabled()),
		zap.Bool("async_jobs_enabled", cfg.AsyncJobsEnabled()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Initialize OpenTelemetry if enabled
	tracingActive := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), logger.ServiceName, cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracingActive = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	// Connect to database and make sure the profile table exists
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
	migrateCancel()
	zapLogger.Info("connected_to_database", zap.String("driver", db.Driver()))

	healthChecker := handlers.NewHealthChecker()
	healthChecker.AddCheck("database", db.PingContext)

	// Redis backs the shared JWKS refetch budget and the job store
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("invalid_redis_url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		healthChecker.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		zapLogger.Info("connected_to_redis")
	}

	// Identity provider keys
	jwksOpts := []oidc.JWKSOption{
		oidc.WithCacheTTL(cfg.JWKSCacheTTL),
		oidc.WithRefreshInterval(cfg.JWKSRefreshInterval),
		oidc.WithLogger(zapLogger),
	}
	if redisClient != nil {
		jwksOpts = append(jwksOpts, oidc.WithRedisLimiter(redisClient))
	}
	jwksManager, err := oidc.NewJWKSManager(cfg.JWKSURL(), jwksOpts...)
	if err != nil {
		zapLogger.Fatal("failed_to_create_jwks_manager", zap.Error(err))
	}
	prefetchCtx, prefetchCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := jwksManager.Prefetch(prefetchCtx); err != nil {
		// Tokens are rejected until a later refetch succeeds
		zapLogger.Warn("jwks_prefetch_failed", zap.String("url", cfg.JWKSURL()), zap.Error(err))
	} else {
		zapLogger.Info("jwks_prefetched", zap.Strings("kids", jwksManager.KeyIDs()))
	}
	prefetchCancel()
	verifier := oidc.NewVerifier(jwksManager, cfg.Issuer(), cfg.APIIdentifier, cfg.TokenClockSkew)

	// Hosted models
	var translator *ai.Translator
	speechOpts := []speech.GatewayOption{
		speech.WithEngineTimeout(cfg.UpstreamTimeout),
	}
	if cfg.OpenAIKey != "" {
		openaiClient := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.UpstreamTimeout)
		translator = ai.NewTranslator(openaiClient, cfg.TranslationModel, zapLogger, debugMode)
		speechOpts = append(speechOpts, speech.WithEngine(speech.NewWhisperEngine(openaiClient)))
		zapLogger.Info("openai_configured",
			zap.String("api_key", ai.SanitizeAPIKey(cfg.OpenAIKey)),
			zap.String("model", cfg.TranslationModel),
		)
	} else {
		zapLogger.Warn("openai_not_configured_translation_and_whisper_disabled")
	}
	if cfg.GoogleSpeechAPIKey != "" {
		speechOpts = append(speechOpts, speech.WithEngine(speech.NewGoogleEngine(cfg.GoogleSpeechAPIKey)))
	}
	speechOpts = append(speechOpts, speech.WithEngine(speech.NewSphinxEngine(cfg.SphinxPath)))

	decoder := speech.NewFFmpegDecoder(cfg.FFmpegPath, cfg.UpstreamTimeout)
	if !decoder.Available() {
		zapLogger.Warn("ffmpeg_not_found_audio_normalization_will_fail", zap.String("path", cfg.FFmpegPath))
	}
	speechGateway := speech.NewGateway(decoder, zapLogger, speechOpts...)

	// Asynchronous transcription needs both the queue and the job store
	var jobService handlers.JobService
	if cfg.AsyncJobsEnabled() {
		jobQueue := connectQueue(cfg.RabbitMQURL, zapLogger)
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		healthChecker.AddCheck("rabbitmq", jobQueue.HealthCheck)

		jobStore := transcription.NewRedisStore(redisClient, transcription.DefaultJobTTL)
		jobService = transcription.NewService(jobStore, jobQueue, jobStore.TTL(), zapLogger)
	} else {
		zapLogger.Info("async_transcription_disabled")
	}

	// Initialize handlers
	profileStore := database.NewProfileStore(db)
	apiHandler := handlers.NewAPIHandler(profileStore, zapLogger)
	transcribeHandler := handlers.NewTranscribeHandler(speechGateway, jobService, cfg.MaxUploadBytes, zapLogger)
	openAPIHandler := handlers.NewOpenAPIHandler()

	var mailAuthHandler *handlers.MailAuthHandler
	var mailHandler *handlers.MailHandler
	if cfg.MailEnabled() {
		oauthConfig := gmail.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
		credentials := gmail.NewCredentialStore(oauthConfig, cfg.GmailTokenFile, &http.Client{Timeout: cfg.UpstreamTimeout}, zapLogger)
		mailAuthHandler = handlers.NewMailAuthHandler(credentials, cfg.FrontendURL, zapLogger)
		mailHandler = handlers.NewMailHandler(gmail.NewGateway(credentials, zapLogger, gmail.WithTimeout(cfg.UpstreamTimeout)), zapLogger)
	} else {
		zapLogger.Warn("google_oauth_not_configured_mail_disabled")
	}

	var translateHandler *handlers.TranslateHandler
	if translator != nil {
		translateHandler = handlers.NewTranslateHandler(translator, cfg.MaxUploadBytes, zapLogger)
	}

	// Setup router
	r := mux.NewRouter()

	// Middleware registered first wraps the others
	zapLogger.Info("setting_up_middleware")

	// 0. OpenTelemetry tracing (if enabled)
	if tracingActive {
		r.Use(otelmux.Middleware(logger.ServiceName))
		zapLogger.Info("otel_middleware_enabled")
	}
	// 1. Request ID, so every later log line can carry it
	r.Use(middleware.RequestID)
	// 2. Error handler (catches panics)
	r.Use(middleware.Recovery(zapLogger))
	// 3. Logging
	r.Use(middleware.Logging(zapLogger))
	// 4. Audit logging (rejected credentials and upstream failures)
	r.Use(middleware.Audit(zapLogger))
	// 5. Security headers (should be set on all responses)
	r.Use(middleware.SecurityHeaders(strings.HasPrefix(cfg.BaseURL, "https://")))
	// 6. CORS
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins, zapLogger))
	// 7. Request timeout
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	// 8. Request size limits, sized for audio uploads
	r.Use(middleware.MaxRequestSize(cfg.MaxUploadBytes))

	// Public routes
	healthChecker.RegisterRoutes(r)
	openAPIHandler.RegisterRoutes(r)
	apiHandler.RegisterPublicRoutes(r)
	transcribeHandler.RegisterRoutes(r)
	if translateHandler != nil {
		translateHandler.RegisterPublicRoutes(r)
	}

	// Mailbox routes are guarded by the stored Google credential, not a bearer token
	if mailAuthHandler != nil {
		mailAuthHandler.RegisterRoutes(r)
		mailRouter := r.NewRoute().Subrouter()
		mailRouter.Use(middleware.ContentType("application/json"))
		mailHandler.RegisterRoutes(mailRouter)
	}

	// Bearer-protected routes
	protected := r.NewRoute().Subrouter()
	protected.Use(middleware.Auth(verifier, zapLogger))
	apiHandler.RegisterRoutes(protected)
	if translateHandler != nil {
		translateHandler.RegisterRoutes(protected)
	}

	// Catch-all OPTIONS handler for preflight requests the CORS middleware passes through
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Setup server
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectQueue dials RabbitMQ with exponential backoff to ride out broker
// startup delays
func connectQueue(url string, zapLogger *zap.Logger) *queue.RabbitMQQueue {
	const maxRetries = 10
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := queue.NewRabbitMQQueue(url, zapLogger)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return q
		}

		lastErr = err
		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}

	zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries",
		zap.Int("max_retries", maxRetries),
		zap.Error(lastErr),
	)
	return nil
}
