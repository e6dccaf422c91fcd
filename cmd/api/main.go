package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robotto-health/triage-backend/internal/adapters/cache"
	registryadapter "github.com/robotto-health/triage-backend/internal/adapters/registry"
	"github.com/robotto-health/triage-backend/internal/api/handlers"
	"github.com/robotto-health/triage-backend/internal/api/routes"
	"github.com/robotto-health/triage-backend/internal/application/services"
	"github.com/robotto-health/triage-backend/internal/domain/providers"
	"github.com/robotto-health/triage-backend/internal/infrastructure/clients/openai"
	"github.com/robotto-health/triage-backend/internal/infrastructure/clients/redis"
	"github.com/robotto-health/triage-backend/internal/infrastructure/observability"
	"github.com/robotto-health/triage-backend/pkg/config"
	"github.com/robotto-health/triage-backend/pkg/retry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	var shutdown func(context.Context) error
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err = observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Printf("Warning: Failed to set up OpenTelemetry: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Printf("Error shutting down OpenTelemetry: %v", err)
				}
			}()
			log.Println("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Initialize Redis client
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to initialize Redis client: %v", err)
		// Continue without Redis - extraction works without the memo cache
	} else {
		defer redisClient.Close()
		log.Println("Redis client initialized successfully")
	}

	var cacheProvider providers.CacheProvider
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
	}

	// Initialize the remote extractor
	var extractor providers.Extractor
	if cfg.OpenAI.APIKey == "" {
		log.Println("Warning: OPENAI_API_KEY is not set; running on local fallback extraction only")
	} else {
		openaiClient, err := openai.NewClient(&cfg.OpenAI)
		if err != nil {
			log.Printf("Warning: Failed to initialize OpenAI client: %v", err)
		} else {
			extractor = openaiClient
		}
	}

	// Registry sources
	var snapshotSource, featuresSource, redflagsSource providers.RegistrySource
	if cfg.Registry.SnapshotURL != "" {
		snapshotSource = registryadapter.NewHTTPSource("snapshot", cfg.Registry.SnapshotURL)
	}
	if cfg.Registry.FeaturesURL != "" {
		featuresSource = registryadapter.NewHTTPSource("features", cfg.Registry.FeaturesURL)
	}
	if cfg.Registry.RedflagsURL != "" {
		redflagsSource = registryadapter.NewHTTPSource("redflags", cfg.Registry.RedflagsURL)
	}
	if snapshotSource == nil && featuresSource == nil {
		log.Println("Warning: no registry URLs configured; vocabulary will stay empty")
	}

	registryLoader := registryadapter.NewLoader(
		snapshotSource,
		featuresSource,
		redflagsSource,
		time.Duration(cfg.Registry.CacheTTLSeconds)*time.Second,
		cfg.Registry.KeepLastKnownGood,
	)

	// Warm the registry in the background so the first request does not pay
	// for the initial fetch. Request-path refreshes never retry.
	go func() {
		err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			if reg := registryLoader.Get(ctx, true); !reg.Loaded() {
				return fmt.Errorf("registry still empty")
			}
			return nil
		})
		if err != nil {
			log.Printf("Warning: registry warm-up did not complete: %v", err)
		} else {
			log.Println("Registry warm-up complete")
		}
	}()

	// Initialize services
	extractionService := services.NewExtractionService(
		registryLoader,
		extractor,
		cacheProvider,
		metrics,
	)

	// Initialize handlers
	triageHandler := handlers.NewTriageHandler(extractionService)
	debugHandler := handlers.NewDebugHandler(registryLoader)
	healthHandler := handlers.NewHealthHandler(registryLoader)

	// Set up router
	router := routes.NewRouter(
		triageHandler,
		debugHandler,
		healthHandler,
		cfg.AllowedOrigins,
		metrics,
	)

	handler := router.SetupRoutes()

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	log.Println("Server stopped")
}
