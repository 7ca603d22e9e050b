package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/cardguard/internal/auth"
	"github.com/BradenHooton/cardguard/internal/background"
	"github.com/BradenHooton/cardguard/internal/config"
	"github.com/BradenHooton/cardguard/internal/database"
	"github.com/BradenHooton/cardguard/internal/fraud"
	"github.com/BradenHooton/cardguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/cardguard/internal/middleware"
	"github.com/BradenHooton/cardguard/internal/repositories"
	"github.com/BradenHooton/cardguard/internal/routes"
	"github.com/BradenHooton/cardguard/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Run migrations before opening the pool
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := database.Migrate(migrateCtx, cfg.Database.DSN()); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	cardRepo := repositories.NewGiftCardRepository(db)
	fraudLogRepo := repositories.NewFraudLogRepository(db)
	redemptionRepo := repositories.NewRedemptionRepository(db)

	// Outbound alerting: webhook always (when configured), email for high
	// severity alerts.
	var emailer services.AlertEmailer
	if cfg.Alert.EmailTo != "" {
		sesEmailer, err := services.NewAWSSESAlertEmailer(cfg.Alert.AWSRegion, cfg.Alert.EmailFrom, cfg.Alert.EmailTo, logger)
		if err != nil {
			logger.Error("failed to initialize alert emailer", slog.Any("error", err))
			os.Exit(1)
		}
		emailer = sesEmailer
	}

	dispatcherConfig := services.DefaultAlertDispatcherConfig()
	dispatcherConfig.WebhookURL = cfg.Alert.WebhookURL
	dispatcherConfig.SigningSecret = cfg.Alert.SigningSecret
	dispatcherConfig.MaxAttempts = cfg.Alert.MaxAttempts
	dispatcherConfig.BackoffBase = cfg.Alert.BackoffBase
	dispatcherConfig.Timeout = cfg.Alert.Timeout
	dispatcher := services.NewAlertDispatcher(dispatcherConfig, emailer, logger)

	// Fraud signal aggregator feeding the dispatcher
	aggregator := fraud.NewAggregator(fraud.AggregatorConfig{
		Window:         cfg.Fraud.SuspicionWindow,
		AlertAfter:     cfg.Fraud.SuspicionAlertAfter,
		HighSeverityAt: cfg.Fraud.SuspicionHighSeverityAt,
	}, dispatcher, logger)

	// Fraud check service
	fraudService := services.NewFraudService(services.FraudServiceConfig{
		IPPolicy: fraud.Policy{
			Name:        "redemption_ip",
			Window:      cfg.Fraud.IPWindow,
			MaxAttempts: cfg.Fraud.IPMaxAttempts,
		},
		MerchantPolicy: fraud.Policy{
			Name:        "redemption_merchant",
			Window:      cfg.Fraud.MerchantWindow,
			MaxAttempts: cfg.Fraud.MerchantMaxAttempts,
		},
		DeviceFailureWindow:    cfg.Fraud.DeviceFailureWindow,
		DeviceFailureThreshold: cfg.Fraud.DeviceFailureThreshold,
		PatternWindow:          cfg.Fraud.PatternWindow,
		MaxUniqueIPsPerGAN:     cfg.Fraud.MaxUniqueIPsPerGAN,
	}, cardRepo, fraudLogRepo, aggregator, logger)

	// Redemption guard middleware chain
	guard := middlewareCustom.NewRedemptionGuard(fraud.Policy{
		Name:        "redemption_ip_device",
		Window:      cfg.Fraud.IPDeviceWindow,
		MaxAttempts: cfg.Fraud.IPDeviceMaxAttempts,
	}, fraudService, cardRepo, redemptionRepo, logger)

	// Token manager for dashboard access
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, 15*time.Minute)

	// Initialize handlers
	redemptionHandler := handlers.NewRedemptionHandler(fraudService, cardRepo, redemptionRepo, dispatcher, logger)
	fraudLogHandler := handlers.NewFraudLogHandler(fraudService)
	cardHandler := handlers.NewCardHandler(cardRepo, redemptionRepo)

	// Background sweeper for in-memory windows and fraud log retention
	sweeper := background.NewSweeper(
		[]background.MemorySweeper{fraudService, guard},
		fraudLogRepo,
		logger,
		cfg.Fraud.SweepInterval,
		cfg.Fraud.LogRetention,
	)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes under the API prefix with a coarse per-IP limit
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewareCustom.RateLimitByIP(middlewareCustom.DefaultAPIRateLimit()))
		routes.RegisterRoutes(r, guard, redemptionHandler, fraudLogHandler, cardHandler, tokenManager)
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		stats := db.Stats()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","database":"up","pool_total_conns":%d,"pool_idle_conns":%d}`,
			stats.TotalConns(), stats.IdleConns())
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweeper.Start(sweepCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Flush pending alerts after the listener is down
	dispatcher.Stop()

	logger.Info("server stopped gracefully")
}
