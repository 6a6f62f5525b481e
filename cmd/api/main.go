package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	middlewareCustom "github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/BradenHooton/bastion/pkg/kafka"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
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

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env), slog.String("store_backend", cfg.Auth.StoreBackend))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool, logger); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	adminRepo := repositories.NewAdminRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	healthChecks := map[string]handlers.HealthChecker{"database": db}

	st, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize stores", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.close()
	if st.redis != nil {
		rdb := st.redis
		healthChecks["redis"] = handlers.HealthCheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Security event sinks, delivered off the request path
	sinks := []services.SecurityEventSink{eventRepo}

	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewSecurityEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID, logger)
		if err != nil {
			logger.Error("failed to create kafka producer", slog.Any("error", err))
			os.Exit(1)
		}
		defer producer.Close()
		sinks = append(sinks, producer)
		logger.Info("security events published to kafka", slog.String("topic", cfg.Kafka.Topic))
	}

	if cfg.Alerts.Enabled() {
		alerts, err := services.NewAlertEmailSink(ctx, cfg.Alerts.Region, cfg.Alerts.Sender, cfg.Alerts.Recipients, logger)
		if err != nil {
			logger.Error("failed to initialize alert email sink", slog.Any("error", err))
			os.Exit(1)
		}
		sinks = append(sinks, alerts)
		logger.Info("security alerts mailed", slog.Int("recipients", len(cfg.Alerts.Recipients)))
	}

	dispatcher := services.NewEventDispatcher(services.EventDispatcherConfig{}, logger, sinks...)
	// runs before the producer closes so queued events still reach kafka
	defer dispatcher.Close()
	events := services.NewSecurityEventLog(logger, dispatcher)

	// Factor verifiers and token manager
	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer, cfg.Auth.TOTPSkew)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AdminTokenExpiry)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay: cfg.Auth.TimingBaseDelay,
		Jitter:    cfg.Auth.TimingJitter,
	})

	authService := services.NewAuthService(services.AuthServiceDeps{
		Admins:       adminRepo,
		Attempts:     st.attempts,
		StepAttempts: st.stepAttempts,
		Sessions:     st.sessions,
		Challenges:   services.NewChallengeIssuer(st.challenges, cfg.Auth.ChallengeTTL),
		TOTP:         totpManager,
		HardwareKeys: auth.NewHardwareKeyVerifier(),
		Tokens:       tokenManager,
		Events:       events,
		Timing:       timingDelay,
		Logger:       logger,
	}, services.AuthPolicy{
		LockoutDuration: cfg.Auth.LockoutDuration,
		LockoutByIP:     cfg.Auth.LockoutByIP,
		Env:             cfg.Server.Env,
	})

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, logger)
	healthHandler := handlers.NewHealthHandler(healthChecks, logger)

	var adminProxy http.Handler
	if cfg.Relay.Enabled() {
		adminProxy = handlers.NewAdminProxy(cfg.Relay.BackendURL, cfg.Relay.AdminSecret, logger)
		logger.Info("admin relay enabled", slog.String("backend", cfg.Relay.BackendURL.Redacted()))
	}

	// Cleanup of in-memory stores and audit retention
	cleanupManager := background.NewCleanupManager(st.sweepers, eventRepo, cfg.Auth.AuditRetention, logger, cfg.Auth.CleanupInterval)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Deps{
		Auth:          authHandler,
		Health:        healthHandler,
		Authenticator: authService,
		AdminProxy:    adminProxy,
		AuthRateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.Server.AuthRequestsPerMinute,
			IPConfig:          ipConfig,
		},
		AdminRateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: 10 * cfg.Server.AuthRequestsPerMinute,
			IPConfig:          ipConfig,
		},
		Logger: logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

// stores are the attempt, session and challenge backends selected by STORE_BACKEND
type stores struct {
	attempts     repositories.AttemptStore
	stepAttempts repositories.AttemptStore
	sessions     repositories.SessionStore
	challenges   repositories.ChallengeStore
	// sweepers is empty for redis, which expires keys itself.
	sweepers map[string]repositories.Sweeper
	redis    *redis.Client
}

func (s *stores) close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func buildStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	loginPolicy := repositories.AttemptPolicy{MaxAttempts: cfg.Auth.MaxLoginAttempts, LockoutDuration: cfg.Auth.LockoutDuration}
	// A session that exhausts its step budget is destroyed; the counter only has to outlive it.
	stepPolicy := repositories.AttemptPolicy{MaxAttempts: cfg.Auth.MaxStepFailures, LockoutDuration: cfg.Auth.SessionDuration}

	for _, p := range []repositories.AttemptPolicy{loginPolicy, stepPolicy} {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	switch cfg.Auth.StoreBackend {
	case config.StoreBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("connected to redis", slog.String("addr", cfg.Redis.Addr))

		// Each store appends its own key segment. Step counters get a namespace of
		// their own so they can never share a key with a login identifier.
		prefix := cfg.Redis.KeyPrefix
		return &stores{
			attempts:     repositories.NewRedisAttemptStore(rdb, prefix, loginPolicy, nil),
			stepAttempts: repositories.NewRedisAttemptStore(rdb, prefix+":step", stepPolicy, nil),
			sessions:     repositories.NewRedisSessionStore(rdb, prefix, cfg.Auth.SessionDuration, nil),
			challenges:   repositories.NewRedisChallengeStore(rdb, prefix),
			sweepers:     map[string]repositories.Sweeper{},
			redis:        rdb,
		}, nil

	default:
		attempts := repositories.NewMemoryAttemptStore(loginPolicy, nil)
		stepAttempts := repositories.NewMemoryAttemptStore(stepPolicy, nil)
		sessions := repositories.NewMemorySessionStore(cfg.Auth.SessionDuration, nil)
		challenges := repositories.NewMemoryChallengeStore()
		return &stores{
			attempts:     attempts,
			stepAttempts: stepAttempts,
			sessions:     sessions,
			challenges:   challenges,
			sweepers: map[string]repositories.Sweeper{
				"attempts":      attempts,
				"step_attempts": stepAttempts,
				"sessions":      sessions,
				"challenges":    challenges,
			},
		}, nil
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
