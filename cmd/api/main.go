package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/loginserver/internal/auth"
	"github.com/BradenHooton/loginserver/internal/cache"
	"github.com/BradenHooton/loginserver/internal/config"
	"github.com/BradenHooton/loginserver/internal/database"
	"github.com/BradenHooton/loginserver/internal/handlers"
	"github.com/BradenHooton/loginserver/internal/metrics"
	middlewareCustom "github.com/BradenHooton/loginserver/internal/middleware"
	"github.com/BradenHooton/loginserver/internal/repositories"
	"github.com/BradenHooton/loginserver/internal/routes"
	"github.com/BradenHooton/loginserver/internal/services"
	pkghttp "github.com/BradenHooton/loginserver/pkg/http"
	pkglogger "github.com/BradenHooton/loginserver/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
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

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize session cache
	rdb, err := cache.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()

	sessionCache := cache.NewRedisStore(rdb)

	prometheus.MustRegister(metrics.NewPoolCollector(metrics.PgxPoolStats(db.Pool)))

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db.Pool)
	characterRepo := repositories.NewCharacterRepository(db.Pool)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.JWTIssuer,
		cfg.Auth.JWTAudience,
		cfg.Auth.TokenLifetime,
	)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	authService := services.NewAuthService(
		services.AuthConfig{
			MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
			LockoutWindow:    cfg.Auth.LockoutWindow,
			TokenLifetime:    cfg.Auth.TokenLifetime,
			LobbyHost:        cfg.Lobby.Host,
			LobbyPort:        cfg.Lobby.Port,
			BcryptCost:       cfg.Auth.BcryptCost,
		},
		accountRepo,
		characterRepo,
		sessionCache,
		tokenManager,
		timingDelay,
		logger,
		auditLogger,
	)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"postgres": db.HealthCheck,
		"redis":    sessionCache.Ping,
	})

	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	rateLimitConfig := middlewareCustom.DefaultAuthRateLimit(ipConfig)
	rateLimitConfig.RequestsPerMinute = cfg.Server.AuthRateLimit

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterRoutes(router, authHandler, healthHandler, tokenManager, authService, rateLimitConfig)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
