//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/loginserver/internal/auth"
	"github.com/BradenHooton/loginserver/internal/cache"
	"github.com/BradenHooton/loginserver/internal/config"
	"github.com/BradenHooton/loginserver/internal/database"
	"github.com/BradenHooton/loginserver/internal/handlers"
	middlewareCustom "github.com/BradenHooton/loginserver/internal/middleware"
	"github.com/BradenHooton/loginserver/internal/repositories"
	"github.com/BradenHooton/loginserver/internal/routes"
	"github.com/BradenHooton/loginserver/internal/services"
	pkghttp "github.com/BradenHooton/loginserver/pkg/http"
	pkglogger "github.com/BradenHooton/loginserver/pkg/logger"
)

// TestServer wraps httptest.Server with real PostgreSQL and Redis behind it
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Redis  *redis.Client
	Config *config.Config
}

// NewTestServer wires the production router against the given stores
func NewTestServer(db *database.DB, rdb *redis.Client) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:           "test-secret-32-characters-long-for-testing",
			JWTIssuer:           "loginserver",
			JWTAudience:         "game-client",
			TokenLifetime:       24 * time.Hour,
			MaxLoginAttempts:    5,
			LockoutWindow:       30 * time.Minute,
			BcryptCost:          bcrypt.MinCost,
			TimingDelayBaseMs:   1,
			TimingDelayRandomMs: 0,
		},
		Lobby: config.LobbyConfig{
			Host: "127.0.0.1",
			Port: 7777,
		},
		Server: config.ServerConfig{
			Env:            "test",
			TrustedProxies: []string{},
			AuthRateLimit:  1000,
		},
	}

	sessionCache := cache.NewRedisStore(rdb)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.TokenLifetime)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	authService := services.NewAuthService(
		services.AuthConfig{
			MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
			LockoutWindow:    cfg.Auth.LockoutWindow,
			TokenLifetime:    cfg.Auth.TokenLifetime,
			LobbyHost:        cfg.Lobby.Host,
			LobbyPort:        cfg.Lobby.Port,
			BcryptCost:       cfg.Auth.BcryptCost,
		},
		repositories.NewAccountRepository(db.Pool),
		repositories.NewCharacterRepository(db.Pool),
		sessionCache,
		tokenManager,
		timingDelay,
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"postgres": db.HealthCheck,
		"redis":    sessionCache.Ping,
	})

	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	rateLimitConfig := middlewareCustom.DefaultAuthRateLimit(ipConfig)
	rateLimitConfig.RequestsPerMinute = cfg.Server.AuthRateLimit

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, healthHandler, tokenManager, authService, rateLimitConfig)

	return &TestServer{
		Server: httptest.NewServer(r),
		DB:     db,
		Redis:  rdb,
		Config: cfg,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes a request carrying a bearer token
func (ts *TestServer) RequestWithAuth(method, path, token string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorCode extracts the error code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	return errResp.Error, nil
}
