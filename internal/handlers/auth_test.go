package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/loginserver/internal/handlers"
	"github.com/BradenHooton/loginserver/internal/models"
	pkgauth "github.com/BradenHooton/loginserver/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Register
// ============================================================================

func TestRegister_Success(t *testing.T) {
	var gotEmail, gotNickname string
	mockAuth := &handlers.MockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, displayName string) error {
			gotEmail, gotNickname = email, displayName
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Email:    "  Ann@X.com ",
		Password: "Pw1!aaaa",
		Nickname: " Ann ",
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	var resp handlers.RegisterResponse
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "ann@x.com", gotEmail)
	assert.Equal(t, "Ann", gotNickname)
}

func TestRegister_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"duplicate email", models.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},
		{"duplicate nickname", models.ErrDuplicateDisplayName, http.StatusConflict, "duplicate_nickname"},
		{"weak password", &pkgauth.PasswordValidationError{Errors: []string{"must contain a digit"}}, http.StatusBadRequest, "invalid_password"},
		{"bad request", models.ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{"transaction failed", errors.Join(models.ErrTransactionFailed, errors.New("db")), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				RegisterFunc: func(ctx context.Context, email, password, displayName string) error {
					return tt.err
				},
			}

			handler := handlers.NewAuthHandler(mockAuth)
			req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
				Email:    "ann@x.com",
				Password: "Pw1!aaaa",
				Nickname: "Ann",
			})

			w := httptest.NewRecorder()
			handler.Register(w, req)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestRegister_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body handlers.RegisterRequest
		want string
	}{
		{"invalid email", handlers.RegisterRequest{Email: "nope", Password: "Pw1!aaaa", Nickname: "Ann"}, "email"},
		{"nickname too short", handlers.RegisterRequest{Email: "a@x.com", Password: "Pw1!aaaa", Nickname: "A"}, "nickname"},
		{"nickname too long", handlers.RegisterRequest{Email: "a@x.com", Password: "Pw1!aaaa", Nickname: strings.Repeat("n", 21)}, "nickname"},
		{"nickname only spaces", handlers.RegisterRequest{Email: "a@x.com", Password: "Pw1!aaaa", Nickname: "    "}, "nickname"},
		{"missing password", handlers.RegisterRequest{Email: "a@x.com", Nickname: "Ann"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mockAuth := &handlers.MockAuthService{
				RegisterFunc: func(ctx context.Context, email, password, displayName string) error {
					called = true
					return nil
				},
			}

			handler := handlers.NewAuthHandler(mockAuth)
			w := httptest.NewRecorder()
			handler.Register(w, handlers.NewTestRequest(t, "POST", "/auth/register", tt.body))

			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
			assert.Contains(t, w.Body.String(), tt.want)
			assert.False(t, called)
		})
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{})
	req := httptest.NewRequest("POST", "/auth/register", strings.NewReader("{"))

	w := httptest.NewRecorder()
	handler.Register(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

// ============================================================================
// Login
// ============================================================================

func TestLogin_Success(t *testing.T) {
	expiresAt := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password string) (*models.LoginResponse, error) {
			assert.Equal(t, "ann@x.com", email)
			return &models.LoginResponse{
				AccountID:   1,
				DisplayName: "Ann",
				Token:       "tok",
				ExpiresAt:   expiresAt,
				LobbyHost:   "127.0.0.1",
				LobbyPort:   7777,
				Result:      models.LoginResultSuccess,
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "ANN@x.com",
		Password: "Pw1!aaaa",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp models.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, int64(1), resp.AccountID)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "127.0.0.1", resp.LobbyHost)
	assert.Equal(t, 7777, resp.LobbyPort)
	assert.Equal(t, models.LoginResultSuccess, resp.Result)
	assert.True(t, expiresAt.Equal(resp.ExpiresAt))
}

func TestLogin_DuplicateLoginIsNotAnError(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password string) (*models.LoginResponse, error) {
			return &models.LoginResponse{AccountID: 1, DisplayName: "Ann", Result: models.LoginResultDuplicateLogin}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	w := httptest.NewRecorder()
	handler.Login(w, handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{Email: "ann@x.com", Password: "x"}))

	var raw map[string]any
	handlers.AssertJSONResponse(t, w, http.StatusOK, &raw)
	assert.Equal(t, float64(1), raw["result"])
	assert.Equal(t, "", raw["token"])
}

func TestLogin_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"too many attempts", models.ErrTooManyAttempts, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"invalid credentials", models.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{"disabled looks like invalid credentials", models.ErrAccountDisabled, http.StatusUnauthorized, "unauthorized"},
		{"internal", models.ErrInternalServer, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, email, password string) (*models.LoginResponse, error) {
					return nil, tt.err
				},
			}

			handler := handlers.NewAuthHandler(mockAuth)
			w := httptest.NewRecorder()
			handler.Login(w, handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{Email: "ann@x.com", Password: "x"}))

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestLogin_ValidationFailure(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{})
	w := httptest.NewRecorder()
	handler.Login(w, handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{Email: "not-an-email", Password: "x"}))

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

// ============================================================================
// ValidateToken
// ============================================================================

func TestValidateToken(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		ValidateTokenFunc: func(ctx context.Context, token string) bool {
			return token == "good"
		},
	}
	handler := handlers.NewAuthHandler(mockAuth)

	for token, want := range map[string]bool{"good": true, "bad": false, "": false} {
		w := httptest.NewRecorder()
		handler.ValidateToken(w, handlers.NewTestRequest(t, "POST", "/auth/validate-token", handlers.ValidateTokenRequest{Token: token}))

		var resp handlers.ValidateTokenResponse
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.Equal(t, want, resp.Valid, token)
	}
}

// ============================================================================
// Logout
// ============================================================================

func TestLogout_Success(t *testing.T) {
	var gotID int64
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, accountID int64) error {
			gotID = accountID
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	req := handlers.WithAuthContext(handlers.NewTestRequest(t, "POST", "/auth/logout", nil), 42, "ann@x.com")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	var resp handlers.MessageResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, int64(42), gotID)
}

func TestLogout_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"account not found", models.ErrAccountNotFound, http.StatusNotFound, "not_found"},
		{"flush failed", models.ErrTransactionFailed, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				LogoutFunc: func(ctx context.Context, accountID int64) error { return tt.err },
			}

			handler := handlers.NewAuthHandler(mockAuth)
			req := handlers.WithAuthContext(handlers.NewTestRequest(t, "POST", "/auth/logout", nil), 42, "ann@x.com")

			w := httptest.NewRecorder()
			handler.Logout(w, req)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestLogout_WithoutClaims(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{})
	w := httptest.NewRecorder()
	handler.Logout(w, handlers.NewTestRequest(t, "POST", "/auth/logout", nil))

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

// ============================================================================
// Health
// ============================================================================

func TestHealth(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	t.Run("all healthy", func(t *testing.T) {
		h := handlers.NewHealthHandler(map[string]handlers.HealthCheck{"postgres": ok, "redis": ok})
		w := httptest.NewRecorder()
		h.Health(w, httptest.NewRequest("GET", "/health", nil))

		var resp handlers.HealthResponse
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, resp.Checks)
	})

	t.Run("one store down", func(t *testing.T) {
		h := handlers.NewHealthHandler(map[string]handlers.HealthCheck{"postgres": ok, "redis": down})
		w := httptest.NewRecorder()
		h.Health(w, httptest.NewRequest("GET", "/health", nil))

		var resp handlers.HealthResponse
		handlers.AssertJSONResponse(t, w, http.StatusServiceUnavailable, &resp)
		require.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "unavailable", resp.Checks["redis"])
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}
