package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRevocationChecker struct {
	revoked bool
	err     error
	seen    string
}

func (s *stubRevocationChecker) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	s.seen = token
	return s.revoked, s.err
}

func TestAuthMiddleware(t *testing.T) {
	tm, _ := newTestTokenManager()
	token, _, err := tm.GenerateToken(testAccount())
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		checker    *stubRevocationChecker
		wantStatus int
	}{
		{"valid token", "Bearer " + token, &stubRevocationChecker{}, http.StatusOK},
		{"valid token without checker", "Bearer " + token, nil, http.StatusOK},
		{"missing header", "", &stubRevocationChecker{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, &stubRevocationChecker{}, http.StatusUnauthorized},
		{"empty bearer", "Bearer ", &stubRevocationChecker{}, http.StatusUnauthorized},
		{"invalid token", "Bearer abc.def.ghi", &stubRevocationChecker{}, http.StatusUnauthorized},
		{"revoked token", "Bearer " + token, &stubRevocationChecker{revoked: true}, http.StatusUnauthorized},
		{"revocation lookup fails closed", "Bearer " + token, &stubRevocationChecker{err: errors.New("redis down")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAccountID int64
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if claims := GetUserFromContext(r); claims != nil {
					gotAccountID = claims.AccountID
				}
				w.WriteHeader(http.StatusOK)
			})

			var checker TokenRevocationChecker
			if tt.checker != nil {
				checker = tt.checker
			}

			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(tm, checker)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, int64(42), gotAccountID)
				if tt.checker != nil {
					assert.Equal(t, token, tt.checker.seen)
				}
			}
		})
	}
}

func TestGetUserFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetUserFromContext(req))
}
