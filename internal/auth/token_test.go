package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/loginserver/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-bytes"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTokenManager() (*TokenManager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	tm := NewTokenManager(testSecret, "loginserver", "game-client", time.Hour)
	tm.SetClock(clock.Now)
	return tm, clock
}

func testAccount() *models.Account {
	return &models.Account{ID: 42, Email: "player@example.com", DisplayName: "Player"}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm, clock := newTestTokenManager()

	token, expiresAt, err := tm.GenerateToken(testAccount())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), expiresAt)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.AccountID)
	assert.Equal(t, "Player", claims.DisplayName)
	assert.Equal(t, "player@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "loginserver", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.Time.Equal(expiresAt))
}

func TestTokenManager_UniqueJTI(t *testing.T) {
	tm, _ := newTestTokenManager()

	first, _, err := tm.GenerateToken(testAccount())
	require.NoError(t, err)
	second, _, err := tm.GenerateToken(testAccount())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenManager_Expiry(t *testing.T) {
	tm, clock := newTestTokenManager()

	token, _, err := tm.GenerateToken(testAccount())
	require.NoError(t, err)

	clock.Advance(time.Hour - time.Second)
	_, err = tm.ValidateToken(token)
	assert.NoError(t, err)

	clock.Advance(time.Second)
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestTokenManager_Rejects(t *testing.T) {
	tm, clock := newTestTokenManager()
	valid, _, err := tm.GenerateToken(testAccount())
	require.NoError(t, err)

	sign := func(method jwt.SigningMethod, key interface{}, mutate func(c *models.TokenClaims)) string {
		claims := &models.TokenClaims{
			AccountID: 42,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "loginserver",
				Audience:  jwt.ClaimStrings{"game-client"},
				ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(clock.Now()),
			},
		}
		if mutate != nil {
			mutate(claims)
		}
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"tampered signature", valid[:len(valid)-2] + "xx"},
		{"tampered payload", strings.Replace(valid, ".", ".e", 1)},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("another-secret-that-is-32-bytes-long!!"), nil)},
		{"other hmac algorithm", sign(jwt.SigningMethodHS512, []byte(testSecret), nil)},
		{"alg none", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, nil)},
		{"wrong issuer", sign(jwt.SigningMethodHS256, []byte(testSecret), func(c *models.TokenClaims) { c.Issuer = "evil" })},
		{"wrong audience", sign(jwt.SigningMethodHS256, []byte(testSecret), func(c *models.TokenClaims) { c.Audience = jwt.ClaimStrings{"web"} })},
		{"missing expiry", sign(jwt.SigningMethodHS256, []byte(testSecret), func(c *models.TokenClaims) { c.ExpiresAt = nil })},
		{"missing account id", sign(jwt.SigningMethodHS256, []byte(testSecret), func(c *models.TokenClaims) { c.AccountID = 0 })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tm.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}
