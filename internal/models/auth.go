package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenClaims struct {
	AccountID   int64  `json:"account_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	jwt.RegisteredClaims
}

// LoginResult distinguishes a fresh session from an account that is already logged in
type LoginResult int

const (
	LoginResultSuccess        LoginResult = 0
	LoginResultDuplicateLogin LoginResult = 1
)

func (r LoginResult) String() string {
	switch r {
	case LoginResultSuccess:
		return "success"
	case LoginResultDuplicateLogin:
		return "duplicate_login"
	default:
		return "unknown"
	}
}

// LoginResponse is returned by a login that did not fail.
// For LoginResultDuplicateLogin the Token is empty and ExpiresAt is zero.
type LoginResponse struct {
	AccountID   int64       `json:"user_id"`
	DisplayName string      `json:"nickname"`
	Token       string      `json:"token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	LobbyHost   string      `json:"lobby_host"`
	LobbyPort   int         `json:"lobby_port"`
	Result      LoginResult `json:"result"`
}

// Session field names stored in the session hash
const (
	SessionFieldToken        = "token"
	SessionFieldLastActivity = "last_activity"
)
