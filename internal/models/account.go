package models

import (
	"time"
)

// DefaultRating is the matchmaking rating every new account starts with
const DefaultRating = 1000

type Account struct {
	ID                    int64
	Email                 string
	DisplayName           string
	PasswordHash          string // never serialized
	IsActive              bool
	CreatedAt             time.Time
	LastLoginAt           *time.Time // nil until first login
	Rating                int
	LastSelectedCharacter CharacterType
}
