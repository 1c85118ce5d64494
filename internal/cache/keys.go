package cache

import "strconv"

const (
	loginAttemptPrefix = "login_attempt:"
	sessionPrefix      = "session:"
	blacklistPrefix    = "blacklist:"
	userPrefix         = "user:"
	charactersSuffix   = ":characters"
)

func LoginAttemptKey(email string) string {
	return loginAttemptPrefix + email
}

func SessionKey(email string) string {
	return sessionPrefix + email
}

func BlacklistKey(token string) string {
	return blacklistPrefix + token
}

// UserKey holds account data cached by gameplay services
func UserKey(accountID int64) string {
	return userPrefix + strconv.FormatInt(accountID, 10)
}

// UserCharactersKey holds per-character "playCount:winCount" stats
func UserCharactersKey(accountID int64) string {
	return UserKey(accountID) + charactersSuffix
}
