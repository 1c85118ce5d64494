package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/loginserver/internal/cache"
	"github.com/BradenHooton/loginserver/internal/metrics"
	"github.com/BradenHooton/loginserver/internal/models"
	pkgauth "github.com/BradenHooton/loginserver/pkg/auth"
	pkglogger "github.com/BradenHooton/loginserver/pkg/logger"
)

// AccountRepository is the durable account store
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByDisplayName(ctx context.Context, displayName string) (bool, error)
	CreateWithDefaultCharacter(ctx context.Context, account *models.Account, character *models.OwnedCharacter) (*models.Account, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// CharacterRepository is the durable store of owned characters and their stats
type CharacterRepository interface {
	ListByAccount(ctx context.Context, accountID int64) ([]*models.OwnedCharacter, error)
	UpdateStats(ctx context.Context, characters []*models.OwnedCharacter) error
}

// SessionCache is the expiring key-value store holding attempt counters,
// sessions, the token blacklist and gameplay caches.
type SessionCache interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	HashSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
}

// TokenIssuer mints and verifies bearer tokens
type TokenIssuer interface {
	GenerateToken(account *models.Account) (string, time.Time, error)
	ValidateToken(token string) (*models.TokenClaims, error)
}

// FailureDelay pads failed credential checks
type FailureDelay interface {
	Wait(success bool)
}

// AuthConfig is the immutable engine configuration
type AuthConfig struct {
	MaxLoginAttempts int
	LockoutWindow    time.Duration
	TokenLifetime    time.Duration
	LobbyHost        string
	LobbyPort        int
	BcryptCost       int
}

// AuthService handles registration, login, token validation and logout
type AuthService struct {
	cfg         AuthConfig
	accounts    AccountRepository
	characters  CharacterRepository
	cache       SessionCache
	tokens      TokenIssuer
	delay       FailureDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewAuthService(
	cfg AuthConfig,
	accounts AccountRepository,
	characters CharacterRepository,
	sessionCache SessionCache,
	tokens TokenIssuer,
	delay FailureDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		cfg:         cfg,
		accounts:    accounts,
		characters:  characters,
		cache:       sessionCache,
		tokens:      tokens,
		delay:       delay,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// SetClock replaces the time source (tests)
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account together with its default character.
// No session or token is created.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) error {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)

	if email == "" || displayName == "" {
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeInvalidInput).Inc()
		return models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeInvalidInput).Inc()
		return err
	}

	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to check email availability", slog.Any("error", err))
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return models.ErrInternalServer
	}
	if exists {
		return s.registrationRejected(ctx, email, models.ErrDuplicateEmail)
	}

	exists, err = s.accounts.ExistsByDisplayName(ctx, displayName)
	if err != nil {
		s.logger.Error("failed to check nickname availability", slog.Any("error", err))
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return models.ErrInternalServer
	}
	if exists {
		return s.registrationRejected(ctx, email, models.ErrDuplicateDisplayName)
	}

	hash, err := pkgauth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return models.ErrInternalServer
	}

	now := s.now().UTC()
	account := &models.Account{
		Email:                 email,
		DisplayName:           displayName,
		PasswordHash:          hash,
		IsActive:              true,
		CreatedAt:             now,
		Rating:                models.DefaultRating,
		LastSelectedCharacter: models.CharacterNone,
	}
	character := &models.OwnedCharacter{
		CharacterType: models.DefaultCharacterType,
		PurchasedAt:   now,
		UpdatedAt:     now,
	}

	created, err := s.accounts.CreateWithDefaultCharacter(ctx, account, character)
	if err != nil {
		// a concurrent registration can still win the unique constraint
		if errors.Is(err, models.ErrDuplicateEmail) || errors.Is(err, models.ErrDuplicateDisplayName) {
			return s.registrationRejected(ctx, email, err)
		}
		s.logger.Error("registration transaction failed", slog.Any("error", err))
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("%w: %w", models.ErrTransactionFailed, err)
	}

	s.logger.Info("account registered", slog.Int64("account_id", created.ID))
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: "account_registered",
		AccountID: created.ID,
		Email:     email,
		Success:   true,
		Metadata:  map[string]string{"default_character": models.DefaultCharacterType.String()},
	})
	metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	return nil
}

func (s *AuthService) registrationRejected(ctx context.Context, email string, err error) error {
	outcome := metrics.OutcomeDuplicateEmail
	if errors.Is(err, models.ErrDuplicateDisplayName) {
		outcome = metrics.OutcomeDuplicateNickname
	}

	s.logger.Info("registration rejected", slog.String("reason", outcome))
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType:     "registration_rejected",
		Email:         email,
		FailureReason: outcome,
	})
	metrics.RegistrationsTotal.WithLabelValues(outcome).Inc()

	if errors.Is(err, models.ErrDuplicateDisplayName) {
		return models.ErrDuplicateDisplayName
	}
	return models.ErrDuplicateEmail
}

// Login authenticates the account and opens a session.
// An account that already has a session gets LoginResultDuplicateLogin and no token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	email = normalizeEmail(email)
	attemptKey := cache.LoginAttemptKey(email)

	attempts, err := s.failedAttempts(ctx, attemptKey)
	if err != nil {
		s.logger.Error("failed to read login attempt counter", slog.Any("error", err))
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, models.ErrInternalServer
	}
	if attempts >= int64(s.cfg.MaxLoginAttempts) {
		s.logger.Info("login throttled", slog.Int64("attempts", attempts))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_failed",
			Email:         email,
			FailureReason: metrics.OutcomeThrottled,
		})
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeThrottled).Inc()
		return nil, models.ErrTooManyAttempts
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.credentialFailure(ctx, email, 0, attemptKey)
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, models.ErrInternalServer
	}

	if !pkgauth.VerifyPassword(account.PasswordHash, password) {
		return nil, s.credentialFailure(ctx, email, account.ID, attemptKey)
	}

	if !account.IsActive {
		s.logger.Info("login blocked: account disabled", slog.Int64("account_id", account.ID))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_failed",
			AccountID:     account.ID,
			FailureReason: metrics.OutcomeDisabled,
		})
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeDisabled).Inc()
		return nil, models.ErrAccountDisabled
	}

	sessionKey := cache.SessionKey(email)
	session, err := s.cache.HashGetAll(ctx, sessionKey)
	if err != nil {
		s.logger.Error("failed to read session", slog.Int64("account_id", account.ID), slog.Any("error", err))
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, models.ErrInternalServer
	}
	if len(session) > 0 {
		s.logger.Info("duplicate login", slog.Int64("account_id", account.ID))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_duplicate",
			AccountID:     account.ID,
			FailureReason: metrics.OutcomeDuplicateLogin,
		})
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeDuplicateLogin).Inc()
		return &models.LoginResponse{
			AccountID:   account.ID,
			DisplayName: account.DisplayName,
			LobbyHost:   s.cfg.LobbyHost,
			LobbyPort:   s.cfg.LobbyPort,
			Result:      models.LoginResultDuplicateLogin,
		}, nil
	}

	if err := s.cache.Delete(ctx, attemptKey); err != nil {
		s.logger.Warn("failed to clear login attempt counter", slog.Int64("account_id", account.ID), slog.Any("error", err))
	}

	now := s.now().UTC()
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		s.logger.Error("failed to update last login", slog.Int64("account_id", account.ID), slog.Any("error", err))
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, models.ErrInternalServer
	}

	token, expiresAt, err := s.tokens.GenerateToken(account)
	if err != nil {
		s.logger.Error("failed to generate token", slog.Int64("account_id", account.ID), slog.Any("error", err))
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, models.ErrInternalServer
	}

	if err := s.openSession(ctx, sessionKey, token, now); err != nil {
		s.logger.Error("failed to store session", slog.Int64("account_id", account.ID), slog.Any("error", err))
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account logged in", slog.Int64("account_id", account.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "login_success",
		AccountID: account.ID,
		Success:   true,
	})
	metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	return &models.LoginResponse{
		AccountID:   account.ID,
		DisplayName: account.DisplayName,
		Token:       token,
		ExpiresAt:   expiresAt,
		LobbyHost:   s.cfg.LobbyHost,
		LobbyPort:   s.cfg.LobbyPort,
		Result:      models.LoginResultSuccess,
	}, nil
}

// failedAttempts returns the current counter; a missing or unreadable value counts as zero
func (s *AuthService) failedAttempts(ctx context.Context, key string) (int64, error) {
	raw, ok, err := s.cache.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Warn("ignoring malformed login attempt counter", slog.String("value", raw))
		return 0, nil
	}
	return n, nil
}

// credentialFailure bumps the attempt counter and returns ErrInvalidCredentials.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *AuthService) credentialFailure(ctx context.Context, email string, accountID int64, attemptKey string) error {
	defer s.delay.Wait(false)

	attempts, err := s.cache.Increment(ctx, attemptKey, s.cfg.LockoutWindow)
	if err != nil {
		s.logger.Error("failed to record failed login", slog.Any("error", err))
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return models.ErrInternalServer
	}

	s.logger.Info("login failed: invalid credentials", slog.Int64("attempts", attempts))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     "login_failed",
		AccountID:     accountID,
		Email:         email,
		FailureReason: metrics.OutcomeInvalidCredentials,
	})
	metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeInvalidCredentials).Inc()

	return models.ErrInvalidCredentials
}

// openSession stores the session record and its expiry in one write
func (s *AuthService) openSession(ctx context.Context, key, token string, now time.Time) error {
	return s.cache.HashSetWithTTL(ctx, key, map[string]string{
		models.SessionFieldToken:        token,
		models.SessionFieldLastActivity: now.Format(time.RFC3339),
	}, s.cfg.TokenLifetime)
}

// ValidateToken reports whether the token is well-formed, unexpired and not
// blacklisted. Lookup failures report false.
func (s *AuthService) ValidateToken(ctx context.Context, token string) bool {
	if token == "" {
		metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return false
	}

	revoked, err := s.IsTokenRevoked(ctx, token)
	if err != nil {
		s.logger.Error("blacklist lookup failed", slog.Any("error", err))
		metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return false
	}
	if revoked {
		metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultBlacklisted).Inc()
		return false
	}

	if _, err := s.tokens.ValidateToken(token); err != nil {
		s.logger.Debug("token rejected", slog.Any("error", err))
		metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return false
	}

	metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultValid).Inc()
	return true
}

// IsTokenRevoked reports whether logout has blacklisted the token
func (s *AuthService) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	return s.cache.Exists(ctx, cache.BlacklistKey(token))
}

// Logout flushes cached character stats, blacklists the session token and
// clears every cache entry belonging to the account.
func (s *AuthService) Logout(ctx context.Context, accountID int64) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			metrics.LogoutsTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
			return models.ErrAccountNotFound
		}
		s.logger.Error("failed to get account for logout", slog.Int64("account_id", accountID), slog.Any("error", err))
		metrics.LogoutsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return models.ErrInternalServer
	}

	flushed, err := s.flushCharacterStats(ctx, account.ID)
	if err != nil {
		metrics.LogoutsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return err
	}

	sessionKey := cache.SessionKey(account.Email)
	session, err := s.cache.HashGetAll(ctx, sessionKey)
	if err != nil {
		s.logger.Error("failed to read session", slog.Int64("account_id", account.ID), slog.Any("error", err))
		metrics.LogoutsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return models.ErrInternalServer
	}

	if token := session[models.SessionFieldToken]; token != "" {
		if err := s.cache.SetString(ctx, cache.BlacklistKey(token), "1", s.cfg.TokenLifetime); err != nil {
			s.logger.Error("failed to blacklist token", slog.Int64("account_id", account.ID), slog.Any("error", err))
			metrics.LogoutsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return models.ErrInternalServer
		}
	}

	err = s.cache.Delete(ctx, sessionKey, cache.UserKey(account.ID), cache.UserCharactersKey(account.ID))
	if err != nil {
		s.logger.Error("failed to clear session cache", slog.Int64("account_id", account.ID), slog.Any("error", err))
		metrics.LogoutsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return models.ErrInternalServer
	}

	s.logger.Info("account logged out", slog.Int64("account_id", account.ID))
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: "logout",
		AccountID: account.ID,
		Success:   true,
		Metadata:  map[string]string{"stats_flushed": strconv.Itoa(flushed)},
	})
	metrics.LogoutsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	return nil
}

// flushCharacterStats persists cached play/win counters and returns the number of rows written
func (s *AuthService) flushCharacterStats(ctx context.Context, accountID int64) (int, error) {
	cached, err := s.cache.HashGetAll(ctx, cache.UserCharactersKey(accountID))
	if err != nil {
		s.logger.Error("failed to read cached character stats", slog.Int64("account_id", accountID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	if len(cached) == 0 {
		return 0, nil
	}

	stats, skipped := parseCharacterStats(cached)
	for _, field := range skipped {
		s.logger.Warn("skipping malformed character stat entry",
			slog.Int64("account_id", accountID),
			slog.String("field", field),
			slog.String("value", cached[field]))
	}
	if len(stats) == 0 {
		return 0, nil
	}

	owned, err := s.characters.ListByAccount(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to list characters", slog.Int64("account_id", accountID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	now := s.now().UTC()
	matched := applyCharacterStats(owned, stats, now)

	for characterType := range stats {
		if !ownsCharacter(owned, characterType) {
			s.logger.Warn("cached stats for character the account does not own",
				slog.Int64("account_id", accountID),
				slog.String("character", characterType.String()))
		}
	}

	if len(matched) == 0 {
		return 0, nil
	}

	if err := s.characters.UpdateStats(ctx, matched); err != nil {
		s.logger.Error("failed to persist character stats", slog.Int64("account_id", accountID), slog.Any("error", err))
		return 0, fmt.Errorf("%w: %w", models.ErrTransactionFailed, err)
	}

	metrics.StatsRowsFlushedTotal.Add(float64(len(matched)))
	return len(matched), nil
}

func ownsCharacter(owned []*models.OwnedCharacter, characterType models.CharacterType) bool {
	for _, c := range owned {
		if c.CharacterType == characterType {
			return true
		}
	}
	return false
}
