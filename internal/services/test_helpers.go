package services

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BradenHooton/loginserver/internal/auth"
	"github.com/BradenHooton/loginserver/internal/models"
	pkgauth "github.com/BradenHooton/loginserver/pkg/auth"
	pkglogger "github.com/BradenHooton/loginserver/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret    = "test-secret-key-that-is-at-least-32-bytes"
	testLobbyHost = "127.0.0.1"
	testLobbyPort = 7777
)

// testClock is a manually advanced time source shared by the service, the
// token manager and the fake cache.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetByEmailFunc                 func(ctx context.Context, email string) (*models.Account, error)
	GetByIDFunc                    func(ctx context.Context, id int64) (*models.Account, error)
	ExistsByEmailFunc              func(ctx context.Context, email string) (bool, error)
	ExistsByDisplayNameFunc        func(ctx context.Context, displayName string) (bool, error)
	CreateWithDefaultCharacterFunc func(ctx context.Context, account *models.Account, character *models.OwnedCharacter) (*models.Account, error)
	UpdateLastLoginFunc            func(ctx context.Context, id int64, at time.Time) error

	GetByEmailCalls int
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.GetByEmailCalls++
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.ExistsByEmailFunc != nil {
		return m.ExistsByEmailFunc(ctx, email)
	}
	return false, nil
}

func (m *MockAccountRepository) ExistsByDisplayName(ctx context.Context, displayName string) (bool, error) {
	if m.ExistsByDisplayNameFunc != nil {
		return m.ExistsByDisplayNameFunc(ctx, displayName)
	}
	return false, nil
}

func (m *MockAccountRepository) CreateWithDefaultCharacter(ctx context.Context, account *models.Account, character *models.OwnedCharacter) (*models.Account, error) {
	if m.CreateWithDefaultCharacterFunc != nil {
		return m.CreateWithDefaultCharacterFunc(ctx, account, character)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, id, at)
	}
	return nil
}

// MockCharacterRepository implements CharacterRepository for testing
type MockCharacterRepository struct {
	ListByAccountFunc func(ctx context.Context, accountID int64) ([]*models.OwnedCharacter, error)
	UpdateStatsFunc   func(ctx context.Context, characters []*models.OwnedCharacter) error
}

func (m *MockCharacterRepository) ListByAccount(ctx context.Context, accountID int64) ([]*models.OwnedCharacter, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID)
	}
	return []*models.OwnedCharacter{}, nil
}

func (m *MockCharacterRepository) UpdateStats(ctx context.Context, characters []*models.OwnedCharacter) error {
	if m.UpdateStatsFunc != nil {
		return m.UpdateStatsFunc(ctx, characters)
	}
	return nil
}

// memoryStore backs both repository mocks with maps so that multi-step
// scenarios see their own writes.
type memoryStore struct {
	mu         sync.Mutex
	nextID     int64
	accounts   map[int64]*models.Account
	characters map[int64][]*models.OwnedCharacter

	// FailCharacterInsert makes CreateWithDefaultCharacter fail after the
	// account insert, discarding both rows.
	FailCharacterInsert error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts:   make(map[int64]*models.Account),
		characters: make(map[int64][]*models.OwnedCharacter),
	}
}

func (s *memoryStore) findByEmail(email string) *models.Account {
	for _, a := range s.accounts {
		if a.Email == email {
			return a
		}
	}
	return nil
}

func (s *memoryStore) Accounts() *MockAccountRepository {
	return &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if a := s.findByEmail(email); a != nil {
				cp := *a
				return &cp, nil
			}
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(ctx context.Context, id int64) (*models.Account, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if a, ok := s.accounts[id]; ok {
				cp := *a
				return &cp, nil
			}
			return nil, models.ErrNotFound
		},
		ExistsByEmailFunc: func(ctx context.Context, email string) (bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.findByEmail(email) != nil, nil
		},
		ExistsByDisplayNameFunc: func(ctx context.Context, displayName string) (bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, a := range s.accounts {
				if a.DisplayName == displayName {
					return true, nil
				}
			}
			return false, nil
		},
		CreateWithDefaultCharacterFunc: func(ctx context.Context, account *models.Account, character *models.OwnedCharacter) (*models.Account, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.FailCharacterInsert != nil {
				return nil, s.FailCharacterInsert
			}
			s.nextID++
			cp := *account
			cp.ID = s.nextID
			s.accounts[cp.ID] = &cp

			ch := *character
			ch.ID = s.nextID * 100
			ch.AccountID = cp.ID
			s.characters[cp.ID] = append(s.characters[cp.ID], &ch)

			out := cp
			return &out, nil
		},
		UpdateLastLoginFunc: func(ctx context.Context, id int64, at time.Time) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			a, ok := s.accounts[id]
			if !ok {
				return models.ErrNotFound
			}
			a.LastLoginAt = &at
			return nil
		},
	}
}

func (s *memoryStore) Characters() *MockCharacterRepository {
	return &MockCharacterRepository{
		ListByAccountFunc: func(ctx context.Context, accountID int64) ([]*models.OwnedCharacter, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			out := make([]*models.OwnedCharacter, 0, len(s.characters[accountID]))
			for _, c := range s.characters[accountID] {
				cp := *c
				out = append(out, &cp)
			}
			return out, nil
		},
		UpdateStatsFunc: func(ctx context.Context, characters []*models.OwnedCharacter) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, in := range characters {
				for _, c := range s.characters[in.AccountID] {
					if c.ID == in.ID {
						*c = *in
					}
				}
			}
			return nil
		},
	}
}

// addAccount inserts an account with a bcrypt hash of password at minimum cost
func (s *memoryStore) addAccount(email, displayName, password string, active bool) *models.Account {
	hash, err := pkgauth.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a := &models.Account{
		ID:           s.nextID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		IsActive:     active,
		Rating:       models.DefaultRating,
	}
	s.accounts[a.ID] = a
	cp := *a
	return &cp
}

func (s *memoryStore) addCharacter(accountID int64, characterType models.CharacterType, play, win int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[accountID] = append(s.characters[accountID], &models.OwnedCharacter{
		ID:            accountID*100 + int64(characterType),
		AccountID:     accountID,
		CharacterType: characterType,
		PlayCount:     play,
		WinCount:      win,
	})
}

func (s *memoryStore) character(accountID int64, characterType models.CharacterType) *models.OwnedCharacter {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.characters[accountID] {
		if c.CharacterType == characterType {
			cp := *c
			return &cp
		}
	}
	return nil
}

func (s *memoryStore) characterCount(accountID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.characters[accountID])
}

type cacheEntry struct {
	value     string
	fields    map[string]string
	expiresAt time.Time // zero means no expiry
}

// FakeCache is an in-memory SessionCache honoring TTLs against a test clock
type FakeCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*cacheEntry

	// Errors returned by the named operation ("GetString", "Increment", ...)
	Fail map[string]error
}

func NewFakeCache(now func() time.Time) *FakeCache {
	return &FakeCache{
		now:     now,
		entries: make(map[string]*cacheEntry),
		Fail:    make(map[string]error),
	}
}

// live returns the entry if present and not expired. Caller holds mu.
func (c *FakeCache) live(key string) *cacheEntry {
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return e
}

func (c *FakeCache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *FakeCache) GetString(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Fail["GetString"]; err != nil {
		return "", false, err
	}
	if e := c.live(key); e != nil && e.fields == nil {
		return e.value, true, nil
	}
	return "", false, nil
}

func (c *FakeCache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Fail["SetString"]; err != nil {
		return err
	}
	c.entries[key] = &cacheEntry{value: value, expiresAt: c.deadline(ttl)}
	return nil
}

func (c *FakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Fail["Delete"]; err != nil {
		return err
	}
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *FakeCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Fail["Exists"]; err != nil {
		return false, err
	}
	return c.live(key) != nil, nil
}

func (c *FakeCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Fail["Increment"]; err != nil {
		return 0, err
	}
	var n int64
	if e := c.live(key); e != nil {
		n, _ = strconv.ParseInt(e.value, 10, 64)
	}
	n++
	c.entries[key] = &cacheEntry{value: strconv.FormatInt(n, 10), expiresAt: c.deadline(ttl)}
	return n, nil
}

// HashSet seeds a hash without touching its TTL, as the game servers do
func (c *FakeCache) HashSet(ctx context.Context, key string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashSet(key, fields)
	return nil
}

// HashSetWithTTL fails as a whole, matching MULTI/EXEC
func (c *FakeCache) HashSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Fail["HashSetWithTTL"]; err != nil {
		return err
	}
	c.hashSet(key, fields).expiresAt = c.deadline(ttl)
	return nil
}

// hashSet merges fields into key. Caller holds mu.
func (c *FakeCache) hashSet(key string, fields map[string]string) *cacheEntry {
	e := c.live(key)
	if e == nil || e.fields == nil {
		e = &cacheEntry{fields: make(map[string]string)}
		c.entries[key] = e
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

func (c *FakeCache) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Fail["HashGetAll"]; err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if e := c.live(key); e != nil {
		for k, v := range e.fields {
			out[k] = v
		}
	}
	return out, nil
}

// TTL returns the remaining lifetime of key, or -1 if it has none or is absent
func (c *FakeCache) TTL(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil || e.expiresAt.IsZero() {
		return -1
	}
	return e.expiresAt.Sub(c.now())
}

// noDelay skips the failed-login padding in tests
type noDelay struct{ waits int }

func (d *noDelay) Wait(success bool) {
	if !success {
		d.waits++
	}
}

// serviceFixture wires an AuthService over in-memory fakes and a shared clock
type serviceFixture struct {
	svc        *AuthService
	store      *memoryStore
	accounts   *MockAccountRepository
	characters *MockCharacterRepository
	cache      *FakeCache
	clock      *testClock
	tokens     *auth.TokenManager
	delay      *noDelay
	cfg        AuthConfig
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		MaxLoginAttempts: 5,
		LockoutWindow:    30 * time.Minute,
		TokenLifetime:    24 * time.Hour,
		LobbyHost:        testLobbyHost,
		LobbyPort:        testLobbyPort,
		BcryptCost:       bcrypt.MinCost,
	}
}

func newServiceFixture(cfg AuthConfig) *serviceFixture {
	clock := newTestClock()
	store := newMemoryStore()
	fakeCache := NewFakeCache(clock.Now)

	tokens := auth.NewTokenManager(testSecret, "loginserver", "game-client", cfg.TokenLifetime)
	tokens.SetClock(clock.Now)

	delay := &noDelay{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	accounts := store.Accounts()
	characters := store.Characters()

	svc := NewAuthService(cfg, accounts, characters, fakeCache, tokens, delay, logger, pkglogger.NewAuditLogger(logger))
	svc.SetClock(clock.Now)

	return &serviceFixture{
		svc:        svc,
		store:      store,
		accounts:   accounts,
		characters: characters,
		cache:      fakeCache,
		clock:      clock,
		tokens:     tokens,
		delay:      delay,
		cfg:        cfg,
	}
}
