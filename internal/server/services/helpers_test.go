package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/dbx"
	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/auth"
	"github.com/dmitrijs2005/perfectkey/internal/server/config"
	"github.com/dmitrijs2005/perfectkey/internal/server/gateway"
	"github.com/dmitrijs2005/perfectkey/internal/server/limiter"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/sqlitetest"
	"github.com/dmitrijs2005/perfectkey/internal/server/totp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeGateway is an in-process gateway.Client. Every answer can be
// overridden per test; by default all calls report the gateway as down.
type fakeGateway struct {
	mu sync.Mutex

	login   func(userName, password, hotelCode string) (*gateway.TokenEnvelope, error)
	refresh func(refreshToken, hotelCode string) (*gateway.TokenEnvelope, error)
	logout  func(refreshToken, hotelCode string) error
	hotels  func(userName string) ([]models.Hotel, error)

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	loggedOut    []string
}

func (f *fakeGateway) Login(_ context.Context, userName, password, hotelCode string) (*gateway.TokenEnvelope, error) {
	f.loginCalls.Add(1)
	if f.login == nil {
		return nil, gateway.ErrUnavailable
	}
	return f.login(userName, password, hotelCode)
}

func (f *fakeGateway) Refresh(_ context.Context, refreshToken, hotelCode string) (*gateway.TokenEnvelope, error) {
	f.refreshCalls.Add(1)
	if f.refresh == nil {
		return nil, gateway.ErrUnavailable
	}
	return f.refresh(refreshToken, hotelCode)
}

func (f *fakeGateway) Logout(_ context.Context, refreshToken, hotelCode string) error {
	f.logoutCalls.Add(1)
	f.mu.Lock()
	f.loggedOut = append(f.loggedOut, refreshToken)
	f.mu.Unlock()
	if f.logout == nil {
		return gateway.ErrUnavailable
	}
	return f.logout(refreshToken, hotelCode)
}

func (f *fakeGateway) Hotels(_ context.Context, userName string) ([]models.Hotel, error) {
	if f.hotels == nil {
		return nil, gateway.ErrUnavailable
	}
	return f.hotels(userName)
}

// gatewayPair answers like a healthy gateway, with fresh tokens per call.
func gatewayPair(id *gateway.Identity) *gateway.TokenEnvelope {
	return &gateway.TokenEnvelope{
		Token:        "gw-access-" + uuid.NewString(),
		RefreshToken: "gw-refresh-" + uuid.NewString(),
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         id,
	}
}

type recordingMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string]string{}
	}
	m.tokens[email] = token
	return nil
}

func (m *recordingMailer) tokenFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type testEnv struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	cfg      *config.Config
	gw       *fakeGateway
	tokens   *auth.Issuer
	totp     *totp.Engine
	mailer   *recordingMailer
	svc      *AuthService
	sessions *SessionService
}

type envOption func(*AuthDeps)

func withoutGateway() envOption {
	return func(d *AuthDeps) { d.Gateway = nil }
}

func withLimiter(l limiter.AttemptLimiter) envOption {
	return func(d *AuthDeps) { d.Limiter = l }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db := sqlitetest.Open(t)
	rm := repomanager.NewSQLRepositoryManager(dbx.DialectSQLite)

	cfg := &config.Config{}
	cfg.LoadDefaults()

	issuer, err := auth.NewIssuer(auth.Config{
		SecretKey: []byte("test-secret-key-0123456789abcdef"),
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		AccessTTL: time.Hour,
	})
	require.NoError(t, err)

	env := &testEnv{
		db:     db,
		rm:     rm,
		cfg:    cfg,
		gw:     &fakeGateway{},
		tokens: issuer,
		totp:   totp.NewEngine(cfg.AppName),
		mailer: &recordingMailer{},
	}

	deps := AuthDeps{
		Gateway: env.gw,
		Tokens:  issuer,
		TOTP:    env.totp,
		Mailer:  env.mailer,
		Logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.svc = NewAuthService(db, rm, cfg, deps)
	env.sessions = NewSessionService(db, rm, logging.Discard())
	return env
}

type newUser struct {
	name     string
	password string
	email    string
	role     models.UserType
	status   models.UserStatus
}

func (e *testEnv) createUser(t *testing.T, u newUser) *models.User {
	t.Helper()

	hash := ""
	if u.password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(h)
	}
	if u.email == "" {
		u.email = u.name + "@example.com"
	}
	role := u.role

	created, err := e.rm.Users(e.db).Create(context.Background(), &models.User{
		GUID:         uuid.NewString(),
		UserName:     u.name,
		PasswordHash: hash,
		Email:        u.email,
		FullName:     "Test " + u.name,
		HotelCode:    "PERFECT.KEY",
		UserType:     &role,
		Status:       u.status,
	})
	require.NoError(t, err)
	return created
}

// enableTwoFactor switches two-factor on for user and returns the secret and
// recovery codes.
func (e *testEnv) enableTwoFactor(t *testing.T, userID int64) (string, []string) {
	t.Helper()
	setup, err := e.svc.AdminEnableTwoFactor(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, setup.Success)
	return setup.Secret, setup.RecoveryCodes
}

func (e *testEnv) currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := e.totp.CodeAt(secret, time.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a six digit code outside the accepted window.
func (e *testEnv) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	now := time.Now()
	for i := 0; i < 1000; i++ {
		c := fmt.Sprintf("%06d", (i*7919)%1000000)
		if !e.totp.ValidateCodeAt(secret, c, now, 1) {
			return c
		}
	}
	t.Fatal("no invalid code found")
	return ""
}

func (e *testEnv) loadSession(t *testing.T, id int64) *models.LoginSession {
	t.Helper()
	s, err := e.rm.Sessions(e.db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (e *testEnv) user(t *testing.T, id int64) *models.User {
	t.Helper()
	u, err := e.rm.Users(e.db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

var webMeta = RequestMeta{
	IPAddress: "203.0.113.10",
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}
