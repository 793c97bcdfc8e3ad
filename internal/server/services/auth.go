// Package services contains the server-side business logic. AuthService
// signs users in against the identity gateway or local credentials and
// drives the session lifecycle; SessionService presents sessions to their
// owners and administrators.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/dbx"
	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/auth"
	"github.com/dmitrijs2005/perfectkey/internal/server/config"
	"github.com/dmitrijs2005/perfectkey/internal/server/devices"
	"github.com/dmitrijs2005/perfectkey/internal/server/gateway"
	"github.com/dmitrijs2005/perfectkey/internal/server/limiter"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/perfectkey/internal/server/totp"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UnknownIP is stored when the transport cannot tell the client address.
const UnknownIP = "Unknown"

// activityResolution bounds how often Authenticate writes last_activity.
const activityResolution = time.Minute

// AuthDeps are the collaborators of AuthService. Gateway may be nil, in
// which case only local credentials are used. Limiter, Locator and Mailer
// default to no-op implementations.
type AuthDeps struct {
	Gateway gateway.Client
	Tokens  *auth.Issuer
	TOTP    *totp.Engine
	Limiter limiter.AttemptLimiter
	Locator devices.Locator
	Mailer  Mailer
	Logger  logging.Logger
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     gateway.Client
	tokens      *auth.Issuer
	totp        *totp.Engine
	limiter     limiter.AttemptLimiter
	locator     devices.Locator
	mailer      Mailer
	logger      logging.Logger

	refreshTTL    time.Duration
	rememberMeTTL time.Duration
	resetTTL      time.Duration
	defaultHotel  string
	tolerance     int

	now func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, deps AuthDeps) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &AuthService{
		db:            db,
		repomanager:   m,
		gateway:       deps.Gateway,
		tokens:        deps.Tokens,
		totp:          deps.TOTP,
		limiter:       deps.Limiter,
		locator:       deps.Locator,
		mailer:        deps.Mailer,
		logger:        logger.With("module", "auth_service"),
		refreshTTL:    cfg.RefreshTokenValidityDuration,
		rememberMeTTL: cfg.RememberMeValidityDuration,
		resetTTL:      cfg.ResetTokenValidityDuration,
		defaultHotel:  cfg.DefaultHotelCode,
		tolerance:     totp.DefaultTolerance,
		now:           time.Now,
	}
	if s.limiter == nil {
		s.limiter = limiter.Nop{}
	}
	if s.locator == nil {
		s.locator = devices.StaticLocator(devices.UnknownLocation)
	}
	if s.mailer == nil {
		s.mailer = NewLogMailer(logger)
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 7 * 24 * time.Hour
	}
	if s.rememberMeTTL < s.refreshTTL {
		s.rememberMeTTL = s.refreshTTL
	}
	if s.resetTTL <= 0 {
		s.resetTTL = 24 * time.Hour
	}
	if s.defaultHotel == "" {
		s.defaultHotel = common.DefaultHotelCode
	}
	return s
}

type tokenPair struct {
	access    string
	refresh   string
	expiresAt time.Time
	source    models.TokenSource
}

// Login authenticates against the identity gateway first and falls back to
// the local password hash when the gateway fails or refuses.
func (s *AuthService) Login(ctx context.Context, userName, password, hotelCode string, meta RequestMeta) (*AuthResult, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" || password == "" {
		return failure(ValidationError, MsgCredentialsRequired), nil
	}
	if hotelCode = strings.TrimSpace(hotelCode); hotelCode == "" {
		hotelCode = s.defaultHotel
	}

	if s.gateway != nil {
		env, err := s.gateway.Login(ctx, userName, password, hotelCode)
		if err == nil {
			return s.loginFederated(ctx, userName, hotelCode, env, meta)
		}
		if errors.Is(err, gateway.ErrUnavailable) {
			s.logger.Warn(ctx, "identity gateway unavailable, using local credentials", "error", err)
		} else {
			s.logger.Info(ctx, "identity gateway refused login, trying local credentials", "error", err)
		}
	}
	return s.loginLocal(ctx, userName, password, meta)
}

func (s *AuthService) loginFederated(ctx context.Context, userName, hotelCode string, env *gateway.TokenEnvelope, meta RequestMeta) (*AuthResult, error) {
	user, err := s.upsertFederatedUser(ctx, userName, hotelCode, env.User)
	if err != nil {
		return nil, err
	}
	if res := accountStateFailure(user); res != nil {
		return res, nil
	}

	pair, err := s.pairFromGateway(ctx, user, env)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user, pair, meta)
}

// pairFromGateway adopts the gateway's token pair. An answer without a
// refresh token cannot be renewed remotely, so the session switches to a
// locally minted pair that this service can verify and renew.
func (s *AuthService) pairFromGateway(ctx context.Context, user *models.User, env *gateway.TokenEnvelope) (tokenPair, error) {
	if env.RefreshToken != "" {
		return tokenPair{access: env.Token, refresh: env.RefreshToken, expiresAt: env.ExpiresAt, source: models.TokenSourceGateway}, nil
	}
	s.logger.Info(ctx, "identity gateway sent no refresh token, minting local tokens", "user_id", user.ID)
	return s.mintLocalPair(user)
}

func (s *AuthService) loginLocal(ctx context.Context, userName, password string, meta RequestMeta) (*AuthResult, error) {
	user, err := s.repomanager.Users(s.db).GetByUserName(ctx, userName)
	if errors.Is(err, common.ErrorNotFound) {
		checkPassword("", password)
		s.logger.Info(ctx, "login rejected", "reason", "unknown user")
		return failure(AuthenticationFailure, MsgInvalidCredentials), nil
	}
	if err != nil {
		return nil, err
	}
	if !checkPassword(user.PasswordHash, password) {
		s.logger.Info(ctx, "login rejected", "user_id", user.ID, "reason", "password mismatch")
		return failure(AuthenticationFailure, MsgInvalidCredentials), nil
	}
	if res := accountStateFailure(user); res != nil {
		return res, nil
	}

	pair, err := s.mintLocalPair(user)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user, pair, meta)
}

// upsertFederatedUser finds or creates the local projection of a gateway
// identity. Display fields follow the gateway; role and status never do.
func (s *AuthService) upsertFederatedUser(ctx context.Context, userName, hotelCode string, id *gateway.Identity) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUserName(ctx, userName)
	if err == nil {
		if id == nil {
			return user, nil
		}
		changed := assign(&user.FullName, id.FullName)
		changed = assign(&user.Email, id.Email) || changed
		changed = assign(&user.HotelCode, firstNonEmpty(id.HotelCode, hotelCode)) || changed
		if changed {
			if err := repo.UpdateIdentity(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	role := models.UserTypeUser
	user = &models.User{
		GUID:      uuid.NewString(),
		UserName:  userName,
		HotelCode: hotelCode,
		UserType:  &role,
		Status:    models.StatusActive,
	}
	if id != nil {
		user.GUID = firstNonEmpty(id.GUID, user.GUID)
		user.FullName = id.FullName
		user.Email = id.Email
		user.AvatarURL = id.AvatarURL
		user.HotelCode = firstNonEmpty(id.HotelCode, hotelCode)
	}

	created, err := repo.Create(ctx, user)
	if err != nil {
		// A concurrent first login may have created the row already.
		if existing, getErr := repo.GetByUserName(ctx, userName); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	s.logger.Info(ctx, "local user created from identity gateway", "user_id", created.ID)
	return created, nil
}

// openSession persists a new session for user and promotes it straight to
// verified when no second factor is required.
func (s *AuthService) openSession(ctx context.Context, user *models.User, pair tokenPair, meta RequestMeta) (*AuthResult, error) {
	now := s.now()
	d := devices.Parse(meta.UserAgent)

	ip, location := meta.IPAddress, devices.UnknownLocation
	if ip == "" {
		ip = UnknownIP
	} else {
		location = s.locator.Locate(ctx, ip)
	}

	refreshTTL := s.refreshTTL
	if meta.RememberMe {
		refreshTTL = s.rememberMeTTL
	}

	sess := &models.LoginSession{
		UserID:          user.ID,
		Token:           pair.access,
		RefreshToken:    pair.refresh,
		TokenSource:     pair.source,
		DeviceInfo:      d.DeviceInfo,
		Browser:         d.Browser,
		OperatingSystem: d.OperatingSystem,
		SessionType:     d.SessionType,
		IPAddress:       ip,
		Location:        location,
		UserAgent:       meta.UserAgent,
		LoginTime:       now,
		TokenExpiry:     pair.expiresAt,
		RefreshExpiry:   now.Add(refreshTTL),
		IsRememberMe:    meta.RememberMe,
	}
	requiresTwoFactor := user.RequiresTwoFactor()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessions := s.repomanager.Sessions(tx)
		if _, err := sessions.Create(ctx, sess); err != nil {
			return err
		}
		if !requiresTwoFactor {
			if err := sessions.MarkTwoFactorVerified(ctx, sess.ID, now); err != nil {
				return err
			}
			sess.IsTwoFactorVerified = true
		}
		return s.repomanager.Users(tx).UpdateLastLogin(ctx, user.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	s.logger.Info(ctx, "login succeeded",
		"user_id", user.ID, "session_id", sess.ID, "source", string(pair.source), "two_factor_required", requiresTwoFactor)

	return &AuthResult{
		Outcome:           succeeded("authentication successful"),
		Token:             sess.Token,
		RefreshToken:      sess.RefreshToken,
		ExpiresAt:         sess.TokenExpiry,
		User:              user,
		SessionID:         sess.ID,
		RequiresTwoFactor: requiresTwoFactor,
		Source:            pair.source,
	}, nil
}

func (s *AuthService) mintLocalPair(user *models.User) (tokenPair, error) {
	access, expiresAt, err := s.tokens.IssueAccessToken(user, 0)
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{access: access, refresh: refresh, expiresAt: expiresAt, source: models.TokenSourceLocal}, nil
}

func (s *AuthService) hotelFor(user *models.User) string {
	if user != nil && user.HotelCode != "" {
		return user.HotelCode
	}
	return s.defaultHotel
}

// Authenticate resolves the caller behind an access token. A nil Principal
// with a nil error means the token does not name a usable session.
// Expired sessions are deactivated on the way.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if accessToken == "" {
		return nil, nil
	}
	sessions := s.repomanager.Sessions(s.db)

	sess, err := sessions.GetByAccessToken(ctx, accessToken)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sess.IsExpired(now) {
		if err := sessions.Deactivate(ctx, sess.ID, now); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "expired session deactivated", "session_id", sess.ID, "user_id", sess.UserID)
		return nil, nil
	}

	// Locally minted tokens are also checked cryptographically. Gateway
	// tokens are signed with a key this service does not hold, so the
	// session row is their authority.
	if sess.TokenSource == models.TokenSourceLocal {
		if _, err := s.tokens.Validate(accessToken); err != nil {
			return nil, nil
		}
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, sess.UserID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.CanSignIn() {
		return nil, nil
	}

	if now.Sub(sess.LastActivity) >= activityResolution {
		if err := sessions.TouchActivity(ctx, sess.ID, now); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
	}

	return &Principal{
		UserID:            user.ID,
		UserName:          user.UserName,
		Email:             user.Email,
		Role:              user.Role(),
		SessionID:         sess.ID,
		TwoFactorRequired: user.RequiresTwoFactor(),
		TwoFactorVerified: sess.IsTwoFactorVerified,
		AccessToken:       accessToken,
	}, nil
}

// ValidateSession reports whether accessToken may be used for protected
// operations: the session is live and, when required, two-factor verified.
func (s *AuthService) ValidateSession(ctx context.Context, accessToken string) (bool, error) {
	p, err := s.Authenticate(ctx, accessToken)
	if err != nil || p == nil {
		return false, err
	}
	return !p.TwoFactorRequired || p.TwoFactorVerified, nil
}

func accountStateFailure(user *models.User) *AuthResult {
	switch user.Status {
	case models.StatusDeleted:
		return failure(AccountStateError, MsgAccountDeleted)
	case models.StatusPending:
		return failure(AccountStateError, MsgAccountPending)
	}
	if !user.CanSignIn() {
		return failure(AccountStateError, "account cannot sign in")
	}
	return nil
}

// dummyPasswordHash keeps the cost of rejecting an unknown user close to
// that of rejecting a wrong password.
var dummyPasswordHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	return h
})

func checkPassword(hash, password string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash(), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func assign(dst *string, v string) bool {
	if v == "" || *dst == v {
		return false
	}
	*dst = v
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sameToken(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
