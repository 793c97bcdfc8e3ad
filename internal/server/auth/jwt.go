// Package auth mints and validates the tokens handed to clients: HS256
// signed access tokens and opaque random refresh tokens.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RefreshTokenSize is the number of random bytes behind a refresh token.
const RefreshTokenSize = 32

// Claims is the typed claim set carried by access tokens. Claim names are a
// contract with downstream consumers.
type Claims struct {
	jwt.RegisteredClaims
	Name     string `json:"name"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	UserType string `json:"userType"`
	Status   string `json:"status"`
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, common.ErrInvalidToken
	}
	return id, nil
}

// Role parses the userType claim.
func (c *Claims) Role() (models.UserType, error) {
	v, err := strconv.Atoi(c.UserType)
	if err != nil {
		return 0, common.ErrInvalidToken
	}
	return models.UserType(v), nil
}

type Config struct {
	SecretKey []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	// Leeway absorbs clock drift between nodes when checking exp.
	Leeway time.Duration
}

type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.SecretKey) == 0 {
		return nil, errors.New("jwt secret key is empty")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// AccessTTL is the lifetime used when IssueAccessToken gets a zero ttl.
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// IssueAccessToken signs a token for user and returns it with its expiry.
func (i *Issuer) IssueAccessToken(user *models.User, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = i.cfg.AccessTTL
	}
	now := i.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Name:     user.UserName,
		Email:    user.Email,
		FullName: user.FullName,
		UserType: user.Role().Claim(),
		Status:   user.Status.String(),
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.SecretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, expiresAt, nil
}

// IssueRefreshToken returns 256 random bits, base64 encoded.
func (i *Issuer) IssueRefreshToken() (string, error) {
	return common.MakeRandBase64String(RefreshTokenSize)
}

// Validate checks signature, algorithm, issuer, audience and expiry.
// Expired tokens yield common.ErrTokenExpired, everything else
// common.ErrInvalidToken.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
		jwt.WithLeeway(i.cfg.Leeway),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}
	if i.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(i.cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return i.cfg.SecretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
