package auth

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer(Config{
		SecretKey: []byte("super-secret"),
		Issuer:    "perfectkey",
		Audience:  "perfectkey-clients",
		AccessTTL: time.Hour,
	})
	require.NoError(t, err)
	return i
}

func testUser() *models.User {
	role := models.UserTypeHotelAdmin
	return &models.User{
		ID:       42,
		UserName: "alice",
		Email:    "alice@example.com",
		FullName: "Alice Liddell",
		UserType: &role,
		Status:   models.StatusActive,
	}
}

func TestIssueAndValidate_Success(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)

	tok, exp, err := i.IssueAccessToken(testUser(), 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := i.Validate(tok)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "alice", claims.Name)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice Liddell", claims.FullName)
	assert.Equal(t, "0", claims.UserType)
	assert.Equal(t, "Active", claims.Status)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, "perfectkey", claims.Issuer)

	role, err := claims.Role()
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeHotelAdmin, role)
}

func TestIssueAccessToken_UniqueTokenIDs(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)

	a, _, err := i.IssueAccessToken(testUser(), time.Minute)
	require.NoError(t, err)
	b, _, err := i.IssueAccessToken(testUser(), time.Minute)
	require.NoError(t, err)

	ca, err := i.Validate(a)
	require.NoError(t, err)
	cb, err := i.Validate(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestIssueAccessToken_UnsetRoleIsUser(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	u := testUser()
	u.UserType = nil

	tok, _, err := i.IssueAccessToken(u, time.Minute)
	require.NoError(t, err)
	claims, err := i.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.UserType)
}

func TestValidate_Expired(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	i.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, _, err := i.IssueAccessToken(testUser(), time.Hour)
	require.NoError(t, err)

	i.now = time.Now
	_, err = i.Validate(tok)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestValidate_WrongSecret(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	tok, _, err := i.IssueAccessToken(testUser(), time.Hour)
	require.NoError(t, err)

	other, err := NewIssuer(Config{SecretKey: []byte("other"), Issuer: "perfectkey", Audience: "perfectkey-clients"})
	require.NoError(t, err)
	_, err = other.Validate(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_WrongIssuerOrAudience(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	tok, _, err := i.IssueAccessToken(testUser(), time.Hour)
	require.NoError(t, err)

	wrongIss, err := NewIssuer(Config{SecretKey: []byte("super-secret"), Issuer: "someone-else", Audience: "perfectkey-clients"})
	require.NoError(t, err)
	_, err = wrongIss.Validate(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	wrongAud, err := NewIssuer(Config{SecretKey: []byte("super-secret"), Issuer: "perfectkey", Audience: "mobile"})
	require.NoError(t, err)
	_, err = wrongAud.Validate(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_RejectsUnsignedAndForeignAlgorithms(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    "perfectkey",
			Audience:  jwt.ClaimStrings{"perfectkey-clients"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserType: "2",
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = i.Validate(none)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)
	_, err = i.Validate(hs512)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_RequiresExpiry(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  "42",
		Issuer:   "perfectkey",
		Audience: jwt.ClaimStrings{"perfectkey-clients"},
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = i.Validate(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	for _, s := range []string{"", "not.a.jwt", "abc"} {
		_, err := i.Validate(s)
		assert.ErrorIs(t, err, common.ErrInvalidToken, s)
	}
}

func TestIssueRefreshToken(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)

	a, err := i.IssueRefreshToken()
	require.NoError(t, err)
	b, err := i.IssueRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	raw, err := base64.StdEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, RefreshTokenSize)
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer(Config{})
	assert.Error(t, err)
}

func TestClaims_BadSubject(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}, UserType: "x"}
	_, err := c.UserID()
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	_, err = c.Role()
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
