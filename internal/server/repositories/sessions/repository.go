// Package sessions persists login sessions, one row per authenticated
// device or browser.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/server/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListFilter selects one page of a user's sessions. Page is 1-based.
type ListFilter struct {
	Page       int
	PageSize   int
	Sort       models.SessionSort
	ActiveOnly bool
}

func (f ListFilter) normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.Sort = models.ParseSessionSort(string(f.Sort))
	return f
}

// Rotation is the replacement token pair written by RotateTokens.
type Rotation struct {
	Token         string
	RefreshToken  string
	TokenExpiry   time.Time
	RefreshExpiry time.Time
	Source        models.TokenSource
	At            time.Time
	// Replaces is recorded as the previous refresh token. Empty means the
	// token the rotation was keyed on.
	Replaces      string
}

type Repository interface {
	// Create inserts s as an active, unverified session and assigns its id.
	Create(ctx context.Context, s *models.LoginSession) (*models.LoginSession, error)
	GetByID(ctx context.Context, id int64) (*models.LoginSession, error)

	// Token lookups only ever match active sessions.
	GetByAccessToken(ctx context.Context, token string) (*models.LoginSession, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*models.LoginSession, error)
	GetByPreviousRefreshToken(ctx context.Context, refreshToken string) (*models.LoginSession, error)

	ListForUser(ctx context.Context, userID int64, f ListFilter) ([]models.LoginSession, int, error)
	ListAllForUser(ctx context.Context, userID int64) ([]models.LoginSession, error)
	ListForHotel(ctx context.Context, hotelGUID string, activeOnly bool) ([]models.LoginSession, error)

	TouchActivity(ctx context.Context, id int64, at time.Time) error
	MarkTwoFactorVerified(ctx context.Context, id int64, at time.Time) error

	// Deactivation is idempotent; the logout time is stamped once.
	Deactivate(ctx context.Context, id int64, at time.Time) error
	DeactivateAllForUser(ctx context.Context, userID int64, exceptID *int64, at time.Time) (int64, error)
	DeactivateInactiveSince(ctx context.Context, cutoff, at time.Time) (int64, error)
	// DeactivateIfRefresh ends the session only while refreshToken is still
	// its current refresh token; otherwise it returns common.ErrConflict.
	DeactivateIfRefresh(ctx context.Context, id int64, refreshToken string, at time.Time) error

	// ClaimRefresh swaps refreshToken for claim on an active session, so at
	// most one caller proceeds with a rotation that involves a remote call.
	// A lost race returns common.ErrConflict.
	ClaimRefresh(ctx context.Context, id int64, refreshToken, claim string) error

	// RotateTokens swaps the token pair only while the stored refresh token
	// still equals previousRefresh on an active session. Otherwise it
	// returns common.ErrConflict and changes nothing.
	RotateTokens(ctx context.Context, id int64, previousRefresh string, r Rotation) error
}
