package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUserName(ctx context.Context, userName string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByUserNameOrEmail(ctx context.Context, userName, email string) (bool, error)

	// UpdateIdentity refreshes the display fields a federated login may
	// change. Role and status are never touched.
	UpdateIdentity(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdateStatus(ctx context.Context, id int64, status models.UserStatus) error
	UpdateAvatar(ctx context.Context, id int64, avatarURL string) error

	// UpdateTwoFactor overwrites the whole two-factor state of a user.
	UpdateTwoFactor(ctx context.Context, id int64, enabled bool, secret, recoveryCodes *string) error
	// ReplaceRecoveryCodes swaps the stored code set only if it still equals
	// expected; common.ErrConflict otherwise.
	ReplaceRecoveryCodes(ctx context.Context, id int64, expected, codes string) error

	SetResetToken(ctx context.Context, id int64, tokenHash string, expiry time.Time) error
	// ConsumeResetToken sets a new password hash for the user holding an
	// unexpired reset token and clears the token in the same statement.
	// Returns the user id, or common.ErrorNotFound.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error)
}
