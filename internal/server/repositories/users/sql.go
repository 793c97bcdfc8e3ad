package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/dbx"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
)

const userColumns = `id, guid, username, password_hash, full_name, email, mobile, avatar_url, hotel_code,
	user_type, status, two_factor_enabled, two_factor_secret, two_factor_recovery_codes,
	reset_token_hash, reset_token_expiry, last_login, created_at, updated_at`

// SQLRepository stores users in PostgreSQL or SQLite.
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u          models.User
		userType   sql.NullInt64
		secret     sql.NullString
		codes      sql.NullString
		resetHash  sql.NullString
		resetUntil sql.NullTime
		lastLogin  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.GUID, &u.UserName, &u.PasswordHash, &u.FullName, &u.Email, &u.Mobile,
		&u.AvatarURL, &u.HotelCode, &userType, &u.Status, &u.TwoFactorEnabled, &secret, &codes,
		&resetHash, &resetUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if userType.Valid {
		t := models.UserType(userType.Int64)
		u.UserType = &t
	}
	u.TwoFactorSecret = nullString(secret)
	u.TwoFactorRecoveryCodes = nullString(codes)
	u.ResetTokenHash = nullString(resetHash)
	u.ResetTokenExpiry = nullTime(resetUntil)
	u.LastLogin = nullTime(lastLogin)
	return &u, nil
}

func (r *SQLRepository) getOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	query := r.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)

	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *SQLRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := r.dialect.Rebind(
		`INSERT INTO users (guid, username, password_hash, full_name, email, mobile, avatar_url, hotel_code,
			user_type, status, two_factor_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`)

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	var userType any
	if user.UserType != nil {
		userType = int64(*user.UserType)
	}

	err := r.db.QueryRowContext(ctx, query,
		user.GUID, user.UserName, user.PasswordHash, user.FullName, user.Email, user.Mobile, user.AvatarURL,
		user.HotelCode, userType, int64(user.Status), user.TwoFactorEnabled, user.CreatedAt.UTC(), user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *SQLRepository) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	return r.getOne(ctx, `username = ?`, userName)
}

func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `email = ? ORDER BY id LIMIT 1`, email)
}

func (r *SQLRepository) ExistsByUserNameOrEmail(ctx context.Context, userName, email string) (bool, error) {
	query := r.dialect.Rebind(`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`)

	var n int64
	if err := r.db.QueryRowContext(ctx, query, userName, email).Scan(&n); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// exec runs an UPDATE expected to touch exactly one row.
func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) error {
	n, err := dbx.ExecAffected(ctx, r.db, r.dialect.Rebind(query), args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLRepository) UpdateIdentity(ctx context.Context, user *models.User) error {
	return r.exec(ctx,
		`UPDATE users SET full_name = ?, email = ?, hotel_code = ?, updated_at = ? WHERE id = ?`,
		user.FullName, user.Email, user.HotelCode, time.Now().UTC(), user.ID)
}

func (r *SQLRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
}

func (r *SQLRepository) UpdateStatus(ctx context.Context, id int64, status models.UserStatus) error {
	return r.exec(ctx, `UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		int64(status), time.Now().UTC(), id)
}

func (r *SQLRepository) UpdateAvatar(ctx context.Context, id int64, avatarURL string) error {
	return r.exec(ctx, `UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		avatarURL, time.Now().UTC(), id)
}

func (r *SQLRepository) UpdateTwoFactor(ctx context.Context, id int64, enabled bool, secret, recoveryCodes *string) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_enabled = ?, two_factor_secret = ?, two_factor_recovery_codes = ?, updated_at = ?
		 WHERE id = ?`,
		enabled, stringArg(secret), stringArg(recoveryCodes), time.Now().UTC(), id)
}

func (r *SQLRepository) ReplaceRecoveryCodes(ctx context.Context, id int64, expected, codes string) error {
	err := r.exec(ctx,
		`UPDATE users SET two_factor_recovery_codes = ?, updated_at = ?
		 WHERE id = ? AND two_factor_recovery_codes = ?`,
		codes, time.Now().UTC(), id, expected)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrConflict
	}
	return err
}

func (r *SQLRepository) SetResetToken(ctx context.Context, id int64, tokenHash string, expiry time.Time) error {
	return r.exec(ctx, `UPDATE users SET reset_token_hash = ?, reset_token_expiry = ? WHERE id = ?`,
		tokenHash, expiry.UTC(), id)
}

func (r *SQLRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error) {
	query := r.dialect.Rebind(
		`UPDATE users SET password_hash = ?, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = ?
		 WHERE reset_token_hash = ? AND reset_token_expiry > ?
		 RETURNING id`)

	now = now.UTC()
	var id int64
	err := r.db.QueryRowContext(ctx, query, passwordHash, now, tokenHash, now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func stringArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
