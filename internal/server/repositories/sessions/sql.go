package sessions

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

const sessionColumns = `s.id, s.user_id, s.token, s.refresh_token, s.previous_refresh_token, s.token_source,
	s.device_info, s.browser, s.operating_system, s.session_type, s.ip_address, s.location, s.user_agent,
	s.login_time, s.last_activity, s.logout_time, s.token_expiry, s.refresh_expiry,
	s.is_active, s.is_two_factor_verified, s.is_remember_me`

var orderBy = map[models.SessionSort]string{
	models.SortNewest:   `s.login_time DESC, s.id DESC`,
	models.SortOldest:   `s.login_time ASC, s.id ASC`,
	models.SortDevice:   `s.device_info ASC, s.login_time DESC, s.id DESC`,
	models.SortLocation: `s.location ASC, s.login_time DESC, s.id DESC`,
}

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

func scanSession(row rowScanner) (*models.LoginSession, error) {
	var (
		s      models.LoginSession
		prev   sql.NullString
		logout sql.NullTime
		source string
		kind   string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.RefreshToken, &prev, &source,
		&s.DeviceInfo, &s.Browser, &s.OperatingSystem, &kind, &s.IPAddress, &s.Location, &s.UserAgent,
		&s.LoginTime, &s.LastActivity, &logout, &s.TokenExpiry, &s.RefreshExpiry,
		&s.IsActive, &s.IsTwoFactorVerified, &s.IsRememberMe)
	if err != nil {
		return nil, err
	}
	if prev.Valid {
		s.PreviousRefreshToken = &prev.String
	}
	if logout.Valid {
		s.LogoutTime = &logout.Time
	}
	s.TokenSource = models.TokenSource(source)
	s.SessionType = models.SessionType(kind)
	return &s, nil
}

func (r *SQLRepository) getOne(ctx context.Context, where string, args ...any) (*models.LoginSession, error) {
	query := r.dialect.Rebind(`SELECT ` + sessionColumns + ` FROM login_sessions s WHERE ` + where)

	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *SQLRepository) list(ctx context.Context, query string, args ...any) ([]models.LoginSession, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.LoginSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	return dbx.ExecAffected(ctx, r.db, r.dialect.Rebind(query), args...)
}

func (r *SQLRepository) Create(ctx context.Context, s *models.LoginSession) (*models.LoginSession, error) {
	query := r.dialect.Rebind(
		`INSERT INTO login_sessions (user_id, token, refresh_token, token_source, device_info, browser,
			operating_system, session_type, ip_address, location, user_agent, login_time, last_activity,
			token_expiry, refresh_expiry, is_active, is_two_factor_verified, is_remember_me)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE, FALSE, ?)
		 RETURNING id`)

	if s.LoginTime.IsZero() {
		s.LoginTime = time.Now()
	}
	s.LoginTime = s.LoginTime.UTC()
	s.LastActivity = s.LoginTime
	s.TokenExpiry = s.TokenExpiry.UTC()
	s.RefreshExpiry = s.RefreshExpiry.UTC()
	if s.TokenSource == "" {
		s.TokenSource = models.TokenSourceLocal
	}
	if s.SessionType == "" {
		s.SessionType = models.SessionTypeWeb
	}

	err := r.db.QueryRowContext(ctx, query,
		s.UserID, s.Token, s.RefreshToken, string(s.TokenSource), s.DeviceInfo, s.Browser,
		s.OperatingSystem, string(s.SessionType), s.IPAddress, s.Location, s.UserAgent, s.LoginTime, s.LastActivity,
		s.TokenExpiry, s.RefreshExpiry, s.IsRememberMe,
	).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	s.IsActive = true
	s.IsTwoFactorVerified = false
	s.LogoutTime = nil
	s.PreviousRefreshToken = nil
	return s, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*models.LoginSession, error) {
	return r.getOne(ctx, `s.id = ?`, id)
}

func (r *SQLRepository) GetByAccessToken(ctx context.Context, token string) (*models.LoginSession, error) {
	return r.getOne(ctx, `s.token = ? AND s.is_active = TRUE`, token)
}

func (r *SQLRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.LoginSession, error) {
	return r.getOne(ctx, `s.refresh_token = ? AND s.is_active = TRUE`, refreshToken)
}

func (r *SQLRepository) GetByPreviousRefreshToken(ctx context.Context, refreshToken string) (*models.LoginSession, error) {
	return r.getOne(ctx, `s.previous_refresh_token = ? AND s.is_active = TRUE ORDER BY s.id DESC LIMIT 1`, refreshToken)
}

func (r *SQLRepository) ListForUser(ctx context.Context, userID int64, f ListFilter) ([]models.LoginSession, int, error) {
	f = f.normalize()

	where := `s.user_id = ?`
	if f.ActiveOnly {
		where += ` AND s.is_active = TRUE`
	}

	var total int
	countQuery := r.dialect.Rebind(`SELECT COUNT(*) FROM login_sessions s WHERE ` + where)
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	items, err := r.list(ctx,
		`SELECT `+sessionColumns+` FROM login_sessions s WHERE `+where+
			` ORDER BY `+orderBy[f.Sort]+` LIMIT ? OFFSET ?`,
		userID, f.PageSize, (f.Page-1)*f.PageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *SQLRepository) ListAllForUser(ctx context.Context, userID int64) ([]models.LoginSession, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM login_sessions s WHERE s.user_id = ? ORDER BY `+orderBy[models.SortNewest],
		userID)
}

func (r *SQLRepository) ListForHotel(ctx context.Context, hotelGUID string, activeOnly bool) ([]models.LoginSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM login_sessions s
		JOIN user_hotels uh ON uh.user_id = s.user_id
		WHERE uh.hotel_guid = ?`
	if activeOnly {
		query += ` AND s.is_active = TRUE`
	}
	query += ` ORDER BY ` + orderBy[models.SortNewest]
	return r.list(ctx, query, hotelGUID)
}

func (r *SQLRepository) TouchActivity(ctx context.Context, id int64, at time.Time) error {
	n, err := r.exec(ctx, `UPDATE login_sessions SET last_activity = ? WHERE id = ? AND is_active = TRUE`, at.UTC(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLRepository) MarkTwoFactorVerified(ctx context.Context, id int64, at time.Time) error {
	n, err := r.exec(ctx,
		`UPDATE login_sessions SET is_two_factor_verified = TRUE, last_activity = ? WHERE id = ? AND is_active = TRUE`,
		at.UTC(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLRepository) Deactivate(ctx context.Context, id int64, at time.Time) error {
	_, err := r.exec(ctx,
		`UPDATE login_sessions SET is_active = FALSE, logout_time = ? WHERE id = ? AND is_active = TRUE`,
		at.UTC(), id)
	return err
}

func (r *SQLRepository) DeactivateAllForUser(ctx context.Context, userID int64, exceptID *int64, at time.Time) (int64, error) {
	query := `UPDATE login_sessions SET is_active = FALSE, logout_time = ? WHERE user_id = ? AND is_active = TRUE`
	args := []any{at.UTC(), userID}
	if exceptID != nil {
		query += ` AND id <> ?`
		args = append(args, *exceptID)
	}
	return r.exec(ctx, query, args...)
}

func (r *SQLRepository) DeactivateInactiveSince(ctx context.Context, cutoff, at time.Time) (int64, error) {
	return r.exec(ctx,
		`UPDATE login_sessions SET is_active = FALSE, logout_time = ? WHERE is_active = TRUE AND last_activity < ?`,
		at.UTC(), cutoff.UTC())
}

func (r *SQLRepository) DeactivateIfRefresh(ctx context.Context, id int64, refreshToken string, at time.Time) error {
	n, err := r.exec(ctx,
		`UPDATE login_sessions SET is_active = FALSE, logout_time = ? WHERE id = ? AND refresh_token = ? AND is_active = TRUE`,
		at.UTC(), id, refreshToken)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *SQLRepository) ClaimRefresh(ctx context.Context, id int64, refreshToken, claim string) error {
	n, err := r.exec(ctx,
		`UPDATE login_sessions SET refresh_token = ? WHERE id = ? AND refresh_token = ? AND is_active = TRUE`,
		claim, id, refreshToken)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *SQLRepository) RotateTokens(ctx context.Context, id int64, previousRefresh string, rot Rotation) error {
	replaces := rot.Replaces
	if replaces == "" {
		replaces = previousRefresh
	}
	n, err := r.exec(ctx,
		`UPDATE login_sessions
		 SET token = ?, refresh_token = ?, previous_refresh_token = ?, token_source = ?,
		     token_expiry = ?, refresh_expiry = ?, last_activity = ?
		 WHERE id = ? AND refresh_token = ? AND is_active = TRUE`,
		rot.Token, rot.RefreshToken, replaces, string(rot.Source),
		rot.TokenExpiry.UTC(), rot.RefreshExpiry.UTC(), rot.At.UTC(),
		id, previousRefresh)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrConflict
	}
	return nil
}
