package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/server/limiter"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/totp"
)

// recoveryRetries bounds the re-read loop when two requests race on the
// same recovery code set.
const recoveryRetries = 3

// checkSecondFactor returns nil when code is a valid TOTP code or, if
// allowRecovery is set, an unused recovery code, which is consumed.
// Otherwise it returns the rejection to hand back to the caller.
func (s *AuthService) checkSecondFactor(ctx context.Context, user *models.User, code string, allowRecovery bool) (*Outcome, error) {
	if err := s.limiter.Check(ctx, user.ID); err != nil {
		if errors.Is(err, limiter.ErrLimited) {
			s.logger.Warn(ctx, "second factor locked out", "user_id", user.ID)
			o := failed(TwoFactorFailure, MsgTooManyAttempts)
			return &o, nil
		}
		s.logger.Warn(ctx, "attempt limiter unavailable", "user_id", user.ID, "error", err)
	}

	ok, err := s.matchSecondFactor(ctx, user, strings.TrimSpace(code), allowRecovery)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.limiter.RecordFailure(ctx, user.ID); err != nil && !errors.Is(err, limiter.ErrLimited) {
			s.logger.Warn(ctx, "attempt limiter unavailable", "user_id", user.ID, "error", err)
		}
		s.logger.Info(ctx, "second factor rejected", "user_id", user.ID)
		o := failed(TwoFactorFailure, MsgInvalidCode)
		return &o, nil
	}

	if err := s.limiter.Reset(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "attempt limiter unavailable", "user_id", user.ID, "error", err)
	}
	return nil, nil
}

func (s *AuthService) matchSecondFactor(ctx context.Context, user *models.User, code string, allowRecovery bool) (bool, error) {
	if user.TwoFactorSecret != nil && s.totp.ValidateCode(*user.TwoFactorSecret, code, s.tolerance) {
		return true, nil
	}
	if !allowRecovery {
		return false, nil
	}
	return s.consumeRecoveryCode(ctx, user.ID, user.TwoFactorRecoveryCodes, code)
}

// consumeRecoveryCode removes code from the stored set with a conditional
// update, so of two concurrent attempts with the same code only one wins.
func (s *AuthService) consumeRecoveryCode(ctx context.Context, userID int64, stored *string, code string) (bool, error) {
	repo := s.repomanager.Users(s.db)

	for range recoveryRetries {
		if stored == nil {
			return false, nil
		}
		ok, rest := totp.ConsumeRecoveryCode(totp.ParseRecoveryCodes(*stored), code)
		if !ok {
			return false, nil
		}

		err := repo.ReplaceRecoveryCodes(ctx, userID, *stored, totp.JoinRecoveryCodes(rest))
		if err == nil {
			s.logger.Info(ctx, "recovery code consumed", "user_id", userID, "remaining", len(rest))
			return true, nil
		}
		if !errors.Is(err, common.ErrConflict) {
			return false, err
		}

		fresh, err := repo.GetByID(ctx, userID)
		if err != nil {
			return false, err
		}
		stored = fresh.TwoFactorRecoveryCodes
	}
	return false, nil
}

// EnableTwoFactor stores a new secret and recovery codes without switching
// two-factor on. ConfirmEnableTwoFactor does that once the user proves the
// authenticator works.
func (s *AuthService) EnableTwoFactor(ctx context.Context, userID int64) (*TwoFactorSetup, error) {
	user, res, err := s.loadUser(ctx, userID)
	if err != nil || res != nil {
		return setupFrom(res), err
	}
	if user.TwoFactorEnabled {
		return setupFailure(ValidationError, MsgTwoFactorEnabled), nil
	}

	setup, err := s.issueSetup(ctx, user, false)
	if err != nil {
		return nil, err
	}
	setup.Outcome = succeeded("scan the code and confirm with a verification code")
	return setup, nil
}

func (s *AuthService) ConfirmEnableTwoFactor(ctx context.Context, userID int64, code string) (*Outcome, error) {
	user, res, err := s.loadUser(ctx, userID)
	if err != nil || res != nil {
		return res, err
	}
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		o := failed(ValidationError, MsgTwoFactorNotSetUp)
		return &o, nil
	}
	if user.TwoFactorEnabled {
		o := failed(ValidationError, MsgTwoFactorEnabled)
		return &o, nil
	}

	rejected, err := s.checkSecondFactor(ctx, user, code, false)
	if err != nil || rejected != nil {
		return rejected, err
	}

	err = s.repomanager.Users(s.db).UpdateTwoFactor(ctx, user.ID, true, user.TwoFactorSecret, user.TwoFactorRecoveryCodes)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "two-factor enabled", "user_id", user.ID)
	o := succeeded("two-factor authentication enabled")
	return &o, nil
}

// DisableTwoFactor requires a valid TOTP or recovery code and then clears
// the secret, the codes and the flag.
func (s *AuthService) DisableTwoFactor(ctx context.Context, userID int64, code string) (*Outcome, error) {
	user, res, err := s.loadUser(ctx, userID)
	if err != nil || res != nil {
		return res, err
	}
	if !user.RequiresTwoFactor() {
		o := failed(ValidationError, MsgTwoFactorDisabled)
		return &o, nil
	}

	rejected, err := s.checkSecondFactor(ctx, user, code, true)
	if err != nil || rejected != nil {
		return rejected, err
	}
	return s.clearTwoFactor(ctx, user.ID, "two-factor disabled")
}

// RegenerateTwoFactor re-issues the setup URI of an enabled account. The
// secret is not rotated.
func (s *AuthService) RegenerateTwoFactor(ctx context.Context, userID int64) (*TwoFactorSetup, error) {
	user, res, err := s.loadUser(ctx, userID)
	if err != nil || res != nil {
		return setupFrom(res), err
	}
	if !user.RequiresTwoFactor() {
		return setupFailure(ValidationError, MsgTwoFactorDisabled), nil
	}

	var codes []string
	if user.TwoFactorRecoveryCodes != nil {
		codes = totp.ParseRecoveryCodes(*user.TwoFactorRecoveryCodes)
	}
	return &TwoFactorSetup{
		Outcome:       succeeded("setup code regenerated"),
		Secret:        *user.TwoFactorSecret,
		AuthURI:       s.totp.AuthURI(accountLabel(user), *user.TwoFactorSecret),
		RecoveryCodes: codes,
	}, nil
}

func (s *AuthService) GetRecoveryCodes(ctx context.Context, userID int64) (*RecoveryCodeList, error) {
	user, res, err := s.loadUser(ctx, userID)
	if err != nil || res != nil {
		return codesFrom(res), err
	}
	list := &RecoveryCodeList{Outcome: succeeded("")}
	if user.TwoFactorRecoveryCodes != nil {
		list.Codes = totp.ParseRecoveryCodes(*user.TwoFactorRecoveryCodes)
	}
	return list, nil
}

// GenerateNewRecoveryCodes replaces the whole code set after checking a
// TOTP code.
func (s *AuthService) GenerateNewRecoveryCodes(ctx context.Context, userID int64, code string) (*RecoveryCodeList, error) {
	user, res, err := s.loadUser(ctx, userID)
	if err != nil || res != nil {
		return codesFrom(res), err
	}
	if !user.RequiresTwoFactor() {
		return &RecoveryCodeList{Outcome: failed(ValidationError, MsgTwoFactorDisabled)}, nil
	}

	rejected, err := s.checkSecondFactor(ctx, user, code, false)
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return &RecoveryCodeList{Outcome: *rejected}, nil
	}
	return s.replaceRecoveryCodes(ctx, user)
}

// Admin variants act on another account without a code check. The caller's
// administrative capability is enforced by the transport.

// AdminEnableTwoFactor provisions a fresh secret and switches two-factor on
// immediately, replacing any previous setup.
func (s *AuthService) AdminEnableTwoFactor(ctx context.Context, targetUserID int64) (*TwoFactorSetup, error) {
	user, res, err := s.loadUser(ctx, targetUserID)
	if err != nil || res != nil {
		return setupFrom(res), err
	}
	setup, err := s.issueSetup(ctx, user, true)
	if err != nil {
		return nil, err
	}
	setup.Outcome = succeeded("two-factor enabled by administrator")
	s.logger.Info(ctx, "two-factor enabled by administrator", "user_id", user.ID)
	return setup, nil
}

// AdminConfirmEnableTwoFactor switches two-factor on, provisioning a secret
// first when the account has none.
func (s *AuthService) AdminConfirmEnableTwoFactor(ctx context.Context, targetUserID int64) (*Outcome, error) {
	user, res, err := s.loadUser(ctx, targetUserID)
	if err != nil || res != nil {
		return res, err
	}
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		if _, err := s.issueSetup(ctx, user, true); err != nil {
			return nil, err
		}
	} else if err := s.repomanager.Users(s.db).UpdateTwoFactor(ctx, user.ID, true, user.TwoFactorSecret, user.TwoFactorRecoveryCodes); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "two-factor enabled by administrator", "user_id", user.ID)
	o := succeeded("two-factor enabled by administrator")
	return &o, nil
}

func (s *AuthService) AdminDisableTwoFactor(ctx context.Context, targetUserID int64) (*Outcome, error) {
	if _, res, err := s.loadUser(ctx, targetUserID); err != nil || res != nil {
		return res, err
	}
	return s.clearTwoFactor(ctx, targetUserID, "two-factor disabled by administrator")
}

func (s *AuthService) AdminRegenerateTwoFactor(ctx context.Context, targetUserID int64) (*TwoFactorSetup, error) {
	return s.RegenerateTwoFactor(ctx, targetUserID)
}

func (s *AuthService) AdminGetRecoveryCodes(ctx context.Context, targetUserID int64) (*RecoveryCodeList, error) {
	return s.GetRecoveryCodes(ctx, targetUserID)
}

func (s *AuthService) AdminGenerateRecoveryCodes(ctx context.Context, targetUserID int64) (*RecoveryCodeList, error) {
	user, res, err := s.loadUser(ctx, targetUserID)
	if err != nil || res != nil {
		return codesFrom(res), err
	}
	if !user.RequiresTwoFactor() {
		return &RecoveryCodeList{Outcome: failed(ValidationError, MsgTwoFactorDisabled)}, nil
	}
	return s.replaceRecoveryCodes(ctx, user)
}

func (s *AuthService) issueSetup(ctx context.Context, user *models.User, enabled bool) (*TwoFactorSetup, error) {
	secret, err := s.totp.NewSecret()
	if err != nil {
		return nil, err
	}
	codes, err := s.totp.GenerateRecoveryCodes(totp.DefaultRecoveryCodes)
	if err != nil {
		return nil, err
	}
	stored := totp.JoinRecoveryCodes(codes)

	if err := s.repomanager.Users(s.db).UpdateTwoFactor(ctx, user.ID, enabled, &secret, &stored); err != nil {
		return nil, err
	}
	return &TwoFactorSetup{
		Secret:        secret,
		AuthURI:       s.totp.AuthURI(accountLabel(user), secret),
		RecoveryCodes: codes,
	}, nil
}

func (s *AuthService) replaceRecoveryCodes(ctx context.Context, user *models.User) (*RecoveryCodeList, error) {
	codes, err := s.totp.GenerateRecoveryCodes(totp.DefaultRecoveryCodes)
	if err != nil {
		return nil, err
	}
	stored := totp.JoinRecoveryCodes(codes)
	if err := s.repomanager.Users(s.db).UpdateTwoFactor(ctx, user.ID, true, user.TwoFactorSecret, &stored); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "recovery codes regenerated", "user_id", user.ID)
	return &RecoveryCodeList{Outcome: succeeded("recovery codes regenerated"), Codes: codes}, nil
}

func (s *AuthService) clearTwoFactor(ctx context.Context, userID int64, msg string) (*Outcome, error) {
	if err := s.repomanager.Users(s.db).UpdateTwoFactor(ctx, userID, false, nil, nil); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, msg, "user_id", userID)
	o := succeeded(msg)
	return &o, nil
}

// loadUser returns either the user or a not-found outcome.
func (s *AuthService) loadUser(ctx context.Context, userID int64) (*models.User, *Outcome, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		o := failed(ValidationError, MsgUserNotFound)
		return nil, &o, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return user, nil, nil
}

func setupFrom(o *Outcome) *TwoFactorSetup {
	if o == nil {
		return nil
	}
	return &TwoFactorSetup{Outcome: *o}
}

func codesFrom(o *Outcome) *RecoveryCodeList {
	if o == nil {
		return nil
	}
	return &RecoveryCodeList{Outcome: *o}
}

// accountLabel is the account name shown in authenticator apps.
func accountLabel(user *models.User) string {
	return firstNonEmpty(user.Email, user.UserName)
}
