package services

import (
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/server/models"
)

// FailureKind classifies an unsuccessful AuthResult. Infrastructure
// failures are returned as errors instead.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	AuthenticationFailure FailureKind = "authentication_failure"
	AccountStateError     FailureKind = "account_state_error"
	TwoFactorFailure      FailureKind = "two_factor_failure"
	SessionNotFound       FailureKind = "session_not_found"
	UpstreamUnavailable   FailureKind = "upstream_unavailable"
	ValidationError       FailureKind = "validation_error"
)

// Messages handed back to callers. Credential failures share one message so
// unknown users and wrong passwords look the same.
const (
	MsgInvalidCredentials  = "invalid username or password"
	MsgCredentialsRequired = "username and password are required"
	MsgAccountDeleted      = "account has been deleted"
	MsgAccountPending      = "account is pending approval"
	MsgInvalidCode         = "invalid verification or recovery code"
	MsgTooManyAttempts     = "too many verification attempts, try again later"
	MsgTwoFactorDisabled   = "two-factor authentication is not enabled"
	MsgTwoFactorEnabled    = "two-factor authentication is already enabled"
	MsgTwoFactorNotSetUp   = "two-factor authentication has not been set up"
	MsgSessionNotFound     = "session not found"
	MsgUserNotFound        = "user not found"
	MsgResetTokenInvalid   = "reset token is invalid or expired"
)

// Outcome is the success flag and message every operation reports. Callers
// branch on it rather than on errors.
type Outcome struct {
	Success bool
	Message string
	Failure FailureKind
}

func succeeded(msg string) Outcome {
	return Outcome{Success: true, Message: msg}
}

func failed(kind FailureKind, msg string) Outcome {
	return Outcome{Success: false, Message: msg, Failure: kind}
}

// AuthResult is the envelope returned by login, verification and refresh.
type AuthResult struct {
	Outcome
	Token             string
	RefreshToken      string
	ExpiresAt         time.Time
	User              *models.User
	SessionID         int64
	RequiresTwoFactor bool
	Source            models.TokenSource
}

func failure(kind FailureKind, msg string) *AuthResult {
	return &AuthResult{Outcome: failed(kind, msg)}
}

// RequestMeta describes the client behind a request.
type RequestMeta struct {
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// TwoFactorSetup is returned by the enable and regenerate operations.
type TwoFactorSetup struct {
	Outcome
	Secret        string
	AuthURI       string
	RecoveryCodes []string
}

func setupFailure(kind FailureKind, msg string) *TwoFactorSetup {
	return &TwoFactorSetup{Outcome: failed(kind, msg)}
}

// RecoveryCodeList is returned by the recovery code operations.
type RecoveryCodeList struct {
	Outcome
	Codes []string
}

// Principal is the authenticated caller, built once from a validated access
// token and its session.
type Principal struct {
	UserID            int64
	UserName          string
	Email             string
	Role              models.UserType
	SessionID         int64
	TwoFactorRequired bool
	TwoFactorVerified bool
	AccessToken       string
}

// IsAdmin reports the administrative capability.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role.IsAdmin()
}
