package models

import "time"

type SessionType string

const (
	SessionTypeWeb    SessionType = "Web"
	SessionTypeMobile SessionType = "Mobile"
	SessionTypeTablet SessionType = "Tablet"
)

// TokenSource records who minted a session's token pair, which decides who
// is asked to refresh it.
type TokenSource string

const (
	TokenSourceGateway TokenSource = "gateway"
	TokenSourceLocal   TokenSource = "local"
)

// SessionSort orders ListForUser results.
type SessionSort string

const (
	SortNewest   SessionSort = "newest"
	SortOldest   SessionSort = "oldest"
	SortDevice   SessionSort = "device"
	SortLocation SessionSort = "location"
)

// ParseSessionSort falls back to SortNewest for anything unknown.
func ParseSessionSort(s string) SessionSort {
	switch SessionSort(s) {
	case SortOldest, SortDevice, SortLocation:
		return SessionSort(s)
	}
	return SortNewest
}

// LongLivedAfter is the session age past which a session counts as long lived.
const LongLivedAfter = 24 * time.Hour

type LoginSession struct {
	ID                   int64
	UserID               int64
	Token                string
	RefreshToken         string
	PreviousRefreshToken *string
	TokenSource          TokenSource
	DeviceInfo           string
	Browser              string
	OperatingSystem      string
	SessionType          SessionType
	IPAddress            string
	Location             string
	UserAgent            string
	LoginTime            time.Time
	LastActivity         time.Time
	LogoutTime           *time.Time
	TokenExpiry          time.Time
	RefreshExpiry        time.Time
	IsActive             bool
	IsTwoFactorVerified  bool
	IsRememberMe         bool
}

// IsExpired reports whether the access token expiry has passed.
func (s *LoginSession) IsExpired(now time.Time) bool {
	return !now.Before(s.TokenExpiry)
}

// Duration is the time from login to logout, or to now while still open.
func (s *LoginSession) Duration(now time.Time) time.Duration {
	end := now
	if s.LogoutTime != nil {
		end = *s.LogoutTime
	}
	return end.Sub(s.LoginTime)
}

func (s *LoginSession) IsLongLived(now time.Time) bool {
	return s.Duration(now) > LongLivedAfter
}
