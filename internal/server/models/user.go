package models

import (
	"strconv"
	"time"
)

// UserStatus is the lifecycle state of an account. Accounts are never hard
// deleted; they move to StatusDeleted.
type UserStatus int

const (
	StatusDeleted UserStatus = -1
	StatusActive  UserStatus = 0
	StatusPending UserStatus = 1
)

func (s UserStatus) String() string {
	switch s {
	case StatusDeleted:
		return "Deleted"
	case StatusActive:
		return "Active"
	case StatusPending:
		return "Pending"
	}
	return "Unknown"
}

// UserType is the locally owned role of an account.
type UserType int

const (
	UserTypeHotelAdmin UserType = 0
	UserTypeUser       UserType = 1
	UserTypeSuperAdmin UserType = 2
)

// Claim renders the role the way it travels in access token claims.
func (t UserType) Claim() string {
	return strconv.Itoa(int(t))
}

func (t UserType) String() string {
	switch t {
	case UserTypeHotelAdmin:
		return "HotelAdmin"
	case UserTypeUser:
		return "User"
	case UserTypeSuperAdmin:
		return "SuperAdmin"
	}
	return "Unknown"
}

// IsAdmin reports whether the role carries the administrative capability.
func (t UserType) IsAdmin() bool {
	return t == UserTypeHotelAdmin || t == UserTypeSuperAdmin
}

type User struct {
	ID                     int64
	GUID                   string
	UserName               string
	PasswordHash           string
	FullName               string
	Email                  string
	Mobile                 string
	AvatarURL              string
	HotelCode              string
	UserType               *UserType
	Status                 UserStatus
	TwoFactorEnabled       bool
	TwoFactorSecret        *string
	TwoFactorRecoveryCodes *string
	ResetTokenHash         *string
	ResetTokenExpiry       *time.Time
	LastLogin              *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Role returns the stored role, treating an unset role as a plain user.
func (u *User) Role() UserType {
	if u.UserType == nil {
		return UserTypeUser
	}
	return *u.UserType
}

// RequiresTwoFactor reports whether logins must be promoted by a second factor.
func (u *User) RequiresTwoFactor() bool {
	return u.TwoFactorEnabled && u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// CanSignIn is false for Deleted and Pending accounts.
func (u *User) CanSignIn() bool {
	return u.Status == StatusActive
}
