package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/dbx"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordLength = 72
	MinUserNameLength = 3
	MaxUserNameLength = 50

	generatedPasswordLength = 12
	generatedPasswordChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890!@#$%^&*"
)

type RegisterRequest struct {
	UserName  string
	Password  string
	Email     string
	FullName  string
	HotelCode string
}

// Register creates a local account awaiting approval. The gateway has no
// registration endpoint, so the account exists only here.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	req.UserName = strings.TrimSpace(req.UserName)
	req.Email = strings.TrimSpace(req.Email)

	if msg := validateRegistration(req); msg != "" {
		return failure(ValidationError, msg), nil
	}

	repo := s.repomanager.Users(s.db)
	exists, err := repo.ExistsByUserNameOrEmail(ctx, req.UserName, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return failure(ValidationError, "username or email already exists"), nil
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	role := models.UserTypeUser
	user, err := repo.Create(ctx, &models.User{
		GUID:         uuid.NewString(),
		UserName:     req.UserName,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Email:        req.Email,
		HotelCode:    firstNonEmpty(strings.TrimSpace(req.HotelCode), s.defaultHotel),
		UserType:     &role,
		Status:       models.StatusPending,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user registered", "user_id", user.ID)

	return &AuthResult{
		Outcome: succeeded("registration successful, awaiting approval"),
		User:    user,
	}, nil
}

func validateRegistration(req RegisterRequest) string {
	if n := utf8.RuneCountInString(req.UserName); n < MinUserNameLength || n > MaxUserNameLength {
		return "username must be between 3 and 50 characters"
	}
	if msg := validatePassword(req.Password); msg != "" {
		return msg
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "email address is invalid"
	}
	return ""
}

func validatePassword(p string) string {
	if len(p) < MinPasswordLength {
		return "password must be at least 8 characters"
	}
	if len(p) > MaxPasswordLength {
		return "password must be at most 72 bytes"
	}
	return ""
}

// HashPassword returns the bcrypt hash stored for local credentials.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ForgotPassword issues a single-use reset token when email belongs to an
// account. The outcome is the same whether it does or not.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (*Outcome, error) {
	done := succeeded("if the address is registered, reset instructions have been sent")

	email = strings.TrimSpace(email)
	if email == "" {
		o := failed(ValidationError, "email is required")
		return &o, nil
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return &done, nil
	}
	if err != nil {
		return nil, err
	}
	if user.Status == models.StatusDeleted {
		return &done, nil
	}

	token := uuid.NewString()
	expiresAt := s.now().Add(s.resetTTL)
	if err := repo.SetResetToken(ctx, user.ID, common.HashToken(token), expiresAt); err != nil {
		return nil, err
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token, expiresAt); err != nil {
		s.logger.Warn(ctx, "reset delivery failed", "user_id", user.ID, "error", err)
	}
	return &done, nil
}

// ResetPassword consumes a reset token, replaces the password hash and ends
// every session of the account.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (*Outcome, error) {
	if strings.TrimSpace(token) == "" {
		o := failed(ValidationError, MsgResetTokenInvalid)
		return &o, nil
	}
	if msg := validatePassword(newPassword); msg != "" {
		o := failed(ValidationError, msg)
		return &o, nil
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var userID, ended int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		id, err := s.repomanager.Users(tx).ConsumeResetToken(ctx, common.HashToken(token), hash, now)
		if err != nil {
			return err
		}
		userID = id
		ended, err = s.repomanager.Sessions(tx).DeactivateAllForUser(ctx, id, nil, now)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		o := failed(ValidationError, MsgResetTokenInvalid)
		return &o, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "password reset", "user_id", userID, "sessions_ended", ended)
	o := succeeded("password has been reset")
	return &o, nil
}

// GetUserHotels lists the hotels the gateway assigns to userName. Gateway
// failures yield an empty list.
func (s *AuthService) GetUserHotels(ctx context.Context, userName string) []models.Hotel {
	if s.gateway == nil || strings.TrimSpace(userName) == "" {
		return []models.Hotel{}
	}
	hotels, err := s.gateway.Hotels(ctx, userName)
	if err != nil {
		s.logger.Warn(ctx, "hotel lookup failed", "error", err)
		return []models.Hotel{}
	}
	if hotels == nil {
		hotels = []models.Hotel{}
	}
	return hotels
}

// GeneratePassword returns a random password for accounts created by an
// administrator.
func GeneratePassword() (string, error) {
	max := big.NewInt(int64(len(generatedPasswordChars)))
	b := make([]byte, generatedPasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = generatedPasswordChars[n.Int64()]
	}
	return string(b), nil
}
