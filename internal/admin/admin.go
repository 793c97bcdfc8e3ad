// Package admin implements pkadmin, the operator tool for the perfectkey
// database: schema migrations, account creation and status changes.
package admin

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/dbx"
	"github.com/dmitrijs2005/perfectkey/internal/flagx"
	"github.com/dmitrijs2005/perfectkey/internal/netx"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/perfectkey/internal/server/services"
	"github.com/google/uuid"
)

const (
	CmdMigrate    = "migrate"
	CmdCreateUser = "create-user"
	CmdSetStatus  = "set-status"
	CmdSetAvatar  = "set-avatar"
)

var Commands = []string{CmdMigrate, CmdCreateUser, CmdSetStatus, CmdSetAvatar}

var ErrUsage = errors.New("usage: pkadmin [-c config.json] [-driver pgx|sqlite] [-d dsn] migrate | create-user -name NAME -email EMAIL [-full-name NAME] [-role user|hoteladmin|superadmin] [-hotel-code CODE] | set-status -name NAME -status active|pending|deleted | set-avatar -name NAME -file PATH")

// MaxAvatarSize bounds the image set-avatar will upload.
const MaxAvatarSize = 5 << 20

// AvatarStore reserves upload slots and records avatar keys.
type AvatarStore interface {
	AvatarUploadURL(ctx context.Context, userID int64) (key, url string, err error)
	SetAvatar(ctx context.Context, userID int64, key string) (*services.Outcome, error)
}

type App struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	avatars      AvatarStore
	httpClient   *http.Client
	in           *bufio.Reader
	out          io.Writer
	defaultHotel string
	now          func() time.Time
}

func NewApp(db *sql.DB, m repomanager.RepositoryManager, avatars AvatarStore, defaultHotel string, in io.Reader, out io.Writer) *App {
	return &App{
		db:           db,
		repomanager:  m,
		avatars:      avatars,
		httpClient:   &http.Client{Timeout: time.Minute},
		in:           bufio.NewReader(in),
		out:          out,
		defaultHotel: defaultHotel,
		now:          time.Now,
	}
}

// SplitCommand finds the first known command in args and returns it with
// the arguments that follow it.
func SplitCommand(args []string) (string, []string) {
	_, cmd, rest := flagx.SplitCommand(args, Commands)
	return cmd, rest
}

func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case CmdMigrate:
		return a.Migrate(ctx)
	case CmdCreateUser:
		return a.CreateUser(ctx, args)
	case CmdSetStatus:
		return a.SetStatus(ctx, args)
	case CmdSetAvatar:
		return a.SetAvatar(ctx, args)
	}
	return ErrUsage
}

func (a *App) Migrate(ctx context.Context) error {
	if err := a.repomanager.RunMigrations(ctx, a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(a.out, "Migrations applied")
	return nil
}

func ParseRole(s string) (models.UserType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return models.UserTypeUser, nil
	case "hoteladmin", "hotel-admin":
		return models.UserTypeHotelAdmin, nil
	case "superadmin", "super-admin":
		return models.UserTypeSuperAdmin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func ParseStatus(s string) (models.UserStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return models.StatusActive, nil
	case "pending":
		return models.StatusPending, nil
	case "deleted":
		return models.StatusDeleted, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// CreateUser adds an active local account. Missing fields are prompted
// for; the password is always read from the terminal twice.
func (a *App) CreateUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(CmdCreateUser, flag.ContinueOnError)
	fs.SetOutput(a.out)
	name := fs.String("name", "", "user name")
	email := fs.String("email", "", "email address")
	fullName := fs.String("full-name", "", "full name")
	roleName := fs.String("role", "user", "user|hoteladmin|superadmin")
	hotel := fs.String("hotel-code", a.defaultHotel, "hotel code")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	role, err := ParseRole(*roleName)
	if err != nil {
		return err
	}

	if *name == "" {
		if *name, err = GetSimpleText(a.in, "User name", a.out); err != nil {
			return err
		}
	}
	if *email == "" {
		if *email, err = GetSimpleText(a.in, "Email", a.out); err != nil {
			return err
		}
	}
	if *fullName == "" {
		*fullName = *name
	}

	password, err := a.readNewPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if len(*name) < services.MinUserNameLength || len(*name) > services.MaxUserNameLength {
		return fmt.Errorf("user name must be %d to %d characters", services.MinUserNameLength, services.MaxUserNameLength)
	}
	if len(password) < services.MinPasswordLength || len(password) > services.MaxPasswordLength {
		return fmt.Errorf("password must be %d to %d characters", services.MinPasswordLength, services.MaxPasswordLength)
	}

	repo := a.repomanager.Users(a.db)
	exists, err := repo.ExistsByUserNameOrEmail(ctx, *name, *email)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("user %q or email %q: %w", *name, *email, common.ErrorAlreadyExists)
	}

	hash, err := services.HashPassword(string(password))
	if err != nil {
		return err
	}

	u, err := repo.Create(ctx, &models.User{
		GUID:         uuid.NewString(),
		UserName:     *name,
		PasswordHash: hash,
		Email:        *email,
		FullName:     *fullName,
		HotelCode:    *hotel,
		UserType:     &role,
		Status:       models.StatusActive,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Created user %s (id=%d, role=%s)\n", u.UserName, u.ID, role)
	return nil
}

func (a *App) readNewPassword() ([]byte, error) {
	first, err := GetPassword(a.out, "Enter password")
	if err != nil {
		return nil, err
	}
	second, err := GetPassword(a.out, "Repeat password")
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

// SetStatus changes an account's status. Leaving Active ends all of the
// user's sessions in the same transaction.
func (a *App) SetStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(CmdSetStatus, flag.ContinueOnError)
	fs.SetOutput(a.out)
	name := fs.String("name", "", "user name")
	statusName := fs.String("status", "", "active|pending|deleted")
	if err := fs.Parse(args); err != nil || *name == "" {
		return ErrUsage
	}

	st, err := ParseStatus(*statusName)
	if err != nil {
		return err
	}

	var ended int64
	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := a.repomanager.Users(tx).GetByUserName(ctx, *name)
		if err != nil {
			return err
		}
		if err := a.repomanager.Users(tx).UpdateStatus(ctx, u.ID, st); err != nil {
			return err
		}
		if st != models.StatusActive {
			ended, err = a.repomanager.Sessions(tx).DeactivateAllForUser(ctx, u.ID, nil, a.now())
		}
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("user %q: %w", *name, err)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "User %s is now %s", *name, st)
	if ended > 0 {
		fmt.Fprintf(a.out, ", %d session(s) ended", ended)
	}
	fmt.Fprintln(a.out)
	return nil
}

// SetAvatar uploads an image through a presigned url and makes it the
// user's avatar.
func (a *App) SetAvatar(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(CmdSetAvatar, flag.ContinueOnError)
	fs.SetOutput(a.out)
	name := fs.String("name", "", "user name")
	path := fs.String("file", "", "image file")
	if err := fs.Parse(args); err != nil || *name == "" || *path == "" {
		return ErrUsage
	}
	if a.avatars == nil {
		return errors.New("avatar storage is not configured")
	}

	info, err := os.Stat(*path)
	if err != nil {
		return err
	}
	if info.Size() > MaxAvatarSize {
		return fmt.Errorf("avatar is larger than %d bytes", MaxAvatarSize)
	}
	body, err := os.ReadFile(*path)
	if err != nil {
		return err
	}

	u, err := a.repomanager.Users(a.db).GetByUserName(ctx, *name)
	if err != nil {
		return fmt.Errorf("user %q: %w", *name, err)
	}

	key, url, err := a.avatars.AvatarUploadURL(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := netx.PutPresigned(ctx, a.httpClient, url, mime.TypeByExtension(filepath.Ext(*path)), body); err != nil {
		return err
	}

	o, err := a.avatars.SetAvatar(ctx, u.ID, key)
	if err != nil {
		return err
	}
	if !o.Success {
		return errors.New(o.Message)
	}

	fmt.Fprintf(a.out, "Avatar of %s set to %s\n", u.UserName, key)
	return nil
}
