package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/config"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const presignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// ProfileService manages the avatar of a user. Images live in an S3
// compatible bucket; the user record keeps only the object key.
type ProfileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	logger      logging.Logger
}

func NewProfileService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *ProfileService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ProfileService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger.With("module", "profile_service"),
	}
}

func avatarPrefix(userID int64) string {
	return fmt.Sprintf("avatars/%d/", userID)
}

func (s *ProfileService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// AvatarUploadURL reserves a fresh object key for userID and returns it with
// a presigned PUT url. The key only becomes the avatar after SetAvatar.
func (s *ProfileService) AvatarUploadURL(ctx context.Context, userID int64) (string, string, error) {
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, userID); err != nil {
		return "", "", err
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := avatarPrefix(userID) + uuid.NewString()

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

// SetAvatar stores key as the avatar of userID. Keys outside the user's own
// prefix are refused.
func (s *ProfileService) SetAvatar(ctx context.Context, userID int64, key string) (*Outcome, error) {
	if !strings.HasPrefix(key, avatarPrefix(userID)) || len(key) == len(avatarPrefix(userID)) {
		o := failed(ValidationError, "invalid avatar key")
		return &o, nil
	}

	err := s.repomanager.Users(s.db).UpdateAvatar(ctx, userID, key)
	if errors.Is(err, common.ErrorNotFound) {
		o := failed(ValidationError, MsgUserNotFound)
		return &o, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "avatar updated", "user_id", userID)
	o := succeeded("avatar updated")
	return &o, nil
}

// AvatarURL returns a url the client can display. Absolute urls (set by the
// identity gateway) pass through; object keys are presigned.
func (s *ProfileService) AvatarURL(ctx context.Context, userID int64) (string, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	key := user.AvatarURL
	switch {
	case key == "":
		return "", nil
	case strings.HasPrefix(key, "http://"), strings.HasPrefix(key, "https://"):
		return key, nil
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
