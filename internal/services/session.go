package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cliptube/accounts/internal/store"
	"github.com/cliptube/accounts/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	avatarPrefix = "avatars"
	coverPrefix  = "covers"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetRefreshToken(ctx context.Context, id int, token string) error
}

// BlobUploader stores a media file and returns its hosted URL.
type BlobUploader interface {
	Upload(ctx context.Context, prefix, filename string, r io.Reader, size int64, contentType string) (string, error)
}

// FileInput is an uploaded file as received at the transport boundary.
type FileInput struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// RegisterInput carries the registration payload. Avatar is required,
// CoverImage optional.
type RegisterInput struct {
	Fullname   string
	Email      string
	Username   string
	Password   string
	Avatar     *FileInput
	CoverImage *FileInput
}

// LoginInput carries the login payload. At least one of Username and
// Email must be set.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// SessionService orchestrates the account/session lifecycle:
// registration, login, logout, and refresh-token rotation.
type SessionService struct {
	repo     UserRepository
	uploader BlobUploader
	tokens   *TokenService
	events   *Emitter
	log      *zap.Logger
}

// NewSessionService constructs a SessionService. events may be nil when
// no broker is configured.
func NewSessionService(repo UserRepository, uploader BlobUploader, tokens *TokenService, events *Emitter, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{
		repo:     repo,
		uploader: uploader,
		tokens:   tokens,
		events:   events,
		log:      log,
	}
}

// Register creates a new account. The returned user is sanitized: it
// never carries the password hash or a refresh token.
//
// The uniqueness check and the create are not atomic; two concurrent
// registrations with the same identity can both pass the check. The
// database unique constraints make the loser surface as an internal
// error rather than a duplicate row.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.TrimSpace(in.Email)
	fullname := strings.TrimSpace(in.Fullname)

	if username == "" || email == "" || fullname == "" || strings.TrimSpace(in.Password) == "" {
		return types.User{}, validationError("all fields are required")
	}

	if _, err := s.repo.GetByUsernameOrEmail(ctx, username, email); err == nil {
		return types.User{}, conflictError("user already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, internalError("failed to check existing user", err)
	}

	if in.Avatar == nil {
		return types.User{}, validationError("avatar is required")
	}

	avatarURL, err := s.uploader.Upload(ctx, avatarPrefix, in.Avatar.Filename, in.Avatar.Reader, in.Avatar.Size, in.Avatar.ContentType)
	if err != nil {
		return types.User{}, uploadError("avatar upload failed", err)
	}

	coverURL := ""
	if in.CoverImage != nil {
		coverURL, err = s.uploader.Upload(ctx, coverPrefix, in.CoverImage.Filename, in.CoverImage.Reader, in.CoverImage.Size, in.CoverImage.ContentType)
		if err != nil {
			// A failed cover upload is tolerated; the account is
			// created without one.
			s.log.Warn("cover image upload failed", zap.String("username", username), zap.Error(err))
			coverURL = ""
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, internalError("failed to hash password", err)
	}

	created, err := s.repo.Create(ctx, types.User{
		Username:      username,
		Email:         email,
		Fullname:      fullname,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  string(hash),
	})
	if err != nil {
		return types.User{}, internalError("failed to create user", err)
	}

	fetched, err := s.repo.GetByID(ctx, created.ID)
	if err != nil {
		return types.User{}, internalError("failed to load created user", err)
	}

	s.events.Emit(ctx, EventUserRegistered, fetched.ID)
	s.log.Info("user registered", zap.Int("user_id", fetched.ID), zap.String("username", fetched.Username))

	return fetched.Sanitized(), nil
}

// Login verifies credentials and issues a fresh token pair. Issuing
// overwrites the stored refresh token, so a login on one device
// invalidates the refreshable session on any other.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (types.User, types.TokenPair, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.TrimSpace(in.Email)

	if username == "" && email == "" {
		return types.User{}, types.TokenPair{}, validationError("username or email is required")
	}

	user, err := s.repo.GetByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, types.TokenPair{}, notFoundError("user does not exist")
		}
		return types.User{}, types.TokenPair{}, internalError("failed to look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return types.User{}, types.TokenPair{}, unauthorizedError("invalid credentials")
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return types.User{}, types.TokenPair{}, err
	}

	s.events.Emit(ctx, EventSessionStarted, user.ID)

	return user.Sanitized(), pair, nil
}

// Logout revokes the user's refreshable session by clearing the stored
// refresh token.
func (s *SessionService) Logout(ctx context.Context, userID int) error {
	if err := s.repo.SetRefreshToken(ctx, userID, ""); err != nil {
		return internalError("failed to clear refresh token", err)
	}
	s.events.Emit(ctx, EventSessionRevoked, userID)
	return nil
}

// Refresh rotates a refresh token: the supplied token must verify and
// match the single stored token for its user. Presenting an already
// rotated or revoked token fails.
func (s *SessionService) Refresh(ctx context.Context, token string) (types.TokenPair, error) {
	if strings.TrimSpace(token) == "" {
		return types.TokenPair{}, unauthorizedError("unauthorized request")
	}

	userID, err := s.tokens.VerifyRefresh(token)
	if err != nil {
		return types.TokenPair{}, unauthorizedError("invalid refresh token")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.TokenPair{}, unauthorizedError("invalid refresh token")
	}

	if user.RefreshToken == "" || user.RefreshToken != token {
		return types.TokenPair{}, unauthorizedError("refresh token is expired or already used")
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return types.TokenPair{}, err
	}

	s.events.Emit(ctx, EventSessionRefreshed, user.ID)

	return pair, nil
}

// Authenticate resolves an access token to its sanitized user. Any
// failure is unauthorized; callers get no detail on which step failed.
func (s *SessionService) Authenticate(ctx context.Context, token string) (types.User, error) {
	userID, err := s.tokens.VerifyAccess(token)
	if err != nil {
		return types.User{}, unauthorizedError("invalid access token")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, unauthorizedError("invalid access token")
	}

	return user.Sanitized(), nil
}
