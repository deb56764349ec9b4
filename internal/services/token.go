package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cliptube/accounts/config"
	"github.com/cliptube/accounts/types"
	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and verifies the access/refresh token pair.
// Access tokens are stateless; the refresh token is additionally
// persisted on the user record so it can be revoked and so reuse of a
// rotated token is detectable.
type TokenService struct {
	repo          UserRepository
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService constructs a TokenService with the provided dependencies.
func NewTokenService(repo UserRepository, cfg config.AuthConfig) *TokenService {
	return &TokenService{
		repo:          repo,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

// IssuePair signs a new access/refresh token pair for the user and
// persists the refresh token on the user record, overwriting whatever
// token was stored before.
func (s *TokenService) IssuePair(ctx context.Context, userID int) (types.TokenPair, error) {
	access, err := signToken(userID, s.accessSecret, s.accessTTL)
	if err != nil {
		return types.TokenPair{}, internalError("failed to sign access token", err)
	}

	refresh, err := signToken(userID, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return types.TokenPair{}, internalError("failed to sign refresh token", err)
	}

	if err := s.repo.SetRefreshToken(ctx, userID, refresh); err != nil {
		return types.TokenPair{}, internalError("failed to persist refresh token", err)
	}

	return types.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates signature and expiry against the access-token
// secret and returns the embedded user id.
func (s *TokenService) VerifyAccess(token string) (int, error) {
	return parseTokenSubject(token, s.accessSecret)
}

// VerifyRefresh validates signature and expiry against the
// refresh-token secret and returns the embedded user id.
func (s *TokenService) VerifyRefresh(token string) (int, error) {
	return parseTokenSubject(token, s.refreshSecret)
}

func signToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (int, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return 0, unauthorizedError("invalid token")
	}
	if !token.Valid {
		return 0, unauthorizedError("invalid token")
	}
	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return 0, unauthorizedError("invalid token subject")
	}
	return userID, nil
}
