package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/models"
	"storybook-server/internal/repository"
)

// TokenService issues and verifies the JWT access/refresh pairs that carry a
// session — anonymous and registered accounts use the same token shape.
type TokenService struct {
	cfg    config.JWTConfig
	tokens repository.TokenRepository
	logger *zap.Logger
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg config.JWTConfig, tokens repository.TokenRepository, logger *zap.Logger) *TokenService {
	return &TokenService{
		cfg:    cfg,
		tokens: tokens,
		logger: logger.Named("TokenService"),
	}
}

// IssueTokens creates a new access/refresh pair and registers it in the
// token store.
func (s *TokenService) IssueTokens(ctx context.Context, userID uuid.UUID) (*models.TokenDetails, error) {
	now := time.Now()
	td := &models.TokenDetails{
		AccessUUID:  uuid.NewString(),
		RefreshUUID: uuid.NewString(),
		AtExpires:   now.Add(time.Duration(s.cfg.AccessTTLMinutes) * time.Minute).Unix(),
		RtExpires:   now.Add(time.Duration(s.cfg.RefreshTTLMinutes) * time.Minute).Unix(),
	}

	accessClaims := jwt.MapClaims{
		"sub":         userID.String(),
		"access_uuid": td.AccessUUID,
		"exp":         td.AtExpires,
		"iat":         now.Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	td.AccessToken = access

	refreshClaims := jwt.MapClaims{
		"sub":          userID.String(),
		"refresh_uuid": td.RefreshUUID,
		"exp":          td.RtExpires,
		"iat":          now.Unix(),
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	td.RefreshToken = refresh

	if err := s.tokens.SaveToken(ctx, userID, td); err != nil {
		return nil, err
	}
	return td, nil
}

// VerifyAccess validates an access token and resolves it to the user it was
// issued for. The token must still be present in the token store.
func (s *TokenService) VerifyAccess(ctx context.Context, tokenString string) (uuid.UUID, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	accessUUID, ok := claims["access_uuid"].(string)
	if !ok {
		return uuid.Nil, models.ErrTokenInvalid
	}
	return s.tokens.UserIDByAccess(ctx, accessUUID)
}

// Refresh rotates a refresh token: the old one is revoked and the user ID is
// returned so the caller can issue a fresh pair.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (uuid.UUID, error) {
	claims, err := s.parse(refreshToken)
	if err != nil {
		return uuid.Nil, err
	}
	refreshUUID, ok := claims["refresh_uuid"].(string)
	if !ok {
		return uuid.Nil, models.ErrTokenInvalid
	}
	userID, err := s.tokens.UserIDByRefresh(ctx, refreshUUID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.tokens.DeleteRefresh(ctx, refreshUUID); err != nil {
		s.logger.Warn("Failed to revoke used refresh token", zap.Error(err))
	}
	return userID, nil
}

func (s *TokenService) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrTokenInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}
