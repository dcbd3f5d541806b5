package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/botdesk/bridge-server-go/internal/config"
	apperrors "github.com/botdesk/bridge-server-go/internal/errors"
	redisclient "github.com/botdesk/bridge-server-go/internal/redis"
	"github.com/botdesk/bridge-server-go/internal/util"
)

// AuthService issues and verifies dashboard bearer tokens. Login tokens live
// in Redis with a TTL; a static API token from config is accepted alongside
// them for service-to-service callers.
type AuthService struct {
	redis        *redisclient.Client
	apiToken     string
	passwordHash string
}

func NewAuthService(redisClient *redisclient.Client, apiToken, passwordHash string) *AuthService {
	return &AuthService{
		redis:        redisClient,
		apiToken:     apiToken,
		passwordHash: passwordHash,
	}
}

// Login checks the dashboard password and returns a fresh bearer token.
func (s *AuthService) Login(ctx context.Context, password string) (string, error) {
	if s.passwordHash == "" {
		return "", apperrors.Unauthorized("Password login is not configured")
	}
	if !util.CheckPasswordHash(password, s.passwordHash) {
		log.Warn().Msg("dashboard login failed: wrong password")
		return "", apperrors.Unauthorized("Invalid password")
	}

	token, err := util.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	key := redisclient.AuthTokenKey(util.HashToken(token))
	if err := s.redis.Set(ctx, key, "1", config.AuthTokenTTL).Err(); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	log.Info().Msg("dashboard login succeeded")
	return token, nil
}

// Verify reports whether a presented token is valid.
func (s *AuthService) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	if s.apiToken != "" && util.ConstantTimeEqual(token, s.apiToken) {
		return true, nil
	}

	key := redisclient.AuthTokenKey(util.HashToken(token))
	n, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return n > 0, nil
}
