package app

import (
	"context"
	"errors"
	"time"

	"agentchat/internal/model"
	"agentchat/internal/pkg/jwtutil"
	"agentchat/internal/repository"
)

// TokenData is the identity embedded into issued tokens.
type TokenData struct {
	UserID uint
	Phone  string
}

type TokenService struct {
	tokenRepo  *repository.UserTokenRepository
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(tokenRepo *repository.UserTokenRepository, secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		tokenRepo:  tokenRepo,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue signs a token of the given type. Refresh tokens are recorded so they
// can later be validated and blacklisted by JTI.
func (s *TokenService) Issue(ctx context.Context, data TokenData, jti string, typ jwtutil.TokenType) (string, error) {
	ttl := s.accessTTL
	if typ == jwtutil.TokenTypeRefresh {
		ttl = s.refreshTTL
	}

	token, expiresAt, err := jwtutil.GenerateToken(s.secret, ttl, data.UserID, data.Phone, jti, typ)
	if err != nil {
		return "", err
	}
	if typ != jwtutil.TokenTypeRefresh {
		return token, nil
	}

	record := &model.UserToken{JTI: jti, UserID: data.UserID, ExpiresAt: expiresAt}
	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return "", err
	}
	return token, nil
}

// Decode validates signature, expiry and type, then checks the token's JTI
// against the stored refresh records.
func (s *TokenService) Decode(ctx context.Context, token string, expected jwtutil.TokenType) (*jwtutil.Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != expected {
		return nil, ErrTokenTypeMismatch
	}

	blacklisted, err := s.CheckBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, ErrTokenRevoked
	}

	var owner uint
	if expected == jwtutil.TokenTypeAccess {
		owner = claims.UserID
	}
	live, err := s.tokenRepo.GetLive(ctx, claims.ID, owner)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (s *TokenService) Blacklist(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	blacklisted, err := s.CheckBlacklisted(ctx, claims.ID)
	if err != nil {
		return err
	}
	if blacklisted {
		return ErrTokenRevoked
	}

	ok, err := s.tokenRepo.Blacklist(ctx, claims.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenMalformed
	}
	return nil
}

func (s *TokenService) CheckBlacklisted(ctx context.Context, jti string) (bool, error) {
	return s.tokenRepo.IsBlacklisted(ctx, jti)
}

func (s *TokenService) parse(token string) (*jwtutil.Claims, error) {
	claims, err := jwtutil.ParseToken(s.secret, token)
	switch {
	case errors.Is(err, jwtutil.ErrExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
