package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"agentchat/internal/model"
	"agentchat/internal/repository"
)

// APIKeyService guards service-to-service routes. Verified keys are kept in
// memory for a short while to spare a query per call.
type APIKeyService struct {
	keyRepo *repository.APIKeyRepository
	cache   *gocache.Cache
}

func NewAPIKeyService(keyRepo *repository.APIKeyRepository, ttl time.Duration) *APIKeyService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &APIKeyService{
		keyRepo: keyRepo,
		cache:   gocache.New(ttl, 2*ttl),
	}
}

// Generate stores a new random key, 32 bytes encoded url-safe.
func (s *APIKeyService) Generate(ctx context.Context) (*model.ApiKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate api key failed: %w", err)
	}
	key := &model.ApiKey{Key: base64.RawURLEncoding.EncodeToString(buf)}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *APIKeyService) Verify(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidAPIKey
	}
	if _, ok := s.cache.Get(key); ok {
		return nil
	}

	found, err := s.keyRepo.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	if found == nil {
		return ErrInvalidAPIKey
	}
	s.cache.SetDefault(key, struct{}{})
	return nil
}
