package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"agentchat/internal/model"
	"agentchat/internal/pkg/jwtutil"
	"agentchat/internal/repository"
)

type AuthService struct {
	userRepo *repository.UserRepository
	tokens   *TokenService
}

type LoginInput struct {
	Phone    string
	Password string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *model.User
}

type SuperuserInput struct {
	Name       string
	Email      string
	Phone      string
	Password   string
	CheckExist bool
}

func NewAuthService(userRepo *repository.UserRepository, tokens *TokenService) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// Login issues a refresh/access pair sharing one fresh JTI.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	phone := strings.TrimSpace(input.Phone)
	if phone == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}
	if !user.IsActive() {
		return nil, ErrInactiveUser
	}

	data := TokenData{UserID: user.ID, Phone: user.Phone}
	jti := uuid.NewString()
	access, err := s.tokens.Issue(ctx, data, jti, jwtutil.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(ctx, data, jti, jwtutil.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &AuthResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// Refresh mints a new access token carrying the refresh token's JTI.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Decode(ctx, refreshToken, jwtutil.TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(ctx, TokenData{UserID: claims.UserID, Phone: claims.Phone}, claims.ID, jwtutil.TokenTypeAccess)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Blacklist(ctx, refreshToken)
}

// Authenticate resolves the user behind an access token.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := s.tokens.Decode(ctx, accessToken, jwtutil.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidUser
	}
	if !user.IsActive() {
		return nil, ErrInactiveUser
	}
	return user, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, user *model.User, current, next string) error {
	if user == nil || next == "" {
		return ErrInvalidInput
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	return nil
}

func (s *AuthService) CreateSuperuser(ctx context.Context, input SuperuserInput) (*model.User, error) {
	if input.CheckExist {
		exists, err := s.userRepo.SuperuserExists(ctx)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrSuperuserExists
		}
	}

	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	phone := strings.TrimSpace(input.Phone)
	if name == "" || email == "" || phone == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}
	user := &model.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		IsSuperuser:  true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
