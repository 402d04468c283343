package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/the-outlaw-004/medai-backend/internal/auth"
	"github.com/the-outlaw-004/medai-backend/internal/config"
	"github.com/the-outlaw-004/medai-backend/internal/model"
	"github.com/the-outlaw-004/medai-backend/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRefresh     = errors.New("invalid or expired refresh token")
)

// UserStore is the persistence slice the auth service needs for accounts.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// RefreshTokenStore persists hashed refresh tokens.
type RefreshTokenStore interface {
	Store(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	ListActive(ctx context.Context, userID uuid.UUID) ([]*model.RefreshToken, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}

type AuthService struct {
	users  UserStore
	tokens RefreshTokenStore
	cfg    config.JWTConfig
}

func NewAuthService(users UserStore, tokens RefreshTokenStore, cfg config.JWTConfig) *AuthService {
	return &AuthService{users: users, tokens: tokens, cfg: cfg}
}

func (s *AuthService) Signup(ctx context.Context, email, password string) (*model.User, error) {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return s.users.Create(ctx, email, string(hashed))
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueTokens(ctx, user)
}

// Refresh validates a refresh token, rotates it and returns a fresh pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.LoginResponse, error) {
	claims, err := auth.ValidateToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	stored, err := s.tokens.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	digest := tokenDigest(refreshToken)
	var matched *model.RefreshToken
	for _, t := range stored {
		if bcrypt.CompareHashAndPassword([]byte(t.TokenHash), digest) == nil {
			matched = t
			break
		}
	}
	if matched == nil {
		return nil, ErrInvalidRefresh
	}

	// Rotation: the presented token is spent whether or not issuing succeeds.
	if err := s.tokens.Delete(ctx, matched.ID); err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, &model.User{ID: userID, Email: claims.Email})
}

// Logout revokes every refresh token the user holds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := auth.ValidateToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return ErrInvalidRefresh
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return ErrInvalidRefresh
	}
	return s.tokens.DeleteForUser(ctx, userID)
}

func (s *AuthService) issueTokens(ctx context.Context, user *model.User) (*model.LoginResponse, error) {
	accessTTL := time.Duration(s.cfg.AccessExpires) * time.Second
	refreshTTL := time.Duration(s.cfg.RefreshExpires) * time.Second

	access, err := auth.GenerateToken(user.ID.String(), user.Email, s.cfg.AccessSecret, accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := auth.GenerateToken(user.ID.String(), user.Email, s.cfg.RefreshSecret, refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	// bcrypt rejects inputs over 72 bytes, so hash the token's digest.
	hashed, err := bcrypt.GenerateFromPassword(tokenDigest(refresh), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash refresh token: %w", err)
	}

	if err := s.tokens.Store(ctx, user.ID, string(hashed), time.Now().Add(refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &model.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func tokenDigest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
