package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/the-outlaw-004/medai-backend/internal/config"
	"github.com/the-outlaw-004/medai-backend/internal/model"
	"github.com/the-outlaw-004/medai-backend/internal/repository"
)

type memUserStore struct {
	byEmail map[string]*model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{byEmail: make(map[string]*model.User)}
}

func (s *memUserStore) Create(_ context.Context, email, passwordHash string) (*model.User, error) {
	user := &model.User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.byEmail[email] = user
	return user, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

type memTokenStore struct {
	tokens map[uuid.UUID]*model.RefreshToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[uuid.UUID]*model.RefreshToken)}
}

func (s *memTokenStore) Store(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	id := uuid.New()
	s.tokens[id] = &model.RefreshToken{ID: id, UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (s *memTokenStore) ListActive(_ context.Context, userID uuid.UUID) ([]*model.RefreshToken, error) {
	var out []*model.RefreshToken
	for _, t := range s.tokens {
		if t.UserID == userID && t.ExpiresAt.After(time.Now()) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTokenStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.tokens, id)
	return nil
}

func (s *memTokenStore) DeleteForUser(_ context.Context, userID uuid.UUID) error {
	for id, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, id)
		}
	}
	return nil
}

func newTestAuthService() (*AuthService, *memUserStore, *memTokenStore) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	cfg := config.JWTConfig{
		AccessSecret:   "access-secret",
		RefreshSecret:  "refresh-secret",
		AccessExpires:  900,
		RefreshExpires: 3600,
		BcryptCost:     bcrypt.MinCost,
	}
	return NewAuthService(users, tokens, cfg), users, tokens
}

func TestSignupAndLogin(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()

	user, err := svc.Signup(ctx, "a@b.com", "password123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.PasswordHash == "password123" {
		t.Error("password stored in clear")
	}

	tokens, err := svc.Login(ctx, "a@b.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Error("expected both tokens")
	}
}

func TestSignup_EmailTaken(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@b.com", "password123"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Signup(ctx, "a@b.com", "other-password"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()

	if _, err := svc.Login(ctx, "missing@b.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.Signup(ctx, "a@b.com", "password123"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "a@b.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, _, tokenStore := newTestAuthService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@b.com", "password123"); err != nil {
		t.Fatal(err)
	}
	first, err := svc.Login(ctx, "a@b.com", "password123")
	if err != nil {
		t.Fatal(err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == "" {
		t.Error("expected a new refresh token")
	}

	// The spent token must not be accepted again.
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("expected rotation to invalidate old token, got %v", err)
	}

	if len(tokenStore.tokens) != 1 {
		t.Errorf("expected one live token row, got %d", len(tokenStore.tokens))
	}
}

func TestRefresh_RejectsGarbage(t *testing.T) {
	svc, _, _ := newTestAuthService()
	if _, err := svc.Refresh(context.Background(), "garbage"); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("expected ErrInvalidRefresh, got %v", err)
	}
}

func TestLogout_RevokesAll(t *testing.T) {
	svc, _, tokenStore := newTestAuthService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@b.com", "password123"); err != nil {
		t.Fatal(err)
	}
	login, err := svc.Login(ctx, "a@b.com", "password123")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(tokenStore.tokens) != 0 {
		t.Errorf("expected all tokens revoked, got %d", len(tokenStore.tokens))
	}
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("expected ErrInvalidRefresh after logout, got %v", err)
	}
}
