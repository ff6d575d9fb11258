package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/domain"
	domainerrors "github.com/librarycatalog/library-server/internal/errors"
	"github.com/librarycatalog/library-server/internal/store"
)

// Limiter decides whether another attempt from key is allowed.
type Limiter interface {
	Allow(key string) bool
}

// AccountService handles user signup, login and token resolution.
type AccountService struct {
	store      *store.Store
	tokens     *auth.TokenService
	credential *auth.SharedCredential
	limiter    Limiter
	logger     *slog.Logger
}

// NewAccountService creates a new account service. A nil limiter disables rate limiting.
func NewAccountService(
	store *store.Store,
	tokens *auth.TokenService,
	credential *auth.SharedCredential,
	limiter Limiter,
	logger *slog.Logger,
) *AccountService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AccountService{
		store:      store,
		tokens:     tokens,
		credential: credential,
		limiter:    limiter,
		logger:     logger,
	}
}

// CreateUser registers a user. Users have no password of their own.
func (s *AccountService) CreateUser(ctx context.Context, username, favoriteGenre string) (*domain.User, error) {
	user := &domain.User{
		Username:      username,
		FavoriteGenre: favoriteGenre,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		invalid := domainerrors.BadUserInput("Creating the user failed due to validation error").
			WithInvalidArgs(username).
			WithCause(err)
		switch {
		case errors.Is(err, store.ErrInvalidInput):
			return nil, invalid.WithDetails(validationDetails(err))
		case errors.Is(err, store.ErrAlreadyExists):
			return nil, invalid.WithDetails(map[string]string{"username": "is already taken"})
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login checks username and password and returns a signed token.
// The password is checked even for unknown users so both failures cost the same.
func (s *AccountService) Login(ctx context.Context, viewer *auth.Viewer, username, password string) (string, error) {
	key := "unknown"
	if viewer != nil && viewer.RemoteAddr != "" {
		key = viewer.RemoteAddr
	}
	if s.limiter != nil && !s.limiter.Allow(key) {
		s.logger.Warn("login rate limit exceeded", "remote_addr", key)
		return "", domainerrors.TooManyRequests("Too many login attempts, try again later")
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("find user: %w", err)
	}

	passwordOK := s.credential.Verify(password)
	if user == nil || !passwordOK {
		s.logger.Debug("login failed", "username", username, "remote_addr", key)
		return "", domainerrors.BadUserInput("Wrong credentials")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return token, nil
}

// Authenticate resolves a bearer token to its user.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", claims.UserID, err)
	}
	return user, nil
}
