package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/id"
)

// CreateUser validates and stores a new user.
// Returns ErrAlreadyExists if the username is taken.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		userID, err := id.Generate(id.PrefixUser)
		if err != nil {
			return err
		}
		user.ID = userID
	}
	if user.CreatedAt.IsZero() {
		user.InitTimestamps()
	}

	if err := s.validate(user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := s.Users.Create(ctx, user.ID, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "user created",
			slog.String("id", user.ID),
			slog.String("username", user.Username),
		)
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.Users.Get(ctx, userID)
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.Users.GetByIndex(ctx, "username", username)
}
