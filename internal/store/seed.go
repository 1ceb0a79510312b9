package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"schedboard/internal/auth"
	"schedboard/pkg/interfaces"
	"schedboard/pkg/types"
)

// EnsureBootstrapAccount creates a privileged account on first run so a
// fresh database is administrable. A no-op when the username already exists
// or when no bootstrap password is configured.
func EnsureBootstrapAccount(ctx context.Context, m *Manager, username, password string) error {
	if password == "" {
		return nil
	}

	_, err := m.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("bootstrap account lookup failed: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user := &types.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Name:         "Administrator",
		Role:         types.RolePrivileged,
		LastActive:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.CreateUser(ctx, user); err != nil {
		if errors.Is(err, interfaces.ErrUsernameTaken) {
			return nil
		}
		return fmt.Errorf("failed to create bootstrap account: %w", err)
	}

	log.Printf("Created bootstrap privileged account: username=%s", username)
	return nil
}
