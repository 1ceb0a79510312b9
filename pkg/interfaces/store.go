package interfaces

import (
	"context"
	"time"

	"schedboard/pkg/types"
)

// Store is the persistence collaborator. Each method is transactional on its
// own; there are no multi-entity transactions. Implementations return
// ErrNotFound when the target row is absent and ErrUsernameTaken on unique
// username collisions.
type Store interface {
	// Schedule entries.
	CreateSchedule(ctx context.Context, s *types.Schedule) error
	GetSchedule(ctx context.Context, id string) (*types.Schedule, error)
	ListSchedules(ctx context.Context, date string) ([]*types.Schedule, error)
	ListScheduleDates(ctx context.Context, year, month string) ([]string, error)
	UpdateSchedule(ctx context.Context, s *types.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error

	// User accounts.
	CreateUser(ctx context.Context, u *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	ListStandardUsers(ctx context.Context) ([]*types.User, error)
	UpdateUser(ctx context.Context, u *types.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
	CountActiveSince(ctx context.Context, since time.Time) (privileged, standard int, err error)
}
