package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"schedboard/internal/auth"
	"schedboard/pkg/interfaces"
	"schedboard/pkg/types"
)

// Coordinator wraps every state-changing operation on schedules and user
// accounts: execute the validated mutation against the store, and only on
// success construct one change event and hand it to the publisher. A
// persistence failure returns before any publish; a publish problem is
// internal to the broadcaster and can never fail a committed mutation.
type Coordinator struct {
	store     interfaces.Store
	publisher interfaces.Publisher
	now       func() time.Time
}

// New creates a mutation coordinator.
func New(store interfaces.Store, publisher interfaces.Publisher) *Coordinator {
	return &Coordinator{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// ScheduleInput carries the client-editable fields of a schedule entry.
type ScheduleInput struct {
	Title        string `json:"title"`
	Date         string `json:"date"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	Participants string `json:"participants"`
}

// UserInput carries the client-editable fields of a user account. Password
// is only consulted on create.
type UserInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// CreateSchedule persists a new entry and broadcasts it.
func (c *Coordinator) CreateSchedule(ctx context.Context, in *ScheduleInput, actorID string) (*types.Schedule, error) {
	now := c.now().UTC()
	s := &types.Schedule{
		ID:           uuid.New().String(),
		Title:        in.Title,
		Date:         in.Date,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		Description:  in.Description,
		Location:     in.Location,
		Participants: in.Participants,
		CreatedBy:    actorID,
		UpdatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := types.ValidateSchedule(s); err != nil {
		return nil, err
	}
	if err := c.store.CreateSchedule(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	c.publish(types.ScheduleCreated(s))
	return s, nil
}

// UpdateSchedule rewrites an existing entry and broadcasts the result.
func (c *Coordinator) UpdateSchedule(ctx context.Context, id string, in *ScheduleInput, actorID string) (*types.Schedule, error) {
	existing, err := c.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	s := &types.Schedule{
		ID:           existing.ID,
		Title:        in.Title,
		Date:         in.Date,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		Description:  in.Description,
		Location:     in.Location,
		Participants: in.Participants,
		CreatedBy:    existing.CreatedBy,
		UpdatedBy:    actorID,
		CreatedAt:    existing.CreatedAt,
		UpdatedAt:    c.now().UTC(),
	}

	if err := types.ValidateSchedule(s); err != nil {
		return nil, err
	}
	if err := c.store.UpdateSchedule(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	c.publish(types.ScheduleUpdated(s))
	return s, nil
}

// DeleteSchedule removes an entry and broadcasts its id.
func (c *Coordinator) DeleteSchedule(ctx context.Context, id string) error {
	if err := c.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}

	c.publish(types.ScheduleDeleted(id))
	return nil
}

// CreateUser persists a new account and broadcasts the sanitized user.
func (c *Coordinator) CreateUser(ctx context.Context, in *UserInput) (*types.User, error) {
	if err := types.ValidateNewUser(in.Username, in.Password, in.Name, in.Role); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	u := &types.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         in.Role,
		LastActive:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	c.publish(types.UserCreated(u))
	return u, nil
}

// UpdateUser rewrites username, name and role of an account and broadcasts
// the sanitized result.
func (c *Coordinator) UpdateUser(ctx context.Context, id string, in *UserInput) (*types.User, error) {
	existing, err := c.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Username != "" {
		if !types.IsValidUsername(in.Username) {
			return nil, fmt.Errorf("%w: invalid username", types.ErrValidation)
		}
		existing.Username = in.Username
	}
	if in.Name != "" {
		existing.Name = in.Name
	}
	if in.Role != "" {
		if !types.IsValidRole(in.Role) {
			return nil, fmt.Errorf("%w: invalid role", types.ErrValidation)
		}
		existing.Role = in.Role
	}
	existing.UpdatedAt = c.now().UTC()

	if err := c.store.UpdateUser(ctx, existing); err != nil {
		return nil, err
	}

	c.publish(types.UserUpdated(existing))
	return existing, nil
}

// DeleteUser removes an account and broadcasts its id.
func (c *Coordinator) DeleteUser(ctx context.Context, id string) error {
	if err := c.store.DeleteUser(ctx, id); err != nil {
		return err
	}

	c.publish(types.UserDeleted(id))
	return nil
}

// ResetPassword replaces an account's credential. No broadcast: credential
// changes are not roster changes and other clients have nothing to update.
func (c *Coordinator) ResetPassword(ctx context.Context, id, newPassword string) error {
	if len(newPassword) < 4 {
		return fmt.Errorf("%w: password must be at least 4 characters", types.ErrValidation)
	}

	if _, err := c.store.GetUser(ctx, id); err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return c.store.UpdatePassword(ctx, id, hash)
}

// ChangeOwnPassword replaces the caller's credential after verifying the
// current one. No broadcast.
func (c *Coordinator) ChangeOwnPassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := c.store.GetUser(ctx, id)
	if err != nil {
		return err
	}

	if !auth.VerifyPassword(currentPassword, user.PasswordHash) {
		return interfaces.ErrInvalidCredentials
	}

	if len(newPassword) < 4 {
		return fmt.Errorf("%w: password must be at least 4 characters", types.ErrValidation)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return c.store.UpdatePassword(ctx, id, hash)
}

// publish hands a committed change to the broadcaster. The panic guard is
// the structural seam that keeps the notify phase from ever reaching back
// into the committed mutation's outcome.
func (c *Coordinator) publish(event *types.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Broadcast publish panicked for %s/%s: %v", event.Type, event.Action, r)
		}
	}()
	c.publisher.Publish(event)
}
