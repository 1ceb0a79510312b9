package types

import (
	"time"
)

// Roles carried by user accounts and session tokens. A privileged account
// can mutate schedules and manage other accounts; a standard account can
// only read.
const (
	RoleStandard   = "standard"
	RolePrivileged = "privileged"
)

// Change event type tags as they appear on the wire.
const (
	EventScheduleUpdate = "schedule_update"
	EventUserUpdate     = "user_update"
)

// Change event actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// User is an authenticated principal. PasswordHash never leaves the server:
// it is excluded from JSON and must be blanked before a User is handed to
// the broadcaster or any HTTP response.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	LastActive   time.Time `json:"last_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sanitized returns a copy safe for serialization.
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// IsPrivileged reports whether the user may perform privileged operations.
func (u *User) IsPrivileged() bool {
	return u.Role == RolePrivileged
}

// Schedule is one entry in the shared schedule. Date and times are stored as
// strings ("2006-01-02", "15:04") because clients query and render them as
// opaque day/time labels, never as instants.
type Schedule struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Date         string    `json:"date"`
	StartTime    string    `json:"startTime"`
	EndTime      string    `json:"endTime"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	Participants string    `json:"participants"`
	CreatedBy    string    `json:"createdBy"`
	UpdatedBy    string    `json:"updatedBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ChangeEvent describes one committed mutation. It is constructed by the
// mutation coordinator after the store reports success, handed to the
// broadcaster, and discarded; it is never persisted.
//
// Exactly one of Schedule/ScheduleID (for schedule_update) or User/UserID
// (for user_update) is set, depending on the action: create and update carry
// the full entity, delete carries only the id.
type ChangeEvent struct {
	Type       string    `json:"type"`
	Action     string    `json:"action"`
	Schedule   *Schedule `json:"schedule,omitempty"`
	ScheduleID string    `json:"scheduleId,omitempty"`
	User       *User     `json:"user,omitempty"`
	UserID     string    `json:"userId,omitempty"`
}

// ScheduleCreated builds the event for a committed schedule creation.
func ScheduleCreated(s *Schedule) *ChangeEvent {
	return &ChangeEvent{Type: EventScheduleUpdate, Action: ActionCreate, Schedule: s}
}

// ScheduleUpdated builds the event for a committed schedule update.
func ScheduleUpdated(s *Schedule) *ChangeEvent {
	return &ChangeEvent{Type: EventScheduleUpdate, Action: ActionUpdate, Schedule: s}
}

// ScheduleDeleted builds the event for a committed schedule deletion.
func ScheduleDeleted(id string) *ChangeEvent {
	return &ChangeEvent{Type: EventScheduleUpdate, Action: ActionDelete, ScheduleID: id}
}

// UserCreated builds the event for a committed account creation.
func UserCreated(u *User) *ChangeEvent {
	return &ChangeEvent{Type: EventUserUpdate, Action: ActionCreate, User: u.Sanitized()}
}

// UserUpdated builds the event for a committed account update.
func UserUpdated(u *User) *ChangeEvent {
	return &ChangeEvent{Type: EventUserUpdate, Action: ActionUpdate, User: u.Sanitized()}
}

// UserDeleted builds the event for a committed account deletion.
func UserDeleted(id string) *ChangeEvent {
	return &ChangeEvent{Type: EventUserUpdate, Action: ActionDelete, UserID: id}
}
