package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"schedboard/pkg/interfaces"
	"schedboard/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testSchedule(date, start string) *types.Schedule {
	now := time.Now().UTC()
	return &types.Schedule{
		ID:        uuid.New().String(),
		Title:     "Standup",
		Date:      date,
		StartTime: start,
		EndTime:   "23:59",
		CreatedBy: "u1",
		UpdatedBy: "u1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testUser(username, role string) *types.User {
	now := time.Now().UTC()
	return &types.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: "hash",
		Name:         "Test User",
		Role:         role,
		LastActive:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestScheduleCRUD(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s := testSchedule("2024-06-01", "09:00")
	if err := m.CreateSchedule(ctx, s); err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}

	got, err := m.GetSchedule(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}
	if got.Title != s.Title || got.Date != s.Date || got.StartTime != s.StartTime {
		t.Errorf("retrieved schedule differs: %+v", got)
	}

	got.Title = "Retro"
	got.UpdatedBy = "u2"
	got.UpdatedAt = time.Now().UTC()
	if err := m.UpdateSchedule(ctx, got); err != nil {
		t.Fatalf("UpdateSchedule failed: %v", err)
	}

	updated, err := m.GetSchedule(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Retro" || updated.UpdatedBy != "u2" {
		t.Errorf("update not persisted: %+v", updated)
	}
	if updated.CreatedBy != "u1" {
		t.Error("update must not change created_by")
	}

	if err := m.DeleteSchedule(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSchedule failed: %v", err)
	}
	if _, err := m.GetSchedule(ctx, s.ID); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestScheduleNotFound(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.GetSchedule(ctx, "missing"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("get: expected ErrNotFound, got %v", err)
	}
	if err := m.DeleteSchedule(ctx, "missing"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("delete: expected ErrNotFound, got %v", err)
	}
	missing := testSchedule("2024-06-01", "09:00")
	if err := m.UpdateSchedule(ctx, missing); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("update: expected ErrNotFound, got %v", err)
	}
}

func TestListSchedulesByDate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, tc := range []struct{ date, start string }{
		{"2024-06-01", "14:00"},
		{"2024-06-01", "09:00"},
		{"2024-06-02", "10:00"},
	} {
		if err := m.CreateSchedule(ctx, testSchedule(tc.date, tc.start)); err != nil {
			t.Fatal(err)
		}
	}

	day, err := m.ListSchedules(ctx, "2024-06-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(day) != 2 {
		t.Fatalf("expected 2 entries for the day, got %d", len(day))
	}
	if day[0].StartTime != "09:00" || day[1].StartTime != "14:00" {
		t.Errorf("entries not ordered by start time: %s, %s", day[0].StartTime, day[1].StartTime)
	}

	all, err := m.ListSchedules(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 entries total, got %d", len(all))
	}
}

func TestListScheduleDates(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, date := range []string{"2024-06-01", "2024-06-01", "2024-06-15", "2024-07-01"} {
		if err := m.CreateSchedule(ctx, testSchedule(date, "09:00")); err != nil {
			t.Fatal(err)
		}
	}

	dates, err := m.ListScheduleDates(ctx, "2024", "6")
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 2 || dates[0] != "2024-06-01" || dates[1] != "2024-06-15" {
		t.Errorf("unexpected dates for month: %v", dates)
	}
}

func TestUserCRUD(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	u := testUser("alice", types.RoleStandard)
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	byName, err := m.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if byName.ID != u.ID {
		t.Errorf("lookup by username returned wrong user: %s", byName.ID)
	}

	byName.Name = "Alice Cooper"
	byName.Role = types.RolePrivileged
	byName.UpdatedAt = time.Now().UTC()
	if err := m.UpdateUser(ctx, byName); err != nil {
		t.Fatal(err)
	}

	updated, err := m.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Alice Cooper" || updated.Role != types.RolePrivileged {
		t.Errorf("update not persisted: %+v", updated)
	}

	if err := m.DeleteUser(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetUser(ctx, u.ID); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.CreateUser(ctx, testUser("alice", types.RoleStandard)); err != nil {
		t.Fatal(err)
	}
	err := m.CreateUser(ctx, testUser("alice", types.RoleStandard))
	if !errors.Is(err, interfaces.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestListStandardUsersExcludesPrivileged(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.CreateUser(ctx, testUser("admin", types.RolePrivileged)); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateUser(ctx, testUser("bob", types.RoleStandard)); err != nil {
		t.Fatal(err)
	}

	users, err := m.ListStandardUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Errorf("expected only bob, got %v", users)
	}
}

func TestUpdatePasswordAndTouchLastActive(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	u := testUser("alice", types.RoleStandard)
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	if err := m.UpdatePassword(ctx, u.ID, "newhash"); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PasswordHash != "newhash" {
		t.Errorf("password hash not updated: %q", got.PasswordHash)
	}

	at := time.Now().UTC().Add(time.Hour)
	if err := m.TouchLastActive(ctx, u.ID, at); err != nil {
		t.Fatal(err)
	}
	got, err = m.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastActive.After(time.Now().UTC().Add(30 * time.Minute)) {
		t.Errorf("last-active not advanced: %v", got.LastActive)
	}

	if err := m.UpdatePassword(ctx, "missing", "x"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCountActiveSince(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	admin := testUser("admin", types.RolePrivileged)
	recent := testUser("bob", types.RoleStandard)
	stale := testUser("carol", types.RoleStandard)
	stale.LastActive = time.Now().UTC().Add(-2 * time.Hour)

	for _, u := range []*types.User{admin, recent, stale} {
		if err := m.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	privileged, standard, err := m.CountActiveSince(ctx, time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if privileged != 1 || standard != 1 {
		t.Errorf("expected 1 privileged / 1 standard, got %d / %d", privileged, standard)
	}
}

func TestEnsureBootstrapAccount(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := EnsureBootstrapAccount(ctx, m, "admin", "changeme"); err != nil {
		t.Fatalf("EnsureBootstrapAccount failed: %v", err)
	}

	admin, err := m.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if admin.Role != types.RolePrivileged {
		t.Errorf("bootstrap account must be privileged, got %s", admin.Role)
	}
	if admin.PasswordHash == "changeme" {
		t.Error("bootstrap password stored in plaintext")
	}

	// Idempotent on rerun.
	if err := EnsureBootstrapAccount(ctx, m, "admin", "changeme"); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	// No password configured: nothing is created.
	if err := EnsureBootstrapAccount(ctx, m, "other", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetUserByUsername(ctx, "other"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("account should not exist without a password, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	m := newTestManager(t)
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
