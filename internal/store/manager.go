package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"schedboard/pkg/interfaces"
	"schedboard/pkg/types"
)

// Manager implements interfaces.Store on SQLite. All writes are funneled
// through a single goroutine; SQLite allows exactly one writer and the
// funnel keeps write contention out of the connection pool. Reads run
// concurrently under WAL.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and bootstraps the schema.
func NewManager(path string) (*Manager, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// once after a short delay on failure.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && !isConstraintError(err) {
				log.Printf("Database write failed, retrying in 1 second: %v", err)
				time.Sleep(time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// isConstraintError spots violations (duplicate username, bad role) that a
// retry cannot fix.
func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint")
}

// --- Schedule entries ---

// CreateSchedule inserts a schedule entry.
func (m *Manager) CreateSchedule(ctx context.Context, s *types.Schedule) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO schedules (id, title, date, start_time, end_time, description,
				location, participants, created_by, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			s.ID, s.Title, s.Date, s.StartTime, s.EndTime, s.Description,
			s.Location, s.Participants, s.CreatedBy, s.UpdatedBy, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert schedule: %w", err)
		}
		return nil
	})
}

// GetSchedule retrieves one schedule entry by id.
func (m *Manager) GetSchedule(ctx context.Context, id string) (*types.Schedule, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, title, date, start_time, end_time, description,
			location, participants, created_by, updated_by, created_at, updated_at
		FROM schedules WHERE id = ?
	`, id)

	s, err := scanSchedule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	return s, nil
}

// ListSchedules returns entries ordered by start time. With an empty date it
// returns every entry; with a date it returns that day only.
func (m *Manager) ListSchedules(ctx context.Context, date string) ([]*types.Schedule, error) {
	query := `
		SELECT id, title, date, start_time, end_time, description,
			location, participants, created_by, updated_by, created_at, updated_at
		FROM schedules
	`
	args := []interface{}{}
	if date != "" {
		query += " WHERE date = ?"
		args = append(args, date)
	}
	query += " ORDER BY date, start_time"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*types.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w", err)
	}
	return schedules, nil
}

// ListScheduleDates returns the distinct dates within a month that have at
// least one entry. Month is "1".."12" or "01".."12".
func (m *Manager) ListScheduleDates(ctx context.Context, year, month string) ([]string, error) {
	if len(month) == 1 {
		month = "0" + month
	}
	prefix := year + "-" + month + "-%"

	rows, err := m.db.QueryContext(ctx,
		"SELECT DISTINCT date FROM schedules WHERE date LIKE ? ORDER BY date", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan date row: %w", err)
		}
		dates = append(dates, date)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating date rows: %w", err)
	}
	return dates, nil
}

// UpdateSchedule rewrites the client-editable fields of an entry.
func (m *Manager) UpdateSchedule(ctx context.Context, s *types.Schedule) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE schedules
			SET title = ?, date = ?, start_time = ?, end_time = ?, description = ?,
				location = ?, participants = ?, updated_by = ?, updated_at = ?
			WHERE id = ?
		`
		res, err := db.ExecContext(ctx, query,
			s.Title, s.Date, s.StartTime, s.EndTime, s.Description,
			s.Location, s.Participants, s.UpdatedBy, s.UpdatedAt, s.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
		return rowsAffectedOrNotFound(res)
	})
}

// DeleteSchedule removes an entry.
func (m *Manager) DeleteSchedule(ctx context.Context, id string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete schedule: %w", err)
		}
		return rowsAffectedOrNotFound(res)
	})
}

// --- User accounts ---

// CreateUser inserts an account. A duplicate username yields
// interfaces.ErrUsernameTaken.
func (m *Manager) CreateUser(ctx context.Context, u *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO users (id, username, password_hash, name, role, last_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			u.ID, u.Username, u.PasswordHash, u.Name, u.Role, u.LastActive, u.CreatedAt, u.UpdatedAt,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
				return interfaces.ErrUsernameTaken
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// GetUser retrieves an account by id.
func (m *Manager) GetUser(ctx context.Context, id string) (*types.User, error) {
	return m.queryUser(ctx, "id = ?", id)
}

// GetUserByUsername retrieves an account by login name.
func (m *Manager) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return m.queryUser(ctx, "username = ?", username)
}

func (m *Manager) queryUser(ctx context.Context, where string, arg interface{}) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, name, role, last_active, created_at, updated_at
		FROM users WHERE `+where, arg)

	var u types.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Role,
		&u.LastActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// ListStandardUsers returns every non-privileged account.
func (m *Manager) ListStandardUsers(ctx context.Context) ([]*types.User, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, username, password_hash, name, role, last_active, created_at, updated_at
		FROM users WHERE role = ? ORDER BY username
	`, types.RoleStandard)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*types.User
	for rows.Next() {
		var u types.User
		err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Role,
			&u.LastActive, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, &u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

// UpdateUser rewrites name, role and username of an account.
func (m *Manager) UpdateUser(ctx context.Context, u *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE users SET username = ?, name = ?, role = ?, updated_at = ? WHERE id = ?
		`, u.Username, u.Name, u.Role, u.UpdatedAt, u.ID)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
				return interfaces.ErrUsernameTaken
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		return rowsAffectedOrNotFound(res)
	})
}

// UpdatePassword replaces the stored credential for an account.
func (m *Manager) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
			passwordHash, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return rowsAffectedOrNotFound(res)
	})
}

// TouchLastActive records login activity for the online-user counts.
func (m *Manager) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE users SET last_active = ? WHERE id = ?", at, id)
		if err != nil {
			return fmt.Errorf("failed to touch last-active: %w", err)
		}
		return rowsAffectedOrNotFound(res)
	})
}

// DeleteUser removes an account.
func (m *Manager) DeleteUser(ctx context.Context, id string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return rowsAffectedOrNotFound(res)
	})
}

// CountActiveSince returns how many privileged and standard accounts were
// active after the given instant.
func (m *Manager) CountActiveSince(ctx context.Context, since time.Time) (int, int, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT role, COUNT(*) FROM users WHERE last_active > ? GROUP BY role", since)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count active users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var privileged, standard int
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return 0, 0, fmt.Errorf("failed to scan count row: %w", err)
		}
		switch role {
		case types.RolePrivileged:
			privileged = count
		case types.RoleStandard:
			standard = count
		}
	}
	if err = rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("error iterating count rows: %w", err)
	}
	return privileged, standard, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close shuts down the write loop and the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*types.Schedule, error) {
	var s types.Schedule
	err := row.Scan(&s.ID, &s.Title, &s.Date, &s.StartTime, &s.EndTime, &s.Description,
		&s.Location, &s.Participants, &s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}
