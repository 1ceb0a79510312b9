package types

import (
	"fmt"
	"regexp"
	"time"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// IsValidUsername checks the login name format: 1-50 characters,
// alphanumeric plus underscore and hyphen.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// IsValidRole checks a role string against the known roles.
func IsValidRole(role string) bool {
	return role == RoleStandard || role == RolePrivileged
}

// IsValidDate checks a schedule date in "YYYY-MM-DD" form.
func IsValidDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// IsValidTime checks a schedule time in 24-hour "HH:MM" form.
func IsValidTime(value string) bool {
	_, err := time.Parse("15:04", value)
	return err == nil
}

// ValidateSchedule checks the client-supplied fields of a schedule entry.
// Server-assigned fields (id, audit columns) are not the client's to set and
// are ignored here.
func ValidateSchedule(s *Schedule) error {
	if s.Title == "" || len(s.Title) > 200 {
		return fmt.Errorf("%w: title must be 1-200 characters", ErrValidation)
	}
	if !IsValidDate(s.Date) {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	if !IsValidTime(s.StartTime) {
		return fmt.Errorf("%w: startTime must be HH:MM", ErrValidation)
	}
	if !IsValidTime(s.EndTime) {
		return fmt.Errorf("%w: endTime must be HH:MM", ErrValidation)
	}
	if s.EndTime < s.StartTime {
		return fmt.Errorf("%w: endTime precedes startTime", ErrValidation)
	}
	return nil
}

// ValidateNewUser checks the fields required to create an account.
func ValidateNewUser(username, password, name, role string) error {
	if !IsValidUsername(username) {
		return fmt.Errorf("%w: username must be 1-50 characters, alphanumeric plus underscore/hyphen", ErrValidation)
	}
	if len(password) < 4 {
		return fmt.Errorf("%w: password must be at least 4 characters", ErrValidation)
	}
	if name == "" || len(name) > 100 {
		return fmt.Errorf("%w: name must be 1-100 characters", ErrValidation)
	}
	if !IsValidRole(role) {
		return fmt.Errorf("%w: role must be %q or %q", ErrValidation, RoleStandard, RolePrivileged)
	}
	return nil
}
