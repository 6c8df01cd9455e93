package auth

import (
	"errors"
	"fmt"
	"time"
)

// Canonical role names stored in the catalog.
const (
	RoleStudent    = "student"
	RoleBeadle     = "beadle"
	RoleStaff      = "staff"
	RoleSupervisor = "supervisor"
	RoleTechTeam   = "tech_team"
	RoleAdmin      = "admin"
)

// DefaultRole is assigned at signup and whenever a user would otherwise
// be left without any role.
const DefaultRole = RoleStudent

// RoleType distinguishes top-level roles from the finer-grained roles
// nested beneath them.
type RoleType string

const (
	RoleTypePrimary RoleType = "primary"
	RoleTypeSub     RoleType = "sub"
)

// User is a login account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	FullName     string    `json:"full_name"`
	FormClass    string    `json:"form_class,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is one entry of the role catalog.
type Role struct {
	ID              int64    `json:"id"`
	Name            string   `json:"role_name"`
	Type            RoleType `json:"role_type"`
	DisplayName     string   `json:"display_name"`
	Description     string   `json:"description"`
	PermissionLevel int      `json:"permission_level"`
	Parent          string   `json:"parent_role,omitempty"`
}

// Assignment is a role held by a user, with who granted it and when.
type Assignment struct {
	Role
	AssignedBy *int64    `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Session is a stored login. The raw token is never kept.
type Session struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	DeviceInfo string     `json:"device_info,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// SessionUser is what a valid session token resolves to.
type SessionUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrActorNotFound      = errors.New("assigning user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrPasswordTooLong    = errors.New("password too long")
	ErrFullNameRequired   = errors.New("full name is required")
	ErrRoleNotFound       = errors.New("role not found")
	ErrSessionInvalid     = errors.New("invalid session")
	ErrTicketInvalid      = errors.New("invalid ticket")
)

// RoleNotFoundError names the role that is missing from the catalog.
// It matches ErrRoleNotFound with errors.Is.
type RoleNotFoundError struct {
	Name string
}

func (e *RoleNotFoundError) Error() string {
	return fmt.Sprintf("role not found: %q", e.Name)
}

// Is reports whether target is ErrRoleNotFound.
func (e *RoleNotFoundError) Is(target error) bool {
	return target == ErrRoleNotFound
}

// RoleNames returns the role names of the given assignments in order.
func RoleNames(assignments []Assignment) []string {
	names := make([]string, len(assignments))
	for i, a := range assignments {
		names[i] = a.Name
	}
	return names
}
