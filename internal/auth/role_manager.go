package auth

import (
	"context"
	"errors"
)

// MutationResult is the outcome of a role change, shaped so calling code
// can render Error directly. Err keeps the underlying error for callers
// that need to classify it; it is never serialised.
type MutationResult struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Err     error    `json:"-"`
}

// RoleManager is the role mutation API used by administrative screens.
// It reports failures as results instead of errors.
type RoleManager struct {
	assignments AssignmentRepository
}

// NewRoleManager creates a RoleManager.
func NewRoleManager(assignments AssignmentRepository) *RoleManager {
	return &RoleManager{assignments: assignments}
}

// Add grants role to the user.
func (m *RoleManager) Add(ctx context.Context, userID int64, role string, actor *int64) MutationResult {
	return m.finish(ctx, userID, m.assignments.AddRole(ctx, userID, role, actor))
}

// Remove revokes role from the user, falling back to DefaultRole when it
// was the last one.
func (m *RoleManager) Remove(ctx context.Context, userID int64, role string) MutationResult {
	return m.finish(ctx, userID, m.assignments.RemoveRole(ctx, userID, role))
}

// Replace sets the user's roles to exactly roles, all or nothing.
func (m *RoleManager) Replace(ctx context.Context, userID int64, roles []string, actor *int64) MutationResult {
	return m.finish(ctx, userID, m.assignments.SetRoles(ctx, userID, roles, actor))
}

// finish reports err, or on success the user's resulting roles.
func (m *RoleManager) finish(ctx context.Context, userID int64, err error) MutationResult {
	if err != nil {
		return MutationResult{Error: userMessage(err), Err: err}
	}

	held, err := m.assignments.RolesOf(ctx, userID)
	if err != nil {
		// The change is committed; only the read-back failed.
		return MutationResult{Success: true, Err: err}
	}
	return MutationResult{Success: true, Roles: RoleNames(held)}
}

// userMessage is the text shown for a failed mutation. Storage errors are
// not described beyond a generic message.
func userMessage(err error) string {
	var rnf *RoleNotFoundError
	switch {
	case errors.As(err, &rnf):
		return rnf.Error()
	case errors.Is(err, ErrUserNotFound):
		return ErrUserNotFound.Error()
	case errors.Is(err, ErrActorNotFound):
		return ErrActorNotFound.Error()
	default:
		return "role update failed"
	}
}
