package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MatchMode says how a Requirement's roles combine.
type MatchMode int

const (
	// MatchAny is satisfied by holding at least one required role.
	MatchAny MatchMode = iota
	// MatchAll is satisfied only by holding every required role.
	MatchAll
)

func (m MatchMode) String() string {
	if m == MatchAll {
		return "ALL"
	}
	return "ANY"
}

// Requirement is a declarative permission attached to a route or page.
// An empty Roles list admits any authenticated user.
type Requirement struct {
	Roles []string
	Mode  MatchMode
}

// Authenticated admits any user with a valid session.
func Authenticated() Requirement {
	return Requirement{}
}

// AnyOf requires at least one of roles.
func AnyOf(roles ...string) Requirement {
	return Requirement{Roles: roles, Mode: MatchAny}
}

// AllOf requires every one of roles.
func AllOf(roles ...string) Requirement {
	return Requirement{Roles: roles, Mode: MatchAll}
}

func (r Requirement) String() string {
	if len(r.Roles) == 0 {
		return "authenticated"
	}
	return fmt.Sprintf("%s(%s)", r.Mode, strings.Join(r.Roles, ","))
}

// DenyReason explains a denial.
type DenyReason string

const (
	ReasonNotAuthenticated       DenyReason = "not authenticated"
	ReasonInsufficientPermission DenyReason = "insufficient permission"
)

// Decision is the outcome of Authorize.
//
// When Allowed, User and Roles describe the caller. When denied for
// insufficient permission, User and Roles are still set and Required lists
// the canonical role names that were asked for.
type Decision struct {
	Allowed  bool
	User     *SessionUser
	Roles    []string
	Reason   DenyReason
	Required []string
	Mode     MatchMode
}

// HasRole reports whether the decided user holds the canonical role name.
func (d Decision) HasRole(name string) bool {
	for _, r := range d.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// sessionResolver is the part of SessionRepository the gate needs.
type sessionResolver interface {
	Resolve(ctx context.Context, token string) (*SessionUser, error)
}

// roleLister is the part of AssignmentRepository the gate needs.
type roleLister interface {
	RolesOf(ctx context.Context, userID int64) ([]Assignment, error)
}

// Gate decides whether a session token satisfies a Requirement.
// It never mutates state and is safe for concurrent use.
type Gate struct {
	sessions    sessionResolver
	assignments roleLister
	aliases     *AliasTable
}

// NewGate creates a gate. A nil aliases table means DefaultAliases.
func NewGate(sessions SessionRepository, assignments AssignmentRepository, aliases *AliasTable) *Gate {
	if aliases == nil {
		aliases = DefaultAliases
	}
	return &Gate{sessions: sessions, assignments: assignments, aliases: aliases}
}

// Aliases returns the alias table the gate resolves requirements with.
func (g *Gate) Aliases() *AliasTable {
	return g.aliases
}

// Authorize evaluates req for the holder of token.
//
// Denials are reported in the Decision, never as an error: a missing,
// malformed, unknown or expired token yields ReasonNotAuthenticated and an
// unmet requirement yields ReasonInsufficientPermission. The error is
// reserved for storage failures, in which case the Decision denies.
func (g *Gate) Authorize(ctx context.Context, token string, req Requirement) (Decision, error) {
	required := g.aliases.ResolveAll(req.Roles)
	d := Decision{Required: required, Mode: req.Mode}

	if token == "" {
		d.Reason = ReasonNotAuthenticated
		return d, nil
	}

	user, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			d.Reason = ReasonNotAuthenticated
			return d, nil
		}
		d.Reason = ReasonNotAuthenticated
		return d, fmt.Errorf("authorizing: %w", err)
	}
	d.User = user

	held, err := g.assignments.RolesOf(ctx, user.ID)
	if err != nil {
		d.Reason = ReasonInsufficientPermission
		return d, fmt.Errorf("authorizing user %d: %w", user.ID, err)
	}
	d.Roles = RoleNames(held)

	switch {
	case len(required) == 0:
		d.Allowed = true
	case req.Mode == MatchAll:
		d.Allowed = containsAll(d.Roles, required)
	default:
		d.Allowed = intersects(d.Roles, required)
	}

	if !d.Allowed {
		d.Reason = ReasonInsufficientPermission
	}
	return d, nil
}
