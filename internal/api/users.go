package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campioncollege/beadle-core/internal/audit"
	"github.com/campioncollege/beadle-core/internal/auth"
	"github.com/campioncollege/beadle-core/internal/infrastructure/mqtt"
)

type addRoleRequest struct {
	Role string `json:"role" validate:"required,max=50"`
}

type setRolesRequest struct {
	Roles []string `json:"roles" validate:"max=20,dive,required,max=50"`
}

// userWithRoles is one row of the user list.
type userWithRoles struct {
	auth.User
	Roles []string `json:"roles"`
}

// rolesChangedEvent is broadcast after every successful role mutation.
type rolesChangedEvent struct {
	UserID  int64    `json:"user_id"`
	Roles   []string `json:"roles"`
	ActorID int64    `json:"actor_id"`
	Change  string   `json:"change"`
}

// handleListRoles returns the role catalog ordered by permission level,
// with the alias table policies are written against.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.catalog.List(r.Context())
	if err != nil {
		s.logger.Error("list roles failed", "error", err)
		writeInternalError(w, "failed to list roles")
		return
	}

	aliases := s.gate.Aliases()
	writeJSON(w, http.StatusOK, map[string]any{
		"roles":           roles,
		"count":           len(roles),
		"aliases":         aliases.Mapping(),
		"aliases_version": aliases.Version(),
	})
}

// handleListUsers returns every account with its role names.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	out := make([]userWithRoles, 0, len(users))
	for _, u := range users {
		roles, err := s.roleNames(r.Context(), u.ID)
		if err != nil {
			s.logger.Error("list user roles failed", "user_id", u.ID, "error", err)
			writeInternalError(w, "failed to list users")
			return
		}
		out = append(out, userWithRoles{User: u, Roles: roles})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": out,
		"count": len(out),
	})
}

// handleGetUserRoles returns the roles a user holds with who granted them.
func (s *Server) handleGetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if _, err := s.users.GetByID(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("get user failed", "error", err)
		writeInternalError(w, "failed to get user roles")
		return
	}

	assignments, err := s.assignments.RolesOf(r.Context(), userID)
	if err != nil {
		s.logger.Error("get user roles failed", "user_id", userID, "error", err)
		writeInternalError(w, "failed to get user roles")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"roles":   assignments,
	})
}

// handleAddUserRole grants one role.
func (s *Server) handleAddUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req addRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	actor := callerFromContext(r.Context()).User.ID
	result := s.roles.Add(r.Context(), userID, req.Role, &actor)
	s.finishMutation(w, userID, actor, audit.ActionRoleAdd, map[string]any{"role": req.Role}, result)
}

// handleRemoveUserRole revokes one role. Revoking the last role leaves the
// user with the default role.
func (s *Server) handleRemoveUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	role := chi.URLParam(r, "role")

	actor := callerFromContext(r.Context()).User.ID
	result := s.roles.Remove(r.Context(), userID, role)
	s.finishMutation(w, userID, actor, audit.ActionRoleRemove, map[string]any{"role": role}, result)
}

// handleSetUserRoles replaces the user's roles, all or nothing. An empty
// list leaves the user with the default role.
func (s *Server) handleSetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req setRolesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	actor := callerFromContext(r.Context()).User.ID
	result := s.roles.Replace(r.Context(), userID, req.Roles, &actor)
	s.finishMutation(w, userID, actor, audit.ActionRoleSet, map[string]any{"requested": req.Roles}, result)
}

// finishMutation writes a role mutation result and, on success, records and
// announces the change.
//
// The body is always the MutationResult. The status distinguishes an
// unknown role or acting user (400), an unknown target user (404) and
// storage failures (500).
func (s *Server) finishMutation(w http.ResponseWriter, userID, actor int64, action string, details map[string]any, result auth.MutationResult) {
	if !result.Success {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(result.Err, auth.ErrRoleNotFound), errors.Is(result.Err, auth.ErrActorNotFound):
			status = http.StatusBadRequest
		case errors.Is(result.Err, auth.ErrUserNotFound):
			status = http.StatusNotFound
		default:
			s.logger.Error("role mutation failed", "user_id", userID, "action", action, "error", result.Err)
		}
		writeJSON(w, status, result)
		return
	}
	if result.Err != nil {
		s.logger.Warn("reading roles after mutation failed", "user_id", userID, "error", result.Err)
	}

	details["roles"] = result.Roles
	s.record(action, audit.EntityUser, userID, actor, details)
	s.logger.Info("roles changed", "user_id", userID, "actor_id", actor, "action", action, "roles", result.Roles)
	s.publish(mqtt.EventRolesChanged, rolesChangedEvent{
		UserID:  userID,
		Roles:   result.Roles,
		ActorID: actor,
		Change:  action,
	})

	writeJSON(w, http.StatusOK, result)
}

// userIDParam parses the {id} URL parameter, writing a 400 when it is not
// a positive integer.
func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return idParam(w, r, "user")
}

func idParam(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}
