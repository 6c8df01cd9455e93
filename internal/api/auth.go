package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/campioncollege/beadle-core/internal/audit"
	"github.com/campioncollege/beadle-core/internal/auth"
)

// Login methods recorded in telemetry.
const (
	methodLogin  = "login"
	methodSignup = "signup"
)

type signupRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FullName  string `json:"full_name" validate:"required,max=100"`
	FormClass string `json:"form_class" validate:"omitempty,max=20"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,min=1,max=100"`
	FormClass *string `json:"form_class" validate:"omitempty,max=20"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// sessionResponse is returned by signup and login. The token is also set
// as the session cookie; clients that cannot hold cookies send it as a
// Bearer token instead.
type sessionResponse struct {
	Token string     `json:"token"`
	User  *auth.User `json:"user"`
	Roles []string   `json:"roles"`
}

// handleSignup creates a student account and logs it in.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, user, err := s.authn.Signup(r.Context(), auth.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		FormClass: req.FormClass,
	}, r.UserAgent())
	if err != nil {
		s.influx.WriteLogin(methodSignup, false)
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			writeConflict(w, "email already registered")
		case errors.Is(err, auth.ErrInvalidEmail),
			errors.Is(err, auth.ErrPasswordTooShort),
			errors.Is(err, auth.ErrPasswordTooLong),
			errors.Is(err, auth.ErrFullNameRequired):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("signup failed", "error", err)
			writeInternalError(w, "failed to create account")
		}
		return
	}

	s.influx.WriteLogin(methodSignup, true)
	s.logger.Info("account created", "user_id", user.ID)
	s.record(audit.ActionSignup, audit.EntityUser, user.ID, user.ID, nil)
	s.startSession(w, r, http.StatusCreated, token, user)
}

// handleLogin exchanges credentials for a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, user, err := s.authn.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		s.influx.WriteLogin(methodLogin, false)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.audit.Record(audit.AuditLog{
				Action:     audit.ActionLoginFailed,
				EntityType: audit.EntitySession,
				Details:    map[string]any{"email": auth.NormalizeEmail(req.Email)},
			})
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.influx.WriteLogin(methodLogin, true)
	s.record(audit.ActionLogin, audit.EntitySession, user.ID, user.ID, nil)
	s.startSession(w, r, http.StatusOK, token, user)
}

// startSession sets the session cookie and writes the session response.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, status int, token string, user *auth.User) {
	if err := s.cookie.set(w, token); err != nil {
		s.logger.Error("setting session cookie failed", "error", err)
	}

	roles, err := s.roleNames(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("reading roles after login failed", "user_id", user.ID, "error", err)
	}
	writeJSON(w, status, sessionResponse{Token: token, User: user, Roles: roles})
}

// handleLogout ends the caller's session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	c := callerFromContext(r.Context())
	if err := s.authn.Logout(r.Context(), c.Token); err != nil {
		s.logger.Error("logout failed", "user_id", c.User.ID, "error", err)
		writeInternalError(w, "logout failed")
		return
	}
	s.cookie.clear(w)
	s.record(audit.ActionLogout, audit.EntitySession, c.User.ID, c.User.ID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleMe returns the caller's account and roles.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := callerFromContext(r.Context())
	user, err := s.users.GetByID(r.Context(), c.User.ID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("get current user failed", "error", err)
		writeInternalError(w, "failed to load account")
		return
	}
	assignments, err := s.assignments.RolesOf(r.Context(), c.User.ID)
	if err != nil {
		s.logger.Error("get current user roles failed", "error", err)
		writeInternalError(w, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"roles": assignments,
	})
}

// handleUpdateMe changes the caller's full name and/or form class.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FullName == nil && req.FormClass == nil {
		writeBadRequest(w, "nothing to update")
		return
	}

	c := callerFromContext(r.Context())
	current, err := s.users.GetByID(r.Context(), c.User.ID)
	if err != nil {
		s.logger.Error("get current user failed", "error", err)
		writeInternalError(w, "failed to update profile")
		return
	}

	fullName, formClass := current.FullName, current.FormClass
	if req.FullName != nil {
		fullName = *req.FullName
	}
	if req.FormClass != nil {
		formClass = *req.FormClass
	}

	user, err := s.users.UpdateProfile(r.Context(), c.User.ID, fullName, formClass)
	if err != nil {
		if errors.Is(err, auth.ErrFullNameRequired) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("update profile failed", "error", err)
		writeInternalError(w, "failed to update profile")
		return
	}

	s.record(audit.ActionProfileUpdate, audit.EntityUser, user.ID, c.User.ID, map[string]any{
		"full_name":  user.FullName,
		"form_class": user.FormClass,
	})
	writeJSON(w, http.StatusOK, user)
}

// handleChangePassword replaces the caller's password and signs out every
// other session.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c := callerFromContext(r.Context())
	err := s.authn.ChangePassword(r.Context(), c.User.ID, req.CurrentPassword, req.NewPassword, c.Token)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeValidationError(w, "current password is incorrect")
		return
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		writeValidationError(w, err.Error())
		return
	default:
		s.logger.Error("password change failed", "user_id", c.User.ID, "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	s.record(audit.ActionPasswordChange, audit.EntityUser, c.User.ID, c.User.ID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleWSTicket issues a short-lived ticket for opening the live feed.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	c := callerFromContext(r.Context())
	ttl := s.ticketTTL()

	ticket, err := auth.IssueTicket(c.User, c.Roles, s.secCfg.Ticket.Secret, ttl)
	if err != nil {
		s.logger.Error("issuing websocket ticket failed", "error", err)
		writeInternalError(w, "failed to issue ticket")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ttl.Seconds()),
	})
}

// ticketTTL is the configured ticket lifetime, falling back to the one
// IssueTicket applies when none is set.
func (s *Server) ticketTTL() time.Duration {
	if ttl := s.secCfg.Ticket.TTL(); ttl > 0 {
		return ttl
	}
	return auth.DefaultTicketTTL
}

// roleNames returns the canonical names of the roles userID holds.
func (s *Server) roleNames(ctx context.Context, userID int64) ([]string, error) {
	assignments, err := s.assignments.RolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	return auth.RoleNames(assignments), nil
}

// ticketStore remembers redeemed tickets until they expire so each ticket
// opens at most one connection.
type ticketStore struct {
	used map[string]time.Time
	mu   sync.Mutex
}

func newTicketStore() *ticketStore {
	return &ticketStore{used: make(map[string]time.Time)}
}

// redeem marks the ticket id as used. It reports false when it already was.
func (t *ticketStore) redeem(id string, expiresAt time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.used[id]; seen {
		return false
	}
	t.used[id] = expiresAt
	return true
}

// cleanExpired forgets tickets that can no longer be presented.
func (t *ticketStore) cleanExpired(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, exp := range t.used {
		if now.After(exp) {
			delete(t.used, id)
		}
	}
}

// cleanTicketsLoop runs cleanExpired periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.ticketTTL())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired(time.Now())
		}
	}
}

// record queues an audit entry for an action by actor on a user, session
// or slip id.
func (s *Server) record(action, entityType string, entityID, actor int64, details map[string]any) {
	s.audit.Record(audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   strconv.FormatInt(entityID, 10),
		UserID:     strconv.FormatInt(actor, 10),
		Details:    details,
	})
}
