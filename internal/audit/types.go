package audit

import "time"

// Actions recorded in the audit log.
const (
	ActionLogin          = "login"
	ActionLoginFailed    = "login_failed"
	ActionLogout         = "logout"
	ActionSignup         = "signup"
	ActionPasswordChange = "password_change"
	ActionProfileUpdate  = "profile_update"
	ActionRoleAdd        = "role_add"
	ActionRoleRemove     = "role_remove"
	ActionRoleSet        = "role_set"
	ActionSlipSubmit     = "slip_submit"
	ActionSlipReview     = "slip_review"
)

// Entity types.
const (
	EntityUser    = "user"
	EntitySession = "session"
	EntitySlip    = "slip"
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string // optional: login, role_set, slip_review, ...
	EntityType string // optional: user, session, slip
	EntityID   string // optional: specific entity
	UserID     string // optional: the acting user
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

const (
	defaultLimit  = 50
	maxLimit      = 200
	defaultSource = "api"
)
