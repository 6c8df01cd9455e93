package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"testing"

	"github.com/campioncollege/beadle-core/internal/audit"
	"github.com/campioncollege/beadle-core/internal/auth"
	"github.com/campioncollege/beadle-core/internal/infrastructure/mqtt"
)

// subscribedClient registers a connection-less client on the hub that
// listens on channel.
func subscribedClient(t *testing.T, hub *Hub, channel string) *WSClient {
	t.Helper()
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{channel: {}},
	}
	hub.Register(c)
	t.Cleanup(func() { hub.Unregister(c) })
	return c
}

func rolesPath(id int64) string {
	return "/api/v1/users/" + strconv.FormatInt(id, 10) + "/roles"
}

func roleNamesOf(t *testing.T, e *testEnv, id int64) []string {
	t.Helper()
	names, err := e.srv.roleNames(t.Context(), id)
	if err != nil {
		t.Fatalf("roleNames() error = %v", err)
	}
	slices.Sort(names)
	return names
}

func TestListRoles(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.userWithRoles(t, "anyone@campion.edu.jm")

	w := e.do(t, http.MethodGet, "/api/v1/roles", nil, token)
	wantStatus(t, w, http.StatusOK)

	resp := decode[struct {
		Roles   []auth.Role       `json:"roles"`
		Count   int               `json:"count"`
		Aliases map[string]string `json:"aliases"`
	}](t, w)
	if resp.Count != len(auth.DefaultRoles()) {
		t.Errorf("count = %d, want %d", resp.Count, len(auth.DefaultRoles()))
	}
	if resp.Aliases["member"] != auth.RoleStudent {
		t.Errorf("aliases[member] = %q, want student", resp.Aliases["member"])
	}
}

func TestListUsers(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.userWithRoles(t, "admin@campion.edu.jm", auth.RoleAdmin)
	_, tech := e.userWithRoles(t, "tech@campion.edu.jm", auth.RoleTechTeam)
	_, student := e.userWithRoles(t, "kid@campion.edu.jm")

	for _, token := range []string{admin, tech} {
		w := e.do(t, http.MethodGet, "/api/v1/users", nil, token)
		wantStatus(t, w, http.StatusOK)
		resp := decode[struct {
			Users []userWithRoles `json:"users"`
			Count int             `json:"count"`
		}](t, w)
		if resp.Count != 3 {
			t.Errorf("count = %d, want 3", resp.Count)
		}
	}

	wantStatus(t, e.do(t, http.MethodGet, "/api/v1/users", nil, student), http.StatusForbidden)
}

func TestGetUserRoles(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.userWithRoles(t, "admin@campion.edu.jm", auth.RoleAdmin)
	target, _ := e.userWithRoles(t, "target@campion.edu.jm", auth.RoleBeadle)

	w := e.do(t, http.MethodGet, rolesPath(target.ID), nil, admin)
	wantStatus(t, w, http.StatusOK)

	wantStatus(t, e.do(t, http.MethodGet, rolesPath(9999), nil, admin), http.StatusNotFound)
	wantStatus(t, e.do(t, http.MethodGet, "/api/v1/users/abc/roles", nil, admin), http.StatusBadRequest)
}

func TestAddUserRole(t *testing.T) {
	e := newTestEnv(t)
	adminUser, admin := e.userWithRoles(t, "admin@campion.edu.jm", auth.RoleAdmin)
	target, _ := e.userWithRoles(t, "target@campion.edu.jm")
	feed := subscribedClient(t, e.srv.hub, mqtt.EventRolesChanged)

	w := e.do(t, http.MethodPost, rolesPath(target.ID), map[string]any{"role": auth.RoleBeadle}, admin)
	wantStatus(t, w, http.StatusOK)

	result := decode[auth.MutationResult](t, w)
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if want := []string{auth.RoleBeadle, auth.RoleStudent}; !slices.Equal(roleNamesOf(t, e, target.ID), want) {
		t.Errorf("roles = %v, want %v", roleNamesOf(t, e, target.ID), want)
	}

	select {
	case data := <-feed.send:
		var msg struct {
			EventType string            `json:"event_type"`
			Payload   rolesChangedEvent `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if msg.EventType != mqtt.EventRolesChanged || msg.Payload.UserID != target.ID || msg.Payload.ActorID != adminUser.ID {
			t.Errorf("event = %+v", msg)
		}
	default:
		t.Error("no roles_changed event broadcast")
	}

	entries := e.flushAudit(t, audit.Filter{Action: audit.ActionRoleAdd})
	if len(entries) != 1 || entries[0].EntityID != strconv.FormatInt(target.ID, 10) {
		t.Errorf("audit entries = %+v, want one role_add for the target", entries)
	}
}

func TestAddUserRole_Failures(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.userWithRoles(t, "admin@campion.edu.jm", auth.RoleAdmin)
	target, _ := e.userWithRoles(t, "target@campion.edu.jm")

	tests := []struct {
		name    string
		path    string
		body    any
		want    int
		wantErr string
	}{
		{"unknown role", rolesPath(target.ID), map[string]any{"role": "prefect"}, http.StatusBadRequest, `role not found: "prefect"`},
		{"unknown user", rolesPath(9999), map[string]any{"role": auth.RoleBeadle}, http.StatusNotFound, auth.ErrUserNotFound.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, tt.path, tt.body, admin)
			wantStatus(t, w, tt.want)
			result := decode[auth.MutationResult](t, w)
			if result.Success || result.Error != tt.wantErr {
				t.Errorf("result = %+v, want failure %q", result, tt.wantErr)
			}
		})
	}

	wantStatus(t, e.do(t, http.MethodPost, rolesPath(target.ID), map[string]any{}, admin), http.StatusBadRequest)
}

func TestRemoveUserRole_LastRoleFallsBack(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.userWithRoles(t, "admin@campion.edu.jm", auth.RoleAdmin)
	target, _ := e.userWithRoles(t, "target@campion.edu.jm", auth.RoleBeadle)

	w := e.do(t, http.MethodDelete, rolesPath(target.ID)+"/"+auth.RoleBeadle, nil, admin)
	wantStatus(t, w, http.StatusOK)

	result := decode[auth.MutationResult](t, w)
	if !slices.Equal(result.Roles, []string{auth.RoleStudent}) {
		t.Errorf("roles = %v, want [student]", result.Roles)
	}
}

func TestSetUserRoles(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.userWithRoles(t, "admin@campion.edu.jm", auth.RoleAdmin)
	target, _ := e.userWithRoles(t, "target@campion.edu.jm", auth.RoleBeadle, auth.RoleStudent)

	tests := []struct {
		name      string
		roles     []string
		want      int
		wantRoles []string
	}{
		{"replace", []string{auth.RoleStaff, auth.RoleSupervisor}, http.StatusOK, []string{auth.RoleStaff, auth.RoleSupervisor}},
		{"unknown role leaves roles unchanged", []string{auth.RoleAdmin, "headmaster"}, http.StatusBadRequest, []string{auth.RoleStaff, auth.RoleSupervisor}},
		{"duplicates collapse", []string{auth.RoleBeadle, auth.RoleBeadle}, http.StatusOK, []string{auth.RoleBeadle}},
		{"empty list means default role", []string{}, http.StatusOK, []string{auth.RoleStudent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPut, rolesPath(target.ID), map[string]any{"roles": tt.roles}, admin)
			wantStatus(t, w, tt.want)
			if got := roleNamesOf(t, e, target.ID); !slices.Equal(got, tt.wantRoles) {
				t.Errorf("roles = %v, want %v", got, tt.wantRoles)
			}
		})
	}
}

func TestRoleMutation_RequiresAdmin(t *testing.T) {
	e := newTestEnv(t)
	_, tech := e.userWithRoles(t, "tech@campion.edu.jm", auth.RoleTechTeam)
	target, _ := e.userWithRoles(t, "target@campion.edu.jm")

	w := e.do(t, http.MethodPut, rolesPath(target.ID), map[string]any{"roles": []string{auth.RoleAdmin}}, tech)
	wantStatus(t, w, http.StatusForbidden)

	denied := decode[PermissionError](t, w)
	if !slices.Equal(denied.Required, []string{auth.RoleAdmin}) {
		t.Errorf("required_roles = %v, want [admin]", denied.Required)
	}
	if got := roleNamesOf(t, e, target.ID); !slices.Equal(got, []string{auth.RoleStudent}) {
		t.Errorf("roles = %v, want unchanged", got)
	}
}

func TestRoleChange_TakesEffectImmediately(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.userWithRoles(t, "admin@campion.edu.jm", auth.RoleAdmin)
	target, token := e.userWithRoles(t, "promoted@campion.edu.jm")

	wantStatus(t, e.do(t, http.MethodGet, "/api/v1/slips/mine", nil, token), http.StatusForbidden)

	wantStatus(t, e.do(t, http.MethodPost, rolesPath(target.ID), map[string]any{"role": auth.RoleBeadle}, admin), http.StatusOK)

	wantStatus(t, e.do(t, http.MethodGet, "/api/v1/slips/mine", nil, token), http.StatusOK)
}

func TestFinishMutation_Status(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown role", &auth.RoleNotFoundError{Name: "prefect"}, http.StatusBadRequest},
		{"unknown assigning user", fmt.Errorf("assigning user 9: %w", auth.ErrActorNotFound), http.StatusBadRequest},
		{"unknown target user", auth.ErrUserNotFound, http.StatusNotFound},
		{"storage failure", errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			e.srv.finishMutation(w, 1, 2, audit.ActionRoleAdd, map[string]any{}, auth.MutationResult{Err: tt.err})
			wantStatus(t, w, tt.want)
		})
	}
}
