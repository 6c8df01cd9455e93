package auth

import (
	"errors"
	"slices"
	"testing"
)

func TestAssignments_Scenario(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	ctx := t.Context()
	user := seedTestUser(t, db, "u42@campion.edu.jm")

	if err := repo.AddRole(ctx, user.ID, RoleBeadle, nil); err != nil {
		t.Fatalf("AddRole(beadle) error = %v", err)
	}
	if got := heldRoles(t, db, user.ID); !slices.Equal(got, []string{"student", "beadle"}) {
		t.Errorf("after add beadle = %v, want [student beadle]", got)
	}

	if err := repo.RemoveRole(ctx, user.ID, RoleStudent); err != nil {
		t.Fatalf("RemoveRole(student) error = %v", err)
	}
	if got := heldRoles(t, db, user.ID); !slices.Equal(got, []string{"beadle"}) {
		t.Errorf("after remove student = %v, want [beadle]", got)
	}

	if err := repo.RemoveRole(ctx, user.ID, RoleBeadle); err != nil {
		t.Fatalf("RemoveRole(beadle) error = %v", err)
	}
	if got := heldRoles(t, db, user.ID); !slices.Equal(got, []string{"student"}) {
		t.Errorf("after removing last role = %v, want [student]", got)
	}
}

func TestAssignments_AddRoleIdempotent(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	user := seedTestUser(t, db, "twice@campion.edu.jm")

	for range 2 {
		if err := repo.AddRole(t.Context(), user.ID, RoleAdmin, nil); err != nil {
			t.Fatalf("AddRole() error = %v", err)
		}
	}

	var rows int
	err := db.QueryRowContext(t.Context(),
		`SELECT COUNT(*) FROM role_assignments ra JOIN roles r ON r.id = ra.role_id
		 WHERE ra.user_id = ? AND r.role_name = ?`, user.ID, RoleAdmin).Scan(&rows)
	if err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if rows != 1 {
		t.Errorf("assignment rows for (user, admin) = %d, want 1", rows)
	}
}

func TestAssignments_AddRoleBumpsUpdatedAt(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "bump@campion.edu.jm")

	if _, err := db.ExecContext(t.Context(),
		"UPDATE users SET updated_at = '2000-01-01T00:00:00Z' WHERE id = ?", user.ID); err != nil {
		t.Fatalf("backdating user: %v", err)
	}
	if err := NewAssignmentRepository(db).AddRole(t.Context(), user.ID, RoleStaff, nil); err != nil {
		t.Fatalf("AddRole() error = %v", err)
	}

	got, err := NewUserRepository(db).GetByID(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.UpdatedAt.Year() == 2000 {
		t.Error("AddRole() should bump updated_at")
	}
}

func TestAssignments_AssignedByRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	admin := seedTestUser(t, db, "admin@campion.edu.jm", RoleAdmin)
	user := seedTestUser(t, db, "pupil@campion.edu.jm")

	if err := repo.AddRole(t.Context(), user.ID, RoleBeadle, int64Ptr(admin.ID)); err != nil {
		t.Fatalf("AddRole() error = %v", err)
	}

	assignments, err := repo.RolesOf(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("RolesOf() error = %v", err)
	}

	var found int
	for _, a := range assignments {
		if a.Name != RoleBeadle {
			if a.AssignedBy != nil {
				t.Errorf("%s AssignedBy = %d, want nil", a.Name, *a.AssignedBy)
			}
			continue
		}
		found++
		if a.AssignedBy == nil || *a.AssignedBy != admin.ID {
			t.Errorf("beadle AssignedBy = %v, want %d", a.AssignedBy, admin.ID)
		}
		if a.AssignedAt.IsZero() {
			t.Error("AssignedAt should be set")
		}
	}
	if found != 1 {
		t.Errorf("beadle appears %d times, want exactly once", found)
	}
}

func TestAssignments_UnknownRole(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	user := seedTestUser(t, db, "unknown@campion.edu.jm")

	tests := []struct {
		name string
		call func() error
	}{
		{"add", func() error { return repo.AddRole(t.Context(), user.ID, "bogus_role", nil) }},
		{"remove", func() error { return repo.RemoveRole(t.Context(), user.ID, "bogus_role") }},
		{"set", func() error { return repo.SetRoles(t.Context(), user.ID, []string{"bogus_role"}, nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var rnf *RoleNotFoundError
			if !errors.As(err, &rnf) || rnf.Name != "bogus_role" {
				t.Errorf("error = %v, want RoleNotFoundError(bogus_role)", err)
			}
			if got := heldRoles(t, db, user.ID); !slices.Equal(got, []string{"student"}) {
				t.Errorf("roles = %v, want unchanged [student]", got)
			}
		})
	}
}

func TestAssignments_UnknownUser(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)

	if err := repo.AddRole(t.Context(), 999, RoleAdmin, nil); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("AddRole() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.RemoveRole(t.Context(), 999, RoleAdmin); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("RemoveRole() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.SetRoles(t.Context(), 999, []string{RoleAdmin}, nil); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetRoles() error = %v, want ErrUserNotFound", err)
	}
}

// A missing assigning user is not reported as a missing target user.
func TestAssignments_UnknownActor(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	user := seedTestUser(t, db, "actor-target@campion.edu.jm", RoleBeadle)
	missing := int64(9999)

	tests := []struct {
		name string
		call func() error
	}{
		{"add new role", func() error { return repo.AddRole(t.Context(), user.ID, RoleAdmin, &missing) }},
		{"add held role", func() error { return repo.AddRole(t.Context(), user.ID, RoleBeadle, &missing) }},
		{"set roles", func() error { return repo.SetRoles(t.Context(), user.ID, []string{RoleStaff}, &missing) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrActorNotFound) {
				t.Errorf("error = %v, want ErrActorNotFound", err)
			}
			if errors.Is(err, ErrUserNotFound) {
				t.Errorf("error = %v, must not match ErrUserNotFound", err)
			}
		})
	}

	if got := heldRoles(t, db, user.ID); !slices.Equal(got, []string{RoleBeadle}) {
		t.Errorf("roles = %v, want [beadle] unchanged", got)
	}
}

func TestAssignments_RemoveRoleNotHeld(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	user := seedTestUser(t, db, "nothold@campion.edu.jm", RoleStaff)

	if err := repo.RemoveRole(t.Context(), user.ID, RoleAdmin); err != nil {
		t.Fatalf("RemoveRole() error = %v", err)
	}
	if got := heldRoles(t, db, user.ID); !slices.Equal(got, []string{"staff"}) {
		t.Errorf("roles = %v, want [staff]", got)
	}
}

func TestAssignments_SetRoles(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"replace", []string{"admin", "supervisor"}, []string{"supervisor", "admin"}},
		{"empty means student", []string{}, []string{"student"}},
		{"nil means student", nil, []string{"student"}},
		{"duplicates collapse", []string{"staff", "staff", "beadle"}, []string{"beadle", "staff"}},
		{"sub-role alone", []string{"supervisor_3"}, []string{"supervisor_3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			user := seedTestUser(t, db, "set@campion.edu.jm", RoleTechTeam)

			if err := NewAssignmentRepository(db).SetRoles(t.Context(), user.ID, tt.input, nil); err != nil {
				t.Fatalf("SetRoles(%v) error = %v", tt.input, err)
			}
			if got := heldRoles(t, db, user.ID); !slices.Equal(got, tt.want) {
				t.Errorf("roles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssignments_SetRolesAllOrNothing(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	user := seedTestUser(t, db, "atomic@campion.edu.jm", RoleBeadle, RoleStaff)
	before := heldRoles(t, db, user.ID)

	err := repo.SetRoles(t.Context(), user.ID, []string{"admin", "bogus_role", "also_bogus"}, nil)

	var rnf *RoleNotFoundError
	if !errors.As(err, &rnf) {
		t.Fatalf("SetRoles() error = %v, want RoleNotFoundError", err)
	}
	if rnf.Name != "bogus_role" {
		t.Errorf("RoleNotFoundError.Name = %q, want first invalid %q", rnf.Name, "bogus_role")
	}
	if got := heldRoles(t, db, user.ID); !slices.Equal(got, before) {
		t.Errorf("roles = %v, want unchanged %v", got, before)
	}
}

func TestAssignments_HasRole(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	user := seedTestUser(t, db, "has@campion.edu.jm", RoleBeadle, RoleStudent)

	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"held", []string{RoleBeadle}, true},
		{"not held", []string{RoleAdmin}, false},
		{"one of several", []string{RoleAdmin, RoleStudent}, true},
		{"none of several", []string{RoleAdmin, RoleStaff}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.HasAnyRole(t.Context(), user.ID, tt.roles)
			if err != nil {
				t.Fatalf("HasAnyRole() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasAnyRole(%v) = %v, want %v", tt.roles, got, tt.want)
			}
		})
	}

	ok, err := repo.HasRole(t.Context(), user.ID, RoleBeadle)
	if err != nil || !ok {
		t.Errorf("HasRole(beadle) = %v, %v; want true, nil", ok, err)
	}
}

// TestAssignments_NeverRoleless drives a fixed mix of mutations and checks
// after each one that the user still holds a role.
func TestAssignments_NeverRoleless(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	ctx := t.Context()
	user := seedTestUser(t, db, "mix@campion.edu.jm")

	steps := []func() error{
		func() error { return repo.RemoveRole(ctx, user.ID, RoleStudent) },
		func() error { return repo.AddRole(ctx, user.ID, RoleAdmin, nil) },
		func() error { return repo.SetRoles(ctx, user.ID, nil, nil) },
		func() error { return repo.SetRoles(ctx, user.ID, []string{RoleStaff}, nil) },
		func() error { return repo.RemoveRole(ctx, user.ID, RoleStaff) },
		func() error { return repo.RemoveRole(ctx, user.ID, RoleStudent) },
		func() error { return repo.SetRoles(ctx, user.ID, []string{"bogus_role"}, nil) },
		func() error { return repo.AddRole(ctx, user.ID, RoleBeadle, nil) },
		func() error { return repo.RemoveRole(ctx, user.ID, RoleBeadle) },
	}

	for i, step := range steps {
		err := step()
		if err != nil && !errors.Is(err, ErrRoleNotFound) {
			t.Fatalf("step %d error = %v", i, err)
		}
		if got := heldRoles(t, db, user.ID); len(got) == 0 {
			t.Fatalf("user is role-less after step %d", i)
		}
	}
}

func TestSchema_AccountTables(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"users", "roles", "role_assignments", "sessions"} {
		var n int
		if err := db.QueryRowContext(t.Context(),
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&n); err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}
