package auth

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Resilience tests verify that the auth subsystem handles failure scenarios
// gracefully. These tests use the TestResilience_ prefix for easy filtering:
//
//	go test -run TestResilience -race ./internal/auth/...

// TestResilience_ConcurrentMutations_NeverRoleless runs role writers against
// readers and checks no reader ever observes a user without roles.
func TestResilience_ConcurrentMutations_NeverRoleless(t *testing.T) {
	db := testDB(t)
	repo := NewAssignmentRepository(db)
	user := seedTestUser(t, db, "busy@campion.edu.jm", RoleBeadle)
	ctx := t.Context()

	const rounds = 25
	var writers sync.WaitGroup
	done := make(chan struct{})

	writers.Add(3) //nolint:mnd // three writer goroutines
	go func() {
		defer writers.Done()
		for range rounds {
			repo.SetRoles(ctx, user.ID, []string{RoleAdmin, RoleSupervisor}, nil) //nolint:errcheck // checked via reader
			repo.SetRoles(ctx, user.ID, nil, nil)                                 //nolint:errcheck // checked via reader
		}
	}()
	go func() {
		defer writers.Done()
		for range rounds {
			repo.RemoveRole(ctx, user.ID, RoleStudent) //nolint:errcheck // checked via reader
			repo.RemoveRole(ctx, user.ID, RoleAdmin)   //nolint:errcheck // checked via reader
		}
	}()
	go func() {
		defer writers.Done()
		for range rounds {
			repo.AddRole(ctx, user.ID, RoleStaff, nil)                          //nolint:errcheck // checked via reader
			repo.SetRoles(ctx, user.ID, []string{RoleStaff, "bogus_role"}, nil) //nolint:errcheck // expected to fail
		}
	}()

	var emptyReads int
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			held, err := repo.RolesOf(ctx, user.ID)
			if err == nil && len(held) == 0 {
				emptyReads++
			}
		}
	}()

	writers.Wait()
	close(done)
	readers.Wait()

	if emptyReads > 0 {
		t.Errorf("observed %d role-less reads during concurrent mutation", emptyReads)
	}
	if got := heldRoles(t, db, user.ID); len(got) == 0 {
		t.Error("user is role-less after concurrent mutation")
	}
}

// TestResilience_UserDeletion_CascadesCleanly verifies that deleting a user
// cascades to sessions and role assignments, and that roles granted by the
// deleted user survive with a cleared granter.
func TestResilience_UserDeletion_CascadesCleanly(t *testing.T) {
	db := testDB(t)
	sessions := NewSessionRepository(db)
	assignments := NewAssignmentRepository(db)
	ctx := t.Context()

	admin := seedTestUser(t, db, "leaving-admin@campion.edu.jm", RoleAdmin)
	pupil := seedTestUser(t, db, "pupil@campion.edu.jm")
	if err := assignments.AddRole(ctx, pupil.ID, RoleBeadle, int64Ptr(admin.ID)); err != nil {
		t.Fatalf("AddRole() error = %v", err)
	}
	for range 3 {
		if _, _, err := sessions.Create(ctx, admin.ID, "", time.Hour); err != nil {
			t.Fatalf("creating session: %v", err)
		}
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", admin.ID); err != nil {
		t.Fatalf("deleting user: %v", err)
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"sessions removed", "SELECT COUNT(*) FROM sessions WHERE user_id = ?", 0},
		{"assignments removed", "SELECT COUNT(*) FROM role_assignments WHERE user_id = ?", 0},
		{"granted roles kept", "SELECT COUNT(*) FROM role_assignments WHERE user_id <> ? AND assigned_by IS NULL", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n int
			if err := db.QueryRowContext(ctx, tt.query, admin.ID).Scan(&n); err != nil {
				t.Fatalf("query error = %v", err)
			}
			if n != tt.want {
				t.Errorf("count = %d, want %d", n, tt.want)
			}
		})
	}
}

// TestResilience_ContextCancellation_RepositoryOps verifies that repository
// operations respect context cancellation and return clean errors rather
// than panicking or leaving partial state.
func TestResilience_ContextCancellation_RepositoryOps(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	assignments := NewAssignmentRepository(db)
	user := seedTestUser(t, db, "cancel@campion.edu.jm", RoleStaff)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := users.List(ctx); err == nil {
		t.Error("List with cancelled context should return error")
	}
	if _, err := users.Count(ctx); err == nil {
		t.Error("Count with cancelled context should return error")
	}
	if err := users.Create(ctx, &User{
		Email:        "never@campion.edu.jm",
		PasswordHash: testPasswordHash,
		FullName:     "Never",
	}); err == nil {
		t.Error("Create with cancelled context should return error")
	}
	if err := assignments.SetRoles(ctx, user.ID, []string{RoleAdmin}, nil); err == nil {
		t.Error("SetRoles with cancelled context should return error")
	}

	if got := heldRoles(t, db, user.ID); len(got) != 1 || got[0] != RoleStaff {
		t.Errorf("roles = %v, want unchanged [staff]", got)
	}
	if count, _ := users.Count(t.Context()); count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

// TestResilience_GateUnderLoad checks that concurrent authorizations of
// one session agree.
func TestResilience_GateUnderLoad(t *testing.T) {
	f := newGateFixture(t)
	token, _ := loginAs(t, f, "load@campion.edu.jm", RoleSupervisor, RoleStaff)

	var wg sync.WaitGroup
	var mu sync.Mutex
	denied := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.gate.Authorize(t.Context(), token, AllOf("teacher", "supervisors"))
			if err != nil || !d.Allowed {
				mu.Lock()
				denied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if denied > 0 {
		t.Errorf("%d of 20 concurrent checks denied", denied)
	}
}
