package auth

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/campioncollege/beadle-core/internal/infrastructure/config"
	"github.com/campioncollege/beadle-core/internal/infrastructure/database"
	_ "github.com/campioncollege/beadle-core/migrations" // registers the schema
)

// testDB creates a temporary, fully migrated database with the default
// role catalog seeded. It is closed when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	if err := SeedCatalog(t.Context(), NewRoleCatalog(db.DB), discardLogger()); err != nil {
		t.Fatalf("seeding catalog: %v", err)
	}

	return db.DB
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPasswordHash is computed once; Argon2id is slow on purpose.
var testPasswordHash = func() string {
	h, err := HashPassword("test-password")
	if err != nil {
		panic(err)
	}
	return h
}()

// seedTestUser inserts a user with password "test-password" holding the
// given roles (the default role when none are given).
func seedTestUser(t *testing.T, db *sql.DB, email string, roles ...string) *User {
	t.Helper()

	user := &User{
		Email:        email,
		PasswordHash: testPasswordHash,
		FullName:     "Test " + email,
	}
	if err := NewUserRepository(db).Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	if len(roles) > 0 {
		if err := NewAssignmentRepository(db).SetRoles(t.Context(), user.ID, roles, nil); err != nil {
			t.Fatalf("setting roles of %s: %v", email, err)
		}
	}
	return user
}

// heldRoles returns the user's role names in catalog order.
func heldRoles(t *testing.T, db *sql.DB, userID int64) []string {
	t.Helper()

	assignments, err := NewAssignmentRepository(db).RolesOf(t.Context(), userID)
	if err != nil {
		t.Fatalf("RolesOf(%d) error = %v", userID, err)
	}
	return RoleNames(assignments)
}

func int64Ptr(v int64) *int64 { return &v }
