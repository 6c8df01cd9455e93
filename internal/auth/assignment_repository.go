package auth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campioncollege/beadle-core/internal/infrastructure/database"
)

// AssignmentRepository manages which roles each user holds.
//
// Every mutation keeps the invariant that a user holds at least one role:
// removing the last role re-grants DefaultRole and replacing with an empty
// set means replacing with {DefaultRole}. Each mutation runs in a single
// transaction, so concurrent readers never see a role-less user.
type AssignmentRepository interface {
	RolesOf(ctx context.Context, userID int64) ([]Assignment, error)
	HasRole(ctx context.Context, userID int64, roleName string) (bool, error)
	HasAnyRole(ctx context.Context, userID int64, roleNames []string) (bool, error)
	AddRole(ctx context.Context, userID int64, roleName string, assignedBy *int64) error
	RemoveRole(ctx context.Context, userID int64, roleName string) error
	SetRoles(ctx context.Context, userID int64, roleNames []string, assignedBy *int64) error
}

// SQLiteAssignmentRepository implements AssignmentRepository using SQLite.
type SQLiteAssignmentRepository struct {
	db *sql.DB
}

// NewAssignmentRepository creates a new SQLite-backed assignment repository.
func NewAssignmentRepository(db *sql.DB) *SQLiteAssignmentRepository {
	return &SQLiteAssignmentRepository{db: db}
}

// RolesOf returns the user's roles ordered by permission level, then name.
// An unknown user has no roles.
func (r *SQLiteAssignmentRepository) RolesOf(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.role_name, r.role_type, r.display_name, r.description, r.permission_level, r.parent_role,
		        ra.assigned_by, ra.assigned_at
		 FROM role_assignments ra
		 JOIN roles r ON r.id = ra.role_id
		 WHERE ra.user_id = ?
		 ORDER BY r.permission_level ASC, r.role_name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing roles of user %d: %w", userID, err)
	}
	defer rows.Close()

	assignments := []Assignment{}
	for rows.Next() {
		var a Assignment
		var roleType, assignedAt string
		var parent sql.NullString
		var assignedBy sql.NullInt64

		if err := rows.Scan(&a.ID, &a.Name, &roleType, &a.DisplayName, &a.Description,
			&a.PermissionLevel, &parent, &assignedBy, &assignedAt); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		a.Type = RoleType(roleType)
		a.Parent = parent.String
		if assignedBy.Valid {
			by := assignedBy.Int64
			a.AssignedBy = &by
		}
		a.AssignedAt = database.ParseTimestamp(assignedAt)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return assignments, nil
}

// HasRole reports whether the user holds roleName.
func (r *SQLiteAssignmentRepository) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	return r.HasAnyRole(ctx, userID, []string{roleName})
}

// HasAnyRole reports whether the user holds at least one of roleNames.
// An empty list is never satisfied.
func (r *SQLiteAssignmentRepository) HasAnyRole(ctx context.Context, userID int64, roleNames []string) (bool, error) {
	if len(roleNames) == 0 {
		return false, nil
	}

	held, err := r.RolesOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return intersects(RoleNames(held), roleNames), nil
}

// AddRole grants roleName to the user. Granting a role already held is a
// no-op apart from bumping the user's updated_at.
func (r *SQLiteAssignmentRepository) AddRole(ctx context.Context, userID int64, roleName string, assignedBy *int64) error {
	now := database.Timestamp(database.Now())

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		roleID, err := roleIDTx(ctx, tx, roleName)
		if err != nil {
			return err
		}
		if err := touchUserTx(ctx, tx, userID, now); err != nil {
			return err
		}
		if err := checkActorTx(ctx, tx, assignedBy); err != nil {
			return err
		}
		return insertAssignmentTx(ctx, tx, userID, roleID, assignedBy, now)
	})
}

// RemoveRole revokes roleName from the user. If that leaves the user with
// no roles, DefaultRole is granted before the transaction commits.
func (r *SQLiteAssignmentRepository) RemoveRole(ctx context.Context, userID int64, roleName string) error {
	now := database.Timestamp(database.Now())

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		roleID, err := roleIDTx(ctx, tx, roleName)
		if err != nil {
			return err
		}
		if err := touchUserTx(ctx, tx, userID, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM role_assignments WHERE user_id = ? AND role_id = ?", userID, roleID,
		); err != nil {
			return fmt.Errorf("removing role %q: %w", roleName, err)
		}

		return ensureDefaultRoleTx(ctx, tx, userID, now)
	})
}

// SetRoles replaces the user's whole role set with roleNames. An empty list
// means {DefaultRole}; duplicates are ignored.
//
// Every name is resolved before anything is deleted. If any is unknown the
// call fails with a *RoleNotFoundError naming the first unknown role and the
// user's roles are unchanged.
func (r *SQLiteAssignmentRepository) SetRoles(ctx context.Context, userID int64, roleNames []string, assignedBy *int64) error {
	names := dedupe(roleNames)
	if len(names) == 0 {
		names = []string{DefaultRole}
	}
	now := database.Timestamp(database.Now())

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		roleIDs := make([]int64, len(names))
		for i, name := range names {
			id, err := roleIDTx(ctx, tx, name)
			if err != nil {
				return err
			}
			roleIDs[i] = id
		}

		if err := touchUserTx(ctx, tx, userID, now); err != nil {
			return err
		}
		if err := checkActorTx(ctx, tx, assignedBy); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM role_assignments WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("clearing roles: %w", err)
		}
		for _, roleID := range roleIDs {
			if err := insertAssignmentTx(ctx, tx, userID, roleID, assignedBy, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// touchUserTx bumps updated_at and doubles as the existence check.
func touchUserTx(ctx context.Context, tx *sql.Tx, userID int64, now string) error {
	result, err := tx.ExecContext(ctx, "UPDATE users SET updated_at = ? WHERE id = ?", now, userID)
	if err != nil {
		return fmt.Errorf("updating user timestamp: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrUserNotFound
	}
	return nil
}

// checkActorTx fails with ErrActorNotFound when assignedBy names no user.
func checkActorTx(ctx context.Context, tx *sql.Tx, assignedBy *int64) error {
	if assignedBy == nil {
		return nil
	}
	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", *assignedBy,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking assigning user: %w", err)
	}
	if !exists {
		return fmt.Errorf("assigning user %d: %w", *assignedBy, ErrActorNotFound)
	}
	return nil
}

func insertAssignmentTx(ctx context.Context, tx *sql.Tx, userID, roleID int64, assignedBy *int64, now string) error {
	var by sql.NullInt64
	if assignedBy != nil {
		by = sql.NullInt64{Int64: *assignedBy, Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO role_assignments (user_id, role_id, assigned_by, assigned_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, role_id) DO NOTHING`,
		userID, roleID, by, now,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) && assignedBy != nil {
			return fmt.Errorf("assigning user %d: %w", *assignedBy, ErrActorNotFound)
		}
		return fmt.Errorf("inserting assignment: %w", err)
	}
	return nil
}

// ensureDefaultRoleTx grants DefaultRole if the user holds nothing.
func ensureDefaultRoleTx(ctx context.Context, tx *sql.Tx, userID int64, now string) error {
	var remaining int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM role_assignments WHERE user_id = ?", userID,
	).Scan(&remaining); err != nil {
		return fmt.Errorf("counting remaining roles: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	roleID, err := roleIDTx(ctx, tx, DefaultRole)
	if err != nil {
		return err
	}
	return insertAssignmentTx(ctx, tx, userID, roleID, nil, now)
}

func intersects(held, wanted []string) bool {
	set := make(map[string]struct{}, len(held))
	for _, h := range held {
		set[h] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func containsAll(held, wanted []string) bool {
	set := make(map[string]struct{}, len(held))
	for _, h := range held {
		set[h] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// dedupe drops repeated names, keeping first occurrences in order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
