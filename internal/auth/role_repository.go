package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/campioncollege/beadle-core/internal/infrastructure/database"
)

// RoleCatalog is the fixed set of roles known to the system.
// Roles are seeded at startup and never created or deleted at runtime.
type RoleCatalog interface {
	Seed(ctx context.Context, roles []Role) (int, error)
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, name string) (*Role, error)
}

// SQLiteRoleCatalog implements RoleCatalog using SQLite.
type SQLiteRoleCatalog struct {
	db *sql.DB
}

// NewRoleCatalog creates a new SQLite-backed role catalog.
func NewRoleCatalog(db *sql.DB) *SQLiteRoleCatalog {
	return &SQLiteRoleCatalog{db: db}
}

const roleColumns = "id, role_name, role_type, display_name, description, permission_level, parent_role"

// Seed inserts every role whose name is not yet present and leaves existing
// rows untouched. Parents must precede their sub-roles in roles.
// It returns how many roles were inserted.
func (c *SQLiteRoleCatalog) Seed(ctx context.Context, roles []Role) (int, error) {
	inserted := 0
	err := database.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		for _, role := range roles {
			if role.Type != RoleTypePrimary && role.Type != RoleTypeSub {
				return fmt.Errorf("seeding role %q: invalid role type %q", role.Name, role.Type)
			}
			result, err := tx.ExecContext(ctx,
				`INSERT INTO roles (role_name, role_type, display_name, description, permission_level, parent_role)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT(role_name) DO NOTHING`,
				role.Name, string(role.Type), role.DisplayName, role.Description,
				role.PermissionLevel, nullString(role.Parent),
			)
			if err != nil {
				return fmt.Errorf("seeding role %q: %w", role.Name, err)
			}
			n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// List returns every role ordered by permission level, then name.
func (c *SQLiteRoleCatalog) List(ctx context.Context) ([]Role, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT "+roleColumns+" FROM roles ORDER BY permission_level ASC, role_name ASC")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		role, err := scanRoleFrom(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return roles, nil
}

// Get returns the named role, or a *RoleNotFoundError.
func (c *SQLiteRoleCatalog) Get(ctx context.Context, name string) (*Role, error) {
	role, err := scanRoleFrom(c.db.QueryRowContext(ctx,
		"SELECT "+roleColumns+" FROM roles WHERE role_name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &RoleNotFoundError{Name: name}
	}
	return role, err
}

// roleIDTx looks up a role id inside a transaction.
func roleIDTx(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM roles WHERE role_name = ?", name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &RoleNotFoundError{Name: name}
		}
		return 0, fmt.Errorf("looking up role %q: %w", name, err)
	}
	return id, nil
}

// scanRoleFrom scans the roleColumns. sql.ErrNoRows is returned unwrapped.
func scanRoleFrom(s scanner) (*Role, error) {
	var r Role
	var roleType string
	var parent sql.NullString

	err := s.Scan(&r.ID, &r.Name, &roleType, &r.DisplayName, &r.Description, &r.PermissionLevel, &parent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}

	r.Type = RoleType(roleType)
	r.Parent = parent.String
	return &r, nil
}
