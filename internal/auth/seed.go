package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes in a seeded admin password.
const seedPasswordBytes = 16

// DefaultRoles returns the college's role catalog, parents before sub-roles.
func DefaultRoles() []Role {
	roles := []Role{
		{Name: RoleStudent, Type: RoleTypePrimary, DisplayName: "Student", PermissionLevel: 10,
			Description: "Every enrolled student. Granted at signup."},
		{Name: RoleBeadle, Type: RoleTypeSub, Parent: RoleStudent, DisplayName: "Beadle", PermissionLevel: 20,
			Description: "Student who submits per-class attendance slips for a form class."},
		{Name: RoleStaff, Type: RoleTypePrimary, DisplayName: "Staff", PermissionLevel: 30,
			Description: "Teaching and administrative staff. Reads submitted slips."},
		{Name: RoleSupervisor, Type: RoleTypePrimary, DisplayName: "Supervisor", PermissionLevel: 40,
			Description: "Reviews slips and follows up on absent or late teachers."},
	}
	for i := 1; i <= 5; i++ {
		roles = append(roles, Role{
			Name:            fmt.Sprintf("%s_%d", RoleSupervisor, i),
			Type:            RoleTypeSub,
			Parent:          RoleSupervisor,
			DisplayName:     fmt.Sprintf("Form %d Supervisor", i),
			Description:     fmt.Sprintf("Supervisor for form %d classes.", i),
			PermissionLevel: 40 + i,
		})
	}
	return append(roles,
		Role{Name: RoleTechTeam, Type: RoleTypePrimary, DisplayName: "Tech Team", PermissionLevel: 50,
			Description: "Maintains the system. Reads accounts and service metrics."},
		Role{Name: RoleAdmin, Type: RoleTypePrimary, DisplayName: "Administrator", PermissionLevel: 100,
			Description: "Manages accounts and role assignments."},
	)
}

// SeedCatalog inserts any DefaultRoles missing from the catalog.
func SeedCatalog(ctx context.Context, catalog RoleCatalog, logger *slog.Logger) error {
	n, err := catalog.Seed(ctx, DefaultRoles())
	if err != nil {
		return fmt.Errorf("seeding role catalog: %w", err)
	}
	if n > 0 {
		logger.Info("role catalog seeded", "inserted", n)
	}
	return nil
}

// SeedAdmin creates the first administrator on first boot, when there are
// no users and an email is configured. The random password is logged once
// and returned; it is empty when seeding was skipped.
func SeedAdmin(ctx context.Context, users UserRepository, assignments AssignmentRepository, email string, logger *slog.Logger) (string, error) {
	if email == "" {
		return "", nil
	}

	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Email:        email,
		PasswordHash: hash,
		FullName:     "System Administrator",
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}
	if err := assignments.SetRoles(ctx, admin.ID, []string{RoleAdmin}, nil); err != nil {
		return "", fmt.Errorf("granting seed admin role: %w", err)
	}

	logger.Warn("seed admin account created",
		"email", admin.Email,
		"initial_password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
