package auth

import (
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := t.Context()

	user := &User{
		Email:        "  Kemar.Brown@Campion.edu.JM ",
		PasswordHash: testPasswordHash,
		FullName:     "Kemar Brown",
		FormClass:    "5B",
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == 0 {
		t.Fatal("Create() should assign an ID")
	}
	if user.Email != "kemar.brown@campion.edu.jm" {
		t.Errorf("Email = %q, want normalised form", user.Email)
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FullName != "Kemar Brown" {
		t.Errorf("FullName = %q, want %q", got.FullName, "Kemar Brown")
	}
	if got.FormClass != "5B" {
		t.Errorf("FormClass = %q, want %q", got.FormClass, "5B")
	}
	if !got.CreatedAt.Equal(user.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, user.CreatedAt)
	}

	byEmail, err := repo.GetByEmail(ctx, "KEMAR.BROWN@campion.edu.jm")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("GetByEmail() ID = %d, want %d", byEmail.ID, user.ID)
	}
}

func TestUserRepository_CreateGrantsDefaultRole(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "new@campion.edu.jm")

	roles := heldRoles(t, db, user.ID)
	if len(roles) != 1 || roles[0] != RoleStudent {
		t.Errorf("roles after signup = %v, want [student]", roles)
	}
}

func TestUserRepository_CreateDuplicateEmail(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "dup@campion.edu.jm")

	err := NewUserRepository(db).Create(t.Context(), &User{
		Email:        "DUP@campion.edu.jm",
		PasswordHash: testPasswordHash,
		FullName:     "Second",
	})
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("Create() error = %v, want ErrEmailExists", err)
	}
}

func TestUserRepository_CreateValidation(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	tests := []struct {
		name string
		user User
		want error
	}{
		{"invalid email", User{Email: "not-an-email", FullName: "X"}, ErrInvalidEmail},
		{"display name form", User{Email: "Kemar <k@campion.edu.jm>", FullName: "X"}, ErrInvalidEmail},
		{"no domain dot", User{Email: "k@localhost", FullName: "X"}, ErrInvalidEmail},
		{"missing name", User{Email: "k@campion.edu.jm", FullName: "   "}, ErrFullNameRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			u.PasswordHash = testPasswordHash
			if err := repo.Create(t.Context(), &u); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}

	count, err := repo.Count(t.Context())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0 after rejected creates", count)
	}
}

func TestUserRepository_GetNotFound(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	if _, err := repo.GetByID(t.Context(), 999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetByEmail(t.Context(), "nobody@campion.edu.jm"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByEmail() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	users, err := repo.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("List() on empty table = %v, want empty non-nil slice", users)
	}

	a := seedTestUser(t, db, "a@campion.edu.jm")
	b := seedTestUser(t, db, "b@campion.edu.jm")

	users, err = repo.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 || users[0].ID != a.ID || users[1].ID != b.ID {
		t.Errorf("List() = %+v, want users %d then %d", users, a.ID, b.ID)
	}
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	user := seedTestUser(t, db, "profile@campion.edu.jm")

	got, err := repo.UpdateProfile(t.Context(), user.ID, " Shanice Clarke ", "4A")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.FullName != "Shanice Clarke" || got.FormClass != "4A" {
		t.Errorf("profile = (%q, %q), want (Shanice Clarke, 4A)", got.FullName, got.FormClass)
	}

	got, err = repo.UpdateProfile(t.Context(), user.ID, "Shanice Clarke", "")
	if err != nil {
		t.Fatalf("UpdateProfile() clearing form error = %v", err)
	}
	if got.FormClass != "" {
		t.Errorf("FormClass = %q, want cleared", got.FormClass)
	}

	if _, err := repo.UpdateProfile(t.Context(), user.ID, "", "4A"); !errors.Is(err, ErrFullNameRequired) {
		t.Errorf("UpdateProfile() empty name error = %v, want ErrFullNameRequired", err)
	}
	if _, err := repo.UpdateProfile(t.Context(), 999, "X", ""); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateProfile() unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	user := seedTestUser(t, db, "pw@campion.edu.jm")

	if err := repo.UpdatePassword(t.Context(), user.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	got, err := repo.GetByID(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, "new-hash")
	}

	if err := repo.UpdatePassword(t.Context(), 999, "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdatePassword() unknown user error = %v, want ErrUserNotFound", err)
	}
}
