package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Authenticator turns credentials into sessions.
type Authenticator struct {
	users    UserRepository
	sessions SessionRepository
	ttl      time.Duration
}

// NewAuthenticator creates an Authenticator. Sessions it issues live for
// ttl; zero means until logout.
func NewAuthenticator(users UserRepository, sessions SessionRepository, ttl time.Duration) *Authenticator {
	return &Authenticator{users: users, sessions: sessions, ttl: ttl}
}

// SignupInput holds the fields a new account is created from.
type SignupInput struct {
	Email     string
	Password  string
	FullName  string
	FormClass string
}

// dummyHash is verified against when the email is unknown so that a
// failed login costs the same whether or not the account exists.
var dummyHash = sync.OnceValue(func() string {
	h, err := HashPassword("beadle-timing-equaliser")
	if err != nil {
		return ""
	}
	return h
})

// Login checks credentials and starts a session. An unknown email and a
// wrong password both return ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, email, password, deviceInfo string) (string, *User, error) {
	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifyPassword(password, dummyHash()) //nolint:errcheck // timing only
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	token, _, err := a.sessions.Create(ctx, user.ID, deviceInfo, a.ttl)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Signup creates an account holding DefaultRole and logs it in.
func (a *Authenticator) Signup(ctx context.Context, in SignupInput, deviceInfo string) (string, *User, error) {
	if err := ValidatePassword(in.Password); err != nil {
		return "", nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return "", nil, err
	}

	user := &User{
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		FormClass:    in.FormClass,
	}
	if err := a.users.Create(ctx, user); err != nil {
		return "", nil, err
	}

	token, _, err := a.sessions.Create(ctx, user.ID, deviceInfo, a.ttl)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Logout ends the session for token.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	return a.sessions.Delete(ctx, token)
}

// ChangePassword replaces the user's password after checking the current
// one, then ends every session of the user except keepToken.
func (a *Authenticator) ChangePassword(ctx context.Context, userID int64, current, next, keepToken string) error {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := ValidatePassword(next); err != nil {
		return err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := a.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if _, err := a.sessions.DeleteByUser(ctx, userID, keepToken); err != nil {
		return err
	}
	return nil
}
