package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/campioncollege/beadle-core/internal/infrastructure/database"
)

// SessionRepository issues and resolves opaque login tokens.
type SessionRepository interface {
	Create(ctx context.Context, userID int64, deviceInfo string, ttl time.Duration) (string, *Session, error)
	Resolve(ctx context.Context, token string) (*SessionUser, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID int64, keepToken string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteSessionRepository implements SessionRepository using SQLite.
// Raw tokens never touch the database; only their SHA-256 hash is stored.
type SQLiteSessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db, now: database.Now}
}

// HashToken returns the hex SHA-256 of a raw session token.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// maxDeviceInfoLength caps the stored User-Agent, in bytes.
const maxDeviceInfoLength = 255

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Create starts a session for userID and returns the raw token, which is a
// random (v4) UUID. A ttl of zero creates a session that never expires.
// One user may hold any number of sessions.
func (r *SQLiteSessionRepository) Create(ctx context.Context, userID int64, deviceInfo string, ttl time.Duration) (string, *Session, error) {
	if ttl < 0 {
		return "", nil, fmt.Errorf("session ttl %s is negative", ttl)
	}

	token, err := uuid.NewRandom()
	if err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	raw := token.String()

	deviceInfo = truncateUTF8(deviceInfo, maxDeviceInfoLength)

	now := r.now()
	s := &Session{
		UserID:     userID,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
	}

	var expiresAt sql.NullString
	if ttl > 0 {
		exp := now.Add(ttl)
		s.ExpiresAt = &exp
		expiresAt = sql.NullString{String: database.Timestamp(exp), Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, device_info, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		HashToken(raw), userID, deviceInfo, database.Timestamp(now), expiresAt,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return "", nil, ErrUserNotFound
		}
		return "", nil, fmt.Errorf("creating session: %w", err)
	}

	s.ID, err = result.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("reading session id: %w", err)
	}
	return raw, s, nil
}

// Resolve maps a raw token to its user. Unknown, malformed and expired
// tokens all yield ErrSessionInvalid.
func (r *SQLiteSessionRepository) Resolve(ctx context.Context, token string) (*SessionUser, error) {
	if !wellFormedToken(token) {
		return nil, ErrSessionInvalid
	}

	var u SessionUser
	var expiresAt sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.full_name, s.expires_at
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash = ?`, HashToken(token),
	).Scan(&u.ID, &u.Email, &u.FullName, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	if expiresAt.Valid && !r.now().Before(database.ParseTimestamp(expiresAt.String)) {
		return nil, ErrSessionInvalid
	}
	return &u, nil
}

// Delete ends the session for token. Ending an unknown session is not an error.
func (r *SQLiteSessionRepository) Delete(ctx context.Context, token string) error {
	if !wellFormedToken(token) {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", HashToken(token)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteByUser ends every session of a user except the one for keepToken,
// which may be empty, and returns how many were ended.
func (r *SQLiteSessionRepository) DeleteByUser(ctx context.Context, userID int64, keepToken string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE user_id = ? AND token_hash <> ?",
		userID, HashToken(keepToken),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting sessions of user %d: %w", userID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// DeleteExpired removes sessions past their expiry and returns the count.
func (r *SQLiteSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= ?",
		database.Timestamp(r.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// wellFormedToken rejects anything that is not a canonical UUID string
// before it reaches the database.
func wellFormedToken(token string) bool {
	if len(token) != 36 { //nolint:mnd // canonical 8-4-4-4-12 form
		return false
	}
	_, err := uuid.Parse(token)
	return err == nil
}
