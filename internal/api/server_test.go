package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/campioncollege/beadle-core/internal/audit"
	"github.com/campioncollege/beadle-core/internal/auth"
	"github.com/campioncollege/beadle-core/internal/infrastructure/config"
	"github.com/campioncollege/beadle-core/internal/infrastructure/database"
	"github.com/campioncollege/beadle-core/internal/infrastructure/logging"
	"github.com/campioncollege/beadle-core/internal/slip"
	_ "github.com/campioncollege/beadle-core/migrations" // registers the schema
)

const (
	testHashKey      = "0123456789abcdef0123456789abcdef"
	testBlockKey     = "fedcba9876543210"
	testTicketSecret = "ticket-secret-at-least-32-characters-long"
	testPassword     = "test-password"
)

// testPasswordHash is computed once; Argon2id is slow on purpose.
var testPasswordHash = func() string {
	h, err := auth.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return h
}()

// testEnv is a Server over a fully migrated temporary database.
type testEnv struct {
	srv       *Server
	handler   http.Handler
	db        *database.DB
	users     *auth.SQLiteUserRepository
	sessions  *auth.SQLiteSessionRepository
	auditRepo *audit.SQLiteRepository
	recorder  *audit.Recorder
}

func testSecurity() config.SecurityConfig {
	return config.SecurityConfig{
		Session: config.SessionConfig{
			TTLHours:   24,
			CookieName: "ebs_session",
			HashKey:    testHashKey,
			BlockKey:   testBlockKey,
		},
		Ticket: config.TicketConfig{
			Secret:     testTicketSecret,
			TTLSeconds: 60,
		},
	}
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
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

	log := testLogger()
	catalog := auth.NewRoleCatalog(db.DB)
	if err := auth.SeedCatalog(t.Context(), catalog, log.Logger); err != nil {
		t.Fatalf("seeding catalog: %v", err)
	}

	users := auth.NewUserRepository(db.DB)
	assignments := auth.NewAssignmentRepository(db.DB)
	sessions := auth.NewSessionRepository(db.DB)

	schedule, err := slip.NewSchedule(config.SchoolConfig{
		Name:     "Test College",
		Timezone: "America/Jamaica",
		Periods:  config.DefaultPeriods(),
	})
	if err != nil {
		t.Fatalf("building schedule: %v", err)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, 64, log.Logger)
	t.Cleanup(func() { recorder.Close(context.Background()) }) //nolint:errcheck // test cleanup

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:            config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security:      testSecurity(),
		SchoolName:    "Test College",
		Logger:        log,
		DB:            db,
		Users:         users,
		Catalog:       catalog,
		Assignments:   assignments,
		Sessions:      sessions,
		Gate:          auth.NewGate(sessions, assignments, nil),
		Authenticator: auth.NewAuthenticator(users, sessions, 24*time.Hour),
		RoleManager:   auth.NewRoleManager(assignments),
		Slips:         slip.NewService(slip.NewSQLiteRepository(db.DB), schedule),
		AuditRepo:     auditRepo,
		Audit:         recorder,
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{
		srv:       srv,
		handler:   srv.Handler(),
		db:        db,
		users:     users,
		sessions:  sessions,
		auditRepo: auditRepo,
		recorder:  recorder,
	}
}

// userWithRoles creates an account holding roles (the default role when
// none are given) and returns it with a fresh session token.
func (e *testEnv) userWithRoles(t *testing.T, email string, roles ...string) (*auth.User, string) {
	t.Helper()

	user := &auth.User{Email: email, PasswordHash: testPasswordHash, FullName: "Test " + email}
	if err := e.users.Create(t.Context(), user); err != nil {
		t.Fatalf("creating %s: %v", email, err)
	}
	if len(roles) > 0 {
		if err := auth.NewAssignmentRepository(e.db.DB).SetRoles(t.Context(), user.ID, roles, nil); err != nil {
			t.Fatalf("setting roles of %s: %v", email, err)
		}
	}
	token, _, err := e.sessions.Create(t.Context(), user.ID, "test", time.Hour)
	if err != nil {
		t.Fatalf("creating session for %s: %v", email, err)
	}
	return user, token
}

// do sends a request through the router. body may be a string of raw JSON,
// any other value to be encoded, or nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// flushAudit waits for queued audit entries and returns those matching f.
func (e *testEnv) flushAudit(t *testing.T, f audit.Filter) []audit.AuditLog {
	t.Helper()
	if err := e.recorder.Close(t.Context()); err != nil {
		t.Fatalf("closing recorder: %v", err)
	}
	result, err := e.auditRepo.List(t.Context(), f)
	if err != nil {
		t.Fatalf("listing audit logs: %v", err)
	}
	return result.Logs
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/health", nil, "")
	wantStatus(t, w, http.StatusOK)

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	e := newTestEnv(t)
	e.db.Close() //nolint:errcheck // simulating an outage

	w := e.do(t, http.MethodGet, "/api/v1/health", nil, "")
	wantStatus(t, w, http.StatusServiceUnavailable)
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/health", nil, "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := newTestEnv(t)
	e.srv.cfg.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	handler := e.srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/slips", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("ACAC = %q, want true", got)
	}
}

// An origin admitted only by an open policy may read public responses but
// never gets credentials, so the session cookie cannot be used from it.
func TestCORS_NoCredentialsForUnlistedOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
	}{
		{"no list", nil},
		{"wildcard", []string{"*"}},
		{"wildcard beside a listed origin", []string{"*", "https://beadle.campion.edu.jm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			_, token := e.userWithRoles(t, "cors@campion.edu.jm")
			e.srv.cfg.CORS.AllowedOrigins = tt.allowed
			handler := e.srv.Handler()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			req.Header.Set("Origin", "https://evil.example")
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://evil.example" {
				t.Errorf("ACAO = %q, want origin echoed", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
				t.Errorf("ACAC = %q, want none for an unlisted origin", got)
			}
		})
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	e := newTestEnv(t)
	e.srv.cfg.CORS.AllowedOrigins = []string{"https://beadle.campion.edu.jm"}
	handler := e.srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/nonexistent", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestBodySizeLimit(t *testing.T) {
	e := newTestEnv(t)

	huge := `{"email":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", huge, "")
	wantStatus(t, w, http.StatusRequestEntityTooLarge)
}

func TestRecovery(t *testing.T) {
	e := newTestEnv(t)
	handler := e.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	wantStatus(t, w, http.StatusInternalServerError)
	if got := decode[Error](t, w); got.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", got.Code, ErrCodeInternal)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	e := newTestEnv(t)
	valid := Deps{
		Security:      testSecurity(),
		Logger:        testLogger(),
		Users:         e.srv.users,
		Catalog:       e.srv.catalog,
		Assignments:   e.srv.assignments,
		Sessions:      e.srv.sessions,
		Gate:          e.srv.gate,
		Authenticator: e.srv.authn,
		RoleManager:   e.srv.roles,
		Slips:         e.srv.slips,
	}
	if _, err := New(valid); err != nil {
		t.Fatalf("New(valid) error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"no logger", func(d *Deps) { d.Logger = nil }},
		{"no sessions", func(d *Deps) { d.Sessions = nil }},
		{"no gate", func(d *Deps) { d.Gate = nil }},
		{"no slips", func(d *Deps) { d.Slips = nil }},
		{"no ticket secret", func(d *Deps) { d.Security.Ticket.Secret = "" }},
		{"short hash key", func(d *Deps) { d.Security.Session.HashKey = "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			if _, err := New(d); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestServer_StartAndClose(t *testing.T) {
	e := newTestEnv(t)

	if err := e.srv.HealthCheck(t.Context()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := e.srv.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.srv.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() after Start = %v", err)
	}
	if err := e.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSweepSessions(t *testing.T) {
	e := newTestEnv(t)
	user, live := e.userWithRoles(t, "sweep@campion.edu.jm")

	expired, _, err := e.sessions.Create(t.Context(), user.ID, "old", time.Second)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := e.db.ExecContext(t.Context(),
		"UPDATE sessions SET expires_at = ? WHERE token_hash = ?",
		database.Timestamp(time.Now().Add(-time.Hour)), auth.HashToken(expired),
	); err != nil {
		t.Fatalf("backdating session: %v", err)
	}

	e.srv.sweepSessions(t.Context())

	var remaining int
	if err := e.db.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM sessions").Scan(&remaining); err != nil {
		t.Fatalf("counting sessions: %v", err)
	}
	if remaining != 1 {
		t.Errorf("sessions after sweep = %d, want 1", remaining)
	}
	if _, err := e.sessions.Resolve(t.Context(), live); err != nil {
		t.Errorf("live session resolve error = %v", err)
	}
}
