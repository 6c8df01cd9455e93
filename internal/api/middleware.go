package api

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campioncollege/beadle-core/internal/auth"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyCaller    contextKey = "caller"
)

// caller is the authenticated user behind a request that passed requireRoles.
type caller struct {
	User  *auth.SessionUser
	Roles []string
	Token string
}

func (c *caller) holdsAny(roles ...string) bool {
	return slices.ContainsFunc(c.Roles, func(held string) bool {
		return slices.Contains(roles, held)
	})
}

// callerFromContext returns the caller set by requireRoles. Handlers behind
// requireRoles can rely on it being non-nil.
func callerFromContext(ctx context.Context) *caller {
	c, _ := ctx.Value(ctxKeyCaller).(*caller) //nolint:errcheck // nil when unset
	return c
}

// requestIDMiddleware tags each request with the caller's X-Request-ID, or a
// fresh random one, and echoes it back.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware emits one access log line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	})
}

// recoveryMiddleware catches panics in handlers and returns a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", r.Context().Value(ctxKeyRequestID),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles Cross-Origin Resource Sharing headers. Only origins
// listed by name may send the session cookie; an empty list or "*" opens the
// API to any origin without credentials.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			listed, open := s.originPolicy(origin)
			if listed || open {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if listed {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Allow-Methods", joinOrDefault(s.cfg.CORS.AllowedMethods, "GET, POST, PUT, PATCH, DELETE, OPTIONS"))
				w.Header().Set("Access-Control-Allow-Headers", joinOrDefault(s.cfg.CORS.AllowedHeaders, "Authorization, Content-Type, X-Request-ID"))
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// bodySizeLimitMiddleware limits the size of incoming request bodies.
func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// requireRoles admits a request only when its session token satisfies req.
//
// A missing, unknown or expired token is answered with 401. A valid token
// whose roles do not satisfy req is answered with 403 naming the required
// roles. Storage failures are answered with 500 and never admit the request.
func (s *Server) requireRoles(req auth.Requirement) func(http.Handler) http.Handler {
	label := req.String()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := s.tokenFromRequest(r)
			d, err := s.gate.Authorize(r.Context(), token, req)
			if err != nil {
				s.logger.Error("authorization failed",
					"error", err,
					"path", r.URL.Path,
					"request_id", r.Context().Value(ctxKeyRequestID),
				)
				writeInternalError(w, "authorization unavailable")
				return
			}

			s.influx.WriteAuthDecision(routePattern(r), label, d.Allowed, string(d.Reason))

			if !d.Allowed {
				if d.Reason == auth.ReasonNotAuthenticated {
					writeUnauthorized(w, string(auth.ReasonNotAuthenticated))
					return
				}
				s.logger.Debug("permission denied",
					"user_id", d.User.ID,
					"requirement", label,
					"path", r.URL.Path,
				)
				writePermissionDenied(w, d.Required, d.Mode)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyCaller, &caller{
				User:  d.User,
				Roles: d.Roles,
				Token: token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// routePattern returns the matched chi pattern, which keeps telemetry tags
// free of ids.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// originPolicy reports whether origin is listed by name, and whether the
// configuration admits any origin (no list, or "*"). Only a listed origin
// gets credentials.
func (s *Server) originPolicy(origin string) (listed, open bool) {
	allowed := s.cfg.CORS.AllowedOrigins
	return slices.Contains(allowed, origin), len(allowed) == 0 || slices.Contains(allowed, "*")
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer for the WebSocket upgrade.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

const requestIDBytes = 8

func generateRequestID() string {
	b := make([]byte, requestIDBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

func joinOrDefault(values []string, defaultVal string) string {
	if len(values) == 0 {
		return defaultVal
	}
	return strings.Join(values, ", ")
}
