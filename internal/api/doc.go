// Package api implements the HTTP REST API and WebSocket server for the
// Electronic Beadle Slip service.
//
// This package provides:
//   - Account endpoints: signup, login, logout, profile and password
//   - Role administration over the role mutation API
//   - Slip submission, listing and review, plus the class-time calculator
//   - A WebSocket live feed of slip and role events for supervisors
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Authorization
//
// Every protected route declares an auth.Requirement (ANY or ALL of a set
// of role names). The requireRoles middleware hands the session token to
// auth.Gate and maps the decision: not authenticated is 401, insufficient
// permission is 403 with the required roles in the body.
//
// The session token travels either as "Authorization: Bearer <token>" or
// in a securecookie-encoded cookie set at login. WebSocket connections use
// short-lived single-use tickets so the session token never appears in a URL.
//
// # Graceful Degradation
//
// MQTT and InfluxDB are optional. Without them events still reach WebSocket
// clients and requests are served; only the external publications stop.
package api
