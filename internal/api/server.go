package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/campioncollege/beadle-core/internal/audit"
	"github.com/campioncollege/beadle-core/internal/auth"
	"github.com/campioncollege/beadle-core/internal/infrastructure/config"
	"github.com/campioncollege/beadle-core/internal/infrastructure/database"
	"github.com/campioncollege/beadle-core/internal/infrastructure/influxdb"
	"github.com/campioncollege/beadle-core/internal/infrastructure/logging"
	"github.com/campioncollege/beadle-core/internal/infrastructure/mqtt"
	"github.com/campioncollege/beadle-core/internal/slip"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// sessionSweepInterval is how often expired sessions are deleted.
const sessionSweepInterval = time.Hour

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	SchoolName string
	Logger     *logging.Logger
	DB         *database.DB

	Users         auth.UserRepository
	Catalog       auth.RoleCatalog
	Assignments   auth.AssignmentRepository
	Sessions      auth.SessionRepository
	Gate          *auth.Gate
	Authenticator *auth.Authenticator
	RoleManager   *auth.RoleManager

	Slips *slip.Service

	AuditRepo audit.Repository
	Audit     *audit.Recorder

	MQTT     *mqtt.Client     // optional
	InfluxDB *influxdb.Client // optional
	Version  string
}

// Server is the HTTP API server for the beadle slip service.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	schoolName  string
	logger      *logging.Logger
	db          *database.DB
	users       auth.UserRepository
	catalog     auth.RoleCatalog
	assignments auth.AssignmentRepository
	sessions    auth.SessionRepository
	gate        *auth.Gate
	authn       *auth.Authenticator
	roles       *auth.RoleManager
	slips       *slip.Service
	auditRepo   audit.Repository
	audit       *audit.Recorder
	mqtt        *mqtt.Client
	influx      *influxdb.Client
	version     string
	startTime   time.Time

	cookie  *sessionCookie
	tickets *ticketStore
	hub     *Hub
	server  *http.Server
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Users == nil || deps.Catalog == nil || deps.Assignments == nil || deps.Sessions == nil:
		return nil, fmt.Errorf("account repositories are required")
	case deps.Gate == nil || deps.Authenticator == nil || deps.RoleManager == nil:
		return nil, fmt.Errorf("gate, authenticator and role manager are required")
	case deps.Slips == nil:
		return nil, fmt.Errorf("slip service is required")
	}
	if deps.Security.Ticket.Secret == "" {
		return nil, fmt.Errorf("websocket ticket secret is required")
	}

	cookie, err := newSessionCookie(deps.Security.Session)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		schoolName:  deps.SchoolName,
		logger:      deps.Logger,
		db:          deps.DB,
		users:       deps.Users,
		catalog:     deps.Catalog,
		assignments: deps.Assignments,
		sessions:    deps.Sessions,
		gate:        deps.Gate,
		authn:       deps.Authenticator,
		roles:       deps.RoleManager,
		slips:       deps.Slips,
		auditRepo:   deps.AuditRepo,
		audit:       deps.Audit,
		mqtt:        deps.MQTT,
		influx:      deps.InfluxDB,
		version:     deps.Version,
		startTime:   time.Now(),
		cookie:      cookie,
		tickets:     newTicketStore(),
		hub:         NewHub(deps.WS, deps.Logger),
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, the ticket and session sweepers, and the
// HTTP listener in background goroutines. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)
	go s.sweepSessionsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// sweepSessionsLoop deletes expired sessions every sessionSweepInterval
// until ctx is cancelled.
func (s *Server) sweepSessionsLoop(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepSessions(ctx)
		}
	}
}

func (s *Server) sweepSessions(ctx context.Context) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
}
