package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/middleware"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Config wires the server's collaborators
type Config struct {
	Resolver *rbac.Resolver
	Enforcer *rbac.Enforcer
	// Authenticator establishes the caller's user id; nil leaves every
	// request unauthenticated
	Authenticator middleware.Authenticator
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	// Vocabulary, when closed, rejects unknown permissions on role writes
	Vocabulary *rbac.Vocabulary
	Resources  []Resource
	// Audit receives one event per role administration write
	Audit audit.Logger
}

// Server represents our API server
type Server struct {
	router     *mux.Router
	resolver   *rbac.Resolver
	perms      *rbac.PermissionMiddleware
	logger     *observability.Logger
	vocabulary *rbac.Vocabulary
	audit      audit.Logger
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	enforcer := cfg.Enforcer
	if enforcer == nil {
		enforcer = rbac.NewEnforcer(cfg.Resolver, rbac.WithLogger(logger))
	}
	auditLog := cfg.Audit
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}

	s := &Server{
		router:     mux.NewRouter(),
		resolver:   cfg.Resolver,
		perms:      rbac.NewPermissionMiddleware(enforcer),
		logger:     logger,
		vocabulary: cfg.Vocabulary,
		audit:      auditLog,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes(cfg.Resources)
	return s
}

func (s *Server) setupMiddleware(cfg Config) {
	s.router.Use(observability.RecoveryMiddleware(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RequestLogger(s.logger))
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics, routeName))
	}
	if cfg.Authenticator != nil {
		s.router.Use(middleware.NewAuthMiddleware(cfg.Authenticator, s.logger).Handler)
	}
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(resources []Resource) {
	s.router.Handle("/api/permissions", NewPermissionsHandler(s.resolver, s.logger)).Methods(http.MethodGet)

	s.registerAdminRoutes()

	for _, res := range resources {
		s.mountResource(res)
	}
}

// Router exposes the router so callers can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server wrapped in OpenTelemetry HTTP instrumentation
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s, "gatekeeper",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	observability.FromContext(r.Context(), s.logger).WithError(err).Error(message)
	httputil.WriteErrorMessage(w, http.StatusInternalServerError, message)
}

// routeName labels metrics with the mux path template instead of the raw path
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// NewOpsHandler serves health probes and Prometheus metrics for the
// separate operations listener
func NewOpsHandler(checker *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	ops := http.NewServeMux()
	observability.RegisterHealthRoutes(ops, checker)
	ops.Handle("/metrics", observability.MetricsHandler(registry))
	return ops
}
