package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/associations"
	"github.com/formulafinance/licensehub/pkg/audit"
	"github.com/formulafinance/licensehub/pkg/auth"
	"github.com/formulafinance/licensehub/pkg/customers"
	"github.com/formulafinance/licensehub/pkg/httputil"
	"github.com/formulafinance/licensehub/pkg/licenses"
	"github.com/formulafinance/licensehub/pkg/middleware"
	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/rbac"
	"github.com/formulafinance/licensehub/pkg/storage"
)

// DefaultMaxBodyBytes bounds request bodies when Options.MaxBodyBytes is unset
const DefaultMaxBodyBytes = 1 << 20

// Options are the dependencies of the API server
type Options struct {
	Conn        *storage.ConnectionManager
	Verifier    auth.TokenVerifier
	Roles       *rbac.CachedStore
	AuditLogger audit.Logger
	Logger      *observability.Logger
	// Metrics may be nil
	Metrics *observability.Metrics
	// ReportLimiter throttles report creation per caller; nil disables it
	ReportLimiter   middleware.Limiter
	SelectionPolicy licenses.SelectionPolicy
	CORSOrigins     []string
	MaxBodyBytes    int64
}

// Server is the licensehub HTTP API
type Server struct {
	router  *mux.Router
	handler http.Handler
	engine  *rbac.Engine
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = audit.NoopLogger{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	customerStore := customers.NewStore(opts.Conn)
	associationStore := associations.NewStore(opts.Conn).WithMetrics(opts.Metrics)
	licenseStore := licenses.NewStore(opts.Conn)
	ledger := licenses.NewLedger(opts.Conn, opts.SelectionPolicy, opts.Metrics)
	engine := rbac.NewEngine(opts.Roles, associationStore)

	s := &Server{
		router: mux.NewRouter(),
		engine: engine,
	}

	if opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(
		middleware.NewAuthenticator(opts.Verifier).Handler,
		rbac.NewGuard(engine, opts.Metrics).Handler,
	)

	rbac.NewHandlers(opts.Roles, opts.AuditLogger).RegisterRoutes(api)
	customers.NewHandlers(customerStore, engine, opts.AuditLogger).RegisterRoutes(api)
	associations.NewHandlers(associationStore, engine, opts.AuditLogger).RegisterRoutes(api)

	licenseHandlers := licenses.NewHandlers(licenseStore, ledger, customerStore, engine, opts.AuditLogger)
	if opts.ReportLimiter != nil {
		licenseHandlers.WithReportRateLimit(middleware.RateLimit(opts.ReportLimiter))
	}
	licenseHandlers.RegisterRoutes(api)

	s.router.NotFoundHandler = http.HandlerFunc(notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// Outermost first: request ID, logger, recovery, CORS, body limit
	var h http.Handler = s.router
	h = httputil.MaxBytesMiddleware(opts.MaxBodyBytes)(h)
	h = httputil.CORSMiddleware(opts.CORSOrigins)(h)
	h = middleware.Recovery(h)
	h = middleware.RequestLogger(opts.Logger)(h)
	h = middleware.RequestID(h)
	s.handler = h

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Engine returns the authorization engine behind the route guard
func (s *Server) Engine() *rbac.Engine {
	return s.engine
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorKind(w, apierrors.KindNotFound, "no route for "+r.Method+" "+r.URL.Path)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error":   "method_not_allowed",
		"message": r.Method + " is not supported on " + r.URL.Path,
	})
}
