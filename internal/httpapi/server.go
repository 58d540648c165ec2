package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthBasePath prefixes every auth route.
const AuthBasePath = "/api/auth"

// Options configures a Server.
type Options struct {
	Engine *authgate.Engine
	Logger *slog.Logger

	// CORSOrigins lists the origins allowed to call /api/auth with
	// credentials.
	CORSOrigins  []string
	CookieSecure bool
	// TrustProxy makes X-Forwarded-For the rate-limit identity.
	TrustProxy bool

	// SessionData signs the session-data cookie. Nil disables it.
	SessionData *jwt.Manager

	// Registry receives the HTTP and engine collectors. Nil means a
	// private registry.
	Registry *prometheus.Registry
}

// Server is the HTTP front of an Engine.
type Server struct {
	engine      *authgate.Engine
	logger      *slog.Logger
	sessionData *jwt.Manager
	cookies     cookieJar
	router      *mux.Router
	handler     http.Handler
	metrics     *httpMetrics
	now         func() time.Time
}

// New wires routes and middleware.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("httpapi: engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		engine:      opts.Engine,
		logger:      logger,
		sessionData: opts.SessionData,
		cookies: cookieJar{
			secure:   opts.CookieSecure,
			lifetime: opts.Engine.Config().Session.ExpiresIn,
		},
		router: mux.NewRouter(),
		now:    time.Now,
	}

	metrics, err := newHTTPMetrics(registry, opts.Engine)
	if err != nil {
		return nil, err
	}
	s.metrics = metrics
	s.routes(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	var h http.Handler = s.router
	h = middleware.Attach(opts.Engine, logger)(h)
	h = middleware.ClientContext(opts.TrustProxy)(h)
	h = handlers.CORS(
		handlers.AllowedOrigins(opts.CORSOrigins),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.ExposedHeaders([]string{"Content-Length", headerAuthToken}),
		handlers.MaxAge(600),
	)(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
	s.handler = h

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes(metricsHandler http.Handler) {
	s.router.Use(s.metrics.instrument)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.fail(w, http.StatusNotFound, "not found")
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// handle registers h for method on path, then a method-less route on the
	// same path so other methods answer 405 instead of falling through to
	// the subrouter's not-found handler.
	handle := func(r *mux.Router, path, method string, h http.Handler) {
		r.Handle(path, h).Methods(method)
		r.Handle(path, notAllowed)
	}

	handle(s.router, "/", http.MethodGet, http.HandlerFunc(s.handleRoot))
	handle(s.router, "/health", http.MethodGet, http.HandlerFunc(s.handleHealth))
	handle(s.router, "/metrics", http.MethodGet, metricsHandler)

	api := s.router.PathPrefix(AuthBasePath).Subrouter()
	for _, rt := range []struct {
		path    string
		method  string
		handler http.HandlerFunc
	}{
		{authgate.RouteInitPassword, http.MethodPost, s.handleInitPassword},
		{authgate.RouteSignUpEmail, http.MethodPost, s.handleSignUpEmail},
		{authgate.RouteSignInEmail, http.MethodPost, s.handleSignInEmail},
		{authgate.RouteSignOut, http.MethodPost, s.handleSignOut},
		{authgate.RouteSignOutAll, http.MethodPost, s.handleSignOutAll},
		{authgate.RouteGetSession, http.MethodGet, s.handleGetSession},
		{authgate.RouteSendVerificationOTP, http.MethodPost, s.handleSendVerificationOTP},
		{authgate.RouteVerifyEmail, http.MethodPost, s.handleVerifyEmail},
		{authgate.RouteSignInEmailOTP, http.MethodPost, s.handleSignInEmailOTP},
		{authgate.RouteForgetPassword, http.MethodPost, s.handleForgetPassword},
		{authgate.RouteResetPassword, http.MethodPost, s.handleResetPassword},
	} {
		handle(api, rt.path, rt.method, rt.handler)
	}

	for _, r := range []*mux.Router{s.router, api} {
		r.NotFoundHandler = notFound
		r.MethodNotAllowedHandler = notAllowed
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Hello authgate")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info("http request",
		slog.String("method", p.Request.Method),
		slog.String("path", p.URL.Path),
		slog.Int("status", p.StatusCode),
		slog.Int("size", p.Size),
		slog.Duration("duration", time.Since(p.TimeStamp)),
	)
}

// recoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic recovered", slog.Any("panic", v))
}
