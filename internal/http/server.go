package http

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nelfy/internal/alerts"
	"nelfy/internal/api"
	"nelfy/internal/core"
	"nelfy/internal/installments"
	"nelfy/internal/log"
	"nelfy/internal/middleware/ratelimit"
	"nelfy/internal/middleware/security"
	"nelfy/internal/middleware/trace"
	"nelfy/internal/services"
	"nelfy/internal/session"
	appweb "nelfy/web"
)

// Authenticator signs users in against the backend.
type Authenticator interface {
	Login(ctx context.Context, req api.LoginRequest) (api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (api.AuthResponse, error)
}

// UserAPI is the backend as seen by one signed-in user.
type UserAPI interface {
	services.TransactionBackend
	services.ReportSource
	alerts.Source
	Categories(ctx context.Context) ([]core.Category, error)
	UnreadNotifications(ctx context.Context) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Deps are the collaborators of the server. Reports, Views, Limiter and
// Checks are optional.
type Deps struct {
	Logger       *log.Logger
	Auth         Authenticator
	Backend      func(token string) UserAPI
	Sessions     *session.Manager
	Alerts       *alerts.Registry
	Transactions *services.TransactionService
	Reports      *services.ReportService
	Views        *installments.Views
	Limiter      *ratelimit.Limiter
	Detector     *security.Detector
	// Checks are run by /readyz, keyed by the name reported.
	Checks            map[string]func(context.Context) error
	AlertPollInterval time.Duration
}

// appMetrics holds application-specific counters
type appMetrics struct {
	started             time.Time
	logins              atomic.Int64
	registrations       atomic.Int64
	transactionsCreated atomic.Int64
	transactionsDeleted atomic.Int64
	statusToggles       atomic.Int64
	exportsRequested    atomic.Int64
	backendErrors       atomic.Int64
	panics              atomic.Int64
}

type Server struct {
	http.Server
	deps     Deps
	renderer *Renderer
	trace    *trace.Middleware
	now      func() time.Time
	metrics  appMetrics

	shutdownOnce sync.Once
}

// NewServer parses the templates, registers the routes and wraps them in
// the middleware chain.
func NewServer(addr string, deps Deps) (*Server, error) {
	renderer, err := NewRenderer(appweb.TemplatesFS)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Detector == nil {
		deps.Detector = security.NewDetector()
	}
	if deps.AlertPollInterval <= 0 {
		deps.AlertPollInterval = alerts.DefaultInterval
	}

	s := &Server{
		deps:     deps,
		renderer: renderer,
		trace:    trace.NewMiddleware(deps.Detector.ExtractClientIP),
		now:      time.Now,
	}
	s.metrics.started = time.Now()
	renderer.now = func() time.Time { return s.now() }

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	if deps.Limiter != nil {
		h = deps.Limiter.Middleware(deps.Detector.ExtractClientIP, s.rateLimited)(h)
	}
	h = deps.Detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.recoverer(h)
	h = s.trace.Middleware(h)
	h = log.Middleware(deps.Logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.deps.Logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	public := func(h http.HandlerFunc) http.Handler {
		return s.deps.Sessions.Load(h)
	}
	private := func(h http.HandlerFunc) http.Handler {
		return s.deps.Sessions.Require(s.unauthenticated)(security.NoStore(h))
	}

	mux.Handle("GET /{$}", public(s.handleLanding))
	mux.Handle("GET /login", public(s.handleLoginPage))
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.Handle("GET /register", public(s.handleRegisterPage))
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /dashboard", private(s.handleDashboard))
	mux.Handle("GET /ui/alerts", private(s.handleAlerts))
	mux.Handle("GET /ui/notifications", private(s.handleNotifications))
	mux.Handle("GET /ui/notifications/count", private(s.handleNotificationCount))
	mux.Handle("POST /ui/notifications/{id}/read", private(s.handleNotificationRead))
	mux.Handle("POST /ui/notifications/read-all", private(s.handleNotificationsReadAll))

	mux.Handle("GET /transactions", private(s.handleTransactions))
	mux.Handle("POST /transactions", private(s.handleCreateTransaction))
	mux.Handle("POST /transactions/{id}/delete", private(s.handleDeleteTransaction))
	mux.Handle("GET /ui/transactions", private(s.handleTransactionList))
	mux.Handle("GET /ui/transactions/totals", private(s.handleTransactionTotals))
	mux.Handle("POST /ui/transactions/{id}/paid", private(s.handleSetPaid(true)))
	mux.Handle("POST /ui/transactions/{id}/unpaid", private(s.handleSetPaid(false)))
	mux.Handle("POST /ui/installments/{id}/toggle", private(s.handleToggleGroup))
	mux.Handle("POST /ui/installments/{parent}/items/{id}/paid", private(s.handleSetInstallmentPaid(true)))
	mux.Handle("POST /ui/installments/{parent}/items/{id}/unpaid", private(s.handleSetInstallmentPaid(false)))

	mux.Handle("GET /reports", private(s.handleReports))
	mux.Handle("POST /reports/export", private(s.handleExport))
	mux.Handle("GET /ui/reports/exports", private(s.handleExportList))

	mux.Handle("/", public(s.handleNotFound))
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.deps.Logger.InfoContext(ctx, "Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		shutdownErr = s.Server.Shutdown(ctx)
	})
	if shutdownErr != nil {
		return fmt.Errorf("http shutdown: %w", shutdownErr)
	}
	return nil
}
