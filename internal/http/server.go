package http

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"kasharian/internal/auth"
	applog "kasharian/internal/log"
	"kasharian/internal/middleware/ratelimit"
	"kasharian/internal/middleware/security"
	"kasharian/internal/middleware/trace"
	"kasharian/internal/services"
	appweb "kasharian/web"
)

const (
	defaultStoreTimeout = 10 * time.Second
	readyTimeout        = 5 * time.Second
	historyDays         = 7
)

// Options wires the server to its services.
type Options struct {
	Addr           string
	Ledger         *services.Ledger
	Aggregator     *services.Aggregator
	Guard          *auth.Guard
	Logger         *applog.Logger
	TrustedProxies []string
	RateLimit      ratelimit.Config
	// StoreTimeout bounds the row-store work of a single request.
	StoreTimeout time.Duration
}

type Server struct {
	http.Server
	ledger     *services.Ledger
	aggregator *services.Aggregator
	guard      *auth.Guard
	logger     *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	storeTimeout     time.Duration
	started          time.Time

	shutdownOnce sync.Once
}

// authedHandler is a handler that runs with a verified session.
type authedHandler func(w http.ResponseWriter, r *http.Request, id auth.Identity)

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	if opts.Ledger == nil || opts.Aggregator == nil || opts.Guard == nil {
		return nil, errors.New("http server needs a ledger, an aggregator and a guard")
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	detector, err := security.NewDetector(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}
	limitCfg := opts.RateLimit
	if limitCfg.RequestsPerMinute <= 0 {
		limitCfg = ratelimit.DefaultConfig()
	}
	storeTimeout := opts.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		ledger:           opts.Ledger,
		aggregator:       opts.Aggregator,
		guard:            opts.Guard,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(limitCfg),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		storeTimeout:     storeTimeout,
		started:          time.Now(),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		writeMessage(w, http.StatusTooManyRequests, "too many requests")
	})(h)
	h = s.securityDetector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	s.Handler = h

	return s, nil
}

// routes mounts every API endpoint at its bare path and under /api/. The
// mux answers 405 with an Allow header for a known path and wrong method.
func (s *Server) routes(mux *http.ServeMux) {
	api := func(method, path string, h http.Handler) {
		h = security.NoStore(h)
		mux.Handle(method+" "+path, h)
		mux.Handle(method+" /api"+path, h)
	}

	api(http.MethodPost, "/login", http.HandlerFunc(s.handleLogin))
	api(http.MethodPost, "/logout", http.HandlerFunc(s.handleLogout))
	api(http.MethodGet, "/today", s.requireSession(s.handleToday))
	api(http.MethodPost, "/today-income", s.requireSession(s.handleTodayIncome))
	api(http.MethodPost, "/today-expense", s.requireSession(s.handleTodayExpense))
	api(http.MethodGet, "/history-last7", s.requireSession(s.handleHistory))
	api(http.MethodGet, "/monthly-summary", s.requireSession(s.handleMonthlySummary))
	api(http.MethodPost, "/reset", s.requireSession(s.handleReset))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
		return
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "index.html")
	})
}

// requireSession rejects requests without a valid session with 401.
func (s *Server) requireSession(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.guard.Authenticate(r)
		if err != nil {
			writeError(w, r, err, applog.OpValidate)
			return
		}
		ctx := applog.WithLogger(r.Context(), applog.FromContext(r.Context()).With(applog.FieldUser, id.Username))
		next(w, r.WithContext(ctx), id)
	})
}

// storeContext bounds the row-store calls of one request.
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.storeTimeout)
}

// Shutdown gracefully shuts down the server and its cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
