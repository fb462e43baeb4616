package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"incomes/internal/core"
	"incomes/internal/ingest"
	"incomes/internal/log"
	"incomes/internal/middleware/ratelimit"
	"incomes/internal/middleware/security"
	"incomes/internal/middleware/trace"
	"incomes/internal/report"
	"incomes/internal/storage"
)

// IncomeService is what the API needs from the service layer.
type IncomeService interface {
	Import(ctx context.Context, uploads ...ingest.Upload) (ingest.Report, error)
	Records(ctx context.Context, f storage.Filter) ([]core.IncomeRecord, error)
	Companies(ctx context.Context) ([]string, error)
	Summary(ctx context.Context, f storage.Filter) (report.Summary, error)
	Export(ctx context.Context, format string, f storage.Filter) ([]byte, storage.ExportFormat, error)
	DeleteCompany(ctx context.Context, company string) (int64, error)
	Clear(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Options tunes the API surface.
type Options struct {
	MaxUploadBytes int64
	// Basic auth is enabled when User is set.
	User     string
	Password string
	// WritesPerMinute limits uploads and deletions per client.
	WritesPerMinute int
	Logger          *log.Logger
}

type Server struct {
	http.Server
	svc          IncomeService
	opts         Options
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc IncomeService, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{
		svc:  svc,
		opts: opts,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.WritesPerMinute,
			CleanupInterval:   5 * time.Minute,
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/uploads", s.handleUpload)
	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("GET /api/companies", s.handleCompanies)
	mux.HandleFunc("DELETE /api/companies/{company}", s.handleDeleteCompany)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/summary", s.handleSummary)

	detector := security.NewDetector()
	var h http.Handler = mux
	h = s.withWriteLimit(detector.ExtractClientIP)(h)
	if opts.User != "" {
		h = security.NewBasicAuth(opts.User, opts.Password).Middleware("/healthz", "/readyz")(h)
	}
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = trace.NewMiddleware(opts.Logger.WithComponent(log.ComponentHTTP), detector.ExtractClientIP).Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// withWriteLimit rate limits every method that changes the store.
func (s *Server) withWriteLimit(extractIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := s.limiter.Middleware(extractIP, func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, extractIP(r), log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
		})(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				limited.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentStorage).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
