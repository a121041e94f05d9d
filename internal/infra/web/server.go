package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/infra/logging"
	"github.com/jmobrien1/mdraft/internal/usecase"
)

// Pinger is the health probe fragment of a backing service client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	intake  *usecase.IntakeUseCase
	jobs    *usecase.JobUseCase
	auth    *VisitorAuth
	apiKeys map[string]string // bearer key -> account id
	db      Pinger
	cache   Pinger
	maxBody int64
	log     *zerolog.Logger
}

type ServerOptions struct {
	APIKeys map[string]string
	// MaxBody caps the multipart request size before the per-category
	// limits apply.
	MaxBody int64
}

func NewServer(
	intake *usecase.IntakeUseCase,
	jobs *usecase.JobUseCase,
	auth *VisitorAuth,
	db Pinger,
	cache Pinger,
	opts ServerOptions,
	logger *zerolog.Logger,
) *Server {
	if opts.MaxBody <= 0 {
		opts.MaxBody = 64 << 20
	}
	webLog := logger.With().Str("component", "Web").Logger()
	return &Server{
		intake:  intake,
		jobs:    jobs,
		auth:    auth,
		apiKeys: opts.APIKeys,
		db:      db,
		cache:   cache,
		maxBody: opts.MaxBody,
		log:     &webLog,
	}
}

// Router assembles the full HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/conversions", func(r chi.Router) {
		r.Use(s.identity)
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/cancel", s.handleCancel)
			r.Post("/resubmit", s.handleResubmit)
			r.Get("/result", s.handleResult)
		})
	})

	return r
}

// requestLogger tags every request with a trace id and logs the outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := uuid.NewString()
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-Id", traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.log.Info().
			Str("trace_id", traceID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Msg("request")
	})
}

// identity resolves the caller to an owner: an API key maps to an account,
// everyone else gets (or keeps) a signed visitor cookie.
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hdr := r.Header.Get("Authorization"); hdr != "" {
			token, found := strings.CutPrefix(hdr, "Bearer ")
			if !found {
				token, found = strings.CutPrefix(hdr, "bearer ")
			}
			if !found {
				writeError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
				return
			}
			accountID, ok := s.apiKeys[strings.TrimSpace(token)]
			if !ok {
				writeError(w, http.StatusForbidden, "forbidden", "unknown api key")
				return
			}
			next.ServeHTTP(w, withOwner(r, model.Owner{UserID: accountID}))
			return
		}

		if id, err := s.auth.Parse(r); err == nil {
			next.ServeHTTP(w, withOwner(r, model.Owner{VisitorID: id}))
			return
		}
		id, err := s.auth.Mint(w)
		if err != nil {
			s.log.Error().Err(err).Msg("visitor token mint failed")
			writeError(w, http.StatusInternalServerError, "server_error", "could not establish identity")
			return
		}
		next.ServeHTTP(w, withOwner(r, model.Owner{VisitorID: id}))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "cache": "ok"}
	healthy := true
	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := s.cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy": healthy,
		"checks":  checks,
	})
}
