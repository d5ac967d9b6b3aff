// Package api wires the HTTP adapter: a Server bundling the chi router,
// middleware stack, and the Prometheus metrics endpoint over a
// queue.Queue.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maumercado/sayathing-queue/internal/api/handlers"
	apiMiddleware "github.com/maumercado/sayathing-queue/internal/api/middleware"
	"github.com/maumercado/sayathing-queue/internal/config"
	"github.com/maumercado/sayathing-queue/internal/metrics"
	"github.com/maumercado/sayathing-queue/internal/queue"
)

// Server bundles the chi router over the task queue's four HTTP routes.
type Server struct {
	router      *chi.Mux
	config      *config.Config
	taskHandler *handlers.TaskHandler
}

// NewServer builds a Server ready to serve the task queue HTTP adapter.
func NewServer(cfg *config.Config, q queue.Queue) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		config:      cfg,
		taskHandler: handlers.NewTaskHandler(q, cfg.Queue.BatchSize),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(apiMiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Heartbeat("/health"))
	s.router.Use(requestMetrics)

	authCfg := &apiMiddleware.AuthConfig{
		Enabled:   s.config.Auth.Enabled,
		JWTSecret: s.config.Auth.JWTSecret,
		APIKeys:   apiKeySet(s.config.Auth.APIKeys),
	}
	s.router.Use(apiMiddleware.Auth(authCfg))
}

func (s *Server) setupRoutes() {
	statesHandler := handlers.NewStatesHandler()

	s.router.Group(func(r chi.Router) {
		r.Use(chimiddleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.RateLimit(100))
		r.Post("/tasks", s.taskHandler.Create)
	})
	s.router.Get("/tasks", s.taskHandler.List)
	s.router.Get("/tasks/{id}", s.taskHandler.Get)
	s.router.Get("/task-states", statesHandler.List)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Router returns the underlying chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func apiKeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// requestMetrics records HTTP request duration and counts, keyed by the
// matched chi route pattern rather than the raw path so that
// /tasks/{id} doesn't explode metrics cardinality per task id.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
	})
}
