// Package server exposes scheduler state over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Swind/go-fiber-jobs/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsProvider is the part of a scheduler the server reads.
type StatsProvider interface {
	Stats() core.SchedulerStats
	RecentJobs(limit int) []core.JobExecutionRecord
}

// Server serves /metrics, /stats and /jobs for one scheduler.
type Server struct {
	router    chi.Router
	scheduler StatsProvider
	gatherer  prometheus.Gatherer
	logger    core.Logger
	startTime time.Time
}

// New creates a Server with all routes registered. A nil gatherer serves the
// default Prometheus registry.
func New(scheduler StatsProvider, gatherer prometheus.Gatherer, logger core.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		scheduler: scheduler,
		gatherer:  gatherer,
		logger:    logger,
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/stats", s.handleStats)
	r.Get("/jobs", s.handleJobs)
	r.Get("/healthz", s.handleHealth)
}

type statsResponse struct {
	Uptime string              `json:"uptime"`
	Stats  core.SchedulerStats `json:"stats"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, statsResponse{
		Uptime: time.Since(s.startTime).Round(time.Millisecond).String(),
		Stats:  s.scheduler.Stats(),
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	jobs := s.scheduler.RecentJobs(limit)
	if jobs == nil {
		jobs = []core.JobExecutionRecord{}
	}
	s.respondJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.scheduler.Stats().Running {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("write response", core.F("error", err))
	}
}
