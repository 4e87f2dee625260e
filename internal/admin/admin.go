// Package admin serves the operational HTTP endpoints: health, pool and
// connection statistics as JSON, and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vnykmshr/ruginx/internal/server"
	"github.com/vnykmshr/ruginx/pkg/ratelimit/distributed"
	"github.com/vnykmshr/ruginx/pkg/scheduler"
	"github.com/vnykmshr/ruginx/pkg/threadpool"
)

// PoolStats is satisfied by *threadpool.Pool and *threadpool.MetricsPool.
type PoolStats interface {
	Stats() threadpool.Stats
}

// Server exposes the admin endpoints. Only Pool is required.
type Server struct {
	Addr      string
	Pool      PoolStats
	Conns     interface{ Stats() server.Stats }
	Limiter   distributed.Limiter
	Scheduler interface{ List() []scheduler.Entry }
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Pool      threadpool.Stats   `json:"pool"`
	Conns     *server.Stats      `json:"connections,omitempty"`
	RateLimit *distributed.Stats `json:"ratelimit,omitempty"`
	Schedules []scheduleInfo     `json:"schedules,omitempty"`
}

type scheduleInfo struct {
	ID      string    `json:"id"`
	Expr    string    `json:"expression"`
	Next    time.Time `json:"next"`
	Runs    int64     `json:"runs"`
	Skipped int64     `json:"skipped"`
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Router builds the chi router for the admin endpoints.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/healthz", s.HandleHealth())
	r.Get("/stats", s.HandleStats())

	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// HandleHealth answers 200 while the pool accepts jobs and 503 after it
// has been shut down.
func (s *Server) HandleHealth() http.HandlerFunc {
	type res struct {
		Status string `json:"status"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pool.Stats().Closed {
			s.writeJSON(w, http.StatusServiceUnavailable, res{Status: "closed"})
			return
		}
		s.writeJSON(w, http.StatusOK, res{Status: "ok"})
	}
}

// HandleStats reports pool, connection, limiter and schedule statistics.
func (s *Server) HandleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := StatsResponse{Pool: s.Pool.Stats()}

		if s.Conns != nil {
			conns := s.Conns.Stats()
			body.Conns = &conns
		}

		if s.Limiter != nil {
			stats, err := s.Limiter.Stats(r.Context())
			if err != nil {
				s.logger().Warn("could not read rate limiter stats", zap.Error(err))
			} else {
				body.RateLimit = stats
			}
		}

		if s.Scheduler != nil {
			for _, e := range s.Scheduler.List() {
				body.Schedules = append(body.Schedules, scheduleInfo{
					ID:      e.ID,
					Expr:    e.Expression,
					Next:    e.Next,
					Runs:    e.Runs,
					Skipped: e.Skipped,
				})
			}
		}

		s.writeJSON(w, http.StatusOK, body)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger().Warn("could not encode admin response", zap.Error(err))
	}
}

// Run serves the admin endpoints on s.Addr until ctx is cancelled, then
// shuts the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	startCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startCh <- errors.Wrap(err, "failed to start admin server")
		}
		close(startCh)
	}()
	s.logger().Info("admin listening", zap.String("addr", s.Addr))

	select {
	case err := <-startCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to shut down admin server")
		}
		return nil
	}
}
