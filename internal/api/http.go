package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/api/swagger"
	"github.com/bher20/powerdash/internal/auth"
	"github.com/bher20/powerdash/internal/billing"
	"github.com/bher20/powerdash/internal/metrics"
	"github.com/bher20/powerdash/internal/storage"
	"github.com/bher20/powerdash/internal/telemetry"
)

// Deps are the services the HTTP API is built on. Auth and Feed are
// optional: without Auth the write endpoints are not mounted, without Feed
// /api/v1/live reports the feed as disabled.
type Deps struct {
	Billing *billing.Service
	Storage storage.Storage
	Auth    *auth.Service
	Feed    *telemetry.LiveFeed
	Logger  *zap.Logger
}

type server struct {
	Deps
}

// NewMux constructs the HTTP mux, wiring in the cost service, metrics, and
// health endpoints.
func NewMux(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &server{Deps: d}
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("GET /api/v1/schedules", s.instrument("/api/v1/schedules", http.HandlerFunc(s.listSchedules)))
	mux.Handle("GET /api/v1/schedules/{key}", s.instrument("/api/v1/schedules/{key}", http.HandlerFunc(s.getSchedule)))
	mux.Handle("GET /api/v1/cost", s.instrument("/api/v1/cost", http.HandlerFunc(s.handleCost)))
	mux.Handle("GET /api/v1/estimate", s.instrument("/api/v1/estimate", http.HandlerFunc(s.handleEstimate)))
	mux.Handle("GET /api/v1/today", s.instrument("/api/v1/today", http.HandlerFunc(s.handleToday)))
	mux.Handle("GET /api/v1/weekly", s.instrument("/api/v1/weekly", http.HandlerFunc(s.handleWeekly)))
	mux.Handle("GET /api/v1/live", s.instrument("/api/v1/live", http.HandlerFunc(s.handleLive)))

	if s.Auth != nil {
		guard := func(obj, act string, h http.HandlerFunc) http.Handler {
			return s.Auth.Middleware(s.Auth.RequirePermission(obj, act, h))
		}
		mux.Handle("PUT /api/v1/schedules/{key}",
			s.instrument("/api/v1/schedules/{key}", guard(auth.ObjSchedules, auth.ActWrite, s.putSchedule)))
		mux.Handle("DELETE /api/v1/schedules/{key}",
			s.instrument("/api/v1/schedules/{key}", guard(auth.ObjSchedules, auth.ActWrite, s.deleteSchedule)))
		mux.Handle("GET /api/v1/settings",
			s.instrument("/api/v1/settings", guard(auth.ObjSettings, auth.ActRead, s.getSettings)))
		mux.Handle("PUT /api/v1/settings/{key}",
			s.instrument("/api/v1/settings/{key}", guard(auth.ObjSettings, auth.ActWrite, s.putSetting)))
	}

	mux.Handle("/api/docs/", http.StripPrefix("/api/docs", swagger.Handler()))

	return mux
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Storage != nil {
		if err := s.Storage.Ping(r.Context()); err != nil {
			s.Logger.Warn("readyz: storage ping failed", zap.Error(err))
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count, duration and error responses per
// schedule and route pattern. Schedules the catalog does not know are
// labelled "unknown" so arbitrary query values cannot grow the series.
func (s *server) instrument(path string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			schedule := s.scheduleLabel(r)
			metrics.RequestsTotal.WithLabelValues(schedule, path).Inc()
			metrics.RequestDurationSeconds.WithLabelValues(schedule, path).Observe(time.Since(start).Seconds())
			if rec.code >= 400 {
				metrics.RequestErrorsTotal.WithLabelValues(schedule, path, strconv.Itoa(rec.code)).Inc()
			}
		}()
		h.ServeHTTP(rec, r)
	})
}

// scheduleLabel is evaluated after the handler so a schedule created by
// the request itself is labelled by its key.
func (s *server) scheduleLabel(r *http.Request) string {
	key := r.URL.Query().Get("schedule")
	if key == "" {
		key = r.PathValue("key")
	}
	if key == "" {
		return "default"
	}
	if s.Billing != nil {
		if _, err := s.Billing.Catalog().Get(key); err == nil {
			return key
		}
	}
	return "unknown"
}
